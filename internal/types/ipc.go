package types

import "encoding/json"

// RequestType tags the inbound IPC frame. One request type maps to one
// synchronous reply per the daemon's protocol (spec §4.4, §6).
type RequestType string

const (
	ReqPing          RequestType = "Ping"
	ReqStatus        RequestType = "Status"
	ReqBackup        RequestType = "Backup"
	ReqPrune         RequestType = "Prune"
	ReqSnapshots     RequestType = "Snapshots"
	ReqMount         RequestType = "Mount"
	ReqUnmount       RequestType = "Unmount"
	ReqReloadConfig  RequestType = "ReloadConfig"
	ReqShutdown      RequestType = "Shutdown"
)

// Request is one inbound line of the line-delimited JSON protocol.
// Payload is re-decoded by the handler according to Type.
type Request struct {
	Type    RequestType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SetScopedPayload is the payload shape shared by Backup/Prune/Snapshots/
// Mount/Unmount — Backup and Prune treat an empty SetName as "all sets";
// Snapshots, Mount and Unmount require a set name and reject an empty one.
type SetScopedPayload struct {
	SetName    string `json:"set_name,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	SnapshotID string `json:"snapshot_id,omitempty"`
}

// ResponseKind tags the `data` variant of a successful synchronous reply.
type ResponseKind string

const (
	KindPong             ResponseKind = "Pong"
	KindStatus           ResponseKind = "Status"
	KindBackupStarted    ResponseKind = "BackupStarted"
	KindBackupsTriggered ResponseKind = "BackupsTriggered"
	KindPruneResult      ResponseKind = "PruneResult"
	KindPrunesTriggered  ResponseKind = "PrunesTriggered"
	KindSnapshots        ResponseKind = "Snapshots"
	KindMountPath        ResponseKind = "MountPath"
	KindOk               ResponseKind = "Ok"
)

// ErrorCode is the stable error tag surfaced to clients (spec §6).
type ErrorCode string

const (
	CodeUnknownSet      ErrorCode = "UnknownSet"
	CodeBackupFailed    ErrorCode = "BackupFailed"
	CodeResticError     ErrorCode = "ResticError"
	CodeMountFailed     ErrorCode = "MountFailed"
	CodeNotMounted      ErrorCode = "NotMounted"
	CodeDaemonBusy      ErrorCode = "DaemonBusy"
	CodeInvalidRequest  ErrorCode = "InvalidRequest"
)

// Frame is one outbound line: either a synchronous Response or an
// asynchronous Event, distinguished by Kind ("response" or "event").
type Frame struct {
	Kind  string          `json:"kind"`
	Body  json.RawMessage `json:"body"`
}

const (
	FrameResponse = "response"
	FrameEvent    = "event"
)

// Response is a synchronous reply to exactly one Request.
type Response struct {
	Ok    bool            `json:"ok"`
	Data  ResponseKind    `json:"data_kind,omitempty"`
	Body  json.RawMessage `json:"body,omitempty"`
	Error *ErrorBody      `json:"error,omitempty"`
}

// ErrorBody is the Error variant of Response. Kind lets a CLI client map the
// failure to its documented exit code (spec §7) without string-matching Code.
type ErrorBody struct {
	Code    ErrorCode `json:"code"`
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
}

// StatusData is the body of a Status reply.
type StatusData struct {
	Sets []SetStatus `json:"sets"`
}

// BackupStartedData is the body of a single-set Backup reply.
type BackupStartedData struct {
	Set string `json:"set"`
}

// TriggerOutcome records one set's outcome within a fan-out Backup/Prune
// request (SetName empty => all configured sets).
type TriggerOutcome struct {
	Set   string `json:"set"`
	Error string `json:"error,omitempty"`
}

// BackupsTriggeredData is the body of an all-sets Backup reply.
type BackupsTriggeredData struct {
	Started []string         `json:"started"`
	Failed  []TriggerOutcome `json:"failed"`
}

// PruneResultData is the body of a single-set Prune reply.
type PruneResultData struct {
	Set            string `json:"set"`
	ReclaimedBytes uint64 `json:"reclaimed_bytes"`
}

// PruneSucceeded records one set's reclaimed bytes within a fan-out prune.
type PruneSucceeded struct {
	Set            string `json:"set"`
	ReclaimedBytes uint64 `json:"reclaimed_bytes"`
}

// PrunesTriggeredData is the body of an all-sets Prune reply.
type PrunesTriggeredData struct {
	Succeeded []PruneSucceeded `json:"succeeded"`
	Failed    []TriggerOutcome `json:"failed"`
}

// SnapshotsData is the body of a Snapshots reply.
type SnapshotsData struct {
	Snapshots []SnapshotInfo `json:"snapshots"`
}

// MountPathData is the body of a Mount reply.
type MountPathData struct {
	Path string `json:"path"`
}

// EventType tags one asynchronous broadcast event (spec §3 "Broadcast
// channel").
type EventType string

const (
	EventBackupStarted  EventType = "BackupStarted"
	EventBackupComplete EventType = "BackupComplete"
	EventBackupFailed   EventType = "BackupFailed"
	EventPruneComplete  EventType = "PruneComplete"
)

// Event is one broadcast lifecycle notification, always scoped to a single
// set. Fields not relevant to Type are left zero. RunID lets a client
// correlate a BackupStarted event with the BackupComplete/BackupFailed event
// that eventually concludes the same run.
type Event struct {
	Type           EventType `json:"type"`
	Set            string    `json:"set"`
	RunID          string    `json:"run_id,omitempty"`
	SnapshotID     string    `json:"snapshot_id,omitempty"`
	AddedBytes     uint64    `json:"added_bytes,omitempty"`
	DurationSecs   float64   `json:"duration_secs,omitempty"`
	Error          string    `json:"error,omitempty"`
	ReclaimedBytes uint64    `json:"reclaimed_bytes,omitempty"`
}
