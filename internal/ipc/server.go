// Package ipc is the daemon's Unix-domain-socket protocol server: a
// listener accepting one connection per client, a newline-delimited JSON
// request/response loop per connection, and a broadcast subscription
// fanned into the same connection's outbound stream (spec §4.4).
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/backutil/backutil/internal/broadcast"
	"github.com/backutil/backutil/internal/jobmanager"
	"github.com/backutil/backutil/internal/types"
)

// drainGrace bounds how long an in-flight connection gets to close on its
// own after shutdown is signalled before the server force-closes it (spec
// §4.4 "drains in-flight handlers with a bounded deadline").
const drainGrace = 5 * time.Second

// ErrShutdownRequested is available for callers that want a sentinel
// distinguishing a client-requested shutdown from other causes; Serve
// itself returns nil on a clean, context-cancelled exit regardless of
// which request triggered cancellation.
var ErrShutdownRequested = errors.New("ipc: shutdown requested by client")

// Server accepts connections on a Unix socket and dispatches requests to a
// jobmanager.Manager.
type Server struct {
	socketPath string
	log        *zap.Logger
	jobs       *jobmanager.Manager
	bus        *broadcast.Bus

	ln net.Listener

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	wg sync.WaitGroup

	onReload   func()
	onShutdown func()
}

// New creates a Server bound to socketPath. Call Serve to accept
// connections.
func New(socketPath string, log *zap.Logger, jobs *jobmanager.Manager, bus *broadcast.Bus) *Server {
	return &Server{socketPath: socketPath, log: log, jobs: jobs, bus: bus, conns: make(map[net.Conn]struct{})}
}

// OnReloadRequested installs the callback invoked when a client sends a
// ReloadConfig request — the supervisor wires this to its own reload path
// so a ReloadConfig request and a config-file-change reload converge.
func (s *Server) OnReloadRequested(fn func()) {
	s.onReload = fn
}

// OnShutdownRequested installs the callback invoked when a client sends a
// Shutdown request — the supervisor wires this to the same cancellation
// path SIGTERM triggers.
func (s *Server) OnShutdownRequested(fn func()) {
	s.onShutdown = fn
}

// Serve listens on the configured socket (removing any stale socket file
// left by a prior unclean shutdown) and accepts connections until ctx is
// cancelled, at which point it stops accepting and waits for in-flight
// connections to drain (spec §4.4 "drains in-flight handlers").
func (s *Server) Serve(ctx context.Context) error {
	_ = os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("ipc: failed to listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("ipc: failed to restrict socket permissions: %w", err)
	}
	s.ln = ln

	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
		s.drainAfter(drainGrace)
	}()

	for {
		nc, err := s.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				_ = os.Remove(s.socketPath)
				return nil
			default:
				return fmt.Errorf("ipc: accept failed: %w", err)
			}
		}

		s.trackConn(nc)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrackConn(nc)
			s.serveConn(nc)
		}()
	}
}

// drainAfter force-closes any connection still open after grace, so a
// slow or idle client cannot block daemon shutdown indefinitely.
func (s *Server) drainAfter(grace time.Duration) {
	time.Sleep(grace)
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for nc := range s.conns {
		_ = nc.Close()
	}
}

func (s *Server) trackConn(nc net.Conn) {
	s.connsMu.Lock()
	s.conns[nc] = struct{}{}
	s.connsMu.Unlock()
}

func (s *Server) untrackConn(nc net.Conn) {
	s.connsMu.Lock()
	delete(s.conns, nc)
	s.connsMu.Unlock()
}

func (s *Server) serveConn(nc net.Conn) {
	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)

	c := newConn(nc, s.log, s.dispatch, sub)
	c.run()
}

// dispatch decodes a request's payload according to its Type and invokes
// the corresponding jobmanager operation, building exactly one Response.
func (s *Server) dispatch(req types.Request) types.Response {
	switch req.Type {
	case types.ReqPing:
		return ok(types.KindPong, struct{}{})

	case types.ReqStatus:
		return ok(types.KindStatus, types.StatusData{Sets: s.jobs.Status()})

	case types.ReqBackup:
		var payload types.SetScopedPayload
		if len(req.Payload) > 0 {
			if err := json.Unmarshal(req.Payload, &payload); err != nil {
				return invalidRequest(err)
			}
		}
		if payload.SetName == "" {
			started, failed := s.jobs.TriggerBackupAll()
			return ok(types.KindBackupsTriggered, types.BackupsTriggeredData{Started: started, Failed: failed})
		}
		if err := s.jobs.TriggerBackup(payload.SetName); err != nil {
			return errUnknownOrOther(err, payload.SetName)
		}
		return ok(types.KindBackupStarted, types.BackupStartedData{Set: payload.SetName})

	case types.ReqPrune:
		var payload types.SetScopedPayload
		if len(req.Payload) > 0 {
			if err := json.Unmarshal(req.Payload, &payload); err != nil {
				return invalidRequest(err)
			}
		}
		if payload.SetName == "" {
			succeeded, failed := s.jobs.TriggerPruneAll()
			return ok(types.KindPrunesTriggered, types.PrunesTriggeredData{Succeeded: succeeded, Failed: failed})
		}
		reclaimed, err := s.jobs.TriggerPrune(payload.SetName)
		if err != nil {
			return errUnknownOrOther(err, payload.SetName)
		}
		return ok(types.KindPruneResult, types.PruneResultData{Set: payload.SetName, ReclaimedBytes: reclaimed})

	case types.ReqSnapshots:
		var payload types.SetScopedPayload
		if err := json.Unmarshal(req.Payload, &payload); err != nil {
			return invalidRequest(err)
		}
		snaps, err := s.jobs.Snapshots(payload.SetName, payload.Limit)
		if err != nil {
			return errUnknownOrOther(err, payload.SetName)
		}
		return ok(types.KindSnapshots, types.SnapshotsData{Snapshots: snaps})

	case types.ReqMount:
		var payload types.SetScopedPayload
		if err := json.Unmarshal(req.Payload, &payload); err != nil {
			return invalidRequest(err)
		}
		path, err := s.jobs.Mount(payload.SetName, payload.SnapshotID)
		if err != nil {
			return errResponse(types.CodeMountFailed, err.Error())
		}
		return ok(types.KindMountPath, types.MountPathData{Path: path})

	case types.ReqUnmount:
		var payload types.SetScopedPayload
		if err := json.Unmarshal(req.Payload, &payload); err != nil {
			return invalidRequest(err)
		}
		if err := s.jobs.Unmount(payload.SetName); err != nil {
			if errors.Is(err, jobmanager.ErrNotMounted) {
				return errResponse(types.CodeNotMounted, err.Error())
			}
			return errUnknownOrOther(err, payload.SetName)
		}
		return ok(types.KindOk, struct{}{})

	case types.ReqReloadConfig:
		// The supervisor owns the actual reload (it holds the config path
		// and the Manager.Reconcile call); the IPC layer only needs to
		// signal it, which it does via reloadRequested below.
		s.reloadRequested()
		return ok(types.KindOk, struct{}{})

	case types.ReqShutdown:
		s.shutdownRequested()
		return ok(types.KindOk, struct{}{})

	default:
		return errResponse(types.CodeInvalidRequest, fmt.Sprintf("unknown request type %q", req.Type))
	}
}

func (s *Server) reloadRequested() {
	if s.onReload != nil {
		s.onReload()
	}
}

func (s *Server) shutdownRequested() {
	if s.onShutdown != nil {
		s.onShutdown()
	}
}

func ok(kind types.ResponseKind, data any) types.Response {
	body, _ := json.Marshal(data)
	return types.Response{Ok: true, Data: kind, Body: body}
}

func errResponse(code types.ErrorCode, msg string) types.Response {
	return types.Response{Ok: false, Error: &types.ErrorBody{Code: code, Kind: kindFor(code), Message: msg}}
}

func invalidRequest(err error) types.Response {
	return errResponse(types.CodeInvalidRequest, "malformed payload: "+err.Error())
}

func errUnknownOrOther(err error, set string) types.Response {
	if errors.Is(err, jobmanager.ErrUnknownSet) {
		return errResponse(types.CodeUnknownSet, fmt.Sprintf("no such backup set %q", set))
	}
	if errors.Is(err, jobmanager.ErrNoRetention) {
		return errResponse(types.CodeInvalidRequest, err.Error())
	}
	return errResponse(types.CodeResticError, err.Error())
}

// kindFor maps a wire ErrorCode to the exit-code Kind a CLI client would use
// (spec §7). CodeDaemonBusy and CodeInvalidRequest have no dedicated exit
// code in spec §7's table, so they fall through to KindGeneric.
func kindFor(code types.ErrorCode) types.Kind {
	switch code {
	case types.CodeMountFailed, types.CodeNotMounted:
		return types.KindMount
	case types.CodeResticError, types.CodeBackupFailed:
		return types.KindEngine
	case types.CodeUnknownSet:
		return types.KindConfig
	default:
		return types.KindGeneric
	}
}
