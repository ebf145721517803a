package ipc

import (
	"bufio"
	"encoding/json"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/backutil/backutil/internal/broadcast"
	"github.com/backutil/backutil/internal/types"
)

// writeWait bounds how long a single outbound frame write (reply or event)
// may take before the connection is considered stalled.
const writeWait = 10 * time.Second

// sendBufferSize is the per-connection outbound queue depth, matching the
// WebSocket client's send buffer this pump structure is adapted from.
const sendBufferSize = 32

// conn is one accepted Unix-socket client. Grounded on
// arkeep-io-arkeep/server/internal/websocket/client.go's readPump/writePump
// split, translated from a WebSocket connection to a raw net.Conn framed
// with newline-delimited JSON: readPump decodes Requests and dispatches
// them to the handler, writePump is the sole writer to the wire, serving
// both synchronous Responses and the connection's broadcast Subscriber.
//
// Responses and events are queued on two separate channels rather than one:
// replies carry the hard invariant that exactly one is emitted per request,
// so resp cannot drop a reply the way events may drop a stale broadcast for
// a slow consumer (spec §8).
type conn struct {
	nc  net.Conn
	log *zap.Logger

	handler func(types.Request) types.Response
	sub     *broadcast.Subscriber

	resp   chan types.Frame
	events chan types.Frame
}

func newConn(nc net.Conn, log *zap.Logger, handler func(types.Request) types.Response, sub *broadcast.Subscriber) *conn {
	return &conn{
		nc:      nc,
		log:     log,
		handler: handler,
		sub:     sub,
		resp:    make(chan types.Frame, sendBufferSize),
		events:  make(chan types.Frame, sendBufferSize),
	}
}

// run blocks until the connection closes, dispatching writePump to its own
// goroutine and the subscriber-to-event pump to another, while readPump
// (the request loop) runs on the calling goroutine. The connection is
// closed only after writePump has returned, so replies it drains on the way
// out still reach the client.
func (c *conn) run() {
	done := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		c.writePump(done)
		close(writerDone)
	}()
	go c.eventPump(done)

	c.readPump()
	close(done)
	<-writerDone
	_ = c.nc.Close()
}

// readPump decodes one Request per line and enqueues exactly one Response
// per request (spec §8 "∀ IPC request X, exactly one synchronous reply is
// emitted").
func (c *conn) readPump() {
	scanner := bufio.NewScanner(c.nc)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req types.Request
		if err := json.Unmarshal(line, &req); err != nil {
			c.enqueueResponse(types.Response{
				Ok:    false,
				Error: &types.ErrorBody{Code: types.CodeInvalidRequest, Message: "malformed request: " + err.Error()},
			})
			continue
		}

		resp := c.handler(req)
		c.enqueueResponse(resp)

		if req.Type == types.ReqShutdown {
			return
		}
	}
}

// eventPump forwards the connection's broadcast subscription onto events
// until either the subscription closes or the connection itself is done. A
// full events queue drops the event for this connection rather than
// blocking — unlike resp, events have no delivery guarantee.
func (c *conn) eventPump(done <-chan struct{}) {
	for {
		select {
		case ev, ok := <-c.sub.Events:
			if !ok {
				return
			}
			body, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			select {
			case c.events <- types.Frame{Kind: types.FrameEvent, Body: body}:
			case <-done:
				return
			default:
				c.log.Warn("ipc: dropped event, connection event queue full")
			}
		case <-done:
			return
		}
	}
}

// writePump is the sole writer to the wire, serialising both Responses and
// Events — only writePump ever touches the connection. resp is always
// drained before events so a pipelined reply never waits behind a burst of
// broadcast traffic, and resp is drained one final time after done fires so
// a reply enqueued just before readPump returned is still written.
func (c *conn) writePump(done <-chan struct{}) {
	w := bufio.NewWriter(c.nc)
	for {
		select {
		case frame := <-c.resp:
			if !c.writeFrame(w, frame) {
				return
			}
		default:
			select {
			case frame := <-c.resp:
				if !c.writeFrame(w, frame) {
					return
				}
			case frame := <-c.events:
				if !c.writeFrame(w, frame) {
					return
				}
			case <-done:
				c.drainResponses(w)
				return
			}
		}
	}
}

// drainResponses flushes any response already queued at the moment the
// connection was told to stop, so a reply to the request that caused the
// connection to close (e.g. a Shutdown request) is never silently lost.
func (c *conn) drainResponses(w *bufio.Writer) {
	for {
		select {
		case frame := <-c.resp:
			if !c.writeFrame(w, frame) {
				return
			}
		default:
			return
		}
	}
}

func (c *conn) writeFrame(w *bufio.Writer, frame types.Frame) bool {
	if err := c.nc.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return false
	}
	line, err := json.Marshal(frame)
	if err != nil {
		return true
	}
	line = append(line, '\n')
	if _, err := w.Write(line); err != nil {
		c.log.Warn("ipc: write failed, closing connection", zap.Error(err))
		return false
	}
	if err := w.Flush(); err != nil {
		return false
	}
	return true
}

// enqueueResponse queues resp for delivery. Unlike events, a reply may
// never be silently dropped (spec §8); if the response queue is still full
// after writeWait — meaning writePump itself is stalled — the connection is
// closed instead of losing the one reply the client is waiting on.
func (c *conn) enqueueResponse(resp types.Response) {
	body, err := json.Marshal(resp)
	if err != nil {
		return
	}
	frame := types.Frame{Kind: types.FrameResponse, Body: body}
	select {
	case c.resp <- frame:
	case <-time.After(writeWait):
		c.log.Warn("ipc: response queue stalled, closing connection rather than dropping a reply")
		_ = c.nc.Close()
	}
}
