// Package transport implements the connection core for a debug adapter
// session: sequence allocation, request/response correlation, and the single
// inbound dispatch funnel.
//
// Conn multiplexes many concurrent requests over one byte stream. Each request
// gets a unique sequence number, and a background goroutine (readLoop)
// continuously decodes inbound messages and routes each one by kind:
//
//	caller-1 ──Call(seq=1)──┐
//	caller-2 ──Call(seq=2)──┼──→ single byte stream ──→ adapter
//	caller-3 ──Call(seq=3)──┘
//
//	readLoop:  ←── response(request_seq=2) → pending[2] chan → caller-2 wakes up
//	           ←── event("stopped")        → Handler.HandleEvent
//	           ←── request("runInTerminal")→ Handler.HandleReverseRequest
//
// The adapter may answer out of order; correlation is purely by sequence id.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mini-dap/message"
	"mini-dap/metric"
	"mini-dap/protocol"
)

var (
	// ErrNotConnected is returned by send operations after the connection has
	// been closed. Sends fail fast and never queue.
	ErrNotConnected = errors.New("not connected to adapter")

	// ErrConnectionClosed rejects pending requests when the connection is torn
	// down before their response arrives.
	ErrConnectionClosed = errors.New("connection closed")
)

// AdapterError is the typed failure for a response with success=false. It
// carries the adapter-supplied message and, when present, the structured
// error detail from the response.
type AdapterError struct {
	Command string
	Message string
	Detail  json.RawMessage
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter rejected %q: %s", e.Command, e.Message)
}

// Handler receives the inbound messages that are not responses to our own
// requests. HandleEvent is invoked synchronously from the dispatch loop, so
// event delivery never reorders relative to the stream; HandleReverseRequest
// implementations decide their own scheduling.
type Handler interface {
	HandleEvent(ev *message.Event)
	HandleReverseRequest(req *message.Request)
}

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) { c.logger = logger }
}

// WithMetrics attaches prometheus instrumentation. Nil disables it.
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Conn) { c.metrics = m }
}

// WithHandler sets the receiver for events and reverse requests. Without one,
// both are logged and dropped.
func WithHandler(h Handler) Option {
	return func(c *Conn) { c.handler = h }
}

// Conn manages a single multiplexed connection to a debug adapter.
type Conn struct {
	rwc     io.ReadWriteCloser
	dec     *protocol.Decoder
	handler Handler
	logger  *slog.Logger
	metrics *metric.Metrics

	seq     atomic.Int64 // outbound sequence numbers, first allocation yields 1
	pending sync.Map     // map[int64]chan *message.Response — one buffered channel per in-flight request
	sending sync.Mutex   // serializes frame writes; interleaved writes would corrupt the stream

	closed   atomic.Bool
	closeErr error
	done     chan struct{}
	teardown sync.Once
}

// NewConn wraps an open byte stream and starts the read loop. The Conn owns
// rwc and closes it on Close or read failure.
func NewConn(rwc io.ReadWriteCloser, opts ...Option) *Conn {
	c := &Conn{
		rwc:    rwc,
		dec:    protocol.NewDecoder(),
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c
}

// Send serializes and transmits one request, registering a pending entry for
// its response. It returns the allocated sequence number and a channel that
// delivers the matching response exactly once; the channel is closed without a
// value if the connection tears down first.
func (c *Conn) Send(command string, args any) (int64, <-chan *message.Response, error) {
	if c.closed.Load() {
		return 0, nil, ErrNotConnected
	}

	seq := c.seq.Add(1)
	req, err := message.NewRequest(seq, command, args)
	if err != nil {
		return 0, nil, err
	}

	// Register before writing so a fast response cannot race the table.
	ch := make(chan *message.Response, 1)
	c.pending.Store(seq, ch)

	if err := c.write(message.TypeRequest, req); err != nil {
		c.pending.Delete(seq)
		return 0, nil, err
	}
	return seq, ch, nil
}

// Call sends a request and blocks until the matching response arrives, the
// context is done, or the connection closes. A success response yields the
// response body; a failure response yields an *AdapterError.
func (c *Conn) Call(ctx context.Context, command string, args any) (json.RawMessage, error) {
	start := time.Now()

	seq, ch, err := c.Send(command, args)
	if err != nil {
		return nil, err
	}

	c.metrics.RequestStarted()
	defer c.metrics.RequestFinished(start)

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrConnectionClosed
		}
		if !resp.Success {
			return nil, &AdapterError{Command: command, Message: resp.Message, Detail: resp.Error}
		}
		return resp.Body, nil
	case <-ctx.Done():
		// Drop the pending entry; a late response becomes an unmatched
		// response and is discarded by the dispatcher.
		c.pending.Delete(seq)
		return nil, ctx.Err()
	}
}

// SendResponse answers an inbound request with a success response.
func (c *Conn) SendResponse(req *message.Request, body any) error {
	if c.closed.Load() {
		return ErrNotConnected
	}
	resp, err := message.NewResponse(c.seq.Add(1), req, body)
	if err != nil {
		return err
	}
	return c.write(message.TypeResponse, resp)
}

// SendErrorResponse answers an inbound request with a failure response.
func (c *Conn) SendErrorResponse(req *message.Request, msg string, detail any) error {
	if c.closed.Load() {
		return ErrNotConnected
	}
	resp, err := message.NewErrorResponse(c.seq.Add(1), req, msg, detail)
	if err != nil {
		return err
	}
	return c.write(message.TypeResponse, resp)
}

// Close tears down the connection: the underlying stream is closed, every
// pending request is rejected, and buffered decode state is discarded.
// Safe to call more than once.
func (c *Conn) Close() error {
	err := c.rwc.Close()
	c.shutdown(ErrConnectionClosed)
	return err
}

// Done is closed when the read loop has exited and all pending requests have
// been rejected.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection ended. Valid after Done is closed.
func (c *Conn) Err() error {
	<-c.done
	return c.closeErr
}

// write marshals v, frames it, and writes the frame atomically.
func (c *Conn) write(kind string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.sending.Lock()
	defer c.sending.Unlock()
	if c.closed.Load() {
		return ErrNotConnected
	}
	if err := protocol.Encode(c.rwc, body); err != nil {
		return err
	}
	c.metrics.ObserveSent(kind)
	return nil
}

// readLoop is the single inbound funnel: it reads byte chunks, feeds the
// framing decoder, and dispatches every reassembled message in stream order.
// Runs in its own goroutine until the stream errors or the Conn is closed.
func (c *Conn) readLoop() {
	buf := make([]byte, 8192)
	for {
		n, err := c.rwc.Read(buf)
		if n > 0 {
			bodies, ferr := c.dec.Feed(buf[:n])
			if ferr != nil {
				// Contained: the decoder already dropped the bad header block.
				c.logger.Warn("framing error", "err", ferr)
				c.metrics.ObserveFramingError()
			}
			for _, body := range bodies {
				c.dispatch(body)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || c.closed.Load() {
				c.shutdown(ErrConnectionClosed)
			} else {
				c.shutdown(err)
			}
			return
		}
	}
}

// dispatch classifies one reassembled message body and routes it. Decode
// failures and unknown shapes are logged and dropped, never fatal.
func (c *Conn) dispatch(body []byte) {
	kind := message.Classify(body)
	c.metrics.ObserveReceived(kind.String())

	switch kind {
	case message.KindResponse:
		var resp message.Response
		if err := json.Unmarshal(body, &resp); err != nil {
			c.logger.Warn("dropping undecodable response", "err", err)
			c.metrics.ObserveDecodeError()
			return
		}
		c.resolve(&resp)

	case message.KindEvent:
		var ev message.Event
		if err := json.Unmarshal(body, &ev); err != nil {
			c.logger.Warn("dropping undecodable event", "err", err)
			c.metrics.ObserveDecodeError()
			return
		}
		if c.handler == nil {
			c.logger.Debug("no handler for event", "event", ev.Event)
			return
		}
		c.handler.HandleEvent(&ev)

	case message.KindRequest:
		var req message.Request
		if err := json.Unmarshal(body, &req); err != nil {
			c.logger.Warn("dropping undecodable request", "err", err)
			c.metrics.ObserveDecodeError()
			return
		}
		if c.handler == nil {
			c.logger.Warn("no handler for reverse request", "command", req.Command)
			return
		}
		c.handler.HandleReverseRequest(&req)

	default:
		c.logger.Warn("dropping unclassifiable message", "body", string(truncate(body, 256)))
	}
}

// resolve delivers a response to its pending caller. Removing the entry before
// delivery makes double resolution impossible: a duplicate response finds no
// entry and is discarded here.
func (c *Conn) resolve(resp *message.Response) {
	entry, ok := c.pending.LoadAndDelete(resp.RequestSeq)
	if !ok {
		c.logger.Warn("dropping response with no pending request",
			"request_seq", resp.RequestSeq, "command", resp.Command)
		return
	}
	entry.(chan *message.Response) <- resp // buffered, never blocks
}

// shutdown rejects all pending requests and marks the connection dead.
// Runs at most once regardless of how many paths reach it.
func (c *Conn) shutdown(reason error) {
	c.teardown.Do(func() {
		c.closed.Store(true)
		c.closeErr = reason
		c.pending.Range(func(key, value any) bool {
			close(value.(chan *message.Response))
			c.pending.Delete(key)
			return true
		})
		c.dec.Reset()
		close(c.done)
	})
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
