// Package client provides the application-facing surface for driving a debug
// adapter: connect to a byte stream, send requests and await their results,
// subscribe to events, and answer adapter-originated ("reverse") requests.
//
// A Client owns at most one logical connection at a time. All connection
// state — sequence numbers, pending requests, buffered decode bytes, event
// subscriptions, reverse-request handlers — belongs to that connection and is
// discarded on disconnect; a reconnect starts clean.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"mini-dap/loadbalance"
	"mini-dap/message"
	"mini-dap/metric"
	"mini-dap/middleware"
	"mini-dap/registry"
	"mini-dap/transport"
)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics attaches prometheus instrumentation to the connection.
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithMiddleware appends middlewares to the outbound request chain, applied
// in the order given.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(c *Client) { c.middlewares = append(c.middlewares, mws...) }
}

// WithDisconnectHandler registers a hook invoked once per connection when it
// ends, with the reason the read loop stopped.
func WithDisconnectHandler(fn func(error)) Option {
	return func(c *Client) { c.onDisconnect = fn }
}

// Client is a debug adapter client.
type Client struct {
	logger       *slog.Logger
	metrics      *metric.Metrics
	middlewares  []middleware.Middleware
	onDisconnect func(error)

	hub     *eventHub
	reverse *reverseRegistry
	call    middleware.CallFunc

	mu   sync.Mutex
	conn *transport.Conn
}

// New creates a disconnected Client.
func New(opts ...Option) *Client {
	c := &Client{
		logger:  slog.Default(),
		hub:     newEventHub(),
		reverse: newReverseRegistry(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.call = middleware.Chain(c.middlewares...)(c.baseCall)
	return c
}

// Connect attaches the client to an open byte stream. The client owns rwc
// from here on and closes it on Disconnect.
func (c *Client) Connect(rwc io.ReadWriteCloser) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return fmt.Errorf("already connected")
	}

	conn := transport.NewConn(rwc,
		transport.WithHandler(c),
		transport.WithLogger(c.logger),
		transport.WithMetrics(c.metrics),
	)
	c.conn = conn

	go func() {
		err := conn.Err() // blocks until the read loop exits
		c.dropConn(conn)
		if c.onDisconnect != nil {
			c.onDisconnect(err)
		}
	}()
	return nil
}

// Dial connects to an adapter listening on a TCP address.
func (c *Client) Dial(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	return c.Connect(conn)
}

// DialNamed discovers the instances registered for adapterName, picks one
// with the balancer, and attaches to it.
func (c *Client) DialNamed(adapterName string, reg registry.Registry, bal loadbalance.Balancer) error {
	instances, err := reg.Discover(adapterName)
	if err != nil {
		return err
	}
	instance, err := bal.Pick(instances)
	if err != nil {
		return fmt.Errorf("pick instance for %q: %w", adapterName, err)
	}

	c.logger.Debug("attaching to discovered adapter",
		"adapter", adapterName, "addr", instance.Addr, "balancer", bal.Name())
	return c.Dial(instance.Addr)
}

// Launch starts the adapter as a child process and connects over its stdio.
func (c *Client) Launch(name string, args ...string) error {
	t, err := transport.StartStdio(name, args...)
	if err != nil {
		return err
	}
	if err := c.Connect(t); err != nil {
		t.Close()
		return err
	}
	return nil
}

// Disconnect tears down the connection, rejects every pending request, and
// clears all event subscriptions and reverse-request handlers. Disconnecting
// while not connected is a no-op.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	<-conn.Done()
	c.dropConn(conn)
	return err
}

// Connected reports whether a live connection exists.
func (c *Client) Connected() bool {
	return c.currentConn() != nil
}

// SendRequest sends a command through the middleware chain and blocks until
// the adapter answers, the context is done, or the connection drops. A
// failure response surfaces as a *transport.AdapterError.
func (c *Client) SendRequest(ctx context.Context, command string, args any) (json.RawMessage, error) {
	return c.call(ctx, command, args)
}

// SendResponse answers an inbound reverse request with a success response.
func (c *Client) SendResponse(req *message.Request, body any) error {
	conn := c.currentConn()
	if conn == nil {
		return transport.ErrNotConnected
	}
	return conn.SendResponse(req, body)
}

// SendErrorResponse answers an inbound reverse request with a failure
// response.
func (c *Client) SendErrorResponse(req *message.Request, msg string, detail any) error {
	conn := c.currentConn()
	if conn == nil {
		return transport.ErrNotConnected
	}
	return conn.SendErrorResponse(req, msg, detail)
}

// OnEvent subscribes cb to every event with the given name. Callbacks for one
// event run in registration order, synchronously with the inbound dispatch of
// that event.
func (c *Client) OnEvent(event string, cb EventCallback) *EventSubscription {
	return c.hub.subscribe(event, cb, false)
}

// OnEventOnce subscribes cb for a single delivery; the subscription removes
// itself when the event first fires.
func (c *Client) OnEventOnce(event string, cb EventCallback) *EventSubscription {
	return c.hub.subscribe(event, cb, true)
}

// OnReverseRequest registers the handler for an adapter-originated command,
// replacing any previous handler for that command. An inbound request with no
// registered handler is logged and left unanswered — the adapter observes its
// own timeout, not a rejection.
func (c *Client) OnReverseRequest(command string, h ReverseRequestHandler) *ReverseSubscription {
	return c.reverse.register(command, h)
}

// HandleEvent implements transport.Handler. Runs on the dispatch path, so
// fan-out for one event finishes before the next inbound message is
// processed.
func (c *Client) HandleEvent(ev *message.Event) {
	c.hub.publish(ev.Event, ev.Body)
}

// HandleReverseRequest implements transport.Handler. The handler runs in its
// own goroutine so a slow reverse request cannot stall event delivery.
func (c *Client) HandleReverseRequest(req *message.Request) {
	handler := c.reverse.lookup(req.Command)
	if handler == nil {
		c.logger.Warn("no handler for reverse request, leaving it unanswered", "command", req.Command)
		return
	}
	go c.serveReverse(req, handler)
}

func (c *Client) serveReverse(req *message.Request, handler ReverseRequestHandler) {
	body, err := handler(context.Background(), req.Arguments)

	var sendErr error
	if err != nil {
		sendErr = c.SendErrorResponse(req, err.Error(), nil)
	} else {
		sendErr = c.SendResponse(req, body)
	}
	if sendErr != nil {
		c.logger.Warn("failed to answer reverse request", "command", req.Command, "err", sendErr)
	}
}

// baseCall is the innermost CallFunc under the middleware chain.
func (c *Client) baseCall(ctx context.Context, command string, args any) (json.RawMessage, error) {
	conn := c.currentConn()
	if conn == nil {
		return nil, transport.ErrNotConnected
	}
	return conn.Call(ctx, command, args)
}

func (c *Client) currentConn() *transport.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// dropConn forgets conn and clears connection-scoped registries. Guarded by
// identity so a stale watcher cannot clear state belonging to a reconnect.
func (c *Client) dropConn(conn *transport.Conn) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.mu.Unlock()

	c.hub.clear()
	c.reverse.clear()
}
