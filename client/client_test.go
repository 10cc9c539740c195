package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-dap/loadbalance"
	"mini-dap/message"
	"mini-dap/middleware"
	"mini-dap/protocol"
	"mini-dap/registry"
	"mini-dap/transport"
)

// adapterEnd drives the far side of a net.Pipe like a debug adapter would.
type adapterEnd struct {
	t    *testing.T
	conn net.Conn
	msgs chan []byte
}

func connectTestClient(t *testing.T, c *Client) *adapterEnd {
	t.Helper()
	clientSide, adapterSide := net.Pipe()
	require.NoError(t, c.Connect(clientSide))
	t.Cleanup(func() { c.Disconnect() })

	a := &adapterEnd{t: t, conn: adapterSide, msgs: make(chan []byte, 64)}
	go a.pump()
	return a
}

func (a *adapterEnd) pump() {
	dec := protocol.NewDecoder()
	buf := make([]byte, 4096)
	for {
		n, err := a.conn.Read(buf)
		if n > 0 {
			bodies, _ := dec.Feed(buf[:n])
			for _, b := range bodies {
				a.msgs <- b
			}
		}
		if err != nil {
			close(a.msgs)
			return
		}
	}
}

func (a *adapterEnd) next() []byte {
	a.t.Helper()
	select {
	case msg, ok := <-a.msgs:
		require.True(a.t, ok, "adapter stream closed while awaiting a message")
		return msg
	case <-time.After(2 * time.Second):
		a.t.Fatal("timed out waiting for an outbound message")
		return nil
	}
}

// expectSilence asserts no outbound message arrives within the window.
func (a *adapterEnd) expectSilence(window time.Duration) {
	a.t.Helper()
	select {
	case msg := <-a.msgs:
		a.t.Fatalf("expected no outbound message, got %s", msg)
	case <-time.After(window):
	}
}

func (a *adapterEnd) inject(raw string) {
	a.t.Helper()
	require.NoError(a.t, a.conn.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err := a.conn.Write(protocol.EncodeBytes([]byte(raw)))
	require.NoError(a.t, err)
}

func TestSendRequestRoundTrip(t *testing.T) {
	c := New()
	adapter := connectTestClient(t, c)

	done := make(chan struct{})
	var body json.RawMessage
	var callErr error
	go func() {
		defer close(done)
		body, callErr = c.SendRequest(context.Background(), "initialize", map[string]string{"clientID": "test"})
	}()

	raw := adapter.next()
	var req message.Request
	require.NoError(t, json.Unmarshal(raw, &req))
	assert.Equal(t, "initialize", req.Command)
	assert.JSONEq(t, `{"clientID":"test"}`, string(req.Arguments))

	adapter.inject(fmt.Sprintf(`{"seq":1,"type":"response","request_seq":%d,"success":true,"command":"initialize","body":{"supportsConfigurationDoneRequest":true}}`, req.Seq))

	<-done
	require.NoError(t, callErr)
	assert.JSONEq(t, `{"supportsConfigurationDoneRequest":true}`, string(body))
}

func TestSendRequestNotConnected(t *testing.T) {
	c := New()
	_, err := c.SendRequest(context.Background(), "threads", nil)
	assert.ErrorIs(t, err, transport.ErrNotConnected)
	assert.False(t, c.Connected())
}

func TestConnectTwiceFails(t *testing.T) {
	c := New()
	connectTestClient(t, c)

	left, _ := net.Pipe()
	defer left.Close()
	assert.Error(t, c.Connect(left))
}

func TestEventsReachSubscribers(t *testing.T) {
	c := New()
	adapter := connectTestClient(t, c)

	stopped := make(chan json.RawMessage, 1)
	c.OnEvent("stopped", func(body json.RawMessage) { stopped <- body })

	adapter.inject(`{"seq":1,"type":"event","event":"stopped","body":{"reason":"breakpoint"}}`)

	select {
	case body := <-stopped:
		assert.JSONEq(t, `{"reason":"breakpoint"}`, string(body))
	case <-time.After(2 * time.Second):
		t.Fatal("event never delivered")
	}
}

func TestReverseRequestRoundTrip(t *testing.T) {
	c := New()
	adapter := connectTestClient(t, c)

	c.OnReverseRequest("runInTerminal", func(ctx context.Context, args json.RawMessage) (any, error) {
		return map[string]int{"processId": 123}, nil
	})

	adapter.inject(`{"seq":41,"type":"request","command":"runInTerminal","arguments":{"kind":"integrated"}}`)

	raw := adapter.next()
	require.Equal(t, message.KindResponse, message.Classify(raw))
	var resp message.Response
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, int64(41), resp.RequestSeq)
	assert.Equal(t, "runInTerminal", resp.Command)
	assert.JSONEq(t, `{"processId":123}`, string(resp.Body))
}

func TestReverseRequestHandlerFailure(t *testing.T) {
	c := New()
	adapter := connectTestClient(t, c)

	c.OnReverseRequest("startDebugging", func(ctx context.Context, args json.RawMessage) (any, error) {
		return nil, errors.New("no free debug ports")
	})

	adapter.inject(`{"seq":7,"type":"request","command":"startDebugging"}`)

	var resp message.Response
	require.NoError(t, json.Unmarshal(adapter.next(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, int64(7), resp.RequestSeq)
	assert.Equal(t, "no free debug ports", resp.Message)
}

// An inbound request for an unregistered command is left unanswered: the
// adapter sees silence, not a rejection.
func TestUnhandledReverseRequestStaysSilent(t *testing.T) {
	c := New()
	adapter := connectTestClient(t, c)

	adapter.inject(`{"seq":9,"type":"request","command":"unknownCommand"}`)
	adapter.expectSilence(150 * time.Millisecond)
}

func TestReverseRegistrationReplaces(t *testing.T) {
	c := New()
	adapter := connectTestClient(t, c)

	first := c.OnReverseRequest("runInTerminal", func(ctx context.Context, args json.RawMessage) (any, error) {
		return map[string]string{"handler": "first"}, nil
	})
	c.OnReverseRequest("runInTerminal", func(ctx context.Context, args json.RawMessage) (any, error) {
		return map[string]string{"handler": "second"}, nil
	})

	// A stale unsubscribe must not clobber the newer registration.
	first.Unsubscribe()

	adapter.inject(`{"seq":1,"type":"request","command":"runInTerminal"}`)

	var resp message.Response
	require.NoError(t, json.Unmarshal(adapter.next(), &resp))
	assert.JSONEq(t, `{"handler":"second"}`, string(resp.Body))
}

func TestReverseUnsubscribeRemovesHandler(t *testing.T) {
	c := New()
	adapter := connectTestClient(t, c)

	sub := c.OnReverseRequest("runInTerminal", func(ctx context.Context, args json.RawMessage) (any, error) {
		return nil, nil
	})
	sub.Unsubscribe()

	adapter.inject(`{"seq":1,"type":"request","command":"runInTerminal"}`)
	adapter.expectSilence(150 * time.Millisecond)
}

func TestDisconnectClearsConnectionState(t *testing.T) {
	c := New()
	adapter := connectTestClient(t, c)

	var eventCalls int
	c.OnEvent("stopped", func(json.RawMessage) { eventCalls++ })
	c.OnReverseRequest("runInTerminal", func(ctx context.Context, args json.RawMessage) (any, error) {
		return nil, nil
	})

	require.NoError(t, c.Disconnect())
	assert.False(t, c.Connected())

	// Reconnect: old subscriptions and handlers must not carry over.
	adapter = connectTestClient(t, c)
	adapter.inject(`{"seq":1,"type":"event","event":"stopped"}`)
	adapter.inject(`{"seq":2,"type":"request","command":"runInTerminal"}`)
	adapter.expectSilence(150 * time.Millisecond)
	assert.Zero(t, eventCalls)
}

func TestDisconnectWhileNotConnected(t *testing.T) {
	c := New()
	assert.NoError(t, c.Disconnect())
}

func TestDisconnectHandlerFires(t *testing.T) {
	disconnected := make(chan error, 1)
	c := New(WithDisconnectHandler(func(err error) { disconnected <- err }))
	adapter := connectTestClient(t, c)

	adapter.conn.Close() // peer drops the stream

	select {
	case err := <-disconnected:
		assert.ErrorIs(t, err, transport.ErrConnectionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect handler never fired")
	}
}

func TestMiddlewareWrapsSendRequest(t *testing.T) {
	var seen []string
	tag := middleware.Middleware(func(next middleware.CallFunc) middleware.CallFunc {
		return func(ctx context.Context, command string, args any) (json.RawMessage, error) {
			seen = append(seen, command)
			return next(ctx, command, args)
		}
	})

	c := New(WithMiddleware(tag))
	adapter := connectTestClient(t, c)

	done := make(chan error, 1)
	go func() {
		_, err := c.SendRequest(context.Background(), "threads", nil)
		done <- err
	}()

	var req message.Request
	require.NoError(t, json.Unmarshal(adapter.next(), &req))
	adapter.inject(fmt.Sprintf(`{"seq":1,"type":"response","request_seq":%d,"success":true,"command":"threads"}`, req.Seq))

	require.NoError(t, <-done)
	assert.Equal(t, []string{"threads"}, seen)
}

func TestDialNamed(t *testing.T) {
	// A minimal TCP adapter that answers every request with an empty success.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		dec := protocol.NewDecoder()
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			bodies, _ := dec.Feed(buf[:n])
			for _, raw := range bodies {
				var req message.Request
				if json.Unmarshal(raw, &req) != nil {
					continue
				}
				resp, _ := message.NewResponse(1, &req, nil)
				out, _ := json.Marshal(resp)
				conn.Write(protocol.EncodeBytes(out))
			}
		}
	}()

	reg := registry.NewStaticRegistry()
	require.NoError(t, reg.Register("fake", registry.AdapterInstance{Addr: ln.Addr().String()}, 0))

	c := New()
	require.NoError(t, c.DialNamed("fake", reg, &loadbalance.RoundRobinBalancer{}))
	defer c.Disconnect()

	_, err = c.SendRequest(context.Background(), "initialize", nil)
	assert.NoError(t, err)
}

func TestDialNamedNoInstances(t *testing.T) {
	c := New()
	err := c.DialNamed("ghost", registry.NewStaticRegistry(), &loadbalance.RoundRobinBalancer{})
	assert.Error(t, err)
}
