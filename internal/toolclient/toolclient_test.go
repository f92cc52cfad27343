package toolclient

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sparesparrow/mia-sub000/internal/transport"
	"github.com/sparesparrow/mia-sub000/internal/wire"
)

// fakeTransport is a scriptable bidirectional transport.Transport used to
// drive the client's state machine without real sockets.
type fakeTransport struct {
	mu        sync.Mutex
	connectErr error
	closed    chan struct{}
	closeOnce sync.Once

	inbox  chan transport.Frame
	onSend func(frame transport.Frame) error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		closed: make(chan struct{}),
		inbox:  make(chan transport.Frame, 16),
	}
}

func (f *fakeTransport) Variant() transport.Variant { return transport.VariantBidirectional }

func (f *fakeTransport) Connect(ctx context.Context) error {
	return f.connectErr
}

func (f *fakeTransport) Send(ctx context.Context, frame transport.Frame) (transport.Frame, error) {
	f.mu.Lock()
	onSend := f.onSend
	f.mu.Unlock()
	if onSend != nil {
		return nil, onSend(frame)
	}
	return nil, nil
}

func (f *fakeTransport) Receive(ctx context.Context) (transport.Frame, error) {
	select {
	case <-f.closed:
		return nil, transport.ErrClosed
	case frame := <-f.inbox:
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) deliver(resp wire.Response) {
	data, _ := json.Marshal(resp)
	f.inbox <- data
}

// autoInitialize makes Send reply to the initialize call inline so
// connectOnce succeeds, and otherwise echoes nothing (replies are delivered
// explicitly by the test via deliver).
func autoInitialize(f *fakeTransport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSend = func(frame transport.Frame) error {
		var req wire.Request
		if err := json.Unmarshal(frame, &req); err != nil {
			return err
		}
		if req.Method == wire.MethodInitialize {
			res, _ := json.Marshal(wire.InitializeResult{ProtocolVersion: wire.ProtocolVersion})
			data, _ := json.Marshal(wire.Response{JSONRPC: wire.ProtocolVersion, ID: req.ID, Result: res})
			f.inbox <- data
		}
		return nil
	}
}

func TestConnectReachesConnectedState(t *testing.T) {
	ft := newFakeTransport()
	autoInitialize(ft)

	c := New(func() transport.Transport { return ft }, Options{}, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	if c.State() != StateConnected {
		t.Fatalf("state = %v, want %v", c.State(), StateConnected)
	}
}

func TestCorrelationIDDemultiplexing(t *testing.T) {
	ft := newFakeTransport()

	idOf := make(map[string]int64)
	var mu sync.Mutex
	ft.mu.Lock()
	ft.onSend = func(frame transport.Frame) error {
		var req wire.Request
		if err := json.Unmarshal(frame, &req); err != nil {
			return err
		}
		if req.Method == wire.MethodInitialize {
			res, _ := json.Marshal(wire.InitializeResult{})
			data, _ := json.Marshal(wire.Response{JSONRPC: wire.ProtocolVersion, ID: req.ID, Result: res})
			ft.inbox <- data
			return nil
		}
		var params wire.CallToolParams
		json.Unmarshal(req.Params, &params)
		id, _ := wire.CorrelationID(req.ID)
		mu.Lock()
		idOf[params.Name] = id
		mu.Unlock()
		return nil
	}
	ft.mu.Unlock()

	c := New(func() transport.Transport { return ft }, Options{}, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	result1 := make(chan string, 1)
	result2 := make(chan string, 1)
	go func() {
		text, _ := c.CallTool(context.Background(), "first", nil)
		result1 <- text
	}()
	go func() {
		text, _ := c.CallTool(context.Background(), "second", nil)
		result2 <- text
	}()

	// Wait for both sends to register their correlation ids, then reply
	// out of order to prove demultiplexing is id-driven, not order-driven.
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		ready := len(idOf) == 2
		mu.Unlock()
		if ready {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for both calls to send")
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	firstID, secondID := idOf["first"], idOf["second"]
	mu.Unlock()

	deliverResult := func(id int64, text string) {
		res, _ := json.Marshal(wire.CallToolResult{Content: []wire.ContentItem{{Type: "text", Text: text}}})
		ft.deliver(wire.Response{JSONRPC: wire.ProtocolVersion, ID: id, Result: res})
	}
	deliverResult(secondID, "second-reply")
	deliverResult(firstID, "first-reply")

	select {
	case text := <-result1:
		if text != "first-reply" {
			t.Errorf("first call got %q, want first-reply", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first call timed out")
	}
	select {
	case text := <-result2:
		if text != "second-reply" {
			t.Errorf("second call got %q, want second-reply", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second call timed out")
	}
}

func TestReconnectAfterConnectionLost(t *testing.T) {
	var attempts atomic.Int64
	factory := func() transport.Transport {
		ft := newFakeTransport()
		autoInitialize(ft)
		attempts.Add(1)
		return ft
	}

	c := New(factory, Options{ReconnectDelay: 10 * time.Millisecond, MaxReconnectAttempts: 3}, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	if c.State() != StateConnected {
		t.Fatalf("state = %v, want %v", c.State(), StateConnected)
	}

	// Force the current transport closed to simulate a dropped connection.
	c.currentTransport().Close()

	deadline := time.After(2 * time.Second)
	for c.State() != StateConnected {
		select {
		case <-deadline:
			t.Fatalf("never reconnected, state = %v", c.State())
		case <-time.After(20 * time.Millisecond):
		}
	}

	if attempts.Load() < 2 {
		t.Errorf("attempts = %d, want at least 2 (initial + reconnect)", attempts.Load())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	ft := newFakeTransport()
	autoInitialize(ft)

	c := New(func() transport.Transport { return ft }, Options{}, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
