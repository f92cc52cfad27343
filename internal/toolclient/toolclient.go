// Package toolclient implements the orchestrator-side counterpart of
// toolserver: a reconnecting JSON-RPC client that demultiplexes replies by
// correlation id and keeps a bidirectional connection alive with a
// heartbeat.
package toolclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/sparesparrow/mia-sub000/internal/backoff"
	"github.com/sparesparrow/mia-sub000/internal/observability"
	"github.com/sparesparrow/mia-sub000/internal/transport"
	"github.com/sparesparrow/mia-sub000/internal/wire"
)

// State is the connection state machine's current phase.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Options configures a Client's timeouts and reconnect behavior.
type Options struct {
	ClientName    string
	ClientVersion string

	// ServiceName identifies the downstream service this client talks to,
	// used only to label trace spans.
	ServiceName string

	CallTimeout time.Duration

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	ReconnectDelay        time.Duration
	MaxReconnectAttempts  int
	BackoffPolicy         *backoff.BackoffPolicy
	MaxConsecutiveRecvErr int

	// Tracer, if set, wraps every CallTool invocation in a client span. Nil
	// is treated as an absent tracer, not an error.
	Tracer *observability.Tracer
}

func (o Options) withDefaults() Options {
	if o.ClientName == "" {
		o.ClientName = "orchestrator"
	}
	if o.ClientVersion == "" {
		o.ClientVersion = "0.0.0"
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 30 * time.Second
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.HeartbeatTimeout <= 0 {
		o.HeartbeatTimeout = 10 * time.Second
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = 5 * time.Second
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = 3
	}
	if o.MaxConsecutiveRecvErr <= 0 {
		o.MaxConsecutiveRecvErr = 5
	}
	return o
}

// Client is a Tool Client: it owns the Disconnected -> Connecting ->
// Connected state machine for one module connection, a Pending Request
// Table for bidirectional transports, and the background loops that keep
// the connection alive.
type Client struct {
	factory transport.Factory
	opts    Options
	logger  *slog.Logger

	nextID atomic.Int64

	stateMu   sync.Mutex
	state     State
	transport transport.Transport

	pendingMu sync.Mutex
	pending   map[int64]chan *wire.Response

	connMu     sync.Mutex
	connCancel context.CancelFunc

	masterCtx    context.Context
	masterCancel context.CancelFunc

	wg      sync.WaitGroup
	closing atomic.Bool
}

// New creates a Client that dials connections via factory. factory must
// return a fresh, unconnected transport.Transport on every call so
// reconnects get a clean connection.
func New(factory transport.Factory, opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		factory: factory,
		opts:    opts.withDefaults(),
		logger:  logger.With("component", "toolclient"),
		state:   StateDisconnected,
		pending: make(map[int64]chan *wire.Response),
	}
}

// State returns the client's current connection phase.
func (c *Client) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

func (c *Client) currentTransport() transport.Transport {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.transport
}

// Connect dials the first connection, runs initialize, and starts the
// background receive, heartbeat, and reconnect loops.
func (c *Client) Connect(ctx context.Context) error {
	c.masterCtx, c.masterCancel = context.WithCancel(context.Background())

	if err := c.connectOnce(ctx); err != nil {
		c.masterCancel()
		return err
	}

	c.startConnectionLoops()

	c.wg.Add(1)
	go c.reconnectLoop()

	return nil
}

func (c *Client) connectOnce(ctx context.Context) error {
	c.setState(StateConnecting)

	t := c.factory()
	if err := t.Connect(ctx); err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("toolclient: connect: %w", err)
	}

	c.stateMu.Lock()
	c.transport = t
	c.stateMu.Unlock()

	if err := c.initialize(ctx, t); err != nil {
		t.Close()
		c.setState(StateDisconnected)
		return fmt.Errorf("toolclient: initialize: %w", err)
	}

	c.setState(StateConnected)
	return nil
}

func (c *Client) initialize(ctx context.Context, t transport.Transport) error {
	params := wire.InitializeParams{
		ProtocolVersion: wire.ProtocolVersion,
		Capabilities:    wire.Capabilities{Tools: &wire.ToolsCapability{}},
		ClientInfo:      wire.ClientInfo{Name: c.opts.ClientName, Version: c.opts.ClientVersion},
	}
	_, err := c.sendRequestOn(ctx, t, wire.MethodInitialize, params, c.opts.CallTimeout)
	return err
}

func (c *Client) startConnectionLoops() {
	if c.closing.Load() {
		return
	}
	connCtx, cancel := context.WithCancel(c.masterCtx)
	c.connMu.Lock()
	c.connCancel = cancel
	c.connMu.Unlock()

	c.wg.Add(2)
	go c.receiveLoop(connCtx)
	go c.heartbeatLoop(connCtx)
}

func (c *Client) markDisconnected() {
	c.setState(StateDisconnected)
	c.connMu.Lock()
	if c.connCancel != nil {
		c.connCancel()
	}
	c.connMu.Unlock()
}

// receiveLoop owns the bidirectional transport's Receive side and routes
// replies to their pending waiter by correlation id. Unroutable frames are
// dropped. After MaxConsecutiveRecvErr consecutive read errors, or an
// ErrClosed, the connection is marked disconnected and the loop exits.
func (c *Client) receiveLoop(ctx context.Context) {
	defer c.wg.Done()

	t := c.currentTransport()
	if t == nil || t.Variant() != transport.VariantBidirectional {
		return
	}

	consecutiveErrors := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := t.Receive(ctx)
		if err != nil {
			if err == transport.ErrClosed {
				c.markDisconnected()
				return
			}
			consecutiveErrors++
			c.logger.Warn("receive error", "error", err, "consecutive", consecutiveErrors)
			if consecutiveErrors >= c.opts.MaxConsecutiveRecvErr {
				c.logger.Error("too many consecutive receive errors, disconnecting")
				c.markDisconnected()
				return
			}
			continue
		}
		consecutiveErrors = 0

		var resp wire.Response
		if err := json.Unmarshal(frame, &resp); err != nil || resp.ID == nil {
			c.logger.Debug("dropping unroutable frame")
			continue
		}

		id, ok := wire.CorrelationID(resp.ID)
		if !ok {
			continue
		}

		c.pendingMu.Lock()
		ch, exists := c.pending[id]
		if exists {
			delete(c.pending, id)
		}
		c.pendingMu.Unlock()

		if exists {
			respCopy := resp
			select {
			case ch <- &respCopy:
			default:
			}
		}
	}
}

// heartbeatLoop pings the module on a fixed interval. A timed-out ping is
// logged and tolerated; any other send failure marks the connection
// disconnected so the reconnect loop takes over.
func (c *Client) heartbeatLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if c.State() != StateConnected {
			continue
		}

		pingCtx, cancel := context.WithTimeout(ctx, c.opts.HeartbeatTimeout)
		_, err := c.sendRequest(pingCtx, wire.MethodPing, nil, c.opts.HeartbeatTimeout)
		cancel()
		if err == nil {
			continue
		}

		if pingCtx.Err() != nil {
			c.logger.Warn("heartbeat timed out", "timeout", c.opts.HeartbeatTimeout)
			continue
		}
		c.logger.Warn("heartbeat failed, disconnecting", "error", err)
		c.markDisconnected()
		return
	}
}

// reconnectLoop polls the client's state and, while disconnected, retries
// connectOnce up to MaxReconnectAttempts with a delay before each try. A
// successful reconnect restarts the receive and heartbeat loops; if every
// attempt fails, the loop exits and the client stays disconnected.
func (c *Client) reconnectLoop() {
	defer c.wg.Done()

	poll := time.NewTicker(250 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-c.masterCtx.Done():
			return
		case <-poll.C:
		}

		if c.closing.Load() || c.State() != StateDisconnected {
			continue
		}

		reconnected := false
		for attempt := 1; attempt <= c.opts.MaxReconnectAttempts; attempt++ {
			if c.closing.Load() || c.masterCtx.Err() != nil {
				return
			}
			if err := backoff.SleepWithContext(c.masterCtx, c.reconnectDelay(attempt)); err != nil {
				return
			}
			if err := c.connectOnce(c.masterCtx); err != nil {
				c.logger.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
				continue
			}
			c.logger.Info("reconnected")
			reconnected = true
			break
		}

		if reconnected {
			c.startConnectionLoops()
		} else {
			c.logger.Error("giving up reconnecting", "max_attempts", c.opts.MaxReconnectAttempts)
			return
		}
	}
}

func (c *Client) reconnectDelay(attempt int) time.Duration {
	if c.opts.BackoffPolicy != nil {
		return backoff.ComputeBackoff(*c.opts.BackoffPolicy, attempt)
	}
	return c.opts.ReconnectDelay
}

// ListTools fetches the module's current tool catalog.
func (c *Client) ListTools(ctx context.Context) ([]wire.ToolDescriptor, error) {
	if c.State() != StateConnected {
		return nil, fmt.Errorf("toolclient: not connected")
	}
	data, err := c.sendRequest(ctx, wire.MethodToolsList, nil, 0)
	if err != nil {
		return nil, err
	}
	var res wire.ListToolsResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("toolclient: unmarshal tools/list: %w", err)
	}
	return res.Tools, nil
}

// CallTool invokes a module tool and returns the stringified result text
// from the first content item.
func (c *Client) CallTool(ctx context.Context, name string, arguments any) (string, error) {
	if c.opts.Tracer != nil {
		var span trace.Span
		ctx, span = c.opts.Tracer.TraceToolExecution(ctx, c.opts.ServiceName, name)
		defer span.End()
	}

	if c.State() != StateConnected {
		err := fmt.Errorf("toolclient: not connected")
		if c.opts.Tracer != nil {
			c.opts.Tracer.RecordError(trace.SpanFromContext(ctx), err)
		}
		return "", err
	}

	var argData json.RawMessage
	if arguments != nil {
		data, err := json.Marshal(arguments)
		if err != nil {
			return "", fmt.Errorf("toolclient: marshal arguments: %w", err)
		}
		argData = data
	}

	data, err := c.sendRequest(ctx, wire.MethodToolsCall, wire.CallToolParams{Name: name, Arguments: argData}, 0)
	if err != nil {
		if c.opts.Tracer != nil {
			c.opts.Tracer.RecordError(trace.SpanFromContext(ctx), err)
		}
		return "", err
	}

	var result wire.CallToolResult
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("toolclient: unmarshal tools/call result: %w", err)
	}
	if len(result.Content) == 0 {
		return "", nil
	}
	return result.Content[0].Text, nil
}

// sendRequest issues a request on the client's current transport.
func (c *Client) sendRequest(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	t := c.currentTransport()
	if t == nil {
		return nil, fmt.Errorf("toolclient: no transport")
	}
	return c.sendRequestOn(ctx, t, method, params, timeout)
}

// sendRequestOn issues a request on an explicit transport, bypassing the
// Connected-state check. Used during initialize, before the client has
// transitioned out of Connecting.
func (c *Client) sendRequestOn(ctx context.Context, t transport.Transport, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	id := c.nextID.Add(1)

	req := wire.Request{JSONRPC: wire.ProtocolVersion, ID: id, Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("toolclient: marshal params: %w", err)
		}
		req.Params = data
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("toolclient: marshal request: %w", err)
	}

	if t.Variant() == transport.VariantRequestResponse {
		respFrame, err := t.Send(ctx, data)
		if err != nil {
			c.markDisconnected()
			return nil, wire.NewError(wire.ErrCodeConnectionLost, err.Error())
		}
		var resp wire.Response
		if err := json.Unmarshal(respFrame, &resp); err != nil {
			return nil, fmt.Errorf("toolclient: unmarshal response: %w", err)
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}

	ch := make(chan *wire.Response, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if _, err := t.Send(ctx, data); err != nil {
		c.markDisconnected()
		return nil, wire.NewError(wire.ErrCodeConnectionLost, err.Error())
	}

	if timeout <= 0 {
		timeout = c.opts.CallTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("toolclient: client closed while awaiting response")
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-timer.C:
		return nil, fmt.Errorf("toolclient: request %q timed out after %v", method, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops every background loop, cancels outstanding requests, and
// closes the current transport. Safe to call once; further calls are no-ops.
func (c *Client) Close() error {
	if !c.closing.CompareAndSwap(false, true) {
		return nil
	}

	if c.masterCancel != nil {
		c.masterCancel()
	}
	c.connMu.Lock()
	if c.connCancel != nil {
		c.connCancel()
	}
	c.connMu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		c.logger.Warn("timed out waiting for background loops to exit")
	}

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	if t := c.currentTransport(); t != nil {
		return t.Close()
	}
	return nil
}
