package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// HTTP is the strict request/response transport variant: Send performs one
// synchronous POST and returns the response body directly. Receive is
// unsupported, matching the spec's "client must operate in synchronous
// mode" requirement for this variant.
type HTTP struct {
	endpoint string
	client   *http.Client
	closed   atomic.Bool
}

// NewHTTP builds a transport that POSTs JSON-RPC envelopes to endpoint.
func NewHTTP(endpoint string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTP{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (h *HTTP) Variant() Variant { return VariantRequestResponse }

// Connect is a no-op; HTTP is connectionless between calls.
func (h *HTTP) Connect(ctx context.Context) error { return nil }

func (h *HTTP) Send(ctx context.Context, frame Frame) (Frame, error) {
	if h.closed.Load() {
		return nil, ErrClosed
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("http transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http transport: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("http transport: read body: %w", err)
	}
	return body, nil
}

func (h *HTTP) Receive(ctx context.Context) (Frame, error) {
	if h.closed.Load() {
		return nil, ErrClosed
	}
	return nil, ErrReceiveUnsupported
}

func (h *HTTP) Close() error {
	h.closed.Store(true)
	return nil
}
