// Package transport implements the send/receive/close contract shared by
// every Tool Server and Tool Client connection.
package transport

import (
	"context"
	"encoding/json"
	"errors"
)

// Frame is one serialized JSON-RPC message: a Request, Response, or
// Notification.
type Frame = json.RawMessage

// Variant distinguishes the two transport shapes the spec defines.
type Variant string

const (
	// VariantBidirectional transports (e.g. a websocket or a framed pipe)
	// support concurrent send while a receive is outstanding; a receive
	// loop can run independently of request submission.
	VariantBidirectional Variant = "bidirectional"

	// VariantRequestResponse transports (e.g. HTTP POST) support only a
	// synchronous send that implicitly returns the response; Receive is
	// unsupported.
	VariantRequestResponse Variant = "request_response"
)

// ErrReceiveUnsupported is returned by Receive on request/response
// transports.
var ErrReceiveUnsupported = errors.New("transport: receive is not supported by this variant")

// ErrClosed is returned by Send/Receive once the transport has been closed.
var ErrClosed = errors.New("transport: closed")

// Transport is the abstraction a Tool Client or Tool Server speaks over.
type Transport interface {
	// Variant reports which of the two shapes this transport implements.
	Variant() Variant

	// Connect establishes the underlying connection.
	Connect(ctx context.Context) error

	// Send writes one frame. Bidirectional transports return (nil, nil)
	// once the write succeeds; the eventual reply arrives via Receive.
	// Request/response transports block for the round trip and return the
	// reply frame directly.
	Send(ctx context.Context, frame Frame) (Frame, error)

	// Receive blocks until the next frame arrives. Only implemented by
	// bidirectional transports.
	Receive(ctx context.Context) (Frame, error)

	// Close is idempotent; after Close, Send and Receive return ErrClosed.
	Close() error
}

// Factory produces a fresh Transport to the same logical endpoint each time
// it is called. The Tool Client uses a Factory to reconnect.
type Factory func() Transport
