package toolserver

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/sparesparrow/mia-sub000/internal/transport"
	"github.com/sparesparrow/mia-sub000/internal/wire"
	"github.com/sparesparrow/mia-sub000/pkg/models"
)

func TestAddToolRejectsDuplicateNames(t *testing.T) {
	s := New("test-server", "0.0.1", nil)
	tool := models.Tool{Name: "echo", Handler: func(args json.RawMessage) (any, error) { return "ok", nil }}

	if err := s.AddTool(tool); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if err := s.AddTool(tool); err == nil {
		t.Fatal("expected error on duplicate tool name")
	}
}

func TestServeDispatchesToolsCall(t *testing.T) {
	s := New("test-server", "0.0.1", nil)
	err := s.AddTool(models.Tool{
		Name:        "echo",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`),
		Handler: func(args json.RawMessage) (any, error) {
			var in struct{ Text string `json:"text"` }
			json.Unmarshal(args, &in)
			return in.Text, nil
		},
	})
	if err != nil {
		t.Fatalf("register tool: %v", err)
	}

	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() { clientConn.Close(); serverConn.Close() })

	clientTransport := transport.NewFramed(clientConn)
	serverTransport := transport.NewFramed(serverConn)

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.Serve(context.Background(), serverTransport) }()

	req := wire.Request{
		JSONRPC: wire.ProtocolVersion,
		ID:      int64(1),
		Method:  wire.MethodToolsCall,
		Params:  mustMarshal(t, wire.CallToolParams{Name: "echo", Arguments: mustMarshal(t, map[string]string{"text": "hi"})}),
	}
	reqData := mustMarshal(t, req)

	if _, err := clientTransport.Send(context.Background(), reqData); err != nil {
		t.Fatalf("send: %v", err)
	}

	respCh := make(chan wire.Response, 1)
	go func() {
		frame, err := clientTransport.Receive(context.Background())
		if err != nil {
			t.Errorf("receive: %v", err)
			return
		}
		var resp wire.Response
		json.Unmarshal(frame, &resp)
		respCh <- resp
	}()

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			t.Fatalf("unexpected error response: %+v", resp.Error)
		}
		var callResult wire.CallToolResult
		if err := json.Unmarshal(resp.Result, &callResult); err != nil {
			t.Fatalf("unmarshal result: %v", err)
		}
		if len(callResult.Content) == 0 || callResult.Content[0].Text != "hi" {
			t.Errorf("content = %+v, want text=hi", callResult.Content)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
	}

	clientConn.Close()
	serverConn.Close()
	<-serveErr
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}
