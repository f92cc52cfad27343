package transport

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFramedSendReceive(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })

	client := NewFramed(a)
	server := NewFramed(b)

	done := make(chan Frame, 1)
	go func() {
		frame, err := server.Receive(context.Background())
		if err != nil {
			t.Errorf("server receive: %v", err)
			return
		}
		done <- frame
	}()

	if _, err := client.Send(context.Background(), Frame(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case frame := <-done:
		if string(frame) != `{"jsonrpc":"2.0","id":1,"method":"ping"}` {
			t.Errorf("unexpected frame: %s", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestFramedCloseUnblocksReceive(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close() })

	client := NewFramed(a)
	server := NewFramed(b)

	errCh := make(chan error, 1)
	go func() {
		_, err := server.Receive(context.Background())
		errCh <- err
	}()

	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b.Close()

	select {
	case err := <-errCh:
		if err != io.EOF && err != ErrClosed {
			t.Errorf("expected EOF or ErrClosed after close, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("receive did not unblock after close")
	}
}

func TestHTTPTransportSynchronousRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	defer srv.Close()

	ht := NewHTTP(srv.URL, 2*time.Second)
	if ht.Variant() != VariantRequestResponse {
		t.Fatalf("variant = %v, want %v", ht.Variant(), VariantRequestResponse)
	}

	resp, err := ht.Send(context.Background(), Frame(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if string(resp) != `{"jsonrpc":"2.0","id":1,"method":"ping"}` {
		t.Errorf("unexpected response: %s", resp)
	}

	if _, err := ht.Receive(context.Background()); err != ErrReceiveUnsupported {
		t.Errorf("receive = %v, want ErrReceiveUnsupported", err)
	}
}
