package wire

import (
	"encoding/json"
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	req := Request{
		JSONRPC: ProtocolVersion,
		ID:      int64(1),
		Method:  MethodToolsCall,
		Params:  json.RawMessage(`{"name":"play_music"}`),
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Request
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.Method != req.Method {
		t.Errorf("method = %q, want %q", got.Method, req.Method)
	}
	gotID, ok := CorrelationID(got.ID)
	if !ok || gotID != 1 {
		t.Errorf("id = %v, want 1", got.ID)
	}
}

func TestResponseResultAndErrorMutuallyExclusive(t *testing.T) {
	resp := Response{
		JSONRPC: ProtocolVersion,
		ID:      int64(2),
		Error:   NewError(ErrCodeMethodNotFound, "unknown method"),
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Response
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.Result != nil {
		t.Errorf("result = %s, want nil", got.Result)
	}
	if got.Error == nil || got.Error.Code != ErrCodeMethodNotFound {
		t.Errorf("error = %+v, want code %d", got.Error, ErrCodeMethodNotFound)
	}
}

func TestIsConnectionLost(t *testing.T) {
	lost := NewError(ErrCodeConnectionLost, "transport closed")
	if !IsConnectionLost(lost) {
		t.Error("expected connection-lost error to be recognized")
	}

	other := NewError(ErrCodeInternalError, "boom")
	if IsConnectionLost(other) {
		t.Error("did not expect internal error to be recognized as connection-lost")
	}
}

func TestCorrelationIDTypes(t *testing.T) {
	cases := []struct {
		in   any
		want int64
		ok   bool
	}{
		{int64(5), 5, true},
		{float64(7), 7, true},
		{7, 7, true},
		{"not-numeric", 0, false},
	}
	for _, c := range cases {
		got, ok := CorrelationID(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("CorrelationID(%v) = (%v, %v), want (%v, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}
