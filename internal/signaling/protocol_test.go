package signaling

import (
	"encoding/json"
	"testing"
)

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		ok   bool
		kind Kind
	}{
		{name: "valid", raw: `{"type":"create-room","data":{"userId":"u1","userName":"N"}}`, ok: true, kind: KindCreateRoom},
		{name: "no data", raw: `{"type":"leave-room"}`, ok: true, kind: KindLeaveRoom},
		{name: "missing type", raw: `{"data":{}}`, ok: false},
		{name: "unknown envelope field", raw: `{"type":"offer","data":{},"extra":1}`, ok: false},
		{name: "trailing data", raw: `{"type":"offer","data":{}}{"type":"answer"}`, ok: false},
		{name: "not json", raw: `hello`, ok: false},
		{name: "empty", raw: ``, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := parseEnvelope([]byte(tt.raw))
			if tt.ok && err != nil {
				t.Fatalf("parseEnvelope() error = %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("parseEnvelope() error = nil, want error")
				}
				return
			}
			if env.Type != tt.kind {
				t.Fatalf("type = %q, want %q", env.Type, tt.kind)
			}
		})
	}
}

func TestParseEnvelopeKeepsDataOpaque(t *testing.T) {
	// Payloads are client-defined; unknown payload fields must survive.
	raw := `{"type":"offer","data":{"roomId":"r","to":"b","from":"a","offer":{"sdp":"x","custom":true}}}`
	env, err := parseEnvelope([]byte(raw))
	if err != nil {
		t.Fatalf("parseEnvelope() error = %v", err)
	}
	var p negotiationPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatalf("payload decode: %v", err)
	}
	if string(p.Offer) != `{"sdp":"x","custom":true}` {
		t.Fatalf("offer body = %s, want verbatim payload", p.Offer)
	}
}

func TestEncodeEnvelope(t *testing.T) {
	data, err := encodeEnvelope(KindRoomError, errorPayload{Message: "Room not found"})
	if err != nil {
		t.Fatalf("encodeEnvelope() error = %v", err)
	}
	if got, want := string(data), `{"type":"room-error","data":{"message":"Room not found"}}`; got != want {
		t.Fatalf("encoded = %s, want %s", got, want)
	}

	data, err = encodeEnvelope(KindAdminRemoved, nil)
	if err != nil {
		t.Fatalf("encodeEnvelope(nil) error = %v", err)
	}
	if got, want := string(data), `{"type":"admin-removed"}`; got != want {
		t.Fatalf("encoded = %s, want %s", got, want)
	}
}
