package v1

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEnvelopeValidate(t *testing.T) {
	cases := []struct {
		name    string
		env     Envelope
		wantErr bool
	}{
		{"valid message_send", Envelope{V: Version, Type: TypeMessageSend}, false},
		{"valid presence_snapshot", Envelope{V: Version, Type: TypePresenceSnapshot}, false},
		{"valid error", Envelope{V: Version, Type: TypeError}, false},
		{"missing version", Envelope{Type: TypeMessageSend}, true},
		{"wrong version", Envelope{V: "v2", Type: TypeMessageSend}, true},
		{"missing type", Envelope{V: Version}, true},
		{"unknown type", Envelope{V: Version, Type: "made_up"}, true},
		{"whitespace type", Envelope{V: Version, Type: "   "}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.env.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("Validate() = nil, want error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestEnvelopeWireShape(t *testing.T) {
	payload, _ := json.Marshal(MessageSendPayload{ReceiverID: "u2", Content: "hi"})
	env := Envelope{
		V:       Version,
		Type:    TypeMessageSend,
		ID:      "01J0000000000000000000000A",
		TS:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Payload: payload,
	}

	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Envelope
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.V != Version || decoded.Type != TypeMessageSend || decoded.ID != env.ID {
		t.Fatalf("round trip changed envelope: %+v", decoded)
	}

	var p MessageSendPayload
	if err := json.Unmarshal(decoded.Payload, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.ReceiverID != "u2" || p.Content != "hi" {
		t.Fatalf("payload round trip: %+v", p)
	}
}

func TestEnvelopeOmitsEmptyOptionalFields(t *testing.T) {
	b, err := json.Marshal(Envelope{V: Version, Type: TypeTyping})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"id", "payload"} {
		if _, ok := m[key]; ok {
			t.Fatalf("empty %q serialized: %s", key, b)
		}
	}
}
