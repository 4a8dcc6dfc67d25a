package wire

import (
	"encoding/json"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := WorkItemCreatedEvent{
		WorkItem: WorkItem{ID: "wi-1", ItemType: "task", ProjectID: "p-1", Title: "T", Status: "open", Priority: "normal", Version: 0},
		ActorID:  "alice",
	}
	env, err := NewEnvelope("m1", KindWorkItemCreated, 1234, payload)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	b, err := Encode(env)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.MessageID != "m1" || decoded.Kind != KindWorkItemCreated || decoded.Timestamp != 1234 {
		t.Fatalf("decoded envelope mismatch: %+v", decoded)
	}

	var got WorkItemCreatedEvent
	if err := DecodePayload(decoded, &got); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if got.WorkItem.ID != "wi-1" || got.ActorID != "alice" {
		t.Fatalf("payload mismatch: %+v", got)
	}

	b2, err := Encode(decoded)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	var m1, m2 map[string]interface{}
	if err := json.Unmarshal(b, &m1); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(b2, &m2); err != nil {
		t.Fatal(err)
	}
	if len(m1) != len(m2) {
		t.Fatalf("encode(decode(x)) != x: %v vs %v", m1, m2)
	}
}

func TestDecodeUnknownKindIsNotFatal(t *testing.T) {
	env, err := Decode([]byte(`{"message_id":"m2","kind":"future_kind","timestamp":1,"payload":{}}`))
	if err != nil {
		t.Fatalf("Decode should not fail on unknown kind: %v", err)
	}
	if env.Kind != "future_kind" {
		t.Fatalf("unexpected kind: %v", env.Kind)
	}
}
