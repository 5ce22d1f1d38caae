package server

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/tanaygodse/markdowntogether/internal/op"
)

func TestDecodeEnvelopeRequiresType(t *testing.T) {
	if _, err := decodeEnvelope([]byte(`{"payload":{}}`)); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected malformed payload error, got %v", err)
	}
}

func TestDecodeEnvelopeRejectsInvalidJSON(t *testing.T) {
	if _, err := decodeEnvelope([]byte(`{"type":`)); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected malformed payload error, got %v", err)
	}
}

func TestDecodeEnvelopeKeepsPayloadRaw(t *testing.T) {
	envelope, err := decodeEnvelope([]byte(`{"type":"join","payload":{"documentId":"doc-1","user":{"id":"u1","name":"Ada"}}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if envelope.Type != MessageTypeJoin {
		t.Fatalf("unexpected type %q", envelope.Type)
	}

	join, err := decodeJoin(envelope.Payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if join.DocumentID != "doc-1" || join.User.UserID != "u1" || join.User.Name != "Ada" {
		t.Fatalf("unexpected join payload: %+v", join)
	}
}

func TestDecodeJoinRequiresIdentity(t *testing.T) {
	cases := []string{
		`{"documentId":"doc-1"}`,
		`{"user":{"id":"u1"}}`,
	}
	for _, raw := range cases {
		if _, err := decodeJoin(json.RawMessage(raw)); !errors.Is(err, ErrMalformedPayload) {
			t.Fatalf("expected malformed payload for %s, got %v", raw, err)
		}
	}
}

func TestDecodeOperationValidatesType(t *testing.T) {
	raw := json.RawMessage(`{"documentId":"doc-1","operation":{"type":"replace","position":0}}`)
	if _, err := decodeOperation(raw); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected malformed payload, got %v", err)
	}

	raw = json.RawMessage(`{"documentId":"doc-1","operation":{"type":"insert","position":3,"content":"hi"}}`)
	operation, err := decodeOperation(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if operation.Operation.Type != op.TypeInsert || operation.Operation.Position != 3 {
		t.Fatalf("unexpected operation: %+v", operation.Operation)
	}
}

func TestDecodeJoinRoomRequiresCode(t *testing.T) {
	raw := json.RawMessage(`{"user":{"id":"u1"}}`)
	if _, err := decodeJoinRoom(raw); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected malformed payload, got %v", err)
	}
}

func TestEncodeEnvelopeRoundTrip(t *testing.T) {
	raw, err := encodeEnvelope(MessageTypeError, ErrorPayload{Message: "nope", Code: ErrorCodeNotJoined}, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	envelope, err := decodeEnvelope(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if envelope.Type != MessageTypeError || envelope.UserID != "u1" {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}

	var errorPayload ErrorPayload
	if err := json.Unmarshal(envelope.Payload, &errorPayload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if errorPayload.Code != ErrorCodeNotJoined {
		t.Fatalf("unexpected code %q", errorPayload.Code)
	}
}
