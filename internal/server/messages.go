package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tanaygodse/markdowntogether/internal/document"
	"github.com/tanaygodse/markdowntogether/internal/op"
	"github.com/tanaygodse/markdowntogether/internal/presence"
	"github.com/tanaygodse/markdowntogether/internal/users"
)

// Message types carried in the wire envelope.
const (
	MessageTypeJoin           = "join"
	MessageTypeLeave          = "leave"
	MessageTypeOperation      = "operation"
	MessageTypeCursor         = "cursor"
	MessageTypeTitleUpdate    = "title_update"
	MessageTypeDocumentSync   = "document_sync"
	MessageTypeDocumentUpdate = "document_update"
	MessageTypeCreateRoom     = "create_room"
	MessageTypeJoinRoom       = "join_room"
	MessageTypeError          = "error"
)

// Stable error codes surfaced to clients.
const (
	ErrorCodeInvalidPayload   = "INVALID_PAYLOAD"
	ErrorCodeNotJoined        = "NOT_JOINED"
	ErrorCodeRoomNotFound     = "ROOM_NOT_FOUND"
	ErrorCodeDocumentNotFound = "DOCUMENT_NOT_FOUND"
	ErrorCodeInvalidOperation = "INVALID_OPERATION"
	ErrorCodeCreateRoomFailed = "CREATE_ROOM_ERROR"
)

// ErrMalformedPayload indicates an envelope payload that failed validation.
var ErrMalformedPayload = errors.New("server: malformed payload")

// Envelope is the wire frame exchanged in both directions. Payload decoding
// is deferred until the type discriminant selects a variant.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	UserID  string          `json:"userId,omitempty"`
}

// JoinPayload attaches a connection to an existing document.
type JoinPayload struct {
	User       users.User `json:"user"`
	DocumentID string     `json:"documentId"`
}

// LeavePayload announces a departed participant to remaining members.
type LeavePayload struct {
	UserID string `json:"userId"`
}

// OperationPayload carries one edit operation.
type OperationPayload struct {
	Operation  op.Operation `json:"operation"`
	DocumentID string       `json:"documentId"`
}

// CursorPayload carries a participant caret move.
type CursorPayload struct {
	Position   presence.Cursor `json:"position"`
	DocumentID string          `json:"documentId"`
}

// TitleUpdatePayload renames a document.
type TitleUpdatePayload struct {
	DocumentID string `json:"documentId"`
	NewTitle   string `json:"newTitle"`
}

// DocumentSyncPayload seeds a joining participant with the full state.
type DocumentSyncPayload struct {
	Document document.Document `json:"document"`
	Users    []users.User      `json:"users"`
}

// DocumentUpdatePayload pushes the authoritative post-mutation state.
type DocumentUpdatePayload struct {
	Document document.Document `json:"document"`
}

// CreateRoomPayload requests a fresh shared document.
type CreateRoomPayload struct {
	User    users.User `json:"user"`
	Title   string     `json:"title"`
	Content string     `json:"content"`
}

// CreateRoomResponse answers a create_room request.
type CreateRoomResponse struct {
	Document document.Document `json:"document"`
	RoomCode string            `json:"roomCode"`
}

// JoinRoomPayload attaches a connection to a document via its room code.
type JoinRoomPayload struct {
	User     users.User `json:"user"`
	RoomCode string     `json:"roomCode"`
}

// ErrorPayload reports a request-scoped failure to the originating
// connection only; errors are never broadcast.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// decodeEnvelope parses the outer frame. The payload stays raw.
func decodeEnvelope(raw []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if envelope.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedPayload)
	}
	return envelope, nil
}

func decodeJoin(payload json.RawMessage) (JoinPayload, error) {
	var join JoinPayload
	if err := json.Unmarshal(payload, &join); err != nil {
		return JoinPayload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if join.User.UserID == "" || join.DocumentID == "" {
		return JoinPayload{}, fmt.Errorf("%w: join requires user id and document id", ErrMalformedPayload)
	}
	return join, nil
}

func decodeOperation(payload json.RawMessage) (OperationPayload, error) {
	var operation OperationPayload
	if err := json.Unmarshal(payload, &operation); err != nil {
		return OperationPayload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if operation.DocumentID == "" {
		return OperationPayload{}, fmt.Errorf("%w: operation requires document id", ErrMalformedPayload)
	}
	switch operation.Operation.Type {
	case op.TypeInsert, op.TypeDelete:
	default:
		return OperationPayload{}, fmt.Errorf("%w: unsupported operation type %q", ErrMalformedPayload, operation.Operation.Type)
	}
	return operation, nil
}

func decodeCursor(payload json.RawMessage) (CursorPayload, error) {
	var cursor CursorPayload
	if err := json.Unmarshal(payload, &cursor); err != nil {
		return CursorPayload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if cursor.DocumentID == "" {
		return CursorPayload{}, fmt.Errorf("%w: cursor requires document id", ErrMalformedPayload)
	}
	return cursor, nil
}

func decodeTitleUpdate(payload json.RawMessage) (TitleUpdatePayload, error) {
	var title TitleUpdatePayload
	if err := json.Unmarshal(payload, &title); err != nil {
		return TitleUpdatePayload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if title.DocumentID == "" {
		return TitleUpdatePayload{}, fmt.Errorf("%w: title update requires document id", ErrMalformedPayload)
	}
	return title, nil
}

func decodeCreateRoom(payload json.RawMessage) (CreateRoomPayload, error) {
	var create CreateRoomPayload
	if err := json.Unmarshal(payload, &create); err != nil {
		return CreateRoomPayload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if create.User.UserID == "" {
		return CreateRoomPayload{}, fmt.Errorf("%w: create_room requires a user id", ErrMalformedPayload)
	}
	return create, nil
}

func decodeJoinRoom(payload json.RawMessage) (JoinRoomPayload, error) {
	var join JoinRoomPayload
	if err := json.Unmarshal(payload, &join); err != nil {
		return JoinRoomPayload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if join.User.UserID == "" || join.RoomCode == "" {
		return JoinRoomPayload{}, fmt.Errorf("%w: join_room requires user id and room code", ErrMalformedPayload)
	}
	return join, nil
}

// encodeEnvelope marshals an outbound frame.
func encodeEnvelope(messageType string, payload any, userID string) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: messageType, Payload: body, UserID: userID})
}
