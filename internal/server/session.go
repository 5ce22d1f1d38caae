package server

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/tanaygodse/markdowntogether/internal/document"
	"github.com/tanaygodse/markdowntogether/internal/hub"
	"github.com/tanaygodse/markdowntogether/internal/op"
	"github.com/tanaygodse/markdowntogether/internal/presence"
	"github.com/tanaygodse/markdowntogether/internal/users"
)

// Router decodes inbound envelopes, drives the document store and presence
// tracker, and fans results out through the hub. One router serves all
// connections; per-connection state lives on the hub.Client.
type Router struct {
	documents *document.Service
	users     *users.Service
	presence  *presence.Tracker
	hub       *hub.Hub
	logger    *zap.Logger
}

// HandleMessage processes one inbound frame from a connection. A failure
// only ever affects the originating connection: decode errors drop the
// message, domain errors round-trip as error envelopes, and the connection
// stays open either way.
func (r *Router) HandleMessage(ctx context.Context, client *hub.Client, raw []byte) {
	envelope, err := decodeEnvelope(raw)
	if err != nil {
		r.logger.Warn("dropping malformed envelope", zap.Error(err))
		return
	}

	switch envelope.Type {
	case MessageTypeJoin:
		r.handleJoin(ctx, client, envelope)
	case MessageTypeCreateRoom:
		r.handleCreateRoom(ctx, client, envelope)
	case MessageTypeJoinRoom:
		r.handleJoinRoom(ctx, client, envelope)
	case MessageTypeOperation:
		r.handleOperation(ctx, client, envelope)
	case MessageTypeCursor:
		r.handleCursor(client, envelope)
	case MessageTypeTitleUpdate:
		r.handleTitleUpdate(ctx, client, envelope)
	default:
		r.logger.Warn("ignoring unknown message type", zap.String("type", envelope.Type))
	}
}

// HandleDisconnect runs when a connection's read loop ends for any reason.
// Presence and membership for the participant are torn down and remaining
// members get a synthesized leave. Already-applied edits stand.
func (r *Router) HandleDisconnect(client *hub.Client) {
	if !client.Registered() {
		return
	}

	r.users.LeaveDocument(client.UserID, client.DocumentID)
	r.presence.RemoveCursor(client.DocumentID, client.UserID)

	if payload, err := encodeEnvelope(MessageTypeLeave, LeavePayload{UserID: client.UserID}, ""); err == nil {
		r.hub.BroadcastToRoom(client.DocumentID, payload, client)
	}
	r.hub.Unregister(client)

	r.logger.Info("participant disconnected",
		zap.String("user_id", client.UserID),
		zap.String("document_id", client.DocumentID))
}

func (r *Router) handleJoin(ctx context.Context, client *hub.Client, envelope Envelope) {
	join, err := decodeJoin(envelope.Payload)
	if err != nil {
		r.logger.Warn("dropping malformed join", zap.Error(err))
		r.sendError(client, "Invalid join payload", ErrorCodeInvalidPayload)
		return
	}

	doc, err := r.documents.GetDocument(ctx, join.DocumentID)
	if errors.Is(err, document.ErrNotFound) {
		// First join to an unknown document bootstraps it under that id.
		doc, err = r.documents.CreateDocumentWithID(ctx, join.DocumentID, document.DefaultTitle, document.DefaultContent)
	}
	if err != nil {
		r.logger.Error("join failed", zap.String("document_id", join.DocumentID), zap.Error(err))
		r.sendError(client, "Unable to join document", ErrorCodeDocumentNotFound)
		return
	}

	r.attach(client, join.User, doc)
}

func (r *Router) handleCreateRoom(ctx context.Context, client *hub.Client, envelope Envelope) {
	create, err := decodeCreateRoom(envelope.Payload)
	if err != nil {
		r.logger.Warn("dropping malformed create_room", zap.Error(err))
		r.sendError(client, "Invalid create room payload", ErrorCodeInvalidPayload)
		return
	}

	doc, err := r.documents.CreateDocument(ctx, create.Title, create.Content)
	if err != nil {
		r.logger.Error("room creation failed", zap.Error(err))
		r.sendError(client, "Failed to create room", ErrorCodeCreateRoomFailed)
		return
	}

	registered, err := r.registerParticipant(client, create.User, doc.DocumentID)
	if err != nil {
		r.sendError(client, "Invalid participant", ErrorCodeInvalidPayload)
		return
	}

	r.sendToClient(client, MessageTypeCreateRoom, CreateRoomResponse{Document: doc, RoomCode: doc.RoomCode}, "")

	r.logger.Info("room created",
		zap.String("document_id", doc.DocumentID),
		zap.String("room_code", doc.RoomCode),
		zap.String("user_id", registered.UserID))
}

func (r *Router) handleJoinRoom(ctx context.Context, client *hub.Client, envelope Envelope) {
	join, err := decodeJoinRoom(envelope.Payload)
	if err != nil {
		r.logger.Warn("dropping malformed join_room", zap.Error(err))
		r.sendError(client, "Invalid join room payload", ErrorCodeInvalidPayload)
		return
	}

	doc, err := r.documents.GetByRoomCode(ctx, join.RoomCode)
	if err != nil {
		r.logger.Warn("room lookup failed", zap.String("room_code", join.RoomCode), zap.Error(err))
		r.sendError(client, "Room not found", ErrorCodeRoomNotFound)
		return
	}

	r.attach(client, join.User, doc)
}

// attach completes registration for join and join_room: the participant is
// recorded, the connection enters the room, and the joiner receives a
// document_sync snapshot with the current member list.
func (r *Router) attach(client *hub.Client, user users.User, doc document.Document) {
	registered, err := r.registerParticipant(client, user, doc.DocumentID)
	if err != nil {
		r.sendError(client, "Invalid participant", ErrorCodeInvalidPayload)
		return
	}

	members, err := r.users.DocumentUsers(doc.DocumentID)
	if err != nil {
		r.logger.Error("member lookup failed", zap.String("document_id", doc.DocumentID), zap.Error(err))
		members = []users.User{}
	}

	r.sendToClient(client, MessageTypeDocumentSync, DocumentSyncPayload{Document: doc, Users: members}, "")

	r.logger.Info("participant joined",
		zap.String("user_id", registered.UserID),
		zap.String("document_id", doc.DocumentID))
}

func (r *Router) registerParticipant(client *hub.Client, user users.User, documentID string) (users.User, error) {
	registered, err := r.users.RegisterUser(user)
	if err != nil {
		r.logger.Warn("participant registration failed", zap.Error(err))
		return users.User{}, err
	}

	// A connection holds one room at a time. Joining another document leaves
	// the first: presence is dropped, former roommates get a leave, and the
	// hub moves the connection when it re-registers.
	if client.Registered() && client.DocumentID != documentID {
		r.users.LeaveDocument(client.UserID, client.DocumentID)
		r.presence.RemoveCursor(client.DocumentID, client.UserID)
		if payload, err := encodeEnvelope(MessageTypeLeave, LeavePayload{UserID: client.UserID}, ""); err == nil {
			r.hub.BroadcastToRoom(client.DocumentID, payload, client)
		}
	}

	client.UserID = registered.UserID
	client.DocumentID = documentID
	r.hub.Register(client)
	r.users.JoinDocument(registered.UserID, documentID)
	return registered, nil
}

func (r *Router) handleOperation(ctx context.Context, client *hub.Client, envelope Envelope) {
	if !r.requireRegistered(client) {
		return
	}

	operation, err := decodeOperation(envelope.Payload)
	if err != nil {
		r.logger.Warn("dropping malformed operation", zap.Error(err))
		r.sendError(client, "Invalid operation payload", ErrorCodeInvalidPayload)
		return
	}
	if operation.DocumentID != client.DocumentID {
		r.sendError(client, "Operation targets a different document", ErrorCodeInvalidPayload)
		return
	}
	// The authoring identity is the connection's, regardless of what the
	// payload claims.
	operation.Operation.UserID = client.UserID

	doc, err := r.documents.ApplyOperation(ctx, operation.DocumentID, operation.Operation)
	if err != nil {
		switch {
		case errors.Is(err, op.ErrInvalidPosition), errors.Is(err, op.ErrUnknownType):
			r.sendError(client, "Operation rejected: "+err.Error(), ErrorCodeInvalidOperation)
		case errors.Is(err, document.ErrNotFound):
			r.sendError(client, "Document not found", ErrorCodeDocumentNotFound)
		default:
			r.logger.Error("operation apply failed", zap.String("document_id", operation.DocumentID), zap.Error(err))
			r.sendError(client, "Operation failed", ErrorCodeInvalidOperation)
		}
		return
	}

	operation.Operation.Version = doc.Version
	r.recordEditHighlight(client, operation.Operation)

	// Peers replay the raw operation; everyone, sender included, receives the
	// authoritative post-apply state.
	if payload, err := encodeEnvelope(MessageTypeOperation, operation, client.UserID); err == nil {
		r.hub.BroadcastToRoom(client.DocumentID, payload, client)
	}
	if payload, err := encodeEnvelope(MessageTypeDocumentUpdate, DocumentUpdatePayload{Document: doc}, ""); err == nil {
		r.hub.BroadcastToRoom(client.DocumentID, payload, nil)
	}
}

func (r *Router) handleCursor(client *hub.Client, envelope Envelope) {
	if !r.requireRegistered(client) {
		return
	}

	cursor, err := decodeCursor(envelope.Payload)
	if err != nil {
		r.logger.Warn("dropping malformed cursor", zap.Error(err))
		return
	}
	if cursor.DocumentID != client.DocumentID {
		return
	}
	cursor.Position.UserID = client.UserID

	r.presence.SetCursor(cursor.DocumentID, cursor.Position)
	r.presence.AddHighlight(cursor.DocumentID, client.UserID,
		cursor.Position.Position, cursor.Position.Position+1,
		r.participantColor(client.UserID), presence.HighlightCursor)

	if payload, err := encodeEnvelope(MessageTypeCursor, cursor, client.UserID); err == nil {
		r.hub.BroadcastToRoom(client.DocumentID, payload, client)
	}
}

func (r *Router) handleTitleUpdate(ctx context.Context, client *hub.Client, envelope Envelope) {
	if !r.requireRegistered(client) {
		return
	}

	title, err := decodeTitleUpdate(envelope.Payload)
	if err != nil {
		r.logger.Warn("dropping malformed title update", zap.Error(err))
		r.sendError(client, "Invalid title payload", ErrorCodeInvalidPayload)
		return
	}
	if title.DocumentID != client.DocumentID {
		r.sendError(client, "Title update targets a different document", ErrorCodeInvalidPayload)
		return
	}

	if _, err := r.documents.UpdateTitle(ctx, title.DocumentID, title.NewTitle); err != nil {
		if errors.Is(err, document.ErrNotFound) {
			r.sendError(client, "Document not found", ErrorCodeDocumentNotFound)
			return
		}
		r.logger.Error("title update failed", zap.String("document_id", title.DocumentID), zap.Error(err))
		r.sendError(client, "Title update failed", ErrorCodeInvalidPayload)
		return
	}

	// Every member, the author included, must render the same title; the
	// author's other tabs count on the echo.
	if payload, err := encodeEnvelope(MessageTypeTitleUpdate, title, client.UserID); err == nil {
		r.hub.BroadcastToRoom(client.DocumentID, payload, nil)
	}
}

// recordEditHighlight marks the edited span so peers see a short-lived
// colored flash where the change landed.
func (r *Router) recordEditHighlight(client *hub.Client, operation op.Operation) {
	color := r.participantColor(client.UserID)
	switch operation.Type {
	case op.TypeInsert:
		end := operation.Position + len([]rune(operation.Content))
		r.presence.AddHighlight(client.DocumentID, client.UserID, operation.Position, end, color, presence.HighlightInsert)
	case op.TypeDelete:
		r.presence.AddHighlight(client.DocumentID, client.UserID, operation.Position, operation.Position+1, color, presence.HighlightDelete)
	}
}

func (r *Router) participantColor(userID string) string {
	if user, err := r.users.GetUser(userID); err == nil && user.Color != "" {
		return user.Color
	}
	return users.ColorFor(userID)
}

// requireRegistered gates every message type that needs room identity.
// Pre-registration traffic is answered with an error, never queued.
func (r *Router) requireRegistered(client *hub.Client) bool {
	if client.Registered() {
		return true
	}
	r.sendError(client, "Join a document before sending messages", ErrorCodeNotJoined)
	return false
}

func (r *Router) sendError(client *hub.Client, message, code string) {
	r.sendToClient(client, MessageTypeError, ErrorPayload{Message: message, Code: code}, "")
}

// sendToClient queues a message for one connection without going through the
// room. A full queue drops the message; the write pump's failure handling
// owns tearing the connection down.
func (r *Router) sendToClient(client *hub.Client, messageType string, payload any, userID string) {
	raw, err := encodeEnvelope(messageType, payload, userID)
	if err != nil {
		r.logger.Error("outbound encode failed", zap.String("type", messageType), zap.Error(err))
		return
	}
	select {
	case client.Send <- raw:
	default:
		r.logger.Warn("dropping message for saturated connection",
			zap.String("type", messageType),
			zap.String("user_id", client.UserID))
	}
}
