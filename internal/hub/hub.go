// Package hub tracks live websocket connections, groups them by document,
// and fans serialized messages out to room members. A single dispatcher
// goroutine owns every structural mutation; other goroutines talk to it over
// channels, never by touching the maps.
package hub

import (
	"context"

	"go.uber.org/zap"
)

type registerRequest struct {
	client     *Client
	userID     string
	documentID string
}

type broadcastRequest struct {
	documentID string
	payload    []byte
	exclude    *Client
}

type countRequest struct {
	documentID string
	reply      chan int
}

// membership is a connection's dispatcher-owned identity snapshot, taken at
// registration time.
type membership struct {
	userID     string
	documentID string
}

// Hub is the connection registry and fan-out dispatcher.
type Hub struct {
	logger *zap.Logger

	// clients maps each live connection to the identity the dispatcher placed
	// it under. The dispatcher consults this, never the client's UserID or
	// DocumentID fields, which belong to the read goroutine.
	clients map[*Client]membership
	rooms   map[string]map[*Client]bool

	register   chan registerRequest
	unregister chan *Client
	broadcast  chan broadcastRequest
	counts     chan countRequest
}

// NewHub constructs a hub. Run must be started before clients register.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:     logger,
		clients:    make(map[*Client]membership),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan registerRequest),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastRequest, 256),
		counts:     make(chan countRequest),
	}
}

// Run is the dispatcher loop. It alone mutates the membership maps, which
// gives every room a single serialized broadcast order.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case request := <-h.register:
			h.registerClient(request)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case request := <-h.broadcast:
			h.fanOut(request)
		case request := <-h.counts:
			request.reply <- len(h.rooms[request.documentID])
		}
	}
}

// Register places a connection in its document's member set. Callers must
// have populated UserID and DocumentID first. Registering a connection that
// already occupies another room moves it: membership in the old room ends
// before the new one begins, so a connection is never in two rooms at once.
func (h *Hub) Register(client *Client) {
	h.register <- registerRequest{client: client, userID: client.UserID, documentID: client.DocumentID}
}

// Unregister removes the connection and closes its send queue. Safe to call
// for connections that were never registered or were already evicted.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastToRoom queues payload for delivery to every member of the
// document's room except exclude. A nil exclude delivers to all members.
// Messages for one room are delivered in the order they were queued.
func (h *Hub) BroadcastToRoom(documentID string, payload []byte, exclude *Client) {
	h.broadcast <- broadcastRequest{documentID: documentID, payload: payload, exclude: exclude}
}

// RoomSize reports the current member count of a room. It round-trips
// through the dispatcher, so a preceding Register or Unregister is observed.
func (h *Hub) RoomSize(documentID string) int {
	reply := make(chan int, 1)
	h.counts <- countRequest{documentID: documentID, reply: reply}
	return <-reply
}

func (h *Hub) registerClient(request registerRequest) {
	client := request.client
	if previous, ok := h.clients[client]; ok {
		if previous.documentID != request.documentID {
			h.pruneFromRoom(client, previous.documentID)
		}
	}

	h.clients[client] = membership{userID: request.userID, documentID: request.documentID}
	room, ok := h.rooms[request.documentID]
	if !ok {
		room = make(map[*Client]bool)
		h.rooms[request.documentID] = room
	}
	room[client] = true

	h.logger.Debug("client registered",
		zap.String("user_id", request.userID),
		zap.String("document_id", request.documentID),
		zap.Int("room_size", len(room)))
}

func (h *Hub) unregisterClient(client *Client) {
	current, ok := h.clients[client]
	if !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)
	h.pruneFromRoom(client, current.documentID)

	h.logger.Debug("client unregistered",
		zap.String("user_id", current.userID),
		zap.String("document_id", current.documentID))
}

// fanOut delivers to each room member without ever blocking on a slow
// consumer: a full send queue evicts the connection on the spot so the rest
// of the room keeps receiving.
func (h *Hub) fanOut(request broadcastRequest) {
	room := h.rooms[request.documentID]
	for client := range room {
		if client == request.exclude {
			continue
		}
		select {
		case client.Send <- request.payload:
		default:
			evicted := h.clients[client]
			delete(h.clients, client)
			close(client.Send)
			h.pruneFromRoom(client, request.documentID)
			h.logger.Warn("slow consumer evicted",
				zap.String("user_id", evicted.userID),
				zap.String("document_id", request.documentID))
		}
	}
}

// pruneFromRoom drops the client from room bookkeeping. Empty room entries
// are removed; the document itself persists independent of occupancy.
func (h *Hub) pruneFromRoom(client *Client, documentID string) {
	room, ok := h.rooms[documentID]
	if !ok {
		return
	}
	delete(room, client)
	if len(room) == 0 {
		delete(h.rooms, documentID)
	}
}

func (h *Hub) closeAll() {
	for client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[*Client]membership)
	h.rooms = make(map[string]map[*Client]bool)
}
