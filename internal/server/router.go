package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tanaygodse/markdowntogether/internal/document"
	"github.com/tanaygodse/markdowntogether/internal/hub"
	"github.com/tanaygodse/markdowntogether/internal/presence"
	"github.com/tanaygodse/markdowntogether/internal/users"
)

var (
	errMissingDocuments = errors.New("document service dependency required")
	errMissingUsers     = errors.New("users service dependency required")
	errMissingPresence  = errors.New("presence tracker dependency required")
	errMissingHub       = errors.New("hub dependency required")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// The editor is served from arbitrary origins during development;
		// identity is self-declared either way.
		return true
	},
}

// Dependencies wires the HTTP layer to the core services.
type Dependencies struct {
	Documents     *document.Service
	Users         *users.Service
	Presence      *presence.Tracker
	Hub           *hub.Hub
	Logger        *zap.Logger
	SendQueueSize int
}

// NewHTTPHandler builds the REST bootstrap surface and the websocket
// endpoint around a shared message router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Documents == nil {
		return nil, errMissingDocuments
	}
	if deps.Users == nil {
		return nil, errMissingUsers
	}
	if deps.Presence == nil {
		return nil, errMissingPresence
	}
	if deps.Hub == nil {
		return nil, errMissingHub
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := &Router{
		documents: deps.Documents,
		users:     deps.Users,
		presence:  deps.Presence,
		hub:       deps.Hub,
		logger:    logger,
	}

	handler := &httpHandler{
		router:        router,
		logger:        logger,
		sendQueueSize: deps.SendQueueSize,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	engine.POST("/api/documents", handler.handleCreateDocument)
	engine.GET("/api/documents/:id", handler.handleGetDocument)
	engine.POST("/api/users", handler.handleCreateUser)
	engine.GET("/ws", handler.handleWebSocket)
	engine.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return engine, nil
}

type httpHandler struct {
	router        *Router
	logger        *zap.Logger
	sendQueueSize int
}

type createDocumentPayload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (h *httpHandler) handleCreateDocument(c *gin.Context) {
	var request createDocumentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	doc, err := h.router.documents.CreateDocument(c.Request.Context(), request.Title, request.Content)
	if err != nil {
		h.logger.Error("document creation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed"})
		return
	}

	c.JSON(http.StatusCreated, doc)
}

func (h *httpHandler) handleGetDocument(c *gin.Context) {
	documentID := c.Param("id")

	doc, err := h.router.documents.GetDocument(c.Request.Context(), documentID)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document_not_found"})
			return
		}
		h.logger.Error("document lookup failed", zap.String("document_id", documentID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}

	members, err := h.router.users.DocumentUsers(documentID)
	if err != nil {
		h.logger.Warn("member lookup failed", zap.String("document_id", documentID), zap.Error(err))
		members = []users.User{}
	}

	c.JSON(http.StatusOK, DocumentSyncPayload{Document: doc, Users: members})
}

type createUserPayload struct {
	Name string `json:"name"`
}

func (h *httpHandler) handleCreateUser(c *gin.Context) {
	var request createUserPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	user, err := h.router.users.CreateUser(request.Name)
	if err != nil {
		if errors.Is(err, users.ErrInvalidName) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name_required"})
			return
		}
		h.logger.Error("user creation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed"})
		return
	}

	c.JSON(http.StatusCreated, user)
}

// handleWebSocket upgrades the connection and starts its pumps. The client
// stays unregistered until its first join/create_room/join_room message.
func (h *httpHandler) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := hub.NewClient(conn, h.sendQueueSize, h.logger)
	ctx := context.Background()

	go client.WritePump()
	go client.ReadPump(
		func(raw []byte) { h.router.HandleMessage(ctx, client, raw) },
		func() { h.router.HandleDisconnect(client) },
	)
}
