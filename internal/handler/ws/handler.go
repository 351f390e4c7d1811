package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	chatservice "github.com/baochat/baochat/internal/service/chat"
	"github.com/baochat/baochat/internal/session"
)

const (
	readTimeout         = 60 * time.Second
	defaultPingInterval = 54 * time.Second
	writeWait           = 10 * time.Second
	historyLimit        = 50
)

// Handler runs the duplex chat protocol over websocket connections.
type Handler struct {
	pipeline     *chatservice.Pipeline
	store        chatservice.Store
	registry     *session.Registry
	logger       *slog.Logger
	upgrader     websocket.Upgrader
	pingInterval time.Duration
}

// Option customizes a Handler.
type Option func(*Handler)

// WithPingInterval overrides the keepalive ping cadence.
func WithPingInterval(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// New builds the websocket handler.
func New(pipeline *chatservice.Pipeline, store chatservice.Store, registry *session.Registry, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		pipeline: pipeline,
		store:    store,
		registry: registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		pingInterval: defaultPingInterval,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts the websocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{conversationID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`

	// EnableSearch defaults to true when absent.
	EnableSearch *bool `json:"enable_search"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	if conversationID == "" {
		http.Error(w, "conversationID is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	registryID := h.registry.Add(conn)
	defer h.registry.Remove(registryID)

	h.logger.Info("websocket connected", "conversation", conversationID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go h.pingLoop(ctx, conn)

	if err := h.sendHistory(ctx, conn, conversationID); err != nil {
		h.logger.Warn("failed to send history", "conversation", conversationID, "error", err)
		return
	}

	// Turns are strictly sequential: the next inbound message is not read
	// until the previous turn has fully completed.
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Warn("websocket read error", "error", err)
				}
				return
			}

			conn.SetReadDeadline(time.Now().Add(readTimeout))

			var msg inboundMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				h.sendError(conn, "invalid message payload")
				continue
			}

			h.handleMessage(ctx, conn, conversationID, &msg)
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, conn *websocket.Conn, conversationID string, msg *inboundMessage) {
	switch msg.Type {
	case "chat":
		h.handleChat(ctx, conn, conversationID, msg)
	case "ping":
		// No pipeline, no persistence: just answer.
		if err := conn.WriteJSON(chatservice.Event{Type: chatservice.EventPong}); err != nil {
			h.logger.Warn("pong write failed", "error", err)
		}
	default:
		h.sendError(conn, "unsupported message type: "+msg.Type)
	}
}

func (h *Handler) handleChat(ctx context.Context, conn *websocket.Conn, conversationID string, msg *inboundMessage) {
	enableSearch := true
	if msg.EnableSearch != nil {
		enableSearch = *msg.EnableSearch
	}

	turn := chatservice.NewTurn(conversationID, msg.Message, enableSearch)
	emitter := chatservice.EmitterFunc(func(event chatservice.Event) error {
		return conn.WriteJSON(event)
	})

	if err := h.pipeline.Run(ctx, turn, emitter); err != nil {
		// Turn-local failure; the connection stays open for the next turn.
		h.logger.Error("turn failed", "conversation", conversationID, "state", turn.State(), "error", err)
	}
}

func (h *Handler) sendHistory(ctx context.Context, conn *websocket.Conn, conversationID string) error {
	messages, err := h.store.History(ctx, conversationID, historyLimit)
	if err != nil {
		return err
	}
	return conn.WriteJSON(chatservice.Event{Type: chatservice.EventHistory, Messages: messages})
}

func (h *Handler) sendError(conn *websocket.Conn, message string) {
	if err := conn.WriteJSON(chatservice.Event{Type: chatservice.EventError, Message: message}); err != nil {
		h.logger.Warn("error write failed", "error", err)
	}
}

func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// WriteControl is safe alongside the read loop's WriteJSON;
			// a data-frame write here would race with streaming replies.
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
