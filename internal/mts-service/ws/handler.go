package ws

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler faz o upgrade das conexões de apostadores
type Handler struct {
	hub       *Hub
	processor *Processor
	log       *zap.Logger
	upgrader  websocket.Upgrader
}

// NewHandler cria o handler com política customizada de origem (CORS)
func NewHandler(hub *Hub, p *Processor, log *zap.Logger, allowOrigin func(r *http.Request) bool) *Handler {
	return &Handler{
		hub:       hub,
		processor: p,
		log:       log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     allowOrigin,
		},
	}
}

// ServeWS exige userId e token (só presença) antes do upgrade
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "missing userId parameter", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("token") == "" {
		http.Error(w, "missing token parameter", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	c := newClient(h.hub, conn, userID, h.log)
	h.hub.Register(c)
	c.Send(ConnectionEstablished{
		Base:    base(TypeConnectionEstablished),
		UserID:  userID,
		Message: "WebSocket connection established",
	})

	go c.writePump()
	go c.readPump(h.processor.Handle)
}
