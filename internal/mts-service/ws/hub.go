package ws

import (
	"sync"

	"go.uber.org/zap"
)

// Hub gerencia as conexões ativas; um usuário tem no máximo uma conexão
// (a nova substitui a antiga).
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	byUser  map[string]*Client
	log     *zap.Logger

	// métricas
	OnConnections func(n int)
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		byUser:  make(map[string]*Client),
		log:     log,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if old, ok := h.byUser[c.userID]; ok && old != c {
		delete(h.clients, old)
		old.close()
		h.log.Info("ws user reconnected, closing previous connection", zap.String("user_id", c.userID))
	}
	h.clients[c] = struct{}{}
	h.byUser[c.userID] = c
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Info("ws client connected", zap.String("user_id", c.userID), zap.Int("clients", n))
	h.report(n)
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		if h.byUser[c.userID] == c {
			delete(h.byUser, c.userID)
		}
	}
	n := len(h.clients)
	h.mu.Unlock()

	c.close()
	if ok {
		h.log.Info("ws client disconnected", zap.String("user_id", c.userID), zap.Int("clients", n))
		h.report(n)
	}
}

// Client retorna a conexão ativa do usuário
func (h *Hub) Client(userID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.byUser[userID]
	return c, ok
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) report(n int) {
	if h.OnConnections != nil {
		h.OnConnections(n)
	}
}
