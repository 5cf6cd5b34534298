package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/mts-gateway/internal/correlation"
	"github.com/radieske/mts-gateway/internal/gateway"
	"github.com/radieske/mts-gateway/internal/ticket"
)

// StatusCache guarda o status final dos tickets no Redis, para consultas
// depois que a entrada de correlação já saiu da memória
type StatusCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewStatusCache(c *redis.Client, ttl time.Duration) *StatusCache {
	return &StatusCache{Client: c, TTL: ttl}
}

func key(ticketID string) string { return "mts:ticket:status:" + ticketID }

// TicketState é o valor gravado por ticket
type TicketState struct {
	TicketID   string    `json:"ticketId"`
	RequestID  string    `json:"requestId"`
	Status     string    `json:"status"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Placed não grava nada: enquanto a correlação está aberta o status vem da tabela
func (c *StatusCache) Placed(context.Context, *ticket.Ticket, gateway.Envelope) error { return nil }

// Finished grava o status de cada ticket do resultado
func (c *StatusCache) Finished(ctx context.Context, o correlation.Outcome) error {
	pipe := c.Client.Pipeline()
	for _, id := range o.TicketIDs {
		b, err := json.Marshal(TicketState{
			TicketID:   id,
			RequestID:  o.RequestID,
			Status:     o.TicketStatus(id),
			FinishedAt: o.FinishedAt,
		})
		if err != nil {
			return err
		}
		pipe.Set(ctx, key(id), b, c.TTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// TicketStatus implementa gateway.StatusStore
func (c *StatusCache) TicketStatus(ctx context.Context, ticketID string) (string, bool, error) {
	st, ok, err := c.Get(ctx, ticketID)
	if err != nil || !ok {
		return "", ok, err
	}
	return st.Status, true, nil
}

func (c *StatusCache) Get(ctx context.Context, ticketID string) (TicketState, bool, error) {
	b, err := c.Client.Get(ctx, key(ticketID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return TicketState{}, false, nil
	}
	if err != nil {
		return TicketState{}, false, err
	}
	var st TicketState
	if err := json.Unmarshal(b, &st); err != nil {
		return TicketState{}, false, err
	}
	return st, true, nil
}
