package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Claims garante no máximo uma submissão por ticketId
type Claims interface {
	// Claim retorna false se o ticketId já foi reivindicado
	Claim(ctx context.Context, ticketID string) (bool, error)
	Release(ctx context.Context, ticketID string) error
}

// MemoryClaims guarda os ticketIds reivindicados em memória, com TTL
type MemoryClaims struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]time.Time
	now   func() time.Time
}

func NewMemoryClaims(ttl time.Duration) *MemoryClaims {
	return &MemoryClaims{ttl: ttl, items: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryClaims) Claim(_ context.Context, ticketID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if exp, ok := m.items[ticketID]; ok && (m.ttl <= 0 || now.Before(exp)) {
		return false, nil
	}
	m.items[ticketID] = now.Add(m.ttl)
	if len(m.items)%1024 == 0 {
		m.purgeLocked(now)
	}
	return true, nil
}

func (m *MemoryClaims) Release(_ context.Context, ticketID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, ticketID)
	return nil
}

func (m *MemoryClaims) purgeLocked(now time.Time) {
	if m.ttl <= 0 {
		return
	}
	for id, exp := range m.items {
		if !now.Before(exp) {
			delete(m.items, id)
		}
	}
}

// RedisClaims usa SET NX com TTL, compartilhado entre instâncias
type RedisClaims struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisClaims(rdb *redis.Client, ttl time.Duration) *RedisClaims {
	return &RedisClaims{rdb: rdb, ttl: ttl, prefix: "mts:ticket:claim:"}
}

func (r *RedisClaims) Claim(ctx context.Context, ticketID string) (bool, error) {
	return r.rdb.SetNX(ctx, r.prefix+ticketID, uuid.NewString(), r.ttl).Result()
}

func (r *RedisClaims) Release(ctx context.Context, ticketID string) error {
	return r.rdb.Del(ctx, r.prefix+ticketID).Err()
}
