package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/mts-gateway/internal/correlation"
	"github.com/radieske/mts-gateway/internal/downstream"
	"github.com/radieske/mts-gateway/internal/ticket"
)

func TestRedisClaimsSetNXWithTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c := NewRedisClaims(rdb, time.Hour)
	ctx := context.Background()

	ok, err := c.Claim(ctx, "T-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("mts:ticket:claim:T-1"))
	assert.Equal(t, time.Hour, mr.TTL("mts:ticket:claim:T-1"))

	// segunda instância vê o mesmo claim
	other := NewRedisClaims(rdb, time.Hour)
	ok, err = other.Claim(ctx, "T-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Release(ctx, "T-1"))
	ok, err = other.Claim(ctx, "T-1")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Hour)
	assert.False(t, mr.Exists("mts:ticket:claim:T-1"))
}

func TestRedisClaimsSharedAcrossGateways(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	newGateway := func(a *fakeAuthority) *Gateway {
		g := New(zap.NewNop(), a, correlation.NewTable(zap.NewNop()), NewRedisClaims(rdb, time.Hour),
			Config{SingleDeadline: time.Second, MultiDeadline: time.Second})
		a.deliver = g.HandleLegResult
		return g
	}
	a1 := &fakeAuthority{reply: acceptAll, legs: everyLeg(downstream.StatusAccepted)}
	a2 := &fakeAuthority{reply: acceptAll, legs: everyLeg(downstream.StatusAccepted)}
	g1, g2 := newGateway(a1), newGateway(a2)

	tk := build(t, "T-shared", ticket.Single{Selection: sel("e1", "2.0")}, "10")
	_, err := g1.Submit(context.Background(), Request{RequestID: "r1", Tickets: []*ticket.Ticket{tk}})
	require.NoError(t, err)

	_, err = g2.Submit(context.Background(), Request{RequestID: "r2", Tickets: []*ticket.Ticket{tk}})
	assert.ErrorIs(t, err, ErrDuplicateTicket)
	assert.Equal(t, 1, a1.placedCount())
	assert.Zero(t, a2.placedCount())
}
