package producer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/mts-gateway/internal/correlation"
	"github.com/radieske/mts-gateway/internal/gateway"
	"github.com/radieske/mts-gateway/internal/ticket"
	"github.com/radieske/mts-gateway/pkg/contracts/events"
)

type memWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (m *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func TestPlacedPublishesTicketEvent(t *testing.T) {
	placed := &memWriter{}
	p := NewKafkaPublisher(placed, &memWriter{}, zap.NewNop())

	sels := []ticket.Selection{
		{EventID: "e1", Odds: decimal.RequireFromString("2")},
		{EventID: "e2", Odds: decimal.RequireFromString("3")},
		{EventID: "e3", Odds: decimal.RequireFromString("4")},
	}
	tk, err := ticket.NewBuilder().Build("T-1", ticket.Preset{Name: "trixie", Selections: sels},
		ticket.NewStake("EUR", decimal.RequireFromString("1.50"), ticket.ModeUnit))
	require.NoError(t, err)

	env := gateway.Envelope{TicketID: "T-1", Status: gateway.StatusAccepted, Signature: "sig",
		SubBets: []gateway.SubBetStatus{{Index: 0, BetID: "T-1-0", Status: gateway.StatusAccepted}}}
	require.NoError(t, p.Placed(context.Background(), tk, env))

	require.Len(t, placed.msgs, 1)
	assert.Equal(t, "T-1", string(placed.msgs[0].Key))

	var e events.TicketPlaced
	require.NoError(t, json.Unmarshal(placed.msgs[0].Value, &e))
	assert.Equal(t, "preset", e.Kind)
	assert.Equal(t, 4, e.LegCount)
	assert.Equal(t, "6", e.Stake)
	assert.Equal(t, "EUR", e.Currency)
	require.Len(t, e.SubBets, 1)
}

func TestFinishedPublishesOneEventPerTicket(t *testing.T) {
	resolved := &memWriter{}
	p := NewKafkaPublisher(&memWriter{}, resolved, zap.NewNop())

	o := correlation.Outcome{
		RequestID: "r1",
		TicketIDs: []string{"A", "B"},
		State:     correlation.Resolved,
		Expected:  3,
		LegCounts: map[string]int{"A": 1, "B": 2},
		Legs: []correlation.LegResult{
			{TicketID: "A", LegIndex: 0, Status: correlation.LegRejected, Code: 7, Message: "void"},
			{TicketID: "B", LegIndex: 0, Status: correlation.LegAccepted},
			{TicketID: "B", LegIndex: 1, Status: correlation.LegAccepted},
		},
		FinishedAt: time.Now(),
	}
	require.NoError(t, p.Finished(context.Background(), o))
	require.Len(t, resolved.msgs, 2)

	var a, b events.TicketResolved
	require.NoError(t, json.Unmarshal(resolved.msgs[0].Value, &a))
	require.NoError(t, json.Unmarshal(resolved.msgs[1].Value, &b))
	assert.Equal(t, "rejected", a.Status)
	assert.Equal(t, 1, a.Expected)
	assert.Equal(t, "void", a.Legs[0].Message)
	assert.Equal(t, "accepted", b.Status)
	assert.Equal(t, 2, b.Accepted)
}

func TestPublishErrorIsReturned(t *testing.T) {
	boom := errors.New("broker down")
	p := NewKafkaPublisher(&memWriter{err: boom}, &memWriter{err: boom}, zap.NewNop())
	err := p.Finished(context.Background(), correlation.Outcome{RequestID: "r", TicketIDs: []string{"X"}})
	assert.ErrorIs(t, err, boom)
}
