package simulator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/mts-gateway/internal/downstream"
	"github.com/radieske/mts-gateway/internal/ticket"
)

// sequence devolve os valores em ordem e repete o último
func sequence(vals ...float64) func() float64 {
	var mu sync.Mutex
	i := 0
	return func() float64 {
		mu.Lock()
		defer mu.Unlock()
		v := vals[i]
		if i < len(vals)-1 {
			i++
		}
		return v
	}
}

func newSim(t *testing.T, decide func() float64) (*Server, *httptest.Server) {
	t.Helper()
	sim := New(zap.NewNop(), Config{AcceptRate: 0.5, LegAcceptRate: 0.5})
	sim.Decide = decide
	sim.Delay = func() time.Duration { return 0 }
	srv := httptest.NewServer(sim.Handler())
	t.Cleanup(srv.Close)
	return sim, srv
}

type legSink struct {
	mu   sync.Mutex
	legs []downstream.LegResultContent
}

func (l *legSink) add(r downstream.LegResultContent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.legs = append(l.legs, r)
}

func (l *legSink) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.legs)
}

func connect(t *testing.T, srv *httptest.Server, sink *legSink) *downstream.Client {
	t.Helper()
	c := downstream.NewClient("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", zap.NewNop(), time.Second)
	c.OnLegResult = sink.add
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.Start(ctx)
	require.Eventually(t, c.Connected, 2*time.Second, 10*time.Millisecond)
	return c
}

func sel(event string) ticket.Selection {
	return ticket.Selection{ProductID: "3", EventID: event, MarketID: "1", OutcomeID: "1", Odds: decimal.RequireFromString("2.0")}
}

func request(t *testing.T, id string, shape ticket.Shape) downstream.TicketRequest {
	t.Helper()
	mode := ticket.ModeTotal
	if shape.Kind() == ticket.KindSystem {
		mode = ticket.ModeUnit
	}
	tk, err := ticket.NewBuilder().Build(id, shape, ticket.NewStake("EUR", decimal.NewFromInt(12), mode))
	require.NoError(t, err)
	return downstream.NewTicketRequest(tk, uuid.NewString(), time.Now())
}

func TestAcceptedTicketGetsOneResultPerLeg(t *testing.T) {
	// ticket aceito, pernas alternando aceita/recusada
	sim, srv := newSim(t, sequence(0.1, 0.1, 0.9, 0.1))
	var acks sync.WaitGroup
	acks.Add(1)
	sim.OnAck = acks.Done

	sink := &legSink{}
	c := connect(t, srv, sink)

	req := request(t, "T-1", ticket.System{Selections: []ticket.Selection{sel("e1"), sel("e2"), sel("e3")}, Sizes: []int{2}})
	reply, err := c.Place(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, downstream.StatusAccepted, reply.Content.Status)
	assert.NotEmpty(t, reply.Content.Signature)
	require.Len(t, reply.Content.BetDetails, 1)

	require.Eventually(t, func() bool { return sink.len() == 3 }, 2*time.Second, 10*time.Millisecond)
	statuses := map[int]string{}
	for _, l := range sink.legs {
		statuses[l.LegIndex] = l.Status
	}
	assert.Len(t, statuses, 3)

	require.NoError(t, c.Ack(context.Background(), reply))
	acks.Wait()
}

func TestRejectedTicketSendsNoLegResults(t *testing.T) {
	_, srv := newSim(t, sequence(0.99))
	sink := &legSink{}
	c := connect(t, srv, sink)

	reply, err := c.Place(context.Background(), request(t, "T-2", ticket.Single{Selection: sel("e1")}))
	require.NoError(t, err)
	assert.Equal(t, downstream.StatusRejected, reply.Content.Status)
	require.NotNil(t, reply.Content.Reason)
	assert.Equal(t, CodeTicketRejected, reply.Content.Reason.Code)

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, sink.len())
}

func TestMultiSubBetsAreDecidedIndependently(t *testing.T) {
	// ticket aceito, sub-bet 0 aceito, sub-bet 1 recusado, perna aceita
	_, srv := newSim(t, sequence(0.1, 0.1, 0.9, 0.1))
	sink := &legSink{}
	c := connect(t, srv, sink)

	stake := ticket.NewStake("EUR", decimal.NewFromInt(5), ticket.ModeTotal)
	shape := ticket.Multi{Bets: []ticket.SubBet{
		{Shape: ticket.Single{Selection: sel("e1")}, Stake: stake},
		{Shape: ticket.Single{Selection: sel("e2")}, Stake: stake},
	}}
	reply, err := c.Place(context.Background(), request(t, "T-3", shape))
	require.NoError(t, err)
	require.Len(t, reply.Content.BetDetails, 2)
	assert.Equal(t, downstream.StatusAccepted, reply.Content.BetDetails[0].Status)
	assert.Equal(t, downstream.StatusRejected, reply.Content.BetDetails[1].Status)

	require.Eventually(t, func() bool { return sink.len() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, sink.legs[0].LegIndex)
}

func TestCashoutChecksTicketSignature(t *testing.T) {
	sim, srv := newSim(t, sequence(0.1))
	var statuses []string
	var mu sync.Mutex
	sim.OnCashout = func(st string) {
		mu.Lock()
		statuses = append(statuses, st)
		mu.Unlock()
	}
	c := connect(t, srv, &legSink{})

	placed, err := c.Place(context.Background(), request(t, "T-4", ticket.Single{Selection: sel("e1")}))
	require.NoError(t, err)
	require.Equal(t, downstream.StatusAccepted, placed.Content.Status)

	inform := func(id, sig string) downstream.CashoutReply {
		req := downstream.NewCashoutRequest(id, downstream.CashoutDetail{
			Type: downstream.CashoutTicket, TicketID: "T-4", TicketSignature: sig, Code: 100,
			Payout: []downstream.Payout{{Type: "cash", Currency: "EUR", Amount: "6"}},
		}, uuid.NewString(), time.Now())
		reply, err := c.Cashout(context.Background(), req)
		require.NoError(t, err)
		return reply
	}

	ok := inform("C-1", placed.Content.Signature)
	assert.Equal(t, downstream.StatusAccepted, ok.Content.Status)
	assert.Equal(t, "C-1", ok.Content.CashoutID)
	assert.NotEmpty(t, ok.Content.Signature)

	bad := inform("C-2", "forged")
	assert.Equal(t, downstream.StatusRejected, bad.Content.Status)
	assert.Equal(t, CodeUnknownTicket, bad.Content.Code)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(statuses) == 2 && statuses[0] == "accepted" && statuses[1] == "rejected"
	}, time.Second, 10*time.Millisecond)
}

func TestHealth(t *testing.T) {
	_, srv := newSim(t, sequence(0.1))
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
