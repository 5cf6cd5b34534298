package correlation

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

const shardCount = 32

// TicketLegs informa quantas pernas um ticket espera
type TicketLegs struct {
	TicketID string
	Legs     int
}

// Spec descreve uma entrada a ser aberta
type Spec struct {
	RequestID string
	Tickets   []TicketLegs
	Deadline  time.Duration
	Sink      Sink
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// Table é o mapa de correlação do processo: requestId/ticketId -> entrada pendente.
// Os índices são particionados em shards com lock próprio; o estado de cada
// entrada é protegido pelo lock da própria entrada.
type Table struct {
	requests [shardCount]*shard
	tickets  [shardCount]*shard
	log      *zap.Logger
	now      func() time.Time
	open     atomic.Int64

	// OnTerminal é chamado uma vez por entrada ao atingir estado terminal (métricas)
	OnTerminal func(State)
}

func NewTable(log *zap.Logger) *Table {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Table{log: log, now: time.Now}
	for i := 0; i < shardCount; i++ {
		t.requests[i] = &shard{entries: make(map[string]*Entry)}
		t.tickets[i] = &shard{entries: make(map[string]*Entry)}
	}
	return t
}

func pick(shards *[shardCount]*shard, key string) *shard {
	return shards[xxhash.Sum64String(key)%shardCount]
}

func (s *shard) get(key string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

func (s *shard) putIfAbsent(key string, e *Entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; ok {
		return false
	}
	s.entries[key] = e
	return true
}

func (s *shard) deleteIf(key string, e *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.entries[key]; ok && cur == e {
		delete(s.entries, key)
	}
}

// Open cria a entrada e arma o timer do deadline.
func (t *Table) Open(spec Spec) (*Entry, error) {
	if spec.RequestID == "" {
		return nil, errors.New("correlation: request id is required")
	}
	if len(spec.Tickets) == 0 {
		return nil, errors.New("correlation: at least one ticket is required")
	}
	if spec.Deadline <= 0 {
		return nil, errors.New("correlation: deadline must be positive")
	}

	now := t.now()
	e := &Entry{
		requestID: spec.RequestID,
		legCounts: make(map[string]int, len(spec.Tickets)),
		ticketPos: make(map[string]int, len(spec.Tickets)),
		received:  make(map[legKey]LegResult),
		state:     Pending,
		createdAt: now,
		deadline:  now.Add(spec.Deadline),
		sink:      spec.Sink,
		log:       t.log,
		now:       t.now,
		done:      t.finish,
	}
	if e.sink == nil {
		e.sink = SinkFuncs{}
	}
	for i, tl := range spec.Tickets {
		if tl.Legs <= 0 {
			return nil, errors.New("correlation: ticket " + tl.TicketID + " has no legs")
		}
		if _, dup := e.legCounts[tl.TicketID]; dup {
			return nil, ErrDuplicateTicket
		}
		e.ticketIDs = append(e.ticketIDs, tl.TicketID)
		e.legCounts[tl.TicketID] = tl.Legs
		e.ticketPos[tl.TicketID] = i
		e.expected += tl.Legs
	}

	if !pick(&t.requests, spec.RequestID).putIfAbsent(spec.RequestID, e) {
		return nil, ErrDuplicateRequest
	}
	for i, id := range e.ticketIDs {
		if !pick(&t.tickets, id).putIfAbsent(id, e) {
			for _, prev := range e.ticketIDs[:i] {
				pick(&t.tickets, prev).deleteIf(prev, e)
			}
			pick(&t.requests, spec.RequestID).deleteIf(spec.RequestID, e)
			return nil, ErrDuplicateTicket
		}
	}
	t.open.Add(1)

	e.mu.Lock()
	if !e.state.Terminal() {
		e.timer = time.AfterFunc(spec.Deadline, e.expire)
	}
	e.mu.Unlock()
	return e, nil
}

// Deliver roteia uma resposta de perna para a entrada do ticket.
// Respostas de tickets já finalizados (ou desconhecidos) são logadas e descartadas.
func (t *Table) Deliver(r LegResult) error {
	e, ok := pick(&t.tickets, r.TicketID).get(r.TicketID)
	if !ok {
		t.log.Info("leg result for unknown ticket discarded",
			zap.String("ticket_id", r.TicketID),
			zap.Int("leg_index", r.LegIndex),
			zap.String("status", string(r.Status)),
		)
		return ErrUnknownTicket
	}
	return e.record(r)
}

// Cancel libera a entrada sem emitir resultado. Não retira nada do downstream.
func (t *Table) Cancel(requestID string) bool {
	e, ok := pick(&t.requests, requestID).get(requestID)
	if !ok {
		return false
	}
	return e.cancel()
}

// Lookup retorna o estado da entrada que contém o ticket
func (t *Table) Lookup(ticketID string) (Snapshot, bool) {
	e, ok := pick(&t.tickets, ticketID).get(ticketID)
	if !ok {
		return Snapshot{}, false
	}
	return e.Snapshot(), true
}

// LookupRequest retorna o estado da entrada de uma requisição
func (t *Table) LookupRequest(requestID string) (Snapshot, bool) {
	e, ok := pick(&t.requests, requestID).get(requestID)
	if !ok {
		return Snapshot{}, false
	}
	return e.Snapshot(), true
}

// Len retorna o número de entradas abertas
func (t *Table) Len() int { return int(t.open.Load()) }

func (t *Table) finish(e *Entry, st State) {
	pick(&t.requests, e.requestID).deleteIf(e.requestID, e)
	for _, id := range e.ticketIDs {
		pick(&t.tickets, id).deleteIf(id, e)
	}
	t.open.Add(-1)
	if t.OnTerminal != nil {
		t.OnTerminal(st)
	}
}
