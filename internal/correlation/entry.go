package correlation

import (
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrUnknownTicket    = errors.New("unknown ticket")
	ErrUnknownLeg       = errors.New("leg index out of range")
	ErrAlreadyFinished  = errors.New("entry already finished")
	ErrDuplicateRequest = errors.New("request already registered")
	ErrDuplicateTicket  = errors.New("ticket already registered")
)

type legKey struct {
	ticket int // posição do ticket em ticketIDs
	leg    int
}

// Entry é o estado pendente de uma requisição. Todas as mutações passam pelo mu.
type Entry struct {
	mu sync.Mutex

	requestID string
	ticketIDs []string
	legCounts map[string]int
	ticketPos map[string]int
	expected  int
	received  map[legKey]LegResult
	state     State
	createdAt time.Time
	deadline  time.Time
	timer     *time.Timer

	sink Sink
	log  *zap.Logger
	now  func() time.Time
	done func(*Entry, State)
}

// Snapshot é uma cópia somente-leitura do estado de uma entrada
type Snapshot struct {
	RequestID string
	TicketIDs []string
	State     State
	Expected  int
	Received  int
	CreatedAt time.Time
	Deadline  time.Time
}

func (e *Entry) RequestID() string { return e.requestID }

func (e *Entry) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		RequestID: e.requestID,
		TicketIDs: append([]string(nil), e.ticketIDs...),
		State:     e.state,
		Expected:  e.expected,
		Received:  len(e.received),
		CreatedAt: e.createdAt,
		Deadline:  e.deadline,
	}
}

// record aplica uma resposta de perna. A primeira resposta por perna vale;
// repetições e respostas após estado terminal são descartadas.
func (e *Entry) record(r LegResult) error {
	e.mu.Lock()
	if e.state.Terminal() {
		st := e.state
		e.mu.Unlock()
		e.log.Info("late leg result discarded",
			zap.String("request_id", e.requestID),
			zap.String("ticket_id", r.TicketID),
			zap.Int("leg_index", r.LegIndex),
			zap.Stringer("state", st),
		)
		return ErrAlreadyFinished
	}

	pos := e.ticketPos[r.TicketID]
	if r.LegIndex < 0 || r.LegIndex >= e.legCounts[r.TicketID] {
		e.mu.Unlock()
		e.log.Warn("leg result out of range",
			zap.String("request_id", e.requestID),
			zap.String("ticket_id", r.TicketID),
			zap.Int("leg_index", r.LegIndex),
		)
		return ErrUnknownLeg
	}
	k := legKey{ticket: pos, leg: r.LegIndex}
	if _, dup := e.received[k]; dup {
		e.mu.Unlock()
		e.log.Debug("duplicate leg result ignored",
			zap.String("ticket_id", r.TicketID),
			zap.Int("leg_index", r.LegIndex),
		)
		return nil
	}
	e.received[k] = r

	if len(e.received) < e.expected {
		e.state = PartiallyResolved
		if e.expected > 1 {
			e.sink.OnPartial(Progress{
				RequestID: e.requestID,
				TicketIDs: e.ticketIDs,
				Completed: len(e.received),
				Expected:  e.expected,
				Last:      r,
			})
		}
		e.mu.Unlock()
		return nil
	}

	e.state = Resolved
	if e.timer != nil {
		e.timer.Stop()
	}
	e.sink.OnResolved(e.outcomeLocked())
	e.mu.Unlock()

	e.done(e, Resolved)
	return nil
}

// expire é disparado pelo timer do deadline; perde para uma resolução já feita.
func (e *Entry) expire() {
	e.mu.Lock()
	if e.state.Terminal() {
		e.mu.Unlock()
		return
	}
	e.state = TimedOut
	e.sink.OnTimeout(e.outcomeLocked())
	e.mu.Unlock()

	e.log.Warn("correlation entry timed out",
		zap.String("request_id", e.requestID),
		zap.Strings("ticket_ids", e.ticketIDs),
	)
	e.done(e, TimedOut)
}

// cancel é consultivo: para de esperar respostas e libera a entrada, sem emitir.
func (e *Entry) cancel() bool {
	e.mu.Lock()
	if e.state.Terminal() {
		e.mu.Unlock()
		return false
	}
	e.state = Cancelled
	if e.timer != nil {
		e.timer.Stop()
	}
	e.mu.Unlock()

	e.done(e, Cancelled)
	return true
}

func (e *Entry) outcomeLocked() Outcome {
	o := Outcome{
		RequestID:  e.requestID,
		TicketIDs:  append([]string(nil), e.ticketIDs...),
		State:      e.state,
		Expected:   e.expected,
		Received:   len(e.received),
		LegCounts:  make(map[string]int, len(e.legCounts)),
		CreatedAt:  e.createdAt,
		FinishedAt: e.now(),
	}
	for id, n := range e.legCounts {
		o.LegCounts[id] = n
	}
	keys := make([]legKey, 0, len(e.received))
	for k := range e.received {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ticket != keys[j].ticket {
			return keys[i].ticket < keys[j].ticket
		}
		return keys[i].leg < keys[j].leg
	})
	for _, k := range keys {
		r := e.received[k]
		if r.Status == LegAccepted {
			o.Accepted++
		} else {
			o.Rejected++
		}
		o.Legs = append(o.Legs, r)
	}
	return o
}
