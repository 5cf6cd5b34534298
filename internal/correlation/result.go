package correlation

import (
	"fmt"
	"time"
)

// State é o estado de uma entrada de correlação
type State int

const (
	Pending State = iota
	PartiallyResolved
	Resolved
	TimedOut
	Cancelled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case PartiallyResolved:
		return "partially_resolved"
	case Resolved:
		return "resolved"
	case TimedOut:
		return "timed_out"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal indica se a entrada não aceita mais respostas
func (s State) Terminal() bool {
	return s == Resolved || s == TimedOut || s == Cancelled
}

type LegStatus string

const (
	LegAccepted LegStatus = "accepted"
	LegRejected LegStatus = "rejected"
)

// LegResult é a resposta do downstream para uma perna de um ticket
type LegResult struct {
	TicketID string    `json:"ticketId"`
	LegIndex int       `json:"legIndex"`
	Status   LegStatus `json:"status"`
	Code     int       `json:"code,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// Progress é a notificação intermediária de um ticket com várias pernas
type Progress struct {
	RequestID string
	TicketIDs []string
	Completed int
	Expected  int
	Last      LegResult
}

// Ratio formata o progresso como "n/m"
func (p Progress) Ratio() string {
	return fmt.Sprintf("%d/%d", p.Completed, p.Expected)
}

// Outcome é o resultado terminal (resolvido ou expirado) de uma entrada
type Outcome struct {
	RequestID  string         `json:"requestId"`
	TicketIDs  []string       `json:"ticketIds"`
	State      State          `json:"-"`
	Expected   int            `json:"total"`
	Received   int            `json:"received"`
	Accepted   int            `json:"accepted"`
	Rejected   int            `json:"rejected"`
	Legs       []LegResult    `json:"details"`
	LegCounts  map[string]int `json:"-"` // pernas esperadas por ticket
	CreatedAt  time.Time      `json:"createdAt"`
	FinishedAt time.Time      `json:"finishedAt"`
}

// Status resume o resultado: accepted, rejected, partially_accepted ou timed_out
func (o Outcome) Status() string {
	switch {
	case o.State == TimedOut:
		return "timed_out"
	case o.Accepted == o.Expected:
		return "accepted"
	case o.Accepted == 0:
		return "rejected"
	}
	return "partially_accepted"
}

// TicketStatus resume só as pernas de um ticket
func (o Outcome) TicketStatus(ticketID string) string {
	acc, rej := 0, 0
	for _, l := range o.Legs {
		if l.TicketID != ticketID {
			continue
		}
		if l.Status == LegAccepted {
			acc++
		} else {
			rej++
		}
	}
	switch {
	case o.State == TimedOut:
		return "timed_out"
	case rej == 0:
		return "accepted"
	case acc == 0:
		return "rejected"
	}
	return "partially_accepted"
}

// Sink recebe as emissões de uma entrada. As chamadas acontecem com o lock
// da entrada adquirido: não podem bloquear nem chamar a Table de volta.
type Sink interface {
	OnPartial(Progress)
	OnResolved(Outcome)
	OnTimeout(Outcome)
}

// SinkFuncs adapta funções soltas para Sink; campos nil são ignorados
type SinkFuncs struct {
	Partial  func(Progress)
	Resolved func(Outcome)
	Timeout  func(Outcome)
}

func (f SinkFuncs) OnPartial(p Progress) {
	if f.Partial != nil {
		f.Partial(p)
	}
}

func (f SinkFuncs) OnResolved(o Outcome) {
	if f.Resolved != nil {
		f.Resolved(o)
	}
}

func (f SinkFuncs) OnTimeout(o Outcome) {
	if f.Timeout != nil {
		f.Timeout(o)
	}
}

type tee []Sink

// Tee repassa cada emissão para todos os sinks, em ordem
func Tee(sinks ...Sink) Sink {
	var out tee
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (t tee) OnPartial(p Progress) {
	for _, s := range t {
		s.OnPartial(p)
	}
}

func (t tee) OnResolved(o Outcome) {
	for _, s := range t {
		s.OnResolved(o)
	}
}

func (t tee) OnTimeout(o Outcome) {
	for _, s := range t {
		s.OnTimeout(o)
	}
}
