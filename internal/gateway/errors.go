package gateway

import "fmt"

// Kind classifica as falhas da submissão
type Kind string

const (
	KindDuplicateTicket    Kind = "DuplicateTicket"
	KindDownstreamRejected Kind = "DownstreamRejected"
	KindDownstreamTimeout  Kind = "DownstreamTimeout"
	KindTransportFailure   Kind = "TransportFailure"
)

// Error é o erro estruturado do gateway (kind + mensagem)
type Error struct {
	Kind     Kind
	TicketID string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.TicketID != "" {
		return fmt.Sprintf("%s: ticket %s: %s", e.Kind, e.TicketID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is casa pelo Kind, para uso com os sentinelas abaixo
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrDuplicateTicket   = &Error{Kind: KindDuplicateTicket, Message: "ticket already submitted"}
	ErrDownstreamTimeout = &Error{Kind: KindDownstreamTimeout, Message: "no reply from downstream"}
	ErrTransportFailure  = &Error{Kind: KindTransportFailure, Message: "downstream unavailable"}
)
