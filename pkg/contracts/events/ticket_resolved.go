package events

import "time"

// Evento publicado no tópico "ticket_resolved" quando a correlação termina
// (todas as pernas respondidas ou deadline estourado).
type TicketResolved struct {
	RequestID string     `json:"requestId"`
	TicketID  string     `json:"ticketId"`
	Status    string     `json:"status"` // accepted | rejected | partially_accepted | timed_out
	Expected  int        `json:"expected"`
	Accepted  int        `json:"accepted"`
	Rejected  int        `json:"rejected"`
	Legs      []LegState `json:"legs"`
	Ts        time.Time  `json:"ts"`
}

type LegState struct {
	LegIndex int    `json:"legIndex"`
	Status   string `json:"status"`
	Code     int    `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
}
