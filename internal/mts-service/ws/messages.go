package ws

import (
	"encoding/json"
	"time"
)

// Tipos de mensagem do canal WebSocket
const (
	// cliente -> servidor
	TypePlaceBet       = "place_bet"
	TypeQueryBetStatus = "query_bet_status"
	TypePing           = "ping"

	// servidor -> cliente
	TypeConnectionEstablished = "connection_established"
	TypeBetReceived           = "bet_received"
	TypeBetPartialResult      = "bet_partial_result"
	TypeBetResult             = "bet_result"
	TypeBetTimeout            = "bet_timeout"
	TypeBetError              = "bet_error"
	TypeBetStatus             = "bet_status"
	TypePong                  = "pong"
)

// ClientMsg representa uma mensagem recebida do cliente
// Type: place_bet | query_bet_status | ping
type ClientMsg struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	BetType   string          `json:"betType,omitempty"` // single, accumulator, system, banker, preset, multi
	TicketID  string          `json:"ticketId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type Base struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func base(typ string) Base { return Base{Type: typ, Timestamp: time.Now().UTC()} }

type ConnectionEstablished struct {
	Base
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

type BetReceived struct {
	Base
	RequestID string   `json:"requestId"`
	TicketID  string   `json:"ticketId,omitempty"`
	TicketIDs []string `json:"ticketIds,omitempty"`
}

type BetPartialResult struct {
	Base
	RequestID string `json:"requestId"`
	Completed string `json:"completed"` // "n/m"
	TicketID  string `json:"ticketId"`
	LegIndex  int    `json:"legIndex"`
	Status    string `json:"status"`
}

type BetResult struct {
	Base
	RequestID string      `json:"requestId"`
	TicketID  string      `json:"ticketId,omitempty"`
	Status    string      `json:"status"` // accepted | rejected | partially_accepted
	Summary   *BetSummary `json:"summary,omitempty"`
}

// BetSummary acompanha o bet_result de requisições com mais de um ticket
type BetSummary struct {
	Total    int            `json:"total"`
	Accepted int            `json:"accepted"`
	Rejected int            `json:"rejected"`
	Tickets  []TicketResult `json:"tickets"`
}

type TicketResult struct {
	TicketID string `json:"ticketId"`
	Status   string `json:"status"`
}

type BetTimeout struct {
	Base
	RequestID string   `json:"requestId"`
	TicketID  string   `json:"ticketId,omitempty"`
	TicketIDs []string `json:"ticketIds,omitempty"`
	Message   string   `json:"message"`
}

type BetError struct {
	Base
	RequestID string `json:"requestId,omitempty"`
	Error     string `json:"error"`
	Code      int    `json:"code"`
	Details   string `json:"details,omitempty"`
}

type BetStatus struct {
	Base
	TicketID string `json:"ticketId"`
	Status   string `json:"status"`
}
