package downstream

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/radieske/mts-gateway/internal/ticket"
)

// Operações do protocolo com a autoridade de liquidação
const (
	OpTicketPlacement = "ticket-placement"
	OpTicketReply     = "ticket-placement-reply"
	OpTicketAck       = "ticket-placement-ack"
	OpLegResult       = "leg-result"

	ProtocolVersion = "3.0"

	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

// Message é o cabeçalho comum; Content é decodificado conforme Operation
type Message struct {
	Operation     string          `json:"operation"`
	CorrelationID string          `json:"correlationId"`
	TimestampUTC  int64           `json:"timestampUtc"`
	Version       string          `json:"version"`
	Content       json.RawMessage `json:"content"`
}

type TicketRequest struct {
	Operation     string        `json:"operation"`
	CorrelationID string        `json:"correlationId"`
	TimestampUTC  int64         `json:"timestampUtc"`
	Version       string        `json:"version"`
	Content       TicketContent `json:"content"`
}

type TicketContent struct {
	Type     string `json:"type"` // "ticket"
	TicketID string `json:"ticketId"`
	Bets     []Bet  `json:"bets"`
}

// Bet corresponde a um sub-bet do ticket (um só fora de Multi)
type Bet struct {
	ID     string `json:"id"`
	SubBet int    `json:"subBet"`
	Kind   string `json:"kind"`
	Stake  Stake  `json:"stake"`
	Legs   []Leg  `json:"legs"`
}

type Stake struct {
	Type     string `json:"type"`
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
	Mode     string `json:"mode"`
}

type Leg struct {
	Index      int         `json:"index"`
	Size       int         `json:"size"`
	Stake      string      `json:"stake"`
	Selections []Selection `json:"selections"`
}

type Selection struct {
	Type       string `json:"type"` // "uf"
	ProductID  string `json:"productId"`
	EventID    string `json:"eventId"`
	MarketID   string `json:"marketId"`
	OutcomeID  string `json:"outcomeId"`
	Specifiers string `json:"specifiers,omitempty"`
	Odds       string `json:"odds"`
}

type Reason struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type TicketReply struct {
	Operation     string       `json:"operation"`
	CorrelationID string       `json:"correlationId"`
	TimestampUTC  int64        `json:"timestampUtc"`
	Version       string       `json:"version"`
	Content       ReplyContent `json:"content"`
}

type ReplyContent struct {
	Type       string      `json:"type"` // "ticket-reply"
	TicketID   string      `json:"ticketId"`
	Status     string      `json:"status"`
	Signature  string      `json:"signature"`
	Reason     *Reason     `json:"reason,omitempty"`
	BetDetails []BetDetail `json:"betDetails,omitempty"`
}

type BetDetail struct {
	BetID  string  `json:"betId"`
	SubBet int     `json:"subBet"`
	Status string  `json:"status"`
	Reason *Reason `json:"reason,omitempty"`
}

type LegResultMessage struct {
	Operation     string           `json:"operation"`
	CorrelationID string           `json:"correlationId"`
	TimestampUTC  int64            `json:"timestampUtc"`
	Version       string           `json:"version"`
	Content       LegResultContent `json:"content"`
}

type LegResultContent struct {
	Type     string  `json:"type"` // "leg-result"
	TicketID string  `json:"ticketId"`
	LegIndex int     `json:"legIndex"`
	Status   string  `json:"status"`
	Reason   *Reason `json:"reason,omitempty"`
}

type TicketAck struct {
	Operation     string     `json:"operation"`
	CorrelationID string     `json:"correlationId"`
	TimestampUTC  int64      `json:"timestampUtc"`
	Version       string     `json:"version"`
	Content       AckContent `json:"content"`
}

type AckContent struct {
	Type            string `json:"type"` // "ticket-ack"
	TicketID        string `json:"ticketId"`
	TicketSignature string `json:"ticketSignature"`
	Acknowledged    bool   `json:"acknowledged"`
}

// BetID identifica o sub-bet no downstream
func BetID(ticketID string, subBet int) string {
	return ticketID + "-" + strconv.Itoa(subBet)
}

// NewTicketRequest converte um ticket construído no formato de envio
func NewTicketRequest(t *ticket.Ticket, correlationID string, now time.Time) TicketRequest {
	legs := t.Legs()
	subs := t.SubBets()
	bets := make([]Bet, 0, len(subs))
	for _, sb := range subs {
		b := Bet{
			ID:     BetID(t.ID(), sb.Index),
			SubBet: sb.Index,
			Kind:   string(sb.Kind),
			Stake: Stake{
				Type:     sb.Stake.Type,
				Currency: sb.Stake.Currency,
				Amount:   sb.Stake.Amount.String(),
				Mode:     string(sb.Stake.Mode),
			},
		}
		for _, l := range legs[sb.FirstLeg : sb.FirstLeg+sb.LegCount] {
			wl := Leg{Index: l.Index, Size: l.Size, Stake: l.Stake.String()}
			for _, s := range l.Selections {
				wl.Selections = append(wl.Selections, Selection{
					Type:       "uf",
					ProductID:  s.ProductID,
					EventID:    s.EventID,
					MarketID:   s.MarketID,
					OutcomeID:  s.OutcomeID,
					Specifiers: s.Specifiers,
					Odds:       s.Odds.String(),
				})
			}
			b.Legs = append(b.Legs, wl)
		}
		bets = append(bets, b)
	}
	return TicketRequest{
		Operation:     OpTicketPlacement,
		CorrelationID: correlationID,
		TimestampUTC:  now.UnixMilli(),
		Version:       ProtocolVersion,
		Content:       TicketContent{Type: "ticket", TicketID: t.ID(), Bets: bets},
	}
}

// NewAck monta o ack de um reply recebido
func NewAck(r TicketReply, now time.Time) TicketAck {
	return TicketAck{
		Operation:     OpTicketAck,
		CorrelationID: r.CorrelationID,
		TimestampUTC:  now.UnixMilli(),
		Version:       ProtocolVersion,
		Content: AckContent{
			Type:            "ticket-ack",
			TicketID:        r.Content.TicketID,
			TicketSignature: r.Content.Signature,
			Acknowledged:    true,
		},
	}
}
