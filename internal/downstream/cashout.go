package downstream

import "time"

const (
	OpCashoutInform = "cashout-inform"
	OpCashoutReply  = "cashout-inform-reply"
	OpCashoutAck    = "cashout-inform-ack"
)

// Tipos de cashout aceitos pela autoridade
const (
	CashoutTicket        = "ticket"
	CashoutTicketPartial = "ticket-partial"
	CashoutBet           = "bet"
	CashoutBetPartial    = "bet-partial"
)

type CashoutRequest struct {
	Operation     string         `json:"operation"`
	CorrelationID string         `json:"correlationId"`
	TimestampUTC  int64          `json:"timestampUtc"`
	Version       string         `json:"version"`
	Content       CashoutContent `json:"content"`
}

type CashoutContent struct {
	Type    string      `json:"type"` // "cashout-inform"
	Cashout CashoutInfo `json:"cashout"`
}

type CashoutInfo struct {
	Type      string        `json:"type"` // "cashout"
	CashoutID string        `json:"cashoutId"`
	Details   CashoutDetail `json:"details"`
}

type CashoutDetail struct {
	Type            string   `json:"type"`
	TicketID        string   `json:"ticketId"`
	TicketSignature string   `json:"ticketSignature"`
	Code            int      `json:"code"`
	Percentage      string   `json:"percentage,omitempty"` // só nos parciais
	BetID           string   `json:"betId,omitempty"`      // só nos de bet
	Payout          []Payout `json:"payout"`
}

type Payout struct {
	Type     string `json:"type"` // cash | free
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
}

type CashoutReply struct {
	Operation     string              `json:"operation"`
	CorrelationID string              `json:"correlationId"`
	TimestampUTC  int64               `json:"timestampUtc"`
	Version       string              `json:"version"`
	Content       CashoutReplyContent `json:"content"`
}

type CashoutReplyContent struct {
	Type      string `json:"type"` // "cashout-inform-reply"
	CashoutID string `json:"cashoutId"`
	TicketID  string `json:"ticketId"`
	Status    string `json:"status"`
	Signature string `json:"signature"`
	Code      int    `json:"code"`
	Message   string `json:"message,omitempty"`
}

type CashoutAck struct {
	Operation     string            `json:"operation"`
	CorrelationID string            `json:"correlationId"`
	TimestampUTC  int64             `json:"timestampUtc"`
	Version       string            `json:"version"`
	Content       CashoutAckContent `json:"content"`
}

type CashoutAckContent struct {
	Type             string `json:"type"` // "cashout-inform-ack"
	CashoutID        string `json:"cashoutId"`
	CashoutSignature string `json:"cashoutSignature"`
	Acknowledged     bool   `json:"acknowledged"`
}

// NewCashoutRequest embrulha o detalhe no envelope do protocolo
func NewCashoutRequest(cashoutID string, d CashoutDetail, correlationID string, now time.Time) CashoutRequest {
	return CashoutRequest{
		Operation:     OpCashoutInform,
		CorrelationID: correlationID,
		TimestampUTC:  now.UnixMilli(),
		Version:       ProtocolVersion,
		Content: CashoutContent{
			Type:    OpCashoutInform,
			Cashout: CashoutInfo{Type: "cashout", CashoutID: cashoutID, Details: d},
		},
	}
}

func NewCashoutAck(r CashoutReply, now time.Time) CashoutAck {
	return CashoutAck{
		Operation:     OpCashoutAck,
		CorrelationID: r.CorrelationID,
		TimestampUTC:  now.UnixMilli(),
		Version:       ProtocolVersion,
		Content: CashoutAckContent{
			Type:             OpCashoutAck,
			CashoutID:        r.Content.CashoutID,
			CashoutSignature: r.Content.Signature,
			Acknowledged:     true,
		},
	}
}
