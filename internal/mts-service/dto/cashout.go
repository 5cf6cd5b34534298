package dto

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/mts-gateway/internal/downstream"
)

// ErrInvalidCashout marca falhas de validação do pedido de cashout
var ErrInvalidCashout = errors.New("invalid cashout")

type PayoutRequest struct {
	Type     string          `json:"type"` // cash | free
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

type CashoutRequest struct {
	CashoutID       string           `json:"cashoutId"`
	TicketID        string           `json:"ticketId"`
	TicketSignature string           `json:"ticketSignature"`
	Type            string           `json:"type"` // ticket, ticket-partial, bet, bet-partial
	Code            int              `json:"code"`
	Percentage      *decimal.Decimal `json:"percentage,omitempty"`
	BetID           string           `json:"betId,omitempty"`
	Payout          []PayoutRequest  `json:"payout"`
}

func invalidCashout(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidCashout, fmt.Sprintf(format, args...))
}

func (r CashoutRequest) partial() bool {
	return r.Type == downstream.CashoutTicketPartial || r.Type == downstream.CashoutBetPartial
}

// Validate checa os campos na ordem em que o cliente os envia; a primeira falha vence
func (r CashoutRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.CashoutID) == "":
		return invalidCashout("cashoutId is required")
	case strings.TrimSpace(r.TicketID) == "":
		return invalidCashout("ticketId is required")
	case strings.TrimSpace(r.TicketSignature) == "":
		return invalidCashout("ticketSignature is required")
	case r.Type == "":
		return invalidCashout("type is required")
	}
	switch r.Type {
	case downstream.CashoutTicket, downstream.CashoutTicketPartial, downstream.CashoutBet, downstream.CashoutBetPartial:
	default:
		return invalidCashout("invalid type: %s", r.Type)
	}
	if r.Code == 0 {
		return invalidCashout("code is required")
	}
	if len(r.Payout) == 0 {
		return invalidCashout("at least one payout is required")
	}

	if r.partial() {
		if r.Percentage == nil {
			return invalidCashout("percentage is required for partial cashout")
		}
		if !r.Percentage.IsPositive() || r.Percentage.GreaterThan(decimal.NewFromInt(1)) {
			return invalidCashout("percentage must be greater than 0 and at most 1")
		}
	}
	if (r.Type == downstream.CashoutBet || r.Type == downstream.CashoutBetPartial) && r.BetID == "" {
		return invalidCashout("betId is required for bet-level cashout")
	}

	for i, p := range r.Payout {
		switch {
		case p.Type == "":
			return invalidCashout("payout[%d].type is required", i)
		case p.Currency == "":
			return invalidCashout("payout[%d].currency is required", i)
		case !p.Amount.IsPositive():
			return invalidCashout("payout[%d].amount must be greater than 0", i)
		}
	}
	return nil
}

// Wire monta o cashout-inform enviado à autoridade
func (r CashoutRequest) Wire(correlationID string, now time.Time) downstream.CashoutRequest {
	d := downstream.CashoutDetail{
		Type:            r.Type,
		TicketID:        r.TicketID,
		TicketSignature: r.TicketSignature,
		Code:            r.Code,
		BetID:           r.BetID,
	}
	if r.partial() && r.Percentage != nil {
		d.Percentage = r.Percentage.String()
	}
	for _, p := range r.Payout {
		d.Payout = append(d.Payout, downstream.Payout{
			Type:     p.Type,
			Currency: strings.ToUpper(p.Currency),
			Amount:   p.Amount.String(),
		})
	}
	return downstream.NewCashoutRequest(r.CashoutID, d, correlationID, now)
}

// CashoutResponse é o reply síncrono da autoridade devolvido ao cliente
type CashoutResponse struct {
	CashoutID string `json:"cashoutId"`
	TicketID  string `json:"ticketId"`
	Status    string `json:"status"`
	Signature string `json:"signature,omitempty"`
	Code      int    `json:"code"`
	Message   string `json:"message,omitempty"`
}

func NewCashoutResponse(r downstream.CashoutReply) CashoutResponse {
	c := r.Content
	return CashoutResponse{
		CashoutID: c.CashoutID,
		TicketID:  c.TicketID,
		Status:    c.Status,
		Signature: c.Signature,
		Code:      c.Code,
		Message:   c.Message,
	}
}
