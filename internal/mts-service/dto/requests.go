package dto

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/radieske/mts-gateway/internal/ticket"
)

// Odds e amount aceitam número ou string JSON (decimal.Decimal trata os dois)
type SelectionRequest struct {
	ProductID  string          `json:"productId"`
	EventID    string          `json:"eventId"`
	MarketID   string          `json:"marketId"`
	OutcomeID  string          `json:"outcomeId"`
	Odds       decimal.Decimal `json:"odds"`
	Specifiers string          `json:"specifiers,omitempty"`
}

type StakeRequest struct {
	Type     string          `json:"type"`     // "cash"
	Currency string          `json:"currency"` // EUR, USD...
	Amount   decimal.Decimal `json:"amount"`
	Mode     string          `json:"mode"` // total | unit
}

type SingleBetRequest struct {
	TicketID  string           `json:"ticketId"`
	Selection SelectionRequest `json:"selection"`
	Stake     StakeRequest     `json:"stake"`
}

type AccumulatorBetRequest struct {
	TicketID   string             `json:"ticketId"`
	Selections []SelectionRequest `json:"selections"`
	Stake      StakeRequest       `json:"stake"`
}

type SystemBetRequest struct {
	TicketID   string             `json:"ticketId"`
	Size       []int              `json:"size"`
	Selections []SelectionRequest `json:"selections"`
	Stake      StakeRequest       `json:"stake"`
}

type BankerSystemBetRequest struct {
	TicketID   string             `json:"ticketId"`
	Bankers    []SelectionRequest `json:"bankers"`
	Size       []int              `json:"size"`
	Selections []SelectionRequest `json:"selections"`
	Stake      StakeRequest       `json:"stake"`
}

type PresetBetRequest struct {
	TicketID   string             `json:"ticketId"`
	Type       string             `json:"type"` // trixie, yankee, lucky15...
	Selections []SelectionRequest `json:"selections"`
	Stake      StakeRequest       `json:"stake"`
}

type MultiBetRequest struct {
	TicketID string          `json:"ticketId"`
	Bets     []BetDefinition `json:"bets"`
}

// BetDefinition é um sub-bet de um multi
type BetDefinition struct {
	Type       string             `json:"type"` // single, accumulator, system, banker_system ou nome de preset
	Selection  *SelectionRequest  `json:"selection,omitempty"`
	Selections []SelectionRequest `json:"selections"`
	Bankers    []SelectionRequest `json:"bankers,omitempty"`
	Size       []int              `json:"size,omitempty"`
	Stake      StakeRequest       `json:"stake"`
}

// BetRequest é implementado por todas as requisições de aposta
type BetRequest interface {
	ID() string
	Shape() ticket.Shape
	StakeValue() ticket.Stake
}

func (r SelectionRequest) toSelection() ticket.Selection {
	return ticket.Selection{
		ProductID:  r.ProductID,
		EventID:    r.EventID,
		MarketID:   r.MarketID,
		OutcomeID:  r.OutcomeID,
		Specifiers: r.Specifiers,
		Odds:       r.Odds,
	}
}

func toSelections(in []SelectionRequest) []ticket.Selection {
	out := make([]ticket.Selection, len(in))
	for i, s := range in {
		out[i] = s.toSelection()
	}
	return out
}

func (s StakeRequest) toStake() ticket.Stake {
	typ := s.Type
	if typ == "" {
		typ = ticket.StakeTypeCash
	}
	return ticket.Stake{
		Type:     typ,
		Currency: strings.ToUpper(s.Currency),
		Amount:   s.Amount,
		Mode:     ticket.StakeMode(strings.ToLower(s.Mode)),
	}
}

func (r SingleBetRequest) ID() string               { return r.TicketID }
func (r SingleBetRequest) StakeValue() ticket.Stake { return r.Stake.toStake() }
func (r SingleBetRequest) Shape() ticket.Shape      { return ticket.Single{Selection: r.Selection.toSelection()} }

func (r AccumulatorBetRequest) ID() string               { return r.TicketID }
func (r AccumulatorBetRequest) StakeValue() ticket.Stake { return r.Stake.toStake() }
func (r AccumulatorBetRequest) Shape() ticket.Shape {
	return ticket.Accumulator{Selections: toSelections(r.Selections)}
}

func (r SystemBetRequest) ID() string               { return r.TicketID }
func (r SystemBetRequest) StakeValue() ticket.Stake { return r.Stake.toStake() }
func (r SystemBetRequest) Shape() ticket.Shape {
	return ticket.System{Selections: toSelections(r.Selections), Sizes: r.Size}
}

func (r BankerSystemBetRequest) ID() string               { return r.TicketID }
func (r BankerSystemBetRequest) StakeValue() ticket.Stake { return r.Stake.toStake() }
func (r BankerSystemBetRequest) Shape() ticket.Shape {
	return ticket.BankerSystem{Bankers: toSelections(r.Bankers), Selections: toSelections(r.Selections), Sizes: r.Size}
}

func (r PresetBetRequest) ID() string               { return r.TicketID }
func (r PresetBetRequest) StakeValue() ticket.Stake { return r.Stake.toStake() }
func (r PresetBetRequest) Shape() ticket.Shape {
	return ticket.Preset{Name: r.Type, Selections: toSelections(r.Selections)}
}

func (r MultiBetRequest) ID() string { return r.TicketID }

// StakeValue de um multi fica vazio: cada sub-bet carrega o seu
func (r MultiBetRequest) StakeValue() ticket.Stake { return ticket.Stake{} }

func (r MultiBetRequest) Shape() ticket.Shape {
	m := ticket.Multi{Bets: make([]ticket.SubBet, 0, len(r.Bets))}
	for _, b := range r.Bets {
		m.Bets = append(m.Bets, ticket.SubBet{Shape: b.Shape(), Stake: b.Stake.toStake()})
	}
	return m
}

func (b BetDefinition) StakeValue() ticket.Stake { return b.Stake.toStake() }

// Shape converte o sub-bet conforme o type; nomes de preset são aceitos direto.
// Type desconhecido ou aridade errada vira ticket.Malformed e o Validator rejeita.
func (b BetDefinition) Shape() ticket.Shape {
	sels := toSelections(b.Selections)
	switch typ := strings.ToLower(strings.TrimSpace(b.Type)); typ {
	case "single":
		if b.Selection != nil {
			return ticket.Single{Selection: b.Selection.toSelection()}
		}
		if len(sels) != 1 {
			return ticket.Malformed{Type: typ, Selections: sels, Violation: ticket.InsufficientSelections,
				Detail: "single bet requires exactly 1 selection, got " + strconv.Itoa(len(sels))}
		}
		return ticket.Single{Selection: sels[0]}
	case "accumulator":
		return ticket.Accumulator{Selections: sels}
	case "system":
		return ticket.System{Selections: sels, Sizes: b.Size}
	case "banker", "banker_system", "banker-system":
		return ticket.BankerSystem{Bankers: toSelections(b.Bankers), Selections: sels, Sizes: b.Size}
	case "preset":
		return ticket.Malformed{Type: typ, Selections: sels, Violation: ticket.UnsupportedShape,
			Detail: "preset sub-bets must name the preset in type"}
	default:
		if _, ok := ticket.LookupPreset(typ); ok {
			return ticket.Preset{Name: typ, Selections: sels}
		}
		return ticket.Malformed{Type: b.Type, Selections: sels, Violation: ticket.UnsupportedShape,
			Detail: "unsupported bet type " + strconv.Quote(b.Type)}
	}
}
