package ticket

import (
	"github.com/shopspring/decimal"
)

// Selection é a unidade atômica de aposta (evento/mercado/resultado/odd).
type Selection struct {
	ProductID  string          `json:"productId"`
	EventID    string          `json:"eventId"`
	MarketID   string          `json:"marketId"`
	OutcomeID  string          `json:"outcomeId"`
	Specifiers string          `json:"specifiers,omitempty"`
	Odds       decimal.Decimal `json:"odds"`
}

// StakeMode define como o valor declarado é distribuído entre as pernas
type StakeMode string

const (
	ModeTotal StakeMode = "total" // valor total, dividido entre as pernas
	ModeUnit  StakeMode = "unit"  // valor por perna
)

const StakeTypeCash = "cash"

// Stake é o valor apostado declarado pelo cliente
type Stake struct {
	Type     string          `json:"type"`
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
	Mode     StakeMode       `json:"mode"`
}

// NewStake monta um stake em dinheiro
func NewStake(currency string, amount decimal.Decimal, mode StakeMode) Stake {
	return Stake{Type: StakeTypeCash, Currency: currency, Amount: amount, Mode: mode}
}
