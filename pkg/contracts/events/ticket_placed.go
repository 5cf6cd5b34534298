package events

// Evento publicado no tópico "ticket_placed" após o reply síncrono do downstream
type TicketPlaced struct {
	TicketID  string        `json:"ticket_id"`
	Kind      string        `json:"kind"`
	Status    string        `json:"status"` // accepted | rejected
	Signature string        `json:"signature,omitempty"`
	Currency  string        `json:"currency"`
	Stake     string        `json:"total_stake"` // decimal em texto
	LegCount  int           `json:"leg_count"`
	SubBets   []SubBetState `json:"sub_bets,omitempty"`
	Code      int           `json:"code,omitempty"`
	Message   string        `json:"message,omitempty"`
	TsUnixMs  int64         `json:"ts_unix_ms"`
}

type SubBetState struct {
	Index  int    `json:"index"`
	BetID  string `json:"bet_id"`
	Status string `json:"status"`
}
