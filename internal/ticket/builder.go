package ticket

import (
	"time"

	"github.com/shopspring/decimal"
)

// SubBetInfo resume um sub-bet do ticket (um único para shapes não-Multi)
type SubBetInfo struct {
	Index    int
	Kind     Kind
	Stake    Stake
	FirstLeg int
	LegCount int
}

// Ticket é imutável depois de construído; qualquer correção exige um novo ticket.
type Ticket struct {
	id        string
	shape     Shape
	stake     Stake
	legs      []Leg
	subBets   []SubBetInfo
	createdAt time.Time
}

func (t *Ticket) ID() string           { return t.id }
func (t *Ticket) Kind() Kind           { return t.shape.Kind() }
func (t *Ticket) Shape() Shape         { return cloneShape(t.shape) }
func (t *Ticket) Stake() Stake         { return t.stake }
func (t *Ticket) LegCount() int        { return len(t.legs) }
func (t *Ticket) CreatedAt() time.Time { return t.createdAt }

// Legs retorna uma cópia das pernas
func (t *Ticket) Legs() []Leg {
	out := make([]Leg, len(t.legs))
	for i, l := range t.legs {
		l.Selections = clone(l.Selections)
		out[i] = l
	}
	return out
}

func (t *Ticket) SubBets() []SubBetInfo {
	out := make([]SubBetInfo, len(t.subBets))
	copy(out, t.subBets)
	return out
}

// TotalStake soma o stake resolvido de todas as pernas
func (t *Ticket) TotalStake() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range t.legs {
		sum = sum.Add(l.Stake)
	}
	return sum
}

// Currency do ticket; em Multi vale a moeda do primeiro sub-bet
func (t *Ticket) Currency() string {
	if len(t.subBets) > 0 {
		return t.subBets[0].Stake.Currency
	}
	return t.stake.Currency
}

// Builder orquestra Validator -> Expander -> StakeResolver.
// Não guarda estado entre chamadas; duplicidade de ticketId é tratada no gateway.
type Builder struct {
	resolver StakeResolver
	now      func() time.Time
}

type BuilderOption func(*Builder)

func WithRounding(r Rounding) BuilderOption {
	return func(b *Builder) { b.resolver.Rounding = r }
}

func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{resolver: StakeResolver{Rounding: RoundBankers}, now: time.Now}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Build valida, expande e resolve o stake, montando o Ticket imutável.
func (b *Builder) Build(ticketID string, shape Shape, stake Stake) (*Ticket, error) {
	if err := Validate(ticketID, shape, stake); err != nil {
		return nil, err
	}
	legs, err := Expand(shape)
	if err != nil {
		return nil, err
	}
	if len(legs) == 0 {
		return nil, reject(InsufficientSelections, "bet produced no legs")
	}
	b.resolver.Apply(shape, stake, legs)

	t := &Ticket{
		id:        ticketID,
		shape:     cloneShape(shape),
		stake:     stake,
		legs:      legs,
		createdAt: b.now().UTC(),
	}
	if m, ok := shape.(Multi); ok {
		first := 0
		for i, sb := range m.Bets {
			n := 0
			for _, l := range legs {
				if l.SubBet == i {
					n++
				}
			}
			t.subBets = append(t.subBets, SubBetInfo{Index: i, Kind: sb.Shape.Kind(), Stake: sb.Stake, FirstLeg: first, LegCount: n})
			first += n
		}
	} else {
		t.subBets = []SubBetInfo{{Index: 0, Kind: shape.Kind(), Stake: stake, LegCount: len(legs)}}
	}
	return t, nil
}

// cloneShape copia as fatias de seleções e tamanhos; o Ticket não compartilha
// memória com quem o construiu nem com quem lê Shape().
func cloneShape(s Shape) Shape {
	switch v := s.(type) {
	case Accumulator:
		return Accumulator{Selections: clone(v.Selections)}
	case System:
		return System{Selections: clone(v.Selections), Sizes: append([]int(nil), v.Sizes...)}
	case BankerSystem:
		return BankerSystem{Bankers: clone(v.Bankers), Selections: clone(v.Selections), Sizes: append([]int(nil), v.Sizes...)}
	case Preset:
		return Preset{Name: v.Name, Selections: clone(v.Selections)}
	case Multi:
		bets := make([]SubBet, len(v.Bets))
		for i, b := range v.Bets {
			bets[i] = SubBet{Shape: cloneShape(b.Shape), Stake: b.Stake}
		}
		return Multi{Bets: bets}
	}
	return s
}
