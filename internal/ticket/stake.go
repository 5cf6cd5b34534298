package ticket

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Rounding é o modo de arredondamento aplicado por perna no modo total
type Rounding string

const (
	RoundBankers Rounding = "bankers" // half-even
	RoundHalfUp  Rounding = "half_up"
)

// ParseRounding converte o valor de configuração; vazio vira bankers.
func ParseRounding(s string) (Rounding, error) {
	switch Rounding(strings.ToLower(strings.TrimSpace(s))) {
	case "", RoundBankers:
		return RoundBankers, nil
	case RoundHalfUp:
		return RoundHalfUp, nil
	}
	return "", fmt.Errorf("unknown stake rounding %q", s)
}

// expoentes ISO 4217 que diferem do padrão de 2 casas
var minorUnits = map[string]int32{
	"JPY": 0, "KRW": 0, "VND": 0, "CLP": 0, "ISK": 0, "UGX": 0,
	"BHD": 3, "KWD": 3, "OMR": 3, "JOD": 3, "TND": 3, "LYD": 3, "IQD": 3,
}

// MinorUnits retorna a precisão em casas decimais da moeda
func MinorUnits(currency string) int32 {
	if p, ok := minorUnits[strings.ToUpper(currency)]; ok {
		return p
	}
	return 2
}

// StakeResolver distribui o stake declarado entre as pernas
type StakeResolver struct {
	Rounding Rounding
}

func (r StakeResolver) round(d decimal.Decimal, places int32) decimal.Decimal {
	if r.Rounding == RoundHalfUp {
		return d.Round(places)
	}
	return d.RoundBank(places)
}

// Resolve retorna o stake de cada perna, na mesma ordem de legs.
// No modo total a última perna absorve o resíduo, então a soma é exatamente amount.
func (r StakeResolver) Resolve(stake Stake, legCount int) []decimal.Decimal {
	if legCount <= 0 {
		return nil
	}
	out := make([]decimal.Decimal, legCount)
	if stake.Mode == ModeUnit {
		for i := range out {
			out[i] = stake.Amount
		}
		return out
	}

	places := MinorUnits(stake.Currency)
	n := decimal.NewFromInt(int64(legCount))
	share := r.round(stake.Amount.Div(n), places)
	// arredondar para cima pode deixar a última perna negativa
	if share.Mul(decimal.NewFromInt(int64(legCount - 1))).GreaterThan(stake.Amount) {
		share = stake.Amount.Div(n).RoundFloor(places)
	}

	sum := decimal.Zero
	for i := 0; i < legCount-1; i++ {
		out[i] = share
		sum = sum.Add(share)
	}
	out[legCount-1] = stake.Amount.Sub(sum)
	return out
}

// Apply preenche o stake de cada perna; em Multi cada sub-bet resolve contra o próprio stake.
func (r StakeResolver) Apply(shape Shape, stake Stake, legs []Leg) {
	if m, ok := shape.(Multi); ok {
		for i, b := range m.Bets {
			var pos []int
			for j := range legs {
				if legs[j].SubBet == i {
					pos = append(pos, j)
				}
			}
			for k, amt := range r.Resolve(b.Stake, len(pos)) {
				legs[pos[k]].Stake = amt
			}
		}
		return
	}
	for i, amt := range r.Resolve(stake, len(legs)) {
		legs[i].Stake = amt
	}
}
