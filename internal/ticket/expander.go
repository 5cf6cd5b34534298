package ticket

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Leg é uma combinação de seleções liquidada de forma independente
type Leg struct {
	Index      int             `json:"index"`
	SubBet     int             `json:"subBet"`
	Size       int             `json:"size"` // tamanho efetivo (bankers inclusos)
	Selections []Selection     `json:"selections"`
	Stake      decimal.Decimal `json:"stake"`
}

// Expand transforma um shape já validado na sequência ordenada de pernas.
// Índices são globais e contíguos; em Multi cada perna carrega o índice do sub-bet.
func Expand(shape Shape) ([]Leg, error) {
	if m, ok := shape.(Multi); ok {
		var out []Leg
		for i, b := range m.Bets {
			legs, err := expandOne(b.Shape)
			if err != nil {
				return nil, err
			}
			for _, l := range legs {
				l.Index = len(out)
				l.SubBet = i
				out = append(out, l)
			}
		}
		return out, nil
	}
	legs, err := expandOne(shape)
	if err != nil {
		return nil, err
	}
	for i := range legs {
		legs[i].Index = i
	}
	return legs, nil
}

func expandOne(shape Shape) ([]Leg, error) {
	switch v := shape.(type) {
	case Single:
		return []Leg{{Size: 1, Selections: []Selection{v.Selection}}}, nil
	case Accumulator:
		return []Leg{{Size: len(v.Selections), Selections: clone(v.Selections)}}, nil
	case System:
		return combine(nil, v.Selections, v.Sizes), nil
	case BankerSystem:
		return combine(v.Bankers, v.Selections, v.Sizes), nil
	case Preset:
		spec, ok := LookupPreset(v.Name)
		if !ok {
			return nil, reject(UnsupportedShape, "unknown preset %q", v.Name)
		}
		return combine(nil, v.Selections, spec.Sizes), nil
	case Multi:
		return nil, reject(UnsupportedShape, "multi bets cannot be nested")
	}
	return nil, reject(UnsupportedShape, "unsupported bet shape %T", shape)
}

// combine gera, para cada tamanho em ordem crescente, todas as k-combinações
// de sels em ordem lexicográfica de índice, prefixadas pelos bankers.
func combine(bankers, sels []Selection, sizes []int) []Leg {
	var legs []Leg
	for _, k := range NormalizeSizes(sizes) {
		if k < 1 || k > len(sels) {
			continue
		}
		idx := make([]int, k)
		for i := range idx {
			idx[i] = i
		}
		for {
			leg := make([]Selection, 0, len(bankers)+k)
			leg = append(leg, bankers...)
			for _, i := range idx {
				leg = append(leg, sels[i])
			}
			legs = append(legs, Leg{Size: len(leg), Selections: leg})

			if !nextCombination(idx, len(sels)) {
				break
			}
		}
	}
	return legs
}

// nextCombination avança idx para a próxima combinação lexicográfica de n elementos
func nextCombination(idx []int, n int) bool {
	k := len(idx)
	i := k - 1
	for i >= 0 && idx[i] == n-k+i {
		i--
	}
	if i < 0 {
		return false
	}
	idx[i]++
	for j := i + 1; j < k; j++ {
		idx[j] = idx[j-1] + 1
	}
	return true
}

// NormalizeSizes remove duplicados e ordena em ordem crescente
func NormalizeSizes(sizes []int) []int {
	seen := make(map[int]struct{}, len(sizes))
	out := make([]int, 0, len(sizes))
	for _, s := range sizes {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Ints(out)
	return out
}

// CombinationCount retorna C(n, k)
func CombinationCount(n, k int) int {
	if k < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	c := 1
	for i := 1; i <= k; i++ {
		c = c * (n - k + i) / i
	}
	return c
}

func clone(s []Selection) []Selection {
	out := make([]Selection, len(s))
	copy(out, s)
	return out
}
