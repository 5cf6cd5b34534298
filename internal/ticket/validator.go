package ticket

import (
	"strconv"
	"strings"
)

// part é um par shape/stake validado de forma independente (sub-bets de um Multi)
type part struct {
	label string
	shape Shape
	stake Stake
}

// Validate aplica as regras estruturais e de stake na ordem fixa:
// ticketId, odds, contagem de seleções, modo do stake, valor do stake.
// A primeira violação encontrada é retornada.
func Validate(ticketID string, shape Shape, stake Stake) error {
	if strings.TrimSpace(ticketID) == "" {
		return reject(MissingTicketID, "ticketId is required")
	}
	if shape == nil {
		return reject(UnsupportedShape, "bet shape is required")
	}

	parts, err := partsOf(shape, stake)
	if err != nil {
		return err
	}

	for _, p := range parts {
		for i, sel := range selectionsOf(p.shape) {
			if !sel.Odds.IsPositive() {
				return reject(InvalidOdds, "%sselection %d has odds %s, must be greater than 0", p.label, i, sel.Odds.String())
			}
		}
	}

	if m, ok := shape.(Multi); ok && len(m.Bets) == 0 {
		return reject(InsufficientSelections, "multi bet requires at least 1 sub-bet")
	}
	for _, p := range parts {
		if err := checkLegCount(p); err != nil {
			return err
		}
	}

	for _, p := range parts {
		if err := checkStakeMode(p); err != nil {
			return err
		}
	}

	for _, p := range parts {
		if !p.stake.Amount.IsPositive() {
			return reject(InvalidStakeAmount, "%sstake amount %s must be greater than 0", p.label, p.stake.Amount.String())
		}
	}
	return nil
}

func partsOf(shape Shape, stake Stake) ([]part, error) {
	m, ok := shape.(Multi)
	if !ok {
		return []part{{shape: shape, stake: stake}}, nil
	}
	out := make([]part, 0, len(m.Bets))
	for i, b := range m.Bets {
		if b.Shape == nil {
			return nil, reject(UnsupportedShape, "sub-bet %d has no shape", i)
		}
		if b.Shape.Kind() == KindMulti {
			return nil, reject(UnsupportedShape, "sub-bet %d: multi bets cannot be nested", i)
		}
		out = append(out, part{label: subBetLabel(i), shape: b.Shape, stake: b.Stake})
	}
	return out, nil
}

func subBetLabel(i int) string {
	return "sub-bet " + strconv.Itoa(i) + ": "
}

func checkLegCount(p part) error {
	switch v := p.shape.(type) {
	case Single:
		return nil
	case Accumulator:
		if len(v.Selections) < 2 {
			return reject(InsufficientSelections, "%saccumulator requires at least 2 selections, got %d", p.label, len(v.Selections))
		}
	case System:
		n := len(v.Selections)
		if n < 3 {
			return reject(InsufficientSelections, "%ssystem bet requires at least 3 selections, got %d", p.label, n)
		}
		if len(v.Sizes) == 0 {
			return reject(InvalidSystemSize, "%ssystem bet requires at least one size", p.label)
		}
		for _, s := range v.Sizes {
			if s < 2 || s > n {
				return reject(InvalidSystemSize, "%ssize %d must be between 2 and %d", p.label, s, n)
			}
		}
	case BankerSystem:
		if len(v.Bankers) < 1 {
			return reject(InsufficientSelections, "%sbanker system requires at least 1 banker", p.label)
		}
		n := len(v.Selections)
		if n < 2 {
			return reject(InsufficientSelections, "%sbanker system requires at least 2 non-banker selections, got %d", p.label, n)
		}
		if len(v.Sizes) == 0 {
			return reject(InvalidSystemSize, "%sbanker system requires at least one size", p.label)
		}
		for _, s := range v.Sizes {
			if s < 1 || s > n {
				return reject(InvalidSystemSize, "%ssize %d must be between 1 and %d", p.label, s, n)
			}
		}
	case Preset:
		spec, ok := LookupPreset(v.Name)
		if !ok {
			return reject(UnsupportedShape, "%sunknown preset %q", p.label, v.Name)
		}
		if len(v.Selections) != spec.Selections {
			return reject(SelectionCountMismatch, "%s%s requires exactly %d selections, got %d", p.label, spec.Name, spec.Selections, len(v.Selections))
		}
	case Malformed:
		kind := v.Violation
		if kind == "" {
			kind = UnsupportedShape
		}
		return reject(kind, "%s%s", p.label, v.Detail)
	default:
		return reject(UnsupportedShape, "%sunsupported bet shape %T", p.label, p.shape)
	}
	return nil
}

func checkStakeMode(p part) error {
	switch p.shape.Kind() {
	case KindSingle, KindAccumulator:
		if p.stake.Mode == ModeUnit {
			return reject(InvalidStakeMode, "%sstake mode unit is not allowed for %s bets", p.label, p.shape.Kind())
		}
		if p.stake.Mode != "" && p.stake.Mode != ModeTotal {
			return reject(InvalidStakeMode, "%sunknown stake mode %q", p.label, p.stake.Mode)
		}
	default:
		if p.stake.Mode != ModeUnit {
			return reject(InvalidStakeMode, "%sstake mode must be unit for %s bets", p.label, p.shape.Kind())
		}
	}
	return nil
}
