package ticket

import "strings"

// Kind identifica a variante estrutural da aposta
type Kind string

const (
	KindSingle       Kind = "single"
	KindAccumulator  Kind = "accumulator"
	KindSystem       Kind = "system"
	KindBankerSystem Kind = "banker_system"
	KindPreset       Kind = "preset"
	KindMulti        Kind = "multi"
	KindMalformed    Kind = "malformed"
)

// Shape é a variante fechada de formatos de aposta.
// Só os tipos deste pacote implementam shape().
type Shape interface {
	Kind() Kind
	shape()
}

type Single struct {
	Selection Selection
}

type Accumulator struct {
	Selections []Selection
}

// System combina as seleções em todos os k-subconjuntos para cada tamanho pedido.
type System struct {
	Selections []Selection
	Sizes      []int
}

// BankerSystem é um System em que os bankers entram inteiros em toda combinação.
type BankerSystem struct {
	Bankers    []Selection
	Selections []Selection
	Sizes      []int
}

// Preset é um sistema nomeado (trixie, yankee, ...) com tamanhos fixos.
type Preset struct {
	Name       string
	Selections []Selection
}

// SubBet é uma aposta completa dentro de um Multi, com stake próprio.
type SubBet struct {
	Shape Shape
	Stake Stake
}

type Multi struct {
	Bets []SubBet
}

// Malformed guarda um sub-bet que não pôde ser montado (type desconhecido,
// aridade errada). A rejeição fica para o Validator, na posição da regra.
type Malformed struct {
	Type       string
	Selections []Selection
	Violation  ViolationKind
	Detail     string
}

func (Single) Kind() Kind       { return KindSingle }
func (Accumulator) Kind() Kind  { return KindAccumulator }
func (System) Kind() Kind       { return KindSystem }
func (BankerSystem) Kind() Kind { return KindBankerSystem }
func (Preset) Kind() Kind       { return KindPreset }
func (Multi) Kind() Kind        { return KindMulti }
func (Malformed) Kind() Kind    { return KindMalformed }

func (Single) shape()       {}
func (Accumulator) shape()  {}
func (System) shape()       {}
func (BankerSystem) shape() {}
func (Preset) shape()       {}
func (Multi) shape()        {}
func (Malformed) shape()    {}

// selectionsOf retorna todas as seleções de um shape simples (bankers primeiro).
func selectionsOf(s Shape) []Selection {
	switch v := s.(type) {
	case Single:
		return []Selection{v.Selection}
	case Accumulator:
		return v.Selections
	case System:
		return v.Selections
	case BankerSystem:
		out := make([]Selection, 0, len(v.Bankers)+len(v.Selections))
		out = append(out, v.Bankers...)
		return append(out, v.Selections...)
	case Preset:
		return v.Selections
	case Malformed:
		return v.Selections
	}
	return nil
}

// PresetSpec descreve um sistema nomeado: tamanhos e número exato de seleções
type PresetSpec struct {
	Name       string
	Sizes      []int
	Selections int
}

var presets = map[string]PresetSpec{
	"trixie":       {Name: "trixie", Sizes: []int{2, 3}, Selections: 3},
	"patent":       {Name: "patent", Sizes: []int{1, 2, 3}, Selections: 3},
	"yankee":       {Name: "yankee", Sizes: []int{2, 3, 4}, Selections: 4},
	"lucky15":      {Name: "lucky15", Sizes: []int{1, 2, 3, 4}, Selections: 4},
	"super_yankee": {Name: "super_yankee", Sizes: []int{2, 3, 4, 5}, Selections: 5},
	"lucky31":      {Name: "lucky31", Sizes: []int{1, 2, 3, 4, 5}, Selections: 5},
	"heinz":        {Name: "heinz", Sizes: []int{2, 3, 4, 5, 6}, Selections: 6},
	"lucky63":      {Name: "lucky63", Sizes: []int{1, 2, 3, 4, 5, 6}, Selections: 6},
	"super_heinz":  {Name: "super_heinz", Sizes: []int{2, 3, 4, 5, 6, 7}, Selections: 7},
	"goliath":      {Name: "goliath", Sizes: []int{2, 3, 4, 5, 6, 7, 8}, Selections: 8},
}

var presetAliases = map[string]string{
	"lucky_15": "lucky15",
	"lucky_31": "lucky31",
	"lucky_63": "lucky63",
	"canadian": "super_yankee",
}

// LookupPreset resolve o nome (ou alias) de um preset
func LookupPreset(name string) (PresetSpec, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if canon, ok := presetAliases[n]; ok {
		n = canon
	}
	p, ok := presets[n]
	return p, ok
}
