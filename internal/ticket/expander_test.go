package ticket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func eventIDs(l Leg) []string {
	out := make([]string, len(l.Selections))
	for i, s := range l.Selections {
		out[i] = s.EventID
	}
	return out
}

func TestExpandSystemLexicographic(t *testing.T) {
	legs, err := Expand(System{Selections: sels(4), Sizes: []int{3, 2, 2}})
	require.NoError(t, err)
	require.Len(t, legs, 6+4)

	want := [][]string{
		{"sr:match:1", "sr:match:2"}, {"sr:match:1", "sr:match:3"}, {"sr:match:1", "sr:match:4"},
		{"sr:match:2", "sr:match:3"}, {"sr:match:2", "sr:match:4"}, {"sr:match:3", "sr:match:4"},
		{"sr:match:1", "sr:match:2", "sr:match:3"}, {"sr:match:1", "sr:match:2", "sr:match:4"},
		{"sr:match:1", "sr:match:3", "sr:match:4"}, {"sr:match:2", "sr:match:3", "sr:match:4"},
	}
	for i, l := range legs {
		assert.Equal(t, i, l.Index)
		assert.Equal(t, want[i], eventIDs(l))
	}
}

func TestExpandFullSizeProducesAccumulatorLeg(t *testing.T) {
	in := sels(3)
	legs, err := Expand(System{Selections: in, Sizes: []int{3}})
	require.NoError(t, err)
	require.Len(t, legs, 1)
	assert.Equal(t, in, legs[0].Selections)
	assert.Equal(t, 3, legs[0].Size)
}

func TestExpandBankerSystem(t *testing.T) {
	bankers := []Selection{sel("b1", "1.2"), sel("b2", "1.3")}
	legs, err := Expand(BankerSystem{Bankers: bankers, Selections: sels(3), Sizes: []int{2}})
	require.NoError(t, err)
	require.Len(t, legs, 3)
	for _, l := range legs {
		assert.Equal(t, 4, l.Size)
		assert.Equal(t, []string{"sr:match:b1", "sr:match:b2"}, eventIDs(l)[:2])
	}
	assert.Equal(t, []string{"sr:match:b1", "sr:match:b2", "sr:match:2", "sr:match:3"}, eventIDs(legs[2]))
}

func TestExpandPresets(t *testing.T) {
	cases := map[string]int{
		"trixie":       4,
		"patent":       7,
		"yankee":       11,
		"lucky15":      15,
		"lucky_15":     15,
		"super_yankee": 26,
		"canadian":     26,
		"lucky31":      31,
		"heinz":        57,
		"lucky63":      63,
		"super_heinz":  120,
		"goliath":      247,
	}
	for name, want := range cases {
		spec, ok := LookupPreset(name)
		require.True(t, ok, name)
		legs, err := Expand(Preset{Name: name, Selections: sels(spec.Selections)})
		require.NoError(t, err)
		assert.Len(t, legs, want, name)
	}
}

func TestExpandTrixie(t *testing.T) {
	legs, err := Expand(Preset{Name: "trixie", Selections: sels(3)})
	require.NoError(t, err)
	require.Len(t, legs, 4)
	for _, l := range legs[:3] {
		assert.Equal(t, 2, l.Size)
	}
	assert.Equal(t, 3, legs[3].Size)
}

func TestExpandMultiKeepsSubBetsApart(t *testing.T) {
	m := Multi{Bets: []SubBet{
		{Shape: Single{Selection: sel("1", "2.0")}, Stake: total("5")},
		{Shape: System{Selections: sels(3), Sizes: []int{2}}, Stake: unit("1")},
		{Shape: Accumulator{Selections: sels(2)}, Stake: total("5")},
	}}
	legs, err := Expand(m)
	require.NoError(t, err)
	require.Len(t, legs, 1+3+1)

	wantSub := []int{0, 1, 1, 1, 2}
	for i, l := range legs {
		assert.Equal(t, i, l.Index)
		assert.Equal(t, wantSub[i], l.SubBet)
	}
}

func TestCombinationCount(t *testing.T) {
	assert.Equal(t, 1, CombinationCount(5, 0))
	assert.Equal(t, 10, CombinationCount(5, 2))
	assert.Equal(t, 70, CombinationCount(8, 4))
	assert.Equal(t, 0, CombinationCount(3, 4))
}

func TestPropertySystemLegCount(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(3, 10).Draw(t, "n")
		sizes := rapid.SliceOfN(rapid.IntRange(2, n), 1, 6).Draw(t, "sizes")

		legs, err := Expand(System{Selections: sels(n), Sizes: sizes})
		if err != nil {
			t.Fatalf("expand: %v", err)
		}
		want := 0
		for _, s := range NormalizeSizes(sizes) {
			want += CombinationCount(n, s)
		}
		if len(legs) != want {
			t.Fatalf("got %d legs, want %d (n=%d sizes=%v)", len(legs), want, n, sizes)
		}

		// tamanhos crescentes e seleções em ordem de índice dentro de cada perna
		prev := 0
		for _, l := range legs {
			if l.Size < prev {
				t.Fatalf("sizes out of order: %d after %d", l.Size, prev)
			}
			prev = l.Size
			seen := map[string]bool{}
			for _, s := range l.Selections {
				if seen[s.EventID] {
					t.Fatalf("selection %s repeated in leg %d", s.EventID, l.Index)
				}
				seen[s.EventID] = true
			}
		}
	})
}
