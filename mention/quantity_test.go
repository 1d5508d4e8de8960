package mention

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractQuantities(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Mention
	}{
		{
			name: "bare count with plural noun, hint truncated at conjunction",
			text: "3 pancakes with syrup",
			want: []Mention{{Kind: KindCount, Count: 3, Unit: "pancake", Hint: ""}},
		},
		{
			name: "mass with of-clause hint",
			text: "16oz of grilled chicken",
			want: []Mention{{Kind: KindMass, Count: 16, Unit: "oz", Hint: "grilled chicken"}},
		},
		{
			name: "household unit with synonym folding",
			text: "2 tbsp of peanut butter",
			want: []Mention{{Kind: KindCount, Count: 2, Unit: "tablespoon", Hint: "peanut butter"}},
		},
		{
			name: "number word counts",
			text: "a bowl of oatmeal and two eggs",
			want: []Mention{
				{Kind: KindCount, Count: 1, Unit: "bowl", Hint: "oatmeal"},
				{Kind: KindCount, Count: 2, Unit: "egg", Hint: ""},
			},
		},
		{
			name: "simple fraction",
			text: "1/2 cup of rice",
			want: []Mention{{Kind: KindCount, Count: 0.5, Unit: "cup", Hint: "rice"}},
		},
		{
			name: "mass in pounds canonicalized",
			text: "half pound of ground beef",
			want: []Mention{{Kind: KindMass, Count: 0.5, Unit: "lb", Hint: "ground beef"}},
		},
		{
			name: "dose combo is not claimed as a food count",
			text: "2x200mg ibuprofen",
			want: nil,
		},
		{
			name: "no mentions in plain text",
			text: "feeling pretty tired today",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractQuantities(tt.text)
			require.Len(t, got, len(tt.want), "mentions: %#v", got)
			for i, w := range tt.want {
				assert.Equal(t, w.Kind, got[i].Kind)
				assert.InDelta(t, w.Count, got[i].Count, 1e-9)
				assert.Equal(t, w.Unit, got[i].Unit)
				assert.Equal(t, w.Hint, got[i].Hint)
			}
		})
	}
}

func TestExtractQuantities_SpanClaiming(t *testing.T) {
	// "2 cups" must be claimed by the household pattern; the generic noun
	// pattern must not produce a second mention for the same span.
	got := ExtractQuantities("2 cups of rice")
	require.Len(t, got, 1)
	assert.Equal(t, "cup", got[0].Unit)
}

func TestExtractQuantities_Ordering(t *testing.T) {
	got := ExtractQuantities("200g of rice, 3 pancakes and a slice of toast")
	require.Len(t, got, 3)
	assert.Equal(t, "g", got[0].Unit)
	assert.Equal(t, "pancake", got[1].Unit)
	assert.Equal(t, "slice", got[2].Unit)
	assert.True(t, got[0].Start < got[1].Start && got[1].Start < got[2].Start)
}

func TestMentionGrams(t *testing.T) {
	tests := []struct {
		m    Mention
		want float64
	}{
		{Mention{Kind: KindMass, Count: 100, Unit: "g"}, 100},
		{Mention{Kind: KindMass, Count: 2, Unit: "kg"}, 2000},
		{Mention{Kind: KindMass, Count: 16, Unit: "oz"}, 453.6},
		{Mention{Kind: KindMass, Count: 1, Unit: "lb"}, 453.6},
		{Mention{Kind: KindCount, Count: 3, Unit: "pancake"}, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, tt.m.Grams(), 0.01)
	}
}
