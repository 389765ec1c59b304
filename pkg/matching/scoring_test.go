package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "lower cases", input: "ACME Supplies", expected: "acme supplies"},
		{name: "punctuation becomes separator", input: "ACME Supply Co.", expected: "acme supply co"},
		{name: "collapses whitespace", input: "  ACME   Supply \t Co ", expected: "acme supply co"},
		{name: "strips diacritics", input: "Café Façade", expected: "cafe facade"},
		{name: "keeps digits", input: "Route-66 Paving", expected: "route 66 paving"},
		{name: "empty", input: "", expected: ""},
		{name: "only punctuation", input: "--..", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestScorer_Ratio(t *testing.T) {
	s := NewScorer()

	tests := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{name: "identical", a: "acme", b: "acme", expected: 100},
		{name: "disjoint", a: "abc", b: "xyz", expected: 0},
		{name: "empty side", a: "", b: "acme", expected: 0},
		{name: "kitten sitting", a: "kitten", b: "sitting", expected: 100 * 8.0 / 13.0},
		{name: "multibyte runes count once", a: "über", b: "uber", expected: 75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, s.Ratio(tt.a, tt.b), 0.001)
		})
	}
}

func TestScorer_TokenSortRatio(t *testing.T) {
	s := NewScorer()

	tests := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{name: "identical", a: "ACME Supplies Ltd", b: "ACME Supplies Ltd", expected: 100},
		{name: "token order ignored", a: "Supplies ACME Ltd", b: "ACME Supplies Ltd", expected: 100},
		{name: "case and punctuation ignored", a: "acme supplies, ltd.", b: "ACME Supplies Ltd", expected: 100},
		{name: "diacritics ignored", a: "Café Noir", b: "Cafe Noir", expected: 100},
		{name: "near alias", a: "ACME Supply", b: "ACME Supplies", expected: 100 * 20.0 / 24.0},
		{name: "suffix alias", a: "ACME Supply", b: "ACME Supply Co.", expected: 100 * 22.0 / 25.0},
		{name: "missing suffix", a: "ACME Supply", b: "ACME Supplies Ltd", expected: 100 * 20.0 / 28.0},
		{name: "empty", a: "", b: "ACME", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, s.TokenSortRatio(tt.a, tt.b), 0.001)
		})
	}
}

func TestScorer_TokenSortRatioIsSymmetric(t *testing.T) {
	s := NewScorer()
	pairs := [][2]string{
		{"ACME Supply", "ACME Supplies Ltd"},
		{"Skyline Tower", "Tower Skyline Phase 2"},
		{"Bob's Plumbing", "Plumbing by Bob"},
	}
	for _, p := range pairs {
		assert.InDelta(t, s.TokenSortRatio(p[0], p[1]), s.TokenSortRatio(p[1], p[0]), 0.0001, "%q vs %q", p[0], p[1])
	}
}
