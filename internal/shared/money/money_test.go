package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRound4(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"343333.33333", "343333.3333"},
		{"0.00005", "0.0001"},
		{"-0.00005", "-0.0001"},
		{"10000", "10000"},
		{"1.23444999", "1.2344"},
	}
	for _, tt := range tests {
		got := Round4(MustParse(tt.in))
		assert.True(t, got.Equal(MustParse(tt.want)), "Round4(%s) = %s, want %s", tt.in, got, tt.want)
	}
}

func TestDiv(t *testing.T) {
	got := Div(decimal.NewFromInt(1030000), decimal.NewFromInt(3))
	assert.Equal(t, "343333.3333", got.StringFixed(Scale))

	got = Div(decimal.NewFromInt(2), decimal.NewFromInt(3))
	assert.Equal(t, "0.6667", got.StringFixed(Scale))
}

func TestRoundRate(t *testing.T) {
	got := RoundRate(MustParse("0.18").Div(decimal.NewFromInt(12)))
	assert.True(t, got.Equal(MustParse("0.015")))

	got = RoundRate(MustParse("0.2").Div(decimal.NewFromInt(12)))
	assert.Equal(t, "0.01666667", got.StringFixed(RateScale))
}
