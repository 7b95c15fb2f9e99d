package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "Oprava silnice I/35", normalizeText("  Oprava\tsilnice   I/35\n"))
	// decomposed "č" (c + combining caron) composes to the single code point
	assert.Equal(t, "Most \u010d. 5", normalizeText("Most c\u030c. 5"))
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"1234.50", "1234.5"},
		{"1 234,50", "1234.5"},
		{"1 234 567,00 Kč", "1234567"},
		{"1.234.567,89", "1234567.89"},
		{"1,234,567.89", "1234567.89"},
		{"250000 CZK", "250000"},
		{"15 000,- Kč", "15000"},
		{"1.000.000", "1000000"},
		{"0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseAmount(tt.raw)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestParseAmount_Invalid(t *testing.T) {
	for _, raw := range []string{"", "   ", "neznámo", "12a", "Kč"} {
		_, err := parseAmount(raw)
		assert.Error(t, err, "raw %q", raw)
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"2024-03-05", " 2024-03-05 ", "2024-03-05T14:30:00+01:00", "05.03.2024", "5.3.2024", "5. 3. 2024"} {
		got, err := parseDate(raw)
		require.NoError(t, err, raw)
		assert.True(t, want.Equal(got), "%s parsed as %s", raw, got)
	}

	_, err := parseDate("brezen 2024")
	assert.Error(t, err)
	_, err = parseDate("")
	assert.Error(t, err)
}

func TestParseCoordinate(t *testing.T) {
	v := parseCoordinate("50,0755", 90)
	require.NotNil(t, v)
	assert.InDelta(t, 50.0755, *v, 1e-9)

	assert.Nil(t, parseCoordinate("", 90))
	assert.Nil(t, parseCoordinate("abc", 90))
	assert.Nil(t, parseCoordinate("120", 90))
}

func TestNaturalKey_IgnoresFormatting(t *testing.T) {
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	a := naturalKey("Oprava  silnice", decimal.RequireFromString("100.0"), date, "Stavby s.r.o.", "Obec Lhota")
	b := naturalKey(" oprava silnice ", decimal.RequireFromString("100"), date, "STAVBY s.r.o.", "Obec  Lhota")
	c := naturalKey("Oprava silnice", decimal.RequireFromString("101"), date, "Stavby s.r.o.", "Obec Lhota")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestSameName(t *testing.T) {
	assert.True(t, sameName("Stavby  s.r.o.", "STAVBY s.r.o."))
	assert.False(t, sameName("Stavby s.r.o.", "Stavby a.s."))
}
