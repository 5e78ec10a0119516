package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func line(code, debit, credit string) EntryLine {
	return EntryLine{AccountCode: code, Debit: dec(debit), Credit: dec(credit)}
}

func TestCheckBalance_Exact(t *testing.T) {
	check, err := ValidateBalance([]EntryLine{
		line("1100", "100", "0"),
		line("4000", "0", "100"),
	})
	require.NoError(t, err)
	assert.True(t, check.Balanced)
	assert.True(t, check.Discrepancy.IsZero())
	assert.True(t, check.TotalDebit.Equal(dec("100")))
	assert.True(t, check.TotalCredit.Equal(dec("100")))
}

func TestCheckBalance_WithinTolerance(t *testing.T) {
	check, err := ValidateBalance([]EntryLine{
		line("1100", "100", "0"),
		line("4000", "0", "99.995"),
	})
	require.NoError(t, err)
	assert.True(t, check.Balanced)
	assert.True(t, check.Discrepancy.Equal(dec("0.005")))
}

func TestCheckBalance_Unbalanced(t *testing.T) {
	check, err := ValidateBalance([]EntryLine{
		line("1100", "100", "0"),
		line("4000", "0", "90"),
	})
	require.ErrorIs(t, err, ErrUnbalanced)
	assert.False(t, check.Balanced)
	assert.True(t, check.Discrepancy.Equal(dec("10")), "got %s", check.Discrepancy)
}

func TestCheckBalance_ToleranceIsExclusive(t *testing.T) {
	check := CheckBalance([]EntryLine{
		line("1100", "100", "0"),
		line("4000", "0", "99.99"),
	})
	assert.False(t, check.Balanced)
}

func TestValidateBalance_TooFewLines(t *testing.T) {
	cases := map[string][]EntryLine{
		"none":        nil,
		"single zero": {line("1100", "0", "0")},
		"single line": {line("1100", "100", "100")},
	}
	for name, lines := range cases {
		t.Run(name, func(t *testing.T) {
			check, err := ValidateBalance(lines)
			assert.ErrorIs(t, err, ErrTooFewLines)
			assert.Equal(t, len(lines), check.LineCount)
		})
	}
}

func TestCheckBalance_ZeroLinesAbsorbed(t *testing.T) {
	check, err := ValidateBalance([]EntryLine{
		line("1100", "250.50", "0"),
		line("2200", "0", "0"),
		line("4000", "0", "250.50"),
	})
	require.NoError(t, err)
	assert.True(t, check.Balanced)
	assert.Equal(t, 3, check.LineCount)
}

func TestCheckBalance_FloatRounding(t *testing.T) {
	// 0.1 + 0.2 style inputs arriving from float-typed clients.
	check := CheckBalance([]EntryLine{
		{AccountCode: "1100", Debit: decimal.NewFromFloat(0.1)},
		{AccountCode: "1100", Debit: decimal.NewFromFloat(0.2)},
		{AccountCode: "4000", Credit: decimal.NewFromFloat(0.3)},
	})
	assert.True(t, check.Balanced)
}

func TestCheckBalance_ManyLines(t *testing.T) {
	var lines []EntryLine
	for i := 0; i < 10; i++ {
		lines = append(lines, line("5100", "33.33", "0"))
	}
	lines = append(lines, line("1100", "0", "333.30"))
	check, err := ValidateBalance(lines)
	require.NoError(t, err)
	assert.True(t, check.TotalDebit.Equal(dec("333.30")))
}
