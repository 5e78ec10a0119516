package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryInput(lines ...EntryLine) JournalEntryInput {
	return JournalEntryInput{
		CompanyCode: "1000",
		PostingDate: "2026-03-01",
		Currency:    "aed ",
		Memo:        "Office rent",
		Lines:       lines,
	}
}

func TestJournalEntryInput_Normalize(t *testing.T) {
	in := entryInput(line(" 5100 ", "100", "0"))
	in.Normalize()

	assert.Equal(t, "AED", in.Currency)
	assert.Equal(t, "2026-03-01", in.DocumentDate)
	assert.True(t, in.ExchangeRate.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, "manual", in.SourceType)
	assert.Equal(t, "5100", in.Lines[0].AccountCode)
}

func TestJournalEntryInput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(in *JournalEntryInput)
		lines   []EntryLine
		wantErr error
		count   int
	}{
		{
			name:  "balanced",
			lines: []EntryLine{line("5100", "100", "0"), line("1100", "0", "100")},
			count: 2,
		},
		{
			name:  "zero lines dropped",
			lines: []EntryLine{line("5100", "100", "0"), line("", "0", "0"), line("1100", "0", "100")},
			count: 2,
		},
		{
			name:    "only one non-zero line",
			lines:   []EntryLine{line("5100", "100", "0"), line("1100", "0", "0")},
			wantErr: ErrTooFewLines,
		},
		{
			name:    "both sides on one line",
			lines:   []EntryLine{line("5100", "100", "100"), line("1100", "0", "100")},
			wantErr: ErrInvalid,
		},
		{
			name:    "negative amount",
			lines:   []EntryLine{line("5100", "-100", "0"), line("1100", "0", "-100")},
			wantErr: ErrInvalid,
		},
		{
			name:    "off by ten",
			lines:   []EntryLine{line("5100", "100", "0"), line("1100", "0", "90")},
			wantErr: ErrUnbalanced,
		},
		{
			name:  "rounding to fils balances",
			lines: []EntryLine{line("5100", "100", "0"), line("1100", "0", "99.995")},
			count: 2,
		},
		{
			name:    "tolerance does not apply when posting",
			lines:   []EntryLine{line("5100", "100", "0"), line("1100", "0", "99.994")},
			wantErr: ErrUnbalanced,
		},
		{
			name:    "missing account",
			lines:   []EntryLine{line("", "100", "0"), line("1100", "0", "100")},
			wantErr: ErrInvalid,
		},
		{
			name:    "bad date",
			mutate:  func(in *JournalEntryInput) { in.PostingDate = "01/03/2026" },
			lines:   []EntryLine{line("5100", "100", "0"), line("1100", "0", "100")},
			wantErr: ErrInvalid,
		},
		{
			name:    "negative rate",
			mutate:  func(in *JournalEntryInput) { in.ExchangeRate = dec("-3.67") },
			lines:   []EntryLine{line("5100", "100", "0"), line("1100", "0", "100")},
			wantErr: ErrInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := entryInput(tt.lines...)
			if tt.mutate != nil {
				tt.mutate(&in)
			}
			in.Normalize()
			out, err := in.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, out, tt.count)
		})
	}
}

func TestJournalEntryInput_ForeignCurrency(t *testing.T) {
	in := entryInput(line("5100", "100", "0"), line("1100", "0", "100"))
	in.Currency = "USD"
	in.ExchangeRate = dec("3.6725")
	in.Normalize()

	out, err := in.Validate()
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[0].IsDebit)
	assert.True(t, out[0].BaseAmount.Equal(dec("367.25")), "got %s", out[0].BaseAmount)
	assert.True(t, out[1].Amount.Equal(dec("100")))
}
