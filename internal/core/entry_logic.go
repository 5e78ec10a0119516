package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// JournalEntryInput is a journal entry as submitted for posting.
// Currency and ExchangeRate are header-level: every line shares them.
type JournalEntryInput struct {
	CompanyCode    string          `json:"company_code"`
	PostingDate    string          `json:"posting_date"`
	DocumentDate   string          `json:"document_date"`
	Memo           string          `json:"memo"`
	Reference      string          `json:"reference"`
	Currency       string          `json:"currency"`
	ExchangeRate   decimal.Decimal `json:"exchange_rate"`
	IdempotencyKey string          `json:"idempotency_key"`
	SourceType     string          `json:"source_type"`
	Lines          []EntryLine     `json:"lines"`
}

// PostingLine is a validated line ready to be written: exactly one side, rounded to fils.
type PostingLine struct {
	AccountCode string
	IsDebit     bool
	Amount      decimal.Decimal // transaction currency
	BaseAmount  decimal.Decimal // company base currency
}

// Normalize cleans up whitespace and fills header defaults.
func (in *JournalEntryInput) Normalize() {
	in.CompanyCode = strings.TrimSpace(in.CompanyCode)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	in.PostingDate = strings.TrimSpace(in.PostingDate)
	in.DocumentDate = strings.TrimSpace(in.DocumentDate)
	in.Memo = strings.TrimSpace(in.Memo)
	in.Reference = strings.TrimSpace(in.Reference)

	if in.DocumentDate == "" {
		in.DocumentDate = in.PostingDate
	}
	if in.ExchangeRate.IsZero() {
		in.ExchangeRate = decimal.NewFromInt(1)
	}
	if in.SourceType == "" {
		in.SourceType = "manual"
	}
	for i := range in.Lines {
		in.Lines[i].AccountCode = strings.TrimSpace(in.Lines[i].AccountCode)
	}
}

// Validate enforces the posting rules and returns the lines to write.
// Unlike ValidateBalance, posting is exact: amounts are rounded to 2 dp and the
// rounded base debits must equal the rounded base credits.
func (in *JournalEntryInput) Validate() ([]PostingLine, error) {
	if in.CompanyCode == "" {
		return nil, invalid("company code is required")
	}
	if in.Currency == "" {
		return nil, invalid("currency is required")
	}
	if in.PostingDate == "" {
		return nil, invalid("posting date is required")
	}
	if _, err := time.Parse(dateLayout, in.PostingDate); err != nil {
		return nil, invalid("posting date %q must be YYYY-MM-DD", in.PostingDate)
	}
	if _, err := time.Parse(dateLayout, in.DocumentDate); err != nil {
		return nil, invalid("document date %q must be YYYY-MM-DD", in.DocumentDate)
	}
	if !in.ExchangeRate.IsPositive() {
		return nil, invalid("exchange rate must be > 0, got %s", in.ExchangeRate)
	}

	var out []PostingLine
	for i, l := range in.Lines {
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			return nil, invalid("line %d: amounts cannot be negative", i+1)
		}
		hasDebit, hasCredit := l.Debit.IsPositive(), l.Credit.IsPositive()
		if hasDebit && hasCredit {
			return nil, invalid("line %d: a line cannot carry both a debit and a credit", i+1)
		}
		if !hasDebit && !hasCredit {
			continue
		}
		if l.AccountCode == "" {
			return nil, invalid("line %d: account code is required", i+1)
		}
		amt := l.Debit
		if hasCredit {
			amt = l.Credit
		}
		amt = amt.Round(2)
		if amt.IsZero() {
			return nil, invalid("line %d: amount rounds to zero", i+1)
		}
		out = append(out, PostingLine{
			AccountCode: l.AccountCode,
			IsDebit:     hasDebit,
			Amount:      amt,
			BaseAmount:  amt.Mul(in.ExchangeRate).Round(2),
		})
	}

	if len(out) < 2 {
		return nil, ErrTooFewLines
	}

	debit, credit := decimal.Zero, decimal.Zero
	for _, l := range out {
		if l.IsDebit {
			debit = debit.Add(l.BaseAmount)
		} else {
			credit = credit.Add(l.BaseAmount)
		}
	}
	if !debit.Equal(credit) {
		return nil, fmt.Errorf("%w: base currency debits %s != credits %s", ErrUnbalanced,
			debit.StringFixed(2), credit.StringFixed(2))
	}
	return out, nil
}
