package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// BalanceTolerance is the largest debit/credit discrepancy still treated as balanced
// when checking an entry that is being edited.
var BalanceTolerance = decimal.NewFromFloat(0.01)

// EntryLine is one side of a double-entry line as typed by the user.
// Debit and Credit are expected to be mutually exclusive but nothing here enforces it.
type EntryLine struct {
	AccountCode string          `json:"account_code"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

// BalanceCheck is the outcome of summing an entry's lines.
type BalanceCheck struct {
	LineCount   int             `json:"line_count"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	Discrepancy decimal.Decimal `json:"discrepancy"`
	Balanced    bool            `json:"balanced"`
}

// CheckBalance sums debits and credits and compares them within BalanceTolerance.
// It does not look at the line count; see ValidateBalance.
func CheckBalance(lines []EntryLine) BalanceCheck {
	debit, credit := decimal.Zero, decimal.Zero
	for _, l := range lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	diff := debit.Sub(credit).Abs()
	return BalanceCheck{
		LineCount:   len(lines),
		TotalDebit:  debit,
		TotalCredit: credit,
		Discrepancy: diff,
		Balanced:    diff.LessThan(BalanceTolerance),
	}
}

// ValidateBalance rejects entries with fewer than two lines regardless of balance,
// then rejects entries whose discrepancy reaches the tolerance.
// The check is returned in every case so callers can display the totals.
func ValidateBalance(lines []EntryLine) (BalanceCheck, error) {
	check := CheckBalance(lines)
	if len(lines) < 2 {
		return check, ErrTooFewLines
	}
	if !check.Balanced {
		return check, fmt.Errorf("%w: debits %s, credits %s, difference %s", ErrUnbalanced,
			check.TotalDebit.StringFixed(2), check.TotalCredit.StringFixed(2), check.Discrepancy.StringFixed(2))
	}
	return check, nil
}
