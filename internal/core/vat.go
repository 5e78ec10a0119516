package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type VATCategory string

const (
	VATStandard  VATCategory = "standard"
	VATZeroRated VATCategory = "zero_rated"
	VATExempt    VATCategory = "exempt"
)

func (c VATCategory) Valid() bool {
	switch c {
	case VATStandard, VATZeroRated, VATExempt:
		return true
	}
	return false
}

var hundred = decimal.NewFromInt(100)

// ComputeVAT returns the tax on net at rate percent, rounded to fils.
// Only standard-rated amounts carry tax.
func ComputeVAT(net decimal.Decimal, category VATCategory, rate decimal.Decimal) decimal.Decimal {
	if category != VATStandard {
		return decimal.Zero
	}
	return net.Mul(rate).Div(hundred).Round(2)
}

// VATBucket is the net and tax total of one category.
type VATBucket struct {
	Category VATCategory
	Net      decimal.Decimal
	VAT      decimal.Decimal
}

// VATSummary is the data of a VAT return for one period.
type VATSummary struct {
	From              string          `json:"from"`
	To                string          `json:"to"`
	StandardSupplies  decimal.Decimal `json:"standard_supplies"`
	ZeroRatedSupplies decimal.Decimal `json:"zero_rated_supplies"`
	ExemptSupplies    decimal.Decimal `json:"exempt_supplies"`
	OutputVAT         decimal.Decimal `json:"output_vat"`
	StandardExpenses  decimal.Decimal `json:"standard_expenses"`
	InputVAT          decimal.Decimal `json:"input_vat"`
	NetVATPayable     decimal.Decimal `json:"net_vat_payable"`
}

// BuildVATSummary folds sales and purchase buckets into a summary.
// A negative NetVATPayable is a refund position.
func BuildVATSummary(from, to string, sales, purchases []VATBucket) VATSummary {
	s := VATSummary{
		From:              from,
		To:                to,
		StandardSupplies:  decimal.Zero,
		ZeroRatedSupplies: decimal.Zero,
		ExemptSupplies:    decimal.Zero,
		OutputVAT:         decimal.Zero,
		StandardExpenses:  decimal.Zero,
		InputVAT:          decimal.Zero,
	}
	for _, b := range sales {
		switch b.Category {
		case VATStandard:
			s.StandardSupplies = s.StandardSupplies.Add(b.Net)
		case VATZeroRated:
			s.ZeroRatedSupplies = s.ZeroRatedSupplies.Add(b.Net)
		case VATExempt:
			s.ExemptSupplies = s.ExemptSupplies.Add(b.Net)
		}
		s.OutputVAT = s.OutputVAT.Add(b.VAT)
	}
	for _, b := range purchases {
		if b.Category == VATStandard {
			s.StandardExpenses = s.StandardExpenses.Add(b.Net)
		}
		s.InputVAT = s.InputVAT.Add(b.VAT)
	}
	s.NetVATPayable = s.OutputVAT.Sub(s.InputVAT)
	return s
}

// VATPeriod is one quarterly tax period.
type VATPeriod struct {
	Quarter int    `json:"quarter"`
	Start   string `json:"start"`
	End     string `json:"end"`
	DueDate string `json:"due_date"`
}

// returnDueDays is the filing window after a tax period ends.
const returnDueDays = 28

// VATDeadlines lists the calendar quarters of year with their return due dates.
func VATDeadlines(year int) []VATPeriod {
	periods := make([]VATPeriod, 0, 4)
	for q := 0; q < 4; q++ {
		start := time.Date(year, time.Month(q*3+1), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 3, -1)
		periods = append(periods, VATPeriod{
			Quarter: q + 1,
			Start:   start.Format(dateLayout),
			End:     end.Format(dateLayout),
			DueDate: end.AddDate(0, 0, returnDueDays).Format(dateLayout),
		})
	}
	return periods
}
