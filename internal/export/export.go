// Package export flattens report objects into row/column sheets for spreadsheet
// download. The numbers are taken as computed; nothing here recalculates them.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"bookkeeper/internal/core"

	"github.com/shopspring/decimal"
)

// Sheet is one tab of a spreadsheet. Every row has len(Columns) cells.
type Sheet struct {
	Name    string     `json:"name"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Workbook groups sheets in display order.
type Workbook struct {
	Sheets []Sheet `json:"sheets"`
}

func NewWorkbook(sheets ...Sheet) Workbook {
	return Workbook{Sheets: sheets}
}

func amount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// accountColumns is shared by the P&L and balance sheet layouts.
var accountColumns = []string{"Section", "Code", "Account", "Account (AR)", "Amount"}

func (s *Sheet) add(cells ...string) {
	row := make([]string, len(s.Columns))
	copy(row, cells)
	s.Rows = append(s.Rows, row)
}

// section writes a header row, one row per account and a total row.
func (s *Sheet) section(title string, lines []core.AccountLine, total decimal.Decimal) {
	s.add(title)
	for _, l := range lines {
		s.add("", l.Code, l.NameEN, l.NameAR, amount(l.Balance))
	}
	s.add("Total "+title, "", "", "", amount(total))
}

func ProfitAndLoss(r *core.PLReport) Sheet {
	s := Sheet{Name: "Profit and Loss", Columns: accountColumns}
	s.add("Period", fmt.Sprintf("%s to %s", r.From, r.To))
	s.section("Income", r.Income, r.TotalIncome)
	s.section("Expenses", r.Expenses, r.TotalExpenses)
	s.add("Net Income", "", "", "", amount(r.NetIncome))
	return s
}

func BalanceSheet(r *core.BSReport) Sheet {
	s := Sheet{Name: "Balance Sheet", Columns: accountColumns}
	s.add("As of", r.AsOfDate)
	s.section("Assets", r.Assets, r.TotalAssets)
	s.section("Liabilities", r.Liabilities, r.TotalLiabilities)

	s.add("Equity")
	for _, l := range r.Equity {
		s.add("", l.Code, l.NameEN, l.NameAR, amount(l.Balance))
	}
	if !r.CurrentEarnings.IsZero() {
		s.add("", "", "Current period earnings", "أرباح الفترة الحالية", amount(r.CurrentEarnings))
	}
	s.add("Total Equity", "", "", "", amount(r.TotalEquity))
	s.add("Total Liabilities and Equity", "", "", "", amount(r.TotalLiabilities.Add(r.TotalEquity)))
	return s
}

func VATSummary(r *core.VATSummary) Sheet {
	s := Sheet{Name: "VAT Summary", Columns: []string{"Box", "Description", "Amount", "VAT"}}
	s.add("", fmt.Sprintf("Period %s to %s", r.From, r.To))
	s.add("1", "Standard rated supplies", amount(r.StandardSupplies), amount(r.OutputVAT))
	s.add("4", "Zero rated supplies", amount(r.ZeroRatedSupplies), amount(decimal.Zero))
	s.add("5", "Exempt supplies", amount(r.ExemptSupplies), amount(decimal.Zero))
	s.add("9", "Standard rated expenses", amount(r.StandardExpenses), amount(r.InputVAT))
	s.add("", "Net VAT payable", "", amount(r.NetVATPayable))
	return s
}

// TrialBalance lists each account's net balance on its debit or credit side.
// The total row sums those net cells, not the gross postings, so the columns add up.
func TrialBalance(r *core.TrialBalance) Sheet {
	s := Sheet{Name: "Trial Balance", Columns: []string{"Code", "Account", "Account (AR)", "Type", "Debit", "Credit"}}
	totalDebit, totalCredit := decimal.Zero, decimal.Zero
	for _, a := range r.Accounts {
		debit, credit := decimal.Zero, decimal.Zero
		if a.Balance.IsPositive() {
			debit = a.Balance
		} else {
			credit = a.Balance.Neg()
		}
		totalDebit = totalDebit.Add(debit)
		totalCredit = totalCredit.Add(credit)
		s.add(a.Code, a.NameEN, a.NameAR, string(a.Type), amount(debit), amount(credit))
	}
	s.add("", "Total", "", "", amount(totalDebit), amount(totalCredit))
	return s
}

// AccountStatement lays out an account statement with opening and closing rows.
func AccountStatement(r *core.AccountStatement) Sheet {
	s := Sheet{
		Name:    "Statement " + r.Account.Code,
		Columns: []string{"Date", "Entry", "Memo", "Reference", "Debit", "Credit", "Balance"},
	}
	s.add(r.From, "", "Opening balance", "", "", "", amount(r.OpeningBalance))
	for _, l := range r.Lines {
		s.add(l.PostingDate, l.EntryNumber, l.Memo, l.Reference, amount(l.Debit), amount(l.Credit), amount(l.RunningBalance))
	}
	s.add(r.To, "", "Closing balance", "", "", "", amount(r.ClosingBalance))
	return s
}

// csvSafe prevents CSV formula injection by prefixing cells that begin with a
// formula-triggering character with a single quote. Plain negative amounts are
// left alone so they stay numeric in spreadsheets.
func csvSafe(s string) string {
	if len(s) == 0 {
		return s
	}
	switch s[0] {
	case '-':
		if _, err := decimal.NewFromString(s); err == nil {
			return s
		}
		return "'" + s
	case '=', '+', '@', '\t', '\r':
		return "'" + s
	}
	return s
}

// WriteCSV writes the sheet with a header row.
func WriteCSV(w io.Writer, s Sheet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(s.Columns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range s.Rows {
		safe := make([]string, len(row))
		for i, c := range row {
			safe[i] = csvSafe(c)
		}
		if err := cw.Write(safe); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
