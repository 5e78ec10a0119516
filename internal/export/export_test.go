package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"bookkeeper/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertRectangular(t *testing.T, s Sheet) {
	t.Helper()
	for i, row := range s.Rows {
		assert.Len(t, row, len(s.Columns), "row %d of %s", i, s.Name)
	}
}

func TestProfitAndLoss(t *testing.T) {
	s := ProfitAndLoss(&core.PLReport{
		From:          "2026-01-01",
		To:            "2026-03-31",
		Income:        []core.AccountLine{{Code: "4000", NameEN: "Sales", NameAR: "المبيعات", Balance: d("1000")}},
		Expenses:      []core.AccountLine{{Code: "5100", NameEN: "Rent", Balance: d("400")}, {Code: "5300", NameEN: "Utilities", Balance: d("55.5")}},
		TotalIncome:   d("1000"),
		TotalExpenses: d("455.5"),
		NetIncome:     d("544.5"),
	})

	assertRectangular(t, s)
	assert.Equal(t, []string{"Period", "2026-01-01 to 2026-03-31", "", "", ""}, s.Rows[0])
	assert.Equal(t, []string{"Income", "", "", "", ""}, s.Rows[1])
	assert.Equal(t, []string{"", "4000", "Sales", "المبيعات", "1000.00"}, s.Rows[2])
	assert.Equal(t, []string{"Total Income", "", "", "", "1000.00"}, s.Rows[3])
	assert.Equal(t, []string{"", "5300", "Utilities", "", "55.50"}, s.Rows[6])
	assert.Equal(t, []string{"Net Income", "", "", "", "544.50"}, s.Rows[len(s.Rows)-1])
}

func TestBalanceSheetCarriesCurrentEarnings(t *testing.T) {
	s := BalanceSheet(&core.BSReport{
		AsOfDate:         "2026-03-31",
		Assets:           []core.AccountLine{{Code: "1010", NameEN: "Bank", Balance: d("10350")}},
		Liabilities:      []core.AccountLine{{Code: "2100", NameEN: "VAT Payable", Balance: d("50")}},
		Equity:           []core.AccountLine{{Code: "3000", NameEN: "Capital", Balance: d("10000")}},
		CurrentEarnings:  d("300"),
		TotalAssets:      d("10350"),
		TotalLiabilities: d("50"),
		TotalEquity:      d("10300"),
		IsBalanced:       true,
	})

	assertRectangular(t, s)
	var labels []string
	for _, r := range s.Rows {
		labels = append(labels, r[0]+r[2])
	}
	assert.Contains(t, labels, "Current period earnings")
	last := s.Rows[len(s.Rows)-1]
	assert.Equal(t, "Total Liabilities and Equity", last[0])
	assert.Equal(t, "10350.00", last[4])
}

func TestVATSummary(t *testing.T) {
	s := VATSummary(&core.VATSummary{
		From: "2026-01-01", To: "2026-03-31",
		StandardSupplies: d("2000"), ZeroRatedSupplies: d("300"), OutputVAT: d("100"),
		StandardExpenses: d("300"), InputVAT: d("15"), NetVATPayable: d("85"),
	})
	assertRectangular(t, s)
	assert.Equal(t, []string{"1", "Standard rated supplies", "2000.00", "100.00"}, s.Rows[1])
	assert.Equal(t, []string{"", "Net VAT payable", "", "85.00"}, s.Rows[len(s.Rows)-1])
}

func TestTrialBalanceSplitsSides(t *testing.T) {
	s := TrialBalance(&core.TrialBalance{
		Accounts: []core.AccountBalance{
			{Code: "1010", NameEN: "Bank", Type: core.Asset, Balance: d("250")},
			{Code: "4000", NameEN: "Sales", Type: core.Income, Balance: d("-250")},
		},
		TotalDebit: d("250"), TotalCredit: d("250"), Balanced: true,
	})
	assertRectangular(t, s)
	assert.Equal(t, []string{"1010", "Bank", "", "asset", "250.00", "0.00"}, s.Rows[0])
	assert.Equal(t, []string{"4000", "Sales", "", "income", "0.00", "250.00"}, s.Rows[1])
	assert.Equal(t, []string{"", "Total", "", "", "250.00", "250.00"}, s.Rows[2])
}

func TestTrialBalanceTotalsMatchNetRows(t *testing.T) {
	tb := core.NewTrialBalance("1000", "2026-03-31", []core.AccountBalance{
		{Code: "1010", NameEN: "Bank", Type: core.Asset, Debit: d("100"), Credit: d("40"), Balance: d("60")},
		{Code: "3000", NameEN: "Capital", Type: core.Equity, Credit: d("60"), Balance: d("-60")},
	})
	require.True(t, tb.TotalDebit.Equal(d("100")), "gross postings stay on the report")

	s := TrialBalance(tb)
	assertRectangular(t, s)
	require.Len(t, s.Rows, 3)
	assert.Equal(t, []string{"1010", "Bank", "", "asset", "60.00", "0.00"}, s.Rows[0])
	assert.Equal(t, []string{"3000", "Capital", "", "equity", "0.00", "60.00"}, s.Rows[1])
	assert.Equal(t, []string{"", "Total", "", "", "60.00", "60.00"}, s.Rows[2])
}

func TestCSVSafe(t *testing.T) {
	cases := map[string]string{
		"":               "",
		"Sales":          "Sales",
		"=HYPERLINK(1)":  "'=HYPERLINK(1)",
		"+971":           "'+971",
		"@SUM(A1)":       "'@SUM(A1)",
		"-250.00":        "-250.00",
		"-2+3":           "'-2+3",
		"\tcmd":          "'\tcmd",
	}
	for in, want := range cases {
		assert.Equal(t, want, csvSafe(in), "input %q", in)
	}
}

func TestWriteCSV(t *testing.T) {
	s := Sheet{Name: "x", Columns: []string{"Code", "Account"}}
	s.add("4000", "=cmd|' /C calc'!A0")

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, s))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"Code", "Account"}, records[0])
	assert.Equal(t, "'=cmd|' /C calc'!A0", records[1][1])
}

func TestNewWorkbookKeepsOrder(t *testing.T) {
	wb := NewWorkbook(Sheet{Name: "a"}, Sheet{Name: "b"})
	require.Len(t, wb.Sheets, 2)
	assert.Equal(t, "b", wb.Sheets[1].Name)
}

func TestAccountStatement(t *testing.T) {
	s := AccountStatement(&core.AccountStatement{
		Account:        core.Account{Code: "1010", NameEN: "Bank"},
		From:           "2026-02-01",
		To:             "2026-02-28",
		OpeningBalance: d("500"),
		Lines: []core.StatementLine{
			{EntryNumber: "JE-2026-00004", PostingDate: "2026-02-03", Memo: "DEWA", Credit: d("105"), RunningBalance: d("395")},
		},
		ClosingBalance: d("395"),
	})
	assertRectangular(t, s)
	assert.Equal(t, "Statement 1010", s.Name)
	require.Len(t, s.Rows, 3)
	assert.Equal(t, "500.00", s.Rows[0][6])
	assert.Equal(t, []string{"2026-02-03", "JE-2026-00004", "DEWA", "", "0.00", "105.00", "395.00"}, s.Rows[1])
	assert.Equal(t, "Closing balance", s.Rows[2][2])
}
