package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ── Report types ──────────────────────────────────────────────────────────────

// StatementLine is a single journal line in an account statement.
// RunningBalance is the cumulative net-debit position after this line
// (positive = net debit, negative = net credit).
type StatementLine struct {
	EntryNumber    string          `json:"entry_number"`
	PostingDate    string          `json:"posting_date"`
	Memo           string          `json:"memo"`
	Reference      string          `json:"reference"`
	Debit          decimal.Decimal `json:"debit"`
	Credit         decimal.Decimal `json:"credit"`
	RunningBalance decimal.Decimal `json:"running_balance"`
}

type AccountStatement struct {
	Account        Account         `json:"account"`
	From           string          `json:"from,omitempty"`
	To             string          `json:"to,omitempty"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Lines          []StatementLine `json:"lines"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
}

// AccountLine is a single account in a P&L or balance sheet section.
// Balance is expressed in the sign convention for that section:
//   - P&L income:   positive = income earned
//   - P&L expenses: positive = cost incurred
//   - BS assets:    positive = net debit
//   - BS liabilities/equity: positive = net credit
type AccountLine struct {
	Code    string          `json:"code"`
	NameEN  string          `json:"name_en"`
	NameAR  string          `json:"name_ar"`
	Balance decimal.Decimal `json:"balance"`
}

type TrialBalance struct {
	CompanyCode string           `json:"company_code"`
	AsOfDate    string           `json:"as_of_date"`
	Accounts    []AccountBalance `json:"accounts"`
	TotalDebit  decimal.Decimal  `json:"total_debit"`
	TotalCredit decimal.Decimal  `json:"total_credit"`
	Balanced    bool             `json:"balanced"`
}

// PLReport is the profit and loss report for a date range.
type PLReport struct {
	CompanyCode   string          `json:"company_code"`
	From          string          `json:"from"`
	To            string          `json:"to"`
	Income        []AccountLine   `json:"income"`
	Expenses      []AccountLine   `json:"expenses"`
	TotalIncome   decimal.Decimal `json:"total_income"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	NetIncome     decimal.Decimal `json:"net_income"`
}

// BSReport is the balance sheet as of a date. Income and expense that has not
// been closed to retained earnings is carried in CurrentEarnings and counted in
// TotalEquity, so IsBalanced holds for any correctly posted ledger.
type BSReport struct {
	CompanyCode      string          `json:"company_code"`
	AsOfDate         string          `json:"as_of_date"`
	Assets           []AccountLine   `json:"assets"`
	Liabilities      []AccountLine   `json:"liabilities"`
	Equity           []AccountLine   `json:"equity"`
	CurrentEarnings  decimal.Decimal `json:"current_earnings"`
	TotalAssets      decimal.Decimal `json:"total_assets"`
	TotalLiabilities decimal.Decimal `json:"total_liabilities"`
	TotalEquity      decimal.Decimal `json:"total_equity"`
	IsBalanced       bool            `json:"is_balanced"`
}

// ── Interface ─────────────────────────────────────────────────────────────────

// ReportingService provides read-only reporting queries over the ledger.
type ReportingService interface {
	GetTrialBalance(ctx context.Context, companyCode, asOfDate string) (*TrialBalance, error)

	// GetAccountStatement returns the lines for an account within the date range,
	// ordered by posting_date then entry id. Empty bounds are open. The running
	// balance starts from the net position before fromDate.
	GetAccountStatement(ctx context.Context, companyCode, accountCode, fromDate, toDate string) (*AccountStatement, error)

	GetProfitAndLoss(ctx context.Context, companyCode, fromDate, toDate string) (*PLReport, error)

	// GetBalanceSheet returns the balance sheet as of the given date.
	// If asOfDate is empty, today's date is used.
	GetBalanceSheet(ctx context.Context, companyCode, asOfDate string) (*BSReport, error)

	// GetVATSummary totals issued invoices and posted receipts dated in the period.
	GetVATSummary(ctx context.Context, companyCode, fromDate, toDate string) (*VATSummary, error)
}

// ── Implementation ────────────────────────────────────────────────────────────

type reportingService struct {
	pool *pgxpool.Pool
}

func NewReportingService(pool *pgxpool.Pool) ReportingService {
	return &reportingService{pool: pool}
}

func today() string {
	return time.Now().Format(dateLayout)
}

// queryBalances returns per-account debit and credit totals posted on or before asOfDate.
func queryBalances(ctx context.Context, q rowQuerier, companyID int, asOfDate string) ([]AccountBalance, error) {
	rows, err := q.Query(ctx, `
		SELECT a.code, a.name, a.name_ar, a.type,
		       COALESCE(s.debit_total, 0), COALESCE(s.credit_total, 0)
		FROM accounts a
		LEFT JOIN (
		    SELECT jl.account_id, SUM(jl.debit_base) AS debit_total, SUM(jl.credit_base) AS credit_total
		    FROM journal_lines jl
		    JOIN journal_entries je ON je.id = jl.entry_id
		    WHERE je.company_id = $1 AND je.posting_date <= $2::date
		    GROUP BY jl.account_id
		) s ON s.account_id = a.id
		WHERE a.company_id = $1
		ORDER BY a.code
	`, companyID, asOfDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var balances []AccountBalance
	for rows.Next() {
		var b AccountBalance
		if err := rows.Scan(&b.Code, &b.NameEN, &b.NameAR, &b.Type, &b.Debit, &b.Credit); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		b.Balance = b.Debit.Sub(b.Credit)
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// ── GetTrialBalance ───────────────────────────────────────────────────────────

func (s *reportingService) GetTrialBalance(ctx context.Context, companyCode, asOfDate string) (*TrialBalance, error) {
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return nil, err
	}
	if asOfDate == "" {
		asOfDate = today()
	}
	balances, err := queryBalances(ctx, s.pool, companyID, asOfDate)
	if err != nil {
		return nil, err
	}
	return NewTrialBalance(companyCode, asOfDate, balances), nil
}

// NewTrialBalance totals balances. Only accounts with activity are listed.
func NewTrialBalance(companyCode, asOfDate string, balances []AccountBalance) *TrialBalance {
	tb := &TrialBalance{
		CompanyCode: companyCode,
		AsOfDate:    asOfDate,
		Accounts:    []AccountBalance{},
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
	}
	for _, b := range balances {
		if b.Debit.IsZero() && b.Credit.IsZero() {
			continue
		}
		tb.Accounts = append(tb.Accounts, b)
		tb.TotalDebit = tb.TotalDebit.Add(b.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(b.Credit)
	}
	tb.Balanced = tb.TotalDebit.Equal(tb.TotalCredit)
	return tb
}

// ── GetAccountStatement ───────────────────────────────────────────────────────

func (s *reportingService) GetAccountStatement(ctx context.Context, companyCode, accountCode, fromDate, toDate string) (*AccountStatement, error) {
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return nil, err
	}
	account, err := getAccount(ctx, s.pool, companyID, accountCode)
	if err != nil {
		return nil, err
	}

	st := &AccountStatement{Account: *account, From: fromDate, To: toDate, OpeningBalance: decimal.Zero, Lines: []StatementLine{}}
	if fromDate != "" {
		err := s.pool.QueryRow(ctx, `
			SELECT COALESCE(SUM(jl.debit_base - jl.credit_base), 0)
			FROM journal_lines jl
			JOIN journal_entries je ON je.id = jl.entry_id
			WHERE je.company_id = $1 AND jl.account_id = $2 AND je.posting_date < $3::date
		`, companyID, account.ID, fromDate).Scan(&st.OpeningBalance)
		if err != nil {
			return nil, fmt.Errorf("failed to query opening balance: %w", err)
		}
	}

	q := `
		SELECT je.entry_number,
		       je.posting_date::text,
		       je.memo,
		       je.reference,
		       jl.debit_base,
		       jl.credit_base
		FROM journal_lines jl
		JOIN journal_entries je ON je.id = jl.entry_id
		WHERE je.company_id = $1
		  AND jl.account_id = $2`
	args := []any{companyID, account.ID}
	q, args = appendDateBounds(q, args, "je.posting_date", fromDate, toDate)
	q += " ORDER BY je.posting_date ASC, je.id ASC, jl.line_no ASC"

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query account statement: %w", err)
	}
	defer rows.Close()

	running := st.OpeningBalance
	for rows.Next() {
		var sl StatementLine
		if err := rows.Scan(&sl.EntryNumber, &sl.PostingDate, &sl.Memo, &sl.Reference, &sl.Debit, &sl.Credit); err != nil {
			return nil, fmt.Errorf("failed to scan statement line: %w", err)
		}
		running = running.Add(sl.Debit).Sub(sl.Credit)
		sl.RunningBalance = running
		st.Lines = append(st.Lines, sl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("statement row iteration error: %w", err)
	}
	st.ClosingBalance = running
	return st, nil
}

// ── GetProfitAndLoss ──────────────────────────────────────────────────────────

func (s *reportingService) GetProfitAndLoss(ctx context.Context, companyCode, fromDate, toDate string) (*PLReport, error) {
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return nil, err
	}

	sub := `
		    SELECT jl.account_id,
		           SUM(jl.debit_base)  AS debit_total,
		           SUM(jl.credit_base) AS credit_total
		    FROM journal_lines jl
		    JOIN journal_entries je ON je.id = jl.entry_id
		    WHERE je.company_id = $1`
	args := []any{companyID}
	sub, args = appendDateBounds(sub, args, "je.posting_date", fromDate, toDate)

	q := `
		SELECT a.code, a.name, a.name_ar, a.type,
		       COALESCE(s.debit_total,  0) AS debit_total,
		       COALESCE(s.credit_total, 0) AS credit_total
		FROM accounts a
		LEFT JOIN (` + sub + `
		    GROUP BY jl.account_id
		) s ON s.account_id = a.id
		WHERE a.company_id = $1
		  AND a.type IN ('income', 'expense')
		ORDER BY a.type DESC, a.code`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query P&L: %w", err)
	}
	defer rows.Close()

	var balances []AccountBalance
	for rows.Next() {
		var b AccountBalance
		if err := rows.Scan(&b.Code, &b.NameEN, &b.NameAR, &b.Type, &b.Debit, &b.Credit); err != nil {
			return nil, fmt.Errorf("failed to scan P&L row: %w", err)
		}
		b.Balance = b.Debit.Sub(b.Credit)
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("P&L row iteration error: %w", err)
	}
	return NewProfitAndLoss(companyCode, fromDate, toDate, balances), nil
}

// NewProfitAndLoss builds a P&L from per-account balances. Accounts of other
// types are ignored.
func NewProfitAndLoss(companyCode, fromDate, toDate string, balances []AccountBalance) *PLReport {
	report := &PLReport{
		CompanyCode:   companyCode,
		From:          fromDate,
		To:            toDate,
		Income:        []AccountLine{},
		Expenses:      []AccountLine{},
		TotalIncome:   decimal.Zero,
		TotalExpenses: decimal.Zero,
	}
	for _, b := range balances {
		line := AccountLine{Code: b.Code, NameEN: b.NameEN, NameAR: b.NameAR}
		switch b.Type {
		case Income:
			line.Balance = b.Credit.Sub(b.Debit)
			report.Income = append(report.Income, line)
			report.TotalIncome = report.TotalIncome.Add(line.Balance)
		case Expense:
			line.Balance = b.Debit.Sub(b.Credit)
			report.Expenses = append(report.Expenses, line)
			report.TotalExpenses = report.TotalExpenses.Add(line.Balance)
		}
	}
	report.NetIncome = report.TotalIncome.Sub(report.TotalExpenses)
	return report
}

// ── GetBalanceSheet ───────────────────────────────────────────────────────────

func (s *reportingService) GetBalanceSheet(ctx context.Context, companyCode, asOfDate string) (*BSReport, error) {
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return nil, err
	}
	if asOfDate == "" {
		asOfDate = today()
	}
	balances, err := queryBalances(ctx, s.pool, companyID, asOfDate)
	if err != nil {
		return nil, err
	}
	return NewBalanceSheet(companyCode, asOfDate, balances), nil
}

// NewBalanceSheet builds a balance sheet from cumulative per-account balances.
func NewBalanceSheet(companyCode, asOfDate string, balances []AccountBalance) *BSReport {
	report := &BSReport{
		CompanyCode:      companyCode,
		AsOfDate:         asOfDate,
		Assets:           []AccountLine{},
		Liabilities:      []AccountLine{},
		Equity:           []AccountLine{},
		CurrentEarnings:  decimal.Zero,
		TotalAssets:      decimal.Zero,
		TotalLiabilities: decimal.Zero,
		TotalEquity:      decimal.Zero,
	}
	for _, b := range balances {
		line := AccountLine{Code: b.Code, NameEN: b.NameEN, NameAR: b.NameAR}
		switch b.Type {
		case Asset:
			line.Balance = b.Balance
			report.Assets = append(report.Assets, line)
			report.TotalAssets = report.TotalAssets.Add(line.Balance)
		case Liability:
			line.Balance = b.Balance.Neg()
			report.Liabilities = append(report.Liabilities, line)
			report.TotalLiabilities = report.TotalLiabilities.Add(line.Balance)
		case Equity:
			line.Balance = b.Balance.Neg()
			report.Equity = append(report.Equity, line)
			report.TotalEquity = report.TotalEquity.Add(line.Balance)
		case Income, Expense:
			// Net credit of income and expense is unclosed profit.
			report.CurrentEarnings = report.CurrentEarnings.Sub(b.Balance)
		}
	}
	report.TotalEquity = report.TotalEquity.Add(report.CurrentEarnings)
	report.IsBalanced = report.TotalAssets.Equal(report.TotalLiabilities.Add(report.TotalEquity))
	return report
}

// ── GetVATSummary ─────────────────────────────────────────────────────────────

func (s *reportingService) GetVATSummary(ctx context.Context, companyCode, fromDate, toDate string) (*VATSummary, error) {
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return nil, err
	}

	salesQ := `
		SELECT il.vat_category, COALESCE(SUM(il.net_amount), 0), COALESCE(SUM(il.vat_amount), 0)
		FROM invoice_lines il
		JOIN invoices i ON i.id = il.invoice_id
		WHERE i.company_id = $1 AND i.status IN ('issued', 'paid')`
	salesArgs := []any{companyID}
	salesQ, salesArgs = appendDateBounds(salesQ, salesArgs, "i.issue_date", fromDate, toDate)
	salesQ += " GROUP BY il.vat_category"

	sales, err := s.vatBuckets(ctx, salesQ, salesArgs)
	if err != nil {
		return nil, fmt.Errorf("failed to total output VAT: %w", err)
	}

	purchQ := `
		SELECT vat_category, COALESCE(SUM(net_amount), 0), COALESCE(SUM(vat_amount), 0)
		FROM receipts
		WHERE company_id = $1 AND status = 'posted'`
	purchArgs := []any{companyID}
	purchQ, purchArgs = appendDateBounds(purchQ, purchArgs, "receipt_date", fromDate, toDate)
	purchQ += " GROUP BY vat_category"

	purchases, err := s.vatBuckets(ctx, purchQ, purchArgs)
	if err != nil {
		return nil, fmt.Errorf("failed to total input VAT: %w", err)
	}

	summary := BuildVATSummary(fromDate, toDate, sales, purchases)
	return &summary, nil
}

func (s *reportingService) vatBuckets(ctx context.Context, q string, args []any) ([]VATBucket, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VATBucket
	for rows.Next() {
		var b VATBucket
		if err := rows.Scan(&b.Category, &b.Net, &b.VAT); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
