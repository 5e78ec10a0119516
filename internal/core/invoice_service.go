package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type invoiceService struct {
	pool       *pgxpool.Pool
	ledger     LedgerService
	docService DocumentService
	rules      RuleEngine
}

func NewInvoiceService(pool *pgxpool.Pool, ledger LedgerService, docService DocumentService, rules RuleEngine) InvoiceService {
	return &invoiceService{pool: pool, ledger: ledger, docService: docService, rules: rules}
}

// effectiveVATRate is zero for companies that are not VAT registered.
func effectiveVATRate(c *Company) decimal.Decimal {
	if !c.VATRegistered {
		return decimal.Zero
	}
	return c.VATRate
}

func loadCompanyTx(ctx context.Context, q querier, companyCode string) (*Company, error) {
	c, err := scanCompany(q.QueryRow(ctx, "SELECT "+companyColumns+" FROM companies WHERE company_code = $1", companyCode))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("company %s", companyCode)
		}
		return nil, fmt.Errorf("failed to load company %s: %w", companyCode, err)
	}
	return c, nil
}

func (s *invoiceService) priceFor(company *Company, in *InvoiceInput) ([]InvoiceLine, InvoiceTotals, error) {
	in.Normalize()
	if in.Currency == "" {
		in.Currency = company.BaseCurrency
	}
	if in.Currency != company.BaseCurrency {
		return nil, InvoiceTotals{}, invalid("invoice currency %s must match the company base currency %s", in.Currency, company.BaseCurrency)
	}
	return in.Price(effectiveVATRate(company))
}

func (s *invoiceService) Create(ctx context.Context, companyCode string, in InvoiceInput) (*Invoice, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	company, err := loadCompanyTx(ctx, tx, companyCode)
	if err != nil {
		return nil, err
	}
	lines, totals, err := s.priceFor(company, &in)
	if err != nil {
		return nil, err
	}

	var id int
	err = tx.QueryRow(ctx, `
		INSERT INTO invoices (company_id, customer_name, customer_trn, issue_date, due_date, currency, status, subtotal, vat_total, total, notes)
		VALUES ($1, $2, $3, $4, $5, $6, 'draft', $7, $8, $9, $10)
		RETURNING id
	`, company.ID, in.CustomerName, in.CustomerTRN, in.IssueDate, in.DueDate, in.Currency,
		totals.Subtotal, totals.VATTotal, totals.Total, in.Notes).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to insert invoice: %w", err)
	}
	if err := insertInvoiceLines(ctx, tx, id, lines); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice: %w", err)
	}
	return s.Get(ctx, companyCode, id)
}

func insertInvoiceLines(ctx context.Context, tx pgx.Tx, invoiceID int, lines []InvoiceLine) error {
	for _, l := range lines {
		_, err := tx.Exec(ctx, `
			INSERT INTO invoice_lines (invoice_id, line_no, description, quantity, unit_price, vat_category, net_amount, vat_amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, invoiceID, l.LineNo, l.Description, l.Quantity, l.UnitPrice, string(l.VATCategory), l.NetAmount, l.VATAmount)
		if err != nil {
			return fmt.Errorf("failed to insert invoice line %d: %w", l.LineNo, err)
		}
	}
	return nil
}

func (s *invoiceService) Update(ctx context.Context, companyCode string, invoiceID int, in InvoiceInput) (*Invoice, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	company, err := loadCompanyTx(ctx, tx, companyCode)
	if err != nil {
		return nil, err
	}
	inv, err := lockInvoice(ctx, tx, company.ID, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != InvoiceDraft {
		return nil, conflict("invoice %d is %s; only drafts can be edited", invoiceID, inv.Status)
	}
	lines, totals, err := s.priceFor(company, &in)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE invoices
		SET customer_name = $1, customer_trn = $2, issue_date = $3, due_date = $4, currency = $5,
		    subtotal = $6, vat_total = $7, total = $8, notes = $9, updated_at = now()
		WHERE id = $10
	`, in.CustomerName, in.CustomerTRN, in.IssueDate, in.DueDate, in.Currency,
		totals.Subtotal, totals.VATTotal, totals.Total, in.Notes, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to update invoice %d: %w", invoiceID, err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM invoice_lines WHERE invoice_id = $1", invoiceID); err != nil {
		return nil, fmt.Errorf("failed to replace invoice lines: %w", err)
	}
	if err := insertInvoiceLines(ctx, tx, invoiceID, lines); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice update: %w", err)
	}
	return s.Get(ctx, companyCode, invoiceID)
}

func (s *invoiceService) Delete(ctx context.Context, companyCode string, invoiceID int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	companyID, err := resolveCompanyID(ctx, tx, companyCode)
	if err != nil {
		return err
	}
	inv, err := lockInvoice(ctx, tx, companyID, invoiceID)
	if err != nil {
		return err
	}
	if inv.Status != InvoiceDraft {
		return conflict("invoice %d is %s; only drafts can be deleted", invoiceID, inv.Status)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM invoices WHERE id = $1", invoiceID); err != nil {
		return fmt.Errorf("failed to delete invoice %d: %w", invoiceID, err)
	}
	return tx.Commit(ctx)
}

func (s *invoiceService) Issue(ctx context.Context, companyCode string, invoiceID int) (*Invoice, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	company, err := loadCompanyTx(ctx, tx, companyCode)
	if err != nil {
		return nil, err
	}
	inv, err := lockInvoice(ctx, tx, company.ID, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != InvoiceDraft {
		return nil, conflict("invoice %d is already %s", invoiceID, inv.Status)
	}
	if !inv.Total.IsPositive() {
		return nil, invalid("invoice %d has a zero total", invoiceID)
	}

	issueDate, err := time.Parse(dateLayout, inv.IssueDate)
	if err != nil {
		return nil, fmt.Errorf("invoice %d has an unreadable issue date %q: %w", invoiceID, inv.IssueDate, err)
	}
	fy := FiscalYear(issueDate, company.FiscalYearStartMonth)
	number, err := s.docService.IssueNumberTx(ctx, tx, company.ID, DocTypeInvoice, &fy)
	if err != nil {
		return nil, err
	}

	receivable, err := s.rules.ResolveAccount(ctx, tx, company.ID, RuleReceivable)
	if err != nil {
		return nil, err
	}
	sales, err := s.rules.ResolveAccount(ctx, tx, company.ID, RuleSales)
	if err != nil {
		return nil, err
	}
	lines := []EntryLine{
		{AccountCode: receivable, Debit: inv.Total},
		{AccountCode: sales, Credit: inv.Subtotal},
	}
	if inv.VATTotal.IsPositive() {
		vatOutput, err := s.rules.ResolveAccount(ctx, tx, company.ID, RuleVATOutput)
		if err != nil {
			return nil, err
		}
		lines = append(lines, EntryLine{AccountCode: vatOutput, Credit: inv.VATTotal})
	}

	entry, err := s.ledger.PostTx(ctx, tx, company.ID, JournalEntryInput{
		CompanyCode:    companyCode,
		PostingDate:    inv.IssueDate,
		Memo:           fmt.Sprintf("Invoice %s to %s", number, inv.CustomerName),
		Reference:      number,
		Currency:       inv.Currency,
		IdempotencyKey: fmt.Sprintf("invoice-issue-%d", inv.ID),
		SourceType:     "invoice",
		Lines:          lines,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to post invoice %d: %w", invoiceID, err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE invoices SET status = 'issued', invoice_number = $1, journal_entry_id = $2, updated_at = now()
		WHERE id = $3
	`, number, entry.ID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark invoice %d issued: %w", invoiceID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice issue: %w", err)
	}
	return s.Get(ctx, companyCode, invoiceID)
}

func (s *invoiceService) MarkPaid(ctx context.Context, companyCode string, invoiceID int, paidDate string) (*Invoice, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	companyID, err := resolveCompanyID(ctx, tx, companyCode)
	if err != nil {
		return nil, err
	}
	inv, err := lockInvoice(ctx, tx, companyID, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != InvoiceIssued {
		return nil, conflict("invoice %d is %s; only issued invoices can be paid", invoiceID, inv.Status)
	}
	if paidDate == "" {
		paidDate = inv.IssueDate
	}
	if paidDate < inv.IssueDate {
		return nil, invalid("payment date %s is before the issue date %s", paidDate, inv.IssueDate)
	}

	bank, err := s.rules.ResolveAccount(ctx, tx, companyID, RuleBank)
	if err != nil {
		return nil, err
	}
	receivable, err := s.rules.ResolveAccount(ctx, tx, companyID, RuleReceivable)
	if err != nil {
		return nil, err
	}
	entry, err := s.ledger.PostTx(ctx, tx, companyID, JournalEntryInput{
		CompanyCode:    companyCode,
		PostingDate:    paidDate,
		Memo:           fmt.Sprintf("Payment for invoice %s", inv.Number),
		Reference:      inv.Number,
		Currency:       inv.Currency,
		IdempotencyKey: fmt.Sprintf("invoice-payment-%d", inv.ID),
		SourceType:     "invoice_payment",
		Lines: []EntryLine{
			{AccountCode: bank, Debit: inv.Total},
			{AccountCode: receivable, Credit: inv.Total},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to post payment for invoice %d: %w", invoiceID, err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE invoices SET status = 'paid', payment_entry_id = $1, updated_at = now() WHERE id = $2
	`, entry.ID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark invoice %d paid: %w", invoiceID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice payment: %w", err)
	}
	return s.Get(ctx, companyCode, invoiceID)
}

func (s *invoiceService) Void(ctx context.Context, companyCode string, invoiceID int) (*Invoice, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	companyID, err := resolveCompanyID(ctx, tx, companyCode)
	if err != nil {
		return nil, err
	}
	inv, err := lockInvoice(ctx, tx, companyID, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != InvoiceIssued {
		return nil, conflict("invoice %d is %s; only unpaid issued invoices can be voided", invoiceID, inv.Status)
	}
	if inv.JournalEntryID == nil {
		return nil, fmt.Errorf("invoice %d is issued without a journal entry", invoiceID)
	}
	if _, err := s.ledger.ReverseTx(ctx, tx, companyID, *inv.JournalEntryID, fmt.Sprintf("Void of invoice %s", inv.Number)); err != nil {
		return nil, fmt.Errorf("failed to reverse invoice %d: %w", invoiceID, err)
	}
	if _, err := tx.Exec(ctx, "UPDATE invoices SET status = 'void', updated_at = now() WHERE id = $1", invoiceID); err != nil {
		return nil, fmt.Errorf("failed to mark invoice %d void: %w", invoiceID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice void: %w", err)
	}
	return s.Get(ctx, companyCode, invoiceID)
}

const invoiceColumns = `id, company_id, COALESCE(invoice_number, ''), customer_name, customer_trn,
	issue_date::text, due_date::text, currency, status, subtotal, vat_total, total, notes,
	journal_entry_id, payment_entry_id, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	inv := &Invoice{}
	err := row.Scan(&inv.ID, &inv.CompanyID, &inv.Number, &inv.CustomerName, &inv.CustomerTRN,
		&inv.IssueDate, &inv.DueDate, &inv.Currency, &inv.Status, &inv.Subtotal, &inv.VATTotal, &inv.Total, &inv.Notes,
		&inv.JournalEntryID, &inv.PaymentEntryID, &inv.CreatedAt, &inv.UpdatedAt)
	return inv, err
}

func lockInvoice(ctx context.Context, tx pgx.Tx, companyID, invoiceID int) (*Invoice, error) {
	inv, err := scanInvoice(tx.QueryRow(ctx,
		"SELECT "+invoiceColumns+" FROM invoices WHERE id = $1 AND company_id = $2 FOR UPDATE",
		invoiceID, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("invoice %d", invoiceID)
		}
		return nil, fmt.Errorf("failed to lock invoice %d: %w", invoiceID, err)
	}
	return inv, nil
}

func (s *invoiceService) Get(ctx context.Context, companyCode string, invoiceID int) (*Invoice, error) {
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return nil, err
	}
	inv, err := scanInvoice(s.pool.QueryRow(ctx,
		"SELECT "+invoiceColumns+" FROM invoices WHERE id = $1 AND company_id = $2", invoiceID, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("invoice %d", invoiceID)
		}
		return nil, fmt.Errorf("failed to load invoice %d: %w", invoiceID, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, line_no, description, quantity, unit_price, vat_category, net_amount, vat_amount
		FROM invoice_lines WHERE invoice_id = $1 ORDER BY line_no
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lines for invoice %d: %w", invoiceID, err)
	}
	defer rows.Close()

	inv.Lines = []InvoiceLine{}
	for rows.Next() {
		var l InvoiceLine
		if err := rows.Scan(&l.ID, &l.LineNo, &l.Description, &l.Quantity, &l.UnitPrice, &l.VATCategory, &l.NetAmount, &l.VATAmount); err != nil {
			return nil, fmt.Errorf("failed to scan invoice line: %w", err)
		}
		inv.Lines = append(inv.Lines, l)
	}
	return inv, rows.Err()
}

func (s *invoiceService) List(ctx context.Context, companyCode string, status InvoiceStatus) ([]Invoice, error) {
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return nil, err
	}
	q := "SELECT " + invoiceColumns + " FROM invoices WHERE company_id = $1"
	args := []any{companyID}
	if status != "" {
		if !status.Valid() {
			return nil, invalid("unknown invoice status %q", status)
		}
		args = append(args, string(status))
		q += " AND status = $2"
	}
	q += " ORDER BY issue_date DESC, id DESC"
	return s.listInvoices(ctx, q, args...)
}

func (s *invoiceService) Overdue(ctx context.Context, companyCode, asOfDate string) ([]Invoice, error) {
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return nil, err
	}
	if asOfDate == "" {
		asOfDate = today()
	}
	return s.listInvoices(ctx,
		"SELECT "+invoiceColumns+" FROM invoices WHERE company_id = $1 AND status = 'issued' AND due_date < $2::date ORDER BY due_date, id",
		companyID, asOfDate)
}

// listInvoices returns headers only; Lines is left nil.
func (s *invoiceService) listInvoices(ctx context.Context, q string, args ...any) ([]Invoice, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}
