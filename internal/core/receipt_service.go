package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type receiptService struct {
	pool       *pgxpool.Pool
	ledger     LedgerService
	docService DocumentService
	rules      RuleEngine
}

func NewReceiptService(pool *pgxpool.Pool, ledger LedgerService, docService DocumentService, rules RuleEngine) ReceiptService {
	return &receiptService{pool: pool, ledger: ledger, docService: docService, rules: rules}
}

func (s *receiptService) Create(ctx context.Context, companyCode string, in ReceiptInput) (*Receipt, error) {
	company, err := loadCompanyTx(ctx, s.pool, companyCode)
	if err != nil {
		return nil, err
	}
	in.Normalize()
	if in.Currency == "" {
		in.Currency = company.BaseCurrency
	}
	if in.Currency != company.BaseCurrency {
		return nil, invalid("receipt currency %s must match the company base currency %s", in.Currency, company.BaseCurrency)
	}
	net, vat, total, err := in.Amounts(effectiveVATRate(company))
	if err != nil {
		return nil, err
	}

	account, err := getAccount(ctx, s.pool, company.ID, in.ExpenseAccountCode)
	if err != nil {
		return nil, err
	}
	if !account.IsActive {
		return nil, invalid("account %s is inactive", account.Code)
	}
	if account.Type != Expense && account.Type != Asset {
		return nil, invalid("account %s is a %s account; receipts post to expense or asset accounts", account.Code, account.Type)
	}

	var id int
	err = s.pool.QueryRow(ctx, `
		INSERT INTO receipts (company_id, vendor_name, vendor_trn, receipt_date, expense_account_code, vat_category,
		                      net_amount, vat_amount, total_amount, currency, source, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`, company.ID, in.VendorName, in.VendorTRN, in.ReceiptDate, in.ExpenseAccountCode, string(in.VATCategory),
		net, vat, total, in.Currency, string(in.Source), in.Notes).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to insert receipt: %w", err)
	}
	return s.Get(ctx, companyCode, id)
}

func (s *receiptService) Post(ctx context.Context, companyCode string, receiptID int) (*Receipt, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	company, err := loadCompanyTx(ctx, tx, companyCode)
	if err != nil {
		return nil, err
	}
	r, err := scanReceipt(tx.QueryRow(ctx,
		"SELECT "+receiptColumns+" FROM receipts WHERE id = $1 AND company_id = $2 FOR UPDATE", receiptID, company.ID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("receipt %d", receiptID)
		}
		return nil, fmt.Errorf("failed to lock receipt %d: %w", receiptID, err)
	}
	if r.Status != ReceiptDraft {
		return nil, conflict("receipt %d is already posted", receiptID)
	}

	date, err := time.Parse(dateLayout, r.ReceiptDate)
	if err != nil {
		return nil, fmt.Errorf("receipt %d has an unreadable date %q: %w", receiptID, r.ReceiptDate, err)
	}
	fy := FiscalYear(date, company.FiscalYearStartMonth)
	number, err := s.docService.IssueNumberTx(ctx, tx, company.ID, DocTypeReceipt, &fy)
	if err != nil {
		return nil, err
	}

	bank, err := s.rules.ResolveAccount(ctx, tx, company.ID, RuleBank)
	if err != nil {
		return nil, err
	}
	lines := []EntryLine{{AccountCode: r.ExpenseAccountCode, Debit: r.NetAmount}}
	if r.VATAmount.IsPositive() {
		vatInput, err := s.rules.ResolveAccount(ctx, tx, company.ID, RuleVATInput)
		if err != nil {
			return nil, err
		}
		lines = append(lines, EntryLine{AccountCode: vatInput, Debit: r.VATAmount})
	}
	lines = append(lines, EntryLine{AccountCode: bank, Credit: r.TotalAmount})

	entry, err := s.ledger.PostTx(ctx, tx, company.ID, JournalEntryInput{
		CompanyCode:    companyCode,
		PostingDate:    r.ReceiptDate,
		Memo:           fmt.Sprintf("Receipt %s from %s", number, r.VendorName),
		Reference:      number,
		Currency:       r.Currency,
		IdempotencyKey: fmt.Sprintf("receipt-post-%d", r.ID),
		SourceType:     "receipt",
		Lines:          lines,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to post receipt %d: %w", receiptID, err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE receipts SET status = 'posted', receipt_number = $1, journal_entry_id = $2 WHERE id = $3
	`, number, entry.ID, receiptID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark receipt %d posted: %w", receiptID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit receipt posting: %w", err)
	}
	return s.Get(ctx, companyCode, receiptID)
}

func (s *receiptService) Delete(ctx context.Context, companyCode string, receiptID int) error {
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM receipts WHERE id = $1 AND company_id = $2 AND status = 'draft'", receiptID, companyID)
	if err != nil {
		return fmt.Errorf("failed to delete receipt %d: %w", receiptID, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, companyCode, receiptID); err != nil {
			return err
		}
		return conflict("receipt %d is posted and cannot be deleted", receiptID)
	}
	return nil
}

const receiptColumns = `id, company_id, COALESCE(receipt_number, ''), vendor_name, vendor_trn, receipt_date::text,
	expense_account_code, vat_category, net_amount, vat_amount, total_amount, currency, status, source, notes,
	journal_entry_id, created_at`

func scanReceipt(row pgx.Row) (*Receipt, error) {
	r := &Receipt{}
	err := row.Scan(&r.ID, &r.CompanyID, &r.Number, &r.VendorName, &r.VendorTRN, &r.ReceiptDate,
		&r.ExpenseAccountCode, &r.VATCategory, &r.NetAmount, &r.VATAmount, &r.TotalAmount, &r.Currency,
		&r.Status, &r.Source, &r.Notes, &r.JournalEntryID, &r.CreatedAt)
	return r, err
}

func (s *receiptService) Get(ctx context.Context, companyCode string, receiptID int) (*Receipt, error) {
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return nil, err
	}
	r, err := scanReceipt(s.pool.QueryRow(ctx,
		"SELECT "+receiptColumns+" FROM receipts WHERE id = $1 AND company_id = $2", receiptID, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("receipt %d", receiptID)
		}
		return nil, fmt.Errorf("failed to load receipt %d: %w", receiptID, err)
	}
	return r, nil
}

func (s *receiptService) List(ctx context.Context, companyCode string, status ReceiptStatus) ([]Receipt, error) {
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return nil, err
	}
	q := "SELECT " + receiptColumns + " FROM receipts WHERE company_id = $1"
	args := []any{companyID}
	if status != "" {
		if status != ReceiptDraft && status != ReceiptPosted {
			return nil, invalid("unknown receipt status %q", status)
		}
		args = append(args, string(status))
		q += " AND status = $2"
	}
	q += " ORDER BY receipt_date DESC, id DESC"

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	var out []Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
