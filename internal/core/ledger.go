package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type LedgerService interface {
	Post(ctx context.Context, in JournalEntryInput) (*JournalEntry, error)
	Validate(ctx context.Context, in JournalEntryInput) error
	PostTx(ctx context.Context, tx pgx.Tx, companyID int, in JournalEntryInput) (*JournalEntry, error)
	Reverse(ctx context.Context, companyCode string, entryID int, memo string) (*JournalEntry, error)
	ReverseTx(ctx context.Context, tx pgx.Tx, companyID, entryID int, memo string) (*JournalEntry, error)
	GetEntry(ctx context.Context, companyCode string, entryID int) (*JournalEntry, error)
	ListEntries(ctx context.Context, companyCode, fromDate, toDate string) ([]JournalEntry, error)
	GetBalances(ctx context.Context, companyCode string) ([]AccountBalance, error)
}

type Ledger struct {
	pool       *pgxpool.Pool
	docService DocumentService
}

func NewLedger(pool *pgxpool.Pool, docService DocumentService) *Ledger {
	return &Ledger{pool: pool, docService: docService}
}

// Post validates and writes the entry in its own transaction.
func (l *Ledger) Post(ctx context.Context, in JournalEntryInput) (*JournalEntry, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	companyID, err := resolveCompanyID(ctx, tx, in.CompanyCode)
	if err != nil {
		return nil, err
	}
	entry, err := l.PostTx(ctx, tx, companyID, in)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return entry, nil
}

// Validate runs the full posting path, including account resolution, and rolls it back.
func (l *Ledger) Validate(ctx context.Context, in JournalEntryInput) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	companyID, err := resolveCompanyID(ctx, tx, in.CompanyCode)
	if err != nil {
		return err
	}
	_, err = l.PostTx(ctx, tx, companyID, in)
	return err
}

// PostTx writes the entry inside the caller's transaction.
func (l *Ledger) PostTx(ctx context.Context, tx pgx.Tx, companyID int, in JournalEntryInput) (*JournalEntry, error) {
	in.Normalize()
	lines, err := in.Validate()
	if err != nil {
		return nil, err
	}

	accountIDs := make(map[string]int, len(lines))
	for _, pl := range lines {
		if _, ok := accountIDs[pl.AccountCode]; ok {
			continue
		}
		var id int
		var active bool
		err := tx.QueryRow(ctx,
			"SELECT id, is_active FROM accounts WHERE company_id = $1 AND code = $2",
			companyID, pl.AccountCode,
		).Scan(&id, &active)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, invalid("account code %s not found for company %s", pl.AccountCode, in.CompanyCode)
			}
			return nil, fmt.Errorf("failed to fetch account ID for code %s: %w", pl.AccountCode, err)
		}
		if !active {
			return nil, invalid("account %s is inactive", pl.AccountCode)
		}
		accountIDs[pl.AccountCode] = id
	}

	number, err := l.docService.IssueNumberTx(ctx, tx, companyID, DocTypeJournal, nil)
	if err != nil {
		return nil, err
	}

	var idemKey *string
	if in.IdempotencyKey != "" {
		idemKey = &in.IdempotencyKey
	}

	entry := &JournalEntry{
		CompanyID:      companyID,
		EntryNumber:    number,
		IdempotencyKey: in.IdempotencyKey,
		Memo:           in.Memo,
		Reference:      in.Reference,
		SourceType:     in.SourceType,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO journal_entries (company_id, entry_number, posting_date, document_date, memo, reference, source_type, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (company_id, idempotency_key) DO NOTHING
		RETURNING id, posting_date, document_date, created_at
	`, companyID, number, in.PostingDate, in.DocumentDate, in.Memo, in.Reference, in.SourceType, idemKey,
	).Scan(&entry.ID, &entry.PostingDate, &entry.DocumentDate, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, conflict("duplicate entry: idempotency key %s already exists", in.IdempotencyKey)
		}
		return nil, fmt.Errorf("failed to insert journal entry: %w", err)
	}

	for i, pl := range lines {
		jl := JournalLine{
			EntryID:             entry.ID,
			LineNo:              i + 1,
			AccountID:           accountIDs[pl.AccountCode],
			AccountCode:         pl.AccountCode,
			TransactionCurrency: in.Currency,
			ExchangeRate:        in.ExchangeRate,
			AmountTransaction:   pl.Amount,
			DebitBase:           decimal.Zero,
			CreditBase:          decimal.Zero,
		}
		if pl.IsDebit {
			jl.DebitBase = pl.BaseAmount
		} else {
			jl.CreditBase = pl.BaseAmount
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO journal_lines (entry_id, line_no, account_id, transaction_currency, exchange_rate, amount_transaction, debit_base, credit_base)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`, jl.EntryID, jl.LineNo, jl.AccountID, jl.TransactionCurrency, jl.ExchangeRate, jl.AmountTransaction, jl.DebitBase, jl.CreditBase,
		).Scan(&jl.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert journal line: %w", err)
		}
		entry.Lines = append(entry.Lines, jl)
	}

	return entry, nil
}

// Reverse posts a mirror entry that swaps every debit and credit of entryID.
func (l *Ledger) Reverse(ctx context.Context, companyCode string, entryID int, memo string) (*JournalEntry, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	companyID, err := resolveCompanyID(ctx, tx, companyCode)
	if err != nil {
		return nil, err
	}
	entry, err := l.ReverseTx(ctx, tx, companyID, entryID, memo)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit reversal: %w", err)
	}
	return entry, nil
}

func (l *Ledger) ReverseTx(ctx context.Context, tx pgx.Tx, companyID, entryID int, memo string) (*JournalEntry, error) {
	original, err := getEntry(ctx, tx, companyID, entryID)
	if err != nil {
		return nil, err
	}
	if original.ReversedEntryID != nil {
		return nil, conflict("entry %d is itself a reversal", entryID)
	}

	var count int
	if err := tx.QueryRow(ctx, "SELECT count(*) FROM journal_entries WHERE reversed_entry_id = $1", entryID).Scan(&count); err != nil {
		return nil, fmt.Errorf("failed to check reversal status: %w", err)
	}
	if count > 0 {
		return nil, conflict("entry %d is already reversed", entryID)
	}

	if memo == "" {
		memo = fmt.Sprintf("Reversal of %s: %s", original.EntryNumber, original.Memo)
	}
	number, err := l.docService.IssueNumberTx(ctx, tx, companyID, DocTypeJournal, nil)
	if err != nil {
		return nil, err
	}

	rev := &JournalEntry{
		CompanyID:       companyID,
		EntryNumber:     number,
		Memo:            memo,
		Reference:       original.EntryNumber,
		SourceType:      "reversal",
		ReversedEntryID: &entryID,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO journal_entries (company_id, entry_number, posting_date, document_date, memo, reference, source_type, reversed_entry_id)
		SELECT company_id, $1, posting_date, document_date, $2, $3, 'reversal', id
		FROM journal_entries WHERE id = $4
		RETURNING id, posting_date, document_date, created_at
	`, number, memo, original.EntryNumber, entryID).Scan(&rev.ID, &rev.PostingDate, &rev.DocumentDate, &rev.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, conflict("entry %d is already reversed", entryID)
		}
		return nil, fmt.Errorf("failed to insert reversal entry: %w", err)
	}

	for _, ol := range original.Lines {
		jl := ol
		jl.EntryID = rev.ID
		jl.DebitBase, jl.CreditBase = ol.CreditBase, ol.DebitBase
		err := tx.QueryRow(ctx, `
			INSERT INTO journal_lines (entry_id, line_no, account_id, transaction_currency, exchange_rate, amount_transaction, debit_base, credit_base)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`, jl.EntryID, jl.LineNo, jl.AccountID, jl.TransactionCurrency, jl.ExchangeRate, jl.AmountTransaction, jl.DebitBase, jl.CreditBase,
		).Scan(&jl.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert inverted line: %w", err)
		}
		rev.Lines = append(rev.Lines, jl)
	}
	return rev, nil
}

func (l *Ledger) GetEntry(ctx context.Context, companyCode string, entryID int) (*JournalEntry, error) {
	companyID, err := resolveCompanyID(ctx, l.pool, companyCode)
	if err != nil {
		return nil, err
	}
	return getEntry(ctx, l.pool, companyID, entryID)
}

// rowQuerier is satisfied by *pgxpool.Pool and pgx.Tx.
type rowQuerier interface {
	querier
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func getEntry(ctx context.Context, q rowQuerier, companyID, entryID int) (*JournalEntry, error) {
	e := &JournalEntry{}
	var idemKey *string
	err := q.QueryRow(ctx, `
		SELECT id, company_id, entry_number, posting_date, document_date, memo, reference, source_type,
		       idempotency_key, reversed_entry_id, created_at
		FROM journal_entries
		WHERE id = $1 AND company_id = $2
	`, entryID, companyID).Scan(&e.ID, &e.CompanyID, &e.EntryNumber, &e.PostingDate, &e.DocumentDate,
		&e.Memo, &e.Reference, &e.SourceType, &idemKey, &e.ReversedEntryID, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("journal entry %d", entryID)
		}
		return nil, fmt.Errorf("failed to fetch entry %d: %w", entryID, err)
	}
	if idemKey != nil {
		e.IdempotencyKey = *idemKey
	}

	rows, err := q.Query(ctx, `
		SELECT jl.id, jl.entry_id, jl.line_no, jl.account_id, a.code, jl.transaction_currency,
		       jl.exchange_rate, jl.amount_transaction, jl.debit_base, jl.credit_base
		FROM journal_lines jl
		JOIN accounts a ON a.id = jl.account_id
		WHERE jl.entry_id = $1
		ORDER BY jl.line_no
	`, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lines for entry %d: %w", entryID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var jl JournalLine
		if err := rows.Scan(&jl.ID, &jl.EntryID, &jl.LineNo, &jl.AccountID, &jl.AccountCode, &jl.TransactionCurrency,
			&jl.ExchangeRate, &jl.AmountTransaction, &jl.DebitBase, &jl.CreditBase); err != nil {
			return nil, fmt.Errorf("failed to scan line: %w", err)
		}
		e.Lines = append(e.Lines, jl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lines: %w", err)
	}
	return e, nil
}

// ListEntries returns entry headers (without lines) ordered by posting date.
// Empty bounds are open.
func (l *Ledger) ListEntries(ctx context.Context, companyCode, fromDate, toDate string) ([]JournalEntry, error) {
	companyID, err := resolveCompanyID(ctx, l.pool, companyCode)
	if err != nil {
		return nil, err
	}

	q := `
		SELECT id, company_id, entry_number, posting_date, document_date, memo, reference, source_type,
		       reversed_entry_id, created_at
		FROM journal_entries
		WHERE company_id = $1`
	args := []any{companyID}
	q, args = appendDateBounds(q, args, "posting_date", fromDate, toDate)
	q += " ORDER BY posting_date ASC, id ASC"

	rows, err := l.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.EntryNumber, &e.PostingDate, &e.DocumentDate,
			&e.Memo, &e.Reference, &e.SourceType, &e.ReversedEntryID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// appendDateBounds adds optional inclusive date filters on column.
func appendDateBounds(q string, args []any, column, fromDate, toDate string) (string, []any) {
	if fromDate != "" {
		args = append(args, fromDate)
		q += fmt.Sprintf(" AND %s >= $%d::date", column, len(args))
	}
	if toDate != "" {
		args = append(args, toDate)
		q += fmt.Sprintf(" AND %s <= $%d::date", column, len(args))
	}
	return q, args
}

// AccountBalance is one trial balance row. Balance is debit minus credit.
type AccountBalance struct {
	Code    string          `json:"code"`
	NameEN  string          `json:"name_en"`
	NameAR  string          `json:"name_ar"`
	Type    AccountType     `json:"type"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
	Balance decimal.Decimal `json:"balance"`
}

func (l *Ledger) GetBalances(ctx context.Context, companyCode string) ([]AccountBalance, error) {
	companyID, err := resolveCompanyID(ctx, l.pool, companyCode)
	if err != nil {
		return nil, err
	}
	return queryBalances(ctx, l.pool, companyID, today())
}
