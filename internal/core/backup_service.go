package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const snapshotVersion = 1

// Snapshot is the archived state of one company.
type Snapshot struct {
	Version         int              `json:"version"`
	TakenAt         time.Time        `json:"taken_at"`
	Company         Company          `json:"company"`
	Accounts        []Account        `json:"accounts"`
	JournalEntries  []JournalEntry   `json:"journal_entries"`
	Invoices        []Invoice        `json:"invoices"`
	Receipts        []Receipt        `json:"receipts"`
	ComplianceTasks []ComplianceTask `json:"compliance_tasks"`
}

// Backup is the stored metadata of a snapshot.
type Backup struct {
	ID        int       `json:"id"`
	CompanyID int       `json:"company_id"`
	CreatedBy *int      `json:"created_by,omitempty"`
	SizeBytes int64     `json:"size_bytes"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrChecksumMismatch is returned when a stored payload no longer matches its checksum.
var ErrChecksumMismatch = errors.New("backup checksum mismatch")

// EncodeSnapshot serializes s and returns the payload with its hex SHA-256.
func EncodeSnapshot(s *Snapshot) ([]byte, string, error) {
	payload, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	sum := sha256.Sum256(payload)
	return payload, hex.EncodeToString(sum[:]), nil
}

func VerifyChecksum(payload []byte, checksum string) error {
	sum := sha256.Sum256(payload)
	if hex.EncodeToString(sum[:]) != checksum {
		return ErrChecksumMismatch
	}
	return nil
}

type BackupService interface {
	// Create snapshots the company in a read-only repeatable-read transaction and stores it.
	Create(ctx context.Context, companyCode string, createdBy int) (*Backup, error)
	List(ctx context.Context, companyCode string) ([]Backup, error)
	// Download returns the verified payload of a backup.
	Download(ctx context.Context, companyCode string, backupID int) (*Backup, []byte, error)
	Delete(ctx context.Context, companyCode string, backupID int) error
}

type backupService struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewBackupService(pool *pgxpool.Pool) BackupService {
	return &backupService{pool: pool, now: time.Now}
}

func (s *backupService) Create(ctx context.Context, companyCode string, createdBy int) (*Backup, error) {
	snap, err := s.snapshot(ctx, companyCode)
	if err != nil {
		return nil, err
	}
	payload, checksum, err := EncodeSnapshot(snap)
	if err != nil {
		return nil, err
	}

	b := &Backup{CompanyID: snap.Company.ID, SizeBytes: int64(len(payload)), Checksum: checksum}
	if createdBy > 0 {
		b.CreatedBy = &createdBy
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO backups (company_id, created_by, size_bytes, checksum, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, b.CompanyID, b.CreatedBy, b.SizeBytes, b.Checksum, payload).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store backup: %w", err)
	}
	return b, nil
}

func (s *backupService) snapshot(ctx context.Context, companyCode string) (*Snapshot, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	company, err := loadCompanyTx(ctx, tx, companyCode)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Version: snapshotVersion, TakenAt: s.now().UTC(), Company: *company}

	if snap.Accounts, err = snapshotAccounts(ctx, tx, company.ID); err != nil {
		return nil, err
	}
	if snap.JournalEntries, err = snapshotEntries(ctx, tx, company.ID); err != nil {
		return nil, err
	}
	if snap.Invoices, err = snapshotInvoices(ctx, tx, company.ID); err != nil {
		return nil, err
	}
	if snap.Receipts, err = collectRows(ctx, tx, scanReceipt,
		"SELECT "+receiptColumns+" FROM receipts WHERE company_id = $1 ORDER BY id", company.ID); err != nil {
		return nil, fmt.Errorf("failed to snapshot receipts: %w", err)
	}
	if snap.ComplianceTasks, err = collectRows(ctx, tx, scanTask,
		"SELECT "+taskColumns+" FROM compliance_tasks WHERE company_id = $1 ORDER BY id", company.ID); err != nil {
		return nil, fmt.Errorf("failed to snapshot compliance tasks: %w", err)
	}
	return snap, nil
}

// collectRows runs q and scans every row with scan.
func collectRows[T any](ctx context.Context, tx pgx.Tx, scan func(pgx.Row) (*T, error), q string, args ...any) ([]T, error) {
	rows, err := tx.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func snapshotAccounts(ctx context.Context, tx pgx.Tx, companyID int) ([]Account, error) {
	accounts, err := collectRows(ctx, tx, func(row pgx.Row) (*Account, error) {
		a := &Account{}
		err := row.Scan(&a.ID, &a.CompanyID, &a.Code, &a.NameEN, &a.NameAR, &a.Type, &a.IsActive)
		return a, err
	}, "SELECT id, company_id, code, name, name_ar, type, is_active FROM accounts WHERE company_id = $1 ORDER BY code", companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot accounts: %w", err)
	}
	return accounts, nil
}

func snapshotEntries(ctx context.Context, tx pgx.Tx, companyID int) ([]JournalEntry, error) {
	entries, err := collectRows(ctx, tx, func(row pgx.Row) (*JournalEntry, error) {
		e := &JournalEntry{}
		var idemKey *string
		err := row.Scan(&e.ID, &e.CompanyID, &e.EntryNumber, &e.PostingDate, &e.DocumentDate, &e.Memo,
			&e.Reference, &e.SourceType, &idemKey, &e.ReversedEntryID, &e.CreatedAt)
		if idemKey != nil {
			e.IdempotencyKey = *idemKey
		}
		return e, err
	}, `SELECT id, company_id, entry_number, posting_date, document_date, memo, reference, source_type,
	           idempotency_key, reversed_entry_id, created_at
	    FROM journal_entries WHERE company_id = $1 ORDER BY id`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot journal entries: %w", err)
	}

	lines, err := collectRows(ctx, tx, func(row pgx.Row) (*JournalLine, error) {
		jl := &JournalLine{}
		err := row.Scan(&jl.ID, &jl.EntryID, &jl.LineNo, &jl.AccountID, &jl.AccountCode, &jl.TransactionCurrency,
			&jl.ExchangeRate, &jl.AmountTransaction, &jl.DebitBase, &jl.CreditBase)
		return jl, err
	}, `SELECT jl.id, jl.entry_id, jl.line_no, jl.account_id, a.code, jl.transaction_currency,
	           jl.exchange_rate, jl.amount_transaction, jl.debit_base, jl.credit_base
	    FROM journal_lines jl
	    JOIN journal_entries je ON je.id = jl.entry_id
	    JOIN accounts a ON a.id = jl.account_id
	    WHERE je.company_id = $1
	    ORDER BY jl.entry_id, jl.line_no`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot journal lines: %w", err)
	}

	byEntry := make(map[int]int, len(entries))
	for i := range entries {
		byEntry[entries[i].ID] = i
	}
	for _, jl := range lines {
		if i, ok := byEntry[jl.EntryID]; ok {
			entries[i].Lines = append(entries[i].Lines, jl)
		}
	}
	return entries, nil
}

func snapshotInvoices(ctx context.Context, tx pgx.Tx, companyID int) ([]Invoice, error) {
	invoices, err := collectRows(ctx, tx, scanInvoice,
		"SELECT "+invoiceColumns+" FROM invoices WHERE company_id = $1 ORDER BY id", companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot invoices: %w", err)
	}

	type invoiceLine struct {
		invoiceID int
		line      InvoiceLine
	}
	lines, err := collectRows(ctx, tx, func(row pgx.Row) (*invoiceLine, error) {
		il := &invoiceLine{}
		l := &il.line
		err := row.Scan(&il.invoiceID, &l.ID, &l.LineNo, &l.Description, &l.Quantity, &l.UnitPrice, &l.VATCategory, &l.NetAmount, &l.VATAmount)
		return il, err
	}, `SELECT il.invoice_id, il.id, il.line_no, il.description, il.quantity, il.unit_price, il.vat_category, il.net_amount, il.vat_amount
	    FROM invoice_lines il JOIN invoices i ON i.id = il.invoice_id
	    WHERE i.company_id = $1
	    ORDER BY il.invoice_id, il.line_no`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot invoice lines: %w", err)
	}

	byInvoice := make(map[int]int, len(invoices))
	for i := range invoices {
		byInvoice[invoices[i].ID] = i
	}
	for _, il := range lines {
		if i, ok := byInvoice[il.invoiceID]; ok {
			invoices[i].Lines = append(invoices[i].Lines, il.line)
		}
	}
	return invoices, nil
}

func (s *backupService) List(ctx context.Context, companyCode string) ([]Backup, error) {
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, company_id, created_by, size_bytes, checksum, created_at
		FROM backups WHERE company_id = $1
		ORDER BY created_at DESC, id DESC
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	defer rows.Close()

	var out []Backup
	for rows.Next() {
		var b Backup
		if err := rows.Scan(&b.ID, &b.CompanyID, &b.CreatedBy, &b.SizeBytes, &b.Checksum, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan backup: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *backupService) Download(ctx context.Context, companyCode string, backupID int) (*Backup, []byte, error) {
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return nil, nil, err
	}
	b := &Backup{}
	var payload []byte
	err = s.pool.QueryRow(ctx, `
		SELECT id, company_id, created_by, size_bytes, checksum, created_at, payload
		FROM backups WHERE id = $1 AND company_id = $2
	`, backupID, companyID).Scan(&b.ID, &b.CompanyID, &b.CreatedBy, &b.SizeBytes, &b.Checksum, &b.CreatedAt, &payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, notFound("backup %d", backupID)
		}
		return nil, nil, fmt.Errorf("failed to load backup %d: %w", backupID, err)
	}
	if err := VerifyChecksum(payload, b.Checksum); err != nil {
		return nil, nil, fmt.Errorf("backup %d: %w", backupID, err)
	}
	return b, payload, nil
}

func (s *backupService) Delete(ctx context.Context, companyCode string, backupID int) error {
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, "DELETE FROM backups WHERE id = $1 AND company_id = $2", backupID, companyID)
	if err != nil {
		return fmt.Errorf("failed to delete backup %d: %w", backupID, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("backup %d", backupID)
	}
	return nil
}
