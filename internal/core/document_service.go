package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DocumentService interface {
	CreateDraftDocument(ctx context.Context, companyID int, typeCode string, financialYear *int) (int, error)
	// PostDocument posts a document in its own transaction.
	PostDocument(ctx context.Context, documentID int) (string, error)
	// IssueNumberTx creates and posts a document inside the caller's transaction and
	// returns its gapless number. A rollback of tx releases the number.
	IssueNumberTx(ctx context.Context, tx pgx.Tx, companyID int, typeCode string, financialYear *int) (string, error)
	// ListDocuments returns a company's numbered documents, newest first.
	// An empty typeCode lists every type.
	ListDocuments(ctx context.Context, companyCode, typeCode string) ([]Document, error)
}

type documentService struct {
	pool *pgxpool.Pool
}

func NewDocumentService(pool *pgxpool.Pool) DocumentService {
	return &documentService{pool: pool}
}

func (s *documentService) CreateDraftDocument(ctx context.Context, companyID int, typeCode string, financialYear *int) (int, error) {
	var id int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO documents (company_id, type_code, status, financial_year)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, companyID, typeCode, string(DocumentStatusDraft), financialYear).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create draft document: %w", err)
	}
	return id, nil
}

func (s *documentService) PostDocument(ctx context.Context, documentID int) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	number, err := postDocumentWithTx(ctx, tx, documentID)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return number, nil
}

func (s *documentService) IssueNumberTx(ctx context.Context, tx pgx.Tx, companyID int, typeCode string, financialYear *int) (string, error) {
	var id int
	err := tx.QueryRow(ctx, `
		INSERT INTO documents (company_id, type_code, status, financial_year)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, companyID, typeCode, string(DocumentStatusDraft), financialYear).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to create draft document: %w", err)
	}
	return postDocumentWithTx(ctx, tx, id)
}

// postDocumentWithTx assigns the next sequence number and marks the document posted.
func postDocumentWithTx(ctx context.Context, tx pgx.Tx, documentID int) (string, error) {
	var doc Document
	err := tx.QueryRow(ctx, `
		SELECT company_id, type_code, status, financial_year
		FROM documents
		WHERE id = $1
		FOR UPDATE
	`, documentID).Scan(&doc.CompanyID, &doc.TypeCode, &doc.Status, &doc.FinancialYear)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", notFound("document %d", documentID)
		}
		return "", fmt.Errorf("failed to read document for update: %w", err)
	}

	if doc.Status != DocumentStatusDraft {
		return "", conflict("document must be in DRAFT status to be posted, current status: %s", doc.Status)
	}

	var docType DocumentType
	err = tx.QueryRow(ctx, `
		SELECT numbering_strategy, resets_every_fy
		FROM document_types
		WHERE code = $1
	`, doc.TypeCode).Scan(&docType.NumberingStrategy, &docType.ResetsEveryFY)
	if err != nil {
		return "", fmt.Errorf("failed to get document type strategy: %w", err)
	}

	// Global sequences ignore the year so the counter never resets.
	seqYear := doc.FinancialYear
	if !docType.ResetsEveryFY {
		seqYear = nil
	}

	var lastNumber int64
	err = tx.QueryRow(ctx, `
		INSERT INTO document_sequences (company_id, type_code, financial_year, last_number)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (company_id, type_code, (COALESCE(financial_year, -1)))
		DO UPDATE SET last_number = document_sequences.last_number + 1
		RETURNING last_number
	`, doc.CompanyID, doc.TypeCode, seqYear).Scan(&lastNumber)
	if err != nil {
		return "", fmt.Errorf("failed to generate gapless sequence number: %w", err)
	}

	number := FormatDocumentNumber(doc.TypeCode, seqYear, lastNumber)

	_, err = tx.Exec(ctx, `
		UPDATE documents
		SET status = $1, document_number = $2, posted_at = NOW()
		WHERE id = $3
	`, string(DocumentStatusPosted), number, documentID)
	if err != nil {
		return "", fmt.Errorf("failed to update document status and number: %w", err)
	}
	return number, nil
}

// FormatDocumentNumber renders e.g. INV-2026-00042 or JE-GLOBAL-00007.
func FormatDocumentNumber(typeCode string, year *int, seq int64) string {
	yearStr := "GLOBAL"
	if year != nil {
		yearStr = fmt.Sprintf("%d", *year)
	}
	return fmt.Sprintf("%s-%s-%05d", typeCode, yearStr, seq)
}

func (s *documentService) ListDocuments(ctx context.Context, companyCode, typeCode string) ([]Document, error) {
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, company_id, type_code, status, document_number, financial_year, created_at, posted_at
		FROM documents
		WHERE company_id = $1 AND ($2 = '' OR type_code = $2)
		ORDER BY id DESC
	`, companyID, typeCode)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Document, error) {
		var d Document
		err := row.Scan(&d.ID, &d.CompanyID, &d.TypeCode, &d.Status, &d.DocumentNumber, &d.FinancialYear, &d.CreatedAt, &d.PostedAt)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan documents: %w", err)
	}
	return docs, nil
}
