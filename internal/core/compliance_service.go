package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ComplianceKind string

const (
	KindVATReturn    ComplianceKind = "vat_return"
	KindTradeLicense ComplianceKind = "trade_license"
	KindAudit        ComplianceKind = "audit"
	KindOther        ComplianceKind = "other"
)

func (k ComplianceKind) Valid() bool {
	switch k {
	case KindVATReturn, KindTradeLicense, KindAudit, KindOther:
		return true
	}
	return false
}

const (
	TaskOpen = "open"
	TaskDone = "done"
)

type ComplianceTask struct {
	ID          int            `json:"id"`
	CompanyID   int            `json:"company_id"`
	Title       string         `json:"title"`
	Kind        ComplianceKind `json:"kind"`
	PeriodStart *string        `json:"period_start,omitempty"`
	PeriodEnd   *string        `json:"period_end,omitempty"`
	DueDate     string         `json:"due_date"`
	Status      string         `json:"status"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

type ComplianceTaskInput struct {
	Title       string         `json:"title"`
	Kind        ComplianceKind `json:"kind"`
	PeriodStart string         `json:"period_start"`
	PeriodEnd   string         `json:"period_end"`
	DueDate     string         `json:"due_date"`
}

func (in *ComplianceTaskInput) Validate() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Kind == "" {
		in.Kind = KindOther
	}
	if in.Title == "" {
		return invalid("task title is required")
	}
	if !in.Kind.Valid() {
		return invalid("unknown task kind %q", in.Kind)
	}
	if _, err := time.Parse(dateLayout, in.DueDate); err != nil {
		return invalid("due date %q must be YYYY-MM-DD", in.DueDate)
	}
	if (in.PeriodStart == "") != (in.PeriodEnd == "") {
		return invalid("a period needs both a start and an end")
	}
	if in.PeriodStart != "" {
		start, err1 := time.Parse(dateLayout, in.PeriodStart)
		end, err2 := time.Parse(dateLayout, in.PeriodEnd)
		if err1 != nil || err2 != nil {
			return invalid("period dates must be YYYY-MM-DD")
		}
		if end.Before(start) {
			return invalid("period end is before period start")
		}
	}
	return nil
}

func optionalDate(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type ComplianceService interface {
	Create(ctx context.Context, companyCode string, in ComplianceTaskInput) (*ComplianceTask, error)
	List(ctx context.Context, companyCode, status string) ([]ComplianceTask, error)
	Complete(ctx context.Context, companyCode string, taskID int) (*ComplianceTask, error)
	Delete(ctx context.Context, companyCode string, taskID int) error
	// GenerateVATTasks creates one VAT return task per quarter of year. Quarters that
	// already have a task are skipped. It returns the number of tasks created.
	GenerateVATTasks(ctx context.Context, companyCode string, year int) (int, error)
}

type complianceService struct {
	pool *pgxpool.Pool
}

func NewComplianceService(pool *pgxpool.Pool) ComplianceService {
	return &complianceService{pool: pool}
}

const taskColumns = `id, company_id, title, kind, period_start::text, period_end::text, due_date::text, status, completed_at, created_at`

func scanTask(row pgx.Row) (*ComplianceTask, error) {
	t := &ComplianceTask{}
	err := row.Scan(&t.ID, &t.CompanyID, &t.Title, &t.Kind, &t.PeriodStart, &t.PeriodEnd, &t.DueDate, &t.Status, &t.CompletedAt, &t.CreatedAt)
	return t, err
}

func (s *complianceService) Create(ctx context.Context, companyCode string, in ComplianceTaskInput) (*ComplianceTask, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return nil, err
	}
	t, err := scanTask(s.pool.QueryRow(ctx, `
		INSERT INTO compliance_tasks (company_id, title, kind, period_start, period_end, due_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+taskColumns,
		companyID, in.Title, string(in.Kind), optionalDate(in.PeriodStart), optionalDate(in.PeriodEnd), in.DueDate))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, conflict("a %s task for period %s already exists", in.Kind, in.PeriodStart)
		}
		return nil, fmt.Errorf("failed to create compliance task: %w", err)
	}
	return t, nil
}

func (s *complianceService) List(ctx context.Context, companyCode, status string) ([]ComplianceTask, error) {
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return nil, err
	}
	q := "SELECT " + taskColumns + " FROM compliance_tasks WHERE company_id = $1"
	args := []any{companyID}
	if status != "" {
		if status != TaskOpen && status != TaskDone {
			return nil, invalid("unknown task status %q", status)
		}
		args = append(args, status)
		q += " AND status = $2"
	}
	q += " ORDER BY due_date, id"

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list compliance tasks: %w", err)
	}
	defer rows.Close()

	var out []ComplianceTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan compliance task: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *complianceService) Complete(ctx context.Context, companyCode string, taskID int) (*ComplianceTask, error) {
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return nil, err
	}
	t, err := scanTask(s.pool.QueryRow(ctx, `
		UPDATE compliance_tasks SET status = 'done', completed_at = COALESCE(completed_at, now())
		WHERE id = $1 AND company_id = $2
		RETURNING `+taskColumns, taskID, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("compliance task %d", taskID)
		}
		return nil, fmt.Errorf("failed to complete compliance task %d: %w", taskID, err)
	}
	return t, nil
}

func (s *complianceService) Delete(ctx context.Context, companyCode string, taskID int) error {
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, "DELETE FROM compliance_tasks WHERE id = $1 AND company_id = $2", taskID, companyID)
	if err != nil {
		return fmt.Errorf("failed to delete compliance task %d: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("compliance task %d", taskID)
	}
	return nil
}

func (s *complianceService) GenerateVATTasks(ctx context.Context, companyCode string, year int) (int, error) {
	if year < 2018 || year > 9999 {
		return 0, invalid("year %d is outside the UAE VAT era", year)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	companyID, err := resolveCompanyID(ctx, tx, companyCode)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, p := range VATDeadlines(year) {
		tag, err := tx.Exec(ctx, `
			INSERT INTO compliance_tasks (company_id, title, kind, period_start, period_end, due_date)
			VALUES ($1, $2, 'vat_return', $3, $4, $5)
			ON CONFLICT (company_id, kind, period_start) WHERE period_start IS NOT NULL DO NOTHING
		`, companyID, fmt.Sprintf("VAT return Q%d %d", p.Quarter, year), p.Start, p.End, p.DueDate)
		if err != nil {
			return 0, fmt.Errorf("failed to create VAT task for Q%d: %w", p.Quarter, err)
		}
		created += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit VAT tasks: %w", err)
	}
	return created, nil
}
