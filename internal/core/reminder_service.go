package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	ReminderComplianceDue  = "compliance_due"
	ReminderInvoiceOverdue = "invoice_overdue"
)

type Reminder struct {
	ID        int        `json:"id"`
	CompanyID int        `json:"company_id"`
	Kind      string     `json:"kind"`
	SubjectID int        `json:"subject_id"`
	Message   string     `json:"message"`
	DueDate   string     `json:"due_date"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type ReminderService interface {
	// Scan records reminders for open compliance tasks due within leadDays of asOf
	// (overdue ones included) and for issued invoices past their due date. A reminder
	// already recorded for the same subject and due date is not repeated. It returns
	// the number of new reminders.
	Scan(ctx context.Context, companyCode, asOfDate string, leadDays int) (int, error)
	List(ctx context.Context, companyCode string, unreadOnly bool) ([]Reminder, error)
	MarkRead(ctx context.Context, companyCode string, reminderID int) error
}

type reminderService struct {
	pool *pgxpool.Pool
}

func NewReminderService(pool *pgxpool.Pool) ReminderService {
	return &reminderService{pool: pool}
}

// pendingReminder is a reminder candidate found by a scan.
type pendingReminder struct {
	kind      string
	subjectID int
	message   string
	dueDate   string
}

func complianceMessage(title, dueDate, asOfDate string) string {
	if dueDate < asOfDate {
		return fmt.Sprintf("%s was due on %s and is still open", title, dueDate)
	}
	return fmt.Sprintf("%s is due on %s", title, dueDate)
}

func overdueInvoiceMessage(number, customer, dueDate string) string {
	return fmt.Sprintf("Invoice %s to %s is overdue since %s", number, customer, dueDate)
}

func (s *reminderService) Scan(ctx context.Context, companyCode, asOfDate string, leadDays int) (int, error) {
	if leadDays < 0 {
		return 0, invalid("lead days cannot be negative")
	}
	if asOfDate == "" {
		asOfDate = today()
	}
	asOf, err := time.Parse(dateLayout, asOfDate)
	if err != nil {
		return 0, invalid("date %q must be YYYY-MM-DD", asOfDate)
	}
	horizon := asOf.AddDate(0, 0, leadDays).Format(dateLayout)

	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return 0, err
	}

	var pending []pendingReminder

	rows, err := s.pool.Query(ctx, `
		SELECT id, title, due_date::text FROM compliance_tasks
		WHERE company_id = $1 AND status = 'open' AND due_date <= $2::date
	`, companyID, horizon)
	if err != nil {
		return 0, fmt.Errorf("failed to scan compliance tasks: %w", err)
	}
	for rows.Next() {
		var id int
		var title, due string
		if err := rows.Scan(&id, &title, &due); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan compliance task: %w", err)
		}
		pending = append(pending, pendingReminder{ReminderComplianceDue, id, complianceMessage(title, due, asOfDate), due})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("compliance task iteration error: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT id, COALESCE(invoice_number, ''), customer_name, due_date::text FROM invoices
		WHERE company_id = $1 AND status = 'issued' AND due_date < $2::date
	`, companyID, asOfDate)
	if err != nil {
		return 0, fmt.Errorf("failed to scan overdue invoices: %w", err)
	}
	for rows.Next() {
		var id int
		var number, customer, due string
		if err := rows.Scan(&id, &number, &customer, &due); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan invoice: %w", err)
		}
		pending = append(pending, pendingReminder{ReminderInvoiceOverdue, id, overdueInvoiceMessage(number, customer, due), due})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("invoice iteration error: %w", err)
	}

	created := 0
	for _, p := range pending {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO reminders (company_id, kind, subject_id, message, due_date)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (company_id, kind, subject_id, due_date) DO NOTHING
		`, companyID, p.kind, p.subjectID, p.message, p.dueDate)
		if err != nil {
			return created, fmt.Errorf("failed to record reminder: %w", err)
		}
		created += int(tag.RowsAffected())
	}
	return created, nil
}

func (s *reminderService) List(ctx context.Context, companyCode string, unreadOnly bool) ([]Reminder, error) {
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return nil, err
	}
	q := `SELECT id, company_id, kind, subject_id, message, due_date::text, read_at, created_at
		FROM reminders WHERE company_id = $1`
	if unreadOnly {
		q += " AND read_at IS NULL"
	}
	q += " ORDER BY due_date, id"

	rows, err := s.pool.Query(ctx, q, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		var r Reminder
		if err := rows.Scan(&r.ID, &r.CompanyID, &r.Kind, &r.SubjectID, &r.Message, &r.DueDate, &r.ReadAt, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *reminderService) MarkRead(ctx context.Context, companyCode string, reminderID int) error {
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE reminders SET read_at = COALESCE(read_at, now()) WHERE id = $1 AND company_id = $2
	`, reminderID, companyID)
	if err != nil {
		return fmt.Errorf("failed to mark reminder %d read: %w", reminderID, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("reminder %d", reminderID)
	}
	return nil
}
