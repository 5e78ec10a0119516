package core

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Feedback struct {
	ID        int       `json:"id"`
	CompanyID int       `json:"company_id"`
	UserID    *int      `json:"user_id,omitempty"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	Rating    *int      `json:"rating,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type FeedbackInput struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Rating   *int   `json:"rating"`
}

const maxFeedbackLength = 4000

func (in *FeedbackInput) Validate() error {
	in.Category = strings.ToLower(strings.TrimSpace(in.Category))
	in.Message = strings.TrimSpace(in.Message)
	switch in.Category {
	case "bug", "feature", "other":
	default:
		return invalid("feedback category must be bug, feature or other")
	}
	if in.Message == "" {
		return invalid("feedback message is required")
	}
	if utf8.RuneCountInString(in.Message) > maxFeedbackLength {
		return invalid("feedback message is longer than %d characters", maxFeedbackLength)
	}
	if in.Rating != nil && (*in.Rating < 1 || *in.Rating > 5) {
		return invalid("rating must be between 1 and 5")
	}
	return nil
}

type FeedbackService interface {
	Submit(ctx context.Context, companyCode string, userID int, in FeedbackInput) (*Feedback, error)
	List(ctx context.Context, companyCode string) ([]Feedback, error)
}

type feedbackService struct {
	pool *pgxpool.Pool
}

func NewFeedbackService(pool *pgxpool.Pool) FeedbackService {
	return &feedbackService{pool: pool}
}

func (s *feedbackService) Submit(ctx context.Context, companyCode string, userID int, in FeedbackInput) (*Feedback, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return nil, err
	}

	f := &Feedback{CompanyID: companyID, Category: in.Category, Message: in.Message, Rating: in.Rating}
	if userID > 0 {
		f.UserID = &userID
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO feedback (company_id, user_id, category, message, rating)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, companyID, f.UserID, f.Category, f.Message, f.Rating).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save feedback: %w", err)
	}
	return f, nil
}

func (s *feedbackService) List(ctx context.Context, companyCode string) ([]Feedback, error) {
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, company_id, user_id, category, message, rating, created_at
		FROM feedback WHERE company_id = $1
		ORDER BY created_at DESC, id DESC
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	var out []Feedback
	for rows.Next() {
		var f Feedback
		if err := rows.Scan(&f.ID, &f.CompanyID, &f.UserID, &f.Category, &f.Message, &f.Rating, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
