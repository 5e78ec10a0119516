package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ReferralCode struct {
	ID        int       `json:"id"`
	CompanyID int       `json:"company_id"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

type ReferralRedemption struct {
	ID                  int       `json:"id"`
	Code                string    `json:"code"`
	ReferredCompanyCode string    `json:"referred_company_code"`
	ReferredCompanyName string    `json:"referred_company_name"`
	RedeemedAt          time.Time `json:"redeemed_at"`
}

const referralCodeLength = 8

type ReferralService interface {
	// GetOrCreateCode returns the company's referral code, creating it on first use.
	GetOrCreateCode(ctx context.Context, companyCode string) (*ReferralCode, error)
	// Redeem credits code with bringing in referredCompanyCode. A company can be
	// referred once and cannot refer itself.
	Redeem(ctx context.Context, code, referredCompanyCode string) (*ReferralRedemption, error)
	ListRedemptions(ctx context.Context, companyCode string) ([]ReferralRedemption, error)
}

type referralService struct {
	pool *pgxpool.Pool
}

func NewReferralService(pool *pgxpool.Pool) ReferralService {
	return &referralService{pool: pool}
}

func newReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:referralCodeLength]
}

func (s *referralService) GetOrCreateCode(ctx context.Context, companyCode string) (*ReferralCode, error) {
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < 3; attempt++ {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO referral_codes (company_id, code) VALUES ($1, $2)
			ON CONFLICT (company_id) DO NOTHING
		`, companyID, newReferralCode())
		if err == nil {
			break
		}
		if !isUniqueViolation(err) {
			return nil, fmt.Errorf("failed to create referral code: %w", err)
		}
		// code collision with another company, draw again
	}

	rc := &ReferralCode{}
	err = s.pool.QueryRow(ctx,
		"SELECT id, company_id, code, created_at FROM referral_codes WHERE company_id = $1", companyID,
	).Scan(&rc.ID, &rc.CompanyID, &rc.Code, &rc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load referral code: %w", err)
	}
	return rc, nil
}

func (s *referralService) Redeem(ctx context.Context, code, referredCompanyCode string) (*ReferralRedemption, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != referralCodeLength {
		return nil, invalid("referral code must be %d characters", referralCodeLength)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	referred, err := loadCompanyTx(ctx, tx, referredCompanyCode)
	if err != nil {
		return nil, err
	}

	var codeID, ownerID int
	err = tx.QueryRow(ctx, "SELECT id, company_id FROM referral_codes WHERE code = $1", code).Scan(&codeID, &ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("referral code %s", code)
		}
		return nil, fmt.Errorf("failed to look up referral code: %w", err)
	}
	if ownerID == referred.ID {
		return nil, invalid("a company cannot redeem its own referral code")
	}

	red := &ReferralRedemption{Code: code, ReferredCompanyCode: referred.CompanyCode, ReferredCompanyName: referred.Name}
	err = tx.QueryRow(ctx, `
		INSERT INTO referral_redemptions (referral_code_id, referred_company_id)
		VALUES ($1, $2)
		RETURNING id, redeemed_at
	`, codeID, referred.ID).Scan(&red.ID, &red.RedeemedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, conflict("company %s has already redeemed a referral", referred.CompanyCode)
		}
		return nil, fmt.Errorf("failed to redeem referral code: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit redemption: %w", err)
	}
	return red, nil
}

func (s *referralService) ListRedemptions(ctx context.Context, companyCode string) ([]ReferralRedemption, error) {
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, rc.code, c.company_code, c.name, r.redeemed_at
		FROM referral_redemptions r
		JOIN referral_codes rc ON rc.id = r.referral_code_id
		JOIN companies c ON c.id = r.referred_company_id
		WHERE rc.company_id = $1
		ORDER BY r.redeemed_at DESC
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list redemptions: %w", err)
	}
	defer rows.Close()

	var out []ReferralRedemption
	for rows.Next() {
		var r ReferralRedemption
		if err := rows.Scan(&r.ID, &r.Code, &r.ReferredCompanyCode, &r.ReferredCompanyName, &r.RedeemedAt); err != nil {
			return nil, fmt.Errorf("failed to scan redemption: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
