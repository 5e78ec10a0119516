package core

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var trnPattern = regexp.MustCompile(`^\d{15}$`)

// CompanySettings is a partial update; nil fields are left unchanged.
type CompanySettings struct {
	Name                 *string          `json:"name"`
	NameAR               *string          `json:"name_ar"`
	TRN                  *string          `json:"trn"`
	VATRegistered        *bool            `json:"vat_registered"`
	VATRate              *decimal.Decimal `json:"vat_rate"`
	FiscalYearStartMonth *int             `json:"fiscal_year_start_month"`
}

type CompanyService interface {
	Create(ctx context.Context, c Company) (*Company, error)
	Get(ctx context.Context, companyCode string) (*Company, error)
	GetByID(ctx context.Context, companyID int) (*Company, error)
	List(ctx context.Context) ([]Company, error)
	UpdateSettings(ctx context.Context, companyCode string, s CompanySettings) (*Company, error)
}

type companyService struct {
	pool *pgxpool.Pool
}

func NewCompanyService(pool *pgxpool.Pool) CompanyService {
	return &companyService{pool: pool}
}

// resolveCompanyID looks up the internal company ID from a company code.
func resolveCompanyID(ctx context.Context, q querier, companyCode string) (int, error) {
	var id int
	err := q.QueryRow(ctx, "SELECT id FROM companies WHERE company_code = $1", companyCode).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, notFound("company %s", companyCode)
		}
		return 0, fmt.Errorf("failed to resolve company %s: %w", companyCode, err)
	}
	return id, nil
}

// ValidateCompany checks the tax settings of a company record.
func ValidateCompany(c Company) error {
	if strings.TrimSpace(c.CompanyCode) == "" {
		return invalid("company code is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return invalid("company name is required")
	}
	if c.TRN != "" && !trnPattern.MatchString(c.TRN) {
		return invalid("TRN must be 15 digits")
	}
	if c.VATRegistered && c.TRN == "" {
		return invalid("a VAT registered company needs a TRN")
	}
	if c.VATRate.IsNegative() || c.VATRate.GreaterThan(decimal.NewFromInt(100)) {
		return invalid("VAT rate must be between 0 and 100")
	}
	if c.FiscalYearStartMonth < 1 || c.FiscalYearStartMonth > 12 {
		return invalid("fiscal year start month must be 1-12")
	}
	return nil
}

func (s *companyService) Create(ctx context.Context, c Company) (*Company, error) {
	c.CompanyCode = strings.TrimSpace(c.CompanyCode)
	c.TRN = strings.TrimSpace(c.TRN)
	if c.BaseCurrency == "" {
		c.BaseCurrency = "AED"
	}
	if c.VATRate.IsZero() && c.VATRegistered {
		c.VATRate = decimal.NewFromInt(5)
	}
	if c.FiscalYearStartMonth == 0 {
		c.FiscalYearStartMonth = 1
	}
	if err := ValidateCompany(c); err != nil {
		return nil, err
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO companies (company_code, name, name_ar, base_currency, trn, vat_registered, vat_rate, fiscal_year_start_month)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (company_code) DO NOTHING
		RETURNING id, created_at
	`, c.CompanyCode, c.Name, c.NameAR, c.BaseCurrency, c.TRN, c.VATRegistered, c.VATRate, c.FiscalYearStartMonth,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, conflict("company %s already exists", c.CompanyCode)
		}
		return nil, fmt.Errorf("failed to create company: %w", err)
	}
	return &c, nil
}

const companyColumns = `id, company_code, name, name_ar, base_currency, trn, vat_registered, vat_rate, fiscal_year_start_month, created_at`

func scanCompany(row pgx.Row) (*Company, error) {
	c := &Company{}
	err := row.Scan(&c.ID, &c.CompanyCode, &c.Name, &c.NameAR, &c.BaseCurrency, &c.TRN,
		&c.VATRegistered, &c.VATRate, &c.FiscalYearStartMonth, &c.CreatedAt)
	return c, err
}

func (s *companyService) Get(ctx context.Context, companyCode string) (*Company, error) {
	c, err := scanCompany(s.pool.QueryRow(ctx, "SELECT "+companyColumns+" FROM companies WHERE company_code = $1", companyCode))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("company %s", companyCode)
		}
		return nil, fmt.Errorf("failed to load company %s: %w", companyCode, err)
	}
	return c, nil
}

func (s *companyService) GetByID(ctx context.Context, companyID int) (*Company, error) {
	c, err := scanCompany(s.pool.QueryRow(ctx, "SELECT "+companyColumns+" FROM companies WHERE id = $1", companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("company id=%d", companyID)
		}
		return nil, fmt.Errorf("failed to load company id=%d: %w", companyID, err)
	}
	return c, nil
}

func (s *companyService) List(ctx context.Context) ([]Company, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+companyColumns+" FROM companies ORDER BY company_code")
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	var out []Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *companyService) UpdateSettings(ctx context.Context, companyCode string, in CompanySettings) (*Company, error) {
	c, err := s.Get(ctx, companyCode)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
	}
	if in.NameAR != nil {
		c.NameAR = strings.TrimSpace(*in.NameAR)
	}
	if in.TRN != nil {
		c.TRN = strings.TrimSpace(*in.TRN)
	}
	if in.VATRegistered != nil {
		c.VATRegistered = *in.VATRegistered
	}
	if in.VATRate != nil {
		c.VATRate = *in.VATRate
	}
	if in.FiscalYearStartMonth != nil {
		c.FiscalYearStartMonth = *in.FiscalYearStartMonth
	}
	if err := ValidateCompany(*c); err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE companies
		SET name = $1, name_ar = $2, trn = $3, vat_registered = $4, vat_rate = $5, fiscal_year_start_month = $6
		WHERE id = $7
	`, c.Name, c.NameAR, c.TRN, c.VATRegistered, c.VATRate, c.FiscalYearStartMonth, c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update company settings: %w", err)
	}
	return c, nil
}
