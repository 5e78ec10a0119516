package core

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed default_chart.yaml
var defaultChartYAML []byte

type ChartTemplate struct {
	Accounts []ChartAccount `yaml:"accounts"`
	Rules    []ChartRule    `yaml:"rules"`
}

type ChartAccount struct {
	Code   string      `yaml:"code"`
	NameEN string      `yaml:"name_en"`
	NameAR string      `yaml:"name_ar"`
	Type   AccountType `yaml:"type"`
}

type ChartRule struct {
	RuleType    string `yaml:"rule_type"`
	AccountCode string `yaml:"account_code"`
}

// ParseChartTemplate decodes a chart template and checks that every rule points at
// an account in the template.
func ParseChartTemplate(data []byte) (*ChartTemplate, error) {
	var tpl ChartTemplate
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("failed to parse chart template: %w", err)
	}
	codes := make(map[string]bool, len(tpl.Accounts))
	for _, a := range tpl.Accounts {
		if a.Code == "" || a.NameEN == "" {
			return nil, invalid("chart template account %q is missing a code or name", a.Code)
		}
		if !a.Type.Valid() {
			return nil, invalid("chart template account %s has unknown type %q", a.Code, a.Type)
		}
		if codes[a.Code] {
			return nil, invalid("chart template repeats account %s", a.Code)
		}
		codes[a.Code] = true
	}
	for _, r := range tpl.Rules {
		if !codes[r.AccountCode] {
			return nil, invalid("chart template rule %s points at unknown account %s", r.RuleType, r.AccountCode)
		}
	}
	return &tpl, nil
}

// DefaultChart returns the embedded UAE chart of accounts.
func DefaultChart() (*ChartTemplate, error) {
	return ParseChartTemplate(defaultChartYAML)
}

// AccountInput creates an account.
type AccountInput struct {
	Code   string      `json:"code"`
	NameEN string      `json:"name_en"`
	NameAR string      `json:"name_ar"`
	Type   AccountType `json:"type"`
}

// AccountUpdate is a partial update; nil fields are left unchanged.
type AccountUpdate struct {
	NameEN   *string      `json:"name_en"`
	NameAR   *string      `json:"name_ar"`
	Type     *AccountType `json:"type"`
	IsActive *bool        `json:"is_active"`
}

type AccountService interface {
	List(ctx context.Context, companyCode string, includeInactive bool) ([]Account, error)
	Get(ctx context.Context, companyCode, code string) (*Account, error)
	Create(ctx context.Context, companyCode string, in AccountInput) (*Account, error)
	Update(ctx context.Context, companyCode, code string, in AccountUpdate) (*Account, error)
	Deactivate(ctx context.Context, companyCode, code string) error
	// SeedDefaultChart inserts the embedded chart and posting rules. Existing
	// accounts and rules are kept. It returns the number of accounts added.
	SeedDefaultChart(ctx context.Context, companyCode string) (int, error)
}

type accountService struct {
	pool *pgxpool.Pool
}

func NewAccountService(pool *pgxpool.Pool) AccountService {
	return &accountService{pool: pool}
}

func (s *accountService) List(ctx context.Context, companyCode string, includeInactive bool) ([]Account, error) {
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return nil, err
	}
	q := `SELECT id, company_id, code, name, name_ar, type, is_active FROM accounts WHERE company_id = $1`
	if !includeInactive {
		q += " AND is_active"
	}
	q += " ORDER BY code"

	rows, err := s.pool.Query(ctx, q, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.Code, &a.NameEN, &a.NameAR, &a.Type, &a.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *accountService) Get(ctx context.Context, companyCode, code string) (*Account, error) {
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return nil, err
	}
	return getAccount(ctx, s.pool, companyID, code)
}

func getAccount(ctx context.Context, q querier, companyID int, code string) (*Account, error) {
	a := &Account{}
	err := q.QueryRow(ctx, `
		SELECT id, company_id, code, name, name_ar, type, is_active
		FROM accounts WHERE company_id = $1 AND code = $2
	`, companyID, code).Scan(&a.ID, &a.CompanyID, &a.Code, &a.NameEN, &a.NameAR, &a.Type, &a.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("account %s", code)
		}
		return nil, fmt.Errorf("failed to load account %s: %w", code, err)
	}
	return a, nil
}

func (in *AccountInput) validate() error {
	in.Code = strings.TrimSpace(in.Code)
	in.NameEN = strings.TrimSpace(in.NameEN)
	in.NameAR = strings.TrimSpace(in.NameAR)
	if in.Code == "" {
		return invalid("account code is required")
	}
	if strings.ContainsAny(in.Code, " \t") {
		return invalid("account code %q cannot contain spaces", in.Code)
	}
	if in.NameEN == "" {
		return invalid("account name is required")
	}
	if !in.Type.Valid() {
		return invalid("unknown account type %q", in.Type)
	}
	return nil
}

func (s *accountService) Create(ctx context.Context, companyCode string, in AccountInput) (*Account, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return nil, err
	}

	a := &Account{CompanyID: companyID, Code: in.Code, NameEN: in.NameEN, NameAR: in.NameAR, Type: in.Type, IsActive: true}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO accounts (company_id, code, name, name_ar, type)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (company_id, code) DO NOTHING
		RETURNING id
	`, companyID, in.Code, in.NameEN, in.NameAR, string(in.Type)).Scan(&a.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, conflict("account %s already exists", in.Code)
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return a, nil
}

func (s *accountService) Update(ctx context.Context, companyCode, code string, in AccountUpdate) (*Account, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	companyID, err := resolveCompanyID(ctx, tx, companyCode)
	if err != nil {
		return nil, err
	}
	a, err := getAccount(ctx, tx, companyID, code)
	if err != nil {
		return nil, err
	}

	if in.NameEN != nil {
		name := strings.TrimSpace(*in.NameEN)
		if name == "" {
			return nil, invalid("account name is required")
		}
		a.NameEN = name
	}
	if in.NameAR != nil {
		a.NameAR = strings.TrimSpace(*in.NameAR)
	}
	if in.IsActive != nil {
		a.IsActive = *in.IsActive
	}
	if in.Type != nil && *in.Type != a.Type {
		if !in.Type.Valid() {
			return nil, invalid("unknown account type %q", *in.Type)
		}
		var posted bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM journal_lines WHERE account_id = $1)", a.ID).Scan(&posted); err != nil {
			return nil, fmt.Errorf("failed to check postings for account %s: %w", code, err)
		}
		if posted {
			return nil, conflict("account %s has postings; its type cannot change", code)
		}
		a.Type = *in.Type
	}

	_, err = tx.Exec(ctx, `
		UPDATE accounts SET name = $1, name_ar = $2, type = $3, is_active = $4 WHERE id = $5
	`, a.NameEN, a.NameAR, string(a.Type), a.IsActive, a.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update account %s: %w", code, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit account update: %w", err)
	}
	return a, nil
}

func (s *accountService) Deactivate(ctx context.Context, companyCode, code string) error {
	inactive := false
	_, err := s.Update(ctx, companyCode, code, AccountUpdate{IsActive: &inactive})
	return err
}

func (s *accountService) SeedDefaultChart(ctx context.Context, companyCode string) (int, error) {
	tpl, err := DefaultChart()
	if err != nil {
		return 0, err
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

	added := 0
	for _, a := range tpl.Accounts {
		tag, err := tx.Exec(ctx, `
			INSERT INTO accounts (company_id, code, name, name_ar, type)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (company_id, code) DO NOTHING
		`, companyID, a.Code, a.NameEN, a.NameAR, string(a.Type))
		if err != nil {
			return 0, fmt.Errorf("failed to seed account %s: %w", a.Code, err)
		}
		added += int(tag.RowsAffected())
	}
	for _, r := range tpl.Rules {
		_, err := tx.Exec(ctx, `
			INSERT INTO account_rules (company_id, rule_type, account_code)
			SELECT $1, $2, $3
			WHERE NOT EXISTS (SELECT 1 FROM account_rules WHERE company_id = $1 AND rule_type = $2)
		`, companyID, r.RuleType, r.AccountCode)
		if err != nil {
			return 0, fmt.Errorf("failed to seed rule %s: %w", r.RuleType, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit default chart: %w", err)
	}
	return added, nil
}

// AccountGroup is one account type section of the chart.
// Total is expressed in the type's normal-balance sign.
type AccountGroup struct {
	Type     AccountType      `json:"type"`
	Accounts []AccountBalance `json:"accounts"`
	Total    decimal.Decimal  `json:"total"`
}

// GroupByType buckets balances by account type. All five groups are returned in
// chart order, empty ones included. Balances of unknown type are dropped.
func GroupByType(balances []AccountBalance) []AccountGroup {
	groups := make([]AccountGroup, len(AccountTypes))
	index := make(map[AccountType]int, len(AccountTypes))
	for i, t := range AccountTypes {
		groups[i] = AccountGroup{Type: t, Accounts: []AccountBalance{}, Total: decimal.Zero}
		index[t] = i
	}
	for _, b := range balances {
		i, ok := index[b.Type]
		if !ok {
			continue
		}
		g := &groups[i]
		g.Accounts = append(g.Accounts, b)
		if b.Type.DebitNormal() {
			g.Total = g.Total.Add(b.Balance)
		} else {
			g.Total = g.Total.Sub(b.Balance)
		}
	}
	return groups
}
