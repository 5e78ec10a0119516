package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Rule types mapping a posting role to an account code.
const (
	RuleReceivable = "receivable"
	RuleSales      = "sales"
	RuleVATOutput  = "vat_output"
	RuleVATInput   = "vat_input"
	RuleBank       = "bank"
	RulePayable    = "payable"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RuleEngine resolves configurable account mappings from the account_rules table.
type RuleEngine interface {
	ResolveAccount(ctx context.Context, q querier, companyID int, ruleType string) (string, error)
}

type ruleEngine struct{}

// NewRuleEngine constructs a RuleEngine backed by the account_rules table.
func NewRuleEngine() RuleEngine {
	return ruleEngine{}
}

// ResolveAccount returns the account code for (companyID, ruleType), highest priority first.
func (ruleEngine) ResolveAccount(ctx context.Context, q querier, companyID int, ruleType string) (string, error) {
	var accountCode string
	err := q.QueryRow(ctx, `
		SELECT account_code
		FROM account_rules
		WHERE company_id = $1
		  AND rule_type = $2
		  AND (effective_to IS NULL OR effective_to >= CURRENT_DATE)
		ORDER BY priority DESC
		LIMIT 1
	`, companyID, ruleType).Scan(&accountCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", notFound("no account rule %q for company_id %d; seed the default chart first", ruleType, companyID)
		}
		return "", fmt.Errorf("failed to resolve account rule (company_id=%d, rule_type=%q): %w", companyID, ruleType, err)
	}
	return accountCode, nil
}
