package core

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	ierr "garments-erp/internal/errors"
)

// Account rule types. Each maps to exactly one account code in account_rules.
const (
	RuleReceivable = "RECEIVABLE"
	RulePayable    = "PAYABLE"
	RuleSales      = "SALES"
	RuleTaxPayable = "TAX_PAYABLE"
	RuleRoundOff   = "ROUND_OFF"
	RuleCash       = "CASH"
	RuleBank       = "BANK"
	RulePurchase   = "PURCHASE"
)

// pgxQuerier is satisfied by *pgxpool.Pool and pgx.Tx.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgxRowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type pgxExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// RuleEngine resolves configurable account mappings from the account_rules table.
type RuleEngine interface {
	ResolveAccount(ctx context.Context, ruleType string) (string, error)
	ResolveAccountTx(ctx context.Context, tx pgx.Tx, ruleType string) (string, error)
}

type ruleEngine struct {
	pool *pgxpool.Pool
}

func NewRuleEngine(pool *pgxpool.Pool) RuleEngine {
	return &ruleEngine{pool: pool}
}

func (r *ruleEngine) ResolveAccount(ctx context.Context, ruleType string) (string, error) {
	return resolveAccount(ctx, r.pool, ruleType)
}

func (r *ruleEngine) ResolveAccountTx(ctx context.Context, tx pgx.Tx, ruleType string) (string, error) {
	return resolveAccount(ctx, tx, ruleType)
}

// resolveAccount returns the active account mapped to ruleType.
func resolveAccount(ctx context.Context, q pgxQuerier, ruleType string) (string, error) {
	var code string
	var active bool
	err := q.QueryRow(ctx, `
		SELECT r.account_code, a.is_active
		FROM account_rules r
		JOIN accounts a ON a.code = r.account_code
		WHERE r.rule_type = $1
	`, ruleType).Scan(&code, &active)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ierr.NewErrorf("no account rule for %q", ruleType).
			WithHintf("No account is configured for %s postings", ruleType).
			Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return "", dbError(err, "failed to resolve account rule %q", ruleType)
	}
	if !active {
		return "", ierr.NewErrorf("account %s for rule %q is inactive", code, ruleType).
			WithHintf("Account %s is inactive", code).
			Mark(ierr.ErrInvalidEntry)
	}
	return code, nil
}
