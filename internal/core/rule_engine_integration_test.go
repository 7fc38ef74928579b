package core_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"garments-erp/internal/core"
	ierr "garments-erp/internal/errors"
)

func TestRuleEngine_ResolvesConfiguredAccounts(t *testing.T) {
	pool := setupTestDB(t)
	rules := core.NewRuleEngine(pool)
	ctx := context.Background()

	for rule, want := range map[string]string{
		core.RuleReceivable: "AR001",
		core.RuleSales:      "SALES001",
		core.RuleTaxPayable: "TAX001",
		core.RuleRoundOff:   "ROUND001",
		core.RulePurchase:   "PURCHASE001",
	} {
		got, err := rules.ResolveAccount(ctx, rule)
		require.NoError(t, err, rule)
		assert.Equal(t, want, got, rule)
	}
}

func TestRuleEngine_MissingRule(t *testing.T) {
	pool := setupTestDB(t)
	rules := core.NewRuleEngine(pool)
	ctx := context.Background()

	_, err := pool.Exec(ctx, "DELETE FROM account_rules WHERE rule_type = $1", core.RuleRoundOff)
	require.NoError(t, err)

	_, err = rules.ResolveAccount(ctx, core.RuleRoundOff)
	require.Error(t, err)
	assert.True(t, ierr.IsNotFound(err))
}

func TestRuleEngine_InactiveAccount(t *testing.T) {
	pool := setupTestDB(t)
	rules := core.NewRuleEngine(pool)
	ctx := context.Background()

	_, err := pool.Exec(ctx, "UPDATE accounts SET is_active = FALSE WHERE code = 'BANK001'")
	require.NoError(t, err)

	_, err = rules.ResolveAccount(ctx, core.RuleBank)
	require.Error(t, err)
	assert.True(t, ierr.Is(err, ierr.ErrInvalidEntry), "got %v", err)
}
