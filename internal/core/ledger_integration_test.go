package core_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"garments-erp/internal/core"
	ierr "garments-erp/internal/errors"
	"garments-erp/migrations"
)

// Seeded ids. RESTART IDENTITY keeps them stable between tests.
const (
	customerID         = 1
	inactiveCustomerID = 2
	supplierID         = 1
	shirtID            = 1 // 5% tax, sale 100
	jeansID            = 2 // 12% tax, sale 1000
	sareeID            = 3 // 18% tax, sale 5000
	retailBookID       = 1 // INCLUDE_TAX, prefix A
	wholesaleBookID    = 2 // EXCLUDE_TAX, prefix W
	oldBookID          = 3 // INACTIVE
)

var testDate = time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	_ = godotenv.Load("../../.env")

	// Integration tests wipe every table, so they only run against a dedicated database.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err, "connect to test database")
	t.Cleanup(pool.Close)

	_, err = migrations.Apply(ctx, pool)
	require.NoError(t, err, "apply migrations")

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE supplier_payment_allocations, supplier_payments,
			purchase_return_items, purchase_returns, purchase_items, purchases,
			sales_bill_payments, sales_bill_items, sales_bills, stock_ledger, stock_items,
			ledger_entries, transaction_batches, document_sequences, bill_books,
			product_variants, suppliers, customers, account_rules, accounts
		RESTART IDENTITY CASCADE;

		INSERT INTO accounts (code, name, type) VALUES
			('CASH001', 'Cash in Hand', 'asset'),
			('BANK001', 'Bank Account', 'asset'),
			('AR001', 'Sundry Debtors', 'asset'),
			('AP001', 'Sundry Creditors', 'liability'),
			('SALES001', 'Sales', 'revenue'),
			('TAX001', 'Output Tax Payable', 'liability'),
			('ROUND001', 'Rounding Adjustment', 'expense'),
			('PURCHASE001', 'Purchases', 'expense');

		INSERT INTO account_rules (rule_type, account_code) VALUES
			('RECEIVABLE', 'AR001'), ('PAYABLE', 'AP001'), ('SALES', 'SALES001'),
			('TAX_PAYABLE', 'TAX001'), ('ROUND_OFF', 'ROUND001'), ('CASH', 'CASH001'),
			('BANK', 'BANK001'), ('PURCHASE', 'PURCHASE001');

		INSERT INTO customers (name, is_active) VALUES ('Sharma Textiles', TRUE), ('Closed Account', FALSE);
		INSERT INTO suppliers (name) VALUES ('Tirupur Knits');

		INSERT INTO product_variants (sku_code, product_name, hsn_code, tax_percentage, sale_price, cost_price) VALUES
			('SHIRT-M-BLU', 'Cotton Shirt', '6205', 5, 100, 60),
			('JEANS-32', 'Denim Jeans', '6203', 12, 1000, 700),
			('SAREE-SLK', 'Silk Saree', '5007', 18, 5000, 3500);

		INSERT INTO bill_books (book_name, book_code, prefix, tax_type, status) VALUES
			('Retail', 'RTL', 'A', 'INCLUDE_TAX', 'ACTIVE'),
			('Wholesale', 'WHL', 'W', 'EXCLUDE_TAX', 'ACTIVE'),
			('Old Series', 'OLD', 'O', 'WITHOUT_TAX', 'INACTIVE');
	`)
	require.NoError(t, err, "seed test database")

	return pool
}

func balanceOf(t *testing.T, ledger core.LedgerService, code string) decimal.Decimal {
	t.Helper()
	balances, err := ledger.AccountBalances(context.Background())
	require.NoError(t, err)
	for _, b := range balances {
		if b.Code == code {
			return b.Balance
		}
	}
	t.Fatalf("account %s not in balances", code)
	return decimal.Zero
}

func journal(ref string, amount string) core.PostingRequest {
	return core.PostingRequest{
		Date:          testDate,
		Description:   "Cash deposited",
		ReferenceType: core.RefJournal,
		ReferenceID:   ref,
		VoucherType:   core.VoucherJournal,
		CreatedBy:     "tester",
		Entries: []core.EntryLine{
			core.Debit("BANK001", d(amount), "deposit"),
			core.Credit("CASH001", d(amount), "deposit"),
		},
	}
}

func TestLedger_PostIsIdempotentPerReference(t *testing.T) {
	pool := setupTestDB(t)
	ledger := core.NewLedger(pool)
	ctx := context.Background()

	batch, err := ledger.Post(ctx, journal("J-1", "150.00"))
	require.NoError(t, err)
	assert.True(t, batch.IsBalanced)
	assertMoney(t, "150.00", batch.TotalDebit, "total debit")

	_, err = ledger.Post(ctx, journal("J-1", "150.00"))
	require.Error(t, err)
	assert.True(t, ierr.IsAlreadyPosted(err), "second post should be AlreadyPosted, got %v", err)

	var batches int
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM transaction_batches WHERE reference_id = 'J-1'").Scan(&batches))
	assert.Equal(t, 1, batches)

	assertMoney(t, "150.00", balanceOf(t, ledger, "BANK001"), "bank")
	assertMoney(t, "-150.00", balanceOf(t, ledger, "CASH001"), "cash")
}

func TestLedger_EntriesCarryTransactionNumbers(t *testing.T) {
	pool := setupTestDB(t)
	ledger := core.NewLedger(pool)
	ctx := context.Background()

	batch, err := ledger.Post(ctx, journal("J-7", "20.00"))
	require.NoError(t, err)

	got, err := ledger.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, got.Entries, 2)
	assert.Equal(t, "JVJ-7001", got.Entries[0].TransactionNumber)
	assert.Equal(t, "JVJ-7002", got.Entries[1].TransactionNumber)
	assert.Equal(t, "BATCH20240415", got.BatchNumber[:13])
}

func TestLedger_UnreferencedJournalsAreNumbered(t *testing.T) {
	pool := setupTestDB(t)
	ledger := core.NewLedger(pool)
	ctx := context.Background()

	first, err := ledger.Post(ctx, journal("", "75.00"))
	require.NoError(t, err)
	second, err := ledger.Post(ctx, journal("", "25.00"))
	require.NoError(t, err)

	assert.Equal(t, "JNL202404150001", first.ReferenceID)
	assert.Equal(t, "JNL202404150002", second.ReferenceID)
	assert.True(t, first.IsPosted)
	assert.True(t, second.IsPosted)

	got, err := ledger.GetBatch(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "JNL202404150001", got.Entries[0].VoucherNumber)
	assertMoney(t, "100.00", balanceOf(t, ledger, "BANK001"), "bank")
}

func TestLedger_RejectsUnbalancedBatch(t *testing.T) {
	pool := setupTestDB(t)
	ledger := core.NewLedger(pool)

	req := journal("J-2", "100.00")
	req.Entries[1].Credit = d("99.99")

	_, err := ledger.Post(context.Background(), req)
	require.Error(t, err)
	assert.True(t, ierr.IsUnbalanced(err))
	assertMoney(t, "0", balanceOf(t, ledger, "BANK001"), "bank untouched")
}

func TestLedger_RejectsUnknownAccount(t *testing.T) {
	pool := setupTestDB(t)
	ledger := core.NewLedger(pool)

	req := journal("J-3", "10.00")
	req.Entries[0].AccountCode = "NOPE999"

	_, err := ledger.Post(context.Background(), req)
	require.Error(t, err)
	assert.True(t, ierr.IsNotFound(err))
}

func TestLedger_ReverseRestoresBalances(t *testing.T) {
	pool := setupTestDB(t)
	ledger := core.NewLedger(pool)
	ctx := context.Background()

	batch, err := ledger.Post(ctx, journal("J-4", "500.00"))
	require.NoError(t, err)

	rev, err := ledger.Reverse(ctx, batch.ID, "posted twice by mistake", "tester")
	require.NoError(t, err)
	require.NotNil(t, rev.ReversesBatchID)
	assert.Equal(t, batch.ID, *rev.ReversesBatchID)
	assert.Equal(t, core.RefJournal.Reversal(), rev.ReferenceType)

	assertMoney(t, "0", balanceOf(t, ledger, "BANK001"), "bank")
	assertMoney(t, "0", balanceOf(t, ledger, "CASH001"), "cash")

	_, err = ledger.Reverse(ctx, batch.ID, "again", "tester")
	assert.True(t, ierr.IsAlreadyPosted(err), "second reversal should be rejected, got %v", err)

	_, err = ledger.Reverse(ctx, rev.ID, "undo the undo", "tester")
	assert.True(t, ierr.Is(err, ierr.ErrInvalidEntry), "reversing a reversal should be rejected, got %v", err)
}

func TestLedger_VerifyAccountBalanceDetectsDrift(t *testing.T) {
	pool := setupTestDB(t)
	ledger := core.NewLedger(pool)
	ctx := context.Background()

	_, err := ledger.Post(ctx, journal("J-5", "75.00"))
	require.NoError(t, err)

	check, err := ledger.VerifyAccountBalance(ctx, "BANK001")
	require.NoError(t, err)
	assert.True(t, check.Consistent())

	_, err = pool.Exec(ctx, "UPDATE accounts SET balance = balance + 1 WHERE code = 'BANK001'")
	require.NoError(t, err)

	check, err = ledger.VerifyAccountBalance(ctx, "BANK001")
	require.NoError(t, err)
	assert.False(t, check.Consistent())
	assertMoney(t, "76.00", check.Cached, "cached")
	assertMoney(t, "75.00", check.Recomputed, "recomputed")
}
