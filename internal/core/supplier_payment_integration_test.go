package core_test

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"garments-erp/internal/core"
	ierr "garments-erp/internal/errors"
)

type supplierFixture struct {
	purchaseFixture
	pool     *pgxpool.Pool
	payments core.SupplierPaymentService
}

func newSupplierFixture(t *testing.T) supplierFixture {
	pool := setupTestDB(t)
	ledger := core.NewLedger(pool)
	stock := core.NewStockService(pool)
	rules := core.NewRuleEngine(pool)
	return supplierFixture{
		purchaseFixture: purchaseFixture{
			ledger:    ledger,
			stock:     stock,
			purchases: core.NewPurchaseService(pool, ledger, stock, rules),
		},
		pool:     pool,
		payments: core.NewSupplierPaymentService(pool, ledger, rules),
	}
}

// postedPurchase creates and fully posts the 6300 credit purchase of shirts.
func (f supplierFixture) postedPurchase(t *testing.T) *core.Purchase {
	t.Helper()
	ctx := context.Background()
	p, err := f.purchases.CreatePurchase(ctx, shirtPurchase())
	require.NoError(t, err)
	p, err = f.purchases.PostPurchase(ctx, p.ID, core.PostOptions{ToStock: true, ToLedger: true}, "accounts")
	require.NoError(t, err)
	return p
}

func (f supplierFixture) outstandingOn(t *testing.T, purchaseID int) string {
	t.Helper()
	open, err := f.payments.OutstandingPurchases(context.Background(), supplierID)
	require.NoError(t, err)
	for _, o := range open {
		if o.PurchaseID == purchaseID {
			return o.Outstanding.StringFixed(2)
		}
	}
	return "0.00"
}

func TestSupplierPayment_AgainstBillSettlesPayable(t *testing.T) {
	f := newSupplierFixture(t)
	ctx := context.Background()
	p := f.postedPurchase(t)
	assert.Equal(t, "6300.00", f.outstandingOn(t, p.ID))

	pay, err := f.payments.PaySupplier(ctx, core.SupplierPaymentInput{
		SupplierID:  supplierID,
		PaymentDate: testDate,
		Method:      core.MethodCash,
		CreatedBy:   "accounts",
		Allocations: []core.AllocationInput{{PurchaseID: p.ID, Amount: d("2000")}},
	})
	require.NoError(t, err)

	assert.Equal(t, "SPAY202404150001", pay.PaymentNumber)
	assert.Equal(t, core.SupplierAgainstBill, pay.PaymentType)
	assertMoney(t, "2000", pay.Amount, "amount defaults to the allocated total")
	require.Len(t, pay.Allocations, 1)
	assert.Equal(t, p.PurchaseNumber, pay.Allocations[0].PurchaseNumber)
	require.NotNil(t, pay.LedgerBatchID)

	batch, err := f.ledger.GetBatch(ctx, *pay.LedgerBatchID)
	require.NoError(t, err)
	assert.Equal(t, core.RefSupplierPayment, batch.ReferenceType)
	require.Len(t, batch.Entries, 2)
	assert.Equal(t, core.VoucherPayment, batch.Entries[0].VoucherType)

	assert.Equal(t, "4300.00", f.outstandingOn(t, p.ID))
	assertMoney(t, "-4300.00", balanceOf(t, f.ledger, "AP001"), "payable")
	assertMoney(t, "-2000.00", balanceOf(t, f.ledger, "CASH001"), "cash")
}

func TestSupplierPayment_OutstandingNetsPartPaymentAndReturns(t *testing.T) {
	f := newSupplierFixture(t)
	ctx := context.Background()

	in := shirtPurchase()
	in.AmountPaid = d("1000")
	p, err := f.purchases.CreatePurchase(ctx, in)
	require.NoError(t, err)
	p, err = f.purchases.PostPurchase(ctx, p.ID, core.PostOptions{ToStock: true, ToLedger: true}, "accounts")
	require.NoError(t, err)

	r, err := f.purchases.CreatePurchaseReturn(ctx, core.CreatePurchaseReturnInput{
		PurchaseID: p.ID,
		ReturnDate: testDate,
		RefundMode: core.RefundAdjust,
		Items:      []core.PurchaseReturnItemInput{{PurchaseItemID: p.Items[0].ID, Quantity: d("10")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "5300.00", f.outstandingOn(t, p.ID), "draft returns do not count")

	_, err = f.purchases.PostPurchaseReturn(ctx, r.ID, "accounts")
	require.NoError(t, err)
	assert.Equal(t, "4700.00", f.outstandingOn(t, p.ID))

	// Outstanding agrees with the supplier's payable.
	assertMoney(t, "-4700.00", balanceOf(t, f.ledger, "AP001"), "payable")
}

func TestSupplierPayment_OverAllocationWritesNothing(t *testing.T) {
	f := newSupplierFixture(t)
	ctx := context.Background()
	p := f.postedPurchase(t)

	_, err := f.payments.PaySupplier(ctx, core.SupplierPaymentInput{
		SupplierID:  supplierID,
		PaymentDate: testDate,
		Method:      core.MethodBank,
		Allocations: []core.AllocationInput{{PurchaseID: p.ID, Amount: d("6300.01")}},
	})
	require.Error(t, err)
	assert.True(t, ierr.Is(err, ierr.ErrInvalidInput), "got %v", err)
	assert.Equal(t, "6300.00", ierr.ReportableDetails(err)["outstanding"])

	var payments int
	require.NoError(t, f.pool.QueryRow(ctx, "SELECT COUNT(*) FROM supplier_payments").Scan(&payments))
	assert.Zero(t, payments)
	assertMoney(t, "0", balanceOf(t, f.ledger, "BANK001"), "bank untouched")

	// The rolled-back number is issued again.
	pay, err := f.payments.PaySupplier(ctx, core.SupplierPaymentInput{
		SupplierID:  supplierID,
		PaymentDate: testDate,
		Method:      core.MethodBank,
		Allocations: []core.AllocationInput{{PurchaseID: p.ID, Amount: d("6300")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "SPAY202404150001", pay.PaymentNumber)
	assert.Equal(t, "0.00", f.outstandingOn(t, p.ID))
}

func TestSupplierPayment_Rejections(t *testing.T) {
	f := newSupplierFixture(t)
	ctx := context.Background()
	posted := f.postedPurchase(t)

	draft, err := f.purchases.CreatePurchase(ctx, shirtPurchase())
	require.NoError(t, err)

	_, err = f.pool.Exec(ctx, "INSERT INTO suppliers (name) VALUES ('Surat Silks')")
	require.NoError(t, err)

	base := func() core.SupplierPaymentInput {
		return core.SupplierPaymentInput{SupplierID: supplierID, PaymentDate: testDate, Method: core.MethodCash}
	}

	tests := []struct {
		name   string
		mutate func(in *core.SupplierPaymentInput)
		kind   error
	}{
		{"no amount", func(in *core.SupplierPaymentInput) {}, ierr.ErrInvalidInput},
		{"unknown method", func(in *core.SupplierPaymentInput) { in.Amount = d("10"); in.Method = "BARTER" }, ierr.ErrInvalidInput},
		{"against bill without allocations", func(in *core.SupplierPaymentInput) {
			in.Amount = d("10")
			in.PaymentType = core.SupplierAgainstBill
		}, ierr.ErrInvalidInput},
		{"advance with allocations", func(in *core.SupplierPaymentInput) {
			in.PaymentType = core.SupplierAdvance
			in.Allocations = []core.AllocationInput{{PurchaseID: posted.ID, Amount: d("10")}}
		}, ierr.ErrInvalidInput},
		{"amount differs from allocations", func(in *core.SupplierPaymentInput) {
			in.Amount = d("100")
			in.Allocations = []core.AllocationInput{{PurchaseID: posted.ID, Amount: d("10")}}
		}, ierr.ErrInvalidInput},
		{"same purchase twice", func(in *core.SupplierPaymentInput) {
			in.Allocations = []core.AllocationInput{{PurchaseID: posted.ID, Amount: d("10")}, {PurchaseID: posted.ID, Amount: d("5")}}
		}, ierr.ErrInvalidInput},
		{"unposted purchase", func(in *core.SupplierPaymentInput) {
			in.Allocations = []core.AllocationInput{{PurchaseID: draft.ID, Amount: d("10")}}
		}, ierr.ErrInvalidStatusTransition},
		{"another supplier's purchase", func(in *core.SupplierPaymentInput) {
			in.SupplierID = supplierID + 1
			in.Allocations = []core.AllocationInput{{PurchaseID: posted.ID, Amount: d("10")}}
		}, ierr.ErrNotFound},
		{"unknown supplier", func(in *core.SupplierPaymentInput) { in.SupplierID = 99; in.Amount = d("10") }, ierr.ErrNotFound},
		{"unknown bank account", func(in *core.SupplierPaymentInput) {
			in.Amount = d("10")
			in.BankAccountCode = "BANK999"
		}, ierr.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base()
			tt.mutate(&in)
			_, err := f.payments.PaySupplier(ctx, in)
			require.Error(t, err)
			assert.True(t, ierr.Is(err, tt.kind), "got %v", err)
		})
	}

	assertMoney(t, "-6300.00", balanceOf(t, f.ledger, "AP001"), "payable untouched")
}

func TestSupplierPayment_OnAccountPostsWithoutAllocations(t *testing.T) {
	f := newSupplierFixture(t)
	ctx := context.Background()
	p := f.postedPurchase(t)

	pay, err := f.payments.PaySupplier(ctx, core.SupplierPaymentInput{
		SupplierID:  supplierID,
		PaymentDate: testDate,
		Method:      core.MethodUPI,
		Amount:      d("500"),
		Reference:   "UPI-88123",
	})
	require.NoError(t, err)
	assert.Equal(t, core.SupplierOnAccount, pay.PaymentType)
	assert.Empty(t, pay.Allocations)

	got, err := f.payments.GetSupplierPayment(ctx, pay.ID)
	require.NoError(t, err)
	assert.Equal(t, "UPI-88123", *got.Reference)

	assertMoney(t, "-5800.00", balanceOf(t, f.ledger, "AP001"), "payable")
	assertMoney(t, "-500.00", balanceOf(t, f.ledger, "BANK001"), "upi settles through the bank")
	assert.Equal(t, "6300.00", f.outstandingOn(t, p.ID), "unallocated payments leave bills open")

	_, err = f.payments.GetSupplierPayment(ctx, 999)
	assert.True(t, ierr.IsNotFound(err))
}

func TestSupplierPayment_ConcurrentAllocationsNeverOverpay(t *testing.T) {
	f := newSupplierFixture(t)
	ctx := context.Background()
	p := f.postedPurchase(t)

	const workers = 4
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.payments.PaySupplier(ctx, core.SupplierPaymentInput{
				SupplierID:  supplierID,
				PaymentDate: testDate,
				Method:      core.MethodCash,
				Allocations: []core.AllocationInput{{PurchaseID: p.ID, Amount: d("4000")}},
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, ierr.Is(err, ierr.ErrInvalidInput), "got %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, "2300.00", f.outstandingOn(t, p.ID))
}
