package core_test

import (
	"context"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"garments-erp/internal/core"
	ierr "garments-erp/internal/errors"
)

type purchaseFixture struct {
	ledger    core.LedgerService
	stock     core.StockService
	purchases core.PurchaseService
}

func newPurchaseFixture(t *testing.T) purchaseFixture {
	pool := setupTestDB(t)
	ledger := core.NewLedger(pool)
	stock := core.NewStockService(pool)
	return purchaseFixture{
		ledger:    ledger,
		stock:     stock,
		purchases: core.NewPurchaseService(pool, ledger, stock, core.NewRuleEngine(pool)),
	}
}

// shirtPurchase is 100 shirts at 60 with 5 rejected: sub-total 6000, total 6300.
func shirtPurchase() core.CreatePurchaseInput {
	return core.CreatePurchaseInput{
		SupplierID:       supplierID,
		PurchaseDate:     testDate,
		PurchaseType:     core.PurchaseCredit,
		TaxAmount:        d("285"),
		TransportCharges: d("15"),
		CreatedBy:        "stores",
		Items: []core.PurchaseItemInput{
			{VariantID: shirtID, Quantity: d("100"), RejectedQty: d("5"), Rate: d("60")},
		},
	}
}

func (f purchaseFixture) stockOf(t *testing.T, variantID int) string {
	t.Helper()
	level, err := f.stock.Balance(context.Background(), variantID)
	require.NoError(t, err)
	return level.Balance.String()
}

func TestPurchase_CreateComputesTotals(t *testing.T) {
	f := newPurchaseFixture(t)

	p, err := f.purchases.CreatePurchase(context.Background(), shirtPurchase())
	require.NoError(t, err)

	assert.Equal(t, "PUR202404150001", p.PurchaseNumber)
	assert.Equal(t, core.DocDraft, p.Status)
	assertMoney(t, "6000.00", p.SubTotal, "sub total")
	assertMoney(t, "6300.00", p.TotalAmount, "total")
	assertMoney(t, "0", p.AmountPaid, "paid")
	require.Len(t, p.Items, 1)
	assertMoney(t, "95", p.Items[0].AcceptedQty, "accepted")
}

func TestPurchase_CreateRejectsBadInput(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()

	in := shirtPurchase()
	in.Items[0].RejectedQty = d("101")
	_, err := f.purchases.CreatePurchase(ctx, in)
	assert.True(t, ierr.Is(err, ierr.ErrInvalidInput), "got %v", err)

	in = shirtPurchase()
	in.DiscountAmount = d("7000")
	_, err = f.purchases.CreatePurchase(ctx, in)
	assert.True(t, ierr.Is(err, ierr.ErrInvalidInput), "negative total, got %v", err)

	in = shirtPurchase()
	in.SupplierID = 42
	_, err = f.purchases.CreatePurchase(ctx, in)
	assert.True(t, ierr.IsNotFound(err), "got %v", err)
}

func TestPurchase_PostInStages(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()

	p, err := f.purchases.CreatePurchase(ctx, shirtPurchase())
	require.NoError(t, err)

	p, err = f.purchases.PostPurchase(ctx, p.ID, core.PostOptions{ToStock: true}, "stores")
	require.NoError(t, err)
	assert.True(t, p.IsStockUpdated)
	assert.False(t, p.IsLedgerPosted)
	assert.Equal(t, core.DocDraft, p.Status)
	assert.Equal(t, "95", f.stockOf(t, shirtID))

	p, err = f.purchases.PostPurchase(ctx, p.ID, core.PostOptions{ToStock: true, ToLedger: true}, "accounts")
	require.NoError(t, err)
	assert.Equal(t, core.DocPosted, p.Status)
	assert.Equal(t, "95", f.stockOf(t, shirtID), "stock must not be received twice")
	assertMoney(t, "6300.00", balanceOf(t, f.ledger, "PURCHASE001"), "purchases")
	assertMoney(t, "-6300.00", balanceOf(t, f.ledger, "AP001"), "payable")

	_, err = f.purchases.PostPurchase(ctx, p.ID, core.PostOptions{ToStock: true, ToLedger: true}, "accounts")
	assert.True(t, ierr.IsAlreadyPosted(err), "got %v", err)

	_, err = f.purchases.PostPurchase(ctx, p.ID, core.PostOptions{}, "accounts")
	assert.True(t, ierr.Is(err, ierr.ErrInvalidInput), "got %v", err)
}

func TestPurchase_CashPurchaseCreditsPayingAccount(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()

	in := shirtPurchase()
	in.PurchaseType = core.PurchaseCash
	in.PaymentMode = lo.ToPtr(core.MethodBank)
	p, err := f.purchases.CreatePurchase(ctx, in)
	require.NoError(t, err)
	assertMoney(t, "6300.00", p.AmountPaid, "cash purchases are paid in full")

	_, err = f.purchases.PostPurchase(ctx, p.ID, core.PostOptions{ToStock: true, ToLedger: true}, "accounts")
	require.NoError(t, err)
	assertMoney(t, "-6300.00", balanceOf(t, f.ledger, "BANK001"), "bank")
	assertMoney(t, "0", balanceOf(t, f.ledger, "AP001"), "payable")
}

func TestPurchase_CreditPurchaseWithPartPayment(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()

	in := shirtPurchase()
	in.AmountPaid = d("1000")
	in.PaymentMode = lo.ToPtr(core.MethodCash)
	p, err := f.purchases.CreatePurchase(ctx, in)
	require.NoError(t, err)

	_, err = f.purchases.PostPurchase(ctx, p.ID, core.PostOptions{ToLedger: true}, "accounts")
	require.NoError(t, err)
	assertMoney(t, "-5300.00", balanceOf(t, f.ledger, "AP001"), "payable")
	assertMoney(t, "-1000.00", balanceOf(t, f.ledger, "CASH001"), "cash")
}

func TestPurchaseReturn_AdjustAgainstPayable(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()

	p, err := f.purchases.CreatePurchase(ctx, shirtPurchase())
	require.NoError(t, err)
	p, err = f.purchases.PostPurchase(ctx, p.ID, core.PostOptions{ToStock: true, ToLedger: true}, "accounts")
	require.NoError(t, err)

	r, err := f.purchases.CreatePurchaseReturn(ctx, core.CreatePurchaseReturnInput{
		PurchaseID: p.ID,
		ReturnDate: testDate,
		RefundMode: core.RefundAdjust,
		Reason:     "stitching defects",
		Items:      []core.PurchaseReturnItemInput{{PurchaseItemID: p.Items[0].ID, Quantity: d("10")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "PRN202404150001", r.ReturnNumber)
	assertMoney(t, "600.00", r.TotalAmount, "return total")
	assertMoney(t, "0", r.RefundAmount, "refund")

	r, err = f.purchases.PostPurchaseReturn(ctx, r.ID, "accounts")
	require.NoError(t, err)
	assert.Equal(t, core.DocPosted, r.Status)
	assert.Equal(t, "85", f.stockOf(t, shirtID))
	assertMoney(t, "-5700.00", balanceOf(t, f.ledger, "AP001"), "payable")
	assertMoney(t, "5700.00", balanceOf(t, f.ledger, "PURCHASE001"), "purchases")

	_, err = f.purchases.PostPurchaseReturn(ctx, r.ID, "accounts")
	assert.True(t, ierr.IsAlreadyPosted(err), "got %v", err)
}

func TestPurchaseReturn_CashRefundDefaultsToTotal(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()

	p, err := f.purchases.CreatePurchase(ctx, shirtPurchase())
	require.NoError(t, err)
	p, err = f.purchases.PostPurchase(ctx, p.ID, core.PostOptions{ToStock: true, ToLedger: true}, "accounts")
	require.NoError(t, err)

	r, err := f.purchases.CreatePurchaseReturn(ctx, core.CreatePurchaseReturnInput{
		PurchaseID: p.ID,
		ReturnDate: testDate,
		RefundMode: core.RefundCash,
		Items:      []core.PurchaseReturnItemInput{{PurchaseItemID: p.Items[0].ID, Quantity: d("5")}},
	})
	require.NoError(t, err)
	assertMoney(t, "300.00", r.RefundAmount, "refund")

	_, err = f.purchases.PostPurchaseReturn(ctx, r.ID, "accounts")
	require.NoError(t, err)
	assertMoney(t, "300.00", balanceOf(t, f.ledger, "CASH001"), "cash refunded")
	assertMoney(t, "-6300.00", balanceOf(t, f.ledger, "AP001"), "payable untouched")
}

func TestPurchaseReturn_Limits(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()

	p, err := f.purchases.CreatePurchase(ctx, shirtPurchase())
	require.NoError(t, err)
	itemID := p.Items[0].ID
	ret := func(qty string) error {
		_, err := f.purchases.CreatePurchaseReturn(ctx, core.CreatePurchaseReturnInput{
			PurchaseID: p.ID,
			RefundMode: core.RefundAdjust,
			Items:      []core.PurchaseReturnItemInput{{PurchaseItemID: itemID, Quantity: d(qty)}},
		})
		return err
	}

	assert.True(t, ierr.Is(ret("1"), ierr.ErrInvalidStatusTransition), "purchase not yet received")

	_, err = f.purchases.PostPurchase(ctx, p.ID, core.PostOptions{ToStock: true}, "stores")
	require.NoError(t, err)

	require.NoError(t, ret("90"))
	assert.True(t, ierr.Is(ret("6"), ierr.ErrInvalidInput), "cumulative return above accepted quantity")
	require.NoError(t, ret("5"))
}
