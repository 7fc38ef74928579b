package app

import (
	"context"

	"garments-erp/internal/core"
)

// ApplicationService is the single interface the CLI and HTTP adapters call.
// Requests are validated here; adapters only decode and encode.
type ApplicationService interface {
	// Health pings the database.
	Health(ctx context.Context) error

	// CreateBill stores a DRAFT bill (or a confirmed one when posting on create).
	CreateBill(ctx context.Context, req CreateBillRequest, actor string) (*core.SalesBill, error)
	GetBill(ctx context.Context, billID int) (*BillResult, error)
	ConfirmBill(ctx context.Context, billID int, actor string) (*BillResult, error)
	UpdateBillStatus(ctx context.Context, billID int, req UpdateStatusRequest, actor string) (*BillResult, error)
	CancelBill(ctx context.Context, billID int, req CancelBillRequest, actor string) (*BillResult, error)
	// PostBill retries whichever half of a bill's posting is missing.
	PostBill(ctx context.Context, billID int, actor string) (*BillResult, error)
	AddPayment(ctx context.Context, billID int, req PaymentRequest, actor string) (*BillResult, error)

	PreviewBillNumber(ctx context.Context, bookID int) (core.BillNumber, error)
	ReserveBillNumber(ctx context.Context, bookID int) (core.BillNumber, error)

	CreatePurchase(ctx context.Context, req CreatePurchaseRequest, actor string) (*core.Purchase, error)
	GetPurchase(ctx context.Context, purchaseID int) (*core.Purchase, error)
	PostPurchase(ctx context.Context, purchaseID int, req PostPurchaseRequest, actor string) (*core.Purchase, error)
	CreatePurchaseReturn(ctx context.Context, req CreatePurchaseReturnRequest, actor string) (*core.PurchaseReturn, error)
	GetPurchaseReturn(ctx context.Context, returnID int) (*core.PurchaseReturn, error)
	PostPurchaseReturn(ctx context.Context, returnID int, actor string) (*core.PurchaseReturn, error)

	GetSupplierOutstanding(ctx context.Context, supplierID int) ([]core.OutstandingPurchase, error)
	PaySupplier(ctx context.Context, req SupplierPaymentRequest, actor string) (*core.SupplierPayment, error)
	GetSupplierPayment(ctx context.Context, paymentID int) (*core.SupplierPayment, error)

	// PostJournal books a manual journal dated today unless a date is given.
	PostJournal(ctx context.Context, req JournalRequest, actor string) (*core.TransactionBatch, error)
	GetBatch(ctx context.Context, batchID int) (*core.TransactionBatch, error)
	ReverseBatch(ctx context.Context, batchID int, req ReverseBatchRequest, actor string) (*core.TransactionBatch, error)
	// GetTrialBalance lists active account balances with debit and credit totals.
	GetTrialBalance(ctx context.Context) (*TrialBalanceResult, error)
	VerifyAccount(ctx context.Context, code string) (core.AccountCheck, error)
	// Report dates are YYYY-MM-DD strings; see the core reporting service.
	GetAccountStatement(ctx context.Context, code, from, to string) (*core.AccountStatement, error)
	GetProfitAndLoss(ctx context.Context, from, to string) (*core.PLReport, error)
	GetBalanceSheet(ctx context.Context, asOf string) (*core.BSReport, error)

	GetStock(ctx context.Context, variantID int) (*StockResult, error)
	VerifyStock(ctx context.Context, variantID int) (core.StockCheck, error)
	// AdjustStock records opening stock or a manual correction.
	AdjustStock(ctx context.Context, req StockAdjustmentRequest, actor string) (*core.StockLedgerEntry, error)
}
