package app

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"garments-erp/internal/core"
	ierr "garments-erp/internal/errors"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups the core services the application layer delegates to.
type Services struct {
	Bills     core.SalesBillService
	Books     core.BillBookService
	Purchases core.PurchaseService
	Suppliers core.SupplierPaymentService
	Ledger    core.LedgerService
	Stock     core.StockService
	Reports   core.ReportingService

	// EnforceStock rejects manual OUT adjustments that would go negative.
	EnforceStock bool
}

type appService struct {
	db  Pinger
	svc Services
	now func() time.Time
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(db Pinger, svc Services) ApplicationService {
	return &appService{db: db, svc: svc, now: time.Now}
}

func (s *appService) Health(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// ── Sales bills ───────────────────────────────────────────────────────────────

func (s *appService) CreateBill(ctx context.Context, req CreateBillRequest, actor string) (*core.SalesBill, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	in, err := req.toInput(actor)
	if err != nil {
		return nil, err
	}
	return s.svc.Bills.CreateBill(ctx, in)
}

func (req CreateBillRequest) toInput(actor string) (core.CreateBillInput, error) {
	billDate, err := parseDate("bill_date", req.BillDate)
	if err != nil {
		return core.CreateBillInput{}, err
	}
	dueDate, err := parseOptionalDate("due_date", req.DueDate)
	if err != nil {
		return core.CreateBillInput{}, err
	}

	in := core.CreateBillInput{
		BillBookID:         req.BillBookID,
		CustomerID:         req.CustomerID,
		BillDate:           billDate,
		DueDate:            dueDate,
		AgentID:            req.AgentID,
		TransportName:      req.TransportName,
		DiscountPercentage: req.DiscountPercentage,
		AdjustmentAmount:   req.AdjustmentAmount,
		SaleType:           core.SaleType(req.SaleType),
		ReferenceNumber:    req.ReferenceNumber,
		Remarks:            req.Remarks,
		CreatedBy:          actor,
		Lines: lo.Map(req.Items, func(l BillLineRequest, _ int) core.BillLineInput {
			return core.BillLineInput{
				ProductVariantID:   l.ProductVariantID,
				Quantity:           l.Quantity,
				Rate:               l.Rate,
				DiscountPercentage: l.DiscountPercentage,
				TaxPercentage:      l.TaxPercentage,
			}
		}),
	}
	if req.PaidBy != "" {
		in.PaidBy = lo.ToPtr(core.PaymentMethod(req.PaidBy))
	}
	return in, nil
}

func (s *appService) billResult(bill *core.SalesBill, err error) (*BillResult, error) {
	if err != nil {
		return nil, err
	}
	return &BillResult{SalesBill: bill, EffectivePaymentStatus: bill.EffectivePaymentStatus(s.now())}, nil
}

func (s *appService) GetBill(ctx context.Context, billID int) (*BillResult, error) {
	return s.billResult(s.svc.Bills.GetBill(ctx, billID))
}

func (s *appService) ConfirmBill(ctx context.Context, billID int, actor string) (*BillResult, error) {
	return s.billResult(s.svc.Bills.ConfirmBill(ctx, billID, actor))
}

func (s *appService) UpdateBillStatus(ctx context.Context, billID int, req UpdateStatusRequest, actor string) (*BillResult, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	target := core.BillStatus(req.Status)
	if target == core.BillCancelled {
		return s.billResult(s.svc.Bills.CancelBill(ctx, billID, req.Reason, actor))
	}
	return s.billResult(s.svc.Bills.UpdateStatus(ctx, billID, target, actor))
}

func (s *appService) CancelBill(ctx context.Context, billID int, req CancelBillRequest, actor string) (*BillResult, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	return s.billResult(s.svc.Bills.CancelBill(ctx, billID, req.Reason, actor))
}

func (s *appService) PostBill(ctx context.Context, billID int, actor string) (*BillResult, error) {
	return s.billResult(s.svc.Bills.PostBill(ctx, billID, actor))
}

func (s *appService) AddPayment(ctx context.Context, billID int, req PaymentRequest, actor string) (*BillResult, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	paymentDate, err := parseDate("payment_date", req.PaymentDate)
	if err != nil {
		return nil, err
	}
	chequeDate, err := parseOptionalDate("cheque_date", req.ChequeDate)
	if err != nil {
		return nil, err
	}
	return s.billResult(s.svc.Bills.AddPayment(ctx, billID, core.PaymentInput{
		PaymentDate:     paymentDate,
		Amount:          req.PaymentAmount,
		Method:          core.PaymentMethod(req.PaymentMethod),
		Reference:       req.Reference,
		BankAccountCode: req.BankAccountCode,
		ChequeNumber:    req.ChequeNumber,
		ChequeDate:      chequeDate,
		Remarks:         req.Remarks,
		CreatedBy:       actor,
	}))
}

// ── Bill books ────────────────────────────────────────────────────────────────

func (s *appService) PreviewBillNumber(ctx context.Context, bookID int) (core.BillNumber, error) {
	return s.svc.Books.PreviewNext(ctx, bookID)
}

func (s *appService) ReserveBillNumber(ctx context.Context, bookID int) (core.BillNumber, error) {
	return s.svc.Books.ReserveNext(ctx, bookID)
}

// ── Purchases ─────────────────────────────────────────────────────────────────

func (s *appService) CreatePurchase(ctx context.Context, req CreatePurchaseRequest, actor string) (*core.Purchase, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	purchaseDate, err := parseDate("purchase_date", req.PurchaseDate)
	if err != nil {
		return nil, err
	}

	in := core.CreatePurchaseInput{
		SupplierID:       req.SupplierID,
		PurchaseDate:     purchaseDate,
		PurchaseType:     core.PurchaseType(req.PurchaseType),
		TaxAmount:        req.TaxAmount,
		TransportCharges: req.TransportCharges,
		OtherCharges:     req.OtherCharges,
		DiscountAmount:   req.DiscountAmount,
		AmountPaid:       req.AmountPaid,
		Remarks:          req.Remarks,
		CreatedBy:        actor,
		Items: lo.Map(req.Items, func(it PurchaseItemRequest, _ int) core.PurchaseItemInput {
			return core.PurchaseItemInput{
				VariantID:   it.VariantID,
				Quantity:    it.Quantity,
				RejectedQty: it.RejectedQty,
				Rate:        it.Rate,
			}
		}),
	}
	if req.PaymentMode != "" {
		in.PaymentMode = lo.ToPtr(core.PaymentMethod(req.PaymentMode))
	}
	return s.svc.Purchases.CreatePurchase(ctx, in)
}

func (s *appService) GetPurchase(ctx context.Context, purchaseID int) (*core.Purchase, error) {
	return s.svc.Purchases.GetPurchase(ctx, purchaseID)
}

func (s *appService) PostPurchase(ctx context.Context, purchaseID int, req PostPurchaseRequest, actor string) (*core.Purchase, error) {
	opts := core.PostOptions{
		ToStock:  lo.FromPtrOr(req.ToStock, true),
		ToLedger: lo.FromPtrOr(req.ToLedger, true),
	}
	return s.svc.Purchases.PostPurchase(ctx, purchaseID, opts, actor)
}

func (s *appService) CreatePurchaseReturn(ctx context.Context, req CreatePurchaseReturnRequest, actor string) (*core.PurchaseReturn, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	returnDate, err := parseDate("return_date", req.ReturnDate)
	if err != nil {
		return nil, err
	}
	return s.svc.Purchases.CreatePurchaseReturn(ctx, core.CreatePurchaseReturnInput{
		PurchaseID:   req.PurchaseID,
		ReturnDate:   returnDate,
		RefundMode:   core.RefundMode(req.RefundMode),
		RefundAmount: req.RefundAmount,
		Reason:       req.Reason,
		CreatedBy:    actor,
		Items: lo.Map(req.Items, func(it ReturnItemRequest, _ int) core.PurchaseReturnItemInput {
			return core.PurchaseReturnItemInput{PurchaseItemID: it.PurchaseItemID, Quantity: it.Quantity}
		}),
	})
}

func (s *appService) GetPurchaseReturn(ctx context.Context, returnID int) (*core.PurchaseReturn, error) {
	return s.svc.Purchases.GetPurchaseReturn(ctx, returnID)
}

func (s *appService) PostPurchaseReturn(ctx context.Context, returnID int, actor string) (*core.PurchaseReturn, error) {
	return s.svc.Purchases.PostPurchaseReturn(ctx, returnID, actor)
}

// ── Supplier payments ─────────────────────────────────────────────────────────

func (s *appService) GetSupplierOutstanding(ctx context.Context, supplierID int) ([]core.OutstandingPurchase, error) {
	return s.svc.Suppliers.OutstandingPurchases(ctx, supplierID)
}

func (s *appService) PaySupplier(ctx context.Context, req SupplierPaymentRequest, actor string) (*core.SupplierPayment, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	paymentDate, err := parseDate("payment_date", req.PaymentDate)
	if err != nil {
		return nil, err
	}
	chequeDate, err := parseOptionalDate("cheque_date", req.ChequeDate)
	if err != nil {
		return nil, err
	}
	return s.svc.Suppliers.PaySupplier(ctx, core.SupplierPaymentInput{
		SupplierID:      req.SupplierID,
		PaymentDate:     paymentDate,
		PaymentType:     core.SupplierPaymentType(req.PaymentType),
		Method:          core.PaymentMethod(req.PaymentMethod),
		Amount:          req.PaymentAmount,
		BankAccountCode: req.BankAccountCode,
		ChequeNumber:    req.ChequeNumber,
		ChequeDate:      chequeDate,
		Reference:       req.Reference,
		Remarks:         req.Remarks,
		CreatedBy:       actor,
		Allocations: lo.Map(req.Allocations, func(a AllocationRequest, _ int) core.AllocationInput {
			return core.AllocationInput{PurchaseID: a.PurchaseID, Amount: a.Amount}
		}),
	})
}

func (s *appService) GetSupplierPayment(ctx context.Context, paymentID int) (*core.SupplierPayment, error) {
	return s.svc.Suppliers.GetSupplierPayment(ctx, paymentID)
}

// ── Ledger ────────────────────────────────────────────────────────────────────

func (s *appService) PostJournal(ctx context.Context, req JournalRequest, actor string) (*core.TransactionBatch, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	date, err := parseDateOr("date", req.Date, s.today())
	if err != nil {
		return nil, err
	}

	debit, credit := decimal.Zero, decimal.Zero
	for _, e := range req.Entries {
		debit, credit = debit.Add(e.Debit), credit.Add(e.Credit)
	}
	if !debit.Round(2).Equal(credit.Round(2)) {
		return nil, ierr.NewErrorf("journal debits %s != credits %s", debit.StringFixed(2), credit.StringFixed(2)).
			WithHintf("Journal is not balanced: debits %s, credits %s", debit.StringFixed(2), credit.StringFixed(2)).
			WithReportableDetails(map[string]any{"entries": "balanced"}).
			Mark(ierr.ErrInvalidInput)
	}

	posting := core.PostingRequest{
		Date:          date,
		Description:   req.Description,
		ReferenceType: core.RefJournal,
		ReferenceID:   req.Reference,
		VoucherType:   core.VoucherJournal,
		CreatedBy:     actor,
		Entries: lo.Map(req.Entries, func(e JournalEntryRequest, _ int) core.EntryLine {
			return core.EntryLine{AccountCode: e.AccountCode, Debit: e.Debit, Credit: e.Credit, Description: e.Description}
		}),
	}
	if req.PartyType != "" {
		posting.Party = &core.Party{Type: req.PartyType, ID: req.PartyID, Name: req.PartyName}
	}
	return s.svc.Ledger.Post(ctx, posting)
}

func (s *appService) GetBatch(ctx context.Context, batchID int) (*core.TransactionBatch, error) {
	return s.svc.Ledger.GetBatch(ctx, batchID)
}

func (s *appService) ReverseBatch(ctx context.Context, batchID int, req ReverseBatchRequest, actor string) (*core.TransactionBatch, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	return s.svc.Ledger.Reverse(ctx, batchID, req.Reason, actor)
}

func (s *appService) GetTrialBalance(ctx context.Context) (*TrialBalanceResult, error) {
	balances, err := s.svc.Ledger.AccountBalances(ctx)
	if err != nil {
		return nil, err
	}
	return trialBalance(balances), nil
}

// trialBalance puts positive balances on the debit side and negative ones on the credit side.
func trialBalance(balances []core.AccountBalance) *TrialBalanceResult {
	res := &TrialBalanceResult{Accounts: balances, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, b := range balances {
		if b.Balance.IsPositive() {
			res.TotalDebit = res.TotalDebit.Add(b.Balance)
		} else {
			res.TotalCredit = res.TotalCredit.Add(b.Balance.Neg())
		}
	}
	res.Balanced = res.TotalDebit.Equal(res.TotalCredit)
	return res
}

func (s *appService) VerifyAccount(ctx context.Context, code string) (core.AccountCheck, error) {
	return s.svc.Ledger.VerifyAccountBalance(ctx, code)
}

// ── Reports ───────────────────────────────────────────────────────────────────

func (s *appService) GetAccountStatement(ctx context.Context, code, from, to string) (*core.AccountStatement, error) {
	fromDate, err := parseOptionalDate("from", from)
	if err != nil {
		return nil, err
	}
	toDate, err := parseOptionalDate("to", to)
	if err != nil {
		return nil, err
	}
	return s.svc.Reports.AccountStatement(ctx, code, fromDate, toDate)
}

// GetProfitAndLoss defaults to the current month up to today.
func (s *appService) GetProfitAndLoss(ctx context.Context, from, to string) (*core.PLReport, error) {
	today := s.today()
	fromDate, err := parseDateOr("from", from, time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		return nil, err
	}
	toDate, err := parseDateOr("to", to, today)
	if err != nil {
		return nil, err
	}
	return s.svc.Reports.ProfitAndLoss(ctx, fromDate, toDate)
}

func (s *appService) GetBalanceSheet(ctx context.Context, asOf string) (*core.BSReport, error) {
	asOfDate, err := parseDateOr("as_of", asOf, s.today())
	if err != nil {
		return nil, err
	}
	return s.svc.Reports.BalanceSheet(ctx, asOfDate)
}

func (s *appService) today() time.Time {
	y, m, d := s.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ── Stock ─────────────────────────────────────────────────────────────────────

func (s *appService) GetStock(ctx context.Context, variantID int) (*StockResult, error) {
	level, err := s.svc.Stock.Balance(ctx, variantID)
	if err != nil {
		return nil, err
	}
	movements, err := s.svc.Stock.Movements(ctx, variantID)
	if err != nil {
		return nil, err
	}
	return &StockResult{Level: level, Movements: movements}, nil
}

func (s *appService) VerifyStock(ctx context.Context, variantID int) (core.StockCheck, error) {
	return s.svc.Stock.Recompute(ctx, variantID)
}

func (s *appService) AdjustStock(ctx context.Context, req StockAdjustmentRequest, actor string) (*core.StockLedgerEntry, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	opening := req.AdjustmentType == "OPENING"
	if opening && req.MovementType != string(core.MovementIn) {
		return nil, ierr.NewError("opening stock must be an IN movement").
			WithHint("Opening stock must be an IN movement").
			WithReportableDetails(map[string]any{"movement_type": "opening"}).
			Mark(ierr.ErrInvalidInput)
	}
	date, err := parseDateOr("date", req.Date, s.today())
	if err != nil {
		return nil, err
	}

	txType := "Adjustment"
	if opening {
		txType = "Opening"
	}
	return s.svc.Stock.Move(ctx, core.Movement{
		VariantID:       req.ProductVariantID,
		Type:            core.MovementType(req.MovementType),
		Quantity:        req.Quantity,
		UnitPrice:       req.Rate,
		Date:            date,
		TransactionType: txType,
		Reference:       core.StockReference{Type: core.RefAdjustment, ID: req.Reference},
		Remarks:         req.Remarks,
		Enforce:         s.svc.EnforceStock,
		CreatedBy:       actor,
	})
}
