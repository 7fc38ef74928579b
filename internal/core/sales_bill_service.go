package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	ierr "garments-erp/internal/errors"
	"garments-erp/internal/logger"
)

// SalesBillService runs the sales bill lifecycle and its ledger and stock postings.
type SalesBillService interface {
	// CreateBill reserves a number, prices the lines and stores a DRAFT bill in
	// one transaction. With PostingOptions.OnCreate the bill is confirmed too.
	CreateBill(ctx context.Context, in CreateBillInput) (*SalesBill, error)
	// ConfirmBill moves DRAFT → CONFIRMED and, unless posting is deferred,
	// posts ledger and stock in the same transaction.
	ConfirmBill(ctx context.Context, billID int, actor string) (*SalesBill, error)
	// PostBill completes whichever of ledger and stock posting is still missing.
	// A failure counts as one posting attempt.
	PostBill(ctx context.Context, billID int, actor string) (*SalesBill, error)
	// TryPostBill is PostBill without counting the failure. Callers that retry
	// report the final outcome once through RecordPostingFailure.
	TryPostBill(ctx context.Context, billID int, actor string) (*SalesBill, error)
	// RecordPostingFailure counts a failed posting attempt. Errors that say
	// nothing about the bill's own postability are ignored.
	RecordPostingFailure(ctx context.Context, billID int, cause error)
	UpdateStatus(ctx context.Context, billID int, target BillStatus, actor string) (*SalesBill, error)
	// CancelBill reverses the sales batch and returns deducted stock.
	CancelBill(ctx context.Context, billID int, reason, actor string) (*SalesBill, error)
	AddPayment(ctx context.Context, billID int, in PaymentInput) (*SalesBill, error)

	GetBill(ctx context.Context, billID int) (*SalesBill, error)
	// ListUnposted returns bills in a posted state with a missing posting,
	// skipping those that already failed maxAttempts times.
	ListUnposted(ctx context.Context, limit, maxAttempts int) ([]UnpostedBill, error)
}

// PostingOptions control when bills reach the ledger and stock.
type PostingOptions struct {
	// Deferred leaves posting to the reconciler instead of the confirming transaction.
	Deferred     bool
	// OnCreate confirms bills as part of CreateBill.
	OnCreate     bool
	// EnforceStock rejects sales that would drive a variant's balance negative.
	EnforceStock bool
}

type salesBillService struct {
	pool   *pgxpool.Pool
	books  BillBookService
	ledger LedgerService
	stock  StockService
	rules  RuleEngine
	opts   PostingOptions
	log    zerolog.Logger
}

func NewSalesBillService(pool *pgxpool.Pool, books BillBookService, ledger LedgerService, stock StockService,
	rules RuleEngine, opts PostingOptions) SalesBillService {
	return &salesBillService{
		pool:   pool,
		books:  books,
		ledger: ledger,
		stock:  stock,
		rules:  rules,
		opts:   opts,
		log:    logger.WithComponent("sales_bill"),
	}
}

func actorOrSystem(actor string) string {
	if strings.TrimSpace(actor) == "" {
		return "system"
	}
	return actor
}

func dateOrToday(t time.Time) time.Time {
	if t.IsZero() {
		y, m, d := time.Now().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return t
}

// ── Creation ──────────────────────────────────────────────────────────────────

type variantRow struct {
	sku       string
	name      string
	hsn       *string
	unit      string
	taxPct    decimal.Decimal
	salePrice decimal.Decimal
	costPrice decimal.Decimal
	active    bool
}

func (s *salesBillService) CreateBill(ctx context.Context, in CreateBillInput) (bill *SalesBill, err error) {
	ctx, span := startSpan(ctx, "SalesBill.Create",
		attribute.Int("bill_book_id", in.BillBookID), attribute.Int("customer_id", in.CustomerID))
	defer func() { endSpan(span, err) }()

	if len(in.Lines) == 0 {
		return nil, invalidInput("bill must have at least one line")
	}
	if in.PaidBy != nil && !in.PaidBy.Valid() {
		return nil, invalidInput("unknown payment method %q", *in.PaidBy)
	}
	if in.SaleType == "" {
		in.SaleType = SaleRegular
	}
	in.BillDate = dateOrToday(in.BillDate)
	in.CreatedBy = actorOrSystem(in.CreatedBy)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, dbError(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	// 1. Number and tax mode from the (now locked) bill book
	number, mode, err := s.books.ReserveNextTx(ctx, tx, in.BillBookID)
	if err != nil {
		return nil, err
	}

	// 2. Customer
	var customerActive bool
	err = tx.QueryRow(ctx, "SELECT is_active FROM customers WHERE id = $1", in.CustomerID).Scan(&customerActive)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && !customerActive) {
		return nil, notFound("customer %d not found", in.CustomerID)
	}
	if err != nil {
		return nil, dbError(err, "failed to resolve customer %d", in.CustomerID)
	}

	// 3. Variants and line pricing
	variants := make([]variantRow, len(in.Lines))
	lineInputs := make([]LineInput, len(in.Lines))
	for i, line := range in.Lines {
		v := &variants[i]
		err := tx.QueryRow(ctx, `
			SELECT sku_code, product_name, hsn_code, unit, tax_percentage, sale_price, cost_price, is_active
			FROM product_variants
			WHERE id = $1
		`, line.ProductVariantID).Scan(&v.sku, &v.name, &v.hsn, &v.unit, &v.taxPct, &v.salePrice, &v.costPrice, &v.active)
		if errors.Is(err, pgx.ErrNoRows) || (err == nil && !v.active) {
			return nil, notFound("line %d: product variant %d not found", i+1, line.ProductVariantID)
		}
		if err != nil {
			return nil, dbError(err, "line %d: failed to resolve product variant", i+1)
		}

		rate := lo.FromPtrOr(line.Rate, v.salePrice)
		taxPct := lo.FromPtrOr(line.TaxPercentage, v.taxPct)
		if mode == TaxNone {
			taxPct = decimal.Zero
		}
		lineInputs[i] = LineInput{
			Quantity:        line.Quantity,
			Rate:            rate,
			LineDiscountPct: line.DiscountPercentage,
			BillDiscountPct: in.DiscountPercentage,
			TaxPct:          taxPct,
		}
	}

	amounts, err := CalculateBill(lineInputs, mode, in.AdjustmentAmount)
	if err != nil {
		return nil, err
	}

	// 4. Settlement for bills paid at the counter
	paid := decimal.Zero
	var settlement *string
	if in.PaidBy != nil {
		code, err := resolveAccount(ctx, tx, in.PaidBy.SettlementRule())
		if err != nil {
			return nil, err
		}
		settlement = &code
		paid = amounts.Net
	}
	balance := amounts.Net.Sub(paid)

	// 5. Header
	var billID int
	err = tx.QueryRow(ctx, `
		INSERT INTO sales_bills (bill_number, bill_date, due_date, bill_book_id, tax_type, customer_id, agent_id,
			transport_name, total_item_count, total_quantity, gross_amount, discount_percentage, discount_amount,
			taxable_amount, tax_amount, adjustment_amount, net_amount, payment_status, paid_amount, balance_amount,
			sale_type, settlement_account, reference_number, remarks, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25, $26)
		RETURNING id
	`, number.Full, in.BillDate, in.DueDate, in.BillBookID, mode, in.CustomerID, in.AgentID,
		lo.EmptyableToPtr(in.TransportName), amounts.ItemCount, amounts.TotalQuantity, amounts.Gross,
		round2(in.DiscountPercentage), amounts.Discount, amounts.Taxable, amounts.Tax, amounts.Adjustment, amounts.Net,
		PaymentStatusFor(amounts.Net, paid), paid, balance, in.SaleType, settlement,
		lo.EmptyableToPtr(in.ReferenceNumber), lo.EmptyableToPtr(in.Remarks), BillDraft, in.CreatedBy).Scan(&billID)
	if err != nil {
		return nil, dbError(err, "failed to insert sales bill")
	}

	// 6. Lines
	for i, la := range amounts.Lines {
		v := variants[i]
		li := lineInputs[i]
		_, err := tx.Exec(ctx, `
			INSERT INTO sales_bill_items (bill_id, item_sequence, product_variant_id, sku_code, product_name, hsn_code,
				unit, quantity, rate, discount_percentage, gross_amount, discount_amount, taxable_amount,
				tax_percentage, tax_amount, total_amount, cost_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		`, billID, i+1, in.Lines[i].ProductVariantID, v.sku, v.name, v.hsn, v.unit, li.Quantity, round2(li.Rate),
			li.LineDiscountPct, la.Gross, la.Discount, la.Taxable, li.TaxPct, la.Tax, la.Total, v.costPrice)
		if err != nil {
			return nil, dbError(err, "failed to insert bill line %d", i+1)
		}
	}

	if s.opts.OnCreate {
		b, err := lockBill(ctx, tx, billID)
		if err != nil {
			return nil, err
		}
		if err := s.confirmTx(ctx, tx, b, in.CreatedBy); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, dbError(err, "failed to commit bill creation")
	}

	s.log.Info().
		Str("bill_number", number.Full).
		Int("bill_id", billID).
		Str("net_amount", amounts.Net.StringFixed(2)).
		Msg("sales bill created")
	return s.GetBill(ctx, billID)
}

// ── Lifecycle ─────────────────────────────────────────────────────────────────

func (s *salesBillService) ConfirmBill(ctx context.Context, billID int, actor string) (bill *SalesBill, err error) {
	ctx, span := startSpan(ctx, "SalesBill.Confirm", attribute.Int("bill_id", billID))
	defer func() { endSpan(span, err) }()

	err = inTx(ctx, s.pool, func(tx pgx.Tx) error {
		b, err := lockBill(ctx, tx, billID)
		if err != nil {
			return err
		}
		if err := checkTransition(b.BillNumber, b.Status, BillConfirmed); err != nil {
			return err
		}
		return s.confirmTx(ctx, tx, b, actorOrSystem(actor))
	})
	if err != nil {
		return nil, err
	}
	return s.GetBill(ctx, billID)
}

func (s *salesBillService) confirmTx(ctx context.Context, tx pgx.Tx, b *SalesBill, actor string) error {
	if err := setBillStatus(ctx, tx, b.ID, BillConfirmed); err != nil {
		return err
	}
	b.Status = BillConfirmed
	if s.opts.Deferred {
		return nil
	}
	return s.postTx(ctx, tx, b, actor)
}

func (s *salesBillService) PostBill(ctx context.Context, billID int, actor string) (*SalesBill, error) {
	bill, err := s.TryPostBill(ctx, billID, actor)
	if err != nil {
		s.RecordPostingFailure(ctx, billID, err)
		return nil, err
	}
	return bill, nil
}

func (s *salesBillService) TryPostBill(ctx context.Context, billID int, actor string) (bill *SalesBill, err error) {
	ctx, span := startSpan(ctx, "SalesBill.Post", attribute.Int("bill_id", billID))
	defer func() { endSpan(span, err) }()

	err = inTx(ctx, s.pool, func(tx pgx.Tx) error {
		b, err := lockBill(ctx, tx, billID)
		if err != nil {
			return err
		}
		if !b.Status.Posted() {
			return badTransition("bill %s cannot be posted: status is %s (must be one of %s)",
				b.BillNumber, b.Status, strings.Join(postedStatuses, ", "))
		}
		if b.AccountsUpdated && b.StockUpdated {
			return fail(ierr.ErrAlreadyPosted, "bill %s is already posted", b.BillNumber)
		}
		return s.postTx(ctx, tx, b, actorOrSystem(actor))
	})
	if err != nil {
		return nil, err
	}
	return s.GetBill(ctx, billID)
}

// postTx posts the missing halves of a locked bill.
func (s *salesBillService) postTx(ctx context.Context, tx pgx.Tx, b *SalesBill, actor string) error {
	if !b.AccountsUpdated {
		batchID, err := s.postSaleLedgerTx(ctx, tx, b, actor)
		if err != nil {
			return fmt.Errorf("ledger posting for bill %s failed: %w", b.BillNumber, err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE sales_bills SET accounts_updated = TRUE, ledger_batch_id = $2, updated_at = NOW() WHERE id = $1
		`, b.ID, batchID); err != nil {
			return dbError(err, "failed to flag bill %s as posted to ledger", b.BillNumber)
		}
		b.AccountsUpdated = true
		b.LedgerBatchID = batchID
	}

	if !b.StockUpdated {
		if err := s.postSaleStockTx(ctx, tx, b, actor); err != nil {
			return fmt.Errorf("stock posting for bill %s failed: %w", b.BillNumber, err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE sales_bills SET stock_updated = TRUE, updated_at = NOW() WHERE id = $1
		`, b.ID); err != nil {
			return dbError(err, "failed to flag bill %s as posted to stock", b.BillNumber)
		}
		b.StockUpdated = true
	}

	if _, err := tx.Exec(ctx, `UPDATE sales_bills SET last_posting_error = NULL WHERE id = $1`, b.ID); err != nil {
		return dbError(err, "failed to clear posting error on bill %s", b.BillNumber)
	}
	return nil
}

// SaleEntries builds the ledger lines of a bill: the debit side takes the net
// amount, sales and tax are credited separately and the adjustment goes to
// round-off on whichever side keeps the batch balanced. Zero lines are dropped.
func SaleEntries(b *SalesBill, debitAccount, salesAccount, taxAccount, roundOffAccount string) []EntryLine {
	desc := fmt.Sprintf("Sales bill %s", b.BillNumber)
	entries := []EntryLine{
		Debit(debitAccount, b.NetAmount, desc),
		Credit(salesAccount, b.TaxableAmount, desc),
		Credit(taxAccount, b.TaxAmount, "Output tax on "+b.BillNumber),
	}
	if b.AdjustmentAmount.IsPositive() {
		entries = append(entries, Credit(roundOffAccount, b.AdjustmentAmount, "Round off on "+b.BillNumber))
	} else if b.AdjustmentAmount.IsNegative() {
		entries = append(entries, Debit(roundOffAccount, b.AdjustmentAmount.Neg(), "Round off on "+b.BillNumber))
	}
	return lo.Filter(entries, func(e EntryLine, _ int) bool {
		return e.Debit.IsPositive() || e.Credit.IsPositive()
	})
}

func (s *salesBillService) postSaleLedgerTx(ctx context.Context, tx pgx.Tx, b *SalesBill, actor string) (*int, error) {
	debitAccount := lo.FromPtr(b.SettlementAccount)
	if debitAccount == "" {
		var err error
		if debitAccount, err = receivableAccount(ctx, tx, b.CustomerID); err != nil {
			return nil, err
		}
	}
	accounts := make(map[string]string, 3)
	for _, rule := range []string{RuleSales, RuleTaxPayable, RuleRoundOff} {
		code, err := s.rules.ResolveAccountTx(ctx, tx, rule)
		if err != nil {
			return nil, err
		}
		accounts[rule] = code
	}

	entries := SaleEntries(b, debitAccount, accounts[RuleSales], accounts[RuleTaxPayable], accounts[RuleRoundOff])
	if len(entries) == 0 {
		// zero-value bill: nothing to post
		return nil, nil
	}

	batch, err := s.ledger.PostTx(ctx, tx, PostingRequest{
		Date:          b.BillDate,
		Description:   fmt.Sprintf("Sales bill %s - %s", b.BillNumber, b.CustomerName),
		ReferenceType: RefSale,
		ReferenceID:   refID(b.ID),
		VoucherType:   VoucherSales,
		VoucherNumber: b.BillNumber,
		Party:         &Party{Type: "CUSTOMER", ID: refID(b.CustomerID), Name: b.CustomerName},
		CreatedBy:     actor,
		Entries:       entries,
	})
	if ierr.IsAlreadyPosted(err) {
		// The batch exists but the flag was never set; adopt it.
		id, lookupErr := batchIDForReference(ctx, tx, RefSale, refID(b.ID))
		if lookupErr != nil {
			return nil, lookupErr
		}
		s.log.Warn().Str("bill_number", b.BillNumber).Int("batch_id", id).Msg("adopting existing sales batch")
		return &id, nil
	}
	if err != nil {
		return nil, err
	}
	return &batch.ID, nil
}

func (s *salesBillService) postSaleStockTx(ctx context.Context, tx pgx.Tx, b *SalesBill, actor string) error {
	items, err := fetchBillItems(ctx, tx, b.ID, true)
	if err != nil {
		return err
	}
	for _, item := range inVariantOrder(items, billItemVariant) {
		if item.StockDeducted {
			continue
		}
		rate := item.CostPrice
		if !rate.IsPositive() {
			rate = item.Rate
		}
		lineID := item.ID
		entry, err := s.stock.MoveTx(ctx, tx, Movement{
			VariantID:       item.ProductVariantID,
			Type:            MovementOut,
			Quantity:        item.Quantity,
			UnitPrice:       rate,
			Date:            b.BillDate,
			TransactionType: "Sale",
			Reference:       StockReference{Type: RefSale, ID: refID(b.ID), LineID: &lineID},
			Remarks:         "Sales bill " + b.BillNumber,
			Enforce:         s.opts.EnforceStock,
			CreatedBy:       actor,
		})
		if err != nil {
			return fmt.Errorf("line %d (%s): %w", item.ItemSequence, item.SKUCode, err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE sales_bill_items SET stock_deducted = TRUE, stock_ledger_id = $2 WHERE id = $1
		`, item.ID, entry.ID); err != nil {
			return dbError(err, "failed to flag stock deduction on line %d", item.ItemSequence)
		}
	}
	return nil
}

func billItemVariant(it SalesBillItem) int { return it.ProductVariantID }

// RecordPostingFailure runs outside the failed transaction so the attempt is
// counted even though everything else rolled back.
func (s *salesBillService) RecordPostingFailure(ctx context.Context, billID int, cause error) {
	if cause == nil || ierr.IsAlreadyPosted(cause) || ierr.IsNotFound(cause) ||
		ierr.KindOf(cause) == ierr.KindInvalidStatusTransition {
		return
	}
	ctx = context.WithoutCancel(ctx)
	var attempts int
	err := s.pool.QueryRow(ctx, `
		UPDATE sales_bills
		SET posting_attempts = posting_attempts + 1, last_posting_error = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING posting_attempts
	`, billID, cause.Error()).Scan(&attempts)
	if err != nil {
		s.log.Error().Err(err).Int("bill_id", billID).Msg("failed to record posting failure")
		return
	}

	ev := s.log.Error()
	if ierr.IsBusiness(cause) {
		ev = s.log.Warn()
	}
	ev.Err(cause).Int("bill_id", billID).Int("attempts", attempts).Str("kind", ierr.KindOf(cause)).Msg("bill posting failed")
}

func (s *salesBillService) UpdateStatus(ctx context.Context, billID int, target BillStatus, actor string) (bill *SalesBill, err error) {
	switch target {
	case BillConfirmed:
		return s.ConfirmBill(ctx, billID, actor)
	case BillCancelled:
		return s.CancelBill(ctx, billID, "", actor)
	}

	ctx, span := startSpan(ctx, "SalesBill.UpdateStatus",
		attribute.Int("bill_id", billID), attribute.String("target", string(target)))
	defer func() { endSpan(span, err) }()

	err = inTx(ctx, s.pool, func(tx pgx.Tx) error {
		b, err := lockBill(ctx, tx, billID)
		if err != nil {
			return err
		}
		if err := checkTransition(b.BillNumber, b.Status, target); err != nil {
			return err
		}
		return setBillStatus(ctx, tx, b.ID, target)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int("bill_id", billID).Str("status", string(target)).Str("actor", actorOrSystem(actor)).Msg("bill status changed")
	return s.GetBill(ctx, billID)
}

func (s *salesBillService) CancelBill(ctx context.Context, billID int, reason, actor string) (bill *SalesBill, err error) {
	ctx, span := startSpan(ctx, "SalesBill.Cancel", attribute.Int("bill_id", billID))
	defer func() { endSpan(span, err) }()
	actor = actorOrSystem(actor)

	err = inTx(ctx, s.pool, func(tx pgx.Tx) error {
		b, err := lockBill(ctx, tx, billID)
		if err != nil {
			return err
		}
		if err := checkTransition(b.BillNumber, b.Status, BillCancelled); err != nil {
			return err
		}
		if b.PaidAmount.IsPositive() {
			return badTransition("bill %s cannot be cancelled: %s has been paid against it",
				b.BillNumber, b.PaidAmount.StringFixed(2))
		}

		if b.AccountsUpdated && b.LedgerBatchID != nil {
			if _, err := s.ledger.ReverseTx(ctx, tx, *b.LedgerBatchID, "bill cancelled", actor); err != nil {
				return fmt.Errorf("failed to reverse sales batch of bill %s: %w", b.BillNumber, err)
			}
		}

		items, err := fetchBillItems(ctx, tx, b.ID, true)
		if err != nil {
			return err
		}
		for _, item := range inVariantOrder(items, billItemVariant) {
			if !item.StockDeducted {
				continue
			}
			lineID := item.ID
			if _, err := s.stock.MoveTx(ctx, tx, Movement{
				VariantID:       item.ProductVariantID,
				Type:            MovementIn,
				Quantity:        item.Quantity,
				UnitPrice:       item.CostPrice,
				Date:            dateOrToday(time.Time{}),
				TransactionType: "Sale Cancel",
				Reference:       StockReference{Type: RefSale.Reversal(), ID: refID(b.ID), LineID: &lineID},
				Remarks:         "Cancelled bill " + b.BillNumber,
				CreatedBy:       actor,
			}); err != nil {
				return fmt.Errorf("failed to return stock for line %d: %w", item.ItemSequence, err)
			}
		}

		if err := setBillStatus(ctx, tx, b.ID, BillCancelled); err != nil {
			return err
		}
		if reason != "" {
			if _, err := tx.Exec(ctx, `
				UPDATE sales_bills SET remarks = CONCAT_WS(' | ', remarks, $2::text) WHERE id = $1
			`, b.ID, "Cancelled: "+reason); err != nil {
				return dbError(err, "failed to record cancellation reason")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int("bill_id", billID).Str("actor", actor).Str("reason", reason).Msg("bill cancelled")
	return s.GetBill(ctx, billID)
}

// ── Payments ──────────────────────────────────────────────────────────────────

func (s *salesBillService) AddPayment(ctx context.Context, billID int, in PaymentInput) (bill *SalesBill, err error) {
	ctx, span := startSpan(ctx, "SalesBill.AddPayment", attribute.Int("bill_id", billID))
	defer func() { endSpan(span, err) }()

	if !in.Amount.IsPositive() {
		return nil, invalidInput("payment amount must be greater than 0, got %s", in.Amount)
	}
	if !in.Method.Valid() {
		return nil, invalidInput("unknown payment method %q", in.Method)
	}
	in.Amount = round2(in.Amount)
	in.PaymentDate = dateOrToday(in.PaymentDate)
	in.CreatedBy = actorOrSystem(in.CreatedBy)

	err = inTx(ctx, s.pool, func(tx pgx.Tx) error {
		b, err := lockBill(ctx, tx, billID)
		if err != nil {
			return err
		}
		if !b.Status.Posted() {
			return badTransition("bill %s cannot record payment: status is %s", b.BillNumber, b.Status)
		}
		if in.Amount.GreaterThan(b.BalanceAmount) {
			return ierr.NewErrorf("payment %s exceeds balance %s on bill %s",
				in.Amount.StringFixed(2), b.BalanceAmount.StringFixed(2), b.BillNumber).
				WithHintf("Payment of %s exceeds the outstanding balance of %s",
					in.Amount.StringFixed(2), b.BalanceAmount.StringFixed(2)).
				WithReportableDetails(map[string]any{"balance_amount": b.BalanceAmount.StringFixed(2)}).
				Mark(ierr.ErrInvalidInput)
		}

		// Accounts
		settlement := strings.TrimSpace(in.BankAccountCode)
		if settlement == "" {
			if settlement, err = s.rules.ResolveAccountTx(ctx, tx, in.Method.SettlementRule()); err != nil {
				return err
			}
		} else if err := checkAccount(ctx, tx, settlement); err != nil {
			return err
		}
		receivable, err := receivableAccount(ctx, tx, b.CustomerID)
		if err != nil {
			return err
		}

		// Receipt
		var seq int
		if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM sales_bill_payments WHERE bill_id = $1", b.ID).Scan(&seq); err != nil {
			return dbError(err, "failed to count payments of bill %s", b.BillNumber)
		}
		receipt := fmt.Sprintf("RV-%s-%02d", b.BillNumber, seq+1)

		var paymentID int
		err = tx.QueryRow(ctx, `
			INSERT INTO sales_bill_payments (bill_id, receipt_number, payment_date, payment_amount, payment_method,
				payment_reference, bank_account_code, cheque_number, cheque_date, remarks, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id
		`, b.ID, receipt, in.PaymentDate, in.Amount, in.Method, lo.EmptyableToPtr(in.Reference),
			lo.EmptyableToPtr(strings.TrimSpace(in.BankAccountCode)), lo.EmptyableToPtr(in.ChequeNumber), in.ChequeDate,
			lo.EmptyableToPtr(in.Remarks), in.CreatedBy).Scan(&paymentID)
		if err != nil {
			return dbError(err, "failed to insert payment")
		}

		// Ledger: DR cash/bank, CR receivable
		desc := fmt.Sprintf("Receipt %s against bill %s", receipt, b.BillNumber)
		batch, err := s.ledger.PostTx(ctx, tx, PostingRequest{
			Date:          in.PaymentDate,
			Description:   desc,
			ReferenceType: RefPayment,
			ReferenceID:   refID(paymentID),
			VoucherType:   VoucherReceipt,
			VoucherNumber: receipt,
			Party:         &Party{Type: "CUSTOMER", ID: refID(b.CustomerID), Name: b.CustomerName},
			CreatedBy:     in.CreatedBy,
			Entries: []EntryLine{
				Debit(settlement, in.Amount, desc),
				Credit(receivable, in.Amount, desc),
			},
		})
		if err != nil {
			return fmt.Errorf("ledger posting for receipt %s failed: %w", receipt, err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE sales_bill_payments SET ledger_batch_id = $2, accounts_updated = TRUE WHERE id = $1
		`, paymentID, batch.ID); err != nil {
			return dbError(err, "failed to link payment batch")
		}

		// Bill amounts
		paid, balance, status := ApplyPayment(b.NetAmount, b.PaidAmount, in.Amount)
		if _, err := tx.Exec(ctx, `
			UPDATE sales_bills
			SET paid_amount = $2, balance_amount = $3, payment_status = $4, updated_at = NOW()
			WHERE id = $1
		`, b.ID, paid, balance, status); err != nil {
			return dbError(err, "failed to update bill %s amounts", b.BillNumber)
		}

		s.log.Info().
			Str("bill_number", b.BillNumber).
			Str("receipt", receipt).
			Str("amount", in.Amount.StringFixed(2)).
			Str("payment_status", string(status)).
			Msg("payment recorded")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetBill(ctx, billID)
}

// ── Queries ───────────────────────────────────────────────────────────────────

func (s *salesBillService) GetBill(ctx context.Context, billID int) (*SalesBill, error) {
	b, err := getBill(ctx, s.pool, billID, false)
	if err != nil {
		return nil, err
	}
	if b.Items, err = fetchBillItems(ctx, s.pool, billID, false); err != nil {
		return nil, err
	}
	if b.Payments, err = fetchBillPayments(ctx, s.pool, billID); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *salesBillService) ListUnposted(ctx context.Context, limit, maxAttempts int) ([]UnpostedBill, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, bill_number, accounts_updated, stock_updated, posting_attempts
		FROM sales_bills
		WHERE (accounts_updated = FALSE OR stock_updated = FALSE)
		  AND status = ANY($1)
		  AND posting_attempts < $2
		ORDER BY id
		LIMIT $3
	`, postedStatuses, maxAttempts, limit)
	if err != nil {
		return nil, dbError(err, "failed to query unposted bills")
	}
	defer rows.Close()

	var out []UnpostedBill
	for rows.Next() {
		var u UnpostedBill
		if err := rows.Scan(&u.ID, &u.Number, &u.AccountsUpdated, &u.StockUpdated, &u.Attempts); err != nil {
			return nil, dbError(err, "failed to scan unposted bill")
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "error iterating unposted bills")
	}
	return out, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func inTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return dbError(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return dbError(err, "failed to commit transaction")
	}
	return nil
}

const billColumns = `
	b.id, b.bill_number, b.bill_date, b.due_date, b.bill_book_id, b.tax_type, b.customer_id, c.name,
	b.agent_id, b.transport_name, b.total_item_count, b.total_quantity, b.gross_amount, b.discount_percentage,
	b.discount_amount, b.taxable_amount, b.tax_amount, b.adjustment_amount, b.net_amount, b.payment_status,
	b.paid_amount, b.balance_amount, b.sale_type, b.settlement_account, b.reference_number, b.remarks, b.status,
	b.accounts_updated, b.stock_updated, b.ledger_batch_id, b.posting_attempts, b.last_posting_error,
	b.created_by, b.created_at, b.updated_at`

func lockBill(ctx context.Context, tx pgx.Tx, billID int) (*SalesBill, error) {
	return getBill(ctx, tx, billID, true)
}

func getBill(ctx context.Context, q pgxQuerier, billID int, forUpdate bool) (*SalesBill, error) {
	query := `SELECT ` + billColumns + `
		FROM sales_bills b
		JOIN customers c ON c.id = b.customer_id
		WHERE b.id = $1`
	if forUpdate {
		query += " FOR UPDATE OF b"
	}

	var b SalesBill
	err := q.QueryRow(ctx, query, billID).Scan(
		&b.ID, &b.BillNumber, &b.BillDate, &b.DueDate, &b.BillBookID, &b.TaxType, &b.CustomerID, &b.CustomerName,
		&b.AgentID, &b.TransportName, &b.TotalItemCount, &b.TotalQuantity, &b.GrossAmount, &b.DiscountPercentage,
		&b.DiscountAmount, &b.TaxableAmount, &b.TaxAmount, &b.AdjustmentAmount, &b.NetAmount, &b.PaymentStatus,
		&b.PaidAmount, &b.BalanceAmount, &b.SaleType, &b.SettlementAccount, &b.ReferenceNumber, &b.Remarks, &b.Status,
		&b.AccountsUpdated, &b.StockUpdated, &b.LedgerBatchID, &b.PostingAttempts, &b.LastPostingError,
		&b.CreatedBy, &b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("sales bill %d not found", billID)
	}
	if err != nil {
		return nil, dbError(err, "failed to fetch sales bill %d", billID)
	}
	return &b, nil
}

func fetchBillItems(ctx context.Context, q pgxRowQuerier, billID int, forUpdate bool) ([]SalesBillItem, error) {
	query := `
		SELECT id, bill_id, item_sequence, product_variant_id, sku_code, product_name, hsn_code, unit, quantity,
			rate, discount_percentage, gross_amount, discount_amount, taxable_amount, tax_percentage, tax_amount,
			total_amount, cost_price, stock_deducted, stock_ledger_id
		FROM sales_bill_items
		WHERE bill_id = $1
		ORDER BY item_sequence`
	if forUpdate {
		query += " FOR UPDATE"
	}

	rows, err := q.Query(ctx, query, billID)
	if err != nil {
		return nil, dbError(err, "failed to fetch lines of bill %d", billID)
	}
	defer rows.Close()

	var items []SalesBillItem
	for rows.Next() {
		var it SalesBillItem
		if err := rows.Scan(&it.ID, &it.BillID, &it.ItemSequence, &it.ProductVariantID, &it.SKUCode, &it.ProductName,
			&it.HSNCode, &it.Unit, &it.Quantity, &it.Rate, &it.DiscountPercentage, &it.GrossAmount, &it.DiscountAmount,
			&it.TaxableAmount, &it.TaxPercentage, &it.TaxAmount, &it.TotalAmount, &it.CostPrice, &it.StockDeducted,
			&it.StockLedgerID); err != nil {
			return nil, dbError(err, "failed to scan bill line")
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "error iterating bill lines")
	}
	return items, nil
}

func fetchBillPayments(ctx context.Context, q pgxRowQuerier, billID int) ([]SalesBillPayment, error) {
	rows, err := q.Query(ctx, `
		SELECT id, bill_id, receipt_number, payment_date, payment_amount, payment_method, payment_reference,
			bank_account_code, cheque_number, cheque_date, ledger_batch_id, accounts_updated, remarks,
			created_by, created_at
		FROM sales_bill_payments
		WHERE bill_id = $1
		ORDER BY id
	`, billID)
	if err != nil {
		return nil, dbError(err, "failed to fetch payments of bill %d", billID)
	}
	defer rows.Close()

	var payments []SalesBillPayment
	for rows.Next() {
		var p SalesBillPayment
		if err := rows.Scan(&p.ID, &p.BillID, &p.ReceiptNumber, &p.PaymentDate, &p.PaymentAmount, &p.PaymentMethod,
			&p.PaymentReference, &p.BankAccountCode, &p.ChequeNumber, &p.ChequeDate, &p.LedgerBatchID,
			&p.AccountsUpdated, &p.Remarks, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, dbError(err, "failed to scan payment")
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "error iterating payments")
	}
	return payments, nil
}

func setBillStatus(ctx context.Context, tx pgx.Tx, billID int, status BillStatus) error {
	if _, err := tx.Exec(ctx, `UPDATE sales_bills SET status = $2, updated_at = NOW() WHERE id = $1`,
		billID, status); err != nil {
		return dbError(err, "failed to set bill %d to %s", billID, status)
	}
	return nil
}

// receivableAccount is the customer's own ledger account, or the RECEIVABLE rule.
func receivableAccount(ctx context.Context, q pgxQuerier, customerID int) (string, error) {
	var code *string
	err := q.QueryRow(ctx, "SELECT account_code FROM customers WHERE id = $1", customerID).Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", notFound("customer %d not found", customerID)
	}
	if err != nil {
		return "", dbError(err, "failed to read customer %d", customerID)
	}
	if c := lo.FromPtr(code); c != "" {
		return c, nil
	}
	return resolveAccount(ctx, q, RuleReceivable)
}

func checkAccount(ctx context.Context, q pgxQuerier, code string) error {
	var ok bool
	err := q.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM accounts WHERE code = $1 AND is_active)", code).Scan(&ok)
	if err != nil {
		return dbError(err, "failed to check account %s", code)
	}
	if !ok {
		return notFound("account %s not found", code)
	}
	return nil
}

func batchIDForReference(ctx context.Context, q pgxQuerier, refType ReferenceType, refID string) (int, error) {
	var id int
	err := q.QueryRow(ctx, `
		SELECT id FROM transaction_batches WHERE reference_type = $1 AND reference_id = $2
	`, refType, refID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, notFound("no batch for %s %s", refType, refID)
	}
	if err != nil {
		return 0, dbError(err, "failed to look up batch for %s %s", refType, refID)
	}
	return id, nil
}
