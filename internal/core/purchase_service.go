package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	ierr "garments-erp/internal/errors"
	"garments-erp/internal/logger"
)

type purchaseService struct {
	pool   *pgxpool.Pool
	ledger LedgerService
	stock  StockService
	rules  RuleEngine
	log    zerolog.Logger
}

func NewPurchaseService(pool *pgxpool.Pool, ledger LedgerService, stock StockService, rules RuleEngine) PurchaseService {
	return &purchaseService{
		pool:   pool,
		ledger: ledger,
		stock:  stock,
		rules:  rules,
		log:    logger.WithComponent("purchase"),
	}
}

// PurchaseTotal is sub_total + tax + transport + other − discount.
func PurchaseTotal(subTotal, tax, transport, other, discount decimal.Decimal) decimal.Decimal {
	return subTotal.Add(tax).Add(transport).Add(other).Sub(discount)
}

// ── Purchases ─────────────────────────────────────────────────────────────────

func (s *purchaseService) CreatePurchase(ctx context.Context, in CreatePurchaseInput) (p *Purchase, err error) {
	ctx, span := startSpan(ctx, "Purchase.Create", attribute.Int("supplier_id", in.SupplierID))
	defer func() { endSpan(span, err) }()

	if len(in.Items) == 0 {
		return nil, invalidInput("purchase must have at least one item")
	}
	if in.PurchaseType != PurchaseCash && in.PurchaseType != PurchaseCredit {
		return nil, invalidInput("unknown purchase type %q", in.PurchaseType)
	}
	if in.PaymentMode != nil && !in.PaymentMode.Valid() {
		return nil, invalidInput("unknown payment mode %q", *in.PaymentMode)
	}
	for name, v := range map[string]decimal.Decimal{
		"tax amount": in.TaxAmount, "transport charges": in.TransportCharges,
		"other charges": in.OtherCharges, "discount amount": in.DiscountAmount, "amount paid": in.AmountPaid,
	} {
		if v.IsNegative() {
			return nil, invalidInput("%s cannot be negative", name)
		}
	}

	subTotal := decimal.Zero
	accepted := make([]decimal.Decimal, len(in.Items))
	amounts := make([]decimal.Decimal, len(in.Items))
	for i, item := range in.Items {
		if !item.Quantity.IsPositive() {
			return nil, invalidInput("item %d: quantity must be greater than 0", i+1)
		}
		if item.Rate.IsNegative() {
			return nil, invalidInput("item %d: rate cannot be negative", i+1)
		}
		if item.RejectedQty.IsNegative() || item.RejectedQty.GreaterThan(item.Quantity) {
			return nil, invalidInput("item %d: rejected quantity must be between 0 and %s", i+1, item.Quantity)
		}
		accepted[i] = item.Quantity.Sub(item.RejectedQty)
		amounts[i] = round2(item.Quantity.Mul(item.Rate))
		subTotal = subTotal.Add(amounts[i])
	}

	total := round2(PurchaseTotal(subTotal, in.TaxAmount, in.TransportCharges, in.OtherCharges, in.DiscountAmount))
	if total.IsNegative() {
		return nil, invalidInput("purchase total cannot be negative, got %s", total.StringFixed(2))
	}
	paid := round2(in.AmountPaid)
	if in.PurchaseType == PurchaseCash {
		paid = total
	}
	if paid.GreaterThan(total) {
		return nil, invalidInput("amount paid %s exceeds purchase total %s", paid.StringFixed(2), total.StringFixed(2))
	}
	in.PurchaseDate = dateOrToday(in.PurchaseDate)
	in.CreatedBy = actorOrSystem(in.CreatedBy)

	var purchaseID int
	err = inTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := checkSupplier(ctx, tx, in.SupplierID); err != nil {
			return err
		}
		for i, item := range in.Items {
			var exists bool
			if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM product_variants WHERE id = $1 AND is_active)",
				item.VariantID).Scan(&exists); err != nil {
				return dbError(err, "item %d: failed to resolve product variant", i+1)
			}
			if !exists {
				return notFound("item %d: product variant %d not found", i+1, item.VariantID)
			}
		}

		number, err := nextSequenceTx(ctx, tx, SeriesPurchase, in.PurchaseDate)
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO purchases (purchase_number, supplier_id, purchase_date, purchase_type, payment_mode, sub_total,
				tax_amount, transport_charges, other_charges, discount_amount, total_amount, amount_paid, status,
				remarks, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			RETURNING id
		`, number, in.SupplierID, in.PurchaseDate, in.PurchaseType, in.PaymentMode, subTotal,
			round2(in.TaxAmount), round2(in.TransportCharges), round2(in.OtherCharges), round2(in.DiscountAmount),
			total, paid, DocDraft, lo.EmptyableToPtr(in.Remarks), in.CreatedBy).Scan(&purchaseID)
		if err != nil {
			return dbError(err, "failed to insert purchase")
		}

		for i, item := range in.Items {
			if _, err := tx.Exec(ctx, `
				INSERT INTO purchase_items (purchase_id, line_number, variant_id, quantity, rejected_qty, accepted_qty,
					rate, amount)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, purchaseID, i+1, item.VariantID, item.Quantity, item.RejectedQty, accepted[i],
				round2(item.Rate), amounts[i]); err != nil {
				return dbError(err, "failed to insert purchase item %d", i+1)
			}
		}

		s.log.Info().Str("purchase_number", number).Str("total", total.StringFixed(2)).Msg("purchase created")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetPurchase(ctx, purchaseID)
}

func (s *purchaseService) PostPurchase(ctx context.Context, purchaseID int, opts PostOptions, actor string) (p *Purchase, err error) {
	ctx, span := startSpan(ctx, "Purchase.Post", attribute.Int("purchase_id", purchaseID))
	defer func() { endSpan(span, err) }()

	if !opts.ToStock && !opts.ToLedger {
		return nil, invalidInput("nothing to post: select stock, ledger or both")
	}
	actor = actorOrSystem(actor)

	err = inTx(ctx, s.pool, func(tx pgx.Tx) error {
		p, err := getPurchase(ctx, tx, purchaseID, true)
		if err != nil {
			return err
		}
		if p.Status == DocCancelled {
			return badTransition("purchase %s cannot be posted: status is %s", p.PurchaseNumber, p.Status)
		}
		needStock := opts.ToStock && !p.IsStockUpdated
		needLedger := opts.ToLedger && !p.IsLedgerPosted
		if !needStock && !needLedger {
			return fail(ierr.ErrAlreadyPosted, "purchase %s is already posted", p.PurchaseNumber)
		}

		if needStock {
			if err := s.receiveStockTx(ctx, tx, p, actor); err != nil {
				return err
			}
			p.IsStockUpdated = true
		}
		if needLedger {
			batchID, err := s.postPurchaseLedgerTx(ctx, tx, p, actor)
			if err != nil {
				return fmt.Errorf("ledger posting for purchase %s failed: %w", p.PurchaseNumber, err)
			}
			p.IsLedgerPosted = true
			p.LedgerBatchID = batchID
		}

		status := p.Status
		if p.IsStockUpdated && p.IsLedgerPosted {
			status = DocPosted
		}
		if _, err := tx.Exec(ctx, `
			UPDATE purchases
			SET is_stock_updated = $2, is_ledger_posted = $3, ledger_batch_id = $4, status = $5,
				posted_by = $6, posted_at = NOW()
			WHERE id = $1
		`, p.ID, p.IsStockUpdated, p.IsLedgerPosted, p.LedgerBatchID, status, actor); err != nil {
			return dbError(err, "failed to update purchase %s", p.PurchaseNumber)
		}

		s.log.Info().
			Str("purchase_number", p.PurchaseNumber).
			Bool("stock", needStock).
			Bool("ledger", needLedger).
			Msg("purchase posted")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetPurchase(ctx, purchaseID)
}

func (s *purchaseService) receiveStockTx(ctx context.Context, tx pgx.Tx, p *Purchase, actor string) error {
	items, err := fetchPurchaseItems(ctx, tx, p.ID, true)
	if err != nil {
		return err
	}
	for _, item := range inVariantOrder(items, func(it PurchaseItem) int { return it.VariantID }) {
		if item.IsStockUpdated || !item.AcceptedQty.IsPositive() {
			continue
		}
		lineID := item.ID
		entry, err := s.stock.MoveTx(ctx, tx, Movement{
			VariantID:       item.VariantID,
			Type:            MovementIn,
			Quantity:        item.AcceptedQty,
			UnitPrice:       item.Rate,
			Date:            p.PurchaseDate,
			TransactionType: "Purchase",
			Reference:       StockReference{Type: RefPurchase, ID: refID(p.ID), LineID: &lineID},
			Remarks:         "Purchase " + p.PurchaseNumber,
			CreatedBy:       actor,
		})
		if err != nil {
			return fmt.Errorf("item %d: %w", item.LineNumber, err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE purchase_items SET is_stock_updated = TRUE, stock_ledger_id = $2 WHERE id = $1
		`, item.ID, entry.ID); err != nil {
			return dbError(err, "failed to flag purchase item %d", item.LineNumber)
		}
	}
	return nil
}

// PurchaseEntries books the purchase against the supplier (credit purchases)
// or the paying account, plus any part payment made on a credit purchase.
func PurchaseEntries(p *Purchase, purchaseAccount, payableAccount, paidFromAccount string) []EntryLine {
	desc := "Purchase " + p.PurchaseNumber
	var entries []EntryLine
	if p.PurchaseType == PurchaseCash {
		entries = []EntryLine{
			Debit(purchaseAccount, p.TotalAmount, desc),
			Credit(paidFromAccount, p.TotalAmount, desc),
		}
	} else {
		entries = []EntryLine{
			Debit(purchaseAccount, p.TotalAmount, desc),
			Credit(payableAccount, p.TotalAmount, desc),
		}
		if p.AmountPaid.IsPositive() {
			entries = append(entries,
				Debit(payableAccount, p.AmountPaid, "Payment against "+p.PurchaseNumber),
				Credit(paidFromAccount, p.AmountPaid, "Payment against "+p.PurchaseNumber),
			)
		}
	}
	return lo.Filter(entries, func(e EntryLine, _ int) bool {
		return e.Debit.IsPositive() || e.Credit.IsPositive()
	})
}

func (s *purchaseService) postPurchaseLedgerTx(ctx context.Context, tx pgx.Tx, p *Purchase, actor string) (*int, error) {
	purchaseAccount, err := s.rules.ResolveAccountTx(ctx, tx, RulePurchase)
	if err != nil {
		return nil, err
	}
	payable, err := payableAccount(ctx, tx, p.SupplierID)
	if err != nil {
		return nil, err
	}
	paidFrom, err := s.rules.ResolveAccountTx(ctx, tx, lo.FromPtrOr(p.PaymentMode, MethodCash).SettlementRule())
	if err != nil {
		return nil, err
	}

	entries := PurchaseEntries(p, purchaseAccount, payable, paidFrom)
	if len(entries) == 0 {
		return nil, nil
	}
	batch, err := s.ledger.PostTx(ctx, tx, PostingRequest{
		Date:          p.PurchaseDate,
		Description:   fmt.Sprintf("Purchase %s - %s", p.PurchaseNumber, p.SupplierName),
		ReferenceType: RefPurchase,
		ReferenceID:   refID(p.ID),
		VoucherType:   VoucherPurchase,
		VoucherNumber: p.PurchaseNumber,
		Party:         &Party{Type: "SUPPLIER", ID: refID(p.SupplierID), Name: p.SupplierName},
		CreatedBy:     actor,
		Entries:       entries,
	})
	if err != nil {
		return nil, err
	}
	return &batch.ID, nil
}

func (s *purchaseService) GetPurchase(ctx context.Context, purchaseID int) (*Purchase, error) {
	p, err := getPurchase(ctx, s.pool, purchaseID, false)
	if err != nil {
		return nil, err
	}
	if p.Items, err = fetchPurchaseItems(ctx, s.pool, purchaseID, false); err != nil {
		return nil, err
	}
	return p, nil
}

// ── Purchase returns ──────────────────────────────────────────────────────────

func (s *purchaseService) CreatePurchaseReturn(ctx context.Context, in CreatePurchaseReturnInput) (r *PurchaseReturn, err error) {
	ctx, span := startSpan(ctx, "PurchaseReturn.Create", attribute.Int("purchase_id", in.PurchaseID))
	defer func() { endSpan(span, err) }()

	if len(in.Items) == 0 {
		return nil, invalidInput("purchase return must have at least one item")
	}
	switch in.RefundMode {
	case RefundCash, RefundBank, RefundAdjust:
	default:
		return nil, invalidInput("unknown refund mode %q", in.RefundMode)
	}
	if in.RefundAmount.IsNegative() {
		return nil, invalidInput("refund amount cannot be negative")
	}
	in.ReturnDate = dateOrToday(in.ReturnDate)
	in.CreatedBy = actorOrSystem(in.CreatedBy)

	var returnID int
	err = inTx(ctx, s.pool, func(tx pgx.Tx) error {
		p, err := getPurchase(ctx, tx, in.PurchaseID, true)
		if err != nil {
			return err
		}
		if !p.IsStockUpdated {
			return badTransition("purchase %s has not been received into stock", p.PurchaseNumber)
		}

		items, err := fetchPurchaseItems(ctx, tx, p.ID, false)
		if err != nil {
			return err
		}
		byID := lo.KeyBy(items, func(it PurchaseItem) int { return it.ID })

		returned, err := returnedQuantities(ctx, tx, p.ID)
		if err != nil {
			return err
		}

		total := decimal.Zero
		lineAmounts := make([]decimal.Decimal, len(in.Items))
		for i, ri := range in.Items {
			item, ok := byID[ri.PurchaseItemID]
			if !ok {
				return notFound("item %d: purchase item %d not found on %s", i+1, ri.PurchaseItemID, p.PurchaseNumber)
			}
			if !ri.Quantity.IsPositive() {
				return invalidInput("item %d: return quantity must be greater than 0", i+1)
			}
			returned[item.ID] = returned[item.ID].Add(ri.Quantity)
			if returned[item.ID].GreaterThan(item.AcceptedQty) {
				return invalidInput("item %d: returning %s exceeds accepted quantity %s",
					i+1, returned[item.ID], item.AcceptedQty)
			}
			lineAmounts[i] = round2(ri.Quantity.Mul(item.Rate))
			total = total.Add(lineAmounts[i])
		}

		refund := round2(in.RefundAmount)
		switch {
		case in.RefundMode == RefundAdjust:
			refund = decimal.Zero
		case refund.IsZero():
			refund = total
		case refund.GreaterThan(total):
			return invalidInput("refund %s exceeds return total %s", refund.StringFixed(2), total.StringFixed(2))
		}

		number, err := nextSequenceTx(ctx, tx, SeriesPurchaseReturn, in.ReturnDate)
		if err != nil {
			return err
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO purchase_returns (return_number, purchase_id, supplier_id, return_date, total_amount,
				refund_mode, refund_amount, reason, status, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id
		`, number, p.ID, p.SupplierID, in.ReturnDate, total, in.RefundMode, refund,
			lo.EmptyableToPtr(in.Reason), DocDraft, in.CreatedBy).Scan(&returnID)
		if err != nil {
			return dbError(err, "failed to insert purchase return")
		}

		for i, ri := range in.Items {
			item := byID[ri.PurchaseItemID]
			if _, err := tx.Exec(ctx, `
				INSERT INTO purchase_return_items (return_id, purchase_item_id, variant_id, return_quantity, rate, amount)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, returnID, item.ID, item.VariantID, ri.Quantity, item.Rate, lineAmounts[i]); err != nil {
				return dbError(err, "failed to insert return item %d", i+1)
			}
		}

		s.log.Info().Str("return_number", number).Str("purchase_number", p.PurchaseNumber).
			Str("total", total.StringFixed(2)).Msg("purchase return created")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetPurchaseReturn(ctx, returnID)
}

// returnedQuantities sums quantities already on non-cancelled returns, per purchase item.
func returnedQuantities(ctx context.Context, tx pgx.Tx, purchaseID int) (map[int]decimal.Decimal, error) {
	rows, err := tx.Query(ctx, `
		SELECT ri.purchase_item_id, SUM(ri.return_quantity)
		FROM purchase_return_items ri
		JOIN purchase_returns r ON r.id = ri.return_id
		WHERE r.purchase_id = $1 AND r.status <> $2
		GROUP BY ri.purchase_item_id
	`, purchaseID, DocCancelled)
	if err != nil {
		return nil, dbError(err, "failed to sum returned quantities")
	}
	defer rows.Close()

	out := make(map[int]decimal.Decimal)
	for rows.Next() {
		var id int
		var qty decimal.Decimal
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, dbError(err, "failed to scan returned quantity")
		}
		out[id] = qty
	}
	return out, rows.Err()
}

func (s *purchaseService) PostPurchaseReturn(ctx context.Context, returnID int, actor string) (r *PurchaseReturn, err error) {
	ctx, span := startSpan(ctx, "PurchaseReturn.Post", attribute.Int("return_id", returnID))
	defer func() { endSpan(span, err) }()
	actor = actorOrSystem(actor)

	err = inTx(ctx, s.pool, func(tx pgx.Tx) error {
		r, err := getPurchaseReturn(ctx, tx, returnID, true)
		if err != nil {
			return err
		}
		if r.Status == DocCancelled {
			return badTransition("purchase return %s cannot be posted: status is %s", r.ReturnNumber, r.Status)
		}
		if r.IsStockUpdated && r.IsLedgerPosted {
			return fail(ierr.ErrAlreadyPosted, "purchase return %s is already posted", r.ReturnNumber)
		}

		if !r.IsStockUpdated {
			if err := s.returnStockTx(ctx, tx, r, actor); err != nil {
				return err
			}
			r.IsStockUpdated = true
		}
		if !r.IsLedgerPosted {
			batchID, err := s.postReturnLedgerTx(ctx, tx, r, actor)
			if err != nil {
				return fmt.Errorf("ledger posting for purchase return %s failed: %w", r.ReturnNumber, err)
			}
			r.IsLedgerPosted = true
			r.LedgerBatchID = batchID
		}

		if _, err := tx.Exec(ctx, `
			UPDATE purchase_returns
			SET is_stock_updated = TRUE, is_ledger_posted = TRUE, ledger_batch_id = $2, status = $3
			WHERE id = $1
		`, r.ID, r.LedgerBatchID, DocPosted); err != nil {
			return dbError(err, "failed to update purchase return %s", r.ReturnNumber)
		}

		s.log.Info().Str("return_number", r.ReturnNumber).Msg("purchase return posted")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetPurchaseReturn(ctx, returnID)
}

// returnStockTx sends returned goods out without the availability check:
// the goods left with the supplier whatever the books say.
func (s *purchaseService) returnStockTx(ctx context.Context, tx pgx.Tx, r *PurchaseReturn, actor string) error {
	items, err := fetchReturnItems(ctx, tx, r.ID, true)
	if err != nil {
		return err
	}
	for _, item := range inVariantOrder(items, func(it PurchaseReturnItem) int { return it.VariantID }) {
		if item.IsStockUpdated {
			continue
		}
		lineID := item.ID
		entry, err := s.stock.MoveTx(ctx, tx, Movement{
			VariantID:       item.VariantID,
			Type:            MovementOut,
			Quantity:        item.ReturnQuantity,
			UnitPrice:       item.Rate,
			Date:            r.ReturnDate,
			TransactionType: "Purchase Return",
			Reference:       StockReference{Type: RefPurchaseReturn, ID: refID(r.ID), LineID: &lineID},
			Remarks:         "Purchase return " + r.ReturnNumber,
			Enforce:         false,
			CreatedBy:       actor,
		})
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE purchase_return_items SET is_stock_updated = TRUE, stock_ledger_id = $2 WHERE id = $1
		`, item.ID, entry.ID); err != nil {
			return dbError(err, "failed to flag return item %d", item.ID)
		}
	}
	return nil
}

// ReturnEntries credits Purchase with the return total; the refund account
// takes the refunded part and the supplier's payable the rest.
func ReturnEntries(r *PurchaseReturn, purchaseAccount, payableAccount, refundAccount string) []EntryLine {
	desc := "Purchase return " + r.ReturnNumber
	entries := []EntryLine{
		Debit(refundAccount, r.RefundAmount, desc),
		Debit(payableAccount, r.TotalAmount.Sub(r.RefundAmount), desc),
		Credit(purchaseAccount, r.TotalAmount, desc),
	}
	return lo.Filter(entries, func(e EntryLine, _ int) bool {
		return e.Debit.IsPositive() || e.Credit.IsPositive()
	})
}

func (s *purchaseService) postReturnLedgerTx(ctx context.Context, tx pgx.Tx, r *PurchaseReturn, actor string) (*int, error) {
	purchaseAccount, err := s.rules.ResolveAccountTx(ctx, tx, RulePurchase)
	if err != nil {
		return nil, err
	}
	payable, err := payableAccount(ctx, tx, r.SupplierID)
	if err != nil {
		return nil, err
	}
	refundAccount := payable
	if r.RefundAmount.IsPositive() {
		rule := RuleCash
		if lo.FromPtr(r.RefundMode) == RefundBank {
			rule = RuleBank
		}
		if refundAccount, err = s.rules.ResolveAccountTx(ctx, tx, rule); err != nil {
			return nil, err
		}
	}

	entries := ReturnEntries(r, purchaseAccount, payable, refundAccount)
	if len(entries) == 0 {
		return nil, nil
	}
	batch, err := s.ledger.PostTx(ctx, tx, PostingRequest{
		Date:          r.ReturnDate,
		Description:   "Purchase return " + r.ReturnNumber,
		ReferenceType: RefPurchaseReturn,
		ReferenceID:   refID(r.ID),
		VoucherType:   VoucherPurchaseReturn,
		VoucherNumber: r.ReturnNumber,
		Party:         &Party{Type: "SUPPLIER", ID: refID(r.SupplierID)},
		CreatedBy:     actor,
		Entries:       entries,
	})
	if err != nil {
		return nil, err
	}
	return &batch.ID, nil
}

func (s *purchaseService) GetPurchaseReturn(ctx context.Context, returnID int) (*PurchaseReturn, error) {
	r, err := getPurchaseReturn(ctx, s.pool, returnID, false)
	if err != nil {
		return nil, err
	}
	if r.Items, err = fetchReturnItems(ctx, s.pool, returnID, false); err != nil {
		return nil, err
	}
	return r, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func checkSupplier(ctx context.Context, q pgxQuerier, supplierID int) error {
	var active bool
	err := q.QueryRow(ctx, "SELECT is_active FROM suppliers WHERE id = $1", supplierID).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && !active) {
		return notFound("supplier %d not found", supplierID)
	}
	if err != nil {
		return dbError(err, "failed to resolve supplier %d", supplierID)
	}
	return nil
}

// payableAccount is the supplier's own ledger account, or the PAYABLE rule.
func payableAccount(ctx context.Context, q pgxQuerier, supplierID int) (string, error) {
	var code *string
	err := q.QueryRow(ctx, "SELECT account_code FROM suppliers WHERE id = $1", supplierID).Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", notFound("supplier %d not found", supplierID)
	}
	if err != nil {
		return "", dbError(err, "failed to read supplier %d", supplierID)
	}
	if c := lo.FromPtr(code); c != "" {
		return c, nil
	}
	return resolveAccount(ctx, q, RulePayable)
}

func getPurchase(ctx context.Context, q pgxQuerier, purchaseID int, forUpdate bool) (*Purchase, error) {
	query := `
		SELECT p.id, p.purchase_number, p.supplier_id, s.name, p.purchase_date, p.purchase_type, p.payment_mode,
			p.sub_total, p.tax_amount, p.transport_charges, p.other_charges, p.discount_amount, p.total_amount,
			p.amount_paid, p.status, p.is_stock_updated, p.is_ledger_posted, p.ledger_batch_id, p.remarks,
			p.created_by, p.posted_by, p.posted_at, p.created_at
		FROM purchases p
		JOIN suppliers s ON s.id = p.supplier_id
		WHERE p.id = $1`
	if forUpdate {
		query += " FOR UPDATE OF p"
	}

	var p Purchase
	err := q.QueryRow(ctx, query, purchaseID).Scan(
		&p.ID, &p.PurchaseNumber, &p.SupplierID, &p.SupplierName, &p.PurchaseDate, &p.PurchaseType, &p.PaymentMode,
		&p.SubTotal, &p.TaxAmount, &p.TransportCharges, &p.OtherCharges, &p.DiscountAmount, &p.TotalAmount,
		&p.AmountPaid, &p.Status, &p.IsStockUpdated, &p.IsLedgerPosted, &p.LedgerBatchID, &p.Remarks,
		&p.CreatedBy, &p.PostedBy, &p.PostedAt, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("purchase %d not found", purchaseID)
	}
	if err != nil {
		return nil, dbError(err, "failed to fetch purchase %d", purchaseID)
	}
	return &p, nil
}

func fetchPurchaseItems(ctx context.Context, q pgxRowQuerier, purchaseID int, forUpdate bool) ([]PurchaseItem, error) {
	query := `
		SELECT id, purchase_id, line_number, variant_id, quantity, rejected_qty, accepted_qty, rate, amount,
			is_stock_updated, stock_ledger_id
		FROM purchase_items
		WHERE purchase_id = $1
		ORDER BY line_number`
	if forUpdate {
		query += " FOR UPDATE"
	}

	rows, err := q.Query(ctx, query, purchaseID)
	if err != nil {
		return nil, dbError(err, "failed to fetch items of purchase %d", purchaseID)
	}
	defer rows.Close()

	var items []PurchaseItem
	for rows.Next() {
		var it PurchaseItem
		if err := rows.Scan(&it.ID, &it.PurchaseID, &it.LineNumber, &it.VariantID, &it.Quantity, &it.RejectedQty,
			&it.AcceptedQty, &it.Rate, &it.Amount, &it.IsStockUpdated, &it.StockLedgerID); err != nil {
			return nil, dbError(err, "failed to scan purchase item")
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "error iterating purchase items")
	}
	return items, nil
}

func getPurchaseReturn(ctx context.Context, q pgxQuerier, returnID int, forUpdate bool) (*PurchaseReturn, error) {
	query := `
		SELECT id, return_number, purchase_id, supplier_id, return_date, total_amount, refund_mode, refund_amount,
			reason, status, is_stock_updated, is_ledger_posted, ledger_batch_id, created_by, created_at
		FROM purchase_returns
		WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var r PurchaseReturn
	err := q.QueryRow(ctx, query, returnID).Scan(
		&r.ID, &r.ReturnNumber, &r.PurchaseID, &r.SupplierID, &r.ReturnDate, &r.TotalAmount, &r.RefundMode,
		&r.RefundAmount, &r.Reason, &r.Status, &r.IsStockUpdated, &r.IsLedgerPosted, &r.LedgerBatchID,
		&r.CreatedBy, &r.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("purchase return %d not found", returnID)
	}
	if err != nil {
		return nil, dbError(err, "failed to fetch purchase return %d", returnID)
	}
	return &r, nil
}

func fetchReturnItems(ctx context.Context, q pgxRowQuerier, returnID int, forUpdate bool) ([]PurchaseReturnItem, error) {
	query := `
		SELECT id, return_id, purchase_item_id, variant_id, return_quantity, rate, amount, is_stock_updated,
			stock_ledger_id
		FROM purchase_return_items
		WHERE return_id = $1
		ORDER BY id`
	if forUpdate {
		query += " FOR UPDATE"
	}

	rows, err := q.Query(ctx, query, returnID)
	if err != nil {
		return nil, dbError(err, "failed to fetch items of purchase return %d", returnID)
	}
	defer rows.Close()

	var items []PurchaseReturnItem
	for rows.Next() {
		var it PurchaseReturnItem
		if err := rows.Scan(&it.ID, &it.ReturnID, &it.PurchaseItemID, &it.VariantID, &it.ReturnQuantity, &it.Rate,
			&it.Amount, &it.IsStockUpdated, &it.StockLedgerID); err != nil {
			return nil, dbError(err, "failed to scan return item")
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "error iterating return items")
	}
	return items, nil
}
