package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	ierr "garments-erp/internal/errors"
	"garments-erp/internal/logger"
)

type supplierPaymentService struct {
	pool   *pgxpool.Pool
	ledger LedgerService
	rules  RuleEngine
	log    zerolog.Logger
}

func NewSupplierPaymentService(pool *pgxpool.Pool, ledger LedgerService, rules RuleEngine) SupplierPaymentService {
	return &supplierPaymentService{
		pool:   pool,
		ledger: ledger,
		rules:  rules,
		log:    logger.WithComponent("supplier_payment"),
	}
}

func (s *supplierPaymentService) OutstandingPurchases(ctx context.Context, supplierID int) ([]OutstandingPurchase, error) {
	if err := checkSupplier(ctx, s.pool, supplierID); err != nil {
		return nil, err
	}
	all, err := queryOutstanding(ctx, s.pool, supplierID, nil)
	if err != nil {
		return nil, err
	}
	return lo.Filter(all, func(o OutstandingPurchase, _ int) bool { return o.Outstanding.IsPositive() }), nil
}

// queryOutstanding computes what is still owed on a supplier's posted credit
// purchases: total less the part paid at purchase time, earlier allocations
// and the payable part of posted returns. A nil ids selects every purchase.
func queryOutstanding(ctx context.Context, q pgxRowQuerier, supplierID int, ids []int) ([]OutstandingPurchase, error) {
	rows, err := q.Query(ctx, `
		SELECT p.id, p.purchase_number, p.purchase_date, p.total_amount,
			p.amount_paid + COALESCE((
				SELECT SUM(a.amount) FROM supplier_payment_allocations a WHERE a.purchase_id = p.id
			), 0),
			COALESCE((
				SELECT SUM(r.total_amount - r.refund_amount) FROM purchase_returns r
				WHERE r.purchase_id = p.id AND r.is_ledger_posted
			), 0)
		FROM purchases p
		WHERE p.supplier_id = $1
		  AND p.purchase_type = $2
		  AND p.is_ledger_posted
		  AND p.status <> $3
		  AND ($4::int[] IS NULL OR p.id = ANY($4))
		ORDER BY p.purchase_date, p.id
	`, supplierID, PurchaseCredit, DocCancelled, ids)
	if err != nil {
		return nil, dbError(err, "failed to query outstanding purchases of supplier %d", supplierID)
	}
	defer rows.Close()

	var out []OutstandingPurchase
	for rows.Next() {
		var o OutstandingPurchase
		if err := rows.Scan(&o.PurchaseID, &o.PurchaseNumber, &o.PurchaseDate, &o.TotalAmount, &o.Paid, &o.Returned); err != nil {
			return nil, dbError(err, "failed to scan outstanding purchase")
		}
		o.Outstanding = o.TotalAmount.Sub(o.Paid).Sub(o.Returned)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "error iterating outstanding purchases")
	}
	return out, nil
}

func (s *supplierPaymentService) PaySupplier(ctx context.Context, in SupplierPaymentInput) (p *SupplierPayment, err error) {
	ctx, span := startSpan(ctx, "SupplierPayment.Pay", attribute.Int("supplier_id", in.SupplierID))
	defer func() { endSpan(span, err) }()

	if err := validatePaymentInput(&in); err != nil {
		return nil, err
	}

	var paymentID int
	err = inTx(ctx, s.pool, func(tx pgx.Tx) error {
		var supplierName string
		if err := tx.QueryRow(ctx, "SELECT name FROM suppliers WHERE id = $1 AND is_active", in.SupplierID).
			Scan(&supplierName); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return notFound("supplier %d not found", in.SupplierID)
			}
			return dbError(err, "failed to resolve supplier %d", in.SupplierID)
		}

		numbers, err := s.checkAllocationsTx(ctx, tx, in)
		if err != nil {
			return err
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
		payable, err := payableAccount(ctx, tx, in.SupplierID)
		if err != nil {
			return err
		}

		number, err := nextSequenceTx(ctx, tx, SeriesSupplierPayment, in.PaymentDate)
		if err != nil {
			return err
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO supplier_payments (payment_number, supplier_id, payment_date, payment_type, payment_method,
				amount, bank_account_code, cheque_number, cheque_date, transaction_reference, remarks, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id
		`, number, in.SupplierID, in.PaymentDate, in.PaymentType, in.Method, in.Amount,
			lo.EmptyableToPtr(strings.TrimSpace(in.BankAccountCode)), lo.EmptyableToPtr(in.ChequeNumber), in.ChequeDate,
			lo.EmptyableToPtr(in.Reference), lo.EmptyableToPtr(in.Remarks), in.CreatedBy).Scan(&paymentID)
		if err != nil {
			return dbError(err, "failed to insert supplier payment")
		}
		for _, a := range in.Allocations {
			if _, err := tx.Exec(ctx, `
				INSERT INTO supplier_payment_allocations (payment_id, purchase_id, amount) VALUES ($1, $2, $3)
			`, paymentID, a.PurchaseID, a.Amount); err != nil {
				return dbError(err, "failed to allocate payment to purchase %d", a.PurchaseID)
			}
		}

		// Ledger: DR supplier payable, CR cash/bank
		desc := fmt.Sprintf("Payment %s to %s", number, supplierName)
		if len(numbers) > 0 {
			desc += " against " + strings.Join(numbers, ", ")
		}
		batch, err := s.ledger.PostTx(ctx, tx, PostingRequest{
			Date:          in.PaymentDate,
			Description:   desc,
			ReferenceType: RefSupplierPayment,
			ReferenceID:   refID(paymentID),
			VoucherType:   VoucherPayment,
			VoucherNumber: number,
			Party:         &Party{Type: "SUPPLIER", ID: refID(in.SupplierID), Name: supplierName},
			CreatedBy:     in.CreatedBy,
			Entries: []EntryLine{
				Debit(payable, in.Amount, desc),
				Credit(settlement, in.Amount, desc),
			},
		})
		if err != nil {
			return fmt.Errorf("ledger posting for supplier payment %s failed: %w", number, err)
		}
		if _, err := tx.Exec(ctx, `UPDATE supplier_payments SET ledger_batch_id = $2 WHERE id = $1`,
			paymentID, batch.ID); err != nil {
			return dbError(err, "failed to link supplier payment batch")
		}

		s.log.Info().
			Str("payment_number", number).
			Int("supplier_id", in.SupplierID).
			Str("amount", in.Amount.StringFixed(2)).
			Int("allocations", len(in.Allocations)).
			Msg("supplier payment recorded")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetSupplierPayment(ctx, paymentID)
}

func validatePaymentInput(in *SupplierPaymentInput) error {
	in.Allocations = append([]AllocationInput(nil), in.Allocations...)
	if !in.Method.Valid() {
		return invalidInput("unknown payment method %q", in.Method)
	}
	if in.PaymentType == "" {
		in.PaymentType = SupplierOnAccount
		if len(in.Allocations) > 0 {
			in.PaymentType = SupplierAgainstBill
		}
	}
	if !in.PaymentType.Valid() {
		return invalidInput("unknown supplier payment type %q", in.PaymentType)
	}
	if in.PaymentType == SupplierAgainstBill && len(in.Allocations) == 0 {
		return invalidInput("a payment against bills must allocate to at least one purchase")
	}
	if in.PaymentType != SupplierAgainstBill && len(in.Allocations) > 0 {
		return invalidInput("%s payments cannot be allocated to purchases", in.PaymentType)
	}

	seen := make(map[int]bool, len(in.Allocations))
	allocated := decimal.Zero
	for i := range in.Allocations {
		a := &in.Allocations[i]
		if !a.Amount.IsPositive() {
			return invalidInput("allocation %d: amount must be greater than 0", i+1)
		}
		if seen[a.PurchaseID] {
			return invalidInput("allocation %d: purchase %d is allocated twice", i+1, a.PurchaseID)
		}
		seen[a.PurchaseID] = true
		a.Amount = round2(a.Amount)
		allocated = allocated.Add(a.Amount)
	}

	in.Amount = round2(in.Amount)
	if len(in.Allocations) > 0 && in.Amount.IsZero() {
		in.Amount = allocated
	}
	if !in.Amount.IsPositive() {
		return invalidInput("payment amount must be greater than 0, got %s", in.Amount)
	}
	if len(in.Allocations) > 0 && !in.Amount.Equal(allocated) {
		return invalidInput("payment amount %s does not match allocated total %s",
			in.Amount.StringFixed(2), allocated.StringFixed(2))
	}
	in.PaymentDate = dateOrToday(in.PaymentDate)
	in.CreatedBy = actorOrSystem(in.CreatedBy)
	return nil
}

// checkAllocationsTx locks the allocated purchases in id order and checks each
// allocation against what is still owed. It returns the purchase numbers.
func (s *supplierPaymentService) checkAllocationsTx(ctx context.Context, tx pgx.Tx, in SupplierPaymentInput) ([]string, error) {
	if len(in.Allocations) == 0 {
		return nil, nil
	}
	ids := lo.Map(in.Allocations, func(a AllocationInput, _ int) int { return a.PurchaseID })
	sort.Ints(ids)

	rows, err := tx.Query(ctx, `
		SELECT id, supplier_id FROM purchases WHERE id = ANY($1) ORDER BY id FOR UPDATE
	`, ids)
	if err != nil {
		return nil, dbError(err, "failed to lock allocated purchases")
	}
	owner := make(map[int]int, len(ids))
	for rows.Next() {
		var id, supplier int
		if err := rows.Scan(&id, &supplier); err != nil {
			rows.Close()
			return nil, dbError(err, "failed to scan allocated purchase")
		}
		owner[id] = supplier
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "error iterating allocated purchases")
	}

	open, err := queryOutstanding(ctx, tx, in.SupplierID, ids)
	if err != nil {
		return nil, err
	}
	byID := lo.KeyBy(open, func(o OutstandingPurchase) int { return o.PurchaseID })

	numbers := make([]string, 0, len(in.Allocations))
	for i, a := range in.Allocations {
		supplier, ok := owner[a.PurchaseID]
		if !ok || supplier != in.SupplierID {
			return nil, notFound("allocation %d: purchase %d not found for supplier %d", i+1, a.PurchaseID, in.SupplierID)
		}
		o, ok := byID[a.PurchaseID]
		if !ok {
			return nil, badTransition("allocation %d: purchase %d is not a posted credit purchase", i+1, a.PurchaseID)
		}
		if a.Amount.GreaterThan(o.Outstanding) {
			return nil, ierr.NewErrorf("allocation %s exceeds outstanding %s on purchase %s",
				a.Amount.StringFixed(2), o.Outstanding.StringFixed(2), o.PurchaseNumber).
				WithHintf("Payment of %s exceeds the outstanding balance of %s on %s",
					a.Amount.StringFixed(2), o.Outstanding.StringFixed(2), o.PurchaseNumber).
				WithReportableDetails(map[string]any{
					"purchase_id": a.PurchaseID,
					"outstanding": o.Outstanding.StringFixed(2),
				}).
				Mark(ierr.ErrInvalidInput)
		}
		numbers = append(numbers, o.PurchaseNumber)
	}
	return numbers, nil
}

func (s *supplierPaymentService) GetSupplierPayment(ctx context.Context, paymentID int) (*SupplierPayment, error) {
	var p SupplierPayment
	err := s.pool.QueryRow(ctx, `
		SELECT sp.id, sp.payment_number, sp.supplier_id, s.name, sp.payment_date, sp.payment_type, sp.payment_method,
			sp.amount, sp.bank_account_code, sp.cheque_number, sp.cheque_date, sp.transaction_reference, sp.remarks,
			sp.ledger_batch_id, sp.created_by, sp.created_at
		FROM supplier_payments sp
		JOIN suppliers s ON s.id = sp.supplier_id
		WHERE sp.id = $1
	`, paymentID).Scan(&p.ID, &p.PaymentNumber, &p.SupplierID, &p.SupplierName, &p.PaymentDate, &p.PaymentType,
		&p.PaymentMethod, &p.Amount, &p.BankAccountCode, &p.ChequeNumber, &p.ChequeDate, &p.Reference, &p.Remarks,
		&p.LedgerBatchID, &p.CreatedBy, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("supplier payment %d not found", paymentID)
	}
	if err != nil {
		return nil, dbError(err, "failed to fetch supplier payment %d", paymentID)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.payment_id, a.purchase_id, p.purchase_number, a.amount
		FROM supplier_payment_allocations a
		JOIN purchases p ON p.id = a.purchase_id
		WHERE a.payment_id = $1
		ORDER BY a.id
	`, paymentID)
	if err != nil {
		return nil, dbError(err, "failed to fetch allocations of supplier payment %d", paymentID)
	}
	defer rows.Close()
	for rows.Next() {
		var a SupplierPaymentAllocation
		if err := rows.Scan(&a.ID, &a.PaymentID, &a.PurchaseID, &a.PurchaseNumber, &a.Amount); err != nil {
			return nil, dbError(err, "failed to scan allocation")
		}
		p.Allocations = append(p.Allocations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "error iterating allocations")
	}
	return &p, nil
}

