package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	ierr "garments-erp/internal/errors"
	"garments-erp/internal/logger"
)

type LedgerService interface {
	// Post writes a balanced batch in its own transaction. A journal without a
	// reference id is numbered from the JNL series.
	Post(ctx context.Context, req PostingRequest) (*TransactionBatch, error)
	// PostTx writes a balanced batch inside the caller's transaction. A second
	// posting for the same (reference type, reference id) fails with AlreadyPosted.
	PostTx(ctx context.Context, tx pgx.Tx, req PostingRequest) (*TransactionBatch, error)
	Reverse(ctx context.Context, batchID int, reason, createdBy string) (*TransactionBatch, error)
	ReverseTx(ctx context.Context, tx pgx.Tx, batchID int, reason, createdBy string) (*TransactionBatch, error)
	GetBatch(ctx context.Context, batchID int) (*TransactionBatch, error)
	AccountBalances(ctx context.Context) ([]AccountBalance, error)
	VerifyAccountBalance(ctx context.Context, code string) (AccountCheck, error)
}

type Ledger struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool, log: logger.WithComponent("ledger")}
}

func (l *Ledger) Post(ctx context.Context, req PostingRequest) (*TransactionBatch, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, dbError(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	batch, err := l.PostTx(ctx, tx, req)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, dbError(err, "failed to commit transaction")
	}
	return batch, nil
}

func (l *Ledger) PostTx(ctx context.Context, tx pgx.Tx, req PostingRequest) (*TransactionBatch, error) {
	return l.post(ctx, tx, req, nil)
}

func (l *Ledger) post(ctx context.Context, tx pgx.Tx, req PostingRequest, reverses *int) (*TransactionBatch, error) {
	// 1. Structural validation, before anything is written
	req.Normalize()
	req.CreatedBy = actorOrSystem(req.CreatedBy)
	if req.ReferenceType == RefJournal && req.ReferenceID == "" && !req.Date.IsZero() {
		number, err := nextSequenceTx(ctx, tx, SeriesJournal, req.Date)
		if err != nil {
			return nil, err
		}
		req.ReferenceID = number
		if req.VoucherNumber == "" {
			req.VoucherNumber = number
		}
	}
	if err := req.Validate(); err != nil {
		if ierr.IsUnbalanced(err) {
			l.log.Error().Err(err).
				Str("reference_type", string(req.ReferenceType)).
				Str("reference_id", req.ReferenceID).
				Msg("refusing unbalanced posting")
		}
		return nil, err
	}
	debit, credit := req.Totals()

	// 2. Claim the (reference_type, reference_id) slot
	batchNumber, err := nextSequenceTx(ctx, tx, SeriesBatch, req.Date)
	if err != nil {
		return nil, err
	}

	batch := &TransactionBatch{
		BatchNumber:     batchNumber,
		BatchDate:       req.Date,
		Description:     req.Description,
		ReferenceType:   req.ReferenceType,
		ReferenceID:     req.ReferenceID,
		TotalDebit:      debit,
		TotalCredit:     credit,
		IsBalanced:      true,
		IsPosted:        true,
		ReversesBatchID: reverses,
		CreatedBy:       req.CreatedBy,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO transaction_batches (batch_number, batch_date, description, reference_type, reference_id,
			total_debit, total_credit, is_balanced, is_posted, reverses_batch_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, TRUE, $8, $9)
		ON CONFLICT (reference_type, reference_id) DO NOTHING
		RETURNING id, created_at
	`, batchNumber, req.Date, req.Description, req.ReferenceType, req.ReferenceID,
		debit, credit, reverses, req.CreatedBy).Scan(&batch.ID, &batch.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fail(ierr.ErrAlreadyPosted, "%s %s is already posted to the ledger", req.ReferenceType, req.ReferenceID)
	}
	if err != nil {
		return nil, dbError(err, "failed to insert transaction batch")
	}

	// 3. Lock every touched account in code order
	codes := lo.Uniq(lo.Map(req.Entries, func(e EntryLine, _ int) string { return e.AccountCode }))
	sort.Strings(codes)
	if err := lockAccounts(ctx, tx, codes); err != nil {
		return nil, err
	}

	// 4. Insert entries
	for i, e := range req.Entries {
		entry := LedgerEntry{
			BatchID:           batch.ID,
			TransactionNumber: fmt.Sprintf("%s%s%03d", req.VoucherType, req.VoucherNumber, i+1),
			TransactionDate:   req.Date,
			AccountCode:       e.AccountCode,
			Description:       e.Description,
			ReferenceType:     req.ReferenceType,
			ReferenceID:       req.ReferenceID,
			DebitAmount:       e.Debit,
			CreditAmount:      e.Credit,
			VoucherType:       req.VoucherType,
			VoucherNumber:     req.VoucherNumber,
			IsPosted:          true,
			CreatedBy:         req.CreatedBy,
		}
		if req.Party != nil {
			entry.PartyType = lo.EmptyableToPtr(req.Party.Type)
			entry.PartyID = lo.EmptyableToPtr(req.Party.ID)
			entry.PartyName = lo.EmptyableToPtr(req.Party.Name)
		}

		err := tx.QueryRow(ctx, `
			INSERT INTO ledger_entries (batch_id, transaction_number, transaction_date, account_code, description,
				reference_type, reference_id, debit_amount, credit_amount, voucher_type, voucher_number,
				party_type, party_id, party_name, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			RETURNING id
		`, entry.BatchID, entry.TransactionNumber, entry.TransactionDate, entry.AccountCode, entry.Description,
			entry.ReferenceType, entry.ReferenceID, entry.DebitAmount, entry.CreditAmount, entry.VoucherType,
			entry.VoucherNumber, entry.PartyType, entry.PartyID, entry.PartyName, entry.CreatedBy).Scan(&entry.ID)
		if err != nil {
			return nil, dbError(err, "failed to insert ledger entry for %s", e.AccountCode)
		}
		batch.Entries = append(batch.Entries, entry)
	}

	// 5. Apply signed deltas to the cached balances
	deltas := make(map[string]decimal.Decimal, len(codes))
	for _, e := range req.Entries {
		deltas[e.AccountCode] = deltas[e.AccountCode].Add(e.Debit).Sub(e.Credit)
	}
	for _, code := range codes {
		if _, err := tx.Exec(ctx, `UPDATE accounts SET balance = balance + $2, updated_at = NOW() WHERE code = $1`,
			code, deltas[code]); err != nil {
			return nil, dbError(err, "failed to update balance of %s", code)
		}
	}

	l.log.Debug().
		Str("batch_number", batch.BatchNumber).
		Str("reference_type", string(req.ReferenceType)).
		Str("reference_id", req.ReferenceID).
		Str("amount", debit.StringFixed(2)).
		Msg("ledger batch posted")
	return batch, nil
}

// lockAccounts takes row locks on codes, which must be sorted, and checks
// that each exists and is active.
func lockAccounts(ctx context.Context, tx pgx.Tx, codes []string) error {
	rows, err := tx.Query(ctx, `
		SELECT code, is_active FROM accounts
		WHERE code = ANY($1)
		ORDER BY code
		FOR UPDATE
	`, codes)
	if err != nil {
		return dbError(err, "failed to lock accounts")
	}
	defer rows.Close()

	active := make(map[string]bool, len(codes))
	for rows.Next() {
		var code string
		var isActive bool
		if err := rows.Scan(&code, &isActive); err != nil {
			return dbError(err, "failed to scan account")
		}
		active[code] = isActive
	}
	if err := rows.Err(); err != nil {
		return dbError(err, "error iterating accounts")
	}

	for _, code := range codes {
		isActive, ok := active[code]
		if !ok {
			return notFound("account %s not found", code)
		}
		if !isActive {
			return notFound("account %s is inactive", code)
		}
	}
	return nil
}

func (l *Ledger) Reverse(ctx context.Context, batchID int, reason, createdBy string) (*TransactionBatch, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, dbError(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	batch, err := l.ReverseTx(ctx, tx, batchID, reason, createdBy)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, dbError(err, "failed to commit reversal")
	}
	return batch, nil
}

// ReverseTx posts a mirror of batchID with debits and credits swapped. The
// reversal is keyed on the original reference, so a batch is reversed at most once.
func (l *Ledger) ReverseTx(ctx context.Context, tx pgx.Tx, batchID int, reason, createdBy string) (*TransactionBatch, error) {
	orig, err := getBatch(ctx, tx, batchID, true)
	if err != nil {
		return nil, err
	}
	if orig.ReversesBatchID != nil {
		return nil, fail(ierr.ErrInvalidEntry, "batch %s is itself a reversal", orig.BatchNumber)
	}

	description := fmt.Sprintf("Reversal of %s: %s", orig.BatchNumber, orig.Description)
	if reason != "" {
		description = fmt.Sprintf("Reversal of %s (%s): %s", orig.BatchNumber, reason, orig.Description)
	}

	req := PostingRequest{
		Date:          orig.BatchDate,
		Description:   description,
		ReferenceType: orig.ReferenceType.Reversal(),
		ReferenceID:   orig.ReferenceID,
		CreatedBy:     createdBy,
	}
	for _, e := range orig.Entries {
		req.VoucherType = e.VoucherType
		req.VoucherNumber = e.VoucherNumber + "R"
		if e.PartyType != nil && req.Party == nil {
			req.Party = &Party{Type: *e.PartyType, ID: lo.FromPtr(e.PartyID), Name: lo.FromPtr(e.PartyName)}
		}
		req.Entries = append(req.Entries, EntryLine{
			AccountCode: e.AccountCode,
			Debit:       e.CreditAmount,
			Credit:      e.DebitAmount,
			Description: "Reversal: " + e.Description,
		})
	}

	rev, err := l.post(ctx, tx, req, &orig.ID)
	if ierr.IsAlreadyPosted(err) {
		return nil, fail(ierr.ErrAlreadyPosted, "batch %s is already reversed", orig.BatchNumber)
	}
	if err != nil {
		return nil, err
	}

	l.log.Info().Str("batch_number", orig.BatchNumber).Str("reversal", rev.BatchNumber).Msg("ledger batch reversed")
	return rev, nil
}

func (l *Ledger) GetBatch(ctx context.Context, batchID int) (*TransactionBatch, error) {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, dbError(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)
	return getBatch(ctx, tx, batchID, false)
}

type batchQuerier interface {
	pgxQuerier
	pgxRowQuerier
}

func getBatch(ctx context.Context, q batchQuerier, batchID int, forUpdate bool) (*TransactionBatch, error) {
	query := `
		SELECT id, batch_number, batch_date, description, reference_type, reference_id,
			total_debit, total_credit, is_balanced, is_posted, reverses_batch_id, created_by, created_at
		FROM transaction_batches
		WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var b TransactionBatch
	err := q.QueryRow(ctx, query, batchID).Scan(
		&b.ID, &b.BatchNumber, &b.BatchDate, &b.Description, &b.ReferenceType, &b.ReferenceID,
		&b.TotalDebit, &b.TotalCredit, &b.IsBalanced, &b.IsPosted, &b.ReversesBatchID, &b.CreatedBy, &b.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("transaction batch %d not found", batchID)
	}
	if err != nil {
		return nil, dbError(err, "failed to fetch batch %d", batchID)
	}

	rows, err := q.Query(ctx, `
		SELECT id, batch_id, transaction_number, transaction_date, account_code, description,
			reference_type, reference_id, debit_amount, credit_amount, voucher_type, voucher_number,
			party_type, party_id, party_name, is_reconciled, is_posted, created_by
		FROM ledger_entries
		WHERE batch_id = $1
		ORDER BY id
	`, batchID)
	if err != nil {
		return nil, dbError(err, "failed to fetch entries for batch %d", batchID)
	}
	defer rows.Close()

	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.BatchID, &e.TransactionNumber, &e.TransactionDate, &e.AccountCode, &e.Description,
			&e.ReferenceType, &e.ReferenceID, &e.DebitAmount, &e.CreditAmount, &e.VoucherType, &e.VoucherNumber,
			&e.PartyType, &e.PartyID, &e.PartyName, &e.IsReconciled, &e.IsPosted, &e.CreatedBy); err != nil {
			return nil, dbError(err, "failed to scan ledger entry")
		}
		b.Entries = append(b.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "error iterating ledger entries")
	}
	return &b, nil
}

// AccountBalances returns the cached balance of every active account,
// signed as Σdebit − Σcredit.
func (l *Ledger) AccountBalances(ctx context.Context) ([]AccountBalance, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT code, name, type, balance
		FROM accounts
		WHERE is_active
		ORDER BY code
	`)
	if err != nil {
		return nil, dbError(err, "failed to query account balances")
	}
	defer rows.Close()

	var balances []AccountBalance
	for rows.Next() {
		var b AccountBalance
		if err := rows.Scan(&b.Code, &b.Name, &b.Type, &b.Balance); err != nil {
			return nil, dbError(err, "failed to scan account balance")
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// VerifyAccountBalance recomputes an account's balance from its entries.
func (l *Ledger) VerifyAccountBalance(ctx context.Context, code string) (AccountCheck, error) {
	check := AccountCheck{Code: code}
	err := l.pool.QueryRow(ctx, `
		SELECT a.balance, COALESCE(SUM(e.debit_amount - e.credit_amount), 0)
		FROM accounts a
		LEFT JOIN ledger_entries e ON e.account_code = a.code
		WHERE a.code = $1
		GROUP BY a.code, a.balance
	`, code).Scan(&check.Cached, &check.Recomputed)
	if errors.Is(err, pgx.ErrNoRows) {
		return check, notFound("account %s not found", code)
	}
	if err != nil {
		return check, dbError(err, "failed to verify account %s", code)
	}

	if !check.Consistent() {
		l.log.Error().Str("account", code).
			Str("cached", check.Cached.StringFixed(2)).
			Str("recomputed", check.Recomputed.StringFixed(2)).
			Msg("account balance drift")
	}
	return check, nil
}

func refID(id int) string {
	return strconv.Itoa(id)
}
