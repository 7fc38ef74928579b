package core

import (
	"context"
	"errors"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	ierr "garments-erp/internal/errors"
	"garments-erp/internal/logger"
)

// StockService records quantity movements per product variant and keeps the
// cached running balance in stock_items in step with stock_ledger.
type StockService interface {
	// Move records one movement in its own transaction. An adjustment without
	// a reference id is numbered from the ADJ series.
	Move(ctx context.Context, m Movement) (*StockLedgerEntry, error)
	// MoveTx records one movement inside the caller's transaction. The variant's
	// stock_items row stays locked until that transaction ends.
	MoveTx(ctx context.Context, tx pgx.Tx, m Movement) (*StockLedgerEntry, error)

	Balance(ctx context.Context, variantID int) (*StockLevel, error)
	// Movements lists a variant's ledger rows oldest first.
	Movements(ctx context.Context, variantID int) ([]StockLedgerEntry, error)
	// Recompute rebuilds the running balance from the ledger and compares it
	// with every stored balance_after and with the cached balance.
	Recompute(ctx context.Context, variantID int) (StockCheck, error)
}

type stockService struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func NewStockService(pool *pgxpool.Pool) StockService {
	return &stockService{pool: pool, log: logger.WithComponent("stock")}
}

// ── Movements ─────────────────────────────────────────────────────────────────

func (s *stockService) Move(ctx context.Context, m Movement) (*StockLedgerEntry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, dbError(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	entry, err := s.MoveTx(ctx, tx, m)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, dbError(err, "failed to commit transaction")
	}
	return entry, nil
}

func (s *stockService) MoveTx(ctx context.Context, tx pgx.Tx, m Movement) (*StockLedgerEntry, error) {
	if !m.Quantity.IsPositive() {
		return nil, invalidInput("stock movement quantity must be greater than 0, got %s", m.Quantity)
	}
	if m.Type != MovementIn && m.Type != MovementOut {
		return nil, invalidInput("unknown movement type %q", m.Type)
	}
	if m.Date.IsZero() {
		return nil, invalidInput("stock movement must have a date")
	}
	m.CreatedBy = actorOrSystem(m.CreatedBy)
	if m.Reference.Type == RefAdjustment && m.Reference.ID == "" {
		number, err := nextSequenceTx(ctx, tx, SeriesAdjustment, m.Date)
		if err != nil {
			return nil, err
		}
		m.Reference.ID = number
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM product_variants WHERE id = $1)`, m.VariantID).Scan(&exists); err != nil {
		return nil, dbError(err, "failed to check variant %d", m.VariantID)
	}
	if !exists {
		return nil, notFound("product variant %d not found", m.VariantID)
	}

	// Create-or-lock the cached balance row.
	var current decimal.Decimal
	err := tx.QueryRow(ctx, `
		INSERT INTO stock_items (variant_id, balance) VALUES ($1, 0)
		ON CONFLICT (variant_id) DO UPDATE SET variant_id = EXCLUDED.variant_id
		RETURNING balance
	`, m.VariantID).Scan(&current)
	if err != nil {
		return nil, dbError(err, "failed to lock stock for variant %d", m.VariantID)
	}

	entry := &StockLedgerEntry{
		VariantID:       m.VariantID,
		TransactionDate: m.Date,
		MovementType:    m.Type,
		TransactionType: m.TransactionType,
		QtyIn:           decimal.Zero,
		QtyOut:          decimal.Zero,
		Rate:            round2(m.UnitPrice),
		ReferenceType:   m.Reference.Type,
		ReferenceID:     m.Reference.ID,
		ReferenceLineID: m.Reference.LineID,
		CreatedBy:       m.CreatedBy,
	}
	if m.Remarks != "" {
		entry.Remarks = &m.Remarks
	}
	if m.Type == MovementIn {
		entry.QtyIn = m.Quantity
	} else {
		entry.QtyOut = m.Quantity
	}
	entry.BalanceAfter = current.Add(entry.NetQuantity())

	if m.Type == MovementOut && m.Enforce && entry.BalanceAfter.IsNegative() {
		return nil, ierr.NewErrorf("insufficient stock for variant %d: available %s, requested %s",
			m.VariantID, current, m.Quantity).
			WithHintf("Insufficient stock for variant %d: available %s, requested %s", m.VariantID, current, m.Quantity).
			WithReportableDetails(map[string]any{
				"variant_id": m.VariantID,
				"available":  current.String(),
				"requested":  m.Quantity.String(),
			}).
			Mark(ierr.ErrInsufficientStock)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO stock_ledger (variant_id, transaction_date, movement_type, transaction_type, qty_in, qty_out,
			rate, balance_after, reference_type, reference_id, reference_line_id, remarks, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at
	`, entry.VariantID, entry.TransactionDate, entry.MovementType, entry.TransactionType, entry.QtyIn, entry.QtyOut,
		entry.Rate, entry.BalanceAfter, entry.ReferenceType, entry.ReferenceID, entry.ReferenceLineID, entry.Remarks,
		entry.CreatedBy).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return nil, dbError(err, "failed to insert stock ledger row")
	}

	if _, err := tx.Exec(ctx, `UPDATE stock_items SET balance = $2, updated_at = NOW() WHERE variant_id = $1`,
		m.VariantID, entry.BalanceAfter); err != nil {
		return nil, dbError(err, "failed to update stock balance for variant %d", m.VariantID)
	}

	s.log.Debug().
		Int("variant_id", m.VariantID).
		Str("movement", string(m.Type)).
		Str("quantity", m.Quantity.String()).
		Str("balance_after", entry.BalanceAfter.String()).
		Str("reference", string(m.Reference.Type)+":"+m.Reference.ID).
		Msg("stock moved")
	return entry, nil
}

// inVariantOrder sorts items by variant so that every posting locks
// stock_items rows in the same order. Line order is kept within a variant.
func inVariantOrder[T any](items []T, variantID func(T) int) []T {
	sort.SliceStable(items, func(i, j int) bool { return variantID(items[i]) < variantID(items[j]) })
	return items
}

// ── Queries ───────────────────────────────────────────────────────────────────

func (s *stockService) Balance(ctx context.Context, variantID int) (*StockLevel, error) {
	var sl StockLevel
	err := s.pool.QueryRow(ctx, `
		SELECT v.id, v.sku_code, v.product_name, COALESCE(si.balance, 0)
		FROM product_variants v
		LEFT JOIN stock_items si ON si.variant_id = v.id
		WHERE v.id = $1
	`, variantID).Scan(&sl.VariantID, &sl.SKUCode, &sl.ProductName, &sl.Balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("product variant %d not found", variantID)
	}
	if err != nil {
		return nil, dbError(err, "failed to read stock for variant %d", variantID)
	}
	return &sl, nil
}

func (s *stockService) Movements(ctx context.Context, variantID int) ([]StockLedgerEntry, error) {
	if _, err := s.Balance(ctx, variantID); err != nil {
		return nil, err
	}
	return listMovements(ctx, s.pool, variantID)
}

func listMovements(ctx context.Context, q pgxRowQuerier, variantID int) ([]StockLedgerEntry, error) {
	rows, err := q.Query(ctx, `
		SELECT id, variant_id, transaction_date, movement_type, transaction_type, qty_in, qty_out, rate,
			balance_after, reference_type, reference_id, reference_line_id, remarks, created_by, created_at
		FROM stock_ledger
		WHERE variant_id = $1
		ORDER BY id
	`, variantID)
	if err != nil {
		return nil, dbError(err, "failed to query stock ledger for variant %d", variantID)
	}
	defer rows.Close()

	var entries []StockLedgerEntry
	for rows.Next() {
		var e StockLedgerEntry
		if err := rows.Scan(&e.ID, &e.VariantID, &e.TransactionDate, &e.MovementType, &e.TransactionType,
			&e.QtyIn, &e.QtyOut, &e.Rate, &e.BalanceAfter, &e.ReferenceType, &e.ReferenceID, &e.ReferenceLineID,
			&e.Remarks, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, dbError(err, "failed to scan stock ledger row")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "error iterating stock ledger")
	}
	return entries, nil
}

func (s *stockService) Recompute(ctx context.Context, variantID int) (StockCheck, error) {
	check := StockCheck{VariantID: variantID, ChainOK: true}

	level, err := s.Balance(ctx, variantID)
	if err != nil {
		return check, err
	}
	check.Cached = level.Balance

	entries, err := listMovements(ctx, s.pool, variantID)
	if err != nil {
		return check, err
	}
	check.EntriesCount = len(entries)

	running := decimal.Zero
	for _, e := range entries {
		running = running.Add(e.NetQuantity())
		if check.ChainOK && !running.Equal(e.BalanceAfter) {
			check.ChainOK = false
			id := e.ID
			check.BrokenAtID = &id
		}
	}
	check.Recomputed = running

	if !check.Consistent() {
		s.log.Error().
			Int("variant_id", variantID).
			Str("cached", check.Cached.String()).
			Str("recomputed", check.Recomputed.String()).
			Bool("chain_ok", check.ChainOK).
			Msg("stock balance drift")
	}
	return check, nil
}
