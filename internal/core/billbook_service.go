package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	ierr "garments-erp/internal/errors"
)

type BillBookService interface {
	GetBook(ctx context.Context, bookID int) (*BillBook, error)
	// PreviewNext returns the number the next reservation would issue without consuming it.
	PreviewNext(ctx context.Context, bookID int) (BillNumber, error)
	// ReserveNext consumes a number in its own transaction.
	ReserveNext(ctx context.Context, bookID int) (BillNumber, error)
	// ReserveNextTx consumes a number inside the caller's transaction, so a
	// rolled-back bill also rolls back the counter. The book row stays locked
	// until that transaction ends.
	ReserveNextTx(ctx context.Context, tx pgx.Tx, bookID int) (BillNumber, TaxMode, error)
}

type billBookService struct {
	pool *pgxpool.Pool
}

func NewBillBookService(pool *pgxpool.Pool) BillBookService {
	return &billBookService{pool: pool}
}

// FormatBillNumber renders a book prefix and number with at least four digits.
func FormatBillNumber(prefix string, n int) string {
	return fmt.Sprintf("%s%04d", prefix, n)
}

// nextValue is max(last + 1, starting).
func (b *BillBook) nextValue() int {
	return max(b.LastBillNo+1, b.StartingNumber)
}

func (s *billBookService) GetBook(ctx context.Context, bookID int) (*BillBook, error) {
	return getBook(ctx, s.pool, bookID, false)
}

func getBook(ctx context.Context, q pgxQuerier, bookID int, forUpdate bool) (*BillBook, error) {
	query := `
		SELECT id, book_name, book_code, prefix, tax_type, starting_number, last_bill_no, status
		FROM bill_books
		WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var b BillBook
	err := q.QueryRow(ctx, query, bookID).Scan(
		&b.ID, &b.BookName, &b.BookCode, &b.Prefix, &b.TaxType, &b.StartingNumber, &b.LastBillNo, &b.Status,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("bill book %d not found", bookID)
	}
	if err != nil {
		return nil, dbError(err, "failed to read bill book %d", bookID)
	}
	return &b, nil
}

func (s *billBookService) PreviewNext(ctx context.Context, bookID int) (BillNumber, error) {
	b, err := getBook(ctx, s.pool, bookID, false)
	if err != nil {
		return BillNumber{}, err
	}
	n := b.nextValue()
	return BillNumber{Full: FormatBillNumber(b.Prefix, n), Value: n}, nil
}

func (s *billBookService) ReserveNext(ctx context.Context, bookID int) (BillNumber, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return BillNumber{}, dbError(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	num, _, err := s.ReserveNextTx(ctx, tx, bookID)
	if err != nil {
		return BillNumber{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return BillNumber{}, dbError(err, "failed to commit transaction")
	}
	return num, nil
}

func (s *billBookService) ReserveNextTx(ctx context.Context, tx pgx.Tx, bookID int) (BillNumber, TaxMode, error) {
	b, err := getBook(ctx, tx, bookID, true)
	if err != nil {
		return BillNumber{}, "", err
	}

	if b.Status != BookActive {
		return BillNumber{}, "", ierr.NewErrorf("bill book %s is %s", b.BookCode, b.Status).
			WithHintf("Bill book %s is not active (status is %s)", b.BookCode, b.Status).
			WithReportableDetails(map[string]any{"bill_book_id": b.ID, "status": string(b.Status)}).
			Mark(ierr.ErrBookInactive)
	}

	var n int
	err = tx.QueryRow(ctx, `
		UPDATE bill_books
		SET last_bill_no = GREATEST(last_bill_no + 1, starting_number), updated_at = NOW()
		WHERE id = $1
		RETURNING last_bill_no
	`, bookID).Scan(&n)
	if err != nil {
		return BillNumber{}, "", dbError(err, "failed to advance bill book %d", bookID)
	}

	return BillNumber{Full: FormatBillNumber(b.Prefix, n), Value: n}, b.TaxType, nil
}
