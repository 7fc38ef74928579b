package core

import (
	"context"
	"fmt"
	"time"
)

// Document series numbered per day, e.g. PUR202404010003.
const (
	SeriesBatch           = "BATCH"
	SeriesPurchase        = "PUR"
	SeriesPurchaseReturn  = "PRN"
	SeriesSupplierPayment = "SPAY"
	SeriesJournal         = "JNL"
	SeriesAdjustment      = "ADJ"
)

// nextSequenceTx issues the next gapless number for series on date. The upsert
// holds the sequence row lock until the caller's transaction ends, so a
// rollback releases the number unused.
func nextSequenceTx(ctx context.Context, q pgxQuerier, series string, date time.Time) (string, error) {
	period := date.Format("20060102")
	var n int
	err := q.QueryRow(ctx, `
		INSERT INTO document_sequences (series, period, last_number)
		VALUES ($1, $2, 1)
		ON CONFLICT (series, period)
		DO UPDATE SET last_number = document_sequences.last_number + 1
		RETURNING last_number
	`, series, period).Scan(&n)
	if err != nil {
		return "", dbError(err, "failed to generate %s sequence number", series)
	}
	return fmt.Sprintf("%s%s%04d", series, period, n), nil
}
