// Package worker runs background jobs that complete deferred postings.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"garments-erp/internal/config"
	"garments-erp/internal/core"
	ierr "garments-erp/internal/errors"
	"garments-erp/internal/logger"
)

const actor = "reconciler"

// BillPoster is the part of the billing workflow the reconciler drives.
type BillPoster interface {
	ListUnposted(ctx context.Context, limit, maxAttempts int) ([]core.UnpostedBill, error)
	TryPostBill(ctx context.Context, billID int, actor string) (*core.SalesBill, error)
	RecordPostingFailure(ctx context.Context, billID int, cause error)
}

// Summary counts the outcome of one reconciliation round.
type Summary struct {
	Claimed       int `json:"claimed"`
	Posted        int `json:"posted"`
	AlreadyPosted int `json:"already_posted"`
	Failed        int `json:"failed"`
}

// Reconciler posts confirmed bills whose ledger or stock posting is missing.
type Reconciler struct {
	bills BillPoster
	cfg   config.ReconcilerConfig
	log   zerolog.Logger
}

func NewReconciler(bills BillPoster, cfg config.ReconcilerConfig) *Reconciler {
	return &Reconciler{
		bills: bills,
		cfg:   cfg,
		log:   logger.WithComponent("reconciler"),
	}
}

// Run reconciles every Interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	r.log.Info().
		Dur("interval", r.cfg.Interval).
		Int("batch_size", r.cfg.BatchSize).
		Int("concurrency", r.cfg.Concurrency).
		Msg("reconciler started")

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.log.Error().Err(err).Msg("reconciliation round failed")
		}
		select {
		case <-ctx.Done():
			r.log.Info().Msg("reconciler stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce claims one batch of unposted bills and posts them on a bounded pool.
func (r *Reconciler) RunOnce(ctx context.Context) (Summary, error) {
	var sum Summary

	pending, err := r.bills.ListUnposted(ctx, r.cfg.BatchSize, r.cfg.MaxAttempts)
	if err != nil {
		return sum, err
	}
	sum.Claimed = len(pending)
	if len(pending) == 0 {
		return sum, nil
	}

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(r.cfg.Concurrency)
	for _, bill := range pending {
		p.Go(func() {
			already, err := r.post(ctx, bill)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				sum.Failed++
			case already:
				sum.AlreadyPosted++
			default:
				sum.Posted++
			}
		})
	}
	p.Wait()

	r.log.Info().
		Int("claimed", sum.Claimed).
		Int("posted", sum.Posted).
		Int("already_posted", sum.AlreadyPosted).
		Int("failed", sum.Failed).
		Msg("reconciliation round complete")
	return sum, nil
}

// post retries transient failures of one bill. Business errors stop the
// retry at once. A round that ends in failure counts as a single attempt.
func (r *Reconciler) post(ctx context.Context, bill core.UnpostedBill) (already bool, err error) {
	op := func() error {
		_, err := r.bills.TryPostBill(ctx, bill.ID, actor)
		switch {
		case err == nil:
			return nil
		case ierr.IsAlreadyPosted(err):
			already = true
			return nil
		case ierr.IsBusiness(err):
			return backoff.Permanent(err)
		}
		return err
	}

	err = backoff.Retry(op, backoff.WithContext(r.newBackOff(), ctx))
	if err != nil {
		r.bills.RecordPostingFailure(ctx, bill.ID, err)
		r.log.Error().
			Err(err).
			Int("bill_id", bill.ID).
			Str("bill_number", bill.Number).
			Int("attempts", bill.Attempts+1).
			Str("kind", ierr.KindOf(err)).
			Msg("bill posting failed")
	}
	return already, err
}

func (r *Reconciler) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.MaxElapsed / 10
	b.MaxElapsedTime = r.cfg.MaxElapsed
	return b
}
