package queue

import (
	"context"
	"errors"
	"time"

	"github.com/voltbridge/gridoracle/internal/logger"
	"github.com/voltbridge/gridoracle/internal/models"
)

// SubmitFunc receives a freshly claimed batch for settlement. It runs in the
// scheduler goroutine, outside any queue lock, so a slow confirmation delays
// the next flush but never blocks Enqueue. A non-nil error marks the cycle
// failed for operator notification purposes.
type SubmitFunc func(ctx context.Context, batch *models.Batch) error

// Notifier reports settlement cycle failures and recovery to operators.
type Notifier interface {
	SendError(err error) error
	SendRecovery(consecutiveFailures int) error
}

// Scheduler periodically checks the flush triggers and hands claimed batches
// to the settlement path. Batches settle sequentially in claim order, which
// preserves the no-reordering-across-batches guarantee.
type Scheduler struct {
	queue         *Queue
	sizeThreshold int
	maxAge        time.Duration
	interval      time.Duration
	submit        SubmitFunc
	notifier      Notifier
}

// NewScheduler creates a scheduler over the given queue. notifier may be nil.
func NewScheduler(q *Queue, sizeThreshold int, maxAge, interval time.Duration, submit SubmitFunc, notifier Notifier) *Scheduler {
	return &Scheduler{
		queue:         q,
		sizeThreshold: sizeThreshold,
		maxAge:        maxAge,
		interval:      interval,
		submit:        submit,
		notifier:      notifier,
	}
}

// Run drives the flush loop until the context is cancelled, then performs a
// final drain before returning. Callers must wait for Run to return on
// shutdown: the return is the guarantee that no settlement handoff is still
// in flight.
//
// Cycle failures are notified once per failure streak, with a recovery
// notification when cycles succeed again.
func (s *Scheduler) Run(ctx context.Context) {
	logger.Info("Starting batch scheduler (interval: %v, size_threshold: %d, max_age: %v)",
		s.interval, s.sizeThreshold, s.maxAge)

	consecutiveFailures := 0
	handleCycleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Settlement cycle failed: %v", err)
			if consecutiveFailures == 1 && s.notifier != nil {
				if sendErr := s.notifier.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification: %v", sendErr)
				}
			}
			return
		}
		if consecutiveFailures > 0 && s.notifier != nil {
			if sendErr := s.notifier.SendRecovery(consecutiveFailures); sendErr != nil {
				logger.Warn("Failed to send recovery notification: %v", sendErr)
			}
		}
		consecutiveFailures = 0
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.drain(handleCycleResult)
			logger.Info("Batch scheduler stopped")
			return

		case now := <-ticker.C:
			if !s.queue.ShouldFlush(s.sizeThreshold, s.maxAge, now) {
				continue
			}
			batch, err := s.queue.Flush()
			if err != nil {
				if !errors.Is(err, ErrQueueEmpty) && !errors.Is(err, ErrFlushInFlight) {
					logger.Error("Flush failed: %v", err)
					handleCycleResult(err)
				}
				continue
			}
			logger.Info("Flushed batch %s (seq %d, %d trades, total value %d)",
				batch.ID, batch.Seq, len(batch.Trades), batch.TotalValue)
			handleCycleResult(s.submit(ctx, batch))
		}
	}
}

// drain claims whatever is left at shutdown and hands it off with a
// background context so the final settlement attempt is not cancelled by
// the same signal that stopped the loop. It runs to completion before Run
// returns.
func (s *Scheduler) drain(report func(error)) {
	batch, err := s.queue.Flush()
	if err != nil {
		return
	}
	logger.Info("Flushing final batch %s (%d trades) on shutdown", batch.ID, len(batch.Trades))
	report(s.submit(context.Background(), batch))
}

// FlushNow forces an immediate flush regardless of thresholds, for operator
// tooling and tests. Returns ErrQueueEmpty when there is nothing to claim;
// a submit failure is returned alongside the claimed batch.
func (s *Scheduler) FlushNow(ctx context.Context) (*models.Batch, error) {
	batch, err := s.queue.Flush()
	if err != nil {
		return nil, err
	}
	if err := s.submit(ctx, batch); err != nil {
		return batch, err
	}
	return batch, nil
}
