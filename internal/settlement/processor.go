package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voltbridge/gridoracle/internal/ledger"
	"github.com/voltbridge/gridoracle/internal/logger"
	"github.com/voltbridge/gridoracle/internal/metrics"
	"github.com/voltbridge/gridoracle/internal/models"
)

// BatchSubmitter is the chain-facing half of settlement. Satisfied by
// *Submitter; faked in tests.
type BatchSubmitter interface {
	Submit(ctx context.Context, batch *models.Batch) Outcome
	Reconcile(ctx context.Context, txHash string) Outcome
}

// Alerter notifies operators about batches that need attention. May be nil.
type Alerter interface {
	BatchFailed(batch *models.Batch, cause string)
	BatchUnknown(batch *models.Batch)
}

// SeqSource hands out the next batch sequence number for operator retries,
// so a retried batch slots after everything the queue has claimed.
type SeqSource func() uint64

// Processor drives a claimed batch through its settlement lifecycle:
// registry bookkeeping, per-trade ledger events, chain submission, and
// operator alerts on Failed/Unknown outcomes.
type Processor struct {
	ledger    *ledger.Ledger
	registry  *Registry
	submitter BatchSubmitter
	alerter   Alerter
	nextSeq   SeqSource
}

// NewProcessor creates a settlement processor. alerter may be nil.
func NewProcessor(l *ledger.Ledger, reg *Registry, sub BatchSubmitter, alerter Alerter, nextSeq SeqSource) *Processor {
	return &Processor{
		ledger:    l,
		registry:  reg,
		submitter: sub,
		alerter:   alerter,
		nextSeq:   nextSeq,
	}
}

// Process settles one batch end to end. It runs outside any validation or
// queue lock and may block for the full confirmation timeout. The returned
// error reports a non-Confirmed outcome so callers can track settlement
// cycle health; the batch itself is already resolved, alerted, and parked
// by the time Process returns.
func (p *Processor) Process(ctx context.Context, batch *models.Batch) error {
	p.registry.Add(batch)

	now := time.Now()
	for i := range batch.Trades {
		sub := &batch.Trades[i].Submission
		err := p.ledger.Append(&models.TradeEvent{
			SubmissionID: sub.ID,
			Kind:         models.EventBatchAssigned,
			Seller:       sub.Seller,
			BatchID:      batch.ID,
			At:           now,
		})
		if err != nil {
			logger.Warn("Failed to record batch assignment for %s: %v", sub.ID, err)
		}
	}

	_ = p.registry.Update(batch.ID, func(b *models.Batch) {
		b.Status = models.BatchSubmitted
		b.SubmittedAt = time.Now()
	})

	start := time.Now()
	outcome := p.submitter.Submit(ctx, batch)
	metrics.SettlementDuration.Observe(time.Since(start).Seconds())

	p.resolve(batch.ID, outcome)

	if outcome.Status != models.BatchConfirmed {
		return fmt.Errorf("batch %s settlement %s: %s", batch.ID, outcome.Status, outcome.Cause)
	}
	return nil
}

// resolve records a settlement outcome: registry state, per-trade ledger
// events, metrics, and operator alerts.
func (p *Processor) resolve(batchID string, outcome Outcome) {
	var resolved models.Batch
	_ = p.registry.Update(batchID, func(b *models.Batch) {
		b.Status = outcome.Status
		b.TxHash = outcome.TxHash
		b.FailureCause = outcome.Cause
		b.ResolvedAt = time.Now()
		resolved = *b
	})

	metrics.BatchesTotal.WithLabelValues(string(outcome.Status)).Inc()

	var kind models.EventKind
	switch outcome.Status {
	case models.BatchConfirmed:
		kind = models.EventSettled
		logger.Info("Batch %s confirmed (tx: %s)", batchID, outcome.TxHash)
	case models.BatchFailed:
		kind = models.EventSettlementFailed
		logger.Error("Batch %s failed: %s", batchID, outcome.Cause)
	default:
		kind = models.EventSettlementUnknown
		logger.Warn("Batch %s outcome unknown: %s", batchID, outcome.Cause)
	}

	now := time.Now()
	for i := range resolved.Trades {
		sub := &resolved.Trades[i].Submission
		err := p.ledger.Append(&models.TradeEvent{
			SubmissionID: sub.ID,
			Kind:         kind,
			Seller:       sub.Seller,
			BatchID:      batchID,
			At:           now,
		})
		if err != nil {
			logger.Warn("Failed to record settlement outcome for %s: %v", sub.ID, err)
		}
	}

	if p.alerter != nil {
		switch outcome.Status {
		case models.BatchFailed:
			p.alerter.BatchFailed(&resolved, outcome.Cause)
		case models.BatchUnknown:
			p.alerter.BatchUnknown(&resolved)
		}
	}
}

// Retry re-claims a Failed batch's trades into a new batch with a fresh ID
// and sequence number, then settles it asynchronously. The failed batch is
// never resubmitted under its old identity, and Unknown batches must be
// reconciled first — retrying them could double-settle.
func (p *Processor) Retry(ctx context.Context, batchID string) (models.Batch, error) {
	original, ok := p.registry.Get(batchID)
	if !ok {
		return models.Batch{}, fmt.Errorf("batch not found: %s", batchID)
	}
	if original.Status != models.BatchFailed {
		return models.Batch{}, fmt.Errorf("batch %s is %s; only Failed batches may be retried", batchID, original.Status)
	}
	if original.RetriedAs != "" {
		return models.Batch{}, fmt.Errorf("batch %s was already retried as %s", batchID, original.RetriedAs)
	}

	retry := &models.Batch{
		ID:         uuid.New().String(),
		Seq:        p.nextSeq(),
		Trades:     original.Trades,
		TotalValue: original.TotalValue,
		Status:     models.BatchPending,
		CreatedAt:  time.Now(),
	}

	_ = p.registry.Update(batchID, func(b *models.Batch) {
		b.RetriedAs = retry.ID
	})

	logger.Info("Retrying failed batch %s as %s", batchID, retry.ID)
	go p.Process(ctx, retry)

	return *retry, nil
}

// Reconcile re-checks an Unknown batch against the chain and resolves it to
// Confirmed or Failed when the chain has a definitive answer. A batch that
// never made it onto the wire resolves to Failed.
func (p *Processor) Reconcile(ctx context.Context, batchID string) (models.Batch, error) {
	batch, ok := p.registry.Get(batchID)
	if !ok {
		return models.Batch{}, fmt.Errorf("batch not found: %s", batchID)
	}
	if batch.Status != models.BatchUnknown {
		return models.Batch{}, fmt.Errorf("batch %s is %s; only Unknown batches need reconciliation", batchID, batch.Status)
	}

	if batch.TxHash == "" {
		p.resolve(batchID, Outcome{Status: models.BatchFailed, Cause: "transaction was never submitted"})
		resolved, _ := p.registry.Get(batchID)
		return resolved, nil
	}

	outcome := p.submitter.Reconcile(ctx, batch.TxHash)
	if outcome.Status == models.BatchUnknown {
		// Still no definitive answer; leave the batch as-is.
		return batch, nil
	}

	p.resolve(batchID, outcome)
	resolved, _ := p.registry.Get(batchID)
	return resolved, nil
}
