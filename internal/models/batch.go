package models

import (
	"errors"
	"fmt"
	"time"
)

// BatchStatus is the settlement lifecycle state of a batch.
type BatchStatus string

const (
	// BatchPending: claimed from the queue, not yet sent to the chain.
	BatchPending BatchStatus = "Pending"
	// BatchSubmitted: transaction sent, awaiting confirmation.
	BatchSubmitted BatchStatus = "Submitted"
	// BatchConfirmed: the settlement transaction is confirmed on-chain.
	BatchConfirmed BatchStatus = "Confirmed"
	// BatchFailed: the chain reported a definitive failure.
	BatchFailed BatchStatus = "Failed"
	// BatchUnknown: confirmation timed out without a definitive outcome.
	// The batch must be reconciled by an operator before its trades are
	// counted as settled or eligible for retry.
	BatchUnknown BatchStatus = "Unknown"
)

// Batch is an ordered, non-empty, immutable snapshot of queued trades claimed
// atomically at flush time. A trade belongs to at most one batch; batch
// sequence numbers are strictly increasing and membership partitions the
// approved-trade stream without reordering.
type Batch struct {
	ID           string        `json:"id"`
	Seq          uint64        `json:"seq"`
	Trades       []QueuedTrade `json:"trades"`
	TotalValue   int64         `json:"total_value"` // Σ amount × unit price, sent as the tx value
	Status       BatchStatus   `json:"status"`
	TxHash       string        `json:"tx_hash,omitempty"`
	FailureCause string        `json:"failure_cause,omitempty"`
	RetriedAs    string        `json:"retried_as,omitempty"` // batch ID of the operator-initiated retry, if any
	CreatedAt    time.Time     `json:"created_at"`
	SubmittedAt  time.Time     `json:"submitted_at,omitempty"`
	ResolvedAt   time.Time     `json:"resolved_at,omitempty"`
}

// Validate checks that the batch is well-formed.
func (b *Batch) Validate() error {
	if b.ID == "" {
		return errors.New("batch ID must not be empty")
	}
	if len(b.Trades) == 0 {
		return errors.New("batch must contain at least one trade")
	}
	for i := range b.Trades {
		if err := b.Trades[i].Validate(); err != nil {
			return fmt.Errorf("invalid trade at index %d: %w", i, err)
		}
		if i > 0 && b.Trades[i].Sequence <= b.Trades[i-1].Sequence {
			return errors.New("trade sequence numbers must be strictly increasing")
		}
	}
	switch b.Status {
	case BatchPending, BatchSubmitted, BatchConfirmed, BatchFailed, BatchUnknown:
	default:
		return fmt.Errorf("unknown batch status %q", b.Status)
	}
	if b.CreatedAt.IsZero() {
		return errors.New("batch creation time must be set")
	}
	return nil
}

// Terminal reports whether the batch has reached a final settlement state.
// Unknown is not terminal: it awaits operator reconciliation.
func (b *Batch) Terminal() bool {
	return b.Status == BatchConfirmed || b.Status == BatchFailed
}
