package models

import (
	"errors"
	"fmt"
	"time"
)

// EventKind labels a lifecycle transition in a submission's state machine.
type EventKind string

const (
	// EventReceived: the submission arrived at the API boundary.
	EventReceived EventKind = "Received"
	// EventValidated: the fraud engine produced the terminal decision.
	EventValidated EventKind = "Validated"
	// EventEnqueued: the approved trade entered the batch queue.
	EventEnqueued EventKind = "Enqueued"
	// EventBatchAssigned: the trade was claimed into a batch at flush time.
	EventBatchAssigned EventKind = "BatchAssigned"
	// EventSettled: the trade's batch was confirmed on-chain.
	EventSettled EventKind = "Settled"
	// EventSettlementFailed: the trade's batch failed definitively.
	EventSettlementFailed EventKind = "SettlementFailed"
	// EventSettlementUnknown: the trade's batch timed out without a
	// definitive outcome and awaits reconciliation.
	EventSettlementUnknown EventKind = "SettlementUnknown"
)

// TradeEvent is one append-only ledger record of a submission's lifecycle.
// The sequence of events for a submission ID is the source of truth for
// idempotency and for "is this trade settled" queries.
type TradeEvent struct {
	SubmissionID   string            `json:"submission_id"`
	Kind           EventKind         `json:"kind"`
	Seller         string            `json:"seller,omitempty"`
	AmountKWh      int64             `json:"amount_kwh,omitempty"`
	GenerationType GenerationType    `json:"generation_type,omitempty"`
	Result         *ValidationResult `json:"result,omitempty"` // present iff Kind == Validated
	BatchID        string            `json:"batch_id,omitempty"`
	At             time.Time         `json:"at"`
}

// Validate checks that the event is well-formed for its kind.
func (e *TradeEvent) Validate() error {
	if e.SubmissionID == "" {
		return errors.New("event submission ID must not be empty")
	}
	if e.At.IsZero() {
		return errors.New("event time must be set")
	}
	switch e.Kind {
	case EventReceived, EventEnqueued, EventSettled,
		EventSettlementFailed, EventSettlementUnknown:
	case EventValidated:
		if e.Result == nil {
			return errors.New("validated event must carry a result")
		}
		if err := e.Result.Validate(); err != nil {
			return fmt.Errorf("invalid result: %w", err)
		}
	case EventBatchAssigned:
		if e.BatchID == "" {
			return errors.New("batch-assigned event must carry a batch ID")
		}
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}
