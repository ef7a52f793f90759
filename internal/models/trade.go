// Package models defines the core domain entities for the grid-oracle application.
// These models represent trade submissions, validation results, queued trades, and
// settlement batches. All models include built-in validation to ensure data
// integrity throughout the application.
//
// Terminology (matching the energy-trading contract's own naming):
//   - Submission: a seller's claim to have produced or discharged energy.
//   - Batch: a group of approved trades settled together in one chain transaction.
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// GenerationType identifies the claimed energy source of a trade.
type GenerationType string

const (
	// Solar is on-site photovoltaic generation ("OG (Solar)" on the wire).
	Solar GenerationType = "Solar"
	// BatteryDischarge is stored energy released from a battery ("ES (Battery)" on the wire).
	BatteryDischarge GenerationType = "BatteryDischarge"
)

// Wire representations used by the browser client. These strings are part of
// the external contract and must not change.
const (
	WireSolar   = "OG (Solar)"
	WireBattery = "ES (Battery)"
)

// ParseGenerationType converts a wire or canonical type string into a GenerationType.
func ParseGenerationType(s string) (GenerationType, error) {
	switch s {
	case WireSolar, string(Solar):
		return Solar, nil
	case WireBattery, string(BatteryDischarge):
		return BatteryDischarge, nil
	default:
		return "", fmt.Errorf("unknown generation type %q", s)
	}
}

// Wire returns the client-facing string for the generation type.
func (g GenerationType) Wire() string {
	if g == BatteryDischarge {
		return WireBattery
	}
	return WireSolar
}

// TradeSubmission is an immutable claim by a seller address to have produced
// or discharged a given amount of energy. It is created once at the API
// boundary and never mutated afterwards.
type TradeSubmission struct {
	ID             string         `json:"id"`              // Submission ID (client-supplied for idempotent retries, else generated)
	Seller         string         `json:"seller"`          // Checksummed hex address; merely claimed, not authenticated
	AmountKWh      int64          `json:"amount_kwh"`      // Claimed energy amount, positive
	GenerationType GenerationType `json:"generation_type"` // Solar or BatteryDischarge
	UnitPrice      int64          `json:"unit_price"`      // Settlement price per kWh
	Signature      string         `json:"signature,omitempty"`
	SubmittedAt    time.Time      `json:"submitted_at"`
}

// Validate checks that all submission fields are valid.
func (s *TradeSubmission) Validate() error {
	if s.ID == "" {
		return errors.New("submission ID must not be empty")
	}
	if !common.IsHexAddress(s.Seller) {
		return errors.New("seller must be a valid hex address")
	}
	if s.AmountKWh <= 0 {
		return errors.New("amount must be a positive number of kWh")
	}
	if s.GenerationType != Solar && s.GenerationType != BatteryDischarge {
		return errors.New("generation type must be Solar or BatteryDischarge")
	}
	if s.UnitPrice <= 0 {
		return errors.New("unit price must be positive")
	}
	if s.SubmittedAt.IsZero() {
		return errors.New("submission time must be set")
	}
	return nil
}

// Value returns the settlement value of the trade (amount × unit price).
func (s *TradeSubmission) Value() int64 {
	return s.AmountKWh * s.UnitPrice
}

// Decision is the terminal outcome of validating a submission.
type Decision string

const (
	// Approved submissions are enqueued for batch settlement.
	Approved Decision = "Approved"
	// Rejected submissions are terminal and never settled.
	Rejected Decision = "Rejected"
)

// ValidationResult is the exactly-once decision recorded for a submission.
// Weather is populated only for Solar submissions whose weather lookup
// succeeded. Advisory carries a non-rejecting annotation (currently only
// WEATHER_UNVERIFIED under the fail-open policy).
type ValidationResult struct {
	Decision Decision   `json:"decision"`
	Reason   ReasonCode `json:"reason,omitempty"`   // present iff Rejected
	Advisory ReasonCode `json:"advisory,omitempty"` // non-rejecting annotation
	Detail   string     `json:"detail,omitempty"`   // human-readable context for the reason
	Weather  string     `json:"weather,omitempty"`  // observed condition label
}

// Validate checks the result's internal consistency.
func (r *ValidationResult) Validate() error {
	switch r.Decision {
	case Approved:
		if r.Reason != "" {
			return errors.New("approved result must not carry a reason code")
		}
	case Rejected:
		if r.Reason == "" {
			return errors.New("rejected result must carry a reason code")
		}
	default:
		return errors.New("decision must be Approved or Rejected")
	}
	return nil
}

// QueuedTrade is an approved submission waiting for batch settlement. It is
// owned exclusively by the batch queue until claimed by a batch, and carries
// a monotonically increasing sequence number assigned at enqueue time.
type QueuedTrade struct {
	Submission TradeSubmission  `json:"submission"`
	Result     ValidationResult `json:"result"`
	Sequence   uint64           `json:"sequence"`
	EnqueuedAt time.Time        `json:"enqueued_at"`
}

// Validate checks that the queued trade is well-formed and approved.
func (q *QueuedTrade) Validate() error {
	if err := q.Submission.Validate(); err != nil {
		return fmt.Errorf("invalid submission: %w", err)
	}
	if err := q.Result.Validate(); err != nil {
		return fmt.Errorf("invalid result: %w", err)
	}
	if q.Result.Decision != Approved {
		return errors.New("only approved submissions may be queued")
	}
	if q.EnqueuedAt.IsZero() {
		return errors.New("enqueue time must be set")
	}
	return nil
}

// WeatherCondition is a corroborated weather reading for a seller's location.
// MaxGenerationKWh is the condition-derived ceiling on plausible solar output
// for one trade: zero at night, scaled by cloud cover during the day.
type WeatherCondition struct {
	Label            string    `json:"label"` // "Night", "Sunny", "Cloudy", or "Stormy"
	CloudCover       int       `json:"cloud_cover"`
	IsDay            bool      `json:"is_day"`
	MaxGenerationKWh int64     `json:"max_generation_kwh"`
	ObservedAt       time.Time `json:"observed_at"`
}
