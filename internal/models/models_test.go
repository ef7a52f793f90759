package models

import (
	"testing"
	"time"
)

func validSubmission() TradeSubmission {
	return TradeSubmission{
		ID:             "sub-1",
		Seller:         "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		AmountKWh:      50,
		GenerationType: Solar,
		UnitPrice:      80,
		SubmittedAt:    time.Now(),
	}
}

func TestParseGenerationType(t *testing.T) {
	tests := []struct {
		input   string
		want    GenerationType
		wantErr bool
	}{
		{"OG (Solar)", Solar, false},
		{"ES (Battery)", BatteryDischarge, false},
		{"Solar", Solar, false},
		{"BatteryDischarge", BatteryDischarge, false},
		{"wind", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseGenerationType(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseGenerationType(%q): expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseGenerationType(%q): unexpected error %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseGenerationType(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestTradeSubmissionValidate(t *testing.T) {
	sub := validSubmission()
	if err := sub.Validate(); err != nil {
		t.Errorf("valid submission rejected: %v", err)
	}

	bad := validSubmission()
	bad.Seller = "not-an-address"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for invalid seller address")
	}

	bad = validSubmission()
	bad.AmountKWh = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero amount")
	}

	bad = validSubmission()
	bad.AmountKWh = -5
	if err := bad.Validate(); err == nil {
		t.Error("expected error for negative amount")
	}

	bad = validSubmission()
	bad.GenerationType = "Wind"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown generation type")
	}
}

func TestTradeSubmissionValue(t *testing.T) {
	sub := validSubmission()
	if got := sub.Value(); got != 4000 {
		t.Errorf("Value() = %d, want 4000", got)
	}
}

func TestValidationResultValidate(t *testing.T) {
	ok := ValidationResult{Decision: Approved}
	if err := ok.Validate(); err != nil {
		t.Errorf("valid approved result rejected: %v", err)
	}

	ok = ValidationResult{Decision: Rejected, Reason: ReasonExceedsDischargeLimit}
	if err := ok.Validate(); err != nil {
		t.Errorf("valid rejected result rejected: %v", err)
	}

	bad := ValidationResult{Decision: Rejected}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for rejection without reason code")
	}

	bad = ValidationResult{Decision: Approved, Reason: ReasonImplausibleAmount}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for approval carrying a reason code")
	}
}

func TestBatchValidate(t *testing.T) {
	trade := QueuedTrade{
		Submission: validSubmission(),
		Result:     ValidationResult{Decision: Approved},
		Sequence:   1,
		EnqueuedAt: time.Now(),
	}
	trade2 := trade
	trade2.Sequence = 2

	batch := Batch{
		ID:        "batch-1",
		Seq:       1,
		Trades:    []QueuedTrade{trade, trade2},
		Status:    BatchPending,
		CreatedAt: time.Now(),
	}
	if err := batch.Validate(); err != nil {
		t.Errorf("valid batch rejected: %v", err)
	}

	empty := batch
	empty.Trades = nil
	if err := empty.Validate(); err == nil {
		t.Error("expected error for empty batch")
	}

	outOfOrder := batch
	outOfOrder.Trades = []QueuedTrade{trade2, trade}
	if err := outOfOrder.Validate(); err == nil {
		t.Error("expected error for non-increasing trade sequences")
	}
}

func TestBatchTerminal(t *testing.T) {
	b := Batch{Status: BatchUnknown}
	if b.Terminal() {
		t.Error("Unknown must not be terminal: it awaits reconciliation")
	}
	b.Status = BatchConfirmed
	if !b.Terminal() {
		t.Error("Confirmed should be terminal")
	}
	b.Status = BatchFailed
	if !b.Terminal() {
		t.Error("Failed should be terminal")
	}
}

func TestTradeEventValidate(t *testing.T) {
	ev := TradeEvent{SubmissionID: "sub-1", Kind: EventReceived, At: time.Now()}
	if err := ev.Validate(); err != nil {
		t.Errorf("valid event rejected: %v", err)
	}

	bad := TradeEvent{SubmissionID: "sub-1", Kind: EventValidated, At: time.Now()}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for validated event without result")
	}

	bad = TradeEvent{SubmissionID: "sub-1", Kind: EventBatchAssigned, At: time.Now()}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for batch-assigned event without batch ID")
	}
}

func TestReasonCodeValid(t *testing.T) {
	if !ReasonExceedsDischargeLimit.Valid() {
		t.Error("EXCEEDS_DISCHARGE_LIMIT should be a valid code")
	}
	if ReasonCode("MADE_UP").Valid() {
		t.Error("unknown code should not be valid")
	}
}
