package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/voltbridge/gridoracle/internal/fraud"
	"github.com/voltbridge/gridoracle/internal/ledger"
	"github.com/voltbridge/gridoracle/internal/logger"
	"github.com/voltbridge/gridoracle/internal/metrics"
	"github.com/voltbridge/gridoracle/internal/models"
)

// SubmitTradeRequest is the wire shape posted by the trading client.
// submission_id is optional: clients that want idempotent retries supply
// their own; otherwise one is generated and the request is processed fresh.
type SubmitTradeRequest struct {
	SubmissionID string `json:"submission_id"`
	Seller       string `json:"seller"`
	Amount       int64  `json:"amount"`
	Type         string `json:"type"`
	Signature    string `json:"signature"`
}

// SubmitTradeResponse is the synchronous decision returned to the caller.
// Status is "Queued" or "Rejected"; the caller never waits for settlement.
type SubmitTradeResponse struct {
	Status        string `json:"status"`
	SubmissionID  string `json:"submission_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Detail        string `json:"detail,omitempty"`
	Weather       string `json:"weather,omitempty"`
	QueuePosition int    `json:"queue_position,omitempty"`
}

const (
	statusQueued   = "Queued"
	statusRejected = "Rejected"
)

// ProcessSubmission runs the submission state machine:
// Received → Validating → Rejected | (Approved → Enqueued). Every transition
// is durably recorded before the machine advances; a failed append aborts the
// request so no approved-but-unrecorded trade can exist. Duplicate submission
// IDs replay the recorded decision with no new side effects.
func (s *Service) ProcessSubmission(ctx context.Context, req SubmitTradeRequest) (SubmitTradeResponse, int) {
	if resp, ok := validateRequest(req); !ok {
		return resp, http.StatusOK
	}

	genType, _ := models.ParseGenerationType(req.Type)
	sub := models.TradeSubmission{
		ID:             req.SubmissionID,
		Seller:         common.HexToAddress(req.Seller).Hex(),
		AmountKWh:      req.Amount,
		GenerationType: genType,
		UnitPrice:      s.cfg.UnitPrice,
		Signature:      req.Signature,
		SubmittedAt:    time.Now(),
	}
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}

	// Idempotency guard: an already-decided submission replays its recorded
	// result and touches nothing.
	if recorded, ok := s.ledger.Result(sub.ID); ok {
		metrics.DuplicateSubmissions.Inc()
		logger.Debug("Replaying recorded decision for submission %s", sub.ID)
		return s.respond(sub.ID, recorded, 0), http.StatusOK
	}

	if err := s.ledger.Append(receivedEvent(&sub)); err != nil {
		logger.Error("Failed to record submission %s: %v", sub.ID, err)
		return SubmitTradeResponse{Status: "Error"}, http.StatusInternalServerError
	}

	result := s.validate(ctx, &sub)

	resp, status := s.recordDecision(&sub, result)
	return resp, status
}

// validate produces the terminal decision for a submission: signature check
// first, then weather corroboration (solar only), then the fraud rules over
// the seller's own history.
func (s *Service) validate(ctx context.Context, sub *models.TradeSubmission) models.ValidationResult {
	if s.cfg.RequireSignature {
		if !verifySignature(sub) {
			return models.ValidationResult{
				Decision: models.Rejected,
				Reason:   models.ReasonSignatureInvalid,
				Detail:   "signature does not recover to the claimed seller address",
			}
		}
	}

	var cond *models.WeatherCondition
	if sub.GenerationType == models.Solar {
		c, err := s.weather.GetCurrentCondition(ctx, s.cfg.Latitude, s.cfg.Longitude)
		if err != nil {
			metrics.WeatherLookupsTotal.WithLabelValues("unavailable").Inc()
		} else {
			metrics.WeatherLookupsTotal.WithLabelValues("ok").Inc()
			cond = &c
		}
	}

	history := s.history.Snapshot(sub.Seller)
	return fraud.Evaluate(sub, history, cond, s.rules, time.Now())
}

// recordDecision appends the Validated event, updates seller history, and —
// for approvals — records Enqueued and hands the trade to the batch queue.
func (s *Service) recordDecision(sub *models.TradeSubmission, result models.ValidationResult) (SubmitTradeResponse, int) {
	err := s.ledger.Append(validatedEvent(sub, &result))
	if errors.Is(err, ledger.ErrDuplicateDecision) {
		// Lost a race with a concurrent retry of the same submission ID;
		// replay whatever was recorded first.
		recorded, _ := s.ledger.Result(sub.ID)
		metrics.DuplicateSubmissions.Inc()
		return s.respond(sub.ID, recorded, 0), http.StatusOK
	}
	if err != nil {
		logger.Error("Failed to record decision for %s: %v", sub.ID, err)
		return SubmitTradeResponse{Status: "Error"}, http.StatusInternalServerError
	}

	s.history.Record(sub.Seller, fraud.Record{
		AmountKWh: sub.AmountKWh,
		Type:      sub.GenerationType,
		At:        sub.SubmittedAt,
		Decision:  result.Decision,
	})
	metrics.SubmissionsTotal.WithLabelValues(string(result.Decision), string(result.Reason)).Inc()

	if result.Decision == models.Rejected {
		logger.Info("Rejected submission %s from %s: %s", sub.ID, sub.Seller, result.Reason)
		return s.respond(sub.ID, result, 0), http.StatusOK
	}

	if err := s.ledger.Append(enqueuedEvent(sub)); err != nil {
		// The decision is recorded but the enqueue was not; surface the
		// failure rather than settle an unrecorded trade.
		logger.Error("Failed to record enqueue for %s: %v", sub.ID, err)
		return SubmitTradeResponse{Status: "Error"}, http.StatusInternalServerError
	}

	_, position := s.queue.Enqueue(*sub, result)
	metrics.QueueDepth.Set(float64(s.queue.Len()))
	logger.Info("Queued submission %s from %s (%d kWh %s, position %d)",
		sub.ID, sub.Seller, sub.AmountKWh, sub.GenerationType, position)

	return s.respond(sub.ID, result, position), http.StatusOK
}

// respond maps a validation result onto the wire response.
func (s *Service) respond(submissionID string, result models.ValidationResult, position int) SubmitTradeResponse {
	if result.Decision == models.Rejected {
		return SubmitTradeResponse{
			Status:       statusRejected,
			SubmissionID: submissionID,
			Reason:       string(result.Reason),
			Detail:       result.Detail,
			Weather:      result.Weather,
		}
	}
	return SubmitTradeResponse{
		Status:        statusQueued,
		SubmissionID:  submissionID,
		Weather:       result.Weather,
		QueuePosition: position,
	}
}

// validateRequest rejects malformed input with a stable reason code before a
// submission is even formed.
func validateRequest(req SubmitTradeRequest) (SubmitTradeResponse, bool) {
	if !common.IsHexAddress(req.Seller) {
		return SubmitTradeResponse{
			Status: statusRejected,
			Reason: string(models.ReasonInvalidSeller),
			Detail: fmt.Sprintf("%q is not a valid address", req.Seller),
		}, false
	}
	if req.Amount <= 0 {
		return SubmitTradeResponse{
			Status: statusRejected,
			Reason: string(models.ReasonInvalidAmount),
			Detail: "amount must be a positive number of kWh",
		}, false
	}
	if _, err := models.ParseGenerationType(req.Type); err != nil {
		return SubmitTradeResponse{
			Status: statusRejected,
			Reason: string(models.ReasonInvalidType),
			Detail: err.Error(),
		}, false
	}
	return SubmitTradeResponse{}, true
}

// verifySignature checks an EIP-191 personal_sign signature over
// "<seller>|<amount>|<wire type>" (seller lowercased) against the claimed
// seller address.
func verifySignature(sub *models.TradeSubmission) bool {
	sig := common.FromHex(sub.Signature)
	if len(sig) != 65 {
		return false
	}
	// Normalize the recovery byte from the Ethereum convention.
	if sig[64] >= 27 {
		sig = append(append([]byte{}, sig[:64]...), sig[64]-27)
	}

	msg := SignaturePayload(sub.Seller, sub.AmountKWh, sub.GenerationType)
	pub, err := gethcrypto.SigToPub(accounts.TextHash([]byte(msg)), sig)
	if err != nil {
		return false
	}
	return gethcrypto.PubkeyToAddress(*pub) == common.HexToAddress(sub.Seller)
}

// SignaturePayload is the exact string a seller signs to authorize a trade.
func SignaturePayload(seller string, amount int64, genType models.GenerationType) string {
	return fmt.Sprintf("%s|%d|%s", strings.ToLower(seller), amount, genType.Wire())
}

func receivedEvent(sub *models.TradeSubmission) *models.TradeEvent {
	return &models.TradeEvent{
		SubmissionID:   sub.ID,
		Kind:           models.EventReceived,
		Seller:         sub.Seller,
		AmountKWh:      sub.AmountKWh,
		GenerationType: sub.GenerationType,
		At:             time.Now(),
	}
}

func validatedEvent(sub *models.TradeSubmission, result *models.ValidationResult) *models.TradeEvent {
	return &models.TradeEvent{
		SubmissionID:   sub.ID,
		Kind:           models.EventValidated,
		Seller:         sub.Seller,
		AmountKWh:      sub.AmountKWh,
		GenerationType: sub.GenerationType,
		Result:         result,
		At:             time.Now(),
	}
}

func enqueuedEvent(sub *models.TradeSubmission) *models.TradeEvent {
	return &models.TradeEvent{
		SubmissionID:   sub.ID,
		Kind:           models.EventEnqueued,
		Seller:         sub.Seller,
		AmountKWh:      sub.AmountKWh,
		GenerationType: sub.GenerationType,
		At:             time.Now(),
	}
}
