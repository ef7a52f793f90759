// Package fraud decides whether a trade submission is plausible. Evaluation
// is a pure function of the submission, the seller's own history, the
// corroborated weather reading, and the rule set — no I/O and no clock
// access — so every rule is unit-testable without network mocks.
//
// Rules are independently togglable. Each rejection carries a stable reason
// code from the closed enumeration in the models package; new rules add new
// codes and never reuse existing ones.
package fraud

import (
	"fmt"
	"time"

	"github.com/voltbridge/gridoracle/internal/models"
)

// Record is one entry in a seller's bounded history window.
type Record struct {
	AmountKWh int64
	Type      models.GenerationType
	At        time.Time
	Decision  models.Decision
}

// Rules is the configured rule set. Zero-valued toggles disable a rule group.
type Rules struct {
	// Rate limiting per seller within a trailing window.
	RateLimitEnabled        bool
	MaxSubmissionsPerWindow int
	MaxKWhPerWindow         int64
	RateWindow              time.Duration

	// Physical plausibility.
	PlausibilityEnabled bool
	MaxSingleTradeKWh   int64
	BatteryCapacityKWh  int64
	ChargeEfficiency    float64

	// Weather corroboration for solar claims.
	WeatherRuleEnabled bool
	// WeatherFailOpen selects the policy for an unavailable weather reading:
	// true approves with the WEATHER_UNVERIFIED advisory, false rejects with
	// WEATHER_UNAVAILABLE.
	WeatherFailOpen bool
}

// DischargeLimit is the maximum physically possible battery discharge:
// capacity scaled by charge efficiency, truncated to whole kWh.
func (r Rules) DischargeLimit() int64 {
	return int64(float64(r.BatteryCapacityKWh) * r.ChargeEfficiency)
}

// Evaluate applies the rule set to a submission. cond is nil when the weather
// lookup failed or was not attempted (non-solar trades). now anchors the
// trailing rate window; passing it explicitly keeps evaluation deterministic.
func Evaluate(sub *models.TradeSubmission, history []Record, cond *models.WeatherCondition, rules Rules, now time.Time) models.ValidationResult {
	// Physical plausibility runs first: an impossible claim is rejected for
	// the physical reason regardless of the seller's rate-window state. The
	// discharge rule is the more specific diagnosis, so it is checked before
	// the absolute cap.
	if rules.PlausibilityEnabled {
		if sub.GenerationType == models.BatteryDischarge {
			if limit := rules.DischargeLimit(); sub.AmountKWh > limit {
				return models.ValidationResult{
					Decision: models.Rejected,
					Reason:   models.ReasonExceedsDischargeLimit,
					Detail:   fmt.Sprintf("claimed %d kWh exceeds discharge limit %d kWh", sub.AmountKWh, limit),
				}
			}
		}
		if sub.AmountKWh > rules.MaxSingleTradeKWh {
			return models.ValidationResult{
				Decision: models.Rejected,
				Reason:   models.ReasonImplausibleAmount,
				Detail:   fmt.Sprintf("claimed %d kWh exceeds single-trade cap %d kWh", sub.AmountKWh, rules.MaxSingleTradeKWh),
			}
		}
	}

	if rules.RateLimitEnabled {
		if result, rejected := evaluateRateLimit(sub, history, rules, now); rejected {
			return result
		}
	}

	if sub.GenerationType == models.Solar && rules.WeatherRuleEnabled {
		return evaluateSolar(sub, cond, rules)
	}

	return models.ValidationResult{Decision: models.Approved}
}

// evaluateRateLimit rejects sellers exceeding the submission-count or
// cumulative-volume ceiling within the trailing window. Counts include the
// seller's rejected attempts; volume counts only previously approved energy.
func evaluateRateLimit(sub *models.TradeSubmission, history []Record, rules Rules, now time.Time) (models.ValidationResult, bool) {
	cutoff := now.Add(-rules.RateWindow)

	submissions := 0
	var approvedKWh int64
	for _, rec := range history {
		if rec.At.Before(cutoff) {
			continue
		}
		submissions++
		if rec.Decision == models.Approved {
			approvedKWh += rec.AmountKWh
		}
	}

	if submissions >= rules.MaxSubmissionsPerWindow {
		return models.ValidationResult{
			Decision: models.Rejected,
			Reason:   models.ReasonRateLimitSubmissions,
			Detail: fmt.Sprintf("%d submissions in the last %s exceeds the limit of %d",
				submissions, rules.RateWindow, rules.MaxSubmissionsPerWindow),
		}, true
	}
	if approvedKWh+sub.AmountKWh > rules.MaxKWhPerWindow {
		return models.ValidationResult{
			Decision: models.Rejected,
			Reason:   models.ReasonRateLimitVolume,
			Detail: fmt.Sprintf("%d kWh in the last %s exceeds the limit of %d kWh",
				approvedKWh+sub.AmountKWh, rules.RateWindow, rules.MaxKWhPerWindow),
		}, true
	}
	return models.ValidationResult{}, false
}

// evaluateSolar corroborates a solar claim against the weather reading.
func evaluateSolar(sub *models.TradeSubmission, cond *models.WeatherCondition, rules Rules) models.ValidationResult {
	if cond == nil {
		if rules.WeatherFailOpen {
			return models.ValidationResult{
				Decision: models.Approved,
				Advisory: models.ReasonWeatherUnverified,
				Detail:   "weather provider unavailable; approved without corroboration",
			}
		}
		return models.ValidationResult{
			Decision: models.Rejected,
			Reason:   models.ReasonWeatherUnavailable,
			Detail:   "weather provider unavailable; solar claims cannot be corroborated",
		}
	}

	if sub.AmountKWh > cond.MaxGenerationKWh {
		return models.ValidationResult{
			Decision: models.Rejected,
			Reason:   models.ReasonWeatherInconsistent,
			Detail: fmt.Sprintf("claimed %d kWh but %s conditions support at most %d kWh",
				sub.AmountKWh, cond.Label, cond.MaxGenerationKWh),
			Weather: cond.Label,
		}
	}

	return models.ValidationResult{
		Decision: models.Approved,
		Weather:  cond.Label,
	}
}
