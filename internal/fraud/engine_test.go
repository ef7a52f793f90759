package fraud

import (
	"fmt"
	"testing"
	"time"

	"github.com/voltbridge/gridoracle/internal/models"
)

func defaultRules() Rules {
	return Rules{
		RateLimitEnabled:        true,
		MaxSubmissionsPerWindow: 10,
		MaxKWhPerWindow:         500,
		RateWindow:              time.Hour,
		PlausibilityEnabled:     true,
		MaxSingleTradeKWh:       1000,
		BatteryCapacityKWh:      50,
		ChargeEfficiency:        0.92,
		WeatherRuleEnabled:      true,
		WeatherFailOpen:         false,
	}
}

func solarSubmission(amount int64) *models.TradeSubmission {
	return &models.TradeSubmission{
		ID:             "sub-1",
		Seller:         "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		AmountKWh:      amount,
		GenerationType: models.Solar,
		UnitPrice:      80,
		SubmittedAt:    time.Now(),
	}
}

func batterySubmission(amount int64) *models.TradeSubmission {
	sub := solarSubmission(amount)
	sub.GenerationType = models.BatteryDischarge
	return sub
}

func sunnyCondition() *models.WeatherCondition {
	return &models.WeatherCondition{
		Label:            "Sunny",
		CloudCover:       10,
		IsDay:            true,
		MaxGenerationKWh: 45,
		ObservedAt:       time.Now(),
	}
}

func TestDischargeLimit(t *testing.T) {
	rules := defaultRules()
	if got := rules.DischargeLimit(); got != 46 {
		t.Errorf("DischargeLimit() = %d, want 46", got)
	}
}

func TestEvaluateApprovesSolarWithinWeatherLimit(t *testing.T) {
	now := time.Now()
	res := Evaluate(solarSubmission(40), nil, sunnyCondition(), defaultRules(), now)

	if res.Decision != models.Approved {
		t.Fatalf("expected approval, got %v (%s: %s)", res.Decision, res.Reason, res.Detail)
	}
	if res.Weather != "Sunny" {
		t.Errorf("Weather = %q, want Sunny", res.Weather)
	}
}

func TestEvaluateRejectsSolarAboveWeatherLimit(t *testing.T) {
	now := time.Now()
	res := Evaluate(solarSubmission(46), nil, sunnyCondition(), defaultRules(), now)

	if res.Decision != models.Rejected {
		t.Fatalf("expected rejection, got %v", res.Decision)
	}
	if res.Reason != models.ReasonWeatherInconsistent {
		t.Errorf("Reason = %s, want %s", res.Reason, models.ReasonWeatherInconsistent)
	}
	if res.Weather != "Sunny" {
		t.Errorf("Weather = %q, want Sunny", res.Weather)
	}
}

func TestEvaluateNightZeroesSolarLimit(t *testing.T) {
	night := &models.WeatherCondition{
		Label:            "Night",
		CloudCover:       0,
		IsDay:            false,
		MaxGenerationKWh: 0,
		ObservedAt:       time.Now(),
	}
	res := Evaluate(solarSubmission(1), nil, night, defaultRules(), time.Now())

	if res.Decision != models.Rejected || res.Reason != models.ReasonWeatherInconsistent {
		t.Errorf("any solar claim at night should be weather-inconsistent, got %v/%s", res.Decision, res.Reason)
	}
}

func TestEvaluateWeatherUnavailableFailClosed(t *testing.T) {
	res := Evaluate(solarSubmission(10), nil, nil, defaultRules(), time.Now())

	if res.Decision != models.Rejected {
		t.Fatalf("fail-closed policy must reject, got %v", res.Decision)
	}
	if res.Reason != models.ReasonWeatherUnavailable {
		t.Errorf("Reason = %s, want %s", res.Reason, models.ReasonWeatherUnavailable)
	}
}

func TestEvaluateWeatherUnavailableFailOpen(t *testing.T) {
	rules := defaultRules()
	rules.WeatherFailOpen = true
	res := Evaluate(solarSubmission(10), nil, nil, rules, time.Now())

	if res.Decision != models.Approved {
		t.Fatalf("fail-open policy must approve, got %v (%s)", res.Decision, res.Reason)
	}
	if res.Advisory != models.ReasonWeatherUnverified {
		t.Errorf("Advisory = %s, want %s", res.Advisory, models.ReasonWeatherUnverified)
	}
}

func TestEvaluateBatterySkipsWeather(t *testing.T) {
	// Battery trades never consult weather, so a nil condition is fine.
	res := Evaluate(batterySubmission(40), nil, nil, defaultRules(), time.Now())

	if res.Decision != models.Approved {
		t.Errorf("battery trade within limit should be approved, got %v (%s)", res.Decision, res.Reason)
	}
	if res.Weather != "" {
		t.Errorf("battery trade must not carry a weather label, got %q", res.Weather)
	}
}

func TestEvaluateBatteryDischargeBoundary(t *testing.T) {
	rules := defaultRules()

	res := Evaluate(batterySubmission(46), nil, nil, rules, time.Now())
	if res.Decision != models.Approved {
		t.Errorf("46 kWh is exactly at the limit and should be approved, got %v (%s)", res.Decision, res.Reason)
	}

	res = Evaluate(batterySubmission(47), nil, nil, rules, time.Now())
	if res.Decision != models.Rejected || res.Reason != models.ReasonExceedsDischargeLimit {
		t.Errorf("47 kWh should exceed the discharge limit, got %v/%s", res.Decision, res.Reason)
	}
}

func TestEvaluateImplausibleAmount(t *testing.T) {
	res := Evaluate(solarSubmission(1001), nil, sunnyCondition(), defaultRules(), time.Now())
	if res.Decision != models.Rejected || res.Reason != models.ReasonImplausibleAmount {
		t.Errorf("expected IMPLAUSIBLE_AMOUNT, got %v/%s", res.Decision, res.Reason)
	}

	// For battery discharge the specific rule wins over the absolute cap.
	res = Evaluate(batterySubmission(9000), nil, nil, defaultRules(), time.Now())
	if res.Reason != models.ReasonExceedsDischargeLimit {
		t.Errorf("battery claims report the discharge limit, got %s", res.Reason)
	}
}

func TestEvaluateSubmissionRateLimit(t *testing.T) {
	rules := defaultRules()
	now := time.Now()

	history := make([]Record, 0, rules.MaxSubmissionsPerWindow)
	for i := 0; i < rules.MaxSubmissionsPerWindow; i++ {
		history = append(history, Record{
			AmountKWh: 1,
			Type:      models.Solar,
			At:        now.Add(-time.Minute),
			Decision:  models.Rejected,
		})
	}

	res := Evaluate(solarSubmission(10), history, sunnyCondition(), rules, now)
	if res.Decision != models.Rejected || res.Reason != models.ReasonRateLimitSubmissions {
		t.Errorf("expected RATE_LIMIT_SUBMISSIONS, got %v/%s", res.Decision, res.Reason)
	}
}

func TestEvaluateRateLimitCountsRejectedAttempts(t *testing.T) {
	// Rejected attempts still count toward the submission ceiling; otherwise a
	// seller could probe the rules for free.
	rules := defaultRules()
	rules.MaxSubmissionsPerWindow = 2
	now := time.Now()

	history := []Record{
		{AmountKWh: 5000, Type: models.Solar, At: now.Add(-time.Minute), Decision: models.Rejected},
		{AmountKWh: 5000, Type: models.Solar, At: now.Add(-time.Minute), Decision: models.Rejected},
	}

	res := Evaluate(solarSubmission(10), history, sunnyCondition(), rules, now)
	if res.Reason != models.ReasonRateLimitSubmissions {
		t.Errorf("rejected attempts must count toward the submission limit, got %v/%s", res.Decision, res.Reason)
	}
}

func TestEvaluateVolumeRateLimit(t *testing.T) {
	rules := defaultRules()
	now := time.Now()

	// 480 approved kWh already in the window; 30 more breaches 500.
	history := []Record{
		{AmountKWh: 480, Type: models.BatteryDischarge, At: now.Add(-10 * time.Minute), Decision: models.Approved},
	}

	res := Evaluate(solarSubmission(30), history, sunnyCondition(), rules, now)
	if res.Decision != models.Rejected || res.Reason != models.ReasonRateLimitVolume {
		t.Errorf("expected RATE_LIMIT_VOLUME, got %v/%s", res.Decision, res.Reason)
	}

	// Exactly reaching the cap is allowed.
	res = Evaluate(solarSubmission(20), history, sunnyCondition(), rules, now)
	if res.Decision != models.Approved {
		t.Errorf("filling the window exactly should be approved, got %v/%s", res.Decision, res.Reason)
	}
}

func TestEvaluateVolumeIgnoresRejectedEnergy(t *testing.T) {
	rules := defaultRules()
	now := time.Now()

	history := []Record{
		{AmountKWh: 9999, Type: models.Solar, At: now.Add(-time.Minute), Decision: models.Rejected},
	}

	res := Evaluate(solarSubmission(30), history, sunnyCondition(), rules, now)
	if res.Decision != models.Approved {
		t.Errorf("rejected energy must not count toward volume, got %v/%s", res.Decision, res.Reason)
	}
}

func TestEvaluateWindowExpiry(t *testing.T) {
	rules := defaultRules()
	rules.MaxSubmissionsPerWindow = 1
	now := time.Now()

	history := []Record{
		{AmountKWh: 10, Type: models.Solar, At: now.Add(-2 * time.Hour), Decision: models.Approved},
	}

	res := Evaluate(solarSubmission(10), history, sunnyCondition(), rules, now)
	if res.Decision != models.Approved {
		t.Errorf("records outside the window must be ignored, got %v/%s", res.Decision, res.Reason)
	}
}

func TestEvaluateDisabledRules(t *testing.T) {
	rules := Rules{}

	// With everything disabled, even an absurd claim passes.
	res := Evaluate(solarSubmission(1_000_000), nil, nil, rules, time.Now())
	if res.Decision != models.Approved {
		t.Errorf("all rules disabled should approve, got %v/%s", res.Decision, res.Reason)
	}
}

func TestEvaluateRuleOrdering(t *testing.T) {
	// A submission violating several rules at once reports the first rule in
	// evaluation order: plausibility before rate limit before weather.
	rules := defaultRules()
	rules.MaxSubmissionsPerWindow = 1
	now := time.Now()

	history := []Record{
		{AmountKWh: 10, Type: models.Solar, At: now.Add(-time.Minute), Decision: models.Approved},
	}

	res := Evaluate(solarSubmission(5000), history, nil, rules, now)
	if res.Reason != models.ReasonImplausibleAmount {
		t.Errorf("plausibility should fire before rate limit and weather, got %s", res.Reason)
	}

	res = Evaluate(solarSubmission(10), history, nil, rules, now)
	if res.Reason != models.ReasonRateLimitSubmissions {
		t.Errorf("rate limit should fire before weather, got %s", res.Reason)
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	rules := defaultRules()
	now := time.Now()
	sub := solarSubmission(40)
	cond := sunnyCondition()
	history := []Record{
		{AmountKWh: 20, Type: models.Solar, At: now.Add(-time.Minute), Decision: models.Approved},
	}

	first := Evaluate(sub, history, cond, rules, now)
	for i := 0; i < 5; i++ {
		if got := Evaluate(sub, history, cond, rules, now); got != first {
			t.Fatalf("run %d diverged: %+v vs %+v", i, got, first)
		}
	}
}

func TestEveryRejectionReasonIsValid(t *testing.T) {
	rules := defaultRules()
	rules.MaxSubmissionsPerWindow = 1
	now := time.Now()

	cases := []struct {
		name string
		res  models.ValidationResult
	}{
		{"rate limit", Evaluate(solarSubmission(10), []Record{{At: now, Decision: models.Rejected}}, sunnyCondition(), rules, now)},
		{"volume", Evaluate(solarSubmission(600), []Record{}, sunnyCondition(), defaultRules(), now)},
		{"implausible", Evaluate(solarSubmission(1001), nil, sunnyCondition(), defaultRules(), now)},
		{"discharge", Evaluate(batterySubmission(47), nil, nil, defaultRules(), now)},
		{"weather unavailable", Evaluate(solarSubmission(10), nil, nil, defaultRules(), now)},
		{"weather inconsistent", Evaluate(solarSubmission(46), nil, sunnyCondition(), defaultRules(), now)},
	}

	for _, tc := range cases {
		if tc.res.Decision != models.Rejected {
			t.Errorf("%s: expected rejection, got %v", tc.name, tc.res.Decision)
			continue
		}
		if !tc.res.Reason.Valid() {
			t.Errorf("%s: reason %q is not in the closed enumeration", tc.name, tc.res.Reason)
		}
		if err := tc.res.Validate(); err != nil {
			t.Errorf("%s: result failed validation: %v", tc.name, err)
		}
	}
}

func BenchmarkEvaluate(b *testing.B) {
	rules := defaultRules()
	now := time.Now()
	sub := solarSubmission(40)
	cond := sunnyCondition()

	history := make([]Record, 0, 100)
	for i := 0; i < 100; i++ {
		history = append(history, Record{
			AmountKWh: 1,
			Type:      models.Solar,
			At:        now.Add(-time.Duration(i) * time.Minute),
			Decision:  models.Approved,
		})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Evaluate(sub, history, cond, rules, now)
	}
}

func ExampleEvaluate() {
	sub := &models.TradeSubmission{
		Seller:         "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		AmountKWh:      9000,
		GenerationType: models.BatteryDischarge,
		UnitPrice:      80,
	}
	rules := Rules{
		PlausibilityEnabled: true,
		MaxSingleTradeKWh:   1000,
		BatteryCapacityKWh:  50,
		ChargeEfficiency:    0.92,
	}

	res := Evaluate(sub, nil, nil, rules, time.Now())
	fmt.Println(res.Decision, res.Reason)
	// Output: Rejected EXCEEDS_DISCHARGE_LIMIT
}
