package models

// ReasonCode identifies why a submission was rejected (or annotated).
// The enumeration is closed and stable: codes are part of the external
// contract rendered verbatim by the client, so new rules add new codes and
// existing codes are never reused or renumbered.
type ReasonCode string

const (
	// ReasonRateLimitSubmissions: the seller exceeded the maximum number of
	// submissions within the trailing rate window.
	ReasonRateLimitSubmissions ReasonCode = "RATE_LIMIT_SUBMISSIONS"
	// ReasonRateLimitVolume: the seller exceeded the maximum cumulative kWh
	// within the trailing rate window.
	ReasonRateLimitVolume ReasonCode = "RATE_LIMIT_VOLUME"
	// ReasonExceedsDischargeLimit: a battery discharge claim above the
	// physically possible discharge (capacity × charge efficiency).
	ReasonExceedsDischargeLimit ReasonCode = "EXCEEDS_DISCHARGE_LIMIT"
	// ReasonImplausibleAmount: a single claim above the absolute plausibility cap.
	ReasonImplausibleAmount ReasonCode = "IMPLAUSIBLE_AMOUNT"
	// ReasonWeatherInconsistent: a solar claim inconsistent with the
	// corroborated weather reading (e.g. generation claimed at night).
	ReasonWeatherInconsistent ReasonCode = "WEATHER_INCONSISTENT"
	// ReasonWeatherUnavailable: the weather provider was unreachable and the
	// fail-closed policy is active.
	ReasonWeatherUnavailable ReasonCode = "WEATHER_UNAVAILABLE"
	// ReasonSignatureInvalid: the submission's signature did not recover to
	// the claimed seller address.
	ReasonSignatureInvalid ReasonCode = "SIGNATURE_INVALID"
	// ReasonInvalidSeller: the seller field is not a valid hex address.
	ReasonInvalidSeller ReasonCode = "INVALID_SELLER"
	// ReasonInvalidAmount: the amount is zero, negative, or missing.
	ReasonInvalidAmount ReasonCode = "INVALID_AMOUNT"
	// ReasonInvalidType: the generation type is not a recognised wire value.
	ReasonInvalidType ReasonCode = "INVALID_TYPE"

	// ReasonWeatherUnverified is advisory only: the weather provider was
	// unreachable and the fail-open policy approved the trade without
	// corroboration. It never appears as a rejection reason.
	ReasonWeatherUnverified ReasonCode = "WEATHER_UNVERIFIED"
)

// Valid reports whether the code belongs to the closed enumeration.
func (r ReasonCode) Valid() bool {
	switch r {
	case ReasonRateLimitSubmissions, ReasonRateLimitVolume,
		ReasonExceedsDischargeLimit, ReasonImplausibleAmount,
		ReasonWeatherInconsistent, ReasonWeatherUnavailable,
		ReasonSignatureInvalid, ReasonInvalidSeller,
		ReasonInvalidAmount, ReasonInvalidType, ReasonWeatherUnverified:
		return true
	}
	return false
}
