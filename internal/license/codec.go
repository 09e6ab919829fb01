package license

import (
	"encoding/json"
	"time"

	"github.com/brinkbyte/edgegw/internal/store"
)

// wireValidation is the cache's on-disk shape for a ValidationResult:
// same fields as the billing RPC response, stored verbatim so a cache
// hit never needs to re-derive anything.
type wireValidation struct {
	IsValid        bool      `json:"is_valid"`
	Mode           string    `json:"license_mode"`
	GrowthPacks    []string  `json:"enabled_growth_packs"`
	ValidUntil     time.Time `json:"valid_until"`
	CamerasAllowed int       `json:"cameras_allowed"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

func encodeValidation(r ValidationResult) ([]byte, error) {
	return json.Marshal(wireValidation{
		IsValid: r.IsValid, Mode: string(r.Mode), GrowthPacks: r.GrowthPacks,
		ValidUntil: r.ValidUntil, CamerasAllowed: r.CamerasAllowed, ErrorMessage: r.ErrorMessage,
	})
}

func decodeValidation(raw []byte) (ValidationResult, error) {
	var w wireValidation
	if err := json.Unmarshal(raw, &w); err != nil {
		return ValidationResult{}, err
	}
	return ValidationResult{
		IsValid: w.IsValid, Mode: store.LicenseMode(w.Mode), GrowthPacks: w.GrowthPacks,
		ValidUntil: w.ValidUntil, CamerasAllowed: w.CamerasAllowed, ErrorMessage: w.ErrorMessage,
	}, nil
}

// wireEntitlement is the cache's on-disk shape for an entitlement check.
type wireEntitlement struct {
	IsEnabled      bool      `json:"is_enabled"`
	QuotaLimit     int64     `json:"quota_limit"`
	QuotaUsed      int64     `json:"quota_used"`
	QuotaRemaining int64     `json:"quota_remaining"`
	ValidUntil     time.Time `json:"valid_until"`
}

func encodeEntitlement(r EntitlementResult) ([]byte, error) {
	return json.Marshal(wireEntitlement{
		IsEnabled: r.IsEnabled, QuotaLimit: r.QuotaLimit, QuotaUsed: r.QuotaUsed,
		QuotaRemaining: r.QuotaRemaining, ValidUntil: r.ValidUntil,
	})
}

func decodeEntitlement(raw []byte) (EntitlementResult, error) {
	var w wireEntitlement
	if err := json.Unmarshal(raw, &w); err != nil {
		return EntitlementResult{}, err
	}
	return EntitlementResult{
		IsEnabled: w.IsEnabled, QuotaLimit: w.QuotaLimit, QuotaUsed: w.QuotaUsed,
		QuotaRemaining: w.QuotaRemaining, ValidUntil: w.ValidUntil,
	}, nil
}

func jsonMarshalStrings(v []string) ([]byte, error) {
	return json.Marshal(v)
}

func jsonUnmarshalStrings(raw []byte, out *[]string) error {
	return json.Unmarshal(raw, out)
}
