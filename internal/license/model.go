// Package license implements the license and entitlement plane: camera
// license validation against the remote billing service with a
// cache-first read path and degraded-mode fallback, plus feature
// entitlement checks and quota accounting.
package license

import (
	"time"

	"github.com/brinkbyte/edgegw/internal/store"
)

// ValidationResult is what callers of Validate get back. ErrorMessage
// carries the "degraded: using cached license" annotation rather than a
// structured flag, matching the original validator's error_message field.
type ValidationResult struct {
	IsValid        bool
	Mode           store.LicenseMode
	GrowthPacks    []string
	ValidUntil     time.Time
	CamerasAllowed int // -1 = unlimited
	ErrorMessage   string
}

// GrowthPackConfig is the static, immutable pack→features mapping loaded
// once at boot: the global mutable cache for growth-pack feature mappings
// becomes an injected, read-only config object, never a package-level var.
type GrowthPackConfig struct {
	packs map[string][]string
}

func NewGrowthPackConfig(packs map[string][]string) *GrowthPackConfig {
	frozen := make(map[string][]string, len(packs))
	for k, v := range packs {
		cp := make([]string, len(v))
		copy(cp, v)
		frozen[k] = cp
	}
	return &GrowthPackConfig{packs: frozen}
}

// Features returns the feature set a pack enables, or nil if unknown.
func (g *GrowthPackConfig) Features(pack string) []string {
	return g.packs[pack]
}

// DefaultGrowthPacks mirrors the four packs hard-coded in the original
// entitlement manager's initializeGrowthPackMapping, now expressed as data
// instead of source.
func DefaultGrowthPacks() *GrowthPackConfig {
	return NewGrowthPackConfig(map[string][]string{
		"Advanced Analytics": {
			"heatmap", "line_crossing", "dwell_time", "crowd_density",
			"custom_reports", "historical_analysis",
		},
		"Active Transport": {
			"pedestrian_detection", "cyclist_detection", "escooter_detection",
			"movement_patterns", "speed_analysis",
		},
		"Cloud Storage": {
			"cloud_backup", "extended_retention", "encrypted_storage",
		},
		"API Integration": {
			"unlimited_api", "webhooks", "custom_integrations", "priority_support",
		},
	})
}

const (
	// DefaultTrialCameraLimit is TRIAL_CAMERA_LIMIT's default.
	DefaultTrialCameraLimit = 2
	// DefaultLicenseCacheTTL is LICENSE_CACHE_TTL_SECONDS's default.
	DefaultLicenseCacheTTL = 3600 * time.Second
	// DefaultEntitlementCacheTTL is ENTITLEMENT_CACHE_TTL_SECONDS's default.
	DefaultEntitlementCacheTTL = 300 * time.Second
	// DefaultOfflineGracePeriod is offline_grace_period_hours's default.
	DefaultOfflineGracePeriod = 24 * time.Hour
)

// LicenseLimitExceeded is returned by the registry when issuing a trial
// license would exceed the tenant's trial camera limit.
type LicenseLimitExceeded struct {
	TenantID string
	Limit    int
}

func (e *LicenseLimitExceeded) Error() string {
	return "license: trial camera limit exceeded for tenant " + e.TenantID
}

// LicenseIssueFailed is returned when a trial license was created but
// re-validation against it still failed.
type LicenseIssueFailed struct {
	CameraID string
	Reason   string
}

func (e *LicenseIssueFailed) Error() string {
	return "license: failed to issue license for camera " + e.CameraID + ": " + e.Reason
}
