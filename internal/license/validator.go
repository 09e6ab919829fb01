package license

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/brinkbyte/edgegw/internal/billingclient"
	"github.com/brinkbyte/edgegw/internal/cache"
	"github.com/brinkbyte/edgegw/internal/store"
	"github.com/brinkbyte/edgegw/internal/storeerr"
)

// degradedState tracks whether the billing service is currently
// unreachable, behind its own lock; the Validator has no other lock, so
// no path re-enters it — see the re-entrancy note below.
type degradedState struct {
	mu            sync.Mutex
	degraded      bool
	lastSyncAt    time.Time
}

func (d *degradedState) set(degraded bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if degraded == d.degraded {
		if !degraded {
			d.lastSyncAt = time.Now()
		}
		return
	}
	d.degraded = degraded
	if !degraded {
		d.lastSyncAt = time.Now()
		log.Printf("license: exiting degraded mode")
	} else {
		log.Printf("license: entering degraded mode (billing server unreachable)")
	}
}

func (d *degradedState) snapshot() (bool, time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.degraded, d.lastSyncAt
}

// CameraLicenseRepository narrows store.CameraLicenseStore to what the
// validator calls, the way teacher's cameras.Service narrows Repository.
type CameraLicenseRepository interface {
	Upsert(ctx context.Context, l *store.CameraLicense) error
	GetByCameraID(ctx context.Context, cameraID string) (*store.CameraLicense, error)
}

// Validator validates camera licenses. A single method (Validate) is
// safe to call concurrently; it never re-enters its own locking from a
// nested call, unlike the source this is grounded on — the source's
// validateCameraLicense holds mutex_ for the whole call while
// handleOfflineValidation's path re-locks the same mutex_ via
// getCachedLicense, a re-entrant deadlock on a non-recursive mutex. Here
// the degraded flag lives behind its own lock (degradedState) and the
// repository/cache reads never take a validator-level lock at all, so
// there is nothing to re-enter.
type Validator struct {
	billing  billingclient.Client
	cache    *cache.Cache
	repo     CameraLicenseRepository
	cacheTTL time.Duration
	grace    time.Duration
	degraded degradedState
}

func NewValidator(billing billingclient.Client, c *cache.Cache, repo CameraLicenseRepository, cacheTTL, gracePeriod time.Duration) *Validator {
	if cacheTTL <= 0 {
		cacheTTL = DefaultLicenseCacheTTL
	}
	if gracePeriod <= 0 {
		gracePeriod = DefaultOfflineGracePeriod
	}
	return &Validator{billing: billing, cache: c, repo: repo, cacheTTL: cacheTTL, grace: gracePeriod}
}

func cacheKeyCameraLicense(cameraID string) string {
	return "license:camera:" + cameraID
}

// Validate implements spec.md §4.C3's license validation algorithm.
func (v *Validator) Validate(ctx context.Context, cameraID, tenantID, deviceID string, forceRefresh bool) (ValidationResult, error) {
	key := cacheKeyCameraLicense(cameraID)

	if !forceRefresh {
		if raw, ok := v.cache.Get(ctx, key); ok {
			if res, err := decodeValidation(raw); err == nil {
				return res, nil
			}
		}
	}

	resp, err := v.billing.ValidateCameraLicense(ctx, billingclient.ValidateLicenseRequest{
		CameraID: cameraID, TenantID: tenantID, DeviceID: deviceID,
	})
	if err != nil {
		v.degraded.set(true)
		return v.handleOffline(ctx, cameraID, tenantID)
	}

	result := ValidationResult{
		IsValid:        resp.IsValid,
		Mode:           store.LicenseMode(resp.LicenseMode),
		GrowthPacks:    resp.EnabledGrowthPacks,
		ValidUntil:     resp.ValidUntil,
		CamerasAllowed: -1,
	}
	if resp.CamerasAllowed != nil {
		result.CamerasAllowed = *resp.CamerasAllowed
	}

	if raw, encErr := encodeValidation(result); encErr == nil {
		v.cache.Set(ctx, key, raw, v.cacheTTL)
	}
	if upsertErr := v.repo.Upsert(ctx, &store.CameraLicense{
		CameraID: cameraID, TenantID: tenantID, DeviceID: deviceID,
		Mode: result.Mode, IsValid: result.IsValid, ValidUntil: result.ValidUntil,
		GrowthPacks: result.GrowthPacks, LastValidated: time.Now(),
	}); upsertErr != nil {
		log.Printf("license: failed to persist validation for camera %s: %v", cameraID, upsertErr)
	}

	v.degraded.set(false)
	return result, nil
}

// handleOffline mirrors handleOfflineValidation: prefer the cache, fall
// back to the repository row, reject past the offline grace period.
func (v *Validator) handleOffline(ctx context.Context, cameraID, tenantID string) (ValidationResult, error) {
	cached, found := v.lookupCached(ctx, cameraID)
	if !found {
		return ValidationResult{
			IsValid: false, Mode: store.LicenseModeUnlicensed,
			ErrorMessage: "no cached license available and billing server offline",
		}, nil
	}

	_, lastSync := v.degraded.snapshot()
	offlineFor := time.Since(lastSync)
	if !lastSync.IsZero() && offlineFor > v.grace {
		cached.IsValid = false
		cached.Mode = store.LicenseModeUnlicensed
		cached.ErrorMessage = "cached license expired: offline grace period exceeded"
		return cached, nil
	}

	if cached.IsValid && time.Now().Before(cached.ValidUntil) {
		cached.ErrorMessage = "degraded: using cached license"
		return cached, nil
	}

	cached.IsValid = false
	cached.ErrorMessage = "cached license expired"
	return cached, nil
}

// lookupCached reads the cache first, then the repository — both
// non-locking reads, safe to call from inside handleOffline without any
// re-entrant validator lock.
func (v *Validator) lookupCached(ctx context.Context, cameraID string) (ValidationResult, bool) {
	key := cacheKeyCameraLicense(cameraID)
	if raw, ok := v.cache.Get(ctx, key); ok {
		if res, err := decodeValidation(raw); err == nil {
			return res, true
		}
	}

	row, err := v.repo.GetByCameraID(ctx, cameraID)
	if err != nil {
		if !errors.Is(err, storeerr.ErrNotFound) {
			log.Printf("license: repository lookup failed for camera %s: %v", cameraID, err)
		}
		return ValidationResult{}, false
	}
	return ValidationResult{
		IsValid: row.IsValid, Mode: row.Mode, GrowthPacks: row.GrowthPacks,
		ValidUntil: row.ValidUntil, CamerasAllowed: -1,
	}, true
}

// GetCameraLimit implements spec.md §4.C3's getCameraLimit: -1 for base,
// TRIAL_CAMERA_LIMIT for trial, 0 for unlicensed, defaulting to the trial
// limit on remote failure (conservative).
func (v *Validator) GetCameraLimit(ctx context.Context, tenantID, deviceID string) int {
	resp, err := v.billing.ValidateCameraLicense(ctx, billingclient.ValidateLicenseRequest{TenantID: tenantID, DeviceID: deviceID})
	if err != nil {
		return DefaultTrialCameraLimit
	}
	switch store.LicenseMode(resp.LicenseMode) {
	case store.LicenseModeTrial:
		return DefaultTrialCameraLimit
	case store.LicenseModeBase:
		return -1
	default:
		return 0
	}
}

// CanAddCamera implements spec.md §4.C3's canAddCamera.
func CanAddCamera(limit, currentCount int) bool {
	return limit == -1 || currentCount < limit
}

// IsDegraded reports the current degraded state and time since the last
// successful sync, for diagnostics.
func (v *Validator) IsDegraded() (bool, time.Duration) {
	degraded, lastSync := v.degraded.snapshot()
	if lastSync.IsZero() {
		return degraded, 0
	}
	return degraded, time.Since(lastSync)
}

