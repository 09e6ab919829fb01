package store

import (
	"context"
	"time"

	"github.com/lib/pq"
)

// CameraLicenseStore is the repository behind the §3 "Camera License"
// lifecycle: created by the camera registry, mutated only by the license
// plane, removed when its camera is deleted.
type CameraLicenseStore struct {
	DB DBTX
}

// Upsert inserts or updates the license row for a camera. This is the only
// write path the license plane uses on re-validation (spec.md §4.C3 step 2).
func (s CameraLicenseStore) Upsert(ctx context.Context, l *CameraLicense) error {
	query := `
		INSERT INTO camera_licenses (
			camera_id, tenant_id, device_id, mode, is_valid, valid_until,
			growth_packs, last_validated, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (camera_id) DO UPDATE SET
			mode = EXCLUDED.mode,
			is_valid = EXCLUDED.is_valid,
			valid_until = EXCLUDED.valid_until,
			growth_packs = EXCLUDED.growth_packs,
			last_validated = EXCLUDED.last_validated,
			updated_at = NOW()
		RETURNING created_at, updated_at`

	err := s.DB.QueryRowContext(ctx, query,
		l.CameraID, l.TenantID, l.DeviceID, string(l.Mode), l.IsValid, l.ValidUntil,
		pq.Array(l.GrowthPacks), l.LastValidated,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return classify(err)
	}
	return nil
}

// GetByCameraID returns ErrNotFound if no row exists for the camera.
func (s CameraLicenseStore) GetByCameraID(ctx context.Context, cameraID string) (*CameraLicense, error) {
	query := `
		SELECT camera_id, tenant_id, device_id, mode, is_valid, valid_until,
		       growth_packs, last_validated, created_at, updated_at
		FROM camera_licenses WHERE camera_id = $1`

	var l CameraLicense
	var mode string
	var packs []string
	err := s.DB.QueryRowContext(ctx, query, cameraID).Scan(
		&l.CameraID, &l.TenantID, &l.DeviceID, &mode, &l.IsValid, &l.ValidUntil,
		pq.Array(&packs), &l.LastValidated, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, classify(err)
	}
	l.Mode = LicenseMode(mode)
	l.GrowthPacks = packs
	return &l, nil
}

// CountActiveTrials implements the invariant "for each tenant, at most
// TRIAL_CAMERA_LIMIT cameras may simultaneously have mode=trial and
// valid_until in the future" (spec.md §3).
func (s CameraLicenseStore) CountActiveTrials(ctx context.Context, tenantID string) (int, error) {
	query := `
		SELECT count(*) FROM camera_licenses
		WHERE tenant_id = $1 AND mode = $2 AND valid_until > NOW()`
	var n int
	if err := s.DB.QueryRowContext(ctx, query, tenantID, string(LicenseModeTrial)).Scan(&n); err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// Remove deletes the license row for a camera (called on camera deletion).
func (s CameraLicenseStore) Remove(ctx context.Context, cameraID string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM camera_licenses WHERE camera_id = $1`, cameraID)
	if err != nil {
		return classify(err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return nil // idempotent: already gone
	}
	return nil
}

// FindExpiringSoon supplements the distilled spec (original_source
// include/billing/repository.h) with a maintenance-sweep query: licenses
// whose valid_until falls within the window, used to pre-warm the cache
// before expiry instead of waiting for a cache miss.
func (s CameraLicenseStore) FindExpiringSoon(ctx context.Context, within time.Duration, limit int) ([]*CameraLicense, error) {
	query := `
		SELECT camera_id, tenant_id, device_id, mode, is_valid, valid_until,
		       growth_packs, last_validated, created_at, updated_at
		FROM camera_licenses
		WHERE valid_until BETWEEN NOW() AND NOW() + $1::interval
		ORDER BY valid_until ASC
		LIMIT $2`

	rows, err := s.DB.QueryContext(ctx, query, within.String(), limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []*CameraLicense
	for rows.Next() {
		var l CameraLicense
		var mode string
		var packs []string
		if err := rows.Scan(&l.CameraID, &l.TenantID, &l.DeviceID, &mode, &l.IsValid, &l.ValidUntil,
			pq.Array(&packs), &l.LastValidated, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, classify(err)
		}
		l.Mode = LicenseMode(mode)
		l.GrowthPacks = packs
		out = append(out, &l)
	}
	return out, nil
}
