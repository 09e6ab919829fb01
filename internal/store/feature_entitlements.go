package store

import (
	"context"

	"github.com/lib/pq"
)

// FeatureEntitlementStore is the repository behind the §3 "Feature
// Entitlement" plane: one row per (tenant, feature), refreshed from billing
// and consulted (and quota-debited) on every gated operation.
type FeatureEntitlementStore struct {
	DB DBTX
}

func (s FeatureEntitlementStore) Upsert(ctx context.Context, e *FeatureEntitlement) error {
	query := `
		INSERT INTO feature_entitlements (
			tenant_id, category, feature, enabled, quota_limit, quota_used,
			valid_until, last_checked
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (tenant_id, feature) DO UPDATE SET
			category = EXCLUDED.category,
			enabled = EXCLUDED.enabled,
			quota_limit = EXCLUDED.quota_limit,
			valid_until = EXCLUDED.valid_until,
			last_checked = NOW()`
	_, err := s.DB.ExecContext(ctx, query,
		e.TenantID, string(e.Category), e.Feature, e.Enabled, e.QuotaLimit, e.QuotaUsed, e.ValidUntil)
	return classify(err)
}

func (s FeatureEntitlementStore) Get(ctx context.Context, tenantID, feature string) (*FeatureEntitlement, error) {
	query := `
		SELECT tenant_id, category, feature, enabled, quota_limit, quota_used, valid_until, last_checked
		FROM feature_entitlements WHERE tenant_id = $1 AND feature = $2`
	var e FeatureEntitlement
	var category string
	err := s.DB.QueryRowContext(ctx, query, tenantID, feature).Scan(
		&e.TenantID, &category, &e.Feature, &e.Enabled, &e.QuotaLimit, &e.QuotaUsed, &e.ValidUntil, &e.LastChecked)
	if err != nil {
		return nil, classify(err)
	}
	e.Category = FeatureCategory(category)
	return &e, nil
}

// BulkGet supplements the distilled spec: it reads several features of a
// tenant in one round trip instead of N. license.Entitlements uses it to
// decide whether any feature of a growth pack is enabled.
func (s FeatureEntitlementStore) BulkGet(ctx context.Context, tenantID string, features []string) ([]*FeatureEntitlement, error) {
	query := `
		SELECT tenant_id, category, feature, enabled, quota_limit, quota_used, valid_until, last_checked
		FROM feature_entitlements WHERE tenant_id = $1 AND feature = ANY($2)`
	rows, err := s.DB.QueryContext(ctx, query, tenantID, pq.Array(features))
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []*FeatureEntitlement
	for rows.Next() {
		var e FeatureEntitlement
		var category string
		if err := rows.Scan(&e.TenantID, &category, &e.Feature, &e.Enabled,
			&e.QuotaLimit, &e.QuotaUsed, &e.ValidUntil, &e.LastChecked); err != nil {
			return nil, classify(err)
		}
		e.Category = FeatureCategory(category)
		out = append(out, &e)
	}
	return out, nil
}

// IncrementUsage debits quota atomically so concurrent callers on the same
// tenant/feature never double-spend the last unit. Returns the new
// quota_used. Unlimited features (quota_limit = -1) are not tracked here;
// callers should not invoke this for them.
func (s FeatureEntitlementStore) IncrementUsage(ctx context.Context, tenantID, feature string, delta int64) (int64, error) {
	query := `
		UPDATE feature_entitlements SET quota_used = quota_used + $3
		WHERE tenant_id = $1 AND feature = $2
		RETURNING quota_used`
	var used int64
	if err := s.DB.QueryRowContext(ctx, query, tenantID, feature, delta).Scan(&used); err != nil {
		return 0, classify(err)
	}
	return used, nil
}

// ResetQuota zeroes quota_used for every feature of a tenant in one
// category, for the start of a new billing period. No component of the
// gateway calls it.
func (s FeatureEntitlementStore) ResetQuota(ctx context.Context, tenantID string, category FeatureCategory) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE feature_entitlements SET quota_used = 0 WHERE tenant_id = $1 AND category = $2`,
		tenantID, string(category))
	return classify(err)
}
