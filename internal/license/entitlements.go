package license

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/brinkbyte/edgegw/internal/billingclient"
	"github.com/brinkbyte/edgegw/internal/cache"
	"github.com/brinkbyte/edgegw/internal/store"
	"github.com/brinkbyte/edgegw/internal/storeerr"
)

// EntitlementResult is what callers of Check get back.
type EntitlementResult struct {
	IsEnabled      bool
	QuotaLimit     int64
	QuotaUsed      int64
	QuotaRemaining int64
	ValidUntil     time.Time
}

// FeatureKey names a single (category, feature) pair for BulkCheck.
type FeatureKey struct {
	Category store.FeatureCategory
	Feature  string
}

// FeatureEntitlementRepository narrows store.FeatureEntitlementStore to
// what Entitlements calls.
type FeatureEntitlementRepository interface {
	Upsert(ctx context.Context, e *store.FeatureEntitlement) error
	Get(ctx context.Context, tenantID, feature string) (*store.FeatureEntitlement, error)
	BulkGet(ctx context.Context, tenantID string, features []string) ([]*store.FeatureEntitlement, error)
	IncrementUsage(ctx context.Context, tenantID, feature string, delta int64) (int64, error)
}

// Entitlements checks feature entitlements and accounts quota usage.
// Shares the two-level cache and billing client with Validator but keeps
// its own growth-pack config since the two planes are independently
// cacheable (different TTLs, different cache key namespaces).
type Entitlements struct {
	billing    billingclient.Client
	cache      *cache.Cache
	repo       FeatureEntitlementRepository
	growthPack *GrowthPackConfig
	cacheTTL   time.Duration
}

func NewEntitlements(billing billingclient.Client, c *cache.Cache, repo FeatureEntitlementRepository, growthPack *GrowthPackConfig, cacheTTL time.Duration) *Entitlements {
	if cacheTTL <= 0 {
		cacheTTL = DefaultEntitlementCacheTTL
	}
	if growthPack == nil {
		growthPack = DefaultGrowthPacks()
	}
	return &Entitlements{billing: billing, cache: c, repo: repo, growthPack: growthPack, cacheTTL: cacheTTL}
}

func cacheKeyEntitlement(tenantID string, category store.FeatureCategory, feature string) string {
	return "entitlement:" + tenantID + ":" + string(category) + ":" + feature
}

func cacheKeyGrowthPacks(tenantID string) string {
	return "growth_packs:" + tenantID
}

// Check implements spec.md §4.C3's entitlement algorithm: cache first,
// then the remote RPC, falling back to the repository row on RPC
// failure, and enabled=false/quota=0 if nothing is known at all.
func (e *Entitlements) Check(ctx context.Context, tenantID string, category store.FeatureCategory, feature string) (EntitlementResult, error) {
	key := cacheKeyEntitlement(tenantID, category, feature)

	if raw, ok := e.cache.Get(ctx, key); ok {
		if res, err := decodeEntitlement(raw); err == nil {
			return res, nil
		}
	}

	resp, err := e.billing.CheckEntitlement(ctx, billingclient.CheckEntitlementRequest{
		TenantID: tenantID, FeatureCategory: string(category), FeatureName: feature,
	})
	if err != nil {
		return e.fallbackToRepo(ctx, tenantID, category, feature)
	}

	result := EntitlementResult{
		IsEnabled: resp.IsEnabled, QuotaLimit: resp.QuotaLimit, QuotaUsed: resp.QuotaUsed,
		QuotaRemaining: resp.QuotaRemaining, ValidUntil: resp.ValidUntil,
	}
	if raw, encErr := encodeEntitlement(result); encErr == nil {
		e.cache.Set(ctx, key, raw, e.cacheTTL)
	}
	if upsertErr := e.repo.Upsert(ctx, &store.FeatureEntitlement{
		TenantID: tenantID, Category: category, Feature: feature, Enabled: result.IsEnabled,
		QuotaLimit: result.QuotaLimit, QuotaUsed: result.QuotaUsed, ValidUntil: result.ValidUntil,
	}); upsertErr != nil {
		log.Printf("license: failed to persist entitlement for %s/%s/%s: %v", tenantID, category, feature, upsertErr)
	}
	return result, nil
}

func (e *Entitlements) fallbackToRepo(ctx context.Context, tenantID string, category store.FeatureCategory, feature string) (EntitlementResult, error) {
	row, err := e.repo.Get(ctx, tenantID, feature)
	if err != nil {
		if !errors.Is(err, storeerr.ErrNotFound) {
			log.Printf("license: entitlement repo fallback failed for %s/%s: %v", tenantID, feature, err)
		}
		return EntitlementResult{IsEnabled: false, QuotaLimit: 0, QuotaUsed: 0, QuotaRemaining: 0}, nil
	}
	return EntitlementResult{
		IsEnabled: row.Enabled, QuotaLimit: row.QuotaLimit, QuotaUsed: row.QuotaUsed,
		QuotaRemaining: row.QuotaRemaining(), ValidUntil: row.ValidUntil,
	}, nil
}

// BulkCheck checks several (category, feature) pairs by calling Check once
// per pair, so it costs the same cache lookups (and, on misses, billing
// calls) as N separate Check calls. Results are keyed by feature name. It
// stops at the first error and returns the results gathered so far along
// with that error.
func (e *Entitlements) BulkCheck(ctx context.Context, tenantID string, keys []FeatureKey) (map[string]EntitlementResult, error) {
	out := make(map[string]EntitlementResult, len(keys))
	for _, k := range keys {
		res, err := e.Check(ctx, tenantID, k.Category, k.Feature)
		if err != nil {
			return out, err
		}
		out[k.Feature] = res
	}
	return out, nil
}

// IncrementQuotaUsage atomically increments quota_used in the repository.
// Caches are intentionally not updated here — they are re-read with
// their TTL, trading accuracy for throughput (spec.md §4.C3).
func (e *Entitlements) IncrementQuotaUsage(ctx context.Context, tenantID, feature string, amount int64) error {
	_, err := e.repo.IncrementUsage(ctx, tenantID, feature, amount)
	return err
}

// HasGrowthPack checks whether a tenant has a named growth pack enabled,
// via the cached enabled-pack list.
func (e *Entitlements) HasGrowthPack(ctx context.Context, tenantID, packName string) bool {
	packs := e.EnabledGrowthPacks(ctx, tenantID)
	for _, p := range packs {
		if p == packName {
			return true
		}
	}
	return false
}

// EnabledGrowthPacks returns the tenant's enabled growth pack names,
// cached under growth_packs:<tenant>. It makes no billing call: a pack
// counts as enabled when any of its features has an enabled repository
// row, and a pack whose rows cannot be read counts as not enabled.
func (e *Entitlements) EnabledGrowthPacks(ctx context.Context, tenantID string) []string {
	key := cacheKeyGrowthPacks(tenantID)
	if raw, ok := e.cache.Get(ctx, key); ok {
		var packs []string
		if err := jsonUnmarshalStrings(raw, &packs); err == nil {
			return packs
		}
	}

	// The growth pack list itself is not one of the five billing RPCs in
	// spec.md §6, so this reads from the feature entitlement rows already
	// mirrored locally: any enabled feature belonging to a pack's feature
	// set counts that pack as enabled for the tenant.
	var enabled []string
	for pack, features := range e.growthPack.packs {
		if e.anyFeatureEnabled(ctx, tenantID, features) {
			enabled = append(enabled, pack)
		}
	}
	if raw, err := jsonMarshalStrings(enabled); err == nil {
		e.cache.Set(ctx, key, raw, e.cacheTTL)
	}
	return enabled
}

func (e *Entitlements) anyFeatureEnabled(ctx context.Context, tenantID string, features []string) bool {
	rows, err := e.repo.BulkGet(ctx, tenantID, features)
	if err != nil {
		return false
	}
	for _, r := range rows {
		if r.Enabled {
			return true
		}
	}
	return false
}
