package license

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brinkbyte/edgegw/internal/billingclient"
	"github.com/brinkbyte/edgegw/internal/cache"
	"github.com/brinkbyte/edgegw/internal/store"
)

func setupCache(t *testing.T) *cache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	c, err := cache.New(64, rdb)
	require.NoError(t, err)
	return c
}

func TestValidator_CacheHit(t *testing.T) {
	c := setupCache(t)
	ctx := context.Background()
	raw, err := encodeValidation(ValidationResult{IsValid: true, Mode: store.LicenseModeBase, ValidUntil: time.Now().Add(time.Hour), CamerasAllowed: -1})
	require.NoError(t, err)
	c.Set(ctx, "license:camera:cam-1", raw, time.Hour)

	billing := &billingclient.MockClient{
		ValidateFunc: func(ctx context.Context, req billingclient.ValidateLicenseRequest) (billingclient.ValidateLicenseResponse, error) {
			t.Fatal("should not call billing on cache hit")
			return billingclient.ValidateLicenseResponse{}, nil
		},
	}
	v := NewValidator(billing, c, store.CameraLicenseStore{}, 0, 0)
	res, err := v.Validate(ctx, "cam-1", "t1", "d1", false)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Equal(t, store.LicenseModeBase, res.Mode)
}

func TestCanAddCamera(t *testing.T) {
	assert.True(t, CanAddCamera(-1, 1000))
	assert.True(t, CanAddCamera(2, 1))
	assert.False(t, CanAddCamera(2, 2))
	assert.False(t, CanAddCamera(0, 0))
}

func TestEntitlementResult_FallbackOnRPCFailure(t *testing.T) {
	c := setupCache(t)
	ctx := context.Background()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery(`SELECT tenant_id, category, feature, enabled`).
		WithArgs("t1", "line_crossing").
		WillReturnError(sql.ErrNoRows)

	billing := &billingclient.MockClient{
		EntitlementFunc: func(ctx context.Context, req billingclient.CheckEntitlementRequest) (billingclient.CheckEntitlementResponse, error) {
			return billingclient.CheckEntitlementResponse{}, errors.New("billing unreachable")
		},
	}
	e := NewEntitlements(billing, c, store.FeatureEntitlementStore{DB: db}, nil, 0)
	res, err := e.fallbackToRepo(ctx, "t1", store.CategoryAnalytics, "line_crossing")
	require.NoError(t, err)
	assert.False(t, res.IsEnabled)
	assert.Equal(t, int64(0), res.QuotaRemaining)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGrowthPackConfig_Features(t *testing.T) {
	g := DefaultGrowthPacks()
	assert.Contains(t, g.Features("Advanced Analytics"), "line_crossing")
	assert.Nil(t, g.Features("Nonexistent Pack"))
}
