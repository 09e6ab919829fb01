package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brinkbyte/edgegw/internal/storeerr"
)

func setupMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify(nil))
	assert.ErrorIs(t, classify(sql.ErrNoRows), storeerr.ErrNotFound)
	assert.ErrorIs(t, classify(&pq.Error{Code: "23505"}), storeerr.ErrConstraintViolation)
	assert.ErrorIs(t, classify(&pq.Error{Code: "08006"}), storeerr.ErrBackendUnavailable)
	assert.ErrorIs(t, classify(errors.New("boom")), storeerr.ErrBackendUnavailable)
}

func TestCameraLicenseStore_GetByCameraID_NotFound(t *testing.T) {
	db, mock := setupMock(t)
	mock.ExpectQuery(`SELECT camera_id, tenant_id, device_id, mode, is_valid, valid_until`).
		WithArgs("cam-1").
		WillReturnError(sql.ErrNoRows)

	s := CameraLicenseStore{DB: db}
	_, err := s.GetByCameraID(context.Background(), "cam-1")
	assert.ErrorIs(t, err, storeerr.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCameraLicenseStore_Upsert(t *testing.T) {
	db, mock := setupMock(t)
	now := time.Now()
	mock.ExpectQuery(`INSERT INTO camera_licenses`).
		WithArgs("cam-1", "tenant-a", "dev-1", "trial", true, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	s := CameraLicenseStore{DB: db}
	l := &CameraLicense{
		CameraID: "cam-1", TenantID: "tenant-a", DeviceID: "dev-1",
		Mode: LicenseModeTrial, IsValid: true, ValidUntil: now.Add(48 * time.Hour),
		GrowthPacks: []string{"analytics-pro"}, LastValidated: now,
	}
	require.NoError(t, s.Upsert(context.Background(), l))
	assert.Equal(t, now, l.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCameraLicenseStore_CountActiveTrials(t *testing.T) {
	db, mock := setupMock(t)
	mock.ExpectQuery(`SELECT count\(\*\) FROM camera_licenses`).
		WithArgs("tenant-a", "trial").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	s := CameraLicenseStore{DB: db}
	n, err := s.CountActiveTrials(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFeatureEntitlementStore_QuotaRemaining(t *testing.T) {
	unlimited := FeatureEntitlement{QuotaLimit: -1, QuotaUsed: 500}
	assert.Equal(t, int64(-1), unlimited.QuotaRemaining())

	exhausted := FeatureEntitlement{QuotaLimit: 100, QuotaUsed: 140}
	assert.Equal(t, int64(0), exhausted.QuotaRemaining())

	partial := FeatureEntitlement{QuotaLimit: 100, QuotaUsed: 40}
	assert.Equal(t, int64(60), partial.QuotaRemaining())
}

func TestFeatureEntitlementStore_IncrementUsage(t *testing.T) {
	db, mock := setupMock(t)
	mock.ExpectQuery(`UPDATE feature_entitlements SET quota_used = quota_used \+ \$3`).
		WithArgs("tenant-a", "zone_analytics", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"quota_used"}).AddRow(int64(41)))

	s := FeatureEntitlementStore{DB: db}
	used, err := s.IncrementUsage(context.Background(), "tenant-a", "zone_analytics", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(41), used)
}

func TestUsageEventStore_SaveBatch_Empty(t *testing.T) {
	db, _ := setupMock(t)
	s := UsageEventStore{DB: db}
	assert.NoError(t, s.SaveBatch(context.Background(), nil))
}

func TestUsageEventStore_SaveBatch_RollsBackOnError(t *testing.T) {
	db, mock := setupMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO usage_events`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	s := UsageEventStore{DB: db}
	events := []*UsageEvent{{TenantID: "t", DeviceID: "d", Type: UsageAPICall, Quantity: 1, EventTime: time.Now()}}
	err := s.SaveBatch(context.Background(), events)
	assert.ErrorIs(t, err, storeerr.ErrBackendUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageEventStore_SaveBatch_Commits(t *testing.T) {
	db, mock := setupMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO usage_events`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	s := UsageEventStore{DB: db}
	events := []*UsageEvent{{TenantID: "t", DeviceID: "d", Type: UsageLLMTokens, Quantity: 128, EventTime: time.Now()}}
	require.NoError(t, s.SaveBatch(context.Background(), events))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncStatusStore_RecordFailureThenSuccess(t *testing.T) {
	db, mock := setupMock(t)
	mock.ExpectExec(`INSERT INTO billing_sync_status`).
		WithArgs("dev-1", "connection refused").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO billing_sync_status`).
		WithArgs("dev-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := SyncStatusStore{DB: db}
	require.NoError(t, s.RecordFailure(context.Background(), "dev-1", "connection refused"))
	require.NoError(t, s.RecordSuccess(context.Background(), "dev-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
