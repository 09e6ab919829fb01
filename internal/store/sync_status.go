package store

import "context"

// SyncStatusStore persists the license plane's degraded-mode bookkeeping
// across restarts, so a gateway that reboots while offline comes back up
// still knowing it is degraded rather than optimistically assuming the
// billing service is reachable.
type SyncStatusStore struct {
	DB DBTX
}

func (s SyncStatusStore) Get(ctx context.Context, deviceID string) (*SyncStatus, error) {
	query := `
		SELECT device_id, degraded, last_success_at, last_attempt_at, last_error
		FROM billing_sync_status WHERE device_id = $1`
	var st SyncStatus
	err := s.DB.QueryRowContext(ctx, query, deviceID).Scan(
		&st.DeviceID, &st.Degraded, &st.LastSuccessAt, &st.LastAttemptAt, &st.LastError)
	if err != nil {
		return nil, classify(err)
	}
	return &st, nil
}

// RecordSuccess clears degraded status and stamps last_success_at. The
// server's periodic sync-status recorder calls it while the license
// validator reports that it is not degraded.
func (s SyncStatusStore) RecordSuccess(ctx context.Context, deviceID string) error {
	query := `
		INSERT INTO billing_sync_status (device_id, degraded, last_success_at, last_attempt_at, last_error)
		VALUES ($1, false, NOW(), NOW(), '')
		ON CONFLICT (device_id) DO UPDATE SET
			degraded = false,
			last_success_at = NOW(),
			last_attempt_at = NOW(),
			last_error = ''`
	_, err := s.DB.ExecContext(ctx, query, deviceID)
	return classify(err)
}

// RecordFailure flips degraded on and records the error. The server's
// periodic sync-status recorder calls it while the license validator
// reports that it is degraded.
func (s SyncStatusStore) RecordFailure(ctx context.Context, deviceID, errMsg string) error {
	query := `
		INSERT INTO billing_sync_status (device_id, degraded, last_success_at, last_attempt_at, last_error)
		VALUES ($1, true, '0001-01-01', NOW(), $2)
		ON CONFLICT (device_id) DO UPDATE SET
			degraded = true,
			last_attempt_at = NOW(),
			last_error = EXCLUDED.last_error`
	_, err := s.DB.ExecContext(ctx, query, deviceID, errMsg)
	return classify(err)
}
