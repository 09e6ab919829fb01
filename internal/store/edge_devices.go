package store

import (
	"context"

	"github.com/brinkbyte/edgegw/internal/storeerr"
)

// EdgeDeviceStore is the repository for the device that hosts this gateway.
// There is usually exactly one row per deployed gateway, keyed by device_id.
type EdgeDeviceStore struct {
	DB DBTX
}

// Register upserts the device's identity on startup. Safe to call on every
// boot: the management tier and tenant can change if the device was
// re-provisioned, but the device_id is stable.
func (s EdgeDeviceStore) Register(ctx context.Context, d *EdgeDevice) error {
	query := `
		INSERT INTO edge_devices (device_id, tenant_id, management_tier, last_heartbeat_at, created_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (device_id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			management_tier = EXCLUDED.management_tier,
			last_heartbeat_at = NOW()
		RETURNING created_at`
	if err := s.DB.QueryRowContext(ctx, query, d.DeviceID, d.TenantID, d.ManagementTier).Scan(&d.CreatedAt); err != nil {
		return classify(err)
	}
	return nil
}

func (s EdgeDeviceStore) GetByID(ctx context.Context, deviceID string) (*EdgeDevice, error) {
	query := `SELECT device_id, tenant_id, management_tier, last_heartbeat_at, created_at
		FROM edge_devices WHERE device_id = $1`
	var d EdgeDevice
	err := s.DB.QueryRowContext(ctx, query, deviceID).Scan(
		&d.DeviceID, &d.TenantID, &d.ManagementTier, &d.LastHeartbeatAt, &d.CreatedAt)
	if err != nil {
		return nil, classify(err)
	}
	return &d, nil
}

// Heartbeat bumps last_heartbeat_at to keep the device row fresh
// regardless of whether any camera license changed. The billing client's
// heartbeat RPC does not call it; no component of the gateway does.
func (s EdgeDeviceStore) Heartbeat(ctx context.Context, deviceID string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE edge_devices SET last_heartbeat_at = NOW() WHERE device_id = $1`, deviceID)
	if err != nil {
		return classify(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if rows == 0 {
		return storeerr.ErrNotFound
	}
	return nil
}
