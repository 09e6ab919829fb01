package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// usageDB is what UsageEventStore needs: the ordinary DBTX surface plus
// BeginTx, since SaveBatch must commit a whole batch atomically.
type usageDB interface {
	DBTX
	TxBeginner
}

// UsageEventStore is the repository behind the §4.C4 usage tracker: events
// are written locally first (durable before the remote POST), then marked
// synced once the billing service accepts a batch.
type UsageEventStore struct {
	DB usageDB
}

// SaveBatch persists a full batch in one transaction so a crash mid-batch
// never leaves a partially durable set that the tracker would re-send with
// gaps. Mirrors usage_tracker.cpp's loadUnsentEventsFromDatabase contract:
// whatever SaveBatch commits is guaranteed to survive a restart.
func (s UsageEventStore) SaveBatch(ctx context.Context, events []*UsageEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO usage_events (
			id, tenant_id, device_id, camera_id, type, quantity, unit,
			metadata, event_time, synced
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`

	for _, e := range events {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if _, err := tx.ExecContext(ctx, query,
			e.ID, e.TenantID, e.DeviceID, e.CameraID, string(e.Type), e.Quantity, e.Unit,
			e.Metadata, e.EventTime, e.Synced,
		); err != nil {
			return classify(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

// FindUnsynced loads up to limit unsynced rows oldest-first, matching the
// original's 1000-row startup reload cap (usage_tracker.cpp).
func (s UsageEventStore) FindUnsynced(ctx context.Context, limit int) ([]*UsageEvent, error) {
	query := `
		SELECT id, tenant_id, device_id, camera_id, type, quantity, unit,
		       metadata, event_time, synced
		FROM usage_events WHERE synced = false
		ORDER BY event_time ASC
		LIMIT $1`
	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	return scanUsageEvents(rows)
}

// MarkSynced flips synced=true for a batch of ids. Idempotent: ids already
// synced (or no longer present) are silently skipped, matching at-least-once
// delivery where the tracker may re-send a batch the server already saw.
func (s UsageEventStore) MarkSynced(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	_, err := s.DB.ExecContext(ctx,
		`UPDATE usage_events SET synced = true WHERE id = ANY($1::uuid[])`, pq.Array(raw))
	return classify(err)
}

// SumByType supplements the distilled spec (original_source billing
// repository) with an aggregate query: the total quantity of one event
// type for a tenant since a given instant. No component of the gateway
// calls it.
func (s UsageEventStore) SumByType(ctx context.Context, tenantID string, typ UsageEventType, since time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(quantity), 0) FROM usage_events
		WHERE tenant_id = $1 AND type = $2 AND event_time >= $3`
	var total float64
	if err := s.DB.QueryRowContext(ctx, query, tenantID, string(typ), since).Scan(&total); err != nil {
		return 0, classify(err)
	}
	return total, nil
}

// ClearStale deletes synced rows older than the retention window, bounding
// table growth the way usage_tracker.cpp's own housekeeping does (it never
// lets the local ledger grow unbounded once the billing service has the
// data durably).
func (s UsageEventStore) ClearStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM usage_events WHERE synced = true AND event_time < NOW() - $1::interval`,
		olderThan.String())
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

func scanUsageEvents(rows *sql.Rows) ([]*UsageEvent, error) {
	var out []*UsageEvent
	for rows.Next() {
		var e UsageEvent
		var typ string
		if err := rows.Scan(&e.ID, &e.TenantID, &e.DeviceID, &e.CameraID, &typ,
			&e.Quantity, &e.Unit, &e.Metadata, &e.EventTime, &e.Synced); err != nil {
			return nil, classify(err)
		}
		e.Type = UsageEventType(typ)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}
