// Package usage implements the usage tracker: an in-process FIFO queue of
// usage events, persisted durably before each remote submission attempt,
// synced to the billing service on a background worker with exponential
// backoff on failure.
package usage

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brinkbyte/edgegw/internal/billingclient"
	"github.com/brinkbyte/edgegw/internal/store"
)

const (
	// DefaultBatchSize is the batch size env default (spec.md §6).
	DefaultBatchSize = 1000
	// DefaultBatchInterval is the sync interval env default.
	DefaultBatchInterval = 5 * time.Minute
	// maxBackoffSeconds caps the exponential backoff (spec.md §4.C4).
	maxBackoffSeconds = 300
	// startupReloadLimit caps how many unsynced rows are reloaded on boot.
	startupReloadLimit = 1000
)

// EventRepository is the persistence surface the tracker needs, narrowed
// from store.UsageEventStore the way teacher's cameras.Service narrows
// its Repository dependency to just the methods it calls.
type EventRepository interface {
	SaveBatch(ctx context.Context, events []*store.UsageEvent) error
	FindUnsynced(ctx context.Context, limit int) ([]*store.UsageEvent, error)
	MarkSynced(ctx context.Context, ids []uuid.UUID) error
}

// Tracker buffers usage events in memory and syncs them to the billing
// service in the background. Submission API is the eight Track<Kind>
// methods in events.go.
type Tracker struct {
	repo    EventRepository
	billing billingclient.Client

	tenantID, deviceID string

	batchSize     int
	batchInterval time.Duration

	mu    sync.Mutex
	queue []*store.UsageEvent

	consecutiveFailures int
	lastSyncAt          time.Time

	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func NewTracker(repo EventRepository, billing billingclient.Client, tenantID, deviceID string, batchSize int, batchInterval time.Duration) *Tracker {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchInterval <= 0 {
		batchInterval = DefaultBatchInterval
	}
	return &Tracker{
		repo: repo, billing: billing, tenantID: tenantID, deviceID: deviceID,
		batchSize: batchSize, batchInterval: batchInterval,
		stop: make(chan struct{}), stopped: make(chan struct{}),
	}
}

// enqueue appends to the in-process FIFO under the queue lock, held
// briefly for enqueue/dequeue only (spec.md §5 shared-resource policy).
func (t *Tracker) enqueue(e *store.UsageEvent) {
	t.mu.Lock()
	t.queue = append(t.queue, e)
	t.mu.Unlock()
}

func (t *Tracker) queueSize() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// dequeueBatch removes up to n events from the head of the queue.
func (t *Tracker) dequeueBatch(n int) []*store.UsageEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n > len(t.queue) {
		n = len(t.queue)
	}
	batch := t.queue[:n]
	t.queue = t.queue[n:]
	return batch
}

// requeueTail puts events back at the tail, not the head — order is not
// strictly preserved on retry (spec.md §9 "usage-event ordering").
func (t *Tracker) requeueTail(events []*store.UsageEvent) {
	t.mu.Lock()
	t.queue = append(t.queue, events...)
	t.mu.Unlock()
}

// Start launches the background sync worker.
func (t *Tracker) Start(ctx context.Context) {
	go t.syncLoop(ctx)
}

// Stop signals the worker to exit and blocks until it has. A second call
// is idempotent.
func (t *Tracker) Stop() {
	t.once.Do(func() { close(t.stop) })
	<-t.stopped
}

// StartupReload loads up to 1000 unsynced rows from the repository and
// re-enqueues them, matching loadUnsentEventsFromDatabase.
func (t *Tracker) StartupReload(ctx context.Context) error {
	rows, err := t.repo.FindUnsynced(ctx, startupReloadLimit)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.queue = append(t.queue, rows...)
	t.mu.Unlock()
	log.Printf("usage: reloaded %d unsynced events on startup", len(rows))
	return nil
}

func (t *Tracker) syncLoop(ctx context.Context) {
	defer close(t.stopped)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			t.flushUntilEmptyOrFail(ctx)
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			shouldSync := t.queueSize() >= t.batchSize ||
				(time.Since(t.lastSyncAt) >= t.batchInterval && t.queueSize() > 0)
			if !shouldSync {
				continue
			}
			if !t.attemptSync(ctx) {
				delay := t.backoffDelay()
				select {
				case <-time.After(time.Duration(delay) * time.Second):
				case <-t.stop:
					t.flushUntilEmptyOrFail(ctx)
					return
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// attemptSync dequeues up to batchSize events, persists them, POSTs the
// batch, and marks them synced on success. Returns true iff the attempt
// succeeded.
func (t *Tracker) attemptSync(ctx context.Context) bool {
	batch := t.dequeueBatch(t.batchSize)
	if len(batch) == 0 {
		return true
	}
	return t.syncBatch(ctx, batch)
}

func (t *Tracker) syncBatch(ctx context.Context, batch []*store.UsageEvent) bool {
	if err := t.repo.SaveBatch(ctx, batch); err != nil {
		log.Printf("usage: failed to persist batch of %d events: %v", len(batch), err)
		t.requeueTail(batch)
		t.consecutiveFailures++
		return false
	}

	req := billingclient.UsageBatchRequest{Events: make([]billingclient.UsageBatchEvent, len(batch))}
	for i, e := range batch {
		req.Events[i] = billingclient.UsageBatchEvent{
			TenantID: e.TenantID, DeviceID: e.DeviceID, CameraID: e.CameraID,
			EventType: string(e.Type), Quantity: e.Quantity, Unit: e.Unit, Metadata: e.Metadata,
		}
	}

	_, err := t.billing.SubmitUsageBatch(ctx, req)
	if err != nil {
		log.Printf("usage: failed to submit batch of %d events: %v", len(batch), err)
		t.requeueTail(batch)
		t.consecutiveFailures++
		return false
	}

	ids := make([]uuid.UUID, len(batch))
	for i, e := range batch {
		ids[i] = e.ID
	}
	if err := t.repo.MarkSynced(ctx, ids); err != nil {
		log.Printf("usage: failed to mark %d events synced: %v", len(ids), err)
		return false
	}

	t.consecutiveFailures = 0
	t.lastSyncAt = time.Now()
	return true
}

// backoffDelay is min(2^failures, 300) seconds.
func (t *Tracker) backoffDelay() int {
	exp := t.consecutiveFailures
	if exp > 9 {
		exp = 9
	}
	delay := int(math.Pow(2, float64(exp)))
	if delay > maxBackoffSeconds {
		delay = maxBackoffSeconds
	}
	return delay
}

// Flush forces sync attempts until the queue is empty or the next
// attempt fails.
func (t *Tracker) Flush(ctx context.Context) {
	t.flushUntilEmptyOrFail(ctx)
}

func (t *Tracker) flushUntilEmptyOrFail(ctx context.Context) {
	for t.queueSize() > 0 {
		if !t.attemptSync(ctx) {
			return
		}
	}
}

func marshalMetadata(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
