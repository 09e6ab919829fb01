package usage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brinkbyte/edgegw/internal/billingclient"
	"github.com/brinkbyte/edgegw/internal/store"
)

// fakeRepo is an in-memory stand-in for EventRepository.
type fakeRepo struct {
	mu      sync.Mutex
	saved   []*store.UsageEvent
	synced  map[uuid.UUID]bool
	saveErr error
}

func newFakeRepo() *fakeRepo { return &fakeRepo{synced: map[uuid.UUID]bool{}} }

func (f *fakeRepo) SaveBatch(ctx context.Context, events []*store.UsageEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, events...)
	return nil
}

func (f *fakeRepo) FindUnsynced(ctx context.Context, limit int) ([]*store.UsageEvent, error) {
	return nil, nil
}

func (f *fakeRepo) MarkSynced(ctx context.Context, ids []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.synced[id] = true
	}
	return nil
}

func (f *fakeRepo) syncedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.synced)
}

func TestTracker_TrackEnqueues(t *testing.T) {
	repo := newFakeRepo()
	tr := NewTracker(repo, &billingclient.MockClient{}, "t1", "d1", 10, time.Minute)
	tr.TrackAPICall("cam-1", 1)
	tr.TrackLLMTokens("cam-1", 128, "gpt-x")
	assert.Equal(t, 2, tr.queueSize())
}

func TestTracker_FlushSyncsAllOnSuccess(t *testing.T) {
	repo := newFakeRepo()
	tr := NewTracker(repo, &billingclient.MockClient{}, "t1", "d1", 10, time.Minute)
	tr.TrackAPICall("cam-1", 1)
	tr.TrackAPICall("cam-1", 1)
	tr.TrackAPICall("cam-1", 1)

	tr.Flush(context.Background())
	assert.Equal(t, 0, tr.queueSize())
	assert.Equal(t, 3, repo.syncedCount())
}

func TestTracker_RequeueOnFailureGoesToTail(t *testing.T) {
	repo := newFakeRepo()
	attempts := 0
	billing := &billingclient.MockClient{
		UsageBatchFunc: func(ctx context.Context, req billingclient.UsageBatchRequest) (billingclient.UsageBatchResponse, error) {
			attempts++
			return billingclient.UsageBatchResponse{}, assertErrSyncFailed
		},
	}
	tr := NewTracker(repo, billing, "t1", "d1", 2, time.Minute)
	tr.TrackAPICall("cam-1", 1)
	tr.TrackAPICall("cam-2", 1)
	tr.TrackAPICall("cam-3", 1)

	ok := tr.attemptSync(context.Background())
	assert.False(t, ok)
	assert.Equal(t, 3, tr.queueSize(), "failed batch is requeued at the tail")
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, tr.consecutiveFailures)
}

func TestTracker_BackoffDelayDoublesAndCaps(t *testing.T) {
	tr := &Tracker{}
	tr.consecutiveFailures = 1
	assert.Equal(t, 2, tr.backoffDelay())
	tr.consecutiveFailures = 2
	assert.Equal(t, 4, tr.backoffDelay())
	tr.consecutiveFailures = 20
	assert.Equal(t, 300, tr.backoffDelay())
}

func TestTracker_StartupReloadRequeuesUnsyncedRows(t *testing.T) {
	repo := newFakeRepoWithUnsynced(2)
	tr := NewTracker(repo, &billingclient.MockClient{}, "t1", "d1", 10, time.Minute)
	require.NoError(t, tr.StartupReload(context.Background()))
	assert.Equal(t, 2, tr.queueSize())
}

type fakeRepoWithUnsynced struct {
	*fakeRepo
	unsynced []*store.UsageEvent
}

func newFakeRepoWithUnsynced(n int) *fakeRepoWithUnsynced {
	rows := make([]*store.UsageEvent, n)
	for i := range rows {
		rows[i] = &store.UsageEvent{ID: uuid.New(), Type: store.UsageAPICall}
	}
	return &fakeRepoWithUnsynced{fakeRepo: newFakeRepo(), unsynced: rows}
}

func (f *fakeRepoWithUnsynced) FindUnsynced(ctx context.Context, limit int) ([]*store.UsageEvent, error) {
	return f.unsynced, nil
}

var assertErrSyncFailed = &syncFailedError{}

type syncFailedError struct{}

func (e *syncFailedError) Error() string { return "sync failed" }
