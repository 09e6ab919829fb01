package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordLicenseValidation(t *testing.T) {
	before := testutil.ToFloat64(LicenseValidationsTotal.WithLabelValues("valid"))
	RecordLicenseValidation("valid")
	assert.Equal(t, before+1, testutil.ToFloat64(LicenseValidationsTotal.WithLabelValues("valid")))
}

func TestRecordCacheLookup(t *testing.T) {
	beforeHit := testutil.ToFloat64(CacheRequestsTotal.WithLabelValues("l1", "hit"))
	RecordCacheLookup("l1", true)
	assert.Equal(t, beforeHit+1, testutil.ToFloat64(CacheRequestsTotal.WithLabelValues("l1", "hit")))

	beforeMiss := testutil.ToFloat64(CacheRequestsTotal.WithLabelValues("l2", "miss"))
	RecordCacheLookup("l2", false)
	assert.Equal(t, beforeMiss+1, testutil.ToFloat64(CacheRequestsTotal.WithLabelValues("l2", "miss")))
}

func TestSetBillingDegraded(t *testing.T) {
	SetBillingDegraded(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(BillingDegraded))
	SetBillingDegraded(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(BillingDegraded))
}

type fakeSources struct {
	queueDepth int
	cameras    int
}

func (f *fakeSources) TaskQueueDepth() int    { return f.queueDepth }
func (f *fakeSources) ActiveCameraCount() int { return f.cameras }

func TestCollector_PollsSourcesOnStart(t *testing.T) {
	src := &fakeSources{queueDepth: 3, cameras: 5}
	c := NewCollector(src)
	c.interval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(c.taskQueueDepth) == 3 && testutil.ToFloat64(c.activeCameraCount) == 5
	}, time.Second, time.Millisecond)
}
