package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sources narrows the gateway's live components down to the handful of
// values the collector needs to poll on an interval, rather than scrape
// (spec.md §4.C6, §7 "Observability"). Each method must be safe to call
// concurrently with normal request handling.
type Sources interface {
	TaskQueueDepth() int
	ActiveCameraCount() int
}

// Collector polls Sources on a fixed interval and republishes the results
// as gauges, alongside the event-driven counters in events.go.
type Collector struct {
	sources  Sources
	interval time.Duration

	taskQueueDepth    prometheus.Gauge
	activeCameraCount prometheus.Gauge
}

func NewCollector(sources Sources) *Collector {
	return &Collector{
		sources:  sources,
		interval: 2 * time.Second,
		taskQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "edgegw_task_queue_depth",
			Help: "Number of background tasks queued or running",
		}),
		activeCameraCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "edgegw_active_camera_count",
			Help: "Number of cameras currently registered",
		}),
	}
}

// Start polls sources until ctx is cancelled. It does not block the caller.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		c.collect()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.collect()
			}
		}
	}()
}

func (c *Collector) collect() {
	c.taskQueueDepth.Set(float64(c.sources.TaskQueueDepth()))
	c.activeCameraCount.Set(float64(c.sources.ActiveCameraCount()))
}

// Handler returns the HTTP handler serving the default Prometheus registry,
// which promauto registers every metric in this package against.
func Handler() http.Handler {
	return promhttp.Handler()
}
