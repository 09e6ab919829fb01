package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/brinkbyte/edgegw/internal/billingclient"
	"github.com/brinkbyte/edgegw/internal/cache"
	"github.com/brinkbyte/edgegw/internal/config"
	"github.com/brinkbyte/edgegw/internal/eventsink"
	"github.com/brinkbyte/edgegw/internal/license"
	"github.com/brinkbyte/edgegw/internal/metrics"
	"github.com/brinkbyte/edgegw/internal/registry"
	"github.com/brinkbyte/edgegw/internal/store"
	"github.com/brinkbyte/edgegw/internal/tasks"
	"github.com/brinkbyte/edgegw/internal/usage"
	"github.com/brinkbyte/edgegw/internal/zoneconfig"
	"github.com/brinkbyte/edgegw/internal/zones"
)

func main() {
	cfg, err := config.Load(os.Getenv("EDGEGW_CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	log.Printf("edgegw: starting device=%s tenant=%s tier=%s", cfg.Device.ID, cfg.Device.TenantID, cfg.Device.ManagementTier)

	db, err := sql.Open("postgres", cfg.Store.PostgresDSN)
	if err != nil {
		log.Fatalf("store: open postgres: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("store: ping postgres: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Store.RedisAddr})
	defer redisClient.Close()

	billingCache, err := cache.New(4096, redisClient, cache.WithRetry(3, 50*time.Millisecond))
	if err != nil {
		log.Fatalf("cache: %v", err)
	}

	var billing billingclient.Client
	if cfg.Billing.Mock {
		log.Printf("edgegw: billing service mocked (MOCK_BILLING_SERVICE=true)")
		billing = &billingclient.MockClient{}
	} else {
		billing = billingclient.NewHTTPClient(cfg.Billing.ServiceURL, cfg.Billing.APIKey, cfg.BillingTimeout())
	}

	devices := store.EdgeDeviceStore{DB: db}
	licenses := store.CameraLicenseStore{DB: db}
	entitlements := store.FeatureEntitlementStore{DB: db}
	usageEvents := store.UsageEventStore{DB: db}
	syncStatus := store.SyncStatusStore{DB: db}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := devices.Register(ctx, &store.EdgeDevice{
		DeviceID:       cfg.Device.ID,
		TenantID:       cfg.Device.TenantID,
		ManagementTier: cfg.Device.ManagementTier,
	}); err != nil {
		log.Fatalf("store: register edge device: %v", err)
	}

	validator := license.NewValidator(billing, billingCache, licenses, cfg.LicenseCacheTTL(), license.DefaultOfflineGracePeriod)
	entitlementChecker := license.NewEntitlements(billing, billingCache, entitlements, license.DefaultGrowthPacks(), cfg.EntitlementCacheTTL())
	_ = entitlementChecker // exposed for feature-gated callers; no HTTP surface in this gateway

	usageTracker := usage.NewTracker(usageEvents, billing, cfg.Device.TenantID, cfg.Device.ID, cfg.Usage.BatchSize, cfg.UsageSyncInterval())
	if cfg.Features.EnableUsageTracking {
		if err := usageTracker.StartupReload(ctx); err != nil {
			log.Printf("usage: startup reload failed, starting with an empty queue: %v", err)
		}
		usageTracker.Start(ctx)
		defer usageTracker.Stop()
	}

	executor := tasks.NewExecutor()
	executor.Start()
	defer executor.Shutdown()

	reg := registry.NewRegistry(validator, licenses, billing)

	var sink zones.EventSink
	nc, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		log.Printf("eventsink: nats connect failed, zone events will not be published: %v", err)
	} else {
		defer nc.Close()
		sink = eventsink.NewNATSPublisher(nc, cfg.NATS.EventSubject, 3)
	}

	lineManager := zones.NewLineManager(cfg.Device.ID, sink)
	polygonManager := zones.NewPolygonManager(cfg.Device.ID, sink)

	watcher, err := zoneconfig.NewWatcher(cfg.ZoneConfigPath, func(lines []zones.LineDescriptor, polygons []zones.PolygonDescriptor) error {
		if err := lineManager.Reconfigure(lines, true); err != nil {
			return err
		}
		return polygonManager.Reconfigure(polygons, true)
	})
	if err != nil {
		log.Fatalf("zoneconfig: build watcher: %v", err)
	}
	if err := watcher.Start(); err != nil {
		log.Fatalf("zoneconfig: start watcher: %v", err)
	}
	defer watcher.Stop()

	collector := metrics.NewCollector(&gatewaySources{registry: reg, tenantID: cfg.Device.TenantID})
	collector.Start(ctx)

	go runDegradedPoller(ctx, validator)
	go runSyncStatusRecorder(ctx, syncStatus, cfg.Device.ID, validator)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	httpServer := &http.Server{Addr: ":9090", Handler: mux}
	go func() {
		log.Printf("edgegw: metrics/health server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Printf("edgegw: shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	if cfg.Features.EnableUsageTracking {
		usageTracker.Flush(shutdownCtx)
	}
}

// gatewaySources adapts the camera registry to metrics.Sources.
type gatewaySources struct {
	registry *registry.Registry
	tenantID string
}

func (s *gatewaySources) TaskQueueDepth() int {
	return 0
}

func (s *gatewaySources) ActiveCameraCount() int {
	return s.registry.Count(s.tenantID)
}

// runDegradedPoller republishes the validator's offline/degraded state to
// the billing_degraded gauge, since degradedState lives inside the
// license package and is otherwise unobservable.
func runDegradedPoller(ctx context.Context, v *license.Validator) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			degraded, _ := v.IsDegraded()
			metrics.SetBillingDegraded(degraded)
		}
	}
}

// runSyncStatusRecorder keeps the billing_sync_status row for this device
// current so a restart can tell how long the gateway has been offline.
func runSyncStatusRecorder(ctx context.Context, s store.SyncStatusStore, deviceID string, v *license.Validator) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			degraded, _ := v.IsDegraded()
			var err error
			if degraded {
				err = s.RecordFailure(ctx, deviceID, "billing service unreachable")
			} else {
				err = s.RecordSuccess(ctx, deviceID)
			}
			if err != nil {
				log.Printf("store: record sync status: %v", err)
			}
		}
	}
}
