// Package config loads the gateway's configuration from an optional YAML
// file plus environment variable overrides (spec.md §6 "Environment
// variables"), in the teacher's config-spooling idiom: a YAML base with
// individual env vars layered on top rather than a full env-only scheme.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config is the full set of settings spec.md §6 names.
type Config struct {
	Billing struct {
		ServiceURL string `yaml:"service_url"`
		APIKey     string `yaml:"api_key"`
		TimeoutMS  int    `yaml:"timeout_ms"`
		MaxRetries int    `yaml:"max_retries"`
		Mock       bool   `yaml:"mock"`
	} `yaml:"billing"`

	Device struct {
		ID             string `yaml:"id"`
		TenantID       string `yaml:"tenant_id"`
		ManagementTier string `yaml:"management_tier"`
	} `yaml:"device"`

	Store struct {
		PostgresDSN string `yaml:"postgres_dsn"`
		RedisAddr   string `yaml:"redis_addr"`
	} `yaml:"store"`

	Cache struct {
		LicenseTTLSeconds     int `yaml:"license_ttl_seconds"`
		EntitlementTTLSeconds int `yaml:"entitlement_ttl_seconds"`
	} `yaml:"cache"`

	Usage struct {
		BatchSize           int `yaml:"batch_size"`
		SyncIntervalSeconds int `yaml:"sync_interval_seconds"`
	} `yaml:"usage"`

	Features struct {
		EnableLicenseValidation bool `yaml:"enable_license_validation"`
		EnableUsageTracking     bool `yaml:"enable_usage_tracking"`
		EnableHeartbeat         bool `yaml:"enable_heartbeat"`
		EnableOfflineMode       bool `yaml:"enable_offline_mode"`
		BypassLicenseCheck      bool `yaml:"bypass_license_check"`
	} `yaml:"features"`

	NATS struct {
		URL          string `yaml:"url"`
		EventSubject string `yaml:"event_subject"`
	} `yaml:"nats"`

	ZoneConfigPath string `yaml:"zone_config_path"`
}

// Default returns the configuration with every documented default
// applied, before any file or environment overlay (spec.md §6).
func Default() *Config {
	var c Config
	c.Billing.TimeoutMS = 5000
	c.Billing.MaxRetries = 3
	c.Device.ID = "auto"
	c.Device.ManagementTier = "basic"
	c.Cache.LicenseTTLSeconds = 3600
	c.Cache.EntitlementTTLSeconds = 300
	c.Usage.BatchSize = 1000
	c.Usage.SyncIntervalSeconds = 300
	c.Features.EnableLicenseValidation = true
	c.Features.EnableUsageTracking = true
	c.Features.EnableHeartbeat = true
	c.Features.EnableOfflineMode = true
	c.NATS.URL = "nats://127.0.0.1:4222"
	c.NATS.EventSubject = "zones.events"
	c.ZoneConfigPath = "config/zones.json"
	return &c
}

// Load builds a Config by starting from Default, overlaying path (if it
// exists) as YAML, then overlaying process environment variables — the
// same precedence order as the teacher's inline config-loading blocks,
// generalised into one reusable loader.
func Load(path string) (*Config, error) {
	c := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(raw, c); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	applyEnvOverrides(c)

	if c.Device.ID == "auto" {
		c.Device.ID = deriveDeviceID()
	}
	return c, nil
}

func applyEnvOverrides(c *Config) {
	str(&c.Billing.ServiceURL, "BILLING_SERVICE_URL")
	str(&c.Billing.APIKey, "BILLING_API_KEY")
	intVal(&c.Billing.TimeoutMS, "BILLING_TIMEOUT_MS")
	intVal(&c.Billing.MaxRetries, "BILLING_MAX_RETRIES")
	boolVal(&c.Billing.Mock, "MOCK_BILLING_SERVICE")

	str(&c.Device.ID, "EDGE_DEVICE_ID")
	str(&c.Device.TenantID, "TENANT_ID")
	str(&c.Device.ManagementTier, "MANAGEMENT_TIER")

	str(&c.Store.PostgresDSN, "DATABASE_URL")
	str(&c.Store.RedisAddr, "REDIS_ADDR")

	intVal(&c.Cache.LicenseTTLSeconds, "LICENSE_CACHE_TTL_SECONDS")
	intVal(&c.Cache.EntitlementTTLSeconds, "ENTITLEMENT_CACHE_TTL_SECONDS")

	intVal(&c.Usage.BatchSize, "USAGE_BATCH_SIZE")
	intVal(&c.Usage.SyncIntervalSeconds, "USAGE_SYNC_INTERVAL_SECONDS")

	boolVal(&c.Features.EnableLicenseValidation, "ENABLE_LICENSE_VALIDATION")
	boolVal(&c.Features.EnableUsageTracking, "ENABLE_USAGE_TRACKING")
	boolVal(&c.Features.EnableHeartbeat, "ENABLE_HEARTBEAT")
	boolVal(&c.Features.EnableOfflineMode, "ENABLE_OFFLINE_MODE")
	boolVal(&c.Features.BypassLicenseCheck, "BYPASS_LICENSE_CHECK")

	str(&c.NATS.URL, "NATS_URL")
	str(&c.NATS.EventSubject, "NATS_EVENT_SUBJECT")

	str(&c.ZoneConfigPath, "ZONE_CONFIG_PATH")
}

func str(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func intVal(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func boolVal(dst *bool, env string) {
	if v := os.Getenv(env); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// deriveDeviceID resolves EDGE_DEVICE_ID="auto" to a stable machine
// identifier, falling back to a fresh random one if none can be read
// (spec.md §6: "auto ⇒ derive from hardware UUID or generate").
func deriveDeviceID() string {
	for _, path := range []string{"/etc/machine-id", "/sys/class/dmi/id/product_uuid"} {
		if raw, err := os.ReadFile(path); err == nil {
			if id := trimmed(raw); id != "" {
				return id
			}
		}
	}
	return generateDeviceID()
}

func generateDeviceID() string {
	return uuid.NewString()
}

func trimmed(raw []byte) string {
	n := len(raw)
	for n > 0 && (raw[n-1] == '\n' || raw[n-1] == '\r' || raw[n-1] == ' ') {
		n--
	}
	return string(raw[:n])
}

func (c *Config) BillingTimeout() time.Duration {
	return time.Duration(c.Billing.TimeoutMS) * time.Millisecond
}

func (c *Config) LicenseCacheTTL() time.Duration {
	return time.Duration(c.Cache.LicenseTTLSeconds) * time.Second
}

func (c *Config) EntitlementCacheTTL() time.Duration {
	return time.Duration(c.Cache.EntitlementTTLSeconds) * time.Second
}

func (c *Config) UsageSyncInterval() time.Duration {
	return time.Duration(c.Usage.SyncIntervalSeconds) * time.Second
}
