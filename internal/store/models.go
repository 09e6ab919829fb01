package store

import (
	"time"

	"github.com/google/uuid"
)

// LicenseMode mirrors spec.md §3 Camera License mode enum.
type LicenseMode string

const (
	LicenseModeTrial      LicenseMode = "trial"
	LicenseModeBase       LicenseMode = "base"
	LicenseModeUnlicensed LicenseMode = "unlicensed"
)

// CameraLicense is the durable row backing §3 "Camera License".
type CameraLicense struct {
	CameraID       string
	TenantID       string
	DeviceID       string
	Mode           LicenseMode
	IsValid        bool
	ValidUntil     time.Time
	GrowthPacks    []string
	LastValidated  time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FeatureCategory mirrors spec.md §3 Feature Entitlement category enum.
type FeatureCategory string

const (
	CategoryCVModels     FeatureCategory = "cv_models"
	CategoryAnalytics    FeatureCategory = "analytics"
	CategoryOutputs      FeatureCategory = "outputs"
	CategoryStorage      FeatureCategory = "storage"
	CategoryLLMSeats     FeatureCategory = "llm_seats"
	CategoryAgents       FeatureCategory = "agents"
	CategoryAPICalls     FeatureCategory = "api_calls"
	CategoryIntegrations FeatureCategory = "integrations"
)

// FeatureEntitlement is the durable row backing §3 "Feature Entitlement".
type FeatureEntitlement struct {
	TenantID    string
	Category    FeatureCategory
	Feature     string
	Enabled     bool
	QuotaLimit  int64 // -1 = unlimited
	QuotaUsed   int64
	ValidUntil  time.Time
	LastChecked time.Time
}

// QuotaRemaining implements spec.md §3's invariant: -1 when unlimited,
// otherwise max(0, limit-used).
func (f FeatureEntitlement) QuotaRemaining() int64 {
	if f.QuotaLimit == -1 {
		return -1
	}
	remaining := f.QuotaLimit - f.QuotaUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// UsageEventType mirrors spec.md §3 Usage Event type enum.
type UsageEventType string

const (
	UsageAPICall        UsageEventType = "api_call"
	UsageLLMTokens       UsageEventType = "llm_tokens"
	UsageStorageGBDays   UsageEventType = "storage_gb_days"
	UsageSMSSent         UsageEventType = "sms_sent"
	UsageAgentExecution  UsageEventType = "agent_execution"
	UsageCloudExportGB   UsageEventType = "cloud_export_gb"
	UsageWebhookCall     UsageEventType = "webhook_call"
	UsageEmailSent       UsageEventType = "email_sent"
)

// UsageEvent is the durable row backing §3 "Usage Event".
type UsageEvent struct {
	ID        uuid.UUID
	TenantID  string
	DeviceID  string
	CameraID  string
	Type      UsageEventType
	Quantity  float64
	Unit      string
	Metadata  []byte // raw JSON
	EventTime time.Time
	Synced    bool
}

// EdgeDevice is the durable row backing the device that hosts this gateway.
type EdgeDevice struct {
	DeviceID        string
	TenantID        string
	ManagementTier  string
	LastHeartbeatAt time.Time
	CreatedAt       time.Time
}

// SyncStatus is the durable row tracking the license plane's degraded-mode
// bookkeeping (billing_sync_status table), surfaced across restarts.
type SyncStatus struct {
	DeviceID       string
	Degraded       bool
	LastSuccessAt  time.Time
	LastAttemptAt  time.Time
	LastError      string
}
