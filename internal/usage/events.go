package usage

import (
	"time"

	"github.com/google/uuid"

	"github.com/brinkbyte/edgegw/internal/store"
)

func (t *Tracker) track(typ store.UsageEventType, cameraID string, quantity float64, unit string, metadata any) {
	t.enqueue(&store.UsageEvent{
		ID: uuid.New(), TenantID: t.tenantID, DeviceID: t.deviceID, CameraID: cameraID,
		Type: typ, Quantity: quantity, Unit: unit, Metadata: marshalMetadata(metadata),
		EventTime: time.Now(),
	})
}

// TrackAPICall records a billable API call (spec.md §3's api_call type).
func (t *Tracker) TrackAPICall(cameraID string, quantity float64) {
	t.track(store.UsageAPICall, cameraID, quantity, "calls", nil)
}

// TrackLLMTokens records LLM token consumption.
func (t *Tracker) TrackLLMTokens(cameraID string, tokens float64, model string) {
	t.track(store.UsageLLMTokens, cameraID, tokens, "tokens", map[string]string{"model": model})
}

// TrackStorageGBDays records storage consumption in GB-days.
func (t *Tracker) TrackStorageGBDays(cameraID string, gbDays float64) {
	t.track(store.UsageStorageGBDays, cameraID, gbDays, "gb_days", nil)
}

// TrackSMSSent records an outbound SMS notification.
func (t *Tracker) TrackSMSSent(cameraID string, count float64) {
	t.track(store.UsageSMSSent, cameraID, count, "messages", nil)
}

// TrackAgentExecution records an autonomous agent run.
func (t *Tracker) TrackAgentExecution(cameraID string, durationSeconds float64, agentName string) {
	t.track(store.UsageAgentExecution, cameraID, durationSeconds, "seconds", map[string]string{"agent": agentName})
}

// TrackCloudExportGB records data exported to a cloud destination.
func (t *Tracker) TrackCloudExportGB(cameraID string, gb float64, destination string) {
	t.track(store.UsageCloudExportGB, cameraID, gb, "gb", map[string]string{"destination": destination})
}

// TrackWebhookCall records an outbound webhook delivery.
func (t *Tracker) TrackWebhookCall(cameraID string, count float64) {
	t.track(store.UsageWebhookCall, cameraID, count, "calls", nil)
}

// TrackEmailSent records an outbound email notification.
func (t *Tracker) TrackEmailSent(cameraID string, count float64) {
	t.track(store.UsageEmailSent, cameraID, count, "messages", nil)
}
