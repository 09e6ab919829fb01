package billingclient

import (
	"context"
	"time"
)

// MockClient stands in for the real billing service when
// MOCK_BILLING_SERVICE=true. It always grants a base license with no
// growth packs and unlimited cameras, used for local development and the
// scenario tests that don't exercise degraded mode.
type MockClient struct {
	// ValidateFunc, when set, overrides the default canned response —
	// used by tests to simulate trial issuance or RPC failure.
	ValidateFunc func(ctx context.Context, req ValidateLicenseRequest) (ValidateLicenseResponse, error)
	EntitlementFunc func(ctx context.Context, req CheckEntitlementRequest) (CheckEntitlementResponse, error)
	UsageBatchFunc  func(ctx context.Context, req UsageBatchRequest) (UsageBatchResponse, error)
}

func (m *MockClient) ValidateCameraLicense(ctx context.Context, req ValidateLicenseRequest) (ValidateLicenseResponse, error) {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, req)
	}
	return ValidateLicenseResponse{
		IsValid:            true,
		LicenseMode:        "base",
		EnabledGrowthPacks: nil,
		ValidUntil:         time.Now().Add(365 * 24 * time.Hour),
		CamerasAllowed:     nil,
	}, nil
}

func (m *MockClient) CheckEntitlement(ctx context.Context, req CheckEntitlementRequest) (CheckEntitlementResponse, error) {
	if m.EntitlementFunc != nil {
		return m.EntitlementFunc(ctx, req)
	}
	return CheckEntitlementResponse{
		IsEnabled:      true,
		QuotaLimit:     -1,
		QuotaUsed:      0,
		QuotaRemaining: -1,
		ValidUntil:     time.Now().Add(365 * 24 * time.Hour),
	}, nil
}

func (m *MockClient) SubmitUsageBatch(ctx context.Context, req UsageBatchRequest) (UsageBatchResponse, error) {
	if m.UsageBatchFunc != nil {
		return m.UsageBatchFunc(ctx, req)
	}
	return UsageBatchResponse{AcceptedCount: len(req.Events)}, nil
}

func (m *MockClient) Heartbeat(ctx context.Context, req HeartbeatRequest) (HeartbeatResponse, error) {
	return HeartbeatResponse{Status: "ok", NextHeartbeatSeconds: 300}, nil
}

func (m *MockClient) Health(ctx context.Context) error {
	return nil
}
