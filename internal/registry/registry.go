// Package registry implements the camera registry: license-gated camera
// creation and deletion (spec.md §4.C6 "Camera registry").
package registry

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brinkbyte/edgegw/internal/billingclient"
	"github.com/brinkbyte/edgegw/internal/license"
	"github.com/brinkbyte/edgegw/internal/store"
)

// Camera is the in-memory object the registry exclusively owns. It has
// no durable row of its own — the durable state of a camera is its
// license row, owned by the license plane.
type Camera struct {
	ID        string
	Name      string
	TenantID  string
	DeviceID  string
	Running   bool
	CreatedAt time.Time
}

// CameraLicenseRepository narrows store.CameraLicenseStore to what the
// registry calls directly (trial-limit accounting and revocation);
// everything else about a license goes through license.Validator.
type CameraLicenseRepository interface {
	CountActiveTrials(ctx context.Context, tenantID string) (int, error)
	Upsert(ctx context.Context, l *store.CameraLicense) error
	Remove(ctx context.Context, cameraID string) error
}

// Validator is the subset of license.Validator the registry calls.
type Validator interface {
	Validate(ctx context.Context, cameraID, tenantID, deviceID string, forceRefresh bool) (license.ValidationResult, error)
}

// Registry owns camera objects end-to-end: creation gated by the
// license plane, deletion paired with license revocation. One critical
// section per operation, grounded on original_source's camera_manager
// createCamera/deleteCamera.
type Registry struct {
	mu       sync.Mutex
	cameras  map[string]*Camera
	validator Validator
	licenses  CameraLicenseRepository
	billing   billingclient.Client

	trialCameraLimit int
	trialDuration     time.Duration

	// stop, when set, is invoked with a camera's id on DeleteCamera to
	// halt its video ingest/frame-processing worker before the registry
	// entry is removed. Video ingest itself is out of scope here.
	stop func(cameraID string)
}

func NewRegistry(v Validator, licenses CameraLicenseRepository, billing billingclient.Client) *Registry {
	return &Registry{
		cameras:          make(map[string]*Camera),
		validator:        v,
		licenses:         licenses,
		billing:          billing,
		trialCameraLimit: license.DefaultTrialCameraLimit,
		trialDuration:    90 * 24 * time.Hour,
	}
}

// SetStopFunc installs the callback DeleteCamera uses to stop a running
// camera's worker before removing it from the registry.
func (r *Registry) SetStopFunc(fn func(cameraID string)) {
	r.mu.Lock()
	r.stop = fn
	r.mu.Unlock()
}

func (r *Registry) tenantCameraCount(tenantID string) int {
	n := 0
	for _, c := range r.cameras {
		if c.TenantID == tenantID {
			n++
		}
	}
	return n
}

// CreateCamera implements spec.md §4.C6's createCamera, within a single
// critical section: generate id/name defaults, reject duplicates,
// license-gate via the validator, auto-issue a trial on validation
// failure when the tenant has room, construct and insert the camera,
// send its initial heartbeat.
func (r *Registry) CreateCamera(ctx context.Context, id, name, tenantID, deviceID string) (*Camera, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == "" {
		id = uuid.NewString()
	}
	if name == "" {
		name = id
	}
	if _, exists := r.cameras[id]; exists {
		return nil, fmt.Errorf("registry: camera %q already registered", id)
	}

	result, err := r.validator.Validate(ctx, id, tenantID, deviceID, false)
	if err != nil {
		return nil, fmt.Errorf("registry: license validation: %w", err)
	}

	currentCount := r.tenantCameraCount(tenantID)

	if !result.IsValid {
		activeTrials, err := r.licenses.CountActiveTrials(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("registry: count active trials: %w", err)
		}
		if !license.CanAddCamera(r.trialCameraLimit, activeTrials) {
			return nil, &license.LicenseLimitExceeded{TenantID: tenantID, Limit: r.trialCameraLimit}
		}
		if err := r.licenses.Upsert(ctx, &store.CameraLicense{
			CameraID: id, TenantID: tenantID, DeviceID: deviceID,
			Mode: store.LicenseModeTrial, IsValid: true,
			ValidUntil: time.Now().Add(r.trialDuration),
		}); err != nil {
			return nil, &license.LicenseIssueFailed{CameraID: id, Reason: err.Error()}
		}
		result, err = r.validator.Validate(ctx, id, tenantID, deviceID, true)
		if err != nil {
			return nil, &license.LicenseIssueFailed{CameraID: id, Reason: err.Error()}
		}
		if !result.IsValid {
			return nil, &license.LicenseIssueFailed{CameraID: id, Reason: "camera still unlicensed after trial issuance"}
		}
	} else if !license.CanAddCamera(result.CamerasAllowed, currentCount) {
		return nil, &license.LicenseLimitExceeded{TenantID: tenantID, Limit: result.CamerasAllowed}
	}

	cam := &Camera{
		ID: id, Name: name, TenantID: tenantID, DeviceID: deviceID,
		CreatedAt: time.Now(),
	}
	r.cameras[id] = cam

	r.sendInitialHeartbeat(ctx, cam)
	return cam, nil
}

// sendInitialHeartbeat notifies the remote billing service that this
// camera now exists, mirroring the heartbeat an edge device sends
// periodically for its whole fleet (spec.md §6 "POST /heartbeat"). A
// failure here is logged, not fatal — the camera is already registered
// and a subsequent periodic heartbeat will report it.
func (r *Registry) sendInitialHeartbeat(ctx context.Context, cam *Camera) {
	_, err := r.billing.Heartbeat(ctx, billingclient.HeartbeatRequest{
		DeviceID:         cam.DeviceID,
		TenantID:         cam.TenantID,
		ActiveCameraIDs:  []string{cam.ID},
		ManagementTier:   "edge",
	})
	if err != nil {
		log.Printf("registry: initial heartbeat failed for camera %s: %v", cam.ID, err)
	}
}

// DeleteCamera stops the camera if running, revokes its license, and
// removes the registry entry.
func (r *Registry) DeleteCamera(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cam, ok := r.cameras[id]
	if !ok {
		return fmt.Errorf("registry: camera %q not registered", id)
	}

	if cam.Running && r.stop != nil {
		r.stop(id)
	}

	if err := r.licenses.Remove(ctx, id); err != nil {
		log.Printf("registry: failed to revoke license for camera %s: %v", id, err)
	}

	delete(r.cameras, id)
	return nil
}

// Get returns the camera for id, for status/testing.
func (r *Registry) Get(id string) (*Camera, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cameras[id]
	return c, ok
}

// Count returns the number of registered cameras for tenantID.
func (r *Registry) Count(tenantID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tenantCameraCount(tenantID)
}
