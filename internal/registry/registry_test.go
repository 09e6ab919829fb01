package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brinkbyte/edgegw/internal/billingclient"
	"github.com/brinkbyte/edgegw/internal/license"
	"github.com/brinkbyte/edgegw/internal/store"
)

type fakeLicenseRepo struct {
	rows map[string]*store.CameraLicense
}

func newFakeLicenseRepo() *fakeLicenseRepo {
	return &fakeLicenseRepo{rows: make(map[string]*store.CameraLicense)}
}

func (f *fakeLicenseRepo) CountActiveTrials(ctx context.Context, tenantID string) (int, error) {
	n := 0
	for _, r := range f.rows {
		if r.TenantID == tenantID && r.Mode == store.LicenseModeTrial && r.IsValid && r.ValidUntil.After(time.Now()) {
			n++
		}
	}
	return n, nil
}

func (f *fakeLicenseRepo) Upsert(ctx context.Context, l *store.CameraLicense) error {
	f.rows[l.CameraID] = l
	return nil
}

func (f *fakeLicenseRepo) Remove(ctx context.Context, cameraID string) error {
	delete(f.rows, cameraID)
	return nil
}

// stubValidator stands in for license.Validator: every call returns a
// valid trial result carrying camerasAllowed, so the tests exercise the
// registry's success-path limit enforcement.
type stubValidator struct {
	camerasAllowed int
}

func (s *stubValidator) Validate(ctx context.Context, cameraID, tenantID, deviceID string, forceRefresh bool) (license.ValidationResult, error) {
	return license.ValidationResult{
		IsValid: true, Mode: store.LicenseModeTrial,
		CamerasAllowed: s.camerasAllowed, ValidUntil: time.Now().Add(90 * 24 * time.Hour),
	}, nil
}

func TestRegistry_TrialIssuanceAndLimitEnforcement(t *testing.T) {
	repo := newFakeLicenseRepo()
	v := &stubValidator{camerasAllowed: 2}
	reg := NewRegistry(v, repo, &billingclient.MockClient{})

	c1, err := reg.CreateCamera(context.Background(), "C1", "", "T1", "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "C1", c1.ID)

	_, err = reg.CreateCamera(context.Background(), "C2", "", "T1", "dev-1")
	require.NoError(t, err)

	_, err = reg.CreateCamera(context.Background(), "C3", "", "T1", "dev-1")
	require.Error(t, err)
	var limitErr *license.LicenseLimitExceeded
	assert.ErrorAs(t, err, &limitErr)
}

func TestRegistry_DuplicateIDRejected(t *testing.T) {
	repo := newFakeLicenseRepo()
	v := &stubValidator{camerasAllowed: -1}
	reg := NewRegistry(v, repo, &billingclient.MockClient{})

	_, err := reg.CreateCamera(context.Background(), "C1", "", "T1", "dev-1")
	require.NoError(t, err)

	_, err = reg.CreateCamera(context.Background(), "C1", "", "T1", "dev-1")
	assert.Error(t, err)
}

func TestRegistry_IDAndNameDefaulting(t *testing.T) {
	repo := newFakeLicenseRepo()
	v := &stubValidator{camerasAllowed: -1}
	reg := NewRegistry(v, repo, &billingclient.MockClient{})

	cam, err := reg.CreateCamera(context.Background(), "", "", "T1", "dev-1")
	require.NoError(t, err)
	assert.NotEmpty(t, cam.ID)
	assert.Equal(t, cam.ID, cam.Name)
}

type failingValidator struct{}

func (failingValidator) Validate(ctx context.Context, cameraID, tenantID, deviceID string, forceRefresh bool) (license.ValidationResult, error) {
	return license.ValidationResult{IsValid: false}, nil
}

func TestRegistry_FailedValidationIssuesTrialThenRevalidates(t *testing.T) {
	repo := newFakeLicenseRepo()
	reg := NewRegistry(failingValidator{}, repo, &billingclient.MockClient{})

	_, err := reg.CreateCamera(context.Background(), "C1", "", "T1", "dev-1")
	require.Error(t, err)
	var issueErr *license.LicenseIssueFailed
	assert.ErrorAs(t, err, &issueErr)

	// a trial row should have been written even though re-validation
	// (against the always-failing validator) still failed
	assert.Contains(t, repo.rows, "C1")
}

func TestRegistry_DeleteCameraRevokesLicenseAndRemoves(t *testing.T) {
	repo := newFakeLicenseRepo()
	v := &stubValidator{camerasAllowed: -1}
	reg := NewRegistry(v, repo, &billingclient.MockClient{})

	_, err := reg.CreateCamera(context.Background(), "C1", "", "T1", "dev-1")
	require.NoError(t, err)

	stopped := false
	reg.SetStopFunc(func(id string) { stopped = true })
	cam, _ := reg.Get("C1")
	cam.Running = true

	require.NoError(t, reg.DeleteCamera(context.Background(), "C1"))
	_, ok := reg.Get("C1")
	assert.False(t, ok)
	assert.True(t, stopped)
}

func TestRegistry_DeleteUnknownCameraErrors(t *testing.T) {
	repo := newFakeLicenseRepo()
	v := &stubValidator{camerasAllowed: -1}
	reg := NewRegistry(v, repo, &billingclient.MockClient{})
	assert.Error(t, reg.DeleteCamera(context.Background(), "ghost"))
}
