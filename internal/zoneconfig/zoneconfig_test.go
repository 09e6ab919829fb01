package zoneconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brinkbyte/edgegw/internal/zones"
)

const sampleDoc = `{
  "line_zones": [
    {"id": "L1", "start_x": 0.5, "start_y": 0.0, "end_x": 0.5, "end_y": 1.0,
     "min_crossing_threshold": 1, "triggering_anchors": ["bottom_center"], "triggering_classes": ["person"]}
  ],
  "polygon_zones": [
    {"id": "P1", "polygon": [{"x":0.2,"y":0.2},{"x":0.8,"y":0.2},{"x":0.8,"y":0.8},{"x":0.2,"y":0.8}],
     "triggering_anchors": ["bottom_center"]}
  ]
}`

func TestParseDocument(t *testing.T) {
	lines, polygons, err := ParseDocument([]byte(sampleDoc))
	require.NoError(t, err)

	require.Len(t, lines, 1)
	assert.Equal(t, "L1", lines[0].ID)
	assert.Equal(t, zones.Point{X: 0.5, Y: 0.0}, lines[0].Start)
	assert.Equal(t, []zones.Anchor{zones.AnchorBottomCenter}, lines[0].TriggeringAnchors)
	assert.Equal(t, []string{"person"}, lines[0].TriggeringClasses)

	require.Len(t, polygons, 1)
	assert.Equal(t, "P1", polygons[0].ID)
	require.Len(t, polygons[0].Polygon, 4)
	assert.Equal(t, zones.Point{X: 0.2, Y: 0.2}, polygons[0].Polygon[0])
}

func TestParseDocument_MalformedJSONFails(t *testing.T) {
	_, _, err := ParseDocument([]byte("{not json"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zones.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o644))

	lines, polygons, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, lines, 1)
	assert.Len(t, polygons, 1)
}

func TestWatcher_ReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zones.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o644))

	reloads := make(chan []zones.LineDescriptor, 4)
	w, err := NewWatcher(path, func(lines []zones.LineDescriptor, polygons []zones.PolygonDescriptor) error {
		reloads <- lines
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	select {
	case got := <-reloads:
		assert.Len(t, got, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("expected initial load to reach the reload callback")
	}

	updated := `{"line_zones":[{"id":"L1","start_x":0,"start_y":0,"end_x":1,"end_y":1},{"id":"L2","start_x":0,"start_y":1,"end_x":1,"end_y":0}]}`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case got := <-reloads:
		assert.Len(t, got, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("expected write to trigger a reload")
	}
}
