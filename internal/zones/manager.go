package zones

import (
	"context"
	"log"
	"sync"
)

// geometryEpsilon is the per-point/per-endpoint tolerance used when
// matching a "new" zone descriptor against existing zones to detect a
// rename (spec.md §4.C5.g), matching the original's 0.001f.
const geometryEpsilon = 0.001

// EventSink delivers zone events to an external system. Defined here
// rather than imported from internal/eventsink so the zone engine
// never depends on a transport package — only a NATS-backed
// implementation of this interface does (spec.md §5: zone analytics
// performs no I/O on the per-frame path).
type EventSink interface {
	Publish(ctx context.Context, event Event) error
}

// Frame is one video frame's dimensions, used to convert zone geometry
// to pixel space for evaluation (spec.md §4.C5.f).
type Frame struct {
	Width, Height float64
}

// LineManager owns a set of LineZones scoped to one stream.
type LineManager struct {
	streamID string
	sink     EventSink

	mu    sync.Mutex
	zones map[string]*LineZone

	eventCh chan Event
}

func NewLineManager(streamID string, sink EventSink) *LineManager {
	m := &LineManager{
		streamID: streamID, sink: sink,
		zones:   make(map[string]*LineZone),
		eventCh: make(chan Event, 256),
	}
	if sink != nil {
		go m.drainEvents()
	}
	return m
}

func (m *LineManager) drainEvents() {
	for e := range m.eventCh {
		if err := m.sink.Publish(context.Background(), e); err != nil {
			log.Printf("zones: failed to publish line event for zone %s: %v", e.ZoneID, err)
		}
	}
}

func (m *LineManager) enqueue(events []Event) {
	if m.sink == nil {
		return
	}
	for _, e := range events {
		select {
		case m.eventCh <- e:
		default:
			log.Printf("zones: event sink backlog full, dropping event for zone %s", e.ZoneID)
		}
	}
}

// ProcessFrame evaluates every zone against detections and publishes
// any resulting events. Never blocks on I/O.
func (m *LineManager) ProcessFrame(detections []Detection, frame Frame) []Event {
	m.mu.Lock()
	snapshot := make([]*LineZone, 0, len(m.zones))
	for _, z := range m.zones {
		snapshot = append(snapshot, z)
	}
	m.mu.Unlock()

	var all []Event
	for _, z := range snapshot {
		events := z.Process(detections, frame.Width, frame.Height)
		all = append(all, events...)
	}
	m.enqueue(all)
	return all
}

// Reconfigure applies a new set of line zone descriptors, preserving
// counters across renames and in-place updates (spec.md §4.C5.g). The
// locking discipline follows the split-critical-section pattern: the
// manager acquires the lock only to snapshot and, later, to apply the
// computed diff — the geometry work in between runs unlocked.
func (m *LineManager) Reconfigure(descriptors []LineDescriptor, removeMissing bool) error {
	m.mu.Lock()
	existing := make(map[string]*LineZone, len(m.zones))
	for id, z := range m.zones {
		existing[id] = z
	}
	m.mu.Unlock()

	toAdd := make(map[string]*LineZone)
	toRemove := make(map[string]bool)
	matched := make(map[string]bool) // existing ids already consumed by this reconfigure

	seen := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		seen[d.ID] = true

		if z, ok := existing[d.ID]; ok {
			z.UpdateGeometry(d.Start, d.End)
			z.UpdateConfig(d.MinCrossingThreshold, d.TriggeringAnchors, d.TriggeringClasses)
			matched[d.ID] = true
			continue
		}

		if renamed := findLineRename(existing, matched, d); renamed != nil {
			renamed.UpdateGeometry(d.Start, d.End)
			renamed.UpdateConfig(d.MinCrossingThreshold, d.TriggeringAnchors, d.TriggeringClasses)
			oldID := renamed.ID()
			renamed.setID(d.ID)
			toAdd[d.ID] = renamed
			toRemove[oldID] = true
			matched[oldID] = true
			log.Printf("zones: detected line zone rename from %q to %q, preserving counts", oldID, d.ID)
			continue
		}

		z, err := NewLineZone(d)
		if err != nil {
			log.Printf("zones: skipping malformed line zone %q: %v", d.ID, err)
			continue
		}
		toAdd[d.ID] = z
	}

	if removeMissing {
		for id := range existing {
			if !seen[id] && !matched[id] {
				toRemove[id] = true
			}
		}
	}

	m.mu.Lock()
	for id := range toRemove {
		delete(m.zones, id)
	}
	for id, z := range toAdd {
		m.zones[id] = z
	}
	m.mu.Unlock()
	return nil
}

func findLineRename(existing map[string]*LineZone, matched map[string]bool, d LineDescriptor) *LineZone {
	for id, z := range existing {
		if matched[id] {
			continue
		}
		start, end := z.Endpoints()
		if closeEnough(start.X, d.Start.X) && closeEnough(start.Y, d.Start.Y) &&
			closeEnough(end.X, d.End.X) && closeEnough(end.Y, d.End.Y) {
			return z
		}
	}
	return nil
}

// Zone returns the zone for id, for status/testing.
func (m *LineManager) Zone(id string) (*LineZone, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zones[id]
	return z, ok
}

func closeEnough(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < geometryEpsilon
}

// PolygonManager owns a set of PolygonZones scoped to one stream, plus
// a shared dwell timer across all of its zones.
type PolygonManager struct {
	streamID string
	sink     EventSink
	dwell    *DwellTimer

	mu    sync.Mutex
	zones map[string]*PolygonZone

	eventCh chan Event
}

func NewPolygonManager(streamID string, sink EventSink) *PolygonManager {
	m := &PolygonManager{
		streamID: streamID, sink: sink,
		zones:   make(map[string]*PolygonZone),
		dwell:   NewDwellTimer(),
		eventCh: make(chan Event, 256),
	}
	if sink != nil {
		go m.drainEvents()
	}
	return m
}

func (m *PolygonManager) drainEvents() {
	for e := range m.eventCh {
		if err := m.sink.Publish(context.Background(), e); err != nil {
			log.Printf("zones: failed to publish polygon event for zone %s: %v", e.ZoneID, err)
		}
	}
}

func (m *PolygonManager) enqueue(events []Event) {
	if m.sink == nil {
		return
	}
	for _, e := range events {
		select {
		case m.eventCh <- e:
		default:
			log.Printf("zones: event sink backlog full, dropping event for zone %s", e.ZoneID)
		}
	}
}

// DwellTimes returns the current time-in-zone for every object
// currently inside zoneID.
func (m *PolygonManager) DwellTimes(zoneID string) map[string]int64 {
	m.mu.Lock()
	z, ok := m.zones[zoneID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	ids := z.InZoneTrackIDs()
	durations := m.dwell.Update(zoneID, ids)
	out := make(map[string]int64, len(durations))
	for id, d := range durations {
		out[id] = int64(d.Seconds())
	}
	return out
}

// ProcessFrame evaluates every zone against detections, updates dwell
// times, and publishes any resulting events.
func (m *PolygonManager) ProcessFrame(detections []Detection, frame Frame) []Event {
	m.mu.Lock()
	snapshot := make(map[string]*PolygonZone, len(m.zones))
	for id, z := range m.zones {
		snapshot[id] = z
	}
	m.mu.Unlock()

	var all []Event
	for id, z := range snapshot {
		events := z.Process(detections, frame.Width, frame.Height)
		all = append(all, events...)
		m.dwell.Update(id, z.InZoneTrackIDs())
	}
	m.enqueue(all)
	return all
}

// Reconfigure applies a new set of polygon zone descriptors, preserving
// counters and dwell state across renames and in-place updates
// (spec.md §4.C5.g). With removeMissing set, zones absent from
// descriptors are dropped; the caller always passes it explicitly.
func (m *PolygonManager) Reconfigure(descriptors []PolygonDescriptor, removeMissing bool) error {
	m.mu.Lock()
	existing := make(map[string]*PolygonZone, len(m.zones))
	for id, z := range m.zones {
		existing[id] = z
	}
	m.mu.Unlock()

	toAdd := make(map[string]*PolygonZone)
	toRemove := make(map[string]bool)
	matched := make(map[string]bool)

	seen := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		seen[d.ID] = true

		if z, ok := existing[d.ID]; ok {
			z.UpdateGeometry(d.Polygon)
			z.UpdateConfig(d.TriggeringAnchors, d.TriggeringClasses)
			matched[d.ID] = true
			continue
		}

		if renamed := findPolygonRename(existing, matched, d); renamed != nil {
			renamed.UpdateGeometry(d.Polygon)
			renamed.UpdateConfig(d.TriggeringAnchors, d.TriggeringClasses)
			oldID := renamed.ID()
			renamed.setID(d.ID)
			toAdd[d.ID] = renamed
			toRemove[oldID] = true
			matched[oldID] = true
			m.dwell.RenameZone(oldID, d.ID)
			log.Printf("zones: detected polygon zone rename from %q to %q, preserving counts", oldID, d.ID)
			continue
		}

		z, err := NewPolygonZone(d)
		if err != nil {
			log.Printf("zones: skipping malformed polygon zone %q: %v", d.ID, err)
			continue
		}
		toAdd[d.ID] = z
	}

	if removeMissing {
		for id := range existing {
			if !seen[id] && !matched[id] {
				toRemove[id] = true
			}
		}
	}

	m.mu.Lock()
	for id := range toRemove {
		delete(m.zones, id)
	}
	for id, z := range toAdd {
		m.zones[id] = z
	}
	m.mu.Unlock()
	return nil
}

func findPolygonRename(existing map[string]*PolygonZone, matched map[string]bool, d PolygonDescriptor) *PolygonZone {
	for id, z := range existing {
		if matched[id] {
			continue
		}
		verts := z.Vertices()
		if len(verts) != len(d.Polygon) {
			continue
		}
		allMatch := true
		for i, v := range verts {
			if !closeEnough(v.X, d.Polygon[i].X) || !closeEnough(v.Y, d.Polygon[i].Y) {
				allMatch = false
				break
			}
		}
		if allMatch {
			return z
		}
	}
	return nil
}

// Zone returns the zone for id, for status/testing.
func (m *PolygonManager) Zone(id string) (*PolygonZone, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zones[id]
	return z, ok
}
