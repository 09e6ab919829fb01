package zones

import (
	"sync"
	"time"
)

type dwellKey struct {
	zoneID, objectID string
}

// DwellTimer tracks how long objects remain inside zones, across
// separate entry/exit sessions (spec.md §4.C5.e), grounded on
// original_source's ZoneTimer. accumulated persists for the lifetime
// of the timer (until Reset) even after an object leaves, mirroring
// the original's separate accumulatedTimes_/zoneEntryTimes_ maps — a
// single merged record would lose prior dwell time on exit.
type DwellTimer struct {
	mu          sync.Mutex
	entryAt     map[dwellKey]time.Time
	accumulated map[dwellKey]time.Duration
}

func NewDwellTimer() *DwellTimer {
	return &DwellTimer{
		entryAt:     make(map[dwellKey]time.Time),
		accumulated: make(map[dwellKey]time.Duration),
	}
}

// Reset clears all dwell state.
func (t *DwellTimer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entryAt = make(map[dwellKey]time.Time)
	t.accumulated = make(map[dwellKey]time.Duration)
}

// Update reports, for the given zone, the set of object ids currently
// inside it, and returns time-in-zone for each. Objects no longer in
// the set have their session duration folded into their accumulated
// total and their entry removed; objects newly present get a fresh
// entry instant.
func (t *DwellTimer) Update(zoneID string, objectIDs []string) map[string]time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	current := make(map[string]bool, len(objectIDs))
	for _, id := range objectIDs {
		current[id] = true
	}

	for key, entry := range t.entryAt {
		if key.zoneID != zoneID {
			continue
		}
		if !current[key.objectID] {
			t.accumulated[key] += now.Sub(entry)
			delete(t.entryAt, key)
		}
	}

	result := make(map[string]time.Duration, len(objectIDs))
	for _, id := range objectIDs {
		key := dwellKey{zoneID, id}
		entry, ok := t.entryAt[key]
		if !ok {
			entry = now
			t.entryAt[key] = entry
		}
		result[id] = t.accumulated[key] + now.Sub(entry)
	}
	return result
}

// TimeInZone reports the current accumulated+in-session duration for
// one (zone, object) pair, zero if the object has no record at all.
func (t *DwellTimer) TimeInZone(zoneID, objectID string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := dwellKey{zoneID, objectID}
	total := t.accumulated[key]
	if entry, ok := t.entryAt[key]; ok {
		total += time.Since(entry)
	}
	return total
}

// RenameZone migrates every dwell record under oldID to newID, used
// when the manager's rename-preservation logic merges a zone into a
// new id (spec.md §8 scenario 6: "dwell timers referencing A are
// migrated to B").
func (t *DwellTimer) RenameZone(oldID, newID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, entry := range t.entryAt {
		if key.zoneID == oldID {
			delete(t.entryAt, key)
			t.entryAt[dwellKey{newID, key.objectID}] = entry
		}
	}
	for key, acc := range t.accumulated {
		if key.zoneID == oldID {
			delete(t.accumulated, key)
			t.accumulated[dwellKey{newID, key.objectID}] = acc
		}
	}
}
