package zones

import (
	"strconv"
	"time"
)

// EventType names the kind of zone event (spec.md §6 "Event output").
type EventType string

const (
	EventLineCrossingIn  EventType = "line_crossing_in"
	EventLineCrossingOut EventType = "line_crossing_out"
	EventZoneEntry       EventType = "zone_entry"
	EventZoneExit        EventType = "zone_exit"
)

// Event is the wire shape emitted to external sinks.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	ObjectID  string            `json:"object_id"`
	ClassName string            `json:"class_name"`
	Location  Point             `json:"location"`
	ZoneID    string            `json:"zone_id"`
	Type      EventType         `json:"type"`
	Metadata  map[string]string `json:"metadata"`
}

func lineEvent(zoneID string, d Detection, typ EventType, direction string, inCount, outCount int) Event {
	return Event{
		Timestamp: time.Now(),
		ObjectID:  d.TrackID,
		ClassName: d.ClassName,
		Location:  d.Box.Center(),
		ZoneID:    zoneID,
		Type:      typ,
		Metadata: map[string]string{
			"direction": direction,
			"in_count":  strconv.Itoa(inCount),
			"out_count": strconv.Itoa(outCount),
		},
	}
}

func polygonEvent(zoneID string, d Detection, typ EventType, direction string, inCount, outCount int) Event {
	e := lineEvent(zoneID, d, typ, direction, inCount, outCount)
	e.Metadata["current_count"] = strconv.Itoa(inCount - outCount)
	return e
}
