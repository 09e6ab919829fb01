package zones

import (
	"errors"
	"sync"
)

// PolygonDescriptor configures a PolygonZone (spec.md §6 "Polygon zone").
type PolygonDescriptor struct {
	ID                string
	Polygon           []Point // normalised [0,1], ordered vertices
	TriggeringAnchors []Anchor
	TriggeringClasses []string
}

// PolygonZone detects entry/exit of tracked objects into a polygon
// region via a rasterised pixel mask, grounded on original_source's
// PolygonZone.
type PolygonZone struct {
	mu sync.Mutex

	id      string
	polygon []Point // normalised

	mask           [][]bool // mask[y][x]
	maskW, maskH   int
	haveFrameSize  bool
	lastFrameW     float64
	lastFrameH     float64

	anchors []Anchor
	classes []string

	history    map[string]bool // last known in-zone state per track
	inCount    int
	outCount   int
	inByClass  map[string]int
	outByClass map[string]int
}

// NewPolygonZone validates and constructs a PolygonZone. Fewer than 3
// vertices fails initialisation (spec.md §8 boundary behaviour).
func NewPolygonZone(d PolygonDescriptor) (*PolygonZone, error) {
	if len(d.Polygon) < 3 {
		return nil, errors.New("zones: polygon zone needs at least 3 vertices")
	}

	anchors := d.TriggeringAnchors
	if len(anchors) == 0 {
		anchors = defaultPolygonAnchors()
	}

	poly := make([]Point, len(d.Polygon))
	copy(poly, d.Polygon)

	return &PolygonZone{
		id: d.ID, polygon: poly,
		anchors:    anchors,
		classes:    d.TriggeringClasses,
		history:    make(map[string]bool),
		inByClass:  make(map[string]int),
		outByClass: make(map[string]int),
	}, nil
}

func (z *PolygonZone) ID() string {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.id
}

func (z *PolygonZone) Counts() (in, out int) {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.inCount, z.outCount
}

// CurrentCount is in-out, the live occupancy.
func (z *PolygonZone) CurrentCount() int {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.inCount - z.outCount
}

// Vertices returns the normalised polygon vertices, used by the
// manager's rename-matching search.
func (z *PolygonZone) Vertices() []Point {
	z.mu.Lock()
	defer z.mu.Unlock()
	out := make([]Point, len(z.polygon))
	copy(out, z.polygon)
	return out
}

// rebuildMask rasterises the polygon into a binary mask sized to the
// current frame. Called with the lock held whenever vertices or frame
// size change (spec.md §4.C5.d).
func (z *PolygonZone) rebuildMask(frameW, frameH float64) {
	if z.haveFrameSize && frameW == z.lastFrameW && frameH == z.lastFrameH && z.mask != nil {
		return
	}
	z.lastFrameW, z.lastFrameH = frameW, frameH
	z.haveFrameSize = true

	w, h := int(frameW), int(frameH)
	if w <= 0 || h <= 0 {
		z.mask = nil
		z.maskW, z.maskH = 0, 0
		return
	}

	pixelPoly := make([]Point, len(z.polygon))
	for i, p := range z.polygon {
		pixelPoly[i] = Point{p.X * frameW, p.Y * frameH}
	}

	mask := make([][]bool, h)
	for y := 0; y < h; y++ {
		mask[y] = make([]bool, w)
		for x := 0; x < w; x++ {
			mask[y][x] = pointInPolygon(pixelPoly, float64(x)+0.5, float64(y)+0.5)
		}
	}
	z.mask = mask
	z.maskW, z.maskH = w, h
}

// pointInPolygon is a standard even-odd ray-casting test.
func pointInPolygon(poly []Point, x, y float64) bool {
	inside := false
	n := len(poly)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := poly[i], poly[j]
		if (pi.Y > y) != (pj.Y > y) &&
			x < (pj.X-pi.X)*(y-pi.Y)/(pj.Y-pi.Y)+pi.X {
			inside = !inside
		}
	}
	return inside
}

// Process evaluates one frame's detections against the polygon mask
// and returns entry/exit events.
func (z *PolygonZone) Process(detections []Detection, frameW, frameH float64) []Event {
	z.mu.Lock()
	defer z.mu.Unlock()

	z.rebuildMask(frameW, frameH)

	var events []Event
	for _, d := range detections {
		if !classMatches(z.classes, d.ClassName) {
			continue
		}

		inZone := z.inMask(d.Box)
		prev, known := z.history[d.TrackID]
		z.history[d.TrackID] = inZone

		if known && prev == inZone {
			continue
		}

		if inZone {
			z.inCount++
			z.inByClass[d.ClassName]++
			events = append(events, polygonEvent(z.id, d, EventZoneEntry, "in", z.inCount, z.outCount))
		} else if known {
			z.outCount++
			z.outByClass[d.ClassName]++
			events = append(events, polygonEvent(z.id, d, EventZoneExit, "out", z.inCount, z.outCount))
		}
	}
	return events
}

func (z *PolygonZone) inMask(b Box) bool {
	if z.mask == nil {
		return false
	}
	for _, a := range z.anchors {
		p := b.AnchorPoint(a)
		x, y := int(p.X), int(p.Y)
		if x < 0 || y < 0 || x >= z.maskW || y >= z.maskH {
			return false
		}
		if !z.mask[y][x] {
			return false
		}
	}
	return true
}

// InZoneTrackIDs returns the track ids currently known to be inside
// the zone, for dwell-timer integration and track-id annotation.
func (z *PolygonZone) InZoneTrackIDs() []string {
	z.mu.Lock()
	defer z.mu.Unlock()
	var ids []string
	for id, in := range z.history {
		if in {
			ids = append(ids, id)
		}
	}
	return ids
}

// UpdateGeometry replaces the polygon's vertices, preserving counters.
func (z *PolygonZone) UpdateGeometry(polygon []Point) {
	z.mu.Lock()
	defer z.mu.Unlock()
	poly := make([]Point, len(polygon))
	copy(poly, polygon)
	z.polygon = poly
	z.haveFrameSize = false
	z.mask = nil
}

// UpdateConfig applies anchor/class changes in place, preserving
// counters.
func (z *PolygonZone) UpdateConfig(anchors []Anchor, classes []string) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if len(anchors) > 0 {
		z.anchors = anchors
	}
	if classes != nil {
		z.classes = classes
	}
}

func (z *PolygonZone) setID(id string) {
	z.mu.Lock()
	z.id = id
	z.mu.Unlock()
}
