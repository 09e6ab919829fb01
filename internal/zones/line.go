package zones

import (
	"errors"
	"sync"
)

// roiLimitLength is the magnitude used for the perpendicular
// region-of-interest limit vectors (spec.md §4.C5.c).
const roiLimitLength = 10000.0

// LineDescriptor configures a LineZone (spec.md §6 "Line zone").
type LineDescriptor struct {
	ID                   string
	Start, End           Point // normalised [0,1]
	MinCrossingThreshold int
	TriggeringAnchors    []Anchor
	TriggeringClasses    []string
}

// LineZone detects crossings of an oriented line segment by tracked
// objects, grounded on original_source's LineZone.
type LineZone struct {
	mu sync.Mutex

	id         string
	start, end Point // normalised

	pixelLine              Vector
	startLimit, endLimit   Vector
	haveFrameSize          bool
	lastFrameW, lastFrameH float64

	minCrossingThreshold int
	historyLen           int
	anchors              []Anchor
	classes              []string

	history   map[string][]bool
	inCount   int
	outCount  int
	inByClass map[string]int
	outByClass map[string]int
}

// NewLineZone validates and constructs a LineZone. A zero-magnitude
// vector fails initialisation (spec.md §8 boundary behaviour).
func NewLineZone(d LineDescriptor) (*LineZone, error) {
	v := Vector{Start: d.Start, End: d.End}
	if v.Magnitude() == 0 {
		return nil, errors.New("zones: line zone has zero-magnitude vector")
	}

	threshold := d.MinCrossingThreshold
	if threshold < 1 {
		threshold = 1
	}

	anchors := d.TriggeringAnchors
	if len(anchors) == 0 {
		anchors = defaultLineAnchors()
	}

	z := &LineZone{
		id: d.ID, start: d.Start, end: d.End,
		minCrossingThreshold: threshold,
		historyLen:           threshold + 1,
		anchors:              anchors,
		classes:              d.TriggeringClasses,
		history:              make(map[string][]bool),
		inByClass:            make(map[string]int),
		outByClass:           make(map[string]int),
	}
	return z, nil
}

func (z *LineZone) ID() string {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.id
}

func (z *LineZone) Counts() (in, out int) {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.inCount, z.outCount
}

// Endpoints returns the normalised start/end points, used by the
// manager's rename-matching search.
func (z *LineZone) Endpoints() (start, end Point) {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.start, z.end
}

// setPixelGeometry maps normalised endpoints to pixel space and
// recomputes the region-of-interest limit vectors. Called with the
// lock held, once per frame whose size differs from the last seen
// (spec.md §4.C5.f).
func (z *LineZone) setPixelGeometry(frameW, frameH float64) {
	if z.haveFrameSize && frameW == z.lastFrameW && frameH == z.lastFrameH {
		return
	}
	z.lastFrameW, z.lastFrameH = frameW, frameH
	z.haveFrameSize = true

	start := Point{z.start.X * frameW, z.start.Y * frameH}
	end := Point{z.end.X * frameW, z.end.Y * frameH}
	z.pixelLine = Vector{Start: start, End: end}

	mag := z.pixelLine.Magnitude()
	dx, dy := (end.X-start.X)/mag, (end.Y-start.Y)/mag
	perpX, perpY := -dy, dx

	z.startLimit = Vector{
		Start: start,
		End:   Point{start.X + perpX*roiLimitLength, start.Y + perpY*roiLimitLength},
	}
	z.endLimit = Vector{
		Start: end,
		End:   Point{end.X - perpX*roiLimitLength, end.Y - perpY*roiLimitLength},
	}
}

// Process evaluates one frame's detections against the line and
// returns any crossing events. frameW/frameH are the current frame's
// pixel dimensions.
func (z *LineZone) Process(detections []Detection, frameW, frameH float64) []Event {
	z.mu.Lock()
	defer z.mu.Unlock()

	z.setPixelGeometry(frameW, frameH)

	var events []Event
	for _, d := range detections {
		if !classMatches(z.classes, d.ClassName) {
			continue
		}

		inLimits, hasLeft, hasRight := z.anchorSides(d.Box)
		if !inLimits || (hasLeft && hasRight) {
			continue
		}
		side := hasLeft // true = every anchor has a negative cross product

		hist := append(z.history[d.TrackID], side)
		if len(hist) > z.historyLen {
			hist = hist[len(hist)-z.historyLen:]
		}
		z.history[d.TrackID] = hist

		if len(hist) < z.historyLen {
			continue
		}

		oldest := hist[0]
		count := 0
		for _, s := range hist {
			if s == oldest {
				count++
			}
		}
		if count > 1 {
			continue // no clean transition
		}

		// oldest holds the side the track occupied before the transition
		// (hasAnyLeft for that frame). Leaving the negative-cross-product
		// side counts as "in"; leaving the other side counts as "out". For
		// a line drawn from (500,0) to (500,1000) in pixels, a track moving
		// from x=400 to x=600 leaves the non-negative side: an "out".
		if oldest {
			z.inCount++
			z.inByClass[d.ClassName]++
			events = append(events, lineEvent(z.id, d, EventLineCrossingIn, "in", z.inCount, z.outCount))
		} else {
			z.outCount++
			z.outByClass[d.ClassName]++
			events = append(events, lineEvent(z.id, d, EventLineCrossingOut, "out", z.inCount, z.outCount))
		}
	}
	return events
}

// anchorSides computes inLimits/hasAnyLeft/hasAnyRight for one box's
// anchors, matching computeAnchorSides.
func (z *LineZone) anchorSides(b Box) (inLimits, hasLeft, hasRight bool) {
	allInLimits := true
	for _, a := range z.anchors {
		p := b.AnchorPoint(a)
		cp1 := z.startLimit.CrossProduct(p)
		cp2 := z.endLimit.CrossProduct(p)
		within := (cp1 > 0) == (cp2 > 0)
		if !within {
			allInLimits = false
		}

		side := z.pixelLine.CrossProduct(p)
		if side < 0 {
			hasLeft = true
		} else {
			hasRight = true
		}
	}
	return allInLimits, hasLeft, hasRight
}

// UpdateGeometry replaces the line's endpoints, preserving counters
// and history (used for in-place reconfiguration and rename).
func (z *LineZone) UpdateGeometry(start, end Point) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.start, z.end = start, end
	z.haveFrameSize = false // force recomputation of pixel geometry next frame
}

// UpdateConfig applies threshold/anchor/class changes in place,
// preserving counters.
func (z *LineZone) UpdateConfig(threshold int, anchors []Anchor, classes []string) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if threshold > 0 {
		if threshold < 1 {
			threshold = 1
		}
		z.minCrossingThreshold = threshold
		z.historyLen = threshold + 1
	}
	if len(anchors) > 0 {
		z.anchors = anchors
	}
	if classes != nil {
		z.classes = classes
	}
}

func (z *LineZone) setID(id string) {
	z.mu.Lock()
	z.id = id
	z.mu.Unlock()
}
