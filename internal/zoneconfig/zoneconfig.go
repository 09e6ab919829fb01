// Package zoneconfig loads zone-descriptor JSON documents from disk and
// hot-reloads them on change (spec.md §6 "Zone configuration").
package zoneconfig

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/brinkbyte/edgegw/internal/zones"
)

// lineSpec is the on-disk shape of one line zone (spec.md §6).
type lineSpec struct {
	ID                   string   `json:"id"`
	StartX               float64  `json:"start_x"`
	StartY               float64  `json:"start_y"`
	EndX                 float64  `json:"end_x"`
	EndY                 float64  `json:"end_y"`
	MinCrossingThreshold int      `json:"min_crossing_threshold"`
	TriggeringAnchors    []string `json:"triggering_anchors"`
	TriggeringClasses    []string `json:"triggering_classes"`
}

// pointSpec is one polygon vertex.
type pointSpec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// polygonSpec is the on-disk shape of one polygon zone (spec.md §6).
type polygonSpec struct {
	ID                string      `json:"id"`
	Polygon           []pointSpec `json:"polygon"`
	TriggeringAnchors []string    `json:"triggering_anchors"`
	TriggeringClasses []string    `json:"triggering_classes"`
}

// Document is one stream's full zone configuration file.
type Document struct {
	LineZones    []lineSpec    `json:"line_zones"`
	PolygonZones []polygonSpec `json:"polygon_zones"`
}

// ParseDocument decodes raw JSON into line/polygon descriptors ready for
// zones.LineManager.Reconfigure / zones.PolygonManager.Reconfigure.
func ParseDocument(raw []byte) ([]zones.LineDescriptor, []zones.PolygonDescriptor, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("zoneconfig: decode: %w", err)
	}

	lines := make([]zones.LineDescriptor, 0, len(doc.LineZones))
	for _, l := range doc.LineZones {
		lines = append(lines, zones.LineDescriptor{
			ID:                   l.ID,
			Start:                zones.Point{X: l.StartX, Y: l.StartY},
			End:                  zones.Point{X: l.EndX, Y: l.EndY},
			MinCrossingThreshold: l.MinCrossingThreshold,
			TriggeringAnchors:    parseAnchors(l.TriggeringAnchors),
			TriggeringClasses:    l.TriggeringClasses,
		})
	}

	polygons := make([]zones.PolygonDescriptor, 0, len(doc.PolygonZones))
	for _, p := range doc.PolygonZones {
		poly := make([]zones.Point, 0, len(p.Polygon))
		for _, v := range p.Polygon {
			poly = append(poly, zones.Point{X: v.X, Y: v.Y})
		}
		polygons = append(polygons, zones.PolygonDescriptor{
			ID:                p.ID,
			Polygon:           poly,
			TriggeringAnchors: parseAnchors(p.TriggeringAnchors),
			TriggeringClasses: p.TriggeringClasses,
		})
	}

	return lines, polygons, nil
}

func parseAnchors(names []string) []zones.Anchor {
	if len(names) == 0 {
		return nil
	}
	out := make([]zones.Anchor, 0, len(names))
	for _, n := range names {
		out = append(out, zones.ParseAnchor(n))
	}
	return out
}

// LoadFile reads and parses one zone configuration document from path.
func LoadFile(path string) ([]zones.LineDescriptor, []zones.PolygonDescriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("zoneconfig: read %s: %w", path, err)
	}
	return ParseDocument(raw)
}
