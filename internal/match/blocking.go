// Package match implements candidate generation, pairwise signal scoring,
// and the combined match decision for source events.
package match

import (
	"fmt"
	"math"

	"github.com/twpayne/go-geom"

	"github.com/regiodata/event-dedup/internal/config"
	"github.com/regiodata/event-dedup/internal/model"
)

// BlockingKeys derives the coarse grouping keys for one event: one
// date+city key per calendar date when a normalized city is present, and
// one date+grid-cell key per date when the coordinates are trusted.
// Order-preserving, deduplicated.
func BlockingKeys(e *model.SourceEvent, cfg config.BlockingConfig) []string {
	validGeo := e.GeoLatitude != nil && e.GeoLongitude != nil && e.GeoConfidence != nil &&
		trustedGeo(*e.GeoLatitude, *e.GeoLongitude, *e.GeoConfidence, cfg)

	seen := make(map[string]struct{})
	var keys []string
	add := func(k string) {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}

	for _, span := range e.Dates {
		for _, day := range span.Days() {
			if e.LocationCityNormalized != "" {
				add("dc|" + day + "|" + e.LocationCityNormalized)
			}
			if validGeo {
				add("dg|" + day + "|" + gridCell(*e.GeoLatitude, *e.GeoLongitude, cfg))
			}
		}
	}
	return keys
}

// AssignBlockingKeys fills BlockingKeys on every event in place.
func AssignBlockingKeys(events []model.SourceEvent, cfg config.BlockingConfig) {
	for i := range events {
		events[i].BlockingKeys = BlockingKeys(&events[i], cfg)
	}
}

// trustedGeo reports whether coordinates may participate in geo blocking:
// confidence at or above the minimum and the point inside the plausibility
// bounding box. Points outside the box are geocoding errors (they still
// participate in city blocking).
func trustedGeo(lat, lon, confidence float64, cfg config.BlockingConfig) bool {
	if confidence < cfg.GeoMinConfidence {
		return false
	}
	box := plausibilityBounds(cfg)
	return box.OverlapsPoint(geom.XY, geom.Coord{lon, lat})
}

func plausibilityBounds(cfg config.BlockingConfig) *geom.Bounds {
	return geom.NewBounds(geom.XY).Set(cfg.LonMin, cfg.LatMin, cfg.LonMax, cfg.LatMax)
}

// gridCell snaps coordinates to the blocking grid and renders a stable
// cell identifier like "48.15|7.80".
func gridCell(lat, lon float64, cfg config.BlockingConfig) string {
	cellLat := math.Round(lat/cfg.GridLatDegrees) * cfg.GridLatDegrees
	cellLon := math.Round(lon/cfg.GridLonDegrees) * cfg.GridLonDegrees
	return fmt.Sprintf("%.2f|%.2f", cellLat, cellLon)
}
