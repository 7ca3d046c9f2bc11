package match

import (
	"math"

	"github.com/regiodata/event-dedup/internal/config"
	"github.com/regiodata/event-dedup/internal/model"
	"github.com/regiodata/event-dedup/internal/normalize"
)

const earthRadiusKM = 6371.0

// GeoScore computes geographic proximity between two events. Missing
// coordinates return the neutral score; low-confidence coordinates are
// treated as uninformative rather than penalizing, unless both sides carry
// (near-)identical points — consistent geocoder output is a strong signal
// regardless of its confidence values.
func GeoScore(a, b *model.SourceEvent, cfg config.GeoConfig) float64 {
	if a.GeoLatitude == nil || a.GeoLongitude == nil ||
		b.GeoLatitude == nil || b.GeoLongitude == nil {
		return cfg.NeutralScore
	}

	latA, lonA := *a.GeoLatitude, *a.GeoLongitude
	latB, lonB := *b.GeoLatitude, *b.GeoLongitude

	identical := math.Abs(latA-latB) < 1e-6 && math.Abs(lonA-lonB) < 1e-6
	if !identical {
		if a.GeoConfidence != nil && *a.GeoConfidence < cfg.MinConfidence {
			return cfg.NeutralScore
		}
		if b.GeoConfidence != nil && *b.GeoConfidence < cfg.MinConfidence {
			return cfg.NeutralScore
		}
	}

	dist := haversineKM(latA, lonA, latB, lonB)
	score := math.Max(0, 1-dist/cfg.MaxDistanceKM)

	// Within the venue radius, two different venues can share one
	// coordinate cluster; dissimilar venue names take a penalty.
	if dist < cfg.VenueMatchKM {
		score *= venueNameFactor(a.LocationName, b.LocationName, cfg)
	}

	return score
}

func venueNameFactor(nameA, nameB string, cfg config.GeoConfig) float64 {
	if nameA == "" || nameB == "" {
		return 1.0
	}
	ratio := TokenSortRatio(normalize.Text(nameA), normalize.Text(nameB))
	if ratio >= 0.5 {
		return 1.0
	}
	return cfg.VenueMismatchScale
}

// haversineKM computes the great-circle distance between two points.
func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKM * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
