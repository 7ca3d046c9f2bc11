package match

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/regiodata/event-dedup/internal/config"
	"github.com/regiodata/event-dedup/internal/model"
)

func fptr(v float64) *float64 { return &v }

func TestBlockingKeys_CityPerDay(t *testing.T) {
	cfg := config.DefaultMatching().Blocking
	e := &model.SourceEvent{
		LocationCityNormalized: "freiburg",
		Dates: []model.DateSpan{
			{Date: "2026-05-01", EndDate: "2026-05-02"},
		},
	}

	keys := BlockingKeys(e, cfg)
	assert.Equal(t, []string{
		"dc|2026-05-01|freiburg",
		"dc|2026-05-02|freiburg",
	}, keys)
}

func TestBlockingKeys_TrustedGeoAddsGridKeys(t *testing.T) {
	cfg := config.DefaultMatching().Blocking
	e := &model.SourceEvent{
		LocationCityNormalized: "freiburg",
		GeoLatitude:            fptr(47.995),
		GeoLongitude:           fptr(7.85),
		GeoConfidence:          fptr(0.95),
		Dates:                  []model.DateSpan{{Date: "2026-05-01"}},
	}

	keys := BlockingKeys(e, cfg)
	assert.Len(t, keys, 2)
	assert.Equal(t, "dc|2026-05-01|freiburg", keys[0])
	assert.Contains(t, keys[1], "dg|2026-05-01|")
}

func TestBlockingKeys_LowConfidenceGeoExcluded(t *testing.T) {
	cfg := config.DefaultMatching().Blocking
	e := &model.SourceEvent{
		LocationCityNormalized: "freiburg",
		GeoLatitude:            fptr(47.995),
		GeoLongitude:           fptr(7.85),
		GeoConfidence:          fptr(0.5),
		Dates:                  []model.DateSpan{{Date: "2026-05-01"}},
	}

	keys := BlockingKeys(e, cfg)
	assert.Equal(t, []string{"dc|2026-05-01|freiburg"}, keys)
}

func TestBlockingKeys_OutOfBoundsGeoExcluded(t *testing.T) {
	cfg := config.DefaultMatching().Blocking
	e := &model.SourceEvent{
		LocationCityNormalized: "freiburg",
		GeoLatitude:            fptr(52.52), // Berlin, outside the region box
		GeoLongitude:           fptr(13.40),
		GeoConfidence:          fptr(0.99),
		Dates:                  []model.DateSpan{{Date: "2026-05-01"}},
	}

	keys := BlockingKeys(e, cfg)
	assert.Equal(t, []string{"dc|2026-05-01|freiburg"}, keys)
}

func TestBlockingKeys_NoCityNoGeo(t *testing.T) {
	cfg := config.DefaultMatching().Blocking
	e := &model.SourceEvent{Dates: []model.DateSpan{{Date: "2026-05-01"}}}

	assert.Empty(t, BlockingKeys(e, cfg))
}

func TestGridCell_NearbyPointsShareCell(t *testing.T) {
	cfg := config.DefaultMatching().Blocking
	a := gridCell(47.995, 7.850, cfg)
	b := gridCell(47.998, 7.852, cfg)
	assert.Equal(t, a, b)
}

func TestAssignBlockingKeys(t *testing.T) {
	cfg := config.DefaultMatching().Blocking
	events := []model.SourceEvent{
		{LocationCityNormalized: "freiburg", Dates: []model.DateSpan{{Date: "2026-05-01"}}},
	}
	AssignBlockingKeys(events, cfg)
	assert.Equal(t, []string{"dc|2026-05-01|freiburg"}, events[0].BlockingKeys)
}
