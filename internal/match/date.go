package match

import (
	"math"
	"time"

	"github.com/regiodata/event-dedup/internal/config"
	"github.com/regiodata/event-dedup/internal/model"
)

// DateScore computes date similarity between two events: the Jaccard
// coefficient of their calendar-date sets, attenuated by how far apart the
// start times are on shared dates. Either side without dates scores 0.
func DateScore(a, b *model.SourceEvent, cfg config.DateConfig) float64 {
	daysA := a.DateSet()
	daysB := b.DateSet()
	if len(daysA) == 0 || len(daysB) == 0 {
		return 0
	}

	overlap := 0
	for day := range daysA {
		if _, ok := daysB[day]; ok {
			overlap++
		}
	}
	if overlap == 0 {
		return 0
	}
	union := len(daysA) + len(daysB) - overlap
	jaccard := float64(overlap) / float64(union)

	timesA := a.StartTimes()
	timesB := b.StartTimes()
	factorSum := 0.0
	for day := range daysA {
		if _, ok := daysB[day]; ok {
			factorSum += timeProximityFactor(timesA[day], timesB[day], cfg)
		}
	}

	return jaccard * (factorSum / float64(overlap))
}

// timeProximityFactor grades how close two HH:MM start times are. Missing
// or unparseable times get full credit (benefit of the doubt).
func timeProximityFactor(timeA, timeB string, cfg config.DateConfig) float64 {
	if timeA == "" || timeB == "" {
		return 1.0
	}
	ta, errA := time.Parse("15:04", timeA)
	tb, errB := time.Parse("15:04", timeB)
	if errA != nil || errB != nil {
		return 1.0
	}

	diffMinutes := math.Abs(ta.Sub(tb).Minutes())
	switch {
	case diffMinutes <= float64(cfg.TimeToleranceMinutes):
		return 1.0
	case diffMinutes <= float64(cfg.TimeCloseMinutes):
		return cfg.CloseFactor
	case diffMinutes <= float64(cfg.GapPenaltyHours)*60:
		return cfg.FarFactor
	default:
		return cfg.GapPenaltyFactor
	}
}
