package canonical

import (
	"github.com/regiodata/event-dedup/internal/model"
)

// selectLongest picks the longest non-empty value. All empty yields the
// first event as provenance with an empty value.
func selectLongest(events []model.SourceEvent, get func(*model.SourceEvent) string) (string, model.Provenance) {
	bestVal := ""
	bestSrc := events[0].ID
	for i := range events {
		if v := get(&events[i]); len(v) > len(bestVal) {
			bestVal = v
			bestSrc = events[i].ID
		}
	}
	return bestVal, model.FromEvent(bestSrc)
}

// selectLongestTitle prefers the longest title of at least minLength
// characters; when nothing reaches it, the longest overall wins. Very
// short titles ("Konzert") lose to descriptive ones even when the short
// one came from a higher-priority source.
func selectLongestTitle(events []model.SourceEvent, minLength int) (string, string) {
	bestVal, bestSrc := "", events[0].ID
	fallbackVal, fallbackSrc := "", events[0].ID

	for i := range events {
		title := events[i].Title
		if title == "" {
			continue
		}
		if len(title) > len(fallbackVal) {
			fallbackVal, fallbackSrc = title, events[i].ID
		}
		if len(title) >= minLength && len(title) > len(bestVal) {
			bestVal, bestSrc = title, events[i].ID
		}
	}

	if bestVal != "" {
		return bestVal, bestSrc
	}
	return fallbackVal, fallbackSrc
}

// selectMostFrequent picks the most common non-empty value; ties break by
// first occurrence across the event list.
func selectMostFrequent(events []model.SourceEvent, get func(*model.SourceEvent) string) (string, model.Provenance) {
	counts := make(map[string]int)
	firstSrc := make(map[string]string)
	var order []string

	for i := range events {
		v := get(&events[i])
		if v == "" {
			continue
		}
		if counts[v] == 0 {
			firstSrc[v] = events[i].ID
			order = append(order, v)
		}
		counts[v]++
	}

	if len(order) == 0 {
		return "", model.FromEvent(events[0].ID)
	}

	best := order[0]
	for _, v := range order[1:] {
		if counts[v] > counts[best] {
			best = v
		}
	}
	return best, model.FromEvent(firstSrc[best])
}

// selectBestGeo returns the event with the highest-confidence complete
// coordinate set, or nil when no event carries one.
func selectBestGeo(events []model.SourceEvent) *model.SourceEvent {
	var best *model.SourceEvent
	bestConf := -1.0
	for i := range events {
		e := &events[i]
		if e.GeoLatitude == nil || e.GeoLongitude == nil || e.GeoConfidence == nil {
			continue
		}
		if *e.GeoConfidence > bestConf {
			bestConf = *e.GeoConfidence
			best = e
		}
	}
	return best
}

// unionStrings unions list fields across events, preserving first-seen order.
func unionStrings(events []model.SourceEvent, get func(*model.SourceEvent) []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for i := range events {
		for _, v := range get(&events[i]) {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// unionDates unions date spans across events, deduplicated by the full
// span key so distinct occurrences on the same day survive.
func unionDates(events []model.SourceEvent) []model.DateSpan {
	seen := make(map[string]struct{})
	var out []model.DateSpan
	for i := range events {
		for _, span := range events[i].Dates {
			key := span.Key()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, span)
		}
	}
	return out
}

// anyTrue is true when any source says true; provenance points at the
// first affirming event, else the first event.
func anyTrue(events []model.SourceEvent, get func(*model.SourceEvent) bool) (bool, model.Provenance) {
	for i := range events {
		if get(&events[i]) {
			return true, model.FromEvent(events[i].ID)
		}
	}
	return false, model.FromEvent(events[0].ID)
}
