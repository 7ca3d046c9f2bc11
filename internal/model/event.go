// Package model defines the value types flowing through the dedup pipeline.
package model

import (
	"time"
)

// SourceType distinguishes how a record was published.
type SourceType string

const (
	SourceTypeArticle SourceType = "artikel"     // newspaper article
	SourceTypeListing SourceType = "terminliste" // formal event listing
)

// DateSpan is one occurrence of an event: a calendar date with optional
// start/end times, or a multi-day range when EndDate is set.
type DateSpan struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// Key returns the dedup key for a span: the full (date, start, end, end_date)
// tuple. Two spans with the same key describe the same occurrence.
func (d DateSpan) Key() string {
	return d.Date + "|" + d.StartTime + "|" + d.EndTime + "|" + d.EndDate
}

// Days expands the span into every contained calendar date (ISO strings).
// A plain date yields itself; a range yields each day from Date through
// EndDate inclusive. Malformed dates yield nil.
func (d DateSpan) Days() []string {
	if d.EndDate == "" {
		if d.Date == "" {
			return nil
		}
		return []string{d.Date}
	}
	start, err := time.Parse("2006-01-02", d.Date)
	if err != nil {
		return nil
	}
	end, err := time.Parse("2006-01-02", d.EndDate)
	if err != nil {
		return nil
	}
	var days []string
	for cur := start; !cur.After(end); cur = cur.AddDate(0, 0, 1) {
		days = append(days, cur.Format("2006-01-02"))
	}
	return days
}

// SourceEvent is one event record as ingested from a single source.
// Immutable once ingested; the engine only reads it.
type SourceEvent struct {
	ID string `json:"id"`

	// Original fields (for display and AI prompts).
	Title            string   `json:"title"`
	ShortDescription string   `json:"short_description,omitempty"`
	Description      string   `json:"description,omitempty"`
	Highlights       []string `json:"highlights,omitempty"`

	// Location.
	LocationName     string `json:"location_name,omitempty"`
	LocationCity     string `json:"location_city,omitempty"`
	LocationDistrict string `json:"location_district,omitempty"`
	LocationStreet   string `json:"location_street,omitempty"`
	LocationZipcode  string `json:"location_zipcode,omitempty"`

	// Geocoding result. Confidence is the geocoder's own score in [0,1].
	GeoLatitude   *float64 `json:"geo_latitude,omitempty"`
	GeoLongitude  *float64 `json:"geo_longitude,omitempty"`
	GeoConfidence *float64 `json:"geo_confidence,omitempty"`

	// Normalized fields (populated by the normalize package, used by
	// blocking and scoring only).
	TitleNormalized        string `json:"title_normalized,omitempty"`
	LocationCityNormalized string `json:"location_city_normalized,omitempty"`

	// BlockingKeys are derived grouping keys; never persisted as facts.
	BlockingKeys []string `json:"blocking_keys,omitempty"`

	// Provenance metadata.
	SourceCode string     `json:"source_code"`
	SourceType SourceType `json:"source_type"`

	Categories    []string `json:"categories,omitempty"`
	IsFamilyEvent bool     `json:"is_family_event,omitempty"`
	IsChildEvent  bool     `json:"is_child_focused,omitempty"`
	AdmissionFree bool     `json:"admission_free,omitempty"`

	Dates []DateSpan `json:"dates"`
}

// DateSet returns the set of calendar dates this event occurs on.
func (e *SourceEvent) DateSet() map[string]struct{} {
	out := make(map[string]struct{})
	for _, span := range e.Dates {
		for _, day := range span.Days() {
			out[day] = struct{}{}
		}
	}
	return out
}

// StartTimes maps each calendar date to the start time of the first span
// covering it (empty string when the span has no time).
func (e *SourceEvent) StartTimes() map[string]string {
	out := make(map[string]string)
	for _, span := range e.Dates {
		for _, day := range span.Days() {
			if _, ok := out[day]; !ok {
				out[day] = span.StartTime
			}
		}
	}
	return out
}

// BestDescription returns the long description, falling back to the short one.
func (e *SourceEvent) BestDescription() string {
	if e.Description != "" {
		return e.Description
	}
	return e.ShortDescription
}
