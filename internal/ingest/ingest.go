// Package ingest reads event JSON files in the extraction pipeline's
// output format and converts them to source events. The wire format nests
// location and geo data; the engine works on the flattened shape.
package ingest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/regiodata/event-dedup/internal/model"
)

// GeoData is the nested geocoding block of the wire format.
type GeoData struct {
	Longitude  *float64 `json:"longitude"`
	Latitude   *float64 `json:"latitude"`
	Confidence *float64 `json:"confidence"`
}

// LocationData is the nested location block of the wire format.
type LocationData struct {
	Name     string   `json:"name"`
	City     string   `json:"city"`
	District string   `json:"district"`
	Street   string   `json:"street"`
	Zipcode  string   `json:"zipcode"`
	Geo      *GeoData `json:"geo"`
}

// EventData is one event as written by the extraction pipeline.
type EventData struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	ShortDescription string           `json:"short_description"`
	Description      string           `json:"description"`
	Highlights       []string         `json:"highlights"`
	EventDates       []model.DateSpan `json:"event_dates"`
	Location         *LocationData    `json:"location"`
	SourceType       string           `json:"source_type"`
	Categories       []string         `json:"categories"`
	IsFamilyEvent    bool             `json:"is_family_event"`
	IsChildFocused   bool             `json:"is_child_focused"`
	AdmissionFree    bool             `json:"admission_free"`
}

// EventFile is the top-level wire document.
type EventFile struct {
	Events   []EventData `json:"events"`
	Metadata struct {
		SourceKey string `json:"sourceKey"`
	} `json:"metadata"`
}

// SourceCodeFromFilename extracts the source code from a data filename:
// everything before the first underscore
// ("bwb_11.02.2026_2026-02-11T20-46-41.json" -> "bwb").
func SourceCodeFromFilename(filename string) string {
	base := filepath.Base(filename)
	if i := strings.Index(base, "_"); i > 0 {
		return base[:i]
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LoadFile reads one event file and converts its events. Events without a
// title or without any date are dropped with a warning, they can never
// match anything.
func LoadFile(path string) ([]model.SourceEvent, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", path)
	}

	var file EventFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, eris.Wrapf(err, "ingest: parse %s", path)
	}

	sourceCode := file.Metadata.SourceKey
	if sourceCode == "" {
		sourceCode = SourceCodeFromFilename(path)
	}

	events := make([]model.SourceEvent, 0, len(file.Events))
	dropped := 0
	for _, e := range file.Events {
		if e.Title == "" || len(e.EventDates) == 0 {
			dropped++
			continue
		}
		events = append(events, convert(e, sourceCode))
	}

	if dropped > 0 {
		zap.L().Warn("ingest: dropped unmatchable events",
			zap.String("file", filepath.Base(path)),
			zap.Int("dropped", dropped),
		)
	}
	return events, nil
}

func convert(e EventData, sourceCode string) model.SourceEvent {
	out := model.SourceEvent{
		ID:               e.ID,
		Title:            e.Title,
		ShortDescription: e.ShortDescription,
		Description:      e.Description,
		Highlights:       e.Highlights,
		SourceCode:       sourceCode,
		SourceType:       model.SourceType(e.SourceType),
		Categories:       e.Categories,
		IsFamilyEvent:    e.IsFamilyEvent,
		IsChildEvent:     e.IsChildFocused,
		AdmissionFree:    e.AdmissionFree,
		Dates:            e.EventDates,
	}
	if loc := e.Location; loc != nil {
		out.LocationName = loc.Name
		out.LocationCity = loc.City
		out.LocationDistrict = loc.District
		out.LocationStreet = loc.Street
		out.LocationZipcode = loc.Zipcode
		if loc.Geo != nil {
			out.GeoLatitude = loc.Geo.Latitude
			out.GeoLongitude = loc.Geo.Longitude
			out.GeoConfidence = loc.Geo.Confidence
		}
	}
	return out
}
