// Package export writes canonical events back out in the ingestion wire
// format (chunked JSON) and as XLSX workbooks for manual review.
package export

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/regiodata/event-dedup/internal/ingest"
	"github.com/regiodata/event-dedup/internal/model"
)

// ChunkSize is the number of events per exported JSON file.
const ChunkSize = 200

// Metadata describes one exported chunk.
type Metadata struct {
	ExportedAt string `json:"exportedAt"`
	EventCount int    `json:"eventCount"`
	Part       int    `json:"part"`
	TotalParts int    `json:"totalParts"`
}

type document struct {
	Events   []ingest.EventData `json:"events"`
	Metadata Metadata           `json:"metadata"`
}

// Chunk is one named JSON export file.
type Chunk struct {
	Filename string
	Content  []byte
}

// ToWireFormat converts a canonical event back to the ingestion shape.
func ToWireFormat(c *model.CanonicalEvent) ingest.EventData {
	e := ingest.EventData{
		ID:               c.ID,
		Title:            c.Title,
		ShortDescription: c.ShortDescription,
		Description:      c.Description,
		Highlights:       c.Highlights,
		EventDates:       c.Dates,
		Categories:       c.Categories,
		IsFamilyEvent:    c.IsFamilyEvent,
		IsChildFocused:   c.IsChildEvent,
		AdmissionFree:    c.AdmissionFree,
	}

	loc := ingest.LocationData{
		Name:     c.LocationName,
		City:     c.LocationCity,
		District: c.LocationDistrict,
		Street:   c.LocationStreet,
		Zipcode:  c.LocationZipcode,
	}
	if c.GeoLatitude != nil && c.GeoLongitude != nil {
		loc.Geo = &ingest.GeoData{
			Latitude:   c.GeoLatitude,
			Longitude:  c.GeoLongitude,
			Confidence: c.GeoConfidence,
		}
	}
	if loc != (ingest.LocationData{}) {
		e.Location = &loc
	}
	return e
}

// ChunkJSON splits canonical events into named JSON documents of at most
// chunkSize events each. An empty input still yields one file with an
// empty events array, so downstream consumers always see a document.
func ChunkJSON(canonicals []model.CanonicalEvent, chunkSize int, now time.Time) ([]Chunk, error) {
	if chunkSize <= 0 {
		chunkSize = ChunkSize
	}
	stamp := now.UTC().Format("2006-01-02T15-04")
	exportedAt := now.UTC().Format(time.RFC3339)

	events := make([]ingest.EventData, len(canonicals))
	for i := range canonicals {
		events[i] = ToWireFormat(&canonicals[i])
	}

	totalParts := (len(events) + chunkSize - 1) / chunkSize
	if totalParts == 0 {
		totalParts = 1
	}

	chunks := make([]Chunk, 0, totalParts)
	for part := 1; part <= totalParts; part++ {
		start := (part - 1) * chunkSize
		end := start + chunkSize
		if end > len(events) {
			end = len(events)
		}
		slice := events[start:end]
		if slice == nil {
			slice = []ingest.EventData{}
		}

		content, err := json.MarshalIndent(document{
			Events: slice,
			Metadata: Metadata{
				ExportedAt: exportedAt,
				EventCount: len(slice),
				Part:       part,
				TotalParts: totalParts,
			},
		}, "", "  ")
		if err != nil {
			return nil, eris.Wrap(err, "export: marshal chunk")
		}

		chunks = append(chunks, Chunk{
			Filename: fmt.Sprintf("export_%s_part_%d.json", stamp, part),
			Content:  content,
		})
	}
	return chunks, nil
}

func formatDates(dates []model.DateSpan) string {
	parts := make([]string, 0, len(dates))
	for _, d := range dates {
		s := d.Date
		if d.StartTime != "" {
			s += " " + d.StartTime
		}
		if d.EndDate != "" {
			s += " to " + d.EndDate
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "; ")
}
