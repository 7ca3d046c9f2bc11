package model

import (
	"encoding/json"
	"time"
)

// UnionOfAll is the provenance marker for fields built from every source
// record (unions of lists/dates) rather than a single contributor.
const unionOfAll = "union_all_sources"

// Provenance identifies which source record contributed a canonical field:
// either a single record id or the union-of-all-sources marker. The zero
// value means "unknown".
type Provenance struct {
	EventID string
	Union   bool
}

// FromEvent returns provenance pointing at a single source record.
func FromEvent(id string) Provenance { return Provenance{EventID: id} }

// FromUnion returns the union-of-all-sources provenance.
func FromUnion() Provenance { return Provenance{Union: true} }

// MarshalJSON encodes union provenance as the sentinel string and record
// provenance as the bare id, matching the stored representation.
func (p Provenance) MarshalJSON() ([]byte, error) {
	if p.Union {
		return json.Marshal(unionOfAll)
	}
	return json.Marshal(p.EventID)
}

// UnmarshalJSON decodes the stored string form.
func (p *Provenance) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == unionOfAll {
		*p = Provenance{Union: true}
	} else {
		*p = Provenance{EventID: s}
	}
	return nil
}

// CanonicalEvent is the synthesized merge of one cluster of source events.
type CanonicalEvent struct {
	ID string `json:"id,omitempty"`

	Title            string   `json:"title"`
	ShortDescription string   `json:"short_description,omitempty"`
	Description      string   `json:"description,omitempty"`
	Highlights       []string `json:"highlights,omitempty"`

	LocationName     string `json:"location_name,omitempty"`
	LocationCity     string `json:"location_city,omitempty"`
	LocationDistrict string `json:"location_district,omitempty"`
	LocationStreet   string `json:"location_street,omitempty"`
	LocationZipcode  string `json:"location_zipcode,omitempty"`

	GeoLatitude   *float64 `json:"geo_latitude,omitempty"`
	GeoLongitude  *float64 `json:"geo_longitude,omitempty"`
	GeoConfidence *float64 `json:"geo_confidence,omitempty"`

	Categories    []string   `json:"categories,omitempty"`
	IsFamilyEvent bool       `json:"is_family_event"`
	IsChildEvent  bool       `json:"is_child_focused"`
	AdmissionFree bool       `json:"admission_free"`
	Dates         []DateSpan `json:"dates"`

	// Merge metadata.
	SourceEventIDs  []string              `json:"source_event_ids"`
	FieldProvenance map[string]Provenance `json:"field_provenance"`
	SourceCount     int                   `json:"source_count"`

	// MatchConfidence is the mean combined score of the cluster's internal
	// match edges; nil for singletons.
	MatchConfidence *float64 `json:"match_confidence,omitempty"`
	NeedsReview     bool     `json:"needs_review"`
	AIAssisted      bool     `json:"ai_assisted"`
	Version         int      `json:"version"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}
