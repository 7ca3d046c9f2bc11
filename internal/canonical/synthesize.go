// Package canonical builds merged canonical events from clusters of source
// events. Field selection is strategy-driven and every field records its
// provenance: which source record (or the union of all of them) supplied
// the value. All functions here are pure, persistence lives in store.
package canonical

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/regiodata/event-dedup/internal/config"
	"github.com/regiodata/event-dedup/internal/model"
)

// Synthesize merges one cluster of source events into a canonical event.
// At least one event is required. Field strategies:
//
//	title                         longest value of at least MinTitleLength
//	                              characters, falling back to the longest
//	short_description, description longest non-empty
//	highlights, categories        order-preserving union
//	location_name/district/street/zipcode  longest non-empty
//	location_city                 most frequent, first occurrence on ties
//	geo                           highest-confidence complete coordinate set
//	dates                         union deduplicated by full span key
//	booleans                      true if any source says true
func Synthesize(events []model.SourceEvent, cfg config.CanonicalConfig) (model.CanonicalEvent, error) {
	if len(events) == 0 {
		return model.CanonicalEvent{}, eris.New("canonical: cannot synthesize from zero source events")
	}

	prov := make(map[string]model.Provenance)
	var out model.CanonicalEvent

	title, titleSrc := selectLongestTitle(events, cfg.MinTitleLength)
	out.Title = title
	prov["title"] = model.FromEvent(titleSrc)

	out.ShortDescription, prov["short_description"] = selectLongest(events, func(e *model.SourceEvent) string { return e.ShortDescription })
	out.Description, prov["description"] = selectLongest(events, func(e *model.SourceEvent) string { return e.Description })

	out.Highlights = unionStrings(events, func(e *model.SourceEvent) []string { return e.Highlights })
	prov["highlights"] = model.FromUnion()

	out.LocationName, prov["location_name"] = selectLongest(events, func(e *model.SourceEvent) string { return e.LocationName })
	out.LocationDistrict, prov["location_district"] = selectLongest(events, func(e *model.SourceEvent) string { return e.LocationDistrict })
	out.LocationStreet, prov["location_street"] = selectLongest(events, func(e *model.SourceEvent) string { return e.LocationStreet })
	out.LocationZipcode, prov["location_zipcode"] = selectLongest(events, func(e *model.SourceEvent) string { return e.LocationZipcode })

	out.LocationCity, prov["location_city"] = selectMostFrequent(events, func(e *model.SourceEvent) string { return e.LocationCity })

	geoSrc := selectBestGeo(events)
	if geoSrc != nil {
		out.GeoLatitude = geoSrc.GeoLatitude
		out.GeoLongitude = geoSrc.GeoLongitude
		out.GeoConfidence = geoSrc.GeoConfidence
		prov["geo"] = model.FromEvent(geoSrc.ID)
	} else {
		prov["geo"] = model.FromEvent(events[0].ID)
	}

	out.Dates = unionDates(events)
	prov["dates"] = model.FromUnion()

	out.Categories = unionStrings(events, func(e *model.SourceEvent) []string { return e.Categories })
	prov["categories"] = model.FromUnion()

	out.IsFamilyEvent, prov["is_family_event"] = anyTrue(events, func(e *model.SourceEvent) bool { return e.IsFamilyEvent })
	out.IsChildEvent, prov["is_child_focused"] = anyTrue(events, func(e *model.SourceEvent) bool { return e.IsChildEvent })
	out.AdmissionFree, prov["admission_free"] = anyTrue(events, func(e *model.SourceEvent) bool { return e.AdmissionFree })

	ids := make([]string, len(events))
	for i := range events {
		ids[i] = events[i].ID
	}
	sort.Strings(ids)

	out.SourceEventIDs = ids
	out.FieldProvenance = prov
	out.SourceCount = len(events)
	out.Version = 1

	return out, nil
}

// textFields are subject to downgrade prevention on enrichment: once a
// canonical carries a longer value, a re-synthesis never shortens it.
var textFields = []string{"title", "short_description", "description"}

// Enrich re-synthesizes a canonical from the full source set (old and new
// contributors) while preventing text-field downgrades and bumping the
// version.
func Enrich(existing model.CanonicalEvent, allSources []model.SourceEvent, cfg config.CanonicalConfig) (model.CanonicalEvent, error) {
	merged, err := Synthesize(allSources, cfg)
	if err != nil {
		return model.CanonicalEvent{}, eris.Wrap(err, "canonical: enrich")
	}

	for _, field := range textFields {
		existingVal := textField(&existing, field)
		if len(existingVal) > len(textField(&merged, field)) {
			setTextField(&merged, field, existingVal)
			merged.FieldProvenance[field] = existing.FieldProvenance[field]
		}
	}

	merged.ID = existing.ID
	merged.Version = existing.Version + 1
	merged.CreatedAt = existing.CreatedAt
	merged.SourceCount = len(allSources)

	return merged, nil
}

func textField(c *model.CanonicalEvent, field string) string {
	switch field {
	case "title":
		return c.Title
	case "short_description":
		return c.ShortDescription
	default:
		return c.Description
	}
}

func setTextField(c *model.CanonicalEvent, field, val string) {
	switch field {
	case "title":
		c.Title = val
	case "short_description":
		c.ShortDescription = val
	default:
		c.Description = val
	}
}
