package resolver

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/regiodata/event-dedup/internal/model"
)

// hashFields are the matching-relevant fields of one event, in stable key
// order. Changing anything here invalidates every cached judgment, so add
// fields deliberately.
type hashFields struct {
	Categories       []string `json:"categories"`
	Dates            []string `json:"dates"`
	Description      string   `json:"description"`
	LocationCity     string   `json:"location_city"`
	LocationName     string   `json:"location_name"`
	ShortDescription string   `json:"short_description"`
	Title            string   `json:"title"`
}

func extractHashFields(e *model.SourceEvent) hashFields {
	dates := make([]string, 0, len(e.Dates))
	for _, d := range e.Dates {
		dates = append(dates, d.Date)
	}
	sort.Strings(dates)

	cats := append([]string(nil), e.Categories...)
	sort.Strings(cats)
	if cats == nil {
		cats = []string{}
	}

	return hashFields{
		Categories:       cats,
		Dates:            dates,
		Description:      e.Description,
		LocationCity:     e.LocationCity,
		LocationName:     e.LocationName,
		ShortDescription: e.ShortDescription,
		Title:            e.Title,
	}
}

// PairHash computes the deterministic SHA-256 content hash of an event
// pair. Events are taken in canonical id order, so the hash is symmetric;
// only matching-relevant content participates, so re-ingesting identical
// records reuses the cached judgment.
func PairHash(a, b *model.SourceEvent) string {
	if a.ID > b.ID {
		a, b = b, a
	}
	content, _ := json.Marshal([]hashFields{extractHashFields(a), extractHashFields(b)})
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
