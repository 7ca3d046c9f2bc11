package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/regiodata/event-dedup/internal/model"
)

func hashEvent(id, title string) model.SourceEvent {
	return model.SourceEvent{
		ID:           id,
		Title:        title,
		LocationCity: "Freiburg",
		Dates:        []model.DateSpan{{Date: "2026-12-01"}},
	}
}

func TestPairHash_Symmetric(t *testing.T) {
	a := hashEvent("e1", "Weihnachtsmarkt")
	b := hashEvent("e2", "Christkindlmarkt")

	assert.Equal(t, PairHash(&a, &b), PairHash(&b, &a))
}

func TestPairHash_ContentAddressed(t *testing.T) {
	// Re-ingested records get new ids but identical content; the hash must
	// survive so cached judgments are reused.
	a1 := hashEvent("run1-a", "Weihnachtsmarkt")
	b1 := hashEvent("run1-b", "Christkindlmarkt")
	a2 := hashEvent("run2-a", "Weihnachtsmarkt")
	b2 := hashEvent("run2-b", "Christkindlmarkt")

	assert.Equal(t, PairHash(&a1, &b1), PairHash(&a2, &b2))
}

func TestPairHash_ContentSensitive(t *testing.T) {
	a := hashEvent("e1", "Weihnachtsmarkt")
	b := hashEvent("e2", "Christkindlmarkt")
	c := hashEvent("e2", "Christkindlesmarkt")

	assert.NotEqual(t, PairHash(&a, &b), PairHash(&a, &c))
}

func TestPairHash_CategoryOrderInsensitive(t *testing.T) {
	a := hashEvent("e1", "Fest")
	b1 := hashEvent("e2", "Fest")
	b1.Categories = []string{"musik", "familie"}
	b2 := hashEvent("e2", "Fest")
	b2.Categories = []string{"familie", "musik"}

	assert.Equal(t, PairHash(&a, &b1), PairHash(&a, &b2))
}

func TestPairHash_DateOrderInsensitive(t *testing.T) {
	a := hashEvent("e1", "Fest")
	b1 := hashEvent("e2", "Fest")
	b1.Dates = []model.DateSpan{{Date: "2026-05-02"}, {Date: "2026-05-01"}}
	b2 := hashEvent("e2", "Fest")
	b2.Dates = []model.DateSpan{{Date: "2026-05-01"}, {Date: "2026-05-02"}}

	assert.Equal(t, PairHash(&a, &b1), PairHash(&a, &b2))
}

func TestParseJudgment_Plain(t *testing.T) {
	j, err := parseJudgment(`{"decision": "same", "confidence": 0.85, "reasoning": "ok"}`)
	assert.NoError(t, err)
	assert.Equal(t, "same", j.Decision)
	assert.Equal(t, 0.85, j.Confidence)
}

func TestParseJudgment_MarkdownFenced(t *testing.T) {
	j, err := parseJudgment("```json\n{\"decision\": \"different\", \"confidence\": 0.7}\n```")
	assert.NoError(t, err)
	assert.Equal(t, "different", j.Decision)
}

func TestParseJudgment_BareFence(t *testing.T) {
	j, err := parseJudgment("```\n{\"decision\": \"same\", \"confidence\": 0.9}\n```")
	assert.NoError(t, err)
	assert.Equal(t, "same", j.Decision)
}

func TestParseJudgment_Garbage(t *testing.T) {
	_, err := parseJudgment("probably the same event")
	assert.Error(t, err)
}

func TestParseJudgment_MissingDecision(t *testing.T) {
	_, err := parseJudgment(`{"confidence": 0.9}`)
	assert.Error(t, err)
}
