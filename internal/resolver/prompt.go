package resolver

import (
	"fmt"
	"strings"

	"github.com/regiodata/event-dedup/internal/model"
)

const systemPrompt = `You are an expert event deduplication system analyzing German regional events.

Your task: determine whether two event records describe the SAME real-world event
(same gathering, same place, same time) or DIFFERENT events.

Key considerations:
- German compound words and regional dialects may describe the same thing differently
  (e.g., Fasnet/Fasching/Fastnacht/Karneval are all carnival)
- Source types differ: "artikel" (newspaper articles) have journalistic headlines,
  "terminliste" (event listings) have formal event names
- Same event may have slightly different dates if one source lists a multi-day range
- Location names may vary (abbreviations, spelling differences, missing street details)
- Description length/style varies by source -- focus on factual overlap, not style
- Events at the same venue on the same day may still be DIFFERENT events (check titles carefully)

Respond with ONLY a JSON object: {"decision": "same"|"different", "confidence": 0.0-1.0, "reasoning": "brief explanation"}`

const (
	maxPromptDescription = 500
	maxPromptDates       = 5
)

// formatPair renders the user message for one ambiguous pair, including the
// deterministic signal context so the model knows why the pair is here.
func formatPair(a, b *model.SourceEvent, d model.MatchDecision) string {
	var sb strings.Builder
	sb.WriteString("Compare these two events:\n\n")
	writeEvent(&sb, "A", a)
	sb.WriteString("\n")
	writeEvent(&sb, "B", b)

	fmt.Fprintf(&sb, `
## Deterministic Scoring Context
Combined score: %.2f (weighted average of signals below)
- Date similarity: %.2f
- Geo proximity: %.2f
- Title similarity: %.2f
- Description similarity: %.2f

These scores placed this pair in the "ambiguous" zone (between auto-match and auto-reject thresholds).

Are these the SAME real-world event or DIFFERENT events?`,
		d.Combined, d.Signals.Date, d.Signals.Geo, d.Signals.Title, d.Signals.Description)

	return sb.String()
}

func writeEvent(sb *strings.Builder, label string, e *model.SourceEvent) {
	fmt.Fprintf(sb, "## Event %s (ID: %s, Source: %s, Type: %s)\n", label, e.ID, e.SourceCode, e.SourceType)
	fmt.Fprintf(sb, "Title: %s\n", orNA(e.Title))
	fmt.Fprintf(sb, "Description: %s\n", truncate(orNA(e.BestDescription()), maxPromptDescription))
	fmt.Fprintf(sb, "Location: %s, %s\n", e.LocationName, e.LocationCity)
	fmt.Fprintf(sb, "Dates: %s\n", formatDates(e.Dates))
	fmt.Fprintf(sb, "Categories: %s\n", strings.Join(e.Categories, ", "))
}

func formatDates(dates []model.DateSpan) string {
	if len(dates) == 0 {
		return "N/A"
	}
	if len(dates) > maxPromptDates {
		dates = dates[:maxPromptDates]
	}
	parts := make([]string, 0, len(dates))
	for _, d := range dates {
		s := d.Date
		if s == "" {
			s = "?"
		}
		if d.StartTime != "" {
			s += " " + d.StartTime
		}
		if d.EndTime != "" {
			s += "-" + d.EndTime
		}
		if d.EndDate != "" {
			s += " to " + d.EndDate
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "; ")
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
