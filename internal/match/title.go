package match

import (
	"github.com/regiodata/event-dedup/internal/config"
	"github.com/regiodata/event-dedup/internal/model"
	"github.com/regiodata/event-dedup/internal/normalize"
)

// TitleScore computes title similarity using the normalized titles. The
// token-sort ratio is primary; only inside the ambiguous blend band is the
// token-set ratio mixed in. Pairs from different source kinds use the
// cross-source-type override when configured, since headline-style and
// listing-style titles diverge systematically.
func TitleScore(a, b *model.SourceEvent, cfg config.TitleConfig) float64 {
	titleA := normalizedTitle(a)
	titleB := normalizedTitle(b)
	if titleA == "" || titleB == "" {
		return 0
	}

	if a.SourceType != b.SourceType && cfg.CrossSourceType != nil {
		cfg = *cfg.CrossSourceType
	}

	primary := TokenSortRatio(titleA, titleB)
	if primary >= cfg.BlendLower && primary <= cfg.BlendUpper {
		secondary := TokenSetRatio(titleA, titleB)
		return cfg.PrimaryWeight*primary + cfg.SecondaryWeight*secondary
	}
	return primary
}

func normalizedTitle(e *model.SourceEvent) string {
	if e.TitleNormalized != "" {
		return e.TitleNormalized
	}
	return normalize.Text(e.Title)
}

// DescriptionScore computes description similarity with explicit fallbacks:
// both sides empty is neutral (0.5, no information either way), one side
// empty is mildly suspicious (0.4), otherwise the token-sort ratio of the
// normalized texts.
func DescriptionScore(a, b *model.SourceEvent) float64 {
	descA := a.BestDescription()
	descB := b.BestDescription()

	switch {
	case descA == "" && descB == "":
		return 0.5
	case descA == "" || descB == "":
		return 0.4
	default:
		return TokenSortRatio(normalize.Text(descA), normalize.Text(descB))
	}
}
