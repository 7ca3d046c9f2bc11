// Package resolver escalates ambiguous pair decisions to an AI judge.
// Judgments are content-cached, cost-logged, and confidence-gated: the
// model only ever overrides a decision it is sure about, everything else
// stays ambiguous for the review queue.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/regiodata/event-dedup/internal/config"
	"github.com/regiodata/event-dedup/internal/cost"
	"github.com/regiodata/event-dedup/internal/match"
	"github.com/regiodata/event-dedup/internal/model"
	"github.com/regiodata/event-dedup/pkg/anthropic"
)

// Store is the persistence surface the resolver needs: judgment cache and
// usage accounting.
type Store interface {
	// GetAIMatchCache returns the cached entry for a pair hash, or nil on miss.
	GetAIMatchCache(ctx context.Context, pairHash string) (*model.MatchCacheEntry, error)
	// PutAIMatchCache inserts a cache entry, tolerating concurrent inserts
	// of the same hash.
	PutAIMatchCache(ctx context.Context, entry model.MatchCacheEntry) error
	LogAIUsage(ctx context.Context, entry model.UsageLogEntry) error
	BatchUsageSummary(ctx context.Context, batchID string) (*model.UsageSummary, error)
}

// judgment is the JSON shape the model must answer with.
type judgment struct {
	Decision   string  `json:"decision"` // "same" or "different"
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Resolver resolves ambiguous pairs via the Anthropic API.
type Resolver struct {
	client  anthropic.Client
	store   Store
	calc    *cost.Calculator
	cfg     config.AIConfig
	limiter *rate.Limiter
}

// New builds a Resolver. The rate limiter spans both direct calls and
// batch polling submissions.
func New(client anthropic.Client, store Store, calc *cost.Calculator, cfg config.AIConfig) *Resolver {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &Resolver{
		client:  client,
		store:   store,
		calc:    calc,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Resolve re-decides the ambiguous pairs of a scoring result whose combined
// score falls inside the configured band. Pairs outside the band, cacheable
// judgments, and per-pair failures all leave the original decision intact;
// only the counts and the touched decisions change in the returned result.
func (r *Resolver) Resolve(ctx context.Context, result match.Result, events []model.SourceEvent) (match.Result, error) {
	byID := make(map[string]*model.SourceEvent, len(events))
	for i := range events {
		byID[events[i].ID] = &events[i]
	}

	var eligible []int
	for i, d := range result.Decisions {
		if d.Decision != model.DecisionAmbiguous {
			continue
		}
		if d.Combined < r.cfg.MinCombinedScore || d.Combined > r.cfg.MaxCombinedScore {
			continue
		}
		eligible = append(eligible, i)
	}
	if len(eligible) == 0 {
		zap.L().Info("ai resolver skipped", zap.String("reason", "no eligible ambiguous pairs"))
		return result, nil
	}

	// The caller keeps its pre-resolution decisions; all writes below go to
	// a copy of the slice.
	result.Decisions = append([]model.MatchDecision(nil), result.Decisions...)

	batchID := uuid.NewString()[:8]
	log := zap.L().With(zap.String("batch_id", batchID), zap.Int("eligible", len(eligible)))
	log.Info("ai resolver start")

	// Cache pass first, so the call count reflects actual work.
	var uncached []int
	for _, idx := range eligible {
		d := result.Decisions[idx]
		a, b := byID[d.EventA], byID[d.EventB]
		if a == nil || b == nil {
			continue
		}
		if !r.cfg.CacheEnabled {
			uncached = append(uncached, idx)
			continue
		}

		hash := PairHash(a, b)
		cached, err := r.store.GetAIMatchCache(ctx, hash)
		if err != nil {
			return result, eris.Wrap(err, "resolver: cache lookup")
		}
		if cached == nil || cached.Model != r.cfg.Model {
			uncached = append(uncached, idx)
			continue
		}

		r.logUsage(ctx, batchID, d, anthropic.TokenUsage{}, true, false)
		result.Decisions[idx] = r.apply(d, judgment{
			Decision:   cached.Decision,
			Confidence: cached.Confidence,
			Reasoning:  cached.Reasoning,
		})
	}

	var err error
	if r.cfg.BatchThreshold > 0 && len(uncached) > r.cfg.BatchThreshold {
		err = r.resolveBatch(ctx, &result, uncached, byID, batchID)
	} else {
		err = r.resolveDirect(ctx, &result, uncached, byID, batchID)
	}
	if err != nil {
		return result, err
	}

	result.Recount()

	if summary, sumErr := r.store.BatchUsageSummary(ctx, batchID); sumErr == nil {
		log.Info("ai resolver complete",
			zap.Int("remaining_ambiguous", result.AmbiguousCount),
			zap.Int("api_calls", summary.APIRequests),
			zap.Int("cache_hits", summary.CachedRequests),
			zap.Int64("total_tokens", summary.TotalTokens),
			zap.Float64("estimated_cost_usd", summary.EstimatedCostUSD),
		)
	} else {
		log.Info("ai resolver complete", zap.Int("remaining_ambiguous", result.AmbiguousCount))
	}

	return result, nil
}

// resolveDirect calls the Messages API concurrently, bounded by the
// configured concurrency and rate limit. A failed call logs and keeps the
// pair ambiguous; it never fails the group.
func (r *Resolver) resolveDirect(ctx context.Context, result *match.Result, indices []int, byID map[string]*model.SourceEvent, batchID string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxConcurrent)

	var mu sync.Mutex
	for _, idx := range indices {
		g.Go(func() error {
			d := result.Decisions[idx]
			a, b := byID[d.EventA], byID[d.EventB]
			if a == nil || b == nil {
				return nil
			}

			if err := r.limiter.Wait(ctx); err != nil {
				return eris.Wrap(err, "resolver: rate limit wait")
			}

			resp, err := r.client.CreateMessage(ctx, r.buildRequest(a, b, d))
			if err != nil {
				zap.L().Warn("ai call failed, pair stays ambiguous",
					zap.String("pair", d.EventA+":"+d.EventB),
					zap.Error(err),
				)
				r.logUsage(ctx, batchID, d, anthropic.TokenUsage{}, false, false)
				return nil
			}

			updated := r.handleResponse(ctx, d, a, b, resp, batchID, false)
			mu.Lock()
			result.Decisions[idx] = updated
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// resolveBatch submits all uncached pairs through the Message Batches API
// and polls until completion. Items missing from the results (errored,
// expired) keep their original decision.
func (r *Resolver) resolveBatch(ctx context.Context, result *match.Result, indices []int, byID map[string]*model.SourceEvent, batchID string) error {
	req := anthropic.BatchRequest{Requests: make([]anthropic.BatchRequestItem, 0, len(indices))}
	byCustomID := make(map[string]int, len(indices))

	for _, idx := range indices {
		d := result.Decisions[idx]
		a, b := byID[d.EventA], byID[d.EventB]
		if a == nil || b == nil {
			continue
		}
		customID := fmt.Sprintf("pair-%d", idx)
		byCustomID[customID] = idx
		req.Requests = append(req.Requests, anthropic.BatchRequestItem{
			CustomID: customID,
			Params:   r.buildRequest(a, b, d),
		})
	}
	if len(req.Requests) == 0 {
		return nil
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "resolver: rate limit wait")
	}
	batch, err := r.client.CreateBatch(ctx, req)
	if err != nil {
		return eris.Wrap(err, "resolver: create batch")
	}
	zap.L().Info("ai batch submitted",
		zap.String("anthropic_batch_id", batch.ID),
		zap.Int("requests", len(req.Requests)),
	)

	if _, err := anthropic.PollBatch(ctx, r.client, batch.ID); err != nil {
		return eris.Wrap(err, "resolver: poll batch")
	}
	iter, err := r.client.GetBatchResults(ctx, batch.ID)
	if err != nil {
		return eris.Wrap(err, "resolver: fetch batch results")
	}
	succeeded, _, err := anthropic.CollectBatchResults(iter)
	if err != nil {
		return err
	}

	for customID, resp := range succeeded {
		idx, ok := byCustomID[customID]
		if !ok {
			continue
		}
		d := result.Decisions[idx]
		a, b := byID[d.EventA], byID[d.EventB]
		result.Decisions[idx] = r.handleResponse(ctx, d, a, b, resp, batchID, true)
	}
	return nil
}

func (r *Resolver) buildRequest(a, b *model.SourceEvent, d model.MatchDecision) anthropic.MessageRequest {
	temp := r.cfg.Temperature
	return anthropic.MessageRequest{
		Model:       r.cfg.Model,
		MaxTokens:   r.cfg.MaxOutputTokens,
		System:      anthropic.CachedSystem(systemPrompt),
		Messages:    []anthropic.Message{{Role: "user", Content: formatPair(a, b, d)}},
		Temperature: &temp,
	}
}

// handleResponse parses, cost-logs, caches, and applies one model answer.
// An unparseable answer keeps the pair ambiguous with the unexpected tier.
func (r *Resolver) handleResponse(ctx context.Context, d model.MatchDecision, a, b *model.SourceEvent, resp *anthropic.MessageResponse, batchID string, isBatch bool) model.MatchDecision {
	r.logUsage(ctx, batchID, d, resp.Usage, false, isBatch)

	j, err := parseJudgment(resp.FirstText())
	if err != nil {
		zap.L().Warn("unparseable ai judgment",
			zap.String("pair", d.EventA+":"+d.EventB),
			zap.Error(err),
		)
		return d.WithDecision(model.DecisionAmbiguous, model.TierAIUnexpected)
	}

	if r.cfg.CacheEnabled && a != nil && b != nil {
		entry := model.MatchCacheEntry{
			PairHash:   PairHash(a, b),
			EventA:     d.EventA,
			EventB:     d.EventB,
			Decision:   j.Decision,
			Confidence: j.Confidence,
			Reasoning:  j.Reasoning,
			Model:      r.cfg.Model,
		}
		if err := r.store.PutAIMatchCache(ctx, entry); err != nil {
			zap.L().Warn("ai cache store failed", zap.Error(err))
		}
	}

	return r.apply(d, j)
}

// apply maps a judgment onto a decision with confidence gating.
func (r *Resolver) apply(d model.MatchDecision, j judgment) model.MatchDecision {
	if j.Confidence < r.cfg.ConfidenceThreshold {
		return d.WithDecision(model.DecisionAmbiguous, model.TierAILowConfidence)
	}
	switch j.Decision {
	case "same":
		return d.WithDecision(model.DecisionMatch, model.TierAI)
	case "different":
		return d.WithDecision(model.DecisionNoMatch, model.TierAI)
	default:
		return d.WithDecision(model.DecisionAmbiguous, model.TierAIUnexpected)
	}
}

func (r *Resolver) logUsage(ctx context.Context, batchID string, d model.MatchDecision, usage anthropic.TokenUsage, cached, isBatch bool) {
	costUSD := 0.0
	if !cached {
		// Every request goes out with a prompt-cache breakpoint on the
		// system block; cache writes bill above the input rate and cache
		// reads below it, so they are priced separately from plain input.
		costUSD = r.calc.EstimateCached(r.cfg.Model, isBatch,
			int(usage.InputTokens), int(usage.OutputTokens),
			int(usage.CacheCreationInputTokens), int(usage.CacheReadInputTokens))
	}
	entry := model.UsageLogEntry{
		BatchID:          batchID,
		EventA:           d.EventA,
		EventB:           d.EventB,
		Model:            r.cfg.Model,
		PromptTokens:     usage.InputTokens,
		CompletionTokens: usage.OutputTokens,
		CacheWriteTokens: usage.CacheCreationInputTokens,
		CacheReadTokens:  usage.CacheReadInputTokens,
		TotalTokens: usage.InputTokens + usage.OutputTokens +
			usage.CacheCreationInputTokens + usage.CacheReadInputTokens,
		EstimatedCostUSD: costUSD,
		Cached:           cached,
	}
	if err := r.store.LogAIUsage(ctx, entry); err != nil {
		zap.L().Warn("usage log write failed", zap.Error(err))
	}
}

// parseJudgment decodes the model's JSON answer, tolerating markdown code
// fences around the object.
func parseJudgment(text string) (judgment, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
	}

	var j judgment
	if err := json.Unmarshal([]byte(text), &j); err != nil {
		return judgment{}, eris.Wrap(err, "resolver: parse judgment")
	}
	if j.Decision == "" {
		return judgment{}, eris.New("resolver: judgment missing decision")
	}
	return j, nil
}
