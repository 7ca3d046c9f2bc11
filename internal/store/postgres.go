package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/regiodata/event-dedup/internal/db"
	"github.com/regiodata/event-dedup/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS source_events (
	id          TEXT PRIMARY KEY,
	source_code TEXT NOT NULL,
	source_type TEXT NOT NULL,
	data        JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS canonical_events (
	id           TEXT PRIMARY KEY,
	data         JSONB NOT NULL,
	needs_review BOOLEAN NOT NULL DEFAULT false,
	version      INTEGER NOT NULL DEFAULT 1,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS match_decisions (
	event_id_a     TEXT NOT NULL,
	event_id_b     TEXT NOT NULL,
	combined_score DOUBLE PRECISION NOT NULL,
	decision       TEXT NOT NULL,
	tier           TEXT NOT NULL,
	signals        JSONB NOT NULL,
	PRIMARY KEY (event_id_a, event_id_b)
);

CREATE TABLE IF NOT EXISTS ai_match_cache (
	pair_hash  TEXT PRIMARY KEY,
	event_id_a TEXT NOT NULL,
	event_id_b TEXT NOT NULL,
	decision   TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	reasoning  TEXT,
	model      TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ai_usage_log (
	id                 BIGSERIAL PRIMARY KEY,
	batch_id           TEXT NOT NULL,
	event_id_a         TEXT NOT NULL,
	event_id_b         TEXT NOT NULL,
	model              TEXT NOT NULL,
	prompt_tokens      BIGINT NOT NULL DEFAULT 0,
	completion_tokens  BIGINT NOT NULL DEFAULT 0,
	cache_write_tokens BIGINT NOT NULL DEFAULT 0,
	cache_read_tokens  BIGINT NOT NULL DEFAULT 0,
	total_tokens       BIGINT NOT NULL DEFAULT 0,
	estimated_cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	cached             BOOLEAN NOT NULL DEFAULT false,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_source_events_source ON source_events(source_code);
CREATE INDEX IF NOT EXISTS idx_canonical_needs_review ON canonical_events(needs_review);
CREATE INDEX IF NOT EXISTS idx_usage_batch ON ai_usage_log(batch_id);
CREATE INDEX IF NOT EXISTS idx_usage_created ON ai_usage_log(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.closeFn()
	return nil
}

// copyFromThreshold is the import size at which UpsertSourceEvents tries
// the COPY protocol instead of row-by-row upserts.
const copyFromThreshold = 100

func (s *PostgresStore) UpsertSourceEvents(ctx context.Context, events []model.SourceEvent) (int, error) {
	for i := range events {
		if events[i].ID == "" {
			events[i].ID = uuid.New().String()
		}
	}

	// COPY cannot resolve conflicts, so large imports take it only when
	// none of the ids exist yet (the common case for a fresh drop).
	if len(events) >= copyFromThreshold {
		ids := make([]string, len(events))
		for i := range events {
			ids[i] = events[i].ID
		}
		var existing int
		err := s.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM source_events WHERE id = ANY($1)`, ids,
		).Scan(&existing)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: check existing events")
		}
		if existing == 0 {
			return s.copySourceEvents(ctx, events)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin upsert")
	}
	defer tx.Rollback(ctx)

	count := 0
	for i := range events {
		e := &events[i]
		data, err := json.Marshal(e)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal event %s", e.ID)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO source_events (id, source_code, source_type, data)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE SET
			   source_code = EXCLUDED.source_code,
			   source_type = EXCLUDED.source_type,
			   data = EXCLUDED.data`,
			e.ID, e.SourceCode, string(e.SourceType), data,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: upsert event %s", e.ID)
		}
		count++
	}

	return count, eris.Wrap(tx.Commit(ctx), "postgres: commit upsert")
}

// copySourceEvents bulk-inserts conflict-free events over the COPY
// protocol; created_at falls back to the column default.
func (s *PostgresStore) copySourceEvents(ctx context.Context, events []model.SourceEvent) (int, error) {
	rows := make([][]any, len(events))
	for i := range events {
		e := &events[i]
		data, err := json.Marshal(e)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal event %s", e.ID)
		}
		rows[i] = []any{e.ID, e.SourceCode, string(e.SourceType), data}
	}

	n, err := db.CopyFrom(ctx, s.pool, "source_events",
		[]string{"id", "source_code", "source_type", "data"}, rows)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *PostgresStore) ListSourceEvents(ctx context.Context) ([]model.SourceEvent, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM source_events ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list source events")
	}
	defer rows.Close()

	var events []model.SourceEvent
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source event")
		}
		var e model.SourceEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal source event")
		}
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list source events iterate")
}

func (s *PostgresStore) GetSourceEvent(ctx context.Context, id string) (*model.SourceEvent, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM source_events WHERE id = $1`, id,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get source event %s", id)
	}
	var e model.SourceEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal source event")
	}
	return &e, nil
}

func (s *PostgresStore) ListCanonicalEvents(ctx context.Context) ([]model.CanonicalEvent, error) {
	return s.queryCanonical(ctx, `SELECT data FROM canonical_events ORDER BY id`)
}

func (s *PostgresStore) GetCanonicalEvent(ctx context.Context, id string) (*model.CanonicalEvent, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM canonical_events WHERE id = $1`, id,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get canonical %s", id)
	}
	var c model.CanonicalEvent
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal canonical")
	}
	return &c, nil
}

func (s *PostgresStore) ReplaceCanonical(ctx context.Context, canonicals []model.CanonicalEvent, decisions []model.MatchDecision) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM canonical_events`); err != nil {
		return eris.Wrap(err, "postgres: clear canonicals")
	}
	if _, err := tx.Exec(ctx, `DELETE FROM match_decisions`); err != nil {
		return eris.Wrap(err, "postgres: clear decisions")
	}

	now := time.Now().UTC()
	for i := range canonicals {
		c := &canonicals[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
		data, err := json.Marshal(c)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal canonical %s", c.ID)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO canonical_events (id, data, needs_review, version, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, data, c.NeedsReview, c.Version, c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert canonical %s", c.ID)
		}
	}

	for _, d := range decisions {
		signals, err := json.Marshal(d.Signals)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal signals")
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO match_decisions (event_id_a, event_id_b, combined_score, decision, tier, signals)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			d.EventA, d.EventB, d.Combined, string(d.Decision), string(d.Tier), signals,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert decision %s:%s", d.EventA, d.EventB)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace")
}

func (s *PostgresStore) SetCanonicalReview(ctx context.Context, id string, needsReview bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE canonical_events SET
		   needs_review = $1,
		   data = jsonb_set(data, '{needs_review}', to_jsonb($1::boolean)),
		   updated_at = now()
		 WHERE id = $2`,
		needsReview, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set review %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("canonical event not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) ListReviewQueue(ctx context.Context, filter ReviewFilter) ([]model.CanonicalEvent, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	return s.queryCanonical(ctx,
		`SELECT data FROM canonical_events WHERE needs_review ORDER BY updated_at DESC LIMIT $1 OFFSET $2`,
		limit, filter.Offset,
	)
}

func (s *PostgresStore) ListMatchDecisions(ctx context.Context) ([]model.MatchDecision, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT event_id_a, event_id_b, combined_score, decision, tier, signals
		 FROM match_decisions ORDER BY event_id_a, event_id_b`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list decisions")
	}
	defer rows.Close()

	var decisions []model.MatchDecision
	for rows.Next() {
		var d model.MatchDecision
		var signals []byte
		if err := rows.Scan(&d.EventA, &d.EventB, &d.Combined, &d.Decision, &d.Tier, &signals); err != nil {
			return nil, eris.Wrap(err, "postgres: scan decision")
		}
		if err := json.Unmarshal(signals, &d.Signals); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal signals")
		}
		decisions = append(decisions, d)
	}
	return decisions, eris.Wrap(rows.Err(), "postgres: list decisions iterate")
}

func (s *PostgresStore) GetAIMatchCache(ctx context.Context, pairHash string) (*model.MatchCacheEntry, error) {
	var entry model.MatchCacheEntry
	var reasoning *string
	err := s.pool.QueryRow(ctx,
		`SELECT pair_hash, event_id_a, event_id_b, decision, confidence, reasoning, model, created_at
		 FROM ai_match_cache WHERE pair_hash = $1`, pairHash,
	).Scan(&entry.PairHash, &entry.EventA, &entry.EventB, &entry.Decision,
		&entry.Confidence, &reasoning, &entry.Model, &entry.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get ai cache")
	}
	if reasoning != nil {
		entry.Reasoning = *reasoning
	}
	return &entry, nil
}

func (s *PostgresStore) PutAIMatchCache(ctx context.Context, entry model.MatchCacheEntry) error {
	// Concurrent workers may race on the same pair hash; first write wins.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ai_match_cache (pair_hash, event_id_a, event_id_b, decision, confidence, reasoning, model)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (pair_hash) DO NOTHING`,
		entry.PairHash, entry.EventA, entry.EventB, entry.Decision,
		entry.Confidence, entry.Reasoning, entry.Model,
	)
	return eris.Wrap(err, "postgres: put ai cache")
}

func (s *PostgresStore) LogAIUsage(ctx context.Context, entry model.UsageLogEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ai_usage_log
		   (batch_id, event_id_a, event_id_b, model, prompt_tokens, completion_tokens, cache_write_tokens, cache_read_tokens, total_tokens, estimated_cost_usd, cached)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.BatchID, entry.EventA, entry.EventB, entry.Model,
		entry.PromptTokens, entry.CompletionTokens,
		entry.CacheWriteTokens, entry.CacheReadTokens, entry.TotalTokens,
		entry.EstimatedCostUSD, entry.Cached,
	)
	return eris.Wrap(err, "postgres: log usage")
}

func (s *PostgresStore) BatchUsageSummary(ctx context.Context, batchID string) (*model.UsageSummary, error) {
	return s.usageSummary(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE cached), COALESCE(SUM(total_tokens), 0), COALESCE(SUM(estimated_cost_usd), 0)
		 FROM ai_usage_log WHERE batch_id = $1`, batchID)
}

func (s *PostgresStore) PeriodUsageSummary(ctx context.Context, from, to time.Time) (*model.UsageSummary, error) {
	summary, err := s.usageSummary(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE cached), COALESCE(SUM(total_tokens), 0), COALESCE(SUM(estimated_cost_usd), 0)
		 FROM ai_usage_log WHERE created_at >= $1 AND created_at < $2`, from, to)
	if err != nil {
		return nil, err
	}
	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT batch_id) FROM ai_usage_log WHERE created_at >= $1 AND created_at < $2`,
		from, to,
	).Scan(&summary.BatchCount)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: usage batch count")
	}
	return summary, nil
}

func (s *PostgresStore) usageSummary(ctx context.Context, query string, args ...any) (*model.UsageSummary, error) {
	var sum model.UsageSummary
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&sum.TotalRequests, &sum.CachedRequests, &sum.TotalTokens, &sum.EstimatedCostUSD,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: usage summary")
	}
	sum.APIRequests = sum.TotalRequests - sum.CachedRequests
	return &sum, nil
}

func (s *PostgresStore) queryCanonical(ctx context.Context, query string, args ...any) ([]model.CanonicalEvent, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query canonicals")
	}
	defer rows.Close()

	var out []model.CanonicalEvent
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan canonical")
		}
		var c model.CanonicalEvent
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal canonical")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: query canonicals iterate")
}
