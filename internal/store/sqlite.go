package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/regiodata/event-dedup/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS source_events (
	id          TEXT PRIMARY KEY,
	source_code TEXT NOT NULL,
	source_type TEXT NOT NULL,
	data        TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS canonical_events (
	id           TEXT PRIMARY KEY,
	data         TEXT NOT NULL,
	needs_review INTEGER NOT NULL DEFAULT 0,
	version      INTEGER NOT NULL DEFAULT 1,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS match_decisions (
	event_id_a     TEXT NOT NULL,
	event_id_b     TEXT NOT NULL,
	combined_score REAL NOT NULL,
	decision       TEXT NOT NULL,
	tier           TEXT NOT NULL,
	signals        TEXT NOT NULL,
	PRIMARY KEY (event_id_a, event_id_b)
);

CREATE TABLE IF NOT EXISTS ai_match_cache (
	pair_hash  TEXT PRIMARY KEY,
	event_id_a TEXT NOT NULL,
	event_id_b TEXT NOT NULL,
	decision   TEXT NOT NULL,
	confidence REAL NOT NULL,
	reasoning  TEXT,
	model      TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS ai_usage_log (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	batch_id           TEXT NOT NULL,
	event_id_a         TEXT NOT NULL,
	event_id_b         TEXT NOT NULL,
	model              TEXT NOT NULL,
	prompt_tokens      INTEGER NOT NULL DEFAULT 0,
	completion_tokens  INTEGER NOT NULL DEFAULT 0,
	cache_write_tokens INTEGER NOT NULL DEFAULT 0,
	cache_read_tokens  INTEGER NOT NULL DEFAULT 0,
	total_tokens       INTEGER NOT NULL DEFAULT 0,
	estimated_cost_usd REAL NOT NULL DEFAULT 0,
	cached             INTEGER NOT NULL DEFAULT 0,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_source_events_source ON source_events(source_code);
CREATE INDEX IF NOT EXISTS idx_canonical_needs_review ON canonical_events(needs_review);
CREATE INDEX IF NOT EXISTS idx_usage_batch ON ai_usage_log(batch_id);
CREATE INDEX IF NOT EXISTS idx_usage_created ON ai_usage_log(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertSourceEvents(ctx context.Context, events []model.SourceEvent) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback()

	count := 0
	for i := range events {
		e := &events[i]
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		data, err := json.Marshal(e)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal event %s", e.ID)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO source_events (id, source_code, source_type, data)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   source_code = excluded.source_code,
			   source_type = excluded.source_type,
			   data = excluded.data`,
			e.ID, e.SourceCode, string(e.SourceType), string(data),
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert event %s", e.ID)
		}
		count++
	}

	return count, eris.Wrap(tx.Commit(), "sqlite: commit upsert")
}

func (s *SQLiteStore) ListSourceEvents(ctx context.Context) ([]model.SourceEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM source_events ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list source events")
	}
	defer rows.Close()

	var events []model.SourceEvent
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source event")
		}
		var e model.SourceEvent
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal source event")
		}
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list source events iterate")
}

func (s *SQLiteStore) GetSourceEvent(ctx context.Context, id string) (*model.SourceEvent, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM source_events WHERE id = ?`, id,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get source event %s", id)
	}
	var e model.SourceEvent
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal source event")
	}
	return &e, nil
}

func (s *SQLiteStore) ListCanonicalEvents(ctx context.Context) ([]model.CanonicalEvent, error) {
	return s.queryCanonical(ctx, `SELECT data FROM canonical_events ORDER BY id`)
}

func (s *SQLiteStore) GetCanonicalEvent(ctx context.Context, id string) (*model.CanonicalEvent, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM canonical_events WHERE id = ?`, id,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get canonical %s", id)
	}
	var c model.CanonicalEvent
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal canonical")
	}
	return &c, nil
}

func (s *SQLiteStore) ReplaceCanonical(ctx context.Context, canonicals []model.CanonicalEvent, decisions []model.MatchDecision) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM canonical_events`); err != nil {
		return eris.Wrap(err, "sqlite: clear canonicals")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM match_decisions`); err != nil {
		return eris.Wrap(err, "sqlite: clear decisions")
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
			return eris.Wrapf(err, "sqlite: marshal canonical %s", c.ID)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO canonical_events (id, data, needs_review, version, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, string(data), boolToInt(c.NeedsReview), c.Version, c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert canonical %s", c.ID)
		}
	}

	for _, d := range decisions {
		signals, err := json.Marshal(d.Signals)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal signals")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO match_decisions (event_id_a, event_id_b, combined_score, decision, tier, signals)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			d.EventA, d.EventB, d.Combined, string(d.Decision), string(d.Tier), string(signals),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert decision %s:%s", d.EventA, d.EventB)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit replace")
}

func (s *SQLiteStore) SetCanonicalReview(ctx context.Context, id string, needsReview bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE canonical_events SET
		   needs_review = ?,
		   data = json_set(data, '$.needs_review', json(?)),
		   updated_at = ?
		 WHERE id = ?`,
		boolToInt(needsReview), jsonBool(needsReview), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set review %s", id)
	}
	return checkRowsAffected(res, "canonical event", id)
}

func (s *SQLiteStore) ListReviewQueue(ctx context.Context, filter ReviewFilter) ([]model.CanonicalEvent, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	return s.queryCanonical(ctx,
		`SELECT data FROM canonical_events WHERE needs_review = 1 ORDER BY updated_at DESC LIMIT ? OFFSET ?`,
		limit, filter.Offset,
	)
}

func (s *SQLiteStore) ListMatchDecisions(ctx context.Context) ([]model.MatchDecision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id_a, event_id_b, combined_score, decision, tier, signals
		 FROM match_decisions ORDER BY event_id_a, event_id_b`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list decisions")
	}
	defer rows.Close()

	var decisions []model.MatchDecision
	for rows.Next() {
		var d model.MatchDecision
		var signals string
		if err := rows.Scan(&d.EventA, &d.EventB, &d.Combined, &d.Decision, &d.Tier, &signals); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan decision")
		}
		if err := json.Unmarshal([]byte(signals), &d.Signals); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal signals")
		}
		decisions = append(decisions, d)
	}
	return decisions, eris.Wrap(rows.Err(), "sqlite: list decisions iterate")
}

func (s *SQLiteStore) GetAIMatchCache(ctx context.Context, pairHash string) (*model.MatchCacheEntry, error) {
	var entry model.MatchCacheEntry
	var reasoning sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT pair_hash, event_id_a, event_id_b, decision, confidence, reasoning, model, created_at
		 FROM ai_match_cache WHERE pair_hash = ?`, pairHash,
	).Scan(&entry.PairHash, &entry.EventA, &entry.EventB, &entry.Decision,
		&entry.Confidence, &reasoning, &entry.Model, &entry.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get ai cache")
	}
	entry.Reasoning = reasoning.String
	return &entry, nil
}

func (s *SQLiteStore) PutAIMatchCache(ctx context.Context, entry model.MatchCacheEntry) error {
	// Concurrent workers may race on the same pair hash; first write wins.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ai_match_cache (pair_hash, event_id_a, event_id_b, decision, confidence, reasoning, model)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(pair_hash) DO NOTHING`,
		entry.PairHash, entry.EventA, entry.EventB, entry.Decision,
		entry.Confidence, entry.Reasoning, entry.Model,
	)
	return eris.Wrap(err, "sqlite: put ai cache")
}

func (s *SQLiteStore) LogAIUsage(ctx context.Context, entry model.UsageLogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ai_usage_log
		   (batch_id, event_id_a, event_id_b, model, prompt_tokens, completion_tokens, cache_write_tokens, cache_read_tokens, total_tokens, estimated_cost_usd, cached)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.BatchID, entry.EventA, entry.EventB, entry.Model,
		entry.PromptTokens, entry.CompletionTokens,
		entry.CacheWriteTokens, entry.CacheReadTokens, entry.TotalTokens,
		entry.EstimatedCostUSD, boolToInt(entry.Cached),
	)
	return eris.Wrap(err, "sqlite: log usage")
}

func (s *SQLiteStore) BatchUsageSummary(ctx context.Context, batchID string) (*model.UsageSummary, error) {
	return s.usageSummary(ctx,
		`SELECT COUNT(*), COALESCE(SUM(cached), 0), COALESCE(SUM(total_tokens), 0), COALESCE(SUM(estimated_cost_usd), 0)
		 FROM ai_usage_log WHERE batch_id = ?`, batchID)
}

func (s *SQLiteStore) PeriodUsageSummary(ctx context.Context, from, to time.Time) (*model.UsageSummary, error) {
	summary, err := s.usageSummary(ctx,
		`SELECT COUNT(*), COALESCE(SUM(cached), 0), COALESCE(SUM(total_tokens), 0), COALESCE(SUM(estimated_cost_usd), 0)
		 FROM ai_usage_log WHERE created_at >= ? AND created_at < ?`, from, to)
	if err != nil {
		return nil, err
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT batch_id) FROM ai_usage_log WHERE created_at >= ? AND created_at < ?`,
		from, to,
	).Scan(&summary.BatchCount)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: usage batch count")
	}
	return summary, nil
}

func (s *SQLiteStore) usageSummary(ctx context.Context, query string, args ...any) (*model.UsageSummary, error) {
	var sum model.UsageSummary
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&sum.TotalRequests, &sum.CachedRequests, &sum.TotalTokens, &sum.EstimatedCostUSD,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: usage summary")
	}
	sum.APIRequests = sum.TotalRequests - sum.CachedRequests
	return &sum, nil
}

func (s *SQLiteStore) queryCanonical(ctx context.Context, query string, args ...any) ([]model.CanonicalEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query canonicals")
	}
	defer rows.Close()

	var out []model.CanonicalEvent
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan canonical")
		}
		var c model.CanonicalEvent
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal canonical")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: query canonicals iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func jsonBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
