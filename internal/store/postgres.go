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

	"github.com/sells-group/prep-service/internal/db"
	"github.com/sells-group/prep-service/internal/model"
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

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot-path store operations.
var preparedStatements = map[string]string{
	"get_company_cache":    `SELECT identity, payload, confidence, source_urls, last_updated FROM company_cache WHERE identity = $1`,
	"put_company_cache":    `INSERT INTO company_cache (identity, payload, confidence, source_urls, last_updated) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (identity) DO UPDATE SET payload = EXCLUDED.payload, confidence = EXCLUDED.confidence, source_urls = EXCLUDED.source_urls, last_updated = EXCLUDED.last_updated`,
	"delete_company_cache": `DELETE FROM company_cache WHERE identity = $1`,
	"insert_meeting_prep":  `INSERT INTO meeting_preps (id, user_id, company_name, company_identity, meeting_objective, meeting_date, contact_person_name, contact_linkedin_url, prep_data, overall_confidence, cache_hit, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
	"get_meeting_prep":     `SELECT id, user_id, company_name, company_identity, meeting_objective, meeting_date, contact_person_name, contact_linkedin_url, prep_data, overall_confidence, cache_hit, created_at FROM meeting_preps WHERE id = $1 AND user_id = $2`,
	"get_user_profile":     `SELECT profile FROM user_profiles WHERE user_id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
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

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

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

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS company_cache (
	identity     TEXT PRIMARY KEY,
	payload      JSONB NOT NULL,
	confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
	source_urls  JSONB NOT NULL DEFAULT '[]',
	last_updated TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS meeting_preps (
	id                   TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id              TEXT NOT NULL,
	company_name         TEXT NOT NULL,
	company_identity     TEXT NOT NULL,
	meeting_objective    TEXT NOT NULL,
	meeting_date         TEXT,
	contact_person_name  TEXT,
	contact_linkedin_url TEXT,
	prep_data            JSONB NOT NULL,
	overall_confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
	cache_hit            BOOLEAN NOT NULL DEFAULT false,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS meeting_outcomes (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	prep_id             TEXT NOT NULL UNIQUE REFERENCES meeting_preps(id),
	meeting_status      TEXT NOT NULL,
	outcome             TEXT,
	prep_accuracy       INTEGER,
	most_useful_section TEXT,
	what_was_missing    TEXT,
	general_notes       TEXT,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS user_profiles (
	user_id    TEXT PRIMARY KEY,
	profile    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_company_cache_last_updated ON company_cache(last_updated);
CREATE INDEX IF NOT EXISTS idx_meeting_preps_user_id ON meeting_preps(user_id);
CREATE INDEX IF NOT EXISTS idx_meeting_preps_company_identity ON meeting_preps(company_identity);
CREATE INDEX IF NOT EXISTS idx_meeting_outcomes_prep_id ON meeting_outcomes(prep_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetCompanyCache(ctx context.Context, identity string) (*model.CompanyCacheEntry, error) {
	var (
		entry       model.CompanyCacheEntry
		payloadJSON []byte
		sourcesJSON []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT identity, payload, confidence, source_urls, last_updated FROM company_cache WHERE identity = $1`,
		identity,
	).Scan(&entry.Identity, &payloadJSON, &entry.Confidence, &sourcesJSON, &entry.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get company cache %s", identity)
	}

	if err := json.Unmarshal(payloadJSON, &entry.Payload); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cache payload")
	}
	if err := json.Unmarshal(sourcesJSON, &entry.SourceURLs); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cache sources")
	}
	return &entry, nil
}

func (s *PostgresStore) PutCompanyCache(ctx context.Context, entry *model.CompanyCacheEntry) error {
	payloadJSON, err := json.Marshal(entry.Payload)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal cache payload")
	}
	sourcesJSON, err := json.Marshal(entry.SourceURLs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal cache sources")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO company_cache (identity, payload, confidence, source_urls, last_updated) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (identity) DO UPDATE SET payload = EXCLUDED.payload, confidence = EXCLUDED.confidence, source_urls = EXCLUDED.source_urls, last_updated = EXCLUDED.last_updated`,
		entry.Identity, payloadJSON, entry.Confidence, sourcesJSON, entry.LastUpdated,
	)
	return eris.Wrapf(err, "postgres: put company cache %s", entry.Identity)
}

func (s *PostgresStore) DeleteCompanyCache(ctx context.Context, identity string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM company_cache WHERE identity = $1`, identity)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: delete company cache %s", identity)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) CompanyCacheStats(ctx context.Context, freshCutoff time.Time) (*CacheStats, error) {
	var stats CacheStats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE last_updated > $1), COALESCE(AVG(confidence), 0) FROM company_cache`,
		freshCutoff,
	).Scan(&stats.TotalEntries, &stats.FreshEntries, &stats.AvgConfidence)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: cache stats")
	}
	stats.StaleEntries = stats.TotalEntries - stats.FreshEntries
	return &stats, nil
}

func (s *PostgresStore) ImportCompanyCache(ctx context.Context, entries []model.CompanyCacheEntry) (int64, error) {
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		payloadJSON, err := json.Marshal(e.Payload)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal cache payload %s", e.Identity)
		}
		sourcesJSON, err := json.Marshal(e.SourceURLs)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal cache sources %s", e.Identity)
		}
		rows = append(rows, []any{e.Identity, payloadJSON, e.Confidence, sourcesJSON, e.LastUpdated})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "company_cache",
		Columns:      []string{"identity", "payload", "confidence", "source_urls", "last_updated"},
		ConflictKeys: []string{"identity"},
	}, rows)
	return n, eris.Wrap(err, "postgres: import company cache")
}

func (s *PostgresStore) CreateMeetingPrep(ctx context.Context, prep model.MeetingPrep) (*model.MeetingPrep, error) {
	prep.ID = uuid.New().String()
	prep.CreatedAt = time.Now().UTC()

	prepJSON, err := json.Marshal(prep.PrepData)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal prep data")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO meeting_preps (id, user_id, company_name, company_identity, meeting_objective, meeting_date, contact_person_name, contact_linkedin_url, prep_data, overall_confidence, cache_hit, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		prep.ID, prep.UserID, prep.CompanyName, prep.CompanyIdentity, prep.MeetingObjective,
		prep.MeetingDate, prep.ContactPersonName, prep.ContactLinkedInURL,
		prepJSON, prep.OverallConfidence, prep.CacheHit, prep.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert meeting prep")
	}
	return &prep, nil
}

func (s *PostgresStore) GetMeetingPrep(ctx context.Context, prepID, userID string) (*model.MeetingPrep, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, company_name, company_identity, meeting_objective, meeting_date, contact_person_name, contact_linkedin_url, prep_data, overall_confidence, cache_hit, created_at FROM meeting_preps WHERE id = $1 AND user_id = $2`,
		prepID, userID,
	)
	prep, err := scanMeetingPrep(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get meeting prep %s", prepID)
	}
	return prep, nil
}

func (s *PostgresStore) ListMeetingPreps(ctx context.Context, userID string, limit, offset int) ([]model.MeetingPrep, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, company_name, company_identity, meeting_objective, meeting_date, contact_person_name, contact_linkedin_url, prep_data, overall_confidence, cache_hit, created_at FROM meeting_preps WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list meeting preps")
	}
	defer rows.Close()

	var preps []model.MeetingPrep
	for rows.Next() {
		prep, err := scanMeetingPrep(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan meeting prep")
		}
		preps = append(preps, *prep)
	}
	return preps, eris.Wrap(rows.Err(), "postgres: list meeting preps")
}

func (s *PostgresStore) UpsertMeetingOutcome(ctx context.Context, outcome model.MeetingOutcome) (*model.MeetingOutcome, error) {
	now := time.Now().UTC()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO meeting_outcomes (id, prep_id, meeting_status, outcome, prep_accuracy, most_useful_section, what_was_missing, general_notes, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9) ON CONFLICT (prep_id) DO UPDATE SET meeting_status = EXCLUDED.meeting_status, outcome = EXCLUDED.outcome, prep_accuracy = EXCLUDED.prep_accuracy, most_useful_section = EXCLUDED.most_useful_section, what_was_missing = EXCLUDED.what_was_missing, general_notes = EXCLUDED.general_notes, updated_at = EXCLUDED.updated_at RETURNING id, created_at, updated_at`,
		uuid.New().String(), outcome.PrepID, outcome.MeetingStatus, outcome.Outcome,
		outcome.PrepAccuracy, outcome.MostUsefulSection, outcome.WhatWasMissing,
		outcome.GeneralNotes, now,
	).Scan(&outcome.ID, &outcome.CreatedAt, &outcome.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert meeting outcome %s", outcome.PrepID)
	}
	return &outcome, nil
}

func (s *PostgresStore) GetMeetingOutcome(ctx context.Context, prepID string) (*model.MeetingOutcome, error) {
	var o model.MeetingOutcome
	err := s.pool.QueryRow(ctx,
		`SELECT id, prep_id, meeting_status, outcome, prep_accuracy, most_useful_section, what_was_missing, general_notes, created_at, updated_at FROM meeting_outcomes WHERE prep_id = $1`,
		prepID,
	).Scan(&o.ID, &o.PrepID, &o.MeetingStatus, &o.Outcome, &o.PrepAccuracy,
		&o.MostUsefulSection, &o.WhatWasMissing, &o.GeneralNotes, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get meeting outcome %s", prepID)
	}
	return &o, nil
}

func (s *PostgresStore) GetUserProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	var profileJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT profile FROM user_profiles WHERE user_id = $1`,
		userID,
	).Scan(&profileJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get user profile %s", userID)
	}

	var profile model.UserProfile
	if err := json.Unmarshal(profileJSON, &profile); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal user profile")
	}
	return &profile, nil
}

func (s *PostgresStore) PutUserProfile(ctx context.Context, userID string, profile model.UserProfile) error {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal user profile")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO user_profiles (user_id, profile, updated_at) VALUES ($1, $2, $3) ON CONFLICT (user_id) DO UPDATE SET profile = EXCLUDED.profile, updated_at = EXCLUDED.updated_at`,
		userID, profileJSON, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: put user profile %s", userID)
}

// scanMeetingPrep reads one meeting_preps row. Works for both QueryRow
// and Query iteration since pgx.Rows satisfies pgx.Row.
func scanMeetingPrep(row pgx.Row) (*model.MeetingPrep, error) {
	var (
		prep     model.MeetingPrep
		prepJSON []byte
	)
	err := row.Scan(&prep.ID, &prep.UserID, &prep.CompanyName, &prep.CompanyIdentity,
		&prep.MeetingObjective, &prep.MeetingDate, &prep.ContactPersonName,
		&prep.ContactLinkedInURL, &prepJSON, &prep.OverallConfidence,
		&prep.CacheHit, &prep.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(prepJSON, &prep.PrepData); err != nil {
		return nil, eris.Wrap(err, "unmarshal prep data")
	}
	return &prep, nil
}
