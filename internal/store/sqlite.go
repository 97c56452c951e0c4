package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/prep-service/internal/model"
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
CREATE TABLE IF NOT EXISTS company_cache (
	identity     TEXT PRIMARY KEY,
	payload      TEXT NOT NULL,
	confidence   REAL NOT NULL DEFAULT 0,
	source_urls  TEXT NOT NULL DEFAULT '[]',
	last_updated DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS meeting_preps (
	id                   TEXT PRIMARY KEY,
	user_id              TEXT NOT NULL,
	company_name         TEXT NOT NULL,
	company_identity     TEXT NOT NULL,
	meeting_objective    TEXT NOT NULL,
	meeting_date         TEXT,
	contact_person_name  TEXT,
	contact_linkedin_url TEXT,
	prep_data            TEXT NOT NULL,
	overall_confidence   REAL NOT NULL DEFAULT 0,
	cache_hit            INTEGER NOT NULL DEFAULT 0,
	created_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS meeting_outcomes (
	id                  TEXT PRIMARY KEY,
	prep_id             TEXT NOT NULL UNIQUE REFERENCES meeting_preps(id),
	meeting_status      TEXT NOT NULL,
	outcome             TEXT,
	prep_accuracy       INTEGER,
	most_useful_section TEXT,
	what_was_missing    TEXT,
	general_notes       TEXT,
	created_at          DATETIME NOT NULL,
	updated_at          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS user_profiles (
	user_id    TEXT PRIMARY KEY,
	profile    TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_company_cache_last_updated ON company_cache(last_updated);
CREATE INDEX IF NOT EXISTS idx_meeting_preps_user_id ON meeting_preps(user_id);
CREATE INDEX IF NOT EXISTS idx_meeting_preps_company_identity ON meeting_preps(company_identity);
CREATE INDEX IF NOT EXISTS idx_meeting_outcomes_prep_id ON meeting_outcomes(prep_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetCompanyCache(ctx context.Context, identity string) (*model.CompanyCacheEntry, error) {
	var (
		entry       model.CompanyCacheEntry
		payloadJSON string
		sourcesJSON string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT identity, payload, confidence, source_urls, last_updated FROM company_cache WHERE identity = ?`,
		identity,
	).Scan(&entry.Identity, &payloadJSON, &entry.Confidence, &sourcesJSON, &entry.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get company cache %s", identity)
	}

	if err := json.Unmarshal([]byte(payloadJSON), &entry.Payload); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cache payload")
	}
	if err := json.Unmarshal([]byte(sourcesJSON), &entry.SourceURLs); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cache sources")
	}
	return &entry, nil
}

func (s *SQLiteStore) PutCompanyCache(ctx context.Context, entry *model.CompanyCacheEntry) error {
	payloadJSON, err := json.Marshal(entry.Payload)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal cache payload")
	}
	sourcesJSON, err := json.Marshal(entry.SourceURLs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal cache sources")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO company_cache (identity, payload, confidence, source_urls, last_updated) VALUES (?, ?, ?, ?, ?) ON CONFLICT (identity) DO UPDATE SET payload = excluded.payload, confidence = excluded.confidence, source_urls = excluded.source_urls, last_updated = excluded.last_updated`,
		entry.Identity, string(payloadJSON), entry.Confidence, string(sourcesJSON), entry.LastUpdated.UTC(),
	)
	return eris.Wrapf(err, "sqlite: put company cache %s", entry.Identity)
}

func (s *SQLiteStore) DeleteCompanyCache(ctx context.Context, identity string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM company_cache WHERE identity = ?`, identity)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: delete company cache %s", identity)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) CompanyCacheStats(ctx context.Context, freshCutoff time.Time) (*CacheStats, error) {
	var stats CacheStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN last_updated > ? THEN 1 ELSE 0 END), 0), COALESCE(AVG(confidence), 0) FROM company_cache`,
		freshCutoff.UTC(),
	).Scan(&stats.TotalEntries, &stats.FreshEntries, &stats.AvgConfidence)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: cache stats")
	}
	stats.StaleEntries = stats.TotalEntries - stats.FreshEntries
	return &stats, nil
}

func (s *SQLiteStore) ImportCompanyCache(ctx context.Context, entries []model.CompanyCacheEntry) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO company_cache (identity, payload, confidence, source_urls, last_updated) VALUES (?, ?, ?, ?, ?) ON CONFLICT (identity) DO UPDATE SET payload = excluded.payload, confidence = excluded.confidence, source_urls = excluded.source_urls, last_updated = excluded.last_updated`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import: prepare")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, e := range entries {
		payloadJSON, err := json.Marshal(e.Payload)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal cache payload %s", e.Identity)
		}
		sourcesJSON, err := json.Marshal(e.SourceURLs)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal cache sources %s", e.Identity)
		}
		if _, err := stmt.ExecContext(ctx, e.Identity, string(payloadJSON), e.Confidence, string(sourcesJSON), e.LastUpdated.UTC()); err != nil {
			return 0, eris.Wrapf(err, "sqlite: import %s", e.Identity)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: import: commit")
	}
	return n, nil
}

func (s *SQLiteStore) CreateMeetingPrep(ctx context.Context, prep model.MeetingPrep) (*model.MeetingPrep, error) {
	prep.ID = uuid.New().String()
	prep.CreatedAt = time.Now().UTC()

	prepJSON, err := json.Marshal(prep.PrepData)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal prep data")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO meeting_preps (id, user_id, company_name, company_identity, meeting_objective, meeting_date, contact_person_name, contact_linkedin_url, prep_data, overall_confidence, cache_hit, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		prep.ID, prep.UserID, prep.CompanyName, prep.CompanyIdentity, prep.MeetingObjective,
		prep.MeetingDate, prep.ContactPersonName, prep.ContactLinkedInURL,
		string(prepJSON), prep.OverallConfidence, prep.CacheHit, prep.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert meeting prep")
	}
	return &prep, nil
}

func (s *SQLiteStore) GetMeetingPrep(ctx context.Context, prepID, userID string) (*model.MeetingPrep, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, company_name, company_identity, meeting_objective, meeting_date, contact_person_name, contact_linkedin_url, prep_data, overall_confidence, cache_hit, created_at FROM meeting_preps WHERE id = ? AND user_id = ?`,
		prepID, userID,
	)
	prep, err := scanSQLiteMeetingPrep(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get meeting prep %s", prepID)
	}
	return prep, nil
}

func (s *SQLiteStore) ListMeetingPreps(ctx context.Context, userID string, limit, offset int) ([]model.MeetingPrep, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, company_name, company_identity, meeting_objective, meeting_date, contact_person_name, contact_linkedin_url, prep_data, overall_confidence, cache_hit, created_at FROM meeting_preps WHERE user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list meeting preps")
	}
	defer rows.Close() //nolint:errcheck

	var preps []model.MeetingPrep
	for rows.Next() {
		prep, err := scanSQLiteMeetingPrep(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan meeting prep")
		}
		preps = append(preps, *prep)
	}
	return preps, eris.Wrap(rows.Err(), "sqlite: list meeting preps")
}

func (s *SQLiteStore) UpsertMeetingOutcome(ctx context.Context, outcome model.MeetingOutcome) (*model.MeetingOutcome, error) {
	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO meeting_outcomes (id, prep_id, meeting_status, outcome, prep_accuracy, most_useful_section, what_was_missing, general_notes, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (prep_id) DO UPDATE SET meeting_status = excluded.meeting_status, outcome = excluded.outcome, prep_accuracy = excluded.prep_accuracy, most_useful_section = excluded.most_useful_section, what_was_missing = excluded.what_was_missing, general_notes = excluded.general_notes, updated_at = excluded.updated_at RETURNING id, created_at, updated_at`,
		uuid.New().String(), outcome.PrepID, outcome.MeetingStatus, outcome.Outcome,
		outcome.PrepAccuracy, outcome.MostUsefulSection, outcome.WhatWasMissing,
		outcome.GeneralNotes, now, now,
	).Scan(&outcome.ID, &outcome.CreatedAt, &outcome.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert meeting outcome %s", outcome.PrepID)
	}
	return &outcome, nil
}

func (s *SQLiteStore) GetMeetingOutcome(ctx context.Context, prepID string) (*model.MeetingOutcome, error) {
	var o model.MeetingOutcome
	err := s.db.QueryRowContext(ctx,
		`SELECT id, prep_id, meeting_status, outcome, prep_accuracy, most_useful_section, what_was_missing, general_notes, created_at, updated_at FROM meeting_outcomes WHERE prep_id = ?`,
		prepID,
	).Scan(&o.ID, &o.PrepID, &o.MeetingStatus, &o.Outcome, &o.PrepAccuracy,
		&o.MostUsefulSection, &o.WhatWasMissing, &o.GeneralNotes, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get meeting outcome %s", prepID)
	}
	return &o, nil
}

func (s *SQLiteStore) GetUserProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	var profileJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT profile FROM user_profiles WHERE user_id = ?`,
		userID,
	).Scan(&profileJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get user profile %s", userID)
	}

	var profile model.UserProfile
	if err := json.Unmarshal([]byte(profileJSON), &profile); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal user profile")
	}
	return &profile, nil
}

func (s *SQLiteStore) PutUserProfile(ctx context.Context, userID string, profile model.UserProfile) error {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal user profile")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_profiles (user_id, profile, updated_at) VALUES (?, ?, ?) ON CONFLICT (user_id) DO UPDATE SET profile = excluded.profile, updated_at = excluded.updated_at`,
		userID, string(profileJSON), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: put user profile %s", userID)
}

// scanSQLiteMeetingPrep reads one meeting_preps row via the given Scan
// function, shared between QueryRow and Query iteration.
func scanSQLiteMeetingPrep(scan func(dest ...any) error) (*model.MeetingPrep, error) {
	var (
		prep     model.MeetingPrep
		prepJSON string
	)
	err := scan(&prep.ID, &prep.UserID, &prep.CompanyName, &prep.CompanyIdentity,
		&prep.MeetingObjective, &prep.MeetingDate, &prep.ContactPersonName,
		&prep.ContactLinkedInURL, &prepJSON, &prep.OverallConfidence,
		&prep.CacheHit, &prep.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(prepJSON), &prep.PrepData); err != nil {
		return nil, eris.Wrap(err, "unmarshal prep data")
	}
	return &prep, nil
}
