// Package store keeps research sessions in a local sqlite file: the editable plan,
// the reviewed verse collection and the token usage so far. Relevance maps are
// rebuilt for every report and never stored.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"versefinder/internal/domain"
	"versefinder/internal/oracle"
)

// ErrNotFound is returned for unknown sessions or missing snapshots.
var ErrNotFound = errors.New("not found")

// Stage names the last completed pipeline step of a session.
type Stage string

const (
	StagePlanned   Stage = "planned"
	StageRefined   Stage = "refined"
	StageCollected Stage = "collected"
	StageReviewed  Stage = "reviewed"
	StageReported  Stage = "reported"
)

const (
	kindPlan       = "plan"
	kindCollection = "collection"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	topic       TEXT NOT NULL,
	stage       TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS snapshots (
	session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	kind        TEXT NOT NULL,
	body        TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	PRIMARY KEY (session_id, kind)
);
CREATE TABLE IF NOT EXISTS usage (
	session_id        TEXT PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
	prompt_tokens     INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	calls             INTEGER NOT NULL DEFAULT 0
);`

// Session is one research run.
type Session struct {
	ID        string
	Topic     string
	Stage     Stage
	CreatedAt time.Time
	UpdatedAt time.Time
	Usage     oracle.Usage
	Calls     int
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (and migrates) the session database at path. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// sqlite has a single writer; one connection also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) stamp() string { return s.now().Format(time.RFC3339Nano) }

// Create starts a session for topic.
func (s *Store) Create(ctx context.Context, topic string) (Session, error) {
	id := uuid.New().String()
	ts := s.stamp()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Session{}, err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, topic, stage, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, topic, StagePlanned, ts, ts); err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO usage (session_id) VALUES (?)`, id); err != nil {
		return Session{}, fmt.Errorf("insert usage: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Session{}, err
	}
	return s.Get(ctx, id)
}

const selectSession = `
SELECT s.id, s.topic, s.stage, s.created_at, s.updated_at,
       COALESCE(u.prompt_tokens, 0), COALESCE(u.completion_tokens, 0), COALESCE(u.calls, 0)
FROM sessions s LEFT JOIN usage u ON u.session_id = s.id`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(r scanner) (Session, error) {
	var ss Session
	var created, updated string
	if err := r.Scan(&ss.ID, &ss.Topic, &ss.Stage, &created, &updated,
		&ss.Usage.PromptTokens, &ss.Usage.CompletionTokens, &ss.Calls); err != nil {
		return Session{}, err
	}
	ss.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	ss.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return ss, nil
}

// Get returns one session. A unique id prefix is accepted.
func (s *Store) Get(ctx context.Context, id string) (Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Session{}, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx, selectSession+` WHERE s.id = ? OR s.id LIKE ? ORDER BY s.id = ? DESC LIMIT 2`,
		id, id+"%", id)
	if err != nil {
		return Session{}, err
	}
	defer rows.Close()
	var found []Session
	for rows.Next() {
		ss, err := scanSession(rows)
		if err != nil {
			return Session{}, err
		}
		found = append(found, ss)
	}
	if err := rows.Err(); err != nil {
		return Session{}, err
	}
	switch {
	case len(found) == 0:
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	case found[0].ID == id || len(found) == 1:
		return found[0], nil
	default:
		return Session{}, fmt.Errorf("session prefix %q is ambiguous", id)
	}
}

// List returns sessions, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, selectSession+` ORDER BY s.updated_at DESC, s.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		ss, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}

// SetStage records the last completed step.
func (s *Store) SetStage(ctx context.Context, id string, stage Stage) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET stage = ?, updated_at = ? WHERE id = ?`, stage, s.stamp(), id)
	if err != nil {
		return err
	}
	return expectRow(res, id)
}

// AddUsage accumulates token usage for a session.
func (s *Store) AddUsage(ctx context.Context, id string, u oracle.Usage, calls int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE usage SET prompt_tokens = prompt_tokens + ?, completion_tokens = completion_tokens + ?, calls = calls + ? WHERE session_id = ?`,
		u.PromptTokens, u.CompletionTokens, calls, id)
	if err != nil {
		return err
	}
	return expectRow(res, id)
}

// SavePlan replaces the stored plan of a session.
func (s *Store) SavePlan(ctx context.Context, id string, plan domain.Plan) error {
	return s.put(ctx, id, kindPlan, plan)
}

func (s *Store) LoadPlan(ctx context.Context, id string) (domain.Plan, error) {
	var plan domain.Plan
	err := s.get(ctx, id, kindPlan, &plan)
	return plan, err
}

// SaveCollection replaces the stored verse collection of a session.
func (s *Store) SaveCollection(ctx context.Context, id string, sections []domain.SectionVerses) error {
	return s.put(ctx, id, kindCollection, sections)
}

func (s *Store) LoadCollection(ctx context.Context, id string) ([]domain.SectionVerses, error) {
	var sections []domain.SectionVerses
	err := s.get(ctx, id, kindCollection, &sections)
	return sections, err
}

func (s *Store) put(ctx context.Context, id, kind string, v any) error {
	body, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	ts := s.stamp()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, ts, id)
	if err != nil {
		return err
	}
	if err := expectRow(res, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (session_id, kind, body, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id, kind) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		id, kind, string(body), ts); err != nil {
		return fmt.Errorf("save %s: %w", kind, err)
	}
	return tx.Commit()
}

func (s *Store) get(ctx context.Context, id, kind string, v any) error {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM snapshots WHERE session_id = ? AND kind = ?`, id, kind).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s for session %s: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("decode %s: %w", kind, err)
	}
	return nil
}

func expectRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}
