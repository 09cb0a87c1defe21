// Package store persists drafts in an embedded sqlite database, with
// transcript and generated-document blobs kept as files next to it. Drafts
// survive restarts so an approval callback can still resolve a draft posted
// before a crash.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"minutesbot/app/core/minutes"
)

var (
	ErrDraftExists   = errors.New("store: draft already exists")
	ErrDraftNotFound = errors.New("store: draft not found")
)

type Store struct {
	conn    *sql.DB
	dataDir string
}

func Open(dataDir string) (*Store, error) {
	for _, dir := range []string{dataDir, filepath.Join(dataDir, "transcripts"), filepath.Join(dataDir, "docs"), filepath.Join(dataDir, "uploads")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
	}

	dbPath := filepath.Join(dataDir, "minutes.db")
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	s := &Store{conn: conn, dataDir: dataDir}
	if err := s.initSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS drafts (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	meeting_name TEXT NOT NULL DEFAULT '',
	datetime_str TEXT NOT NULL DEFAULT '',
	participants TEXT NOT NULL DEFAULT '',
	purpose TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	decisions TEXT NOT NULL DEFAULT '',
	actions TEXT NOT NULL DEFAULT '',
	issues TEXT NOT NULL DEFAULT '',
	risks TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);`
	_, err := s.conn.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.conn.Close()
}

// Create inserts a new draft. The id must not be in use.
func (s *Store) Create(ctx context.Context, d minutes.Draft) error {
	if d.ID == "" {
		return fmt.Errorf("store: draft id is required")
	}
	now := time.Now().Unix()
	query := `INSERT INTO drafts (id, title, meeting_name, datetime_str, participants, purpose, summary, decisions, actions, issues, risks, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING`
	res, err := s.conn.ExecContext(ctx, query,
		d.ID, d.Title, d.MeetingName, d.DatetimeStr, d.Participants, d.Purpose,
		d.Summary, d.Decisions, d.Actions, d.Issues, d.Risks, now, now)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrDraftExists, d.ID)
	}
	return nil
}

// Get loads a draft by id.
func (s *Store) Get(ctx context.Context, id string) (minutes.Draft, error) {
	query := `SELECT id, title, meeting_name, datetime_str, participants, purpose, summary, decisions, actions, issues, risks FROM drafts WHERE id = ?`
	var d minutes.Draft
	err := s.conn.QueryRowContext(ctx, query, id).Scan(
		&d.ID, &d.Title, &d.MeetingName, &d.DatetimeStr, &d.Participants,
		&d.Purpose, &d.Summary, &d.Decisions, &d.Actions, &d.Issues, &d.Risks)
	if err == sql.ErrNoRows {
		return minutes.Draft{}, fmt.Errorf("%w: %s", ErrDraftNotFound, id)
	}
	if err != nil {
		return minutes.Draft{}, err
	}
	return d, nil
}

// Update replaces every content field of an existing draft. Last write wins;
// there is no version check.
func (s *Store) Update(ctx context.Context, d minutes.Draft) error {
	query := `UPDATE drafts SET title = ?, meeting_name = ?, datetime_str = ?, participants = ?, purpose = ?, summary = ?, decisions = ?, actions = ?, issues = ?, risks = ?, updated_at = ? WHERE id = ?`
	res, err := s.conn.ExecContext(ctx, query,
		d.Title, d.MeetingName, d.DatetimeStr, d.Participants, d.Purpose,
		d.Summary, d.Decisions, d.Actions, d.Issues, d.Risks, time.Now().Unix(), d.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrDraftNotFound, d.ID)
	}
	return nil
}

func (s *Store) SaveTranscript(id string, text string) error {
	return os.WriteFile(s.transcriptPath(id), []byte(text), 0644)
}

func (s *Store) ReadTranscript(id string) (string, error) {
	data, err := os.ReadFile(s.transcriptPath(id))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SaveDocument writes a generated document blob and returns its path.
// Documents are keyed by draft id plus a kind suffix ("minutes",
// "design_checklist").
func (s *Store) SaveDocument(id string, kind string, data []byte) (string, error) {
	path := s.DocumentPath(id, kind)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Store) DocumentPath(id string, kind string) string {
	return filepath.Join(s.dataDir, "docs", fmt.Sprintf("%s_%s.md", id, kind))
}

func (s *Store) UploadDir() string {
	return filepath.Join(s.dataDir, "uploads")
}

func (s *Store) transcriptPath(id string) string {
	return filepath.Join(s.dataDir, "transcripts", id+".txt")
}
