// Package store persists diagnostic sessions for callers that keep case history.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hybrid-diagnosis-engine/internal/domain"
)

// SQLiteStore implements domain.ResultStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

var _ domain.ResultStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite session store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		disease TEXT NOT NULL,
		status TEXT NOT NULL,
		label TEXT NOT NULL,
		confidence REAL NOT NULL,
		explanation TEXT DEFAULT '',
		image_path TEXT DEFAULT '',
		saliency_path TEXT DEFAULT '',
		attributions TEXT NOT NULL DEFAULT '[]',
		engineered_record TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_disease ON sessions(disease);
	CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(s scanner) (*domain.Session, error) {
	sess := &domain.Session{}
	var disease, attributions, record string

	err := s.Scan(
		&sess.ID, &disease, &sess.Status, &sess.Label, &sess.Confidence,
		&sess.Explanation, &sess.ImagePath, &sess.SaliencyPath,
		&attributions, &record, &sess.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	sess.Disease = domain.DiseaseCategory(disease)
	if err := json.Unmarshal([]byte(attributions), &sess.Attributions); err != nil {
		return nil, fmt.Errorf("failed to decode attributions: %w", err)
	}
	if err := json.Unmarshal([]byte(record), &sess.EngineeredRecord); err != nil {
		return nil, fmt.Errorf("failed to decode engineered record: %w", err)
	}
	if sess.Attributions == nil {
		sess.Attributions = []domain.Attribution{}
	}
	return sess, nil
}

// Save inserts the session, or replaces it when the ID already exists. An empty
// ID is assigned a new UUID.
func (s *SQLiteStore) Save(ctx context.Context, session *domain.Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	if session.Status == "" {
		session.Status = domain.StatusCompleted
	}

	attributions := session.Attributions
	if attributions == nil {
		attributions = []domain.Attribution{}
	}
	attrJSON, err := json.Marshal(attributions)
	if err != nil {
		return fmt.Errorf("failed to encode attributions: %w", err)
	}
	record := session.EngineeredRecord
	if record == nil {
		record = domain.FeatureRecord{}
	}
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode engineered record: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, disease, status, label, confidence, explanation,
			image_path, saliency_path, attributions, engineered_record, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			disease = excluded.disease,
			status = excluded.status,
			label = excluded.label,
			confidence = excluded.confidence,
			explanation = excluded.explanation,
			image_path = excluded.image_path,
			saliency_path = excluded.saliency_path,
			attributions = excluded.attributions,
			engineered_record = excluded.engineered_record
	`,
		session.ID,
		string(session.Disease),
		session.Status,
		session.Label,
		session.Confidence,
		session.Explanation,
		session.ImagePath,
		session.SaliencyPath,
		string(attrJSON),
		string(recordJSON),
		session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, disease, status, label, confidence, explanation,
		image_path, saliency_path, attributions, engineered_record, created_at
	FROM sessions`

// Get retrieves a session by ID. It returns nil without error when none exists.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)

	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return sess, nil
}

// List returns sessions newest first with pagination.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, sess)
	}
	return result, rows.Err()
}

// Count returns the total number of stored sessions.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count)
	return count, err
}

// Delete removes a session by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	return err
}

// maxExportLimit is the maximum number of sessions exported at once.
const maxExportLimit = 1000000

// SessionExport is the JSON document written by ExportJSON.
type SessionExport struct {
	Version    string            `json:"version"`
	ExportedAt time.Time         `json:"exported_at"`
	Count      int               `json:"count"`
	Sessions   []*domain.Session `json:"sessions"`
}

// ExportJSON writes every stored session to writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if all == nil {
		all = []*domain.Session{}
	}

	export := &SessionExport{
		Version:    "1.0",
		ExportedAt: time.Now(),
		Count:      len(all),
		Sessions:   all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
