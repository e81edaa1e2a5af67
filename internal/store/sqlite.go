package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ianibsm/Synapz/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using a local SQLite database. It mirrors
// the external tabular store's semantics: record ids are opaque strings, and
// there is deliberately no uniqueness constraint on (stakeholder, project),
// so racing resolutions can still create duplicate sessions.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a SQLite-backed repository at the given path.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for better concurrency under parallel request handling.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		stakeholder TEXT NOT NULL,
		project TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_pair ON sessions(stakeholder, project);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// FindSession returns the first session matching the pair exactly, or nil.
func (s *SQLiteStore) FindSession(ctx context.Context, stakeholderID, projectID string) (*domain.Session, error) {
	query := `
		SELECT id, stakeholder, project, status
		FROM sessions WHERE stakeholder = ? AND project = ? LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, stakeholderID, projectID)

	var sess domain.Session
	err := row.Scan(&sess.ID, &sess.Stakeholder, &sess.Project, &sess.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return &sess, nil
}

// CreateSession creates a new session record.
func (s *SQLiteStore) CreateSession(ctx context.Context, stakeholderID, projectID string, status domain.SessionStatus) (*domain.Session, error) {
	sess := &domain.Session{
		ID:          uuid.NewString(),
		Stakeholder: stakeholderID,
		Project:     projectID,
		Status:      status,
	}

	query := `INSERT INTO sessions (id, stakeholder, project, status, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, sess.ID, sess.Stakeholder, sess.Project, string(sess.Status), time.Now().Unix()); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// CreateMessage appends one message record linked to the session.
func (s *SQLiteStore) CreateMessage(ctx context.Context, sessionID, sender, text string) (*domain.Message, error) {
	msg := &domain.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Sender:    sender,
		Text:      text,
	}

	query := `INSERT INTO messages (id, session_id, sender, text, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, msg.ID, msg.SessionID, msg.Sender, msg.Text, time.Now().Unix()); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// MessagesBySession returns the session's messages in creation order.
func (s *SQLiteStore) MessagesBySession(ctx context.Context, sessionID string) ([]*domain.Message, error) {
	query := `
		SELECT id, session_id, sender, text
		FROM messages WHERE session_id = ? ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Sender, &msg.Text); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return messages, nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
