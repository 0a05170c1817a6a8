// Package conversation persists the session transcript: captured shell
// commands with their output, user queries and assistant answers.
package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
)

// Roles and names used for transcript messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	NameHuman     = "human"
	NameStdout    = "stdout"
	NameAssistant = "torch"
)

// Message is one transcript entry.
type Message struct {
	ID        string
	SessionID string
	Role      string
	Name      string
	Content   string
	Timestamp time.Time
}

// Store is a SQLite-backed transcript. It implements capture.Sink.
type Store struct {
	db        *sql.DB
	path      string
	sessionID string
	directory string
}

// Open opens (or creates) the database at path and registers a session.
func Open(ctx context.Context, path, sessionID, directory string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, path: path, sessionID: sessionID, directory: directory}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO sessions (id, directory, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, sessionID, directory, time.Now())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("register session: %w", err)
	}

	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		directory TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append records a captured command and its output as two user messages.
func (s *Store) Append(command, output string) error {
	ctx := context.Background()
	if err := s.AppendMessage(ctx, RoleUser, NameHuman, fmt.Sprintf("%s $ %s", s.directory, command)); err != nil {
		return err
	}
	return s.AppendMessage(ctx, RoleUser, NameStdout, output)
}

// AppendMessage records one message in the current session.
func (s *Store) AppendMessage(ctx context.Context, role, name, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, role, name, content, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ulid.Make().String(), s.sessionID, role, name, content, time.Now())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// Recent returns up to limit of the latest messages of the current session,
// oldest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, name, content, timestamp FROM (
			SELECT rowid AS seq, * FROM messages WHERE session_id = ? ORDER BY rowid DESC LIMIT ?
		) ORDER BY seq ASC
	`, s.sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Name, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
