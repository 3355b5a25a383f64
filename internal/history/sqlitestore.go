package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	conversation_id TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS messages (
	conversation_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	message_conversation_id TEXT NOT NULL DEFAULT '',
	author_id TEXT NOT NULL,
	content TEXT NOT NULL,
	attachments TEXT NOT NULL DEFAULT '[]',
	timestamp TEXT NOT NULL,
	PRIMARY KEY (conversation_id, seq)
);`

// SQLiteStore keeps the snapshot in a single SQLite file. Each Save replaces
// the stored snapshot inside one transaction. The snapshot key and each
// message's own ConversationID are stored separately, and conversations with
// an empty history are kept.
type SQLiteStore struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) open() (*sql.DB, error) {
	if s.db != nil {
		return s.db, nil
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite3", s.path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db at %s: %w", s.path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db at %s: %w", s.path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	s.db = db
	return db, nil
}

func (s *SQLiteStore) Load() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotExist
		}
	}
	db, err := s.open()
	if err != nil {
		return nil, readErr(s.path, err)
	}

	snap := Snapshot{}
	if err := loadConversations(db, snap); err != nil {
		return nil, readErr(s.path, err)
	}

	rows, err := db.Query(`SELECT conversation_id, message_conversation_id, author_id, content, attachments, timestamp
		FROM messages ORDER BY conversation_id, seq`)
	if err != nil {
		return nil, readErr(s.path, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key  string
			m    Message
			atts string
		)
		if err := rows.Scan(&key, &m.ConversationID, &m.AuthorID, &m.Content, &atts, &m.Timestamp); err != nil {
			return nil, readErr(s.path, err)
		}
		if err := json.Unmarshal([]byte(atts), &m.Attachments); err != nil {
			return nil, &ParseError{Path: s.path, Err: fmt.Errorf("attachments of %s: %w", key, err)}
		}
		if len(m.Attachments) == 0 {
			m.Attachments = nil
		}
		snap[key] = append(snap[key], m)
	}
	if err := rows.Err(); err != nil {
		return nil, readErr(s.path, err)
	}
	return snap, nil
}

func loadConversations(db *sql.DB, snap Snapshot) error {
	rows, err := db.Query(`SELECT conversation_id FROM conversations`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		snap[id] = []Message{}
	}
	return rows.Err()
}

func (s *SQLiteStore) Save(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.open()
	if err != nil {
		return writeErr(s.path, err)
	}
	tx, err := db.Begin()
	if err != nil {
		return writeErr(s.path, err)
	}
	if err := replaceSnapshot(tx, snap); err != nil {
		_ = tx.Rollback()
		return writeErr(s.path, err)
	}
	if err := tx.Commit(); err != nil {
		return writeErr(s.path, err)
	}
	return nil
}

func replaceSnapshot(tx *sql.Tx, snap Snapshot) error {
	if _, err := tx.Exec(`DELETE FROM messages`); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM conversations`); err != nil {
		return fmt.Errorf("clear conversations: %w", err)
	}
	convStmt, err := tx.Prepare(`INSERT INTO conversations (conversation_id) VALUES (?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer convStmt.Close()
	stmt, err := tx.Prepare(`INSERT INTO messages
		(conversation_id, seq, message_conversation_id, author_id, content, attachments, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for conv, msgs := range snap {
		if _, err := convStmt.Exec(conv); err != nil {
			return fmt.Errorf("insert conversation %s: %w", conv, err)
		}
		for i, m := range msgs {
			atts := m.Attachments
			if atts == nil {
				atts = []json.RawMessage{}
			}
			data, err := json.Marshal(atts)
			if err != nil {
				return fmt.Errorf("marshal attachments: %w", err)
			}
			if _, err := stmt.Exec(conv, i, m.ConversationID, m.AuthorID, m.Content, string(data), m.Timestamp); err != nil {
				return fmt.Errorf("insert message %s/%d: %w", conv, i, err)
			}
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
