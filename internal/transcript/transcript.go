// Package transcript keeps an append-only audit log of committed chat messages.
// The SQLite database is opened when a path is configured and created on first use.
// If opening the DB or executing queries fails, the store falls back to in-memory storage.
// Entries are never read back into a conversation.
package transcript

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/dialchat-go/internal/logger"
)

// Entry is one recorded message.
type Entry struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Deployment string    `json:"deployment"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store records entries in SQLite when available and always keeps an in-memory copy.
type Store struct {
	mu      sync.Mutex
	entries []Entry
	db      *sql.DB
}

// Open returns a store backed by the SQLite file at path. An empty path keeps entries in memory only.
func Open(path string) *Store {
	s := &Store{}
	if path == "" {
		return s
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_busy_timeout=10000&_fk=1")
	if err != nil {
		logger.L.Warn("sqlite open failed; using in-memory transcript", "error", err)
		return s
	}
	if _, err = db.Exec(`CREATE TABLE IF NOT EXISTS messages (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT,
        deployment TEXT,
        role TEXT,
        content TEXT,
        created_at DATETIME
    );`); err != nil {
		logger.L.Warn("sqlite table creation failed; using in-memory transcript", "error", err)
		_ = db.Close()
		return s
	}
	logger.L.Info("sqlite transcript initialized", "path", path)
	s.db = db
	return s
}

// Persistent reports whether entries reach SQLite.
func (s *Store) Persistent() bool { return s.db != nil }

// Save records e. A failing insert is logged and the in-memory copy kept.
func (s *Store) Save(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if s.db != nil {
		res, err := s.db.ExecContext(ctx, `INSERT INTO messages (session_id, deployment, role, content, created_at) VALUES (?,?,?,?,?);`,
			e.SessionID, e.Deployment, e.Role, e.Content, e.CreatedAt)
		if err != nil {
			logger.L.Error("failed to store message in sqlite; falling back to memory", "error", err)
		} else if id, err := res.LastInsertId(); err == nil {
			e.ID = id
		}
	}

	s.mu.Lock()
	if e.ID == 0 {
		e.ID = int64(len(s.entries) + 1)
	}
	s.entries = append(s.entries, e)
	s.mu.Unlock()
	return nil
}

// List returns all entries of a session in chronological order.
func (s *Store) List(ctx context.Context, sessionID string) ([]Entry, error) {
	if s.db != nil {
		rows, err := s.db.QueryContext(ctx, `SELECT id, session_id, deployment, role, content, created_at FROM messages WHERE session_id = ? ORDER BY id ASC;`, sessionID)
		if err == nil {
			defer rows.Close()
			var out []Entry
			for rows.Next() {
				var e Entry
				if err := rows.Scan(&e.ID, &e.SessionID, &e.Deployment, &e.Role, &e.Content, &e.CreatedAt); err != nil {
					return nil, err
				}
				out = append(out, e)
			}
			return out, rows.Err()
		}
		logger.L.Warn("sqlite query failed; reading in-memory transcript", "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for _, e := range s.entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Sessions returns the recorded session IDs, oldest first.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	if s.db != nil {
		rows, err := s.db.QueryContext(ctx, `SELECT session_id FROM messages GROUP BY session_id ORDER BY MIN(id) ASC;`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return nil, err
			}
			out = append(out, id)
		}
		return out, rows.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, e := range s.entries {
		if !seen[e.SessionID] {
			seen[e.SessionID] = true
			out = append(out, e.SessionID)
		}
	}
	return out, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
