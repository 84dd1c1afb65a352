// Package history is a local, disposable archive of confirmed chat state.
// It lets the CLI browse and export transcripts without a network round
// trip; the backend stays the source of truth and the archive can be purged
// and rebuilt at any time. Optimistic (unconfirmed) messages are never
// written here.
package history

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/imunoz/finsight/internal/api"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding archived conversations and messages.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the archive database in dataDir and applies pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "history.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// ArchiveConversations upserts conversation summaries. It implements
// chat.Archiver.
func (s *Store) ArchiveConversations(convs []api.Conversation) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, c := range convs {
		if _, err := tx.Exec(`INSERT INTO conversations (id, title, created_at, updated_at, message_count)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				updated_at = excluded.updated_at,
				message_count = excluded.message_count`,
			c.ID, c.Title, c.CreatedAt, c.UpdatedAt, c.MessageCount); err != nil {
			tx.Rollback()
			return fmt.Errorf("upserting conversation %d: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// ArchiveMessages inserts confirmed messages, ignoring ones already stored.
// It implements chat.Archiver.
func (s *Store) ArchiveMessages(msgs []api.Message) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if m.ID <= 0 {
			// Only server-assigned ids belong in the archive.
			continue
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO messages (id, conversation_id, role, content, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			m.ID, m.ConversationID, m.Role, m.Content, m.CreatedAt); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting message %d: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// Conversations returns all archived conversation summaries, most recently
// updated first.
func (s *Store) Conversations() ([]api.Conversation, error) {
	rows, err := s.db.Query(`SELECT id, title, created_at, updated_at, message_count
		FROM conversations ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.Conversation
	for rows.Next() {
		var c api.Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt, &c.MessageCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Messages returns the archived messages of one conversation in id order.
func (s *Store) Messages(conversationID int) ([]api.Message, error) {
	rows, err := s.db.Query(`SELECT id, conversation_id, role, content, created_at
		FROM messages WHERE conversation_id = ? ORDER BY id ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// RecentMessages returns the newest limit messages across all conversations,
// oldest first.
func (s *Store) RecentMessages(limit int) ([]api.Message, error) {
	rows, err := s.db.Query(`SELECT id, conversation_id, role, content, created_at FROM (
			SELECT id, conversation_id, role, content, created_at
			FROM messages ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// SearchMessages returns archived messages whose content contains term,
// newest first.
func (s *Store) SearchMessages(term string, limit int) ([]api.Message, error) {
	rows, err := s.db.Query(`SELECT id, conversation_id, role, content, created_at
		FROM messages WHERE content LIKE ? ORDER BY id DESC LIMIT ?`,
		"%"+term+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Purge deletes all archived data, keeping the schema.
func (s *Store) Purge() error {
	if _, err := s.db.Exec("DELETE FROM messages"); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM conversations")
	return err
}

func scanMessages(rows *sql.Rows) ([]api.Message, error) {
	var out []api.Message
	for rows.Next() {
		var m api.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
