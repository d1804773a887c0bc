// Package sqlite persists session state in a local SQLite database so
// sessions survive process restarts. Every item field and every message
// round-trips losslessly.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/engramlabs/engram-go-sdk/core"
	"github.com/engramlabs/engram-go-sdk/memory"
)

// Store implements memory.Store on SQLite and additionally snapshots
// message logs. Query ranks by keyword overlap rather than vector
// similarity; pair it with the chromem store when semantic search
// matters.
type Store struct {
	db *sql.DB
}

// New opens or creates the database at dbPath.
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		session_id       TEXT NOT NULL,
		id               TEXT NOT NULL,
		content          TEXT NOT NULL,
		context          TEXT NOT NULL DEFAULT '',
		type             TEXT NOT NULL,
		importance       REAL NOT NULL DEFAULT 0.5,
		created_at       TEXT NOT NULL,
		last_accessed_at TEXT,
		access_count     INTEGER NOT NULL DEFAULT 0,
		is_summary       INTEGER NOT NULL DEFAULT 0,
		source_ids       TEXT,
		original_content TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (session_id, id)
	);
	CREATE INDEX IF NOT EXISTS idx_items_session_type ON items(session_id, type);
	CREATE INDEX IF NOT EXISTS idx_items_created ON items(created_at DESC);

	CREATE TABLE IF NOT EXISTS messages (
		session_id TEXT NOT NULL,
		seq        INTEGER NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		timestamp  TEXT NOT NULL,
		PRIMARY KEY (session_id, seq)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Upsert writes an item, replacing any row with the same id.
func (s *Store) Upsert(ctx context.Context, sessionID string, item *memory.Item) error {
	var lastAccessed *string
	if item.LastAccessedAt != nil {
		v := item.LastAccessedAt.Format(time.RFC3339Nano)
		lastAccessed = &v
	}
	var sourceIDs *string
	if len(item.SourceIDs) > 0 {
		b, err := json.Marshal(item.SourceIDs)
		if err != nil {
			return fmt.Errorf("marshal source ids: %w", err)
		}
		v := string(b)
		sourceIDs = &v
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO items (session_id, id, content, context, type, importance,
		                    created_at, last_accessed_at, access_count, is_summary,
		                    source_ids, original_content)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, id) DO UPDATE SET
		   content = excluded.content,
		   context = excluded.context,
		   type = excluded.type,
		   importance = excluded.importance,
		   created_at = excluded.created_at,
		   last_accessed_at = excluded.last_accessed_at,
		   access_count = excluded.access_count,
		   is_summary = excluded.is_summary,
		   source_ids = excluded.source_ids,
		   original_content = excluded.original_content`,
		sessionID, item.ID, item.Content, item.Context, string(item.Type), item.Importance,
		item.CreatedAt.Format(time.RFC3339Nano), lastAccessed, item.AccessCount,
		boolToInt(item.IsSummary), sourceIDs, item.OriginalContent)
	if err != nil {
		return fmt.Errorf("upsert item %s: %w", item.ID, err)
	}
	return nil
}

// Query loads the session's items (optionally filtered by type) and
// ranks them by keyword overlap with the query text.
func (s *Store) Query(ctx context.Context, sessionID string, query string, topK int, filter *memory.Type) ([]*memory.Item, error) {
	if topK <= 0 {
		return nil, nil
	}

	stmt := `SELECT id, content, context, type, importance, created_at,
	                last_accessed_at, access_count, is_summary, source_ids, original_content
	         FROM items WHERE session_id = ?`
	args := []interface{}{sessionID}
	if filter != nil {
		stmt += ` AND type = ?`
		args = append(args, string(*filter))
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var items []*memory.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(items, func(i, j int) bool {
		ri := memory.KeywordRelevance(query, items[i])
		rj := memory.KeywordRelevance(query, items[j])
		if ri != rj {
			return ri > rj
		}
		return items[i].ID < items[j].ID
	})
	if len(items) > topK {
		items = items[:topK]
	}
	return items, nil
}

// Delete removes items by id. Missing ids are skipped.
func (s *Store) Delete(ctx context.Context, sessionID string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM items WHERE session_id = ? AND id = ?`, sessionID, id); err != nil {
			return fmt.Errorf("delete item %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// SaveMessages replaces the session's message log with the given one.
func (s *Store) SaveMessages(ctx context.Context, sessionID string, msgs []core.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	for i, m := range msgs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (session_id, seq, role, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
			sessionID, i, string(m.Role), m.Content, m.Timestamp.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("insert message %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// LoadMessages returns the session's message log in order.
func (s *Store) LoadMessages(ctx context.Context, sessionID string) ([]core.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, timestamp FROM messages WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var msgs []core.Message
	for rows.Next() {
		var role, content, ts string
		if err := rows.Scan(&role, &content, &ts); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse message timestamp: %w", err)
		}
		msgs = append(msgs, core.Message{Role: core.Role(role), Content: content, Timestamp: t})
	}
	return msgs, rows.Err()
}

// LoadItems returns every item stored for a session, for rebuilding a
// pool after restart.
func (s *Store) LoadItems(ctx context.Context, sessionID string) ([]*memory.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, context, type, importance, created_at,
		        last_accessed_at, access_count, is_summary, source_ids, original_content
		 FROM items WHERE session_id = ? ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	defer rows.Close()

	var items []*memory.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row scanner) (*memory.Item, error) {
	var it memory.Item
	var typ, createdAt string
	var lastAccessed, sourceIDs sql.NullString
	var isSummary int

	err := row.Scan(&it.ID, &it.Content, &it.Context, &typ, &it.Importance,
		&createdAt, &lastAccessed, &it.AccessCount, &isSummary, &sourceIDs, &it.OriginalContent)
	if err != nil {
		return nil, err
	}

	it.Type = memory.Type(typ)
	it.IsSummary = isSummary != 0
	it.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at for %s: %w", it.ID, err)
	}
	if lastAccessed.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastAccessed.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_accessed_at for %s: %w", it.ID, err)
		}
		it.LastAccessedAt = &t
	}
	if sourceIDs.Valid {
		if err := json.Unmarshal([]byte(sourceIDs.String), &it.SourceIDs); err != nil {
			return nil, fmt.Errorf("parse source_ids for %s: %w", it.ID, err)
		}
	}
	return &it, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
