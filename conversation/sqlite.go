package conversation

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/bdobrica/robit/llmplanner"
)

// SQLitePersister is an alternate persistence backend for Store, grounded in
// the teacher's long-term-memory sqlite module: a single table keyed by
// (workspace_id, room_id) holding the JSON-encoded message slice, with the
// schema created on first open (migration-on-open, no separate migration
// tool). The default persistence mechanism remains the plain JSON file via
// Store.SaveToPath/LoadFromPath; this backend is for deployments that want
// conversation history alongside other sqlite-resident state.
type SQLitePersister struct {
	db *sql.DB
}

// OpenSQLitePersister opens (creating if necessary) a sqlite database at
// path and ensures its schema exists.
func OpenSQLitePersister(path string) (*SQLitePersister, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("conversation: open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			workspace_id TEXT NOT NULL,
			room_id      TEXT NOT NULL,
			messages     TEXT NOT NULL,
			PRIMARY KEY (workspace_id, room_id)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("conversation: migrate sqlite %s: %w", path, err)
	}
	return &SQLitePersister{db: db}, nil
}

// Close releases the underlying database handle.
func (p *SQLitePersister) Close() error { return p.db.Close() }

// Save writes every conversation currently held by store.
func (p *SQLitePersister) Save(store *Store) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("conversation: begin tx: %w", err)
	}
	defer tx.Rollback()

	for key, messages := range store.history {
		data, err := json.Marshal(messages)
		if err != nil {
			return fmt.Errorf("conversation: encode %v: %w", key, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO conversations (workspace_id, room_id, messages) VALUES (?, ?, ?)
			 ON CONFLICT(workspace_id, room_id) DO UPDATE SET messages = excluded.messages`,
			key.WorkspaceID, key.RoomID, string(data),
		); err != nil {
			return fmt.Errorf("conversation: upsert %v: %w", key, err)
		}
	}
	return tx.Commit()
}

// Load replaces store's in-memory history with everything persisted.
func (p *SQLitePersister) Load(store *Store) error {
	rows, err := p.db.Query(`SELECT workspace_id, room_id, messages FROM conversations`)
	if err != nil {
		return fmt.Errorf("conversation: query: %w", err)
	}
	defer rows.Close()

	loaded := make(map[Key][]byte)
	for rows.Next() {
		var workspaceID, roomID, messages string
		if err := rows.Scan(&workspaceID, &roomID, &messages); err != nil {
			return fmt.Errorf("conversation: scan: %w", err)
		}
		loaded[Key{WorkspaceID: workspaceID, RoomID: roomID}] = []byte(messages)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	store.history = make(map[Key][]llmplanner.ChatMessage, len(loaded))
	for key, data := range loaded {
		var messages []llmplanner.ChatMessage
		if err := json.Unmarshal(data, &messages); err != nil {
			return fmt.Errorf("conversation: decode %v: %w", key, err)
		}
		store.history[key] = trim(messages, store.maxMessages)
	}
	return nil
}
