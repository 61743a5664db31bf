// Package state is the durable key/value memento store extensions reach
// over RPC. Values are opaque JSON, namespaced per plugin.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultMaxValueBytes caps a single memento value.
const DefaultMaxValueBytes = 1 << 20 // 1 MiB

type Store struct {
	db       *sql.DB
	maxValue int
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:       db,
		maxValue: DefaultMaxValueBytes,
	}
}

// Get returns the stored value for (plugin, key), or JSON null if absent.
func (s *Store) Get(ctx context.Context, plugin, key string) (json.RawMessage, error) {
	if plugin == "" {
		return nil, fmt.Errorf("plugin id is empty")
	}
	if key == "" {
		return nil, fmt.Errorf("key is empty")
	}

	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM plugin_memento WHERE plugin_id = ? AND key = ?;", plugin, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return json.RawMessage(`null`), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read memento: %w", err)
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("stored memento is invalid JSON for plugin=%q key=%q", plugin, key)
	}
	return json.RawMessage(raw), nil
}

// Set stores value under (plugin, key). A JSON null (or empty) value
// deletes the entry.
func (s *Store) Set(ctx context.Context, plugin, key string, value json.RawMessage) error {
	if plugin == "" {
		return fmt.Errorf("plugin id is empty")
	}
	if key == "" {
		return fmt.Errorf("key is empty")
	}

	if len(value) == 0 || string(value) == "null" {
		_, err := s.db.ExecContext(ctx,
			"DELETE FROM plugin_memento WHERE plugin_id = ? AND key = ?;", plugin, key)
		if err != nil {
			return fmt.Errorf("delete memento: %w", err)
		}
		return nil
	}

	if !json.Valid(value) {
		return fmt.Errorf("memento value is not valid JSON")
	}
	if len(value) > s.maxValue {
		return fmt.Errorf("memento value exceeds max size (%d bytes)", s.maxValue)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO plugin_memento(plugin_id, key, value, updated_at)
VALUES(?, ?, ?, ?)
ON CONFLICT(plugin_id, key) DO UPDATE SET
  value = excluded.value,
  updated_at = excluded.updated_at;
`, plugin, key, string(value), now)
	if err != nil {
		return fmt.Errorf("upsert memento: %w", err)
	}
	return nil
}

// Keys lists the keys a plugin has stored, sorted.
func (s *Store) Keys(ctx context.Context, plugin string) ([]string, error) {
	if plugin == "" {
		return nil, fmt.Errorf("plugin id is empty")
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT key FROM plugin_memento WHERE plugin_id = ? ORDER BY key;", plugin)
	if err != nil {
		return nil, fmt.Errorf("list memento keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan memento key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list memento keys: %w", err)
	}
	return keys, nil
}
