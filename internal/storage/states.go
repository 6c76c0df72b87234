package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/KevinKickass/IOLinkBridge/internal/state"
	"github.com/jackc/pgx/v5"
)

const upsertStateSQL = `
	INSERT INTO iolink_states (key, value, ack, updated_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (key)
	DO UPDATE SET
		value = EXCLUDED.value,
		ack = EXCLUDED.ack,
		updated_at = NOW()
`

// StateStore persists the state tree in PostgreSQL
type StateStore struct {
	db *PostgresClient
}

func NewStateStore(db *PostgresClient) *StateStore {
	return &StateStore{db: db}
}

// DeclareObject inserts the object unless it already exists
func (s *StateStore) DeclareObject(ctx context.Context, meta state.Meta) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal meta: %w", err)
	}

	_, err = s.db.pool.Exec(ctx, `
		INSERT INTO iolink_objects (key, name, object_type, meta)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO NOTHING
	`, meta.Key, meta.Name, string(meta.Type), metaJSON)
	if err != nil {
		return fmt.Errorf("failed to declare object %s: %w", meta.Key, err)
	}

	return nil
}

// SetState upserts the current value of key
func (s *StateStore) SetState(ctx context.Context, key string, value interface{}, ack bool) error {
	valueJSON, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	_, err = s.db.pool.Exec(ctx, upsertStateSQL, key, valueJSON, ack)
	if err != nil {
		return fmt.Errorf("failed to set state %s: %w", key, err)
	}

	return nil
}

// SetStates upserts all states in one transaction
func (s *StateStore) SetStates(ctx context.Context, states []state.State) error {
	values := make([][]byte, len(states))
	for i, st := range states {
		valueJSON, err := json.Marshal(st.Value)
		if err != nil {
			return fmt.Errorf("failed to marshal value of %s: %w", st.Key, err)
		}
		values[i] = valueJSON
	}

	tx, err := s.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, st := range states {
		_, err := tx.Exec(ctx, upsertStateSQL, st.Key, values[i], st.Ack)
		if err != nil {
			return fmt.Errorf("failed to set state %s: %w", st.Key, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit states: %w", err)
	}
	return nil
}

// GetState loads the current value of key
func (s *StateStore) GetState(ctx context.Context, key string) (*state.State, error) {
	var row StateRow
	err := s.db.pool.QueryRow(ctx, `
		SELECT key, value, ack, updated_at
		FROM iolink_states
		WHERE key = $1
	`, key).Scan(&row.Key, &row.Value, &row.Ack, &row.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state %s: %w", key, err)
	}

	return row.toState()
}

// ListStates loads all states ordered by key
func (s *StateStore) ListStates(ctx context.Context) ([]state.State, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT key, value, ack, updated_at
		FROM iolink_states
		ORDER BY key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query states: %w", err)
	}
	defer rows.Close()

	states := make([]state.State, 0)
	for rows.Next() {
		var row StateRow
		if err := rows.Scan(&row.Key, &row.Value, &row.Ack, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan state: %w", err)
		}
		st, err := row.toState()
		if err != nil {
			return nil, err
		}
		states = append(states, *st)
	}

	return states, rows.Err()
}

func (r StateRow) toState() (*state.State, error) {
	st := &state.State{
		Key:       r.Key,
		Ack:       r.Ack,
		Timestamp: r.UpdatedAt,
	}
	if len(r.Value) > 0 {
		if err := json.Unmarshal(r.Value, &st.Value); err != nil {
			return nil, fmt.Errorf("failed to unmarshal state %s: %w", r.Key, err)
		}
	}
	return st, nil
}

// ListObjects loads all declared objects
func (s *StateStore) ListObjects(ctx context.Context) ([]state.Meta, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT key, name, object_type, meta, created_at
		FROM iolink_objects
		ORDER BY key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query objects: %w", err)
	}
	defer rows.Close()

	objects := make([]state.Meta, 0)
	for rows.Next() {
		var row ObjectRow
		if err := rows.Scan(&row.Key, &row.Name, &row.ObjectType, &row.Meta, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan object: %w", err)
		}
		meta, err := row.toMeta()
		if err != nil {
			return nil, err
		}
		objects = append(objects, meta)
	}

	return objects, rows.Err()
}

func (r ObjectRow) toMeta() (state.Meta, error) {
	var meta state.Meta
	if len(r.Meta) > 0 {
		if err := json.Unmarshal(r.Meta, &meta); err != nil {
			return state.Meta{}, fmt.Errorf("failed to unmarshal object %s: %w", r.Key, err)
		}
	}
	// Spalten gewinnen gegen das JSON
	meta.Key = r.Key
	meta.Name = r.Name
	meta.Type = state.ObjectType(r.ObjectType)
	return meta, nil
}
