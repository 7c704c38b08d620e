package sqlite

import (
	"context"
	"fmt"
)

// SetConfig stores a key-value configuration pair in BRM_CONFIG.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	if key == "" {
		return fmt.Errorf("config key is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO BRM_CONFIG (KEY, VALUE) VALUES (?, ?)
		ON CONFLICT(KEY) DO UPDATE SET VALUE = excluded.VALUE
	`, key, value)
	return wrapDBError("set config", err)
}

// GetConfig retrieves a configuration value. Missing keys wrap
// storage.ErrNotFound.
func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT VALUE FROM BRM_CONFIG WHERE KEY = ?`, key).Scan(&value)
	if err != nil {
		return "", wrapDBError(fmt.Sprintf("get config %s", key), err)
	}
	return value, nil
}

// GetAllConfig returns every stored key-value pair.
func (s *Store) GetAllConfig(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT KEY, VALUE FROM BRM_CONFIG`)
	if err != nil {
		return nil, wrapDBError("list config", err)
	}
	defer rows.Close()

	cfg := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, wrapDBError("scan config", err)
		}
		cfg[key] = value
	}
	return cfg, wrapDBError("list config", rows.Err())
}

// DeleteConfig removes a stored key. Deleting an absent key is not an error.
func (s *Store) DeleteConfig(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM BRM_CONFIG WHERE KEY = ?`, key)
	return wrapDBError("delete config", err)
}
