package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SchemaVersion is recorded in app_meta after every successful migration.
const SchemaVersion = "1"

// Well-known app_meta keys.
const (
	MetaSchemaVersion = "schema_version"
	MetaDefaultBuild  = "default_build_seeded"
)

// SetMeta stores a metadata key/value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO app_meta (key, value)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("store meta %s: %w", key, err)
	}
	return nil
}

// GetMeta returns a metadata value, or "" when unset.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	if s == nil || s.DB == nil {
		return "", errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var value string
	if err := s.DB.QueryRowContext(ctx, `SELECT value FROM app_meta WHERE key = ?`, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("fetch meta %s: %w", key, err)
	}
	return value, nil
}
