package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roboforge/roboforge/internal/core"
)

// PartsCacheEntry is a cached parts-search response.
type PartsCacheEntry struct {
	Data      json.RawMessage `json:"data"`
	Parts     []core.Part     `json:"parts"`
	CheckedAt time.Time       `json:"-"`
	ExpiresAt time.Time       `json:"-"`
}

func normalizeQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// GetPartsSearch returns a cached search response if it is still valid.
func (s *Store) GetPartsSearch(ctx context.Context, query string) (*PartsCacheEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key := normalizeQuery(query)
	if key == "" {
		return nil, errors.New("cache query is required")
	}

	var (
		payload   string
		checkedAt int64
		expiresAt int64
	)
	row := s.DB.QueryRowContext(ctx, `
		SELECT response_json, checked_at, expires_at
		FROM parts_cache
		WHERE query = ? AND expires_at > ?
	`, key, time.Now().UTC().Unix())
	if err := row.Scan(&payload, &checkedAt, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch cached parts search: %w", err)
	}

	entry := &PartsCacheEntry{}
	if err := json.Unmarshal([]byte(payload), entry); err != nil {
		return nil, fmt.Errorf("decode cached parts search: %w", err)
	}
	entry.CheckedAt = time.Unix(checkedAt, 0).UTC()
	entry.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	return entry, nil
}

// SetPartsSearch stores a search response with a TTL.
func (s *Store) SetPartsSearch(ctx context.Context, query string, data json.RawMessage, parts []core.Part, ttl time.Duration) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ttl <= 0 {
		return nil
	}

	key := normalizeQuery(query)
	if key == "" {
		return errors.New("cache query is required")
	}

	payload, err := json.Marshal(PartsCacheEntry{Data: data, Parts: parts})
	if err != nil {
		return fmt.Errorf("encode cached parts search: %w", err)
	}

	now := time.Now().UTC()
	expires := now.Add(ttl)

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO parts_cache (query, response_json, checked_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(query) DO UPDATE SET
			response_json = excluded.response_json,
			checked_at = excluded.checked_at,
			expires_at = excluded.expires_at
	`, key, string(payload), now.Unix(), expires.Unix())
	if err != nil {
		return fmt.Errorf("store cached parts search: %w", err)
	}
	return nil
}

// PurgeExpired deletes expired rows from both caches and reports how many
// rows went.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := time.Now().UTC().Unix()
	var total int64
	for _, table := range []string{"parts_cache", "generation_cache"} {
		res, err := s.DB.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE expires_at <= ?", table), now)
		if err != nil {
			return total, fmt.Errorf("purge %s: %w", table, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	return total, nil
}
