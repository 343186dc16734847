package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"time"
)

// GenerationCacheEntry is a cached artifact body.
type GenerationCacheEntry struct {
	Content   string
	Attempts  int
	ExpiresAt time.Time
}

// GenerationKey hashes the rendered inputs of a generation request. Variable
// order does not affect the key.
func GenerationKey(description, imageURL string, vars map[string]string) string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(description)))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(imageURL)))

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(vars[k]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// GetGeneration returns a cached artifact if present and not expired.
func (s *Store) GetGeneration(ctx context.Context, promptSlug, model, inputHash string) (*GenerationCacheEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	row := s.DB.QueryRowContext(ctx,
		`SELECT content, attempts, expires_at FROM generation_cache
		 WHERE prompt_slug = ? AND model = ? AND input_hash = ?`,
		promptSlug, model, inputHash,
	)

	var (
		content  string
		attempts int
		expires  int64
	)
	if err := row.Scan(&content, &attempts, &expires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	expiresAt := time.Unix(expires, 0).UTC()
	if time.Now().UTC().After(expiresAt) {
		return nil, nil
	}

	return &GenerationCacheEntry{Content: content, Attempts: attempts, ExpiresAt: expiresAt}, nil
}

// SetGeneration stores an artifact with TTL. A non-positive TTL is a no-op.
func (s *Store) SetGeneration(ctx context.Context, promptSlug, model, inputHash, content string, attempts int, ttl time.Duration) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ttl <= 0 {
		return nil
	}

	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO generation_cache (prompt_slug, model, input_hash, content, attempts, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(prompt_slug, model, input_hash)
		 DO UPDATE SET content = excluded.content,
		               attempts = excluded.attempts,
		               created_at = excluded.created_at,
		               expires_at = excluded.expires_at`,
		promptSlug, model, inputHash, content, attempts, now.Unix(), expiresAt.Unix(),
	)
	return err
}
