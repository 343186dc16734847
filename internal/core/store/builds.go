package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roboforge/roboforge/internal/core"
)

// ErrBuildNotFound is returned when no build configuration has the given id.
var ErrBuildNotFound = errors.New("build configuration not found")

// ListBuilds returns every build configuration, newest first.
func (s *Store) ListBuilds(ctx context.Context) ([]core.BuildConfig, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, name, parts_json, created_at, updated_at
		FROM build_configs
		ORDER BY created_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	builds := make([]core.BuildConfig, 0)
	for rows.Next() {
		build, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		builds = append(builds, *build)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	return builds, nil
}

// GetBuild returns one build configuration.
func (s *Store) GetBuild(ctx context.Context, id string) (*core.BuildConfig, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT id, name, parts_json, created_at, updated_at
		FROM build_configs WHERE id = ?
	`, strings.TrimSpace(id))
	build, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBuildNotFound
	}
	return build, err
}

// CreateBuild adds an empty build configuration. A blank name becomes
// "Configuration N" where N is one more than the current count.
func (s *Store) CreateBuild(ctx context.Context, name string) (*core.BuildConfig, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	name = strings.TrimSpace(name)
	if name == "" {
		count, err := s.countBuilds(ctx)
		if err != nil {
			return nil, err
		}
		name = core.NextBuildName(count)
	}

	now := time.Now().UTC()
	build := &core.BuildConfig{
		ID:        uuid.NewString(),
		Name:      name,
		Parts:     []core.Part{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO build_configs (id, name, parts_json, created_at, updated_at)
		VALUES (?, ?, '[]', ?, ?)
	`, build.ID, build.Name, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("create build: %w", err)
	}
	return build, nil
}

// EnsureDefaultBuild seeds "My Robot" the first time the store is used.
// Deleting every build afterwards leaves the list empty.
func (s *Store) EnsureDefaultBuild(ctx context.Context) (*core.BuildConfig, error) {
	seeded, err := s.GetMeta(ctx, MetaDefaultBuild)
	if err != nil {
		return nil, err
	}
	if seeded != "" {
		return nil, nil
	}

	count, err := s.countBuilds(ctx)
	if err != nil {
		return nil, err
	}

	var build *core.BuildConfig
	if count == 0 {
		build, err = s.CreateBuild(ctx, core.DefaultBuildName)
		if err != nil {
			return nil, err
		}
	}
	if err := s.SetMeta(ctx, MetaDefaultBuild, "true"); err != nil {
		return nil, err
	}
	return build, nil
}

// RenameBuild changes a build's name.
func (s *Store) RenameBuild(ctx context.Context, id, name string) (*core.BuildConfig, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("build name is required")
	}
	return s.updateBuild(ctx, id, func(b *core.BuildConfig) {
		b.Name = name
	})
}

// DeleteBuild removes a build configuration.
func (s *Store) DeleteBuild(ctx context.Context, id string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM build_configs WHERE id = ?`, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("delete build: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrBuildNotFound
	}
	return nil
}

// AddPart appends a part to a build.
func (s *Store) AddPart(ctx context.Context, id string, part core.Part) (*core.BuildConfig, error) {
	if strings.TrimSpace(part.MPN) == "" && strings.TrimSpace(part.Name) == "" {
		return nil, errors.New("part mpn or name is required")
	}
	return s.updateBuild(ctx, id, func(b *core.BuildConfig) {
		b.Parts = append(b.Parts, part)
	})
}

// RemovePart drops the part at index. An out-of-range index leaves the
// build unchanged.
func (s *Store) RemovePart(ctx context.Context, id string, index int) (*core.BuildConfig, error) {
	return s.updateBuild(ctx, id, func(b *core.BuildConfig) {
		if index < 0 || index >= len(b.Parts) {
			return
		}
		b.Parts = append(b.Parts[:index:index], b.Parts[index+1:]...)
	})
}

func (s *Store) updateBuild(ctx context.Context, id string, mutate func(*core.BuildConfig)) (*core.BuildConfig, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin build update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, name, parts_json, created_at, updated_at
		FROM build_configs WHERE id = ?
	`, strings.TrimSpace(id))
	build, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBuildNotFound
	}
	if err != nil {
		return nil, err
	}
	mutate(build)
	build.UpdatedAt = time.Now().UTC()

	payload, err := json.Marshal(build.Parts)
	if err != nil {
		return nil, fmt.Errorf("marshal build parts: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE build_configs SET name = ?, parts_json = ?, updated_at = ?
		WHERE id = ?
	`, build.Name, string(payload), build.UpdatedAt.UnixMilli(), build.ID); err != nil {
		return nil, fmt.Errorf("update build: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit build update: %w", err)
	}
	return build, nil
}

func (s *Store) countBuilds(ctx context.Context) (int, error) {
	var count int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM build_configs`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count builds: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBuild(row rowScanner) (*core.BuildConfig, error) {
	var (
		build     core.BuildConfig
		partsJSON string
		created   int64
		updated   int64
	)
	if err := row.Scan(&build.ID, &build.Name, &partsJSON, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan build: %w", err)
	}

	build.Parts = []core.Part{}
	if strings.TrimSpace(partsJSON) != "" {
		if err := json.Unmarshal([]byte(partsJSON), &build.Parts); err != nil {
			return nil, fmt.Errorf("decode build parts: %w", err)
		}
	}
	build.CreatedAt = time.UnixMilli(created).UTC()
	build.UpdatedAt = time.UnixMilli(updated).UTC()
	return &build, nil
}
