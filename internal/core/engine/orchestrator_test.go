package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roboforge/roboforge/internal/ailink"
	"github.com/roboforge/roboforge/internal/ailink/driver"
	"github.com/roboforge/roboforge/internal/ailink/prompt"
	"github.com/roboforge/roboforge/internal/core/store"
)

type stubGenerator struct {
	prompts  prompt.Registry
	mu       sync.Mutex
	seen     []ailink.Artifact
	fail     map[ailink.Artifact]error
	imageErr error
}

func (s *stubGenerator) GenerateArtifact(ctx context.Context, a ailink.Artifact, description, imageURL string, parts []string) (*ailink.GenerateResponse, error) {
	s.mu.Lock()
	s.seen = append(s.seen, a)
	s.mu.Unlock()

	if err := s.fail[a]; err != nil {
		return nil, err
	}
	body := string(a) + ":" + description
	if a == ailink.ArtifactParts {
		body = "category,name,mpn,qty,price_eur,supplier,url,specs\nSensors,Ultrasonic,HC-SR04,2,3.50,SOS,https://x,5V\n"
	}
	resp := &ailink.GenerateResponse{Content: body, Format: "text", Attempts: 1}
	if s.prompts != nil {
		def, err := s.prompts.Get(a.PromptSlug())
		if err != nil {
			return nil, err
		}
		resp.Format = def.Config.Output.Format
		resp.Extension = def.Config.Output.Extension
	}
	return resp, nil
}

func (s *stubGenerator) GenerateRobotImage(ctx context.Context, description string) (*ailink.ImageResult, error) {
	if s.imageErr != nil {
		return nil, s.imageErr
	}
	return &ailink.ImageResult{URL: "https://img.example/robot.png", RobotType: "vehicle"}, nil
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]string
	writes  int
}

func (m *memoryCache) GetGeneration(ctx context.Context, slug, model, hash string) (*store.GenerationCacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.entries[slug+"|"+model+"|"+hash]; ok {
		return &store.GenerationCacheEntry{Content: v, Attempts: 1}, nil
	}
	return nil, nil
}

func (m *memoryCache) SetGeneration(ctx context.Context, slug, model, hash, content string, attempts int, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = map[string]string{}
	}
	m.entries[slug+"|"+model+"|"+hash] = content
	m.writes++
	return nil
}

func TestForgeRunsEveryArtifact(t *testing.T) {
	gen := &stubGenerator{}
	o := &Orchestrator{Generator: gen}

	result, err := o.Forge(context.Background(), ForgeRequest{Description: "line follower", IncludeImage: true})
	require.NoError(t, err)

	require.Len(t, result.Artifacts, len(ailink.TextArtifacts))
	for i, a := range ailink.TextArtifacts {
		assert.Equal(t, a, result.Artifacts[i].Artifact)
		assert.Nil(t, result.Artifacts[i].Error)
	}
	assert.Equal(t, "code:line follower", result.Artifact(ailink.ArtifactCode).Content)
	require.Len(t, result.PartsList, 1)
	assert.Equal(t, "HC-SR04", result.PartsList[0].MPN)
	require.NotNil(t, result.Image)
	assert.Equal(t, 0, result.Failed())
	assert.ElementsMatch(t, ailink.TextArtifacts, gen.seen)
}

func TestForgeFoldsFailuresIntoPlaceholders(t *testing.T) {
	gen := &stubGenerator{
		fail: map[ailink.Artifact]error{
			ailink.ArtifactCode: &driver.ProviderError{Provider: "openai", Kind: driver.KindRetriesExhausted, Message: "no successful response after 3 attempts: overloaded"},
		},
		imageErr: &driver.ProviderError{Provider: "openai", Kind: driver.KindInvalidCredential, StatusCode: 401, Message: "invalid credential"},
	}
	o := &Orchestrator{Generator: gen}

	result, err := o.Forge(context.Background(), ForgeRequest{
		Description:  "sumo bot",
		Artifacts:    []ailink.Artifact{ailink.ArtifactCode, ailink.ArtifactCircuit},
		IncludeImage: true,
	})
	require.NoError(t, err)

	code := result.Artifact(ailink.ArtifactCode)
	require.NotNil(t, code)
	require.NotNil(t, code.Error)
	assert.Equal(t, ailink.CodeExhausted, code.Error.Code)
	assert.True(t, strings.HasPrefix(code.Content, "// Error: "))
	assert.Contains(t, code.Content, "overloaded")

	assert.Nil(t, result.Artifact(ailink.ArtifactCircuit).Error)
	require.NotNil(t, result.ImageError)
	assert.Equal(t, ailink.CodeAuth, result.ImageError.Code)
	assert.Nil(t, result.Image)
	assert.Equal(t, 2, result.Failed())
}

func TestForgeDescriptionFallback(t *testing.T) {
	o := &Orchestrator{Generator: &stubGenerator{}}

	result, err := o.Forge(context.Background(), ForgeRequest{
		Parts:     []string{"Arduino Uno", "L298N"},
		Artifacts: []ailink.Artifact{ailink.ArtifactCode},
	})
	require.NoError(t, err)
	assert.Equal(t, "Robot with 2 parts", result.Description)

	_, err = o.Forge(context.Background(), ForgeRequest{Description: "  "})
	require.Error(t, err)
}

func TestForgeRejectsNonTextArtifact(t *testing.T) {
	o := &Orchestrator{Generator: &stubGenerator{}}
	_, err := o.Forge(context.Background(), ForgeRequest{Description: "x", Artifacts: []ailink.Artifact{ailink.ArtifactImage}})
	require.Error(t, err)
}

func TestForgeUsesCache(t *testing.T) {
	gen := &stubGenerator{}
	cache := &memoryCache{}
	o := &Orchestrator{Generator: gen, Cache: cache, CacheTTL: time.Hour, Model: "gpt-4o", Workers: 1}
	req := ForgeRequest{Description: "rover", Artifacts: []ailink.Artifact{ailink.ArtifactCode}}

	first, err := o.Forge(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Artifacts[0].Cached)

	second, err := o.Forge(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Artifacts[0].Cached)
	assert.Equal(t, first.Artifacts[0].Content, second.Artifacts[0].Content)

	assert.Len(t, gen.seen, 1)
	assert.Equal(t, 1, cache.writes)
}

func TestForgeCachedResultKeepsFormat(t *testing.T) {
	registry, err := prompt.DefaultRegistry()
	require.NoError(t, err)

	gen := &stubGenerator{prompts: registry}
	o := &Orchestrator{Generator: gen, Prompts: registry, Cache: &memoryCache{}, CacheTTL: time.Hour, Model: "gpt-4o"}
	req := ForgeRequest{Description: "rover", Artifacts: []ailink.Artifact{ailink.ArtifactCode}}

	fresh, err := o.Forge(context.Background(), req)
	require.NoError(t, err)
	cached, err := o.Forge(context.Background(), req)
	require.NoError(t, err)

	require.True(t, cached.Artifacts[0].Cached)
	assert.Equal(t, "ino", fresh.Artifacts[0].Format)
	assert.Equal(t, ".ino", fresh.Artifacts[0].Extension)
	assert.Equal(t, fresh.Artifacts[0].Format, cached.Artifacts[0].Format)
	assert.Equal(t, fresh.Artifacts[0].Extension, cached.Artifacts[0].Extension)
}

func TestForgeClock(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	o := &Orchestrator{Generator: &stubGenerator{}, Clock: func() time.Time { return fixed }}

	result, err := o.Forge(context.Background(), ForgeRequest{Description: "x", Artifacts: []ailink.Artifact{ailink.ArtifactModel}})
	require.NoError(t, err)
	assert.Equal(t, fixed, result.StartedAt)
	assert.Equal(t, fixed, result.FinishedAt)
}
