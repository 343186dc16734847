package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/roboforge/roboforge/internal/ailink"
	"github.com/roboforge/roboforge/internal/ailink/prompt"
	"github.com/roboforge/roboforge/internal/core"
	"github.com/roboforge/roboforge/internal/core/store"
	"github.com/roboforge/roboforge/internal/metrics"
)

// Generator produces forge artifacts. *ailink.Service satisfies it.
type Generator interface {
	GenerateArtifact(ctx context.Context, artifact ailink.Artifact, description, imageURL string, parts []string) (*ailink.GenerateResponse, error)
	GenerateRobotImage(ctx context.Context, description string) (*ailink.ImageResult, error)
}

// Cache stores generated artifacts. *store.Store satisfies it.
type Cache interface {
	GetGeneration(ctx context.Context, promptSlug, model, inputHash string) (*store.GenerationCacheEntry, error)
	SetGeneration(ctx context.Context, promptSlug, model, inputHash, content string, attempts int, ttl time.Duration) error
}

// Orchestrator runs a full forge for one description.
type Orchestrator struct {
	Generator Generator
	Cache     Cache
	CacheTTL  time.Duration
	// Prompts describes artifact formats for results served from Cache.
	Prompts prompt.Registry
	// Model only keys the cache; the generator chooses the model it sends.
	Model   string
	Workers int
	Logger  *logging.Logger
	Clock   func() time.Time
}

// ForgeRequest selects what a forge run produces.
type ForgeRequest struct {
	Description string   `json:"description"`
	ImageURL    string   `json:"image_url,omitempty"`
	Parts       []string `json:"parts,omitempty"`
	// Artifacts defaults to ailink.TextArtifacts.
	Artifacts    []ailink.Artifact `json:"artifacts,omitempty"`
	IncludeImage bool              `json:"include_image"`
}

// ArtifactResult is one forge output. Content holds a placeholder when Error is set.
type ArtifactResult struct {
	Artifact  ailink.Artifact         `json:"artifact"`
	Content   string                  `json:"content"`
	Format    string                  `json:"format,omitempty"`
	Extension string                  `json:"extension,omitempty"`
	Attempts  int                     `json:"attempts,omitempty"`
	Cached    bool                    `json:"cached,omitempty"`
	Elapsed   time.Duration           `json:"elapsed_ns"`
	Error     *ailink.GenerationError `json:"error,omitempty"`
}

// ForgeResult collects every output of one run, in request order.
type ForgeResult struct {
	Description string                  `json:"description"`
	StartedAt   time.Time               `json:"started_at"`
	FinishedAt  time.Time               `json:"finished_at"`
	Artifacts   []ArtifactResult        `json:"artifacts"`
	PartsList   []core.PartsListItem    `json:"parts_list,omitempty"`
	Image       *ailink.ImageResult     `json:"image,omitempty"`
	ImageError  *ailink.GenerationError `json:"image_error,omitempty"`
}

// Artifact returns the result for a, or nil.
func (r *ForgeResult) Artifact(a ailink.Artifact) *ArtifactResult {
	if r == nil {
		return nil
	}
	for i := range r.Artifacts {
		if r.Artifacts[i].Artifact == a {
			return &r.Artifacts[i]
		}
	}
	return nil
}

// Failed reports how many outputs carry an error.
func (r *ForgeResult) Failed() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, a := range r.Artifacts {
		if a.Error != nil {
			n++
		}
	}
	if r.ImageError != nil {
		n++
	}
	return n
}

// ResolveDescription falls back to "Robot with N parts" when only parts are given.
func ResolveDescription(description string, parts []string) (string, error) {
	description = strings.TrimSpace(description)
	if description != "" {
		return description, nil
	}
	if n := len(parts); n > 0 {
		return fmt.Sprintf("Robot with %d parts", n), nil
	}
	return "", errors.New("description is required")
}

// Forge runs every requested artifact concurrently. Individual failures are
// folded into the result as placeholders; only invalid input returns an error.
func (o *Orchestrator) Forge(ctx context.Context, req ForgeRequest) (*ForgeResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if o == nil || o.Generator == nil {
		return nil, errors.New("forge generator not configured")
	}

	description, err := ResolveDescription(req.Description, req.Parts)
	if err != nil {
		return nil, err
	}

	artifacts := req.Artifacts
	if len(artifacts) == 0 {
		artifacts = ailink.TextArtifacts
	}
	for _, a := range artifacts {
		if a.PromptSlug() == "" {
			return nil, fmt.Errorf("artifact %q cannot be forged as text", a)
		}
	}

	result := &ForgeResult{
		Description: description,
		StartedAt:   o.now(),
		Artifacts:   make([]ArtifactResult, len(artifacts)),
	}

	workers := o.Workers
	if workers <= 0 || workers > len(artifacts)+1 {
		workers = len(artifacts) + 1
	}
	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup
	for i, a := range artifacts {
		wg.Add(1)
		go func(i int, a ailink.Artifact) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			result.Artifacts[i] = o.runArtifact(ctx, a, description, req.ImageURL, req.Parts)
		}(i, a)
	}

	if req.IncludeImage {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			img, err := o.Generator.GenerateRobotImage(ctx, description)
			if err != nil {
				result.ImageError = ailink.MapError(err)
				return
			}
			result.Image = img
		}()
	}

	wg.Wait()

	if parts := result.Artifact(ailink.ArtifactParts); parts != nil && parts.Error == nil {
		items, err := core.ParsePartsListString(parts.Content)
		if err != nil {
			o.logWarn("parts list did not parse", zap.Error(err))
		}
		result.PartsList = items
	}

	result.FinishedAt = o.now()
	return result, nil
}

func (o *Orchestrator) runArtifact(ctx context.Context, a ailink.Artifact, description, imageURL string, parts []string) ArtifactResult {
	start := o.now()
	out := ArtifactResult{Artifact: a}

	key := store.GenerationKey(description, imageURL, map[string]string{"parts": strings.Join(parts, "\n")})
	if cached := o.cached(ctx, a, key); cached != nil {
		out.Content = cached.Content
		out.Format, out.Extension = o.outputFormat(a)
		out.Attempts = cached.Attempts
		out.Cached = true
		out.Elapsed = o.now().Sub(start)
		return out
	}

	resp, err := o.Generator.GenerateArtifact(ctx, a, description, imageURL, parts)
	out.Elapsed = o.now().Sub(start)
	if err != nil {
		out.Content = ailink.Placeholder(a, err)
		out.Error = ailink.MapError(err)
		return out
	}

	out.Content = resp.Content
	out.Format = resp.Format
	out.Extension = resp.Extension
	out.Attempts = resp.Attempts

	if o.Cache != nil && o.CacheTTL > 0 {
		if err := o.Cache.SetGeneration(ctx, a.PromptSlug(), o.Model, key, resp.Content, resp.Attempts, o.CacheTTL); err != nil {
			o.logWarn("generation cache write failed", zap.String("artifact", string(a)), zap.Error(err))
		}
	}
	return out
}

func (o *Orchestrator) cached(ctx context.Context, a ailink.Artifact, key string) *store.GenerationCacheEntry {
	if o.Cache == nil || o.CacheTTL <= 0 {
		return nil
	}
	entry, err := o.Cache.GetGeneration(ctx, a.PromptSlug(), o.Model, key)
	if err != nil {
		o.logWarn("generation cache read failed", zap.String("artifact", string(a)), zap.Error(err))
		return nil
	}
	metrics.RecordCacheLookup("generation", entry != nil)
	return entry
}

func (o *Orchestrator) outputFormat(a ailink.Artifact) (format, extension string) {
	if o.Prompts == nil {
		return "", ""
	}
	def, err := o.Prompts.Get(a.PromptSlug())
	if err != nil {
		o.logWarn("prompt lookup failed", zap.String("artifact", string(a)), zap.Error(err))
		return "", ""
	}
	return def.Config.Output.Format, def.Config.Output.Extension
}

func (o *Orchestrator) logWarn(msg string, fields ...zap.Field) {
	if o.Logger != nil {
		o.Logger.Warn(msg, fields...)
	}
}

func (o *Orchestrator) now() time.Time {
	if o != nil && o.Clock != nil {
		return o.Clock()
	}
	return time.Now().UTC()
}
