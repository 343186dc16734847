package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/roboforge/roboforge/internal/ailink"
	"github.com/roboforge/roboforge/internal/core"
	"github.com/roboforge/roboforge/internal/core/engine"
	"github.com/roboforge/roboforge/internal/core/store"
	apperrors "github.com/roboforge/roboforge/internal/errors"
	"github.com/roboforge/roboforge/internal/parts"
)

// maxBodyBytes caps request bodies; parts lists and descriptions are small.
const maxBodyBytes = 1 << 20

// Generator produces single artifacts. *ailink.Service satisfies it.
type Generator interface {
	GenerateArtifact(ctx context.Context, artifact ailink.Artifact, description, imageURL string, parts []string) (*ailink.GenerateResponse, error)
	GenerateRobotImage(ctx context.Context, description string) (*ailink.ImageResult, error)
	QuickCode(ctx context.Context, description string) (string, error)
}

// Forger runs every artifact for one description.
type Forger interface {
	Forge(ctx context.Context, req engine.ForgeRequest) (*engine.ForgeResult, error)
}

// PartsSearcher looks up components by free-text query.
type PartsSearcher interface {
	Search(ctx context.Context, query string) (*parts.SearchResult, error)
}

// BuildStore persists build configurations. *store.Store satisfies it.
type BuildStore interface {
	ListBuilds(ctx context.Context) ([]core.BuildConfig, error)
	GetBuild(ctx context.Context, id string) (*core.BuildConfig, error)
	CreateBuild(ctx context.Context, name string) (*core.BuildConfig, error)
	RenameBuild(ctx context.Context, id, name string) (*core.BuildConfig, error)
	DeleteBuild(ctx context.Context, id string) error
	AddPart(ctx context.Context, id string, part core.Part) (*core.BuildConfig, error)
	RemovePart(ctx context.Context, id string, index int) (*core.BuildConfig, error)
}

// API serves the /api routes.
type API struct {
	Generator Generator
	Forge     Forger
	Parts     PartsSearcher
	Builds    BuildStore
	AppName   string
	BannerURL string
}

// AppResponse carries display settings for the front end.
type AppResponse struct {
	Name      string `json:"name"`
	BannerURL string `json:"banner_url"`
}

// GenerateRequest is the body of POST /api/generate/{kind}.
type GenerateRequest struct {
	Description string   `json:"description"`
	Query       string   `json:"query,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
	Parts       []string `json:"parts,omitempty"`
}

// ImageResponse wraps a rendered concept image.
type ImageResponse struct {
	Image *ailink.ImageResult `json:"image"`
}

// CodegenResponse is the body returned by POST /api/codegen.
type CodegenResponse struct {
	Code string `json:"code"`
}

// PartsResponse relays the upstream data alongside the mapped parts.
type PartsResponse struct {
	Data   json.RawMessage `json:"data"`
	Parts  []core.Part     `json:"parts"`
	Cached bool            `json:"cached,omitempty"`
}

// BuildsResponse lists build configurations, newest first.
type BuildsResponse struct {
	Builds []core.BuildConfig `json:"builds"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type queryRequest struct {
	Query string `json:"query"`
}

type descriptionRequest struct {
	Description string `json:"description"`
}

// Routes mounts the API handlers; the server mounts it under /api.
func (a *API) Routes(r chi.Router) {
	r.Get("/app", a.App)
	r.Post("/generate/{kind}", a.Generate)
	r.Post("/forge", a.ForgeRun)
	r.Post("/codegen", a.Codegen)
	r.Post("/parts", a.PartsSearch)

	r.Route("/builds", func(r chi.Router) {
		r.Get("/", a.ListBuilds)
		r.Post("/", a.CreateBuild)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.GetBuild)
			r.Patch("/", a.RenameBuild)
			r.Delete("/", a.DeleteBuild)
			r.Post("/parts", a.AddBuildPart)
			r.Delete("/parts/{index}", a.RemoveBuildPart)
		})
	})
}

// App handles GET /api/app.
func (a *API) App(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, AppResponse{Name: a.AppName, BannerURL: a.BannerURL})
}

// Generate handles POST /api/generate/{kind}.
func (a *API) Generate(w http.ResponseWriter, r *http.Request) {
	artifact, err := ailink.ParseArtifact(chi.URLParam(r, "kind"))
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "Unknown artifact kind"))
		return
	}

	var req GenerateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if a.Generator == nil {
		respondWithError(w, r, apperrors.NewConfigInvalidError("generation is not configured"))
		return
	}

	description := req.Description
	if artifact == ailink.ArtifactSearch && strings.TrimSpace(req.Query) != "" {
		description = req.Query
	}
	description, err = engine.ResolveDescription(description, req.Parts)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "Missing description"))
		return
	}

	if artifact == ailink.ArtifactImage {
		img, err := a.Generator.GenerateRobotImage(r.Context(), description)
		if err != nil {
			respondWithError(w, r, apperrors.FromGeneration(r.Context(), err))
			return
		}
		writeJSON(w, http.StatusOK, ImageResponse{Image: img})
		return
	}

	resp, err := a.Generator.GenerateArtifact(r.Context(), artifact, description, req.ImageURL, req.Parts)
	if err != nil {
		respondWithError(w, r, apperrors.FromGeneration(r.Context(), err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ForgeRun handles POST /api/forge.
func (a *API) ForgeRun(w http.ResponseWriter, r *http.Request) {
	var req engine.ForgeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := engine.ResolveDescription(req.Description, req.Parts); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "Missing description"))
		return
	}
	if a.Forge == nil {
		respondWithError(w, r, apperrors.NewConfigInvalidError("generation is not configured"))
		return
	}

	result, err := a.Forge.Forge(r.Context(), req)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "Forge request rejected"))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Codegen handles POST /api/codegen. With ?download=1 the sketch is sent
// as an attachment.
func (a *API) Codegen(w http.ResponseWriter, r *http.Request) {
	var req descriptionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("Missing description"))
		return
	}
	if a.Generator == nil {
		respondWithError(w, r, apperrors.NewConfigInvalidError("generation is not configured"))
		return
	}

	code, err := a.Generator.QuickCode(r.Context(), req.Description)
	if err != nil {
		respondWithError(w, r, apperrors.FromGeneration(r.Context(), err))
		return
	}

	if download, _ := strconv.ParseBool(r.URL.Query().Get("download")); download {
		w.Header().Set("Content-Disposition", `attachment; filename="robot.ino"`)
	}
	writeJSON(w, http.StatusOK, CodegenResponse{Code: code})
}

// setRetryAfter forwards an upstream Retry-After hint, rounded up to whole
// seconds.
func setRetryAfter(w http.ResponseWriter, err error) {
	var upstream *parts.UpstreamError
	if !stderrors.As(err, &upstream) || upstream.RetryAfter <= 0 {
		return
	}
	seconds := (upstream.RetryAfter + time.Second - 1) / time.Second
	w.Header().Set("Retry-After", strconv.FormatInt(int64(seconds), 10))
}

// PartsSearch handles POST /api/parts.
func (a *API) PartsSearch(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if a.Parts == nil {
		err := parts.ErrNotConfigured
		if strings.TrimSpace(req.Query) == "" {
			err = parts.ErrEmptyQuery
		}
		respondWithError(w, r, apperrors.FromPartsSearch(r.Context(), err))
		return
	}

	result, err := a.Parts.Search(r.Context(), req.Query)
	if err != nil {
		setRetryAfter(w, err)
		respondWithError(w, r, apperrors.FromPartsSearch(r.Context(), err))
		return
	}

	found := result.Parts
	if found == nil {
		found = []core.Part{}
	}
	writeJSON(w, http.StatusOK, PartsResponse{Data: result.Data, Parts: found, Cached: result.FromCache})
}

// ListBuilds handles GET /api/builds.
func (a *API) ListBuilds(w http.ResponseWriter, r *http.Request) {
	if !a.requireBuilds(w, r) {
		return
	}
	builds, err := a.Builds.ListBuilds(r.Context())
	if err != nil {
		respondWithError(w, r, buildError(r.Context(), err))
		return
	}
	if builds == nil {
		builds = []core.BuildConfig{}
	}
	writeJSON(w, http.StatusOK, BuildsResponse{Builds: builds})
}

// CreateBuild handles POST /api/builds. A blank name gets the next
// "Configuration N" name.
func (a *API) CreateBuild(w http.ResponseWriter, r *http.Request) {
	if !a.requireBuilds(w, r) {
		return
	}
	var req nameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	build, err := a.Builds.CreateBuild(r.Context(), req.Name)
	if err != nil {
		respondWithError(w, r, buildError(r.Context(), err))
		return
	}
	writeJSON(w, http.StatusCreated, build)
}

// GetBuild handles GET /api/builds/{id}.
func (a *API) GetBuild(w http.ResponseWriter, r *http.Request) {
	if !a.requireBuilds(w, r) {
		return
	}
	build, err := a.Builds.GetBuild(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, r, buildError(r.Context(), err))
		return
	}
	writeJSON(w, http.StatusOK, build)
}

// RenameBuild handles PATCH /api/builds/{id}.
func (a *API) RenameBuild(w http.ResponseWriter, r *http.Request) {
	if !a.requireBuilds(w, r) {
		return
	}
	var req nameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("Missing name"))
		return
	}
	build, err := a.Builds.RenameBuild(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		respondWithError(w, r, buildError(r.Context(), err))
		return
	}
	writeJSON(w, http.StatusOK, build)
}

// DeleteBuild handles DELETE /api/builds/{id}.
func (a *API) DeleteBuild(w http.ResponseWriter, r *http.Request) {
	if !a.requireBuilds(w, r) {
		return
	}
	if err := a.Builds.DeleteBuild(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondWithError(w, r, buildError(r.Context(), err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddBuildPart handles POST /api/builds/{id}/parts.
func (a *API) AddBuildPart(w http.ResponseWriter, r *http.Request) {
	if !a.requireBuilds(w, r) {
		return
	}
	var part core.Part
	if !decodeBody(w, r, &part) {
		return
	}
	if strings.TrimSpace(part.MPN) == "" && strings.TrimSpace(part.Name) == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("Part needs an mpn or a name"))
		return
	}
	build, err := a.Builds.AddPart(r.Context(), chi.URLParam(r, "id"), part)
	if err != nil {
		respondWithError(w, r, buildError(r.Context(), err))
		return
	}
	writeJSON(w, http.StatusOK, build)
}

// RemoveBuildPart handles DELETE /api/builds/{id}/parts/{index}.
func (a *API) RemoveBuildPart(w http.ResponseWriter, r *http.Request) {
	if !a.requireBuilds(w, r) {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "Part index must be an integer"))
		return
	}
	build, err := a.Builds.RemovePart(r.Context(), chi.URLParam(r, "id"), index)
	if err != nil {
		respondWithError(w, r, buildError(r.Context(), err))
		return
	}
	writeJSON(w, http.StatusOK, build)
}

func (a *API) requireBuilds(w http.ResponseWriter, r *http.Request) bool {
	if a.Builds == nil {
		respondWithError(w, r, apperrors.NewConfigInvalidError("build store is not configured"))
		return false
	}
	return true
}

func buildError(ctx context.Context, err error) error {
	if stderrors.Is(err, store.ErrBuildNotFound) {
		return apperrors.WrapNotFound(ctx, err, "Build configuration not found")
	}
	return apperrors.WrapDatabaseError(ctx, err, "build store failed")
}

// decodeBody reads a JSON body into dst. An empty body leaves dst zeroed.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		return true
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !stderrors.Is(err, io.EOF) {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "Invalid JSON body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
