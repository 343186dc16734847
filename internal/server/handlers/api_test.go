package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roboforge/roboforge/internal/ailink"
	"github.com/roboforge/roboforge/internal/ailink/driver"
	"github.com/roboforge/roboforge/internal/core"
	"github.com/roboforge/roboforge/internal/core/engine"
	"github.com/roboforge/roboforge/internal/core/store"
	apperrors "github.com/roboforge/roboforge/internal/errors"
	"github.com/roboforge/roboforge/internal/parts"
)

type stubGenerator struct {
	err        error
	lastPrompt ailink.Artifact
	lastDesc   string
}

func (g *stubGenerator) GenerateArtifact(_ context.Context, a ailink.Artifact, description, _ string, _ []string) (*ailink.GenerateResponse, error) {
	g.lastPrompt, g.lastDesc = a, description
	if g.err != nil {
		return nil, g.err
	}
	return &ailink.GenerateResponse{PromptSlug: a.PromptSlug(), Content: "content for " + description, Format: "text", Attempts: 1}, nil
}

func (g *stubGenerator) GenerateRobotImage(_ context.Context, description string) (*ailink.ImageResult, error) {
	g.lastPrompt, g.lastDesc = ailink.ArtifactImage, description
	if g.err != nil {
		return nil, g.err
	}
	return &ailink.ImageResult{URL: "https://img.example/robot.png", RobotType: "arm"}, nil
}

func (g *stubGenerator) QuickCode(_ context.Context, description string) (string, error) {
	g.lastDesc = description
	if g.err != nil {
		return "", g.err
	}
	return "void setup() {}\nvoid loop() {}", nil
}

type stubForger struct {
	req engine.ForgeRequest
}

func (f *stubForger) Forge(_ context.Context, req engine.ForgeRequest) (*engine.ForgeResult, error) {
	f.req = req
	return &engine.ForgeResult{
		Description: req.Description,
		Artifacts:   []engine.ArtifactResult{{Artifact: ailink.ArtifactCode, Content: "sketch"}},
	}, nil
}

type stubParts struct {
	result *parts.SearchResult
	err    error
}

func (p *stubParts) Search(_ context.Context, query string) (*parts.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, parts.ErrEmptyQuery
	}
	return p.result, p.err
}

// memoryBuilds mirrors the store's build semantics in memory.
type memoryBuilds struct {
	mu     sync.Mutex
	builds []core.BuildConfig
	seq    int
}

func (m *memoryBuilds) ListBuilds(context.Context) ([]core.BuildConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.BuildConfig, 0, len(m.builds))
	for i := len(m.builds) - 1; i >= 0; i-- {
		out = append(out, m.builds[i])
	}
	return out, nil
}

func (m *memoryBuilds) GetBuild(_ context.Context, id string) (*core.BuildConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.builds {
		if m.builds[i].ID == id {
			b := m.builds[i]
			return &b, nil
		}
	}
	return nil, store.ErrBuildNotFound
}

func (m *memoryBuilds) CreateBuild(_ context.Context, name string) (*core.BuildConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.TrimSpace(name) == "" {
		name = core.NextBuildName(len(m.builds))
	}
	m.seq++
	b := core.BuildConfig{ID: "b" + strconv.Itoa(m.seq), Name: name, Parts: []core.Part{}}
	m.builds = append(m.builds, b)
	return &b, nil
}

func (m *memoryBuilds) RenameBuild(_ context.Context, id, name string) (*core.BuildConfig, error) {
	return m.update(id, func(b *core.BuildConfig) { b.Name = name })
}

func (m *memoryBuilds) DeleteBuild(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.builds {
		if m.builds[i].ID == id {
			m.builds = append(m.builds[:i], m.builds[i+1:]...)
			return nil
		}
	}
	return store.ErrBuildNotFound
}

func (m *memoryBuilds) AddPart(_ context.Context, id string, part core.Part) (*core.BuildConfig, error) {
	return m.update(id, func(b *core.BuildConfig) { b.Parts = append(b.Parts, part) })
}

func (m *memoryBuilds) RemovePart(_ context.Context, id string, index int) (*core.BuildConfig, error) {
	return m.update(id, func(b *core.BuildConfig) {
		if index >= 0 && index < len(b.Parts) {
			b.Parts = append(b.Parts[:index:index], b.Parts[index+1:]...)
		}
	})
}

func (m *memoryBuilds) update(id string, mutate func(*core.BuildConfig)) (*core.BuildConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.builds {
		if m.builds[i].ID == id {
			mutate(&m.builds[i])
			b := m.builds[i]
			return &b, nil
		}
	}
	return nil, store.ErrBuildNotFound
}

func newTestAPI() (*API, *stubGenerator) {
	gen := &stubGenerator{}
	return &API{
		Generator: gen,
		Forge:     &stubForger{},
		Parts:     &stubParts{},
		Builds:    &memoryBuilds{},
		AppName:   "ROBO Forge AI",
		BannerURL: "/banner.mp4",
	}, gen
}

func serve(t *testing.T, api *API, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/api", api.Routes)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.HTTPErrorDetail {
	t.Helper()
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestAppSettings(t *testing.T) {
	api, _ := newTestAPI()
	rec := serve(t, api, http.MethodGet, "/api/app", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp AppResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ROBO Forge AI", resp.Name)
	assert.Equal(t, "/banner.mp4", resp.BannerURL)
}

func TestGenerateArtifact(t *testing.T) {
	api, gen := newTestAPI()
	rec := serve(t, api, http.MethodPost, "/api/generate/circuit", `{"description":"line follower"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ailink.GenerateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "content for line follower", resp.Content)
	assert.Equal(t, ailink.ArtifactCircuit, gen.lastPrompt)
}

func TestGenerateFallsBackToPartCount(t *testing.T) {
	api, gen := newTestAPI()
	rec := serve(t, api, http.MethodPost, "/api/generate/code", `{"parts":["Arduino Uno","L298N"]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Robot with 2 parts", gen.lastDesc)
}

func TestGenerateSearchUsesQuery(t *testing.T) {
	api, gen := newTestAPI()
	rec := serve(t, api, http.MethodPost, "/api/generate/search", `{"query":"best hobby servo"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "best hobby servo", gen.lastDesc)
}

func TestGenerateImage(t *testing.T) {
	api, _ := newTestAPI()
	rec := serve(t, api, http.MethodPost, "/api/generate/image", `{"description":"robot arm"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ImageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Image)
	assert.Equal(t, "arm", resp.Image.RobotType)
}

func TestGenerateRejectsBadInput(t *testing.T) {
	api, _ := newTestAPI()

	rec := serve(t, api, http.MethodPost, "/api/generate/poem", `{"description":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, api, http.MethodPost, "/api/generate/code", `{"description":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, api, http.MethodPost, "/api/generate/code", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateMapsProviderErrors(t *testing.T) {
	cases := []struct {
		kind   driver.ErrorKind
		status int
		code   string
	}{
		{driver.KindConfiguration, http.StatusInternalServerError, apperrors.CodeConfigInvalid},
		{driver.KindInvalidCredential, http.StatusBadGateway, apperrors.CodeExternalService},
		{driver.KindRetriesExhausted, http.StatusServiceUnavailable, apperrors.CodeServiceUnavailable},
		{driver.KindMalformedRequest, http.StatusBadGateway, apperrors.CodeExternalService},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			api, gen := newTestAPI()
			gen.err = &driver.ProviderError{Provider: "openai", Kind: tc.kind, Message: "boom"}

			rec := serve(t, api, http.MethodPost, "/api/generate/parts", `{"description":"rover"}`)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decodeError(t, rec).Code)
		})
	}
}

func TestForgeRun(t *testing.T) {
	api, _ := newTestAPI()
	forger := api.Forge.(*stubForger)

	rec := serve(t, api, http.MethodPost, "/api/forge", `{"description":"hexapod","image_url":"https://x/y.png","include_image":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hexapod", forger.req.Description)
	assert.Equal(t, "https://x/y.png", forger.req.ImageURL)
	assert.True(t, forger.req.IncludeImage)

	rec = serve(t, api, http.MethodPost, "/api/forge", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCodegen(t *testing.T) {
	api, _ := newTestAPI()

	rec := serve(t, api, http.MethodPost, "/api/codegen", `{"description":"blink an LED"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
	var resp CodegenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Contains(t, resp.Code, "void loop()")

	rec = serve(t, api, http.MethodPost, "/api/codegen?download=1", `{"description":"blink an LED"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "robot.ino")
}

func TestCodegenErrors(t *testing.T) {
	api, gen := newTestAPI()

	rec := serve(t, api, http.MethodPost, "/api/codegen", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	gen.err = &driver.ProviderError{Provider: "openai", Kind: driver.KindConfiguration, Message: "missing api key"}
	rec = serve(t, api, http.MethodPost, "/api/codegen", `{"description":"blink"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPartsSearch(t *testing.T) {
	api, _ := newTestAPI()
	api.Parts = &stubParts{result: &parts.SearchResult{
		Query: "L298N",
		Data:  json.RawMessage(`{"supSearch":{"results":[]}}`),
		Parts: []core.Part{{MPN: "L298N", Manufacturer: "STMicroelectronics"}},
	}}

	rec := serve(t, api, http.MethodPost, "/api/parts", `{"query":"L298N"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PartsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.JSONEq(t, `{"supSearch":{"results":[]}}`, string(resp.Data))
	require.Len(t, resp.Parts, 1)
	assert.Equal(t, "STMicroelectronics L298N", resp.Parts[0].Label())
}

func TestPartsSearchErrors(t *testing.T) {
	api, _ := newTestAPI()

	rec := serve(t, api, http.MethodPost, "/api/parts", `{"query":" "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	api.Parts = &stubParts{err: parts.ErrNotConfigured}
	rec = serve(t, api, http.MethodPost, "/api/parts", `{"query":"servo"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	api.Parts = &stubParts{err: &parts.UpstreamError{Stage: "token", StatusCode: http.StatusUnauthorized, Detail: "invalid_client"}}
	rec = serve(t, api, http.MethodPost, "/api/parts", `{"query":"servo"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	detail := decodeError(t, rec)
	assert.Equal(t, "Upstream error", detail.Message)
	assert.Equal(t, "invalid_client", detail.Details["detail"])
	assert.Empty(t, rec.Header().Get("Retry-After"))

	api.Parts = &stubParts{err: &parts.UpstreamError{Stage: "graphql", StatusCode: http.StatusTooManyRequests, RetryAfter: 1500 * time.Millisecond}}
	rec = serve(t, api, http.MethodPost, "/api/parts", `{"query":"servo"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	api.Parts = nil
	rec = serve(t, api, http.MethodPost, "/api/parts", `{"query":"servo"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestBuildsCRUD(t *testing.T) {
	api, _ := newTestAPI()

	rec := serve(t, api, http.MethodPost, "/api/builds", `{"name":"Rover"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var rover core.BuildConfig
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rover))
	assert.Equal(t, "Rover", rover.Name)

	rec = serve(t, api, http.MethodPost, "/api/builds", ``)
	require.Equal(t, http.StatusCreated, rec.Code)
	var second core.BuildConfig
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&second))
	assert.Equal(t, "Configuration 2", second.Name)

	rec = serve(t, api, http.MethodGet, "/api/builds", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list BuildsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list.Builds, 2)
	assert.Equal(t, second.ID, list.Builds[0].ID)

	rec = serve(t, api, http.MethodPatch, "/api/builds/"+rover.ID, `{"name":"Rover Mk2"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, api, http.MethodPost, "/api/builds/"+rover.ID+"/parts", `{"mpn":"L298N","qty":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = serve(t, api, http.MethodPost, "/api/builds/"+rover.ID+"/parts", `{"name":"Chassis"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, api, http.MethodDelete, "/api/builds/"+rover.ID+"/parts/0", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, api, http.MethodGet, "/api/builds/"+rover.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got core.BuildConfig
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "Rover Mk2", got.Name)
	require.Len(t, got.Parts, 1)
	assert.Equal(t, "Chassis", got.Parts[0].Name)

	rec = serve(t, api, http.MethodDelete, "/api/builds/"+rover.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(t, api, http.MethodGet, "/api/builds/"+rover.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperrors.CodeNotFound, decodeError(t, rec).Code)
}

func TestBuildsValidation(t *testing.T) {
	api, _ := newTestAPI()
	rec := serve(t, api, http.MethodPost, "/api/builds", `{"name":"Arm"}`)
	var build core.BuildConfig
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&build))

	rec = serve(t, api, http.MethodPatch, "/api/builds/"+build.ID, `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, api, http.MethodPost, "/api/builds/"+build.ID+"/parts", `{"qty":2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, api, http.MethodDelete, "/api/builds/"+build.ID+"/parts/first", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, api, http.MethodDelete, "/api/builds/"+build.ID+"/parts/9", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, api, http.MethodDelete, "/api/builds/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBuildErrorWrapsStoreFailures(t *testing.T) {
	err := buildError(context.Background(), errors.New("disk full"))
	assert.Equal(t, http.StatusInternalServerError, apperrors.HTTPStatusFromEnvelope(apperrors.EnsureEnvelope(err)))
}
