// Package parts relays component searches to the Nexar (Octopart) supply API.
package parts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/roboforge/roboforge/internal/core"
	"github.com/roboforge/roboforge/internal/core/store"
	"github.com/roboforge/roboforge/internal/metrics"
)

const (
	DefaultTokenURL   = "https://identity.nexar.com/connect/token"
	DefaultGraphQLURL = "https://api.nexar.com/graphql"
	DefaultLimit      = 10
	Scope             = "supply.domain"

	maxSpecs      = 6
	maxSellers    = 3
	maxDetailSize = 4096
)

// ErrNotConfigured is returned when client credentials are missing.
var ErrNotConfigured = errors.New("server missing NEXAR_CLIENT_ID or NEXAR_CLIENT_SECRET")

// ErrEmptyQuery is returned for a blank search query.
var ErrEmptyQuery = errors.New("missing query")

// UpstreamError reports a failed token or GraphQL exchange.
type UpstreamError struct {
	Stage      string
	StatusCode int
	Detail     string
	RetryAfter time.Duration
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := "upstream error"
	if e.Stage != "" {
		msg = e.Stage + " upstream error"
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Cache stores search responses. *store.Store satisfies it.
type Cache interface {
	GetPartsSearch(ctx context.Context, query string) (*store.PartsCacheEntry, error)
	SetPartsSearch(ctx context.Context, query string, data json.RawMessage, parts []core.Part, ttl time.Duration) error
}

// Client searches parts through Nexar.
type Client struct {
	TokenURL     string
	GraphQLURL   string
	ClientID     string
	ClientSecret string
	Limit        int
	HTTPClient   *http.Client
	Cache        Cache
	CacheTTL     time.Duration
	Logger       *logging.Logger

	mu    sync.Mutex
	token *oauth2.Token
}

// SearchResult is the relayed upstream data plus the mapped parts.
type SearchResult struct {
	Query     string          `json:"query"`
	Data      json.RawMessage `json:"data"`
	Parts     []core.Part     `json:"parts"`
	FromCache bool            `json:"from_cache,omitempty"`
}

// Configured reports whether both client credentials are set.
func (c *Client) Configured() bool {
	return c != nil && strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.ClientSecret) != ""
}

// Search runs one supSearch query.
func (c *Client) Search(ctx context.Context, query string) (*SearchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	if c.Cache != nil && c.CacheTTL > 0 {
		entry, err := c.Cache.GetPartsSearch(ctx, query)
		if err != nil {
			c.logWarn("parts cache read failed", zap.Error(err))
		} else {
			metrics.RecordCacheLookup("parts", entry != nil)
		}
		if entry != nil {
			return &SearchResult{Query: query, Data: entry.Data, Parts: entry.Parts, FromCache: true}, nil
		}
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		metrics.RecordVendorError("nexar_token", "upstream")
		return nil, tokenError(err)
	}

	start := time.Now()
	data, status, err := c.graphql(ctx, token, query)
	metrics.RecordVendorDispatch("nexar_graphql", statusLabel(status), time.Since(start))
	if err != nil {
		metrics.RecordVendorError("nexar_graphql", "upstream")
		return nil, err
	}

	parts, err := MapParts(data)
	if err != nil {
		return nil, &UpstreamError{Stage: "graphql", Detail: "unexpected response shape", Err: err}
	}

	if c.Cache != nil && c.CacheTTL > 0 {
		if err := c.Cache.SetPartsSearch(ctx, query, data, parts, c.CacheTTL); err != nil {
			c.logWarn("parts cache write failed", zap.Error(err))
		}
	}

	return &SearchResult{Query: query, Data: data, Parts: parts}, nil
}

// accessToken returns the cached bearer token, fetching a new one with ctx
// once it is within the oauth2 expiry margin.
func (c *Client) accessToken(ctx context.Context) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token.Valid() {
		return c.token, nil
	}

	cfg := &clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     firstNonEmpty(c.TokenURL, DefaultTokenURL),
		Scopes:       []string{Scope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	token, err := cfg.Token(context.WithValue(ctx, oauth2.HTTPClient, c.httpClient()))
	if err != nil {
		return nil, err
	}
	c.token = token
	return token, nil
}

func tokenError(err error) error {
	out := &UpstreamError{Stage: "token", Err: err}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && rerr.Response != nil {
		out.StatusCode = rerr.Response.StatusCode
		out.Detail = truncate(strings.TrimSpace(string(rerr.Body)))
		if out.Detail == "" {
			out.Detail = "token fetch failed: " + http.StatusText(out.StatusCode)
		}
	}
	return out
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) graphql(ctx context.Context, token *oauth2.Token, query string) (json.RawMessage, int, error) {
	limit := c.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	payload, err := json.Marshal(graphqlRequest{
		Query:     searchQuery,
		Variables: map[string]any{"q": query, "limit": limit},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("encode graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, firstNonEmpty(c.GraphQLURL, DefaultGraphQLURL), bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-store")
	token.SetAuthHeader(req)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, 0, &UpstreamError{Stage: "graphql", Err: err}
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &UpstreamError{Stage: "graphql", StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusUnauthorized {
			c.resetToken()
		}
		return nil, resp.StatusCode, &UpstreamError{
			Stage:      "graphql",
			StatusCode: resp.StatusCode,
			Detail:     truncate(strings.TrimSpace(string(body))),
			RetryAfter: retryAfterHeader(resp),
		}
	}

	var decoded graphqlResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, resp.StatusCode, &UpstreamError{Stage: "graphql", StatusCode: resp.StatusCode, Detail: "undecodable response", Err: err}
	}
	if len(decoded.Errors) > 0 && isNull(decoded.Data) {
		msgs := make([]string, 0, len(decoded.Errors))
		for _, e := range decoded.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, resp.StatusCode, &UpstreamError{Stage: "graphql", StatusCode: resp.StatusCode, Detail: strings.Join(msgs, "; ")}
	}
	return decoded.Data, resp.StatusCode, nil
}

func (c *Client) resetToken() {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 20 * time.Second}
}

func (c *Client) logWarn(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Warn(msg, fields...)
	}
}

func retryAfterHeader(resp *http.Response) time.Duration {
	if resp == nil || resp.Header == nil {
		return 0
	}
	retry := resp.Header.Get("Retry-After")
	if retry == "" {
		return 0
	}
	if seconds, err := time.ParseDuration(retry + "s"); err == nil {
		return seconds
	}
	if parsed, err := http.ParseTime(retry); err == nil {
		return time.Until(parsed)
	}
	return 0
}

func statusLabel(status int) string {
	if status == 0 {
		return "transport_error"
	}
	return strconv.Itoa(status)
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

func truncate(s string) string {
	if len(s) <= maxDetailSize {
		return s
	}
	return s[:maxDetailSize] + "…"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
