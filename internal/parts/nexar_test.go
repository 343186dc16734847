package parts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roboforge/roboforge/internal/core"
	"github.com/roboforge/roboforge/internal/core/store"
)

const searchFixture = `{
  "data": {
    "supSearch": {
      "results": [
        {
          "part": {
            "mpn": "HC-SR04",
            "name": "Ultrasonic ranging module",
            "manufacturer": {"name": "SparkFun"},
            "bestImage": {"url": "https://img.example/hc-sr04.jpg"},
            "specs": [
              {"attribute": {"name": "Supply voltage"}, "displayValue": "5 V"},
              {"attribute": {"name": "Range"}, "displayValue": "2-400 cm"},
              {"attribute": {"name": "a"}, "displayValue": "1"},
              {"attribute": {"name": "b"}, "displayValue": "2"},
              {"attribute": {"name": "c"}, "displayValue": "3"},
              {"attribute": {"name": "d"}, "displayValue": "4"},
              {"attribute": {"name": "e"}, "displayValue": "5"}
            ],
            "sellers": [
              {"company": {"name": "Mouser"}, "offers": [{"clickUrl": "https://mouser.example/x", "prices": [{"price": 3.95, "currency": "EUR"}]}]},
              {"company": {"name": "DigiKey"}, "offers": []}
            ]
          }
        },
        {"part": null}
      ]
    }
  }
}`

type nexarFake struct {
	tokenCalls   atomic.Int32
	graphqlCalls atomic.Int32
	tokenStatus  int
	tokenBlock   chan struct{}
	graphStatus  int
	graphBody    string
	lastAuth     atomic.Value
	lastVars     atomic.Value
}

func (f *nexarFake) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/connect/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		if f.tokenBlock != nil {
			select {
			case <-f.tokenBlock:
			case <-r.Context().Done():
				return
			}
		}
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "supply.domain", r.PostForm.Get("scope"))
		assert.Equal(t, "id", r.PostForm.Get("client_id"))
		if f.tokenStatus != 0 {
			w.WriteHeader(f.tokenStatus)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-123","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		f.graphqlCalls.Add(1)
		f.lastAuth.Store(r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		var req graphqlRequest
		assert.NoError(t, json.Unmarshal(body, &req))
		f.lastVars.Store(req.Variables)
		if f.graphStatus != 0 {
			w.WriteHeader(f.graphStatus)
			_, _ = w.Write([]byte(f.graphBody))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if f.graphBody != "" {
			_, _ = w.Write([]byte(f.graphBody))
			return
		}
		_, _ = w.Write([]byte(searchFixture))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server) *Client {
	return &Client{
		TokenURL:     srv.URL + "/connect/token",
		GraphQLURL:   srv.URL + "/graphql",
		ClientID:     "id",
		ClientSecret: "secret",
		HTTPClient:   srv.Client(),
	}
}

func TestSearchMapsParts(t *testing.T) {
	fake := &nexarFake{}
	client := newTestClient(fake.server(t))

	result, err := client.Search(context.Background(), "  ultrasonic sensor ")
	require.NoError(t, err)
	assert.Equal(t, "ultrasonic sensor", result.Query)
	assert.Equal(t, "Bearer tok-123", fake.lastAuth.Load())

	vars := fake.lastVars.Load().(map[string]any)
	assert.Equal(t, "ultrasonic sensor", vars["q"])
	assert.EqualValues(t, 10, vars["limit"])

	require.Len(t, result.Parts, 1)
	p := result.Parts[0]
	assert.Equal(t, "HC-SR04", p.MPN)
	assert.Equal(t, "SparkFun", p.Manufacturer)
	assert.Equal(t, "https://img.example/hc-sr04.jpg", p.Image)
	assert.Len(t, p.Specs, 6)
	assert.Equal(t, core.Spec{Name: "Supply voltage", Value: "5 V"}, p.Specs[0])
	require.Len(t, p.Sellers, 2)
	assert.Equal(t, core.Seller{Name: "Mouser", URL: "https://mouser.example/x", Price: 3.95, Currency: "EUR"}, p.Sellers[0])
	assert.Equal(t, core.Seller{Name: "DigiKey"}, p.Sellers[1])

	assert.Contains(t, string(result.Data), "supSearch")
}

func TestSearchReusesToken(t *testing.T) {
	fake := &nexarFake{}
	client := newTestClient(fake.server(t))

	for i := 0; i < 3; i++ {
		_, err := client.Search(context.Background(), "lm358")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), fake.tokenCalls.Load())
	assert.Equal(t, int32(3), fake.graphqlCalls.Load())
}

func TestSearchValidation(t *testing.T) {
	client := &Client{ClientID: "id", ClientSecret: "secret"}
	_, err := client.Search(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)

	unconfigured := &Client{ClientID: "id"}
	_, err = unconfigured.Search(context.Background(), "lm358")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, unconfigured.Configured())
}

func TestSearchTokenFetchHonoursContext(t *testing.T) {
	fake := &nexarFake{tokenBlock: make(chan struct{})}
	srv := fake.server(t)
	t.Cleanup(func() { close(fake.tokenBlock) })
	client := newTestClient(srv)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Search(ctx, "lm358")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, int32(0), fake.graphqlCalls.Load())
}

func TestSearchTokenFailure(t *testing.T) {
	fake := &nexarFake{tokenStatus: http.StatusUnauthorized}
	client := newTestClient(fake.server(t))

	_, err := client.Search(context.Background(), "lm358")
	var uerr *UpstreamError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, "token", uerr.Stage)
	assert.Equal(t, http.StatusUnauthorized, uerr.StatusCode)
	assert.Contains(t, uerr.Detail, "invalid_client")
	assert.Equal(t, int32(0), fake.graphqlCalls.Load())
}

func TestSearchGraphQLFailure(t *testing.T) {
	fake := &nexarFake{graphStatus: http.StatusBadGateway, graphBody: "upstream exploded"}
	client := newTestClient(fake.server(t))

	_, err := client.Search(context.Background(), "lm358")
	var uerr *UpstreamError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, "graphql", uerr.Stage)
	assert.Equal(t, http.StatusBadGateway, uerr.StatusCode)
	assert.Equal(t, "upstream exploded", uerr.Detail)
}

func TestSearchGraphQLErrors(t *testing.T) {
	fake := &nexarFake{graphBody: `{"data":null,"errors":[{"message":"quota exceeded"}]}`}
	client := newTestClient(fake.server(t))

	_, err := client.Search(context.Background(), "lm358")
	var uerr *UpstreamError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, "quota exceeded", uerr.Detail)
}

type memoryCache struct {
	entries map[string]*store.PartsCacheEntry
}

func (m *memoryCache) GetPartsSearch(ctx context.Context, query string) (*store.PartsCacheEntry, error) {
	return m.entries[query], nil
}

func (m *memoryCache) SetPartsSearch(ctx context.Context, query string, data json.RawMessage, parts []core.Part, ttl time.Duration) error {
	if m.entries == nil {
		m.entries = map[string]*store.PartsCacheEntry{}
	}
	m.entries[query] = &store.PartsCacheEntry{Data: data, Parts: parts}
	return nil
}

func TestSearchCache(t *testing.T) {
	fake := &nexarFake{}
	client := newTestClient(fake.server(t))
	client.Cache = &memoryCache{}
	client.CacheTTL = time.Hour

	first, err := client.Search(context.Background(), "hc-sr04")
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := client.Search(context.Background(), "hc-sr04")
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Parts, second.Parts)
	assert.Equal(t, int32(1), fake.graphqlCalls.Load())
}

func TestMapPartsEmpty(t *testing.T) {
	parts, err := MapParts(json.RawMessage(`{"supSearch":{"results":[]}}`))
	require.NoError(t, err)
	assert.Empty(t, parts)

	parts, err = MapParts(nil)
	require.NoError(t, err)
	assert.Empty(t, parts)
}

func TestRetryAfterHeader(t *testing.T) {
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"30"}}}
	assert.Equal(t, 30*time.Second, retryAfterHeader(resp))
	assert.Equal(t, time.Duration(0), retryAfterHeader(&http.Response{}))
}
