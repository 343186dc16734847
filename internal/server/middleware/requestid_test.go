package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDReusesCallerID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/app", nil)
	req.Header.Set(RequestIDHeader, "forge-7")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "forge-7", seen)
	assert.Equal(t, "forge-7", rec.Header().Get(RequestIDHeader))
}

func TestRequestIDReplacesUnsafeIDs(t *testing.T) {
	for _, id := range []string{"", "has space", "line\nbreak", strings.Repeat("x", maxRequestIDLen+1)} {
		var seen string
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GetRequestID(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/app", nil)
		if id != "" {
			req.Header.Set(RequestIDHeader, id)
		}
		handler.ServeHTTP(httptest.NewRecorder(), req)

		assert.NotEqual(t, id, seen)
		assert.Len(t, seen, 36, "expected a generated UUID for %q", id)
	}
}

func TestRecoveryReturnsEnvelope(t *testing.T) {
	handler := RequestID(Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("servo driver exploded")
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/forge", nil)
	req.Header.Set(RequestIDHeader, "panic-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"code":"INTERNAL_ERROR"`)
	assert.Contains(t, body, `"request_id":"panic-1"`)
	assert.NotContains(t, body, "goroutine")
}
