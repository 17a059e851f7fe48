package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/soyeahso/shopchat/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generated when absent", "", false},
		{"client id kept", "widget-7f3a.2", true},
		{"too long replaced", strings.Repeat("a", maxRequestIDLen+1), false},
		{"unprintable replaced", "abc\r\nSet-Cookie: x", false},
		{"spaces replaced", "two words", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = requestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			if tt.incoming != "" {
				req.Header.Set("X-Request-ID", tt.incoming)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			got := rr.Header().Get("X-Request-ID")
			require.NotEmpty(t, got)
			assert.Equal(t, got, seen, "context and header agree")
			if tt.keep {
				assert.Equal(t, tt.incoming, got)
			} else {
				assert.NotEqual(t, tt.incoming, got)
				assert.Len(t, got, 36)
			}
		})
	}

	assert.Empty(t, requestID(context.Background()))
}

func TestLoggingMiddleware_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		logged bool
	}{
		{http.StatusOK, false},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		handler := requestIDMiddleware(loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
		}), logging.New(&buf, "info")))

		req := httptest.NewRequest(http.MethodPost, "/chat", nil)
		req.Header.Set("X-Request-ID", "req-1")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		if !tt.logged {
			assert.Empty(t, buf.String(), "status %d", tt.status)
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, float64(tt.status), entry["status"])
		assert.Equal(t, "req-1", entry["requestId"])
		assert.Equal(t, "/chat", entry["path"])
	}
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    string
	}{
		{"none configured denies", nil, "http://localhost:3000", ""},
		{"wildcard echoes origin", []string{"*"}, "http://localhost:3000", "http://localhost:3000"},
		{"listed origin", []string{"https://shop.example"}, "https://shop.example", "https://shop.example"},
		{"unlisted origin", []string{"https://shop.example"}, "https://evil.example", ""},
		{"no origin header", []string{"*"}, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := corsMiddleware(http.HandlerFunc(okHandler), tt.allowed)
			req := httptest.NewRequest(http.MethodPost, "/chat", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, tt.want, rr.Header().Get("Access-Control-Allow-Origin"))
			if tt.want != "" {
				assert.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), "Accept")
			}
		})
	}
}

func TestCORSMiddleware_PreflightShortCircuits(t *testing.T) {
	handler := corsMiddleware(http.HandlerFunc(okHandler), []string{"*"})

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "https://shop.example")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())
	assert.Equal(t, "GET, POST, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))
}

func TestWithMiddleware_Chain(t *testing.T) {
	handler := withMiddleware(http.HandlerFunc(okHandler), logging.New(nil, "silent"), []string{"https://shop.example"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://shop.example")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "ok", rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "https://shop.example", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusWriter_PassesThroughFlushAndUnwrap(t *testing.T) {
	rr := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rr, status: http.StatusOK}

	sw.WriteHeader(http.StatusAccepted)
	sw.Flush()

	assert.Equal(t, http.StatusAccepted, sw.status)
	assert.True(t, rr.Flushed)
	assert.Same(t, rr, sw.Unwrap())

	_, _, err := sw.Hijack()
	assert.Error(t, err, "recorder cannot be hijacked")
}
