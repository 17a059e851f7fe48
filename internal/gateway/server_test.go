package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/shopchat/internal/agent"
	"github.com/soyeahso/shopchat/internal/config"
	"github.com/soyeahso/shopchat/internal/domain"
	"github.com/soyeahso/shopchat/internal/hooks"
	"github.com/soyeahso/shopchat/internal/llm"
	"github.com/soyeahso/shopchat/internal/logging"
	"github.com/soyeahso/shopchat/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func newChat(t *testing.T, client llm.Client) (*agent.Chat, *agent.MemoryStore) {
	t.Helper()
	store := agent.NewMemoryStore()
	prompts, err := agent.LoadPrompts(nil, "")
	require.NoError(t, err)
	engine := agent.NewEngine(agent.EngineConfig{Model: "claude-test", MaxTokens: 100, MaxProducts: 3}, client, store, prompts, silentLog())
	return agent.NewChat(engine, store, nil, silentLog()), store
}

func testServer(t *testing.T, cfg config.Config, opts ...ServerOption) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(cfg, silentLog(), opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func postChat(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url+"/chat", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// readEvents parses every "data:" frame of an event stream.
func readEvents(t *testing.T, r io.Reader) []stream.Event {
	t.Helper()
	var events []stream.Event
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev stream.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())
	return events
}

func eventTypes(events []stream.Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

type fakeAuth struct {
	token     *domain.AccessToken
	err       error
	gotCode   string
	gotState  string
	exchanged int
}

func (f *fakeAuth) Exchange(_ context.Context, code, state string) (*domain.AccessToken, error) {
	f.exchanged++
	f.gotCode, f.gotState = code, state
	if f.err != nil {
		return nil, f.err
	}
	return f.token, nil
}

func (f *fakeAuth) GetAccessToken(context.Context, string) (*domain.AccessToken, error) {
	return f.token, f.err
}

// --- Basic routes ---

func TestHealthEndpoint(t *testing.T) {
	_, ts := testServer(t, config.Defaults())

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
}

func TestNotFoundEndpoint(t *testing.T) {
	_, ts := testServer(t, config.Defaults())

	resp, err := http.Get(ts.URL + "/nonexistent")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not found", decodeJSON(t, resp)["error"])
}

func TestPreflight(t *testing.T) {
	_, ts := testServer(t, config.Defaults())

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/chat", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://shop.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://shop.example", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

// --- POST /chat ---

func TestChatStream(t *testing.T) {
	chat, store := newChat(t, &llm.MockClient{})
	_, ts := testServer(t, config.Defaults(), WithChat(chat), WithStore(store))

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/chat", strings.NewReader(`{"message":"hello","conversation_id":"c1"}`))
	require.NoError(t, err)
	req.Header.Set("Origin", "https://shop.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "https://shop.example", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	events := readEvents(t, resp.Body)
	assert.Equal(t, []string{stream.TypeID, stream.TypeChunk, stream.TypeMessageComplete, stream.TypeEndTurn}, eventTypes(events))
	assert.Equal(t, "c1", events[0].ConversationID)
	assert.Equal(t, "mock stream response", events[1].Chunk)
}

func TestChatStream_GeneratesConversationID(t *testing.T) {
	chat, _ := newChat(t, &llm.MockClient{})
	_, ts := testServer(t, config.Defaults(), WithChat(chat))

	events := readEvents(t, postChat(t, ts.URL, `{"message":"hello"}`).Body)
	require.NotEmpty(t, events)
	assert.Equal(t, stream.TypeID, events[0].Type)
	assert.Regexp(t, `^\d{13}$`, events[0].ConversationID)
}

func TestChatStream_LLMFailure(t *testing.T) {
	client := &llm.MockClient{StreamFunc: func(context.Context, llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
		return nil, &llm.ProviderError{Provider: "claude", Message: "Overloaded", Code: 529}
	}}
	chat, _ := newChat(t, client)
	_, ts := testServer(t, config.Defaults(), WithChat(chat))

	resp := postChat(t, ts.URL, `{"message":"hello","conversation_id":"c1"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	events := readEvents(t, resp.Body)
	assert.Equal(t, []string{stream.TypeID, stream.TypeRateLimitExceeded}, eventTypes(events))
	assert.Equal(t, "Rate limit exceeded", events[1].Error)
	assert.Equal(t, "Please try again later", events[1].Details)
}

func TestChat_BadRequests(t *testing.T) {
	chat, _ := newChat(t, &llm.MockClient{})
	_, ts := testServer(t, config.Defaults(), WithChat(chat))

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing message", `{"conversation_id":"c1"}`, "Message is required"},
		{"blank message", `{"message":"  "}`, "Message is required"},
		{"invalid json", `{"message":`, "Invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postChat(t, ts.URL, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.want, decodeJSON(t, resp)["error"])
		})
	}
}

func TestChat_RateLimited(t *testing.T) {
	cfg := config.Defaults()
	cfg.Gateway.RateLimit.Requests = 1
	chat, _ := newChat(t, &llm.MockClient{})
	_, ts := testServer(t, cfg, WithChat(chat))

	first := postChat(t, ts.URL, `{"message":"one"}`)
	assert.Equal(t, http.StatusOK, first.StatusCode)
	io.Copy(io.Discard, first.Body)

	second := postChat(t, ts.URL, `{"message":"two"}`)
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	assert.Equal(t, "application/json", second.Header.Get("Content-Type"))
	assert.Equal(t, "Rate limit exceeded", decodeJSON(t, second)["error"])
}

func TestChat_NotConfigured(t *testing.T) {
	_, ts := testServer(t, config.Defaults())

	resp := postChat(t, ts.URL, `{"message":"hello"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

// --- GET /chat ---

func TestHistory(t *testing.T) {
	chat, store := newChat(t, &llm.MockClient{})
	_, ts := testServer(t, config.Defaults(), WithChat(chat), WithStore(store))

	io.Copy(io.Discard, postChat(t, ts.URL, `{"message":"hello","conversation_id":"c1"}`).Body)

	resp, err := http.Get(ts.URL + "/chat?history=true&conversation_id=c1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Messages []domain.Message `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "c1", body.Messages[0].ConversationID)
	assert.Equal(t, domain.RoleUser, body.Messages[0].Role)
	assert.Equal(t, "hello", body.Messages[0].Content)
	assert.JSONEq(t, `[{"type":"text","text":"mock stream response"}]`, body.Messages[1].Content)
}

func TestHistory_UnknownConversationIsEmpty(t *testing.T) {
	_, ts := testServer(t, config.Defaults(), WithStore(agent.NewMemoryStore()))

	resp, err := http.Get(ts.URL + "/chat?history=true&conversation_id=nobody")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{}, decodeJSON(t, resp)["messages"])
}

func TestHistory_BadRequests(t *testing.T) {
	_, ts := testServer(t, config.Defaults(), WithStore(agent.NewMemoryStore()))

	tests := []struct {
		query string
		want  string
	}{
		{"", nonStreamingGET},
		{"?conversation_id=c1", nonStreamingGET},
		{"?history=true", "Conversation ID is required"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp, err := http.Get(ts.URL + "/chat" + tt.query)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.want, decodeJSON(t, resp)["error"])
		})
	}
}

// --- WebSocket ---

func dialChat(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/chat/ws", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWSEvents(t *testing.T, conn *websocket.Conn) []stream.Event {
	t.Helper()
	var events []stream.Event
	for {
		var ev stream.Event
		if err := conn.ReadJSON(&ev); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			return events
		}
		events = append(events, ev)
	}
}

func TestChatWebSocket(t *testing.T) {
	chat, _ := newChat(t, &llm.MockClient{})
	_, ts := testServer(t, config.Defaults(), WithChat(chat))

	conn := dialChat(t, ts)
	require.NoError(t, conn.WriteJSON(agent.ChatRequest{Message: "hello", ConversationID: "ws1"}))

	events := readWSEvents(t, conn)
	assert.Equal(t, []string{stream.TypeID, stream.TypeChunk, stream.TypeMessageComplete, stream.TypeEndTurn}, eventTypes(events))
	assert.Equal(t, "ws1", events[0].ConversationID)
}

func TestChatWebSocket_EmptyMessage(t *testing.T) {
	chat, _ := newChat(t, &llm.MockClient{})
	_, ts := testServer(t, config.Defaults(), WithChat(chat))

	conn := dialChat(t, ts)
	require.NoError(t, conn.WriteJSON(agent.ChatRequest{}))

	events := readWSEvents(t, conn)
	require.Len(t, events, 1)
	assert.Equal(t, stream.TypeError, events[0].Type)
	assert.Equal(t, "Message is required", events[0].Error)
}

func TestCheckWebSocketOrigin(t *testing.T) {
	check := checkWebSocketOrigin([]string{"https://shop.example"})

	req := httptest.NewRequest(http.MethodGet, "/chat/ws", nil)
	assert.True(t, check(req), "no origin")

	req.Header.Set("Origin", "https://shop.example")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))
}

// --- Auth routes ---

func TestAuthCallback_Success(t *testing.T) {
	auth := &fakeAuth{token: &domain.AccessToken{ConversationID: "c1", AccessToken: "secret-token", ExpiresAt: time.Now().Add(time.Hour)}}
	_, ts := testServer(t, config.Defaults(), WithAuth(auth))

	resp, err := http.Get(ts.URL + "/auth/callback?code=abc&state=c1")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), "Authorization Successful")
	assert.Contains(t, string(body), `"c1"`)
	assert.NotContains(t, string(body), "secret-token")
	assert.Equal(t, "abc", auth.gotCode)
	assert.Equal(t, "c1", auth.gotState)
}

func TestAuthCallback_Failures(t *testing.T) {
	tests := []struct {
		name   string
		auth   *fakeAuth
		query  string
		status int
		text   string
	}{
		{"missing code", &fakeAuth{}, "?state=c1", http.StatusBadRequest, "Authorization code is missing"},
		{"denied", &fakeAuth{}, "?error=access_denied&state=c1", http.StatusBadRequest, "Authorization was denied: access_denied"},
		{"exchange fails", &fakeAuth{err: errors.New("token exchange failed: 400")}, "?code=abc&state=c1", http.StatusInternalServerError, "Failed to obtain access token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ts := testServer(t, config.Defaults(), WithAuth(tt.auth))

			resp, err := http.Get(ts.URL + "/auth/callback" + tt.query)
			require.NoError(t, err)
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Contains(t, string(body), "Authorization Failed")
			assert.Contains(t, string(body), tt.text)
		})
	}
}

func TestAuthCallback_NotConfigured(t *testing.T) {
	_, ts := testServer(t, config.Defaults())

	resp, err := http.Get(ts.URL + "/auth/callback?code=abc&state=c1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestTokenStatus(t *testing.T) {
	expires := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name   string
		auth   *fakeAuth
		query  string
		status int
		want   map[string]any
	}{
		{
			name:   "missing id",
			auth:   &fakeAuth{},
			status: http.StatusBadRequest,
			want:   map[string]any{"status": "error", "message": "Missing conversation_id parameter"},
		},
		{
			name:   "authorized",
			auth:   &fakeAuth{token: &domain.AccessToken{ConversationID: "c1", ExpiresAt: expires}},
			query:  "?conversation_id=c1",
			status: http.StatusOK,
			want:   map[string]any{"status": "authorized", "expires_at": "2030-01-02T03:04:05Z"},
		},
		{
			name:   "no token",
			auth:   &fakeAuth{},
			query:  "?conversation_id=c1",
			status: http.StatusOK,
			want:   map[string]any{"status": "unauthorized"},
		},
		{
			name:   "expired token",
			auth:   &fakeAuth{token: &domain.AccessToken{ConversationID: "c1", ExpiresAt: time.Now().Add(-time.Minute)}},
			query:  "?conversation_id=c1",
			status: http.StatusOK,
			want:   map[string]any{"status": "unauthorized"},
		},
		{
			name:   "store error",
			auth:   &fakeAuth{err: errors.New("database is locked")},
			query:  "?conversation_id=c1",
			status: http.StatusInternalServerError,
			want:   map[string]any{"status": "error", "message": "Failed to check token status"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ts := testServer(t, config.Defaults(), WithAuth(tt.auth))

			resp, err := http.Get(ts.URL + "/auth/token-status" + tt.query)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.want, decodeJSON(t, resp))
		})
	}
}

// --- Lifecycle ---

func TestResolveBindAddr(t *testing.T) {
	tests := []struct {
		cfg  config.GatewayConfig
		want string
	}{
		{config.GatewayConfig{Port: 3458, Bind: "loopback"}, "127.0.0.1:3458"},
		{config.GatewayConfig{Port: 3458, Bind: "lan"}, "0.0.0.0:3458"},
		{config.GatewayConfig{Port: 3458, Bind: "auto"}, "0.0.0.0:3458"},
		{config.GatewayConfig{Port: 3458, Bind: "custom", CustomBindHost: "10.1.2.3"}, "10.1.2.3:3458"},
		{config.GatewayConfig{Port: 3458, Bind: "custom"}, "0.0.0.0:3458"},
		{config.GatewayConfig{Port: 3458}, "127.0.0.1:3458"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, resolveBindAddr(tt.cfg))
	}
}

func TestStartEmitsLifecycleHooks(t *testing.T) {
	cfg := config.Defaults()
	cfg.Gateway.Port = 0

	manager := hooks.NewManager(silentLog())
	started := make(chan string, 1)
	stopped := make(chan struct{}, 1)
	manager.On(hooks.EventGatewayStart, "test", func(_ context.Context, p hooks.Payload) error {
		started <- p.Data["addr"].(string)
		return nil
	})
	manager.On(hooks.EventGatewayStop, "test", func(context.Context, hooks.Payload) error {
		stopped <- struct{}{}
		return nil
	})

	srv := New(cfg, silentLog(), WithHooks(manager))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	select {
	case addr := <-started:
		assert.True(t, strings.HasPrefix(addr, "127.0.0.1:"), addr)
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	<-stopped
}
