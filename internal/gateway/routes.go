package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/soyeahso/shopchat/internal/agent"
	"github.com/soyeahso/shopchat/internal/domain"
	"github.com/soyeahso/shopchat/internal/stream"
)

const (
	// maxChatBody bounds a chat request body or first WebSocket frame.
	maxChatBody = 1 << 20

	// wsRequestWait is how long a WebSocket client has to send its request.
	wsRequestWait = 10 * time.Second

	nonStreamingGET = "This endpoint only supports server-sent events (SSE) requests or history requests."
)

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /chat", s.handleHistory)
	mux.HandleFunc("GET /chat/ws", s.handleChatWS)
	mux.HandleFunc("GET /auth/callback", s.handleAuthCallback)
	mux.HandleFunc("GET /auth/token-status", s.handleTokenStatus)

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// handleChat answers one message as a server-sent event stream.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow(r.RemoteAddr) {
		s.reqLog(r.Context()).Warn().Str("remote", r.RemoteAddr).Msg("chat rate limited")
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
		return
	}
	if s.chat == nil {
		writeError(w, http.StatusServiceUnavailable, "Chat is not configured")
		return
	}

	var req agent.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}

	sink, err := stream.NewSSEWriter(w)
	if err != nil {
		s.reqLog(r.Context()).Error().Err(err).Msg("cannot open event stream")
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	s.runTurn(r.Context(), req, sink)
}

// runTurn drives one chat turn into sink and closes it.
func (s *Server) runTurn(ctx context.Context, req agent.ChatRequest, sink stream.Sink) {
	pub := stream.NewPublisher(ctx, sink, s.reqLog(ctx))
	defer pub.Close()

	if err := s.chat.Handle(ctx, req, pub); err != nil {
		pub.Fail(err)
	}
}

// handleHistory returns the stored messages of a conversation.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("history") != "true" {
		writeError(w, http.StatusBadRequest, nonStreamingGET)
		return
	}

	convID := q.Get("conversation_id")
	if convID == "" {
		writeError(w, http.StatusBadRequest, "Conversation ID is required")
		return
	}
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "History is not available")
		return
	}

	msgs, err := s.store.LoadHistory(r.Context(), convID)
	if err != nil {
		s.reqLog(r.Context()).Error().Err(err).Str("conversation", convID).Msg("failed to load history")
		writeError(w, http.StatusInternalServerError, "Failed to load conversation history")
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// handleChatWS answers one message over a WebSocket. The client sends the
// chat request as its first frame and receives the same events as the SSE
// stream; the server closes the socket when the turn ends.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow(r.RemoteAddr) {
		s.reqLog(r.Context()).Warn().Str("remote", r.RemoteAddr).Msg("chat rate limited")
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
		return
	}
	if s.chat == nil {
		writeError(w, http.StatusServiceUnavailable, "Chat is not configured")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.reqLog(r.Context()).Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxChatBody)

	sink := stream.NewWSWriter(conn)

	conn.SetReadDeadline(time.Now().Add(wsRequestWait))
	var req agent.ChatRequest
	if err := conn.ReadJSON(&req); err != nil {
		s.reqLog(r.Context()).Warn().Err(err).Str("remote", r.RemoteAddr).Msg("reading websocket chat request")
		sink.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})

	if strings.TrimSpace(req.Message) == "" {
		sink.WriteEvent(stream.Event{Type: stream.TypeError, Error: "Message is required"})
		sink.Close()
		return
	}

	// A hijacked connection no longer cancels the request context, so a
	// reader watches for the client going away.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	s.runTurn(ctx, req, sink)
}

// handleAuthCallback completes the customer OAuth flow and renders a page
// that notifies the widget and closes itself.
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		renderCallback(w, http.StatusServiceUnavailable, callbackPage{Error: "Customer authorization is not configured."})
		return
	}

	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		if desc := q.Get("error_description"); desc != "" {
			reason = desc
		}
		renderCallback(w, http.StatusBadRequest, callbackPage{Error: "Authorization was denied: " + reason})
		return
	}

	code := q.Get("code")
	if code == "" {
		renderCallback(w, http.StatusBadRequest, callbackPage{Error: "Authorization code is missing"})
		return
	}

	tok, err := s.auth.Exchange(r.Context(), code, q.Get("state"))
	if err != nil {
		s.reqLog(r.Context()).Error().Err(err).Str("conversation", q.Get("state")).Msg("error exchanging code for token")
		renderCallback(w, http.StatusInternalServerError, callbackPage{Error: "Failed to obtain access token"})
		return
	}

	renderCallback(w, http.StatusOK, callbackPage{
		ConversationID: tok.ConversationID,
		ExpiresIn:      int64(tok.ExpiresAt.Sub(s.now()).Seconds()),
	})
}

// handleTokenStatus lets the widget poll for a completed authorization.
func (s *Server) handleTokenStatus(w http.ResponseWriter, r *http.Request) {
	convID := r.URL.Query().Get("conversation_id")
	if convID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status":  "error",
			"message": "Missing conversation_id parameter",
		})
		return
	}
	if s.auth == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "unauthorized"})
		return
	}

	tok, err := s.auth.GetAccessToken(r.Context(), convID)
	if err != nil {
		s.reqLog(r.Context()).Error().Err(err).Str("conversation", convID).Msg("error checking token status")
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"message": "Failed to check token status",
		})
		return
	}
	if tok == nil || tok.Expired(s.now()) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "unauthorized"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "authorized",
		"expires_at": tok.ExpiresAt.UTC().Format(time.RFC3339Nano),
	})
}
