package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/shopchat/internal/agent"
	"github.com/soyeahso/shopchat/internal/config"
	"github.com/soyeahso/shopchat/internal/domain"
	"github.com/soyeahso/shopchat/internal/hooks"
	"github.com/soyeahso/shopchat/internal/logging"
	"github.com/soyeahso/shopchat/internal/version"
)

// ChatHandler runs one chat turn, reporting progress through emit.
type ChatHandler interface {
	Handle(ctx context.Context, req agent.ChatRequest, emit agent.Emitter) error
}

// HistoryStore serves stored conversation history.
type HistoryStore interface {
	LoadHistory(ctx context.Context, conversationID string) ([]domain.Message, error)
}

// Authorizer completes customer authorization and reports token status.
type Authorizer interface {
	Exchange(ctx context.Context, code, state string) (*domain.AccessToken, error)
	GetAccessToken(ctx context.Context, conversationID string) (*domain.AccessToken, error)
}

// Server is the shopchat HTTP gateway the chat widget talks to.
type Server struct {
	cfg     config.Config
	log     *logging.Logger
	version string

	// Optional collaborators; routes that need a missing one answer 503.
	chat  ChatHandler
	store HistoryStore
	auth  Authorizer
	hooks *hooks.Manager

	limiter    *rateLimiter
	upgrader   websocket.Upgrader
	now        func() time.Time
	startedAt  time.Time
	httpServer *http.Server
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithChat sets the handler that answers chat requests.
func WithChat(c ChatHandler) ServerOption {
	return func(s *Server) {
		s.chat = c
	}
}

// WithStore sets the store behind history requests.
func WithStore(st HistoryStore) ServerOption {
	return func(s *Server) {
		s.store = st
	}
}

// WithAuth sets the customer authorization service.
func WithAuth(a Authorizer) ServerOption {
	return func(s *Server) {
		s.auth = a
	}
}

// WithHooks sets the hook manager for lifecycle events.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) {
		s.hooks = hm
	}
}

// New creates a new gateway server.
func New(cfg config.Config, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:     cfg,
		log:     log.Sub("gateway"),
		version: version.Version,
		limiter: newRateLimiter(cfg.Gateway.RateLimit.Requests, cfg.Gateway.RateLimit.Window),
		now:     time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Gateway.AllowedOrigins),
		},
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// checkWebSocketOrigin returns a function that validates WebSocket Origin headers.
// Requests without an Origin (non-browser clients) are allowed; otherwise the
// Origin must match one of the configured origins.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return isOriginAllowed(origin, allowed)
	}
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return withMiddleware(mux, s.log, s.cfg.Gateway.AllowedOrigins)
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.GatewayConfig) string {
	switch cfg.Bind {
	case "loopback":
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	case "lan", "auto":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return fmt.Sprintf("%s:%d", host, cfg.Port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Start begins listening for HTTP connections.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Gateway)

	// Streaming handlers clear their own write deadline, so WriteTimeout only
	// bounds the short JSON endpoints.
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(l net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if s.cfg.Gateway.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(s.cfg.Gateway.TLS.CertPath, s.cfg.Gateway.TLS.KeyPath)
		if err != nil {
			ln.Close()
			return fmt.Errorf("loading TLS certificate: %w", err)
		}
		tlsCfg := &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		ln = tls.NewListener(ln, tlsCfg)
		s.log.Info().Msg("TLS enabled")
	} else if s.cfg.Gateway.Bind != "loopback" {
		s.log.Warn().Msg("TLS is not enabled, customer tokens will travel in cleartext")
	}

	s.startedAt = s.now()
	go s.limiter.run(ctx)

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Gateway.Bind).
		Str("version", s.version).
		Bool("chat", s.chat != nil).
		Bool("auth", s.auth != nil).
		Msg("gateway server starting")

	s.hooks.Emit(ctx, hooks.EventGatewayStart, map[string]any{
		"addr": ln.Addr().String(),
	})

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		s.hooks.Emit(context.Background(), hooks.EventGatewayStop, nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
		s.hooks.Wait()
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the server's listen address, or empty string if not started.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}
