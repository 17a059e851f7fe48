// Package toolgw routes model tool calls to the storefront and customer
// tool servers and normalizes their outcomes into tool results.
package toolgw

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/soyeahso/shopchat/internal/config"
	"github.com/soyeahso/shopchat/internal/domain"
	"github.com/soyeahso/shopchat/internal/logging"
	"github.com/soyeahso/shopchat/internal/mcp"
)

// TokenSource returns the live customer token for a conversation, or nil.
type TokenSource interface {
	GetToken(ctx context.Context, conversationID string) (*domain.AccessToken, error)
}

// Authorizer starts the customer authorization flow for a conversation.
type Authorizer interface {
	GenerateAuthorizationURL(ctx context.Context, conversationID string) (domain.AuthURL, error)
}

// AccountURLStore remembers the customer-account URL per conversation.
type AccountURLStore interface {
	GetCustomerAccountURL(ctx context.Context, conversationID string) (string, error)
	StoreCustomerAccountURL(ctx context.Context, conversationID, url string) error
}

// Gateway creates per-conversation tool sessions.
type Gateway struct {
	cfg        config.ToolsConfig
	httpClient *http.Client
	tokens     TokenSource
	authz      Authorizer
	accounts   AccountURLStore
	log        *logging.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithTokens sets the customer token source.
func WithTokens(t TokenSource) Option { return func(g *Gateway) { g.tokens = t } }

// WithAuthorizer sets the authorization URL generator used on 401.
func WithAuthorizer(a Authorizer) Option { return func(g *Gateway) { g.authz = a } }

// WithAccountURLs sets the per-conversation customer-account URL store.
func WithAccountURLs(s AccountURLStore) Option { return func(g *Gateway) { g.accounts = s } }

// WithHTTPClient overrides the HTTP client used for both backends.
func WithHTTPClient(c *http.Client) Option { return func(g *Gateway) { g.httpClient = c } }

// New creates a tool gateway.
func New(cfg config.ToolsConfig, log *logging.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		cfg:        cfg,
		httpClient: &http.Client{},
		log:        log.Sub("toolgw"),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.cfg.Timeout <= 0 {
		g.cfg.Timeout = 30 * time.Second
	}
	return g
}

// Session is the tool view of one conversation for the duration of a turn.
type Session struct {
	gw             *Gateway
	conversationID string
	catalog        *Catalog
	storefront     *mcp.Client
	customer       *mcp.Client
}

// Connect lists both backends concurrently and merges their catalogs. A
// backend that cannot be listed contributes no tools.
func (g *Gateway) Connect(ctx context.Context, conversationID string) *Session {
	s := &Session{gw: g, conversationID: conversationID}

	if base := strings.TrimRight(g.cfg.Storefront.URL, "/"); base != "" {
		s.storefront = mcp.NewClient(string(BackendStorefront), base+"/api/mcp", g.httpClient, g.log)
	}
	if endpoint := g.customerEndpoint(ctx, conversationID); endpoint != "" {
		s.customer = mcp.NewClient(string(BackendCustomer), endpoint, g.httpClient, g.log)
	}

	var storefrontTools, customerTools []domain.ToolDescriptor
	var wg conc.WaitGroup
	if s.storefront != nil {
		wg.Go(func() { storefrontTools = s.list(ctx, s.storefront, BackendStorefront) })
	}
	if s.customer != nil {
		wg.Go(func() { customerTools = s.list(ctx, s.customer, BackendCustomer) })
	}
	wg.Wait()

	s.catalog = MergeCatalog(customerTools, storefrontTools, g.log)
	g.log.Info().
		Str("conversationId", conversationID).
		Int("storefrontTools", len(storefrontTools)).
		Int("customerTools", len(customerTools)).
		Msg("connected to tool servers")
	return s
}

func (s *Session) list(ctx context.Context, client *mcp.Client, backend Backend) []domain.ToolDescriptor {
	ctx, cancel := context.WithTimeout(ctx, s.gw.cfg.Timeout)
	defer cancel()

	tools, err := client.ListTools(ctx, s.header(ctx, backend))
	if err != nil {
		s.gw.log.Warn().Err(err).Str("backend", string(backend)).Str("conversationId", s.conversationID).
			Msg("failed to list tools, continuing without them")
		return nil
	}
	return tools
}

// Tools returns the merged catalog offered to the model.
func (s *Session) Tools() []domain.ToolDescriptor {
	return s.catalog.Tools()
}

// Catalog returns the session's routing catalog.
func (s *Session) Catalog() *Catalog {
	return s.catalog
}

// CallTool dispatches name to the backend that advertised it. It never
// returns a Go error: every failure is folded into the Result.
func (s *Session) CallTool(ctx context.Context, name string, input json.RawMessage) Result {
	backend, ok := s.catalog.Route(name)
	if !ok {
		return internalError("Tool not found: %s", name)
	}
	if err := s.catalog.Validate(name, input); err != nil {
		return internalError("Invalid arguments for %s: %v", name, err)
	}

	client := s.storefront
	if backend == BackendCustomer {
		client = s.customer
	}

	callCtx, cancel := context.WithTimeout(ctx, s.gw.cfg.Timeout)
	defer cancel()

	start := time.Now()
	raw, err := client.CallTool(callCtx, name, input, s.header(callCtx, backend))
	elapsed := time.Since(start)
	if err != nil {
		var statusErr *mcp.StatusError
		if backend == BackendCustomer && errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
			s.gw.log.Info().Str("tool", name).Str("conversationId", s.conversationID).Msg("customer tool requires authorization")
			return s.authRequired(ctx)
		}
		s.gw.log.Warn().Err(err).Str("tool", name).Str("backend", string(backend)).Dur("duration", elapsed).Msg("tool call failed")
		return internalError("%v", err)
	}
	s.gw.log.Debug().Str("tool", name).Str("backend", string(backend)).Dur("duration", elapsed).Msg("tool call succeeded")
	return decodeResult(raw)
}

func (s *Session) authRequired(ctx context.Context) Result {
	if s.gw.authz == nil {
		s.gw.log.Warn().Str("conversationId", s.conversationID).Msg("customer authorization requested but no authorizer is configured")
		return Result{Error: &ToolError{Type: ErrorAuthRequired, Data: authRequiredMessage("")}}
	}
	authURL, err := s.gw.authz.GenerateAuthorizationURL(ctx, s.conversationID)
	if err != nil {
		s.gw.log.Error().Err(err).Str("conversationId", s.conversationID).Msg("failed to generate authorization URL")
		return internalError("Failed to start customer authorization: %v", err)
	}
	return Result{Error: &ToolError{Type: ErrorAuthRequired, Data: authRequiredMessage(authURL.URL)}}
}

// header builds the credentials for one backend request. Customer tokens
// are re-read on every call so a completed authorization takes effect on
// the next call without any server-side resume state.
func (s *Session) header(ctx context.Context, backend Backend) http.Header {
	h := http.Header{}
	switch backend {
	case BackendStorefront:
		cfg := s.gw.cfg.Storefront
		if cfg.Username != "" || cfg.Password != "" {
			creds := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
			h.Set("Authorization", "Basic "+creds)
		}
	case BackendCustomer:
		token := ""
		if s.gw.tokens != nil {
			tok, err := s.gw.tokens.GetToken(ctx, s.conversationID)
			if err != nil {
				s.gw.log.Warn().Err(err).Str("conversationId", s.conversationID).Msg("failed to read customer token")
			} else if tok != nil {
				token = tok.AccessToken
			}
		}
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

// customerEndpoint resolves the customer tool server for a conversation:
// the stored per-conversation account URL first, then the configured one,
// which is remembered for the conversation on first use.
func (g *Gateway) customerEndpoint(ctx context.Context, conversationID string) string {
	if g.accounts != nil {
		stored, err := g.accounts.GetCustomerAccountURL(ctx, conversationID)
		if err != nil {
			g.log.Warn().Err(err).Str("conversationId", conversationID).Msg("failed to read customer account URL")
		}
		if stored != "" {
			return strings.TrimRight(stored, "/") + "/customer/api/mcp"
		}
	}

	accountURL := strings.TrimRight(g.cfg.Customer.AccountURL, "/")
	if accountURL == "" {
		return ""
	}
	if g.accounts != nil {
		if err := g.accounts.StoreCustomerAccountURL(ctx, conversationID, accountURL); err != nil {
			g.log.Warn().Err(err).Str("conversationId", conversationID).Msg("failed to store customer account URL")
		}
	}
	return accountURL + "/customer/api/mcp"
}

// decodeResult maps a tools/call result onto a Result. A content array is
// kept verbatim; any other result shape becomes one text block holding the
// raw JSON. Results flagged isError become internal errors.
func decodeResult(raw json.RawMessage) Result {
	var body struct {
		Content json.RawMessage `json:"content"`
		IsError bool            `json:"isError"`
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return Result{}
	}
	if err := json.Unmarshal(raw, &body); err != nil || !isArray(body.Content) {
		return Result{Content: textContent(raw)}
	}
	if body.IsError {
		return internalError("%s", contentText(body.Content))
	}
	return Result{Content: body.Content}
}

// contentText joins the text blocks of a content array.
func contentText(content json.RawMessage) string {
	var blocks []domain.ContentBlock
	if err := json.Unmarshal(content, &blocks); err != nil {
		return string(content)
	}
	var parts []string
	for _, b := range blocks {
		if b.Type == domain.BlockText {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}
