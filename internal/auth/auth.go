// Package auth runs the customer-account OAuth flow: PKCE authorization
// links handed out by the tool gateway and the code exchange performed by
// the callback route.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/soyeahso/shopchat/internal/config"
	"github.com/soyeahso/shopchat/internal/domain"
	"github.com/soyeahso/shopchat/internal/logging"
	"golang.org/x/oauth2"
)

// DefaultTokenLifetime applies when the token endpoint omits expires_in.
const DefaultTokenLifetime = time.Hour

// ErrMissingCode is returned by Exchange when the callback carried no code.
var ErrMissingCode = errors.New("authorization code is missing")

// Store persists PKCE verifiers and customer tokens.
type Store interface {
	StoreCodeVerifier(ctx context.Context, state, verifier string, expiresAt time.Time) error
	TakeCodeVerifier(ctx context.Context, state string) (string, bool, error)
	UpsertToken(ctx context.Context, tok domain.AccessToken) error
	GetToken(ctx context.Context, conversationID string) (*domain.AccessToken, error)
}

// Service issues authorization links and redeems authorization codes.
type Service struct {
	oauth       *oauth2.Config
	store       Store
	verifierTTL time.Duration
	httpClient  *http.Client
	now         func() time.Time
	log         *logging.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithHTTPClient sets the client used for the token exchange.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.httpClient = c }
}

// New builds a Service from the auth configuration.
func New(cfg config.AuthConfig, store Store, log *logging.Logger, opts ...Option) *Service {
	ttl := cfg.VerifierTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = strings.Fields(config.DefaultCustomerScope)
	}

	s := &Service{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  strings.TrimRight(cfg.RedirectURL, "/") + "/auth/callback",
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizeEndpoint(),
				TokenURL:  cfg.TokenEndpoint(),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		store:       store,
		verifierTTL: ttl,
		now:         time.Now,
		log:         log.Sub("auth"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// GenerateAuthorizationURL creates a PKCE authorization link whose state is
// the conversation id, so the callback can attach the token to it.
func (s *Service) GenerateAuthorizationURL(ctx context.Context, conversationID string) (domain.AuthURL, error) {
	state := conversationID
	if state == "" {
		state = strconv.FormatInt(s.now().UnixMilli(), 10)
	}

	verifier := oauth2.GenerateVerifier()
	if err := s.store.StoreCodeVerifier(ctx, state, verifier, s.now().Add(s.verifierTTL)); err != nil {
		// The exchange can still proceed without PKCE.
		s.log.Error().Err(err).Str("conversation", state).Msg("failed to store code verifier")
	}

	url := s.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	s.log.Info().Str("conversation", state).Msg("authorization link issued")
	return domain.AuthURL{URL: url, ConversationID: state}, nil
}

// Exchange redeems an authorization code and stores the resulting token for
// the conversation named by state.
func (s *Service) Exchange(ctx context.Context, code, state string) (*domain.AccessToken, error) {
	if code == "" {
		return nil, ErrMissingCode
	}
	if state == "" {
		return nil, errors.New("state is missing")
	}

	var opts []oauth2.AuthCodeOption
	verifier, ok, err := s.store.TakeCodeVerifier(ctx, state)
	switch {
	case err != nil:
		s.log.Error().Err(err).Str("conversation", state).Msg("error retrieving code verifier")
	case !ok:
		s.log.Warn().Str("conversation", state).Msg("code verifier not found, exchanging without PKCE")
	default:
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	if s.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}
	tok, err := s.oauth.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	expires := tok.Expiry
	if expires.IsZero() {
		expires = s.now().Add(DefaultTokenLifetime)
	}
	access := domain.AccessToken{
		ConversationID: state,
		AccessToken:    tok.AccessToken,
		RefreshToken:   tok.RefreshToken,
		ExpiresAt:      expires,
	}
	if err := s.store.UpsertToken(ctx, access); err != nil {
		return nil, fmt.Errorf("storing customer token: %w", err)
	}

	s.log.Info().Str("conversation", state).Time("expires", expires).Msg("customer authorized")
	return &access, nil
}

// GetAccessToken returns the live customer token for a conversation, or nil.
func (s *Service) GetAccessToken(ctx context.Context, conversationID string) (*domain.AccessToken, error) {
	return s.store.GetToken(ctx, conversationID)
}
