package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/shopchat/internal/domain"
)

// UpsertToken stores the customer access token for a conversation,
// replacing any previous one.
func (s *SQLStore) UpsertToken(ctx context.Context, tok domain.AccessToken) error {
	ts := formatTime(s.now())
	_, err := s.db.sql.ExecContext(ctx, s.db.rebind(
		`INSERT INTO customer_tokens (conversation_id, access_token, refresh_token, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (conversation_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`),
		tok.ConversationID, tok.AccessToken, tok.RefreshToken, formatTime(tok.ExpiresAt), ts, ts,
	)
	if err != nil {
		return fmt.Errorf("upserting token for %s: %w", tok.ConversationID, err)
	}
	return nil
}

// GetToken returns the live customer token for a conversation. A missing or
// expired token yields nil with no error.
func (s *SQLStore) GetToken(ctx context.Context, conversationID string) (*domain.AccessToken, error) {
	tok := domain.AccessToken{ConversationID: conversationID}
	var expires string
	err := s.db.sql.QueryRowContext(ctx, s.db.rebind(
		`SELECT access_token, refresh_token, expires_at FROM customer_tokens WHERE conversation_id = ?`),
		conversationID,
	).Scan(&tok.AccessToken, &tok.RefreshToken, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading token for %s: %w", conversationID, err)
	}

	tok.ExpiresAt = parseTime(expires)
	if tok.Expired(s.now()) {
		return nil, nil
	}
	return &tok, nil
}

// StoreCodeVerifier saves the PKCE verifier for an authorization attempt.
// A second attempt for the same state replaces the first.
func (s *SQLStore) StoreCodeVerifier(ctx context.Context, state, verifier string, expiresAt time.Time) error {
	_, err := s.db.sql.ExecContext(ctx, s.db.rebind(
		`INSERT INTO code_verifiers (state, verifier, expires_at, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (state) DO UPDATE SET
			verifier = excluded.verifier,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at`),
		state, verifier, formatTime(expiresAt), formatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("storing code verifier: %w", err)
	}
	return nil
}

// TakeCodeVerifier removes and returns the verifier for state. The boolean
// is false when none exists or it has expired.
func (s *SQLStore) TakeCodeVerifier(ctx context.Context, state string) (string, bool, error) {
	var verifier, expires string
	err := s.db.sql.QueryRowContext(ctx, s.db.rebind(
		`DELETE FROM code_verifiers WHERE state = ? RETURNING verifier, expires_at`), state,
	).Scan(&verifier, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("taking code verifier: %w", err)
	}
	if !parseTime(expires).After(s.now()) {
		return "", false, nil
	}
	return verifier, true, nil
}

// StoreCustomerAccountURL remembers the customer-account base URL used by a
// conversation.
func (s *SQLStore) StoreCustomerAccountURL(ctx context.Context, conversationID, url string) error {
	ts := formatTime(s.now())
	_, err := s.db.sql.ExecContext(ctx, s.db.rebind(
		`INSERT INTO customer_account_urls (conversation_id, url, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (conversation_id) DO UPDATE SET url = excluded.url, updated_at = excluded.updated_at`),
		conversationID, url, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("storing customer account url: %w", err)
	}
	return nil
}

// GetCustomerAccountURL returns the stored URL, or "" when none is known.
func (s *SQLStore) GetCustomerAccountURL(ctx context.Context, conversationID string) (string, error) {
	var url string
	err := s.db.sql.QueryRowContext(ctx, s.db.rebind(
		`SELECT url FROM customer_account_urls WHERE conversation_id = ?`), conversationID,
	).Scan(&url)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading customer account url: %w", err)
	}
	return url, nil
}
