package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/soyeahso/shopchat/internal/llm"
	"github.com/soyeahso/shopchat/internal/logging"
)

// FailoverClient retries the start of a stream with fallback models when
// the primary model is overloaded or unavailable. Once a stream has started
// its events are passed through untouched.
type FailoverClient struct {
	client    llm.Client
	primary   string
	fallbacks []string
	log       *logging.Logger
}

// NewFailoverClient creates a client that tries the primary model first,
// then falls back through the list on retryable errors (429, 5xx).
func NewFailoverClient(client llm.Client, primary string, fallbacks []string, log *logging.Logger) *FailoverClient {
	return &FailoverClient{
		client:    client,
		primary:   primary,
		fallbacks: fallbacks,
		log:       log.Sub("failover"),
	}
}

// Name returns the wrapped provider name.
func (f *FailoverClient) Name() string {
	return f.client.Name()
}

// Stream tries each model in turn. The last error is returned unchanged so
// callers can still classify it.
func (f *FailoverClient) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
	models := append([]string{f.primary}, f.fallbacks...)
	if req.Model != "" {
		models[0] = req.Model
	}

	var lastErr error
	for i, model := range models {
		req.Model = model
		ch, err := f.client.Stream(ctx, req)
		if err == nil {
			return ch, nil
		}

		lastErr = err

		if i < len(models)-1 && isRetryable(err) {
			f.log.Warn().
				Str("model", model).
				Err(err).
				Msg("retryable stream error, trying next model")
			continue
		}

		return nil, err
	}

	return nil, lastErr
}

// isRetryable checks if the error suggests trying another model. Credential
// errors are not retried since every model shares the same key.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var provErr *llm.ProviderError
	if errors.As(err, &provErr) {
		switch provErr.Code {
		case 429, 500, 502, 503, 529:
			return true
		case 400, 401, 403:
			return false
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "capacity")
}
