package llm

import (
	"fmt"

	"github.com/soyeahso/shopchat/internal/config"
	"github.com/soyeahso/shopchat/internal/logging"
)

// ProviderError is returned when an LLM provider fails.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP-like status code (401, 429, 529, etc.)
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// NewFromConfig builds the client for the configured provider.
func NewFromConfig(cfg config.LLMConfig, log *logging.Logger) (Client, error) {
	switch cfg.Provider {
	case "", "claude":
		if cfg.APIKey == "" {
			log.Warn().Msg("no Claude API key configured; requests will fail authentication")
		}
		return NewClaudeAPIClient(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
