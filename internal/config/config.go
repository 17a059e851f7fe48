package config

import (
	"fmt"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultPort              = 3458
	DefaultModel             = "claude-3-5-sonnet-latest"
	DefaultMaxTokens         = 2000
	DefaultPromptType        = "standardAssistant"
	DefaultProductSearchTool = "search_shop_catalog"
	DefaultMaxProducts       = 3
	DefaultMaxToolRounds     = 10
	DefaultCustomerScope     = "openid email customer-account-mcp-api:full"
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// AuthorizeEndpoint returns the configured authorize endpoint, derived from the
// shop id when not set explicitly.
func (a AuthConfig) AuthorizeEndpoint() string {
	if a.AuthorizeURL != "" {
		return a.AuthorizeURL
	}
	return fmt.Sprintf("https://shopify.com/authentication/%s/oauth/authorize", a.ShopID)
}

// TokenEndpoint returns the configured token endpoint, derived from the
// shop id when not set explicitly.
func (a AuthConfig) TokenEndpoint() string {
	if a.TokenURL != "" {
		return a.TokenURL
	}
	return fmt.Sprintf("https://shopify.com/authentication/%s/oauth/token", a.ShopID)
}

func durationOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
