package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issuePaths(issues []ValidationIssue) []string {
	var paths []string
	for _, i := range issues {
		paths = append(paths, i.Path)
	}
	return paths
}

func TestValidate_Defaults(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_Table(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"port too large", func(c *Config) { c.Gateway.Port = 70000 }, "gateway.port"},
		{"negative port", func(c *Config) { c.Gateway.Port = -1 }, "gateway.port"},
		{"unknown bind", func(c *Config) { c.Gateway.Bind = "tailnet" }, "gateway.bind"},
		{"tls without cert", func(c *Config) { c.Gateway.TLS.Enabled = true }, "gateway.tls"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "gemini" }, "llm.provider"},
		{"negative max tokens", func(c *Config) { c.LLM.MaxTokens = -5 }, "llm.maxTokens"},
		{"zero tool rounds", func(c *Config) { c.Chat.MaxToolRounds = 0 }, "chat.maxToolRounds"},
		{"negative products", func(c *Config) { c.Chat.MaxProductsToDisplay = -1 }, "chat.maxProductsToDisplay"},
		{"relative storefront url", func(c *Config) { c.Tools.Storefront.URL = "shop.example" }, "tools.storefront.url"},
		{"bad account url scheme", func(c *Config) { c.Tools.Customer.AccountURL = "ftp://x" }, "tools.customer.accountUrl"},
		{"bad redirect url", func(c *Config) { c.Auth.RedirectURL = "/auth" }, "auth.redirectUrl"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }, "store.driver"},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = "postgres" }, "store.dsn"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"unknown log style", func(c *Config) { c.Logging.Style = "compact" }, "logging.style"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			issues := Validate(&cfg)
			require.Len(t, issues, 1, "issues: %v", issues)
			assert.Equal(t, tt.path, issues[0].Path)
		})
	}
}

func TestValidate_MultipleIssues(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Port = 99999
	cfg.Store.Driver = "postgres"
	cfg.Logging.Level = "loud"

	paths := issuePaths(Validate(&cfg))
	assert.ElementsMatch(t, []string{"gateway.port", "store.dsn", "logging.level"}, paths)
}

func TestValidate_ValidURLs(t *testing.T) {
	cfg := Defaults()
	cfg.Tools.Storefront.URL = "https://demo.myshopify.com"
	cfg.Tools.Customer.AccountURL = "https://shopify.com/12345/account"
	cfg.Auth.RedirectURL = "http://localhost:3458"
	assert.Empty(t, Validate(&cfg))
}

func TestValidationIssueString(t *testing.T) {
	issue := ValidationIssue{Path: "store.driver", Message: "bad"}
	assert.Equal(t, "store.driver: bad", issue.String())
}
