package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 3458, cfg.Gateway.Port)
	assert.Equal(t, "loopback", cfg.Gateway.Bind)
	assert.Equal(t, []string{"*"}, cfg.Gateway.AllowedOrigins)
	assert.Equal(t, 30, cfg.Gateway.RateLimit.Requests)
	assert.Equal(t, time.Minute, cfg.Gateway.RateLimit.Window)
	assert.Equal(t, "claude", cfg.LLM.Provider)
	assert.Equal(t, "claude-3-5-sonnet-latest", cfg.LLM.Model)
	assert.Equal(t, 2000, cfg.LLM.MaxTokens)
	assert.Equal(t, "standardAssistant", cfg.Chat.DefaultPromptType)
	assert.Equal(t, 10, cfg.Chat.MaxToolRounds)
	assert.Equal(t, 3, cfg.Chat.MaxProductsToDisplay)
	assert.Equal(t, "search_shop_catalog", cfg.Chat.ProductSearchTool)
	assert.Equal(t, []string{"openid", "email", "customer-account-mcp-api:full"}, cfg.Auth.Scopes)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "pretty", cfg.Logging.Style)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	// Should return defaults
	assert.Equal(t, 3458, cfg.Gateway.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
gateway:
  port: 9999
  bind: lan
  allowedOrigins:
    - https://demo.myshopify.com
  rateLimit:
    requests: 5
    window: 30s
llm:
  model: claude-3-7-sonnet-latest
  maxTokens: 1024
chat:
  defaultPromptType: enthusiasticAssistant
  maxToolRounds: 4
tools:
  storefront:
    url: https://demo.myshopify.com
    username: shop
    password: hunter2
  customer:
    accountUrl: https://shopify.com/1234/account
auth:
  shopId: "1234"
  clientId: client-abc
  redirectUrl: https://chat.example.com
store:
  driver: postgres
  dsn: postgres://chat@localhost/chat
logging:
  level: debug
  style: json
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Gateway.Port)
	assert.Equal(t, "lan", cfg.Gateway.Bind)
	assert.Equal(t, []string{"https://demo.myshopify.com"}, cfg.Gateway.AllowedOrigins)
	assert.Equal(t, 5, cfg.Gateway.RateLimit.Requests)
	assert.Equal(t, 30*time.Second, cfg.Gateway.RateLimit.Window)
	assert.Equal(t, "claude-3-7-sonnet-latest", cfg.LLM.Model)
	assert.Equal(t, 1024, cfg.LLM.MaxTokens)
	assert.Equal(t, "enthusiasticAssistant", cfg.Chat.DefaultPromptType)
	assert.Equal(t, 4, cfg.Chat.MaxToolRounds)
	// Unset chat fields keep their defaults
	assert.Equal(t, 3, cfg.Chat.MaxProductsToDisplay)
	assert.Equal(t, "https://demo.myshopify.com", cfg.Tools.Storefront.URL)
	assert.Equal(t, "shop", cfg.Tools.Storefront.Username)
	assert.Equal(t, "hunter2", cfg.Tools.Storefront.Password)
	assert.Equal(t, "https://shopify.com/1234/account", cfg.Tools.Customer.AccountURL)
	assert.Equal(t, "1234", cfg.Auth.ShopID)
	assert.Equal(t, "client-abc", cfg.Auth.ClientID)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://chat@localhost/chat", cfg.Store.DSN)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Style)

	assert.Empty(t, Validate(&cfg))
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{invalid yaml"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SHOPCHAT_GATEWAY_PORT", "12345")
	t.Setenv("SHOPCHAT_LOG_LEVEL", "TRACE")
	t.Setenv("SHOPCHAT_STORE_DRIVER", "Postgres")
	t.Setenv("SHOPCHAT_STORE_DSN", "postgres://localhost/chat")
	t.Setenv("SHOPCHAT_REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 12345, cfg.Gateway.Port)
	assert.Equal(t, "trace", cfg.Logging.Level)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/chat", cfg.Store.DSN)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Cache.RedisURL)
}

func TestLoadAPIKeyFromEnv(t *testing.T) {
	t.Setenv("CLAUDE_API_KEY", "sk-env")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
}

func TestLoadExpandsSecrets(t *testing.T) {
	t.Setenv("TEST_SHOP_PASSWORD", "from-env")
	t.Setenv("TEST_CLIENT_SECRET", "s3cret")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
llm:
  apiKey: sk-file
tools:
  storefront:
    password: ${TEST_SHOP_PASSWORD}
auth:
  clientSecret: ${TEST_CLIENT_SECRET}
store:
  dsn: ${TEST_UNSET_VARIABLE_XYZ}
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-file", cfg.LLM.APIKey)
	assert.Equal(t, "from-env", cfg.Tools.Storefront.Password)
	assert.Equal(t, "s3cret", cfg.Auth.ClientSecret)
	// Unset variables are left untouched
	assert.Equal(t, "${TEST_UNSET_VARIABLE_XYZ}", cfg.Store.DSN)
}

func TestAuthEndpoints(t *testing.T) {
	a := AuthConfig{ShopID: "987"}
	assert.Equal(t, "https://shopify.com/authentication/987/oauth/authorize", a.AuthorizeEndpoint())
	assert.Equal(t, "https://shopify.com/authentication/987/oauth/token", a.TokenEndpoint())

	a.AuthorizeURL = "http://idp.local/authorize"
	a.TokenURL = "http://idp.local/token"
	assert.Equal(t, "http://idp.local/authorize", a.AuthorizeEndpoint())
	assert.Equal(t, "http://idp.local/token", a.TokenEndpoint())
}

func TestParseConfigPath(t *testing.T) {
	tests := []struct {
		input   string
		want    []string
		wantErr bool
	}{
		{"gateway.port", []string{"gateway", "port"}, false},
		{"tools.storefront.url", []string{"tools", "storefront", "url"}, false},
		{"", nil, true},
		{"a..b", nil, true},
		{"__proto__.x", nil, true},
		{"x.constructor", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseConfigPath(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestGetSetValueAtPath(t *testing.T) {
	root := map[string]any{
		"gateway": map[string]any{
			"port": 3458,
		},
	}

	// Get existing
	val, ok := GetValueAtPath(root, []string{"gateway", "port"})
	assert.True(t, ok)
	assert.Equal(t, 3458, val)

	// Get missing
	_, ok = GetValueAtPath(root, []string{"gateway", "missing"})
	assert.False(t, ok)

	// Set existing
	SetValueAtPath(root, []string{"gateway", "port"}, 9999)
	val, ok = GetValueAtPath(root, []string{"gateway", "port"})
	assert.True(t, ok)
	assert.Equal(t, 9999, val)

	// Set new nested
	SetValueAtPath(root, []string{"tools", "storefront", "url"}, "https://demo.myshopify.com")
	val, ok = GetValueAtPath(root, []string{"tools", "storefront", "url"})
	assert.True(t, ok)
	assert.Equal(t, "https://demo.myshopify.com", val)
}

func TestLoadRawAndSaveRaw(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	raw := map[string]any{
		"gateway": map[string]any{
			"port": 9999,
		},
	}

	require.NoError(t, SaveRaw(path, raw))

	loaded, err := LoadRaw(path)
	require.NoError(t, err)

	val, ok := GetValueAtPath(loaded, []string{"gateway", "port"})
	assert.True(t, ok)
	assert.Equal(t, 9999, val)
}

func TestLoadRawMissingFile(t *testing.T) {
	raw, err := LoadRaw(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.NotNil(t, raw)
	assert.Empty(t, raw)
}
