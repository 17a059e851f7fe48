package config

import "time"

// Config is the root configuration for shopchat.
type Config struct {
	Gateway GatewayConfig `yaml:"gateway,omitempty"`
	LLM     LLMConfig     `yaml:"llm,omitempty"`
	Chat    ChatConfig    `yaml:"chat,omitempty"`
	Tools   ToolsConfig   `yaml:"tools,omitempty"`
	Auth    AuthConfig    `yaml:"auth,omitempty"`
	Store   StoreConfig   `yaml:"store,omitempty"`
	Cache   CacheConfig   `yaml:"cache,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// GatewayConfig controls the HTTP server the chat widget talks to.
type GatewayConfig struct {
	Port           int        `yaml:"port,omitempty"`
	Bind           string     `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string     `yaml:"customBindHost,omitempty"`
	AllowedOrigins []string   `yaml:"allowedOrigins,omitempty"`
	TLS            GatewayTLS `yaml:"tls,omitempty"`
	RateLimit      RateLimit  `yaml:"rateLimit,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// RateLimit bounds chat requests per client IP over a sliding window.
type RateLimit struct {
	Requests int           `yaml:"requests,omitempty"`
	Window   time.Duration `yaml:"window,omitempty"`
}

// LLMConfig selects the completion provider.
type LLMConfig struct {
	Provider  string        `yaml:"provider,omitempty"` // "claude"
	APIKey    string        `yaml:"apiKey,omitempty"`
	Model     string        `yaml:"model,omitempty"`
	Fallbacks []string      `yaml:"fallbacks,omitempty"` // models tried when the primary is overloaded
	MaxTokens int           `yaml:"maxTokens,omitempty"`
	Endpoint  string        `yaml:"endpoint,omitempty"`
	Timeout   time.Duration `yaml:"timeout,omitempty"`
}

// ChatConfig tunes the turn loop.
type ChatConfig struct {
	DefaultPromptType    string            `yaml:"defaultPromptType,omitempty"`
	MaxToolRounds        int               `yaml:"maxToolRounds,omitempty"`
	MaxProductsToDisplay int               `yaml:"maxProductsToDisplay,omitempty"`
	ProductSearchTool    string            `yaml:"productSearchTool,omitempty"`
	Prompts              map[string]string `yaml:"prompts,omitempty"` // prompt type -> system prompt override
}

// ToolsConfig locates the two tool backends.
type ToolsConfig struct {
	Storefront StorefrontConfig `yaml:"storefront,omitempty"`
	Customer   CustomerConfig   `yaml:"customer,omitempty"`
	Timeout    time.Duration    `yaml:"timeout,omitempty"`
}

// StorefrontConfig is the shop's public tool server, protected by basic auth.
type StorefrontConfig struct {
	URL      string `yaml:"url,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// CustomerConfig is the customer-account tool server, protected by OAuth.
type CustomerConfig struct {
	AccountURL string `yaml:"accountUrl,omitempty"`
}

// AuthConfig configures the customer-account OAuth client.
type AuthConfig struct {
	ShopID       string        `yaml:"shopId,omitempty"`
	ClientID     string        `yaml:"clientId,omitempty"`
	ClientSecret string        `yaml:"clientSecret,omitempty"`
	RedirectURL  string        `yaml:"redirectUrl,omitempty"` // public base URL; /auth/callback is appended
	Scopes       []string      `yaml:"scopes,omitempty"`
	AuthorizeURL string        `yaml:"authorizeUrl,omitempty"`
	TokenURL     string        `yaml:"tokenUrl,omitempty"`
	VerifierTTL  time.Duration `yaml:"verifierTTL,omitempty"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"` // "sqlite" | "postgres"
	Path   string `yaml:"path,omitempty"`   // sqlite file; defaults to <data>/shopchat.db
	DSN    string `yaml:"dsn,omitempty"`    // postgres connection string
}

// CacheConfig enables the Redis read-through history cache.
type CacheConfig struct {
	RedisURL string        `yaml:"redisUrl,omitempty"`
	TTL      time.Duration `yaml:"ttl,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	Style string `yaml:"style,omitempty"` // "pretty" | "json"
	File  string `yaml:"file,omitempty"`  // JSON log file; relative names live under the logs dir
}
