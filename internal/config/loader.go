package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so secrets can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.LLM.APIKey = expandEnvVars(cfg.LLM.APIKey)
	cfg.Tools.Storefront.Password = expandEnvVars(cfg.Tools.Storefront.Password)
	cfg.Auth.ClientSecret = expandEnvVars(cfg.Auth.ClientSecret)
	cfg.Store.DSN = expandEnvVars(cfg.Store.DSN)
	cfg.Cache.RedisURL = expandEnvVars(cfg.Cache.RedisURL)
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = DefaultPort
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Gateway.AllowedOrigins == nil {
		cfg.Gateway.AllowedOrigins = []string{"*"}
	}
	if cfg.Gateway.RateLimit.Requests == 0 {
		cfg.Gateway.RateLimit.Requests = 30
	}
	cfg.Gateway.RateLimit.Window = durationOr(cfg.Gateway.RateLimit.Window, time.Minute)

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "claude"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultModel
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = DefaultMaxTokens
	}
	cfg.LLM.Timeout = durationOr(cfg.LLM.Timeout, 2*time.Minute)

	if cfg.Chat.DefaultPromptType == "" {
		cfg.Chat.DefaultPromptType = DefaultPromptType
	}
	if cfg.Chat.MaxToolRounds == 0 {
		cfg.Chat.MaxToolRounds = DefaultMaxToolRounds
	}
	if cfg.Chat.MaxProductsToDisplay == 0 {
		cfg.Chat.MaxProductsToDisplay = DefaultMaxProducts
	}
	if cfg.Chat.ProductSearchTool == "" {
		cfg.Chat.ProductSearchTool = DefaultProductSearchTool
	}

	cfg.Tools.Timeout = durationOr(cfg.Tools.Timeout, 30*time.Second)

	if len(cfg.Auth.Scopes) == 0 {
		cfg.Auth.Scopes = strings.Fields(DefaultCustomerScope)
	}
	cfg.Auth.VerifierTTL = durationOr(cfg.Auth.VerifierTTL, 10*time.Minute)

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
	cfg.Cache.TTL = durationOr(cfg.Cache.TTL, 10*time.Minute)

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Style == "" {
		cfg.Logging.Style = "pretty"
	}
}

// applyEnvOverrides reads SHOPCHAT_* environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SHOPCHAT_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("SHOPCHAT_GATEWAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("SHOPCHAT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("SHOPCHAT_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("SHOPCHAT_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("SHOPCHAT_REDIS_URL"); v != "" {
		cfg.Cache.RedisURL = v
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("CLAUDE_API_KEY")
	}
}
