package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command against a config file holding yamlCfg.
func runCLI(t *testing.T, yamlCfg string, args ...string) (string, error) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("SHOPCHAT_HOME", home)

	cfgPath := filepath.Join(home, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(yamlCfg), 0o600))

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", cfgPath, "--log-level", "silent"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestPromptsList(t *testing.T) {
	out, err := runCLI(t, "chat:\n  prompts:\n    terse: Be brief.\n", "prompts", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "standardAssistant (default)")
	assert.Contains(t, out, "enthusiasticAssistant")
	assert.Contains(t, out, "terse")
}

func TestPromptsShow(t *testing.T) {
	out, err := runCLI(t, "chat:\n  prompts:\n    terse: Be brief.\n", "prompts", "show", "terse")
	require.NoError(t, err)
	assert.Equal(t, "Be brief.\n", out)

	out, err = runCLI(t, "", "prompts", "show", "pirate")
	require.NoError(t, err)
	assert.Contains(t, out, `unknown prompt type "pirate", showing standardAssistant`)
}

func TestConfigValidate(t *testing.T) {
	out, err := runCLI(t, "gateway:\n  port: 4000\n", "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Config OK")

	_, err = runCLI(t, "gateway:\n  bind: moon\nstore:\n  driver: mysql\n", "config", "validate")
	assert.EqualError(t, err, "config validation failed with 2 issue(s)")
}

func TestDBMigrate(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "chat.db")
	out, err := runCLI(t, "store:\n  driver: sqlite\n  path: "+dbPath+"\n", "db", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Database (sqlite) is up to date")
	assert.FileExists(t, dbPath)
}

func TestStatus(t *testing.T) {
	cfg := `gateway:
  port: 4000
llm:
  model: claude-test
  fallbacks: [claude-backup]
tools:
  storefront:
    url: https://shop.example
cache:
  redisUrl: redis://localhost:6379/0
`
	t.Setenv("CLAUDE_API_KEY", "")
	out, err := runCLI(t, cfg, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Gateway: port=4000 bind=loopback")
	assert.Contains(t, out, "model=claude-test (fallbacks: claude-backup) apiKey=missing")
	assert.Contains(t, out, "storefront=https://shop.example customer=(none)")
	assert.Contains(t, out, "Auth:    (not configured)")
	assert.Contains(t, out, "Store:   sqlite path=")
	assert.Contains(t, out, "Cache:   redis ttl=10m0s")
	assert.NotContains(t, out, "Validation issues")
}

func TestConfigGetMasksSecrets(t *testing.T) {
	cfg := "llm:\n  apiKey: sk-live-123\n  model: claude-test\ntools:\n  storefront:\n    password: ${STOREFRONT_PASSWORD}\n"

	out, err := runCLI(t, cfg, "config", "get", "llm.apiKey")
	require.NoError(t, err)
	assert.Equal(t, "****\n", out)

	out, err = runCLI(t, cfg, "config", "get", "llm")
	require.NoError(t, err)
	assert.Contains(t, out, "apiKey: '****'")
	assert.Contains(t, out, "model: claude-test")

	out, err = runCLI(t, cfg, "config", "get", "tools.storefront.password")
	require.NoError(t, err)
	assert.Equal(t, "${STOREFRONT_PASSWORD}\n", out)

	out, err = runCLI(t, cfg, "config", "get", "--reveal", "llm.apiKey")
	require.NoError(t, err)
	assert.Equal(t, "sk-live-123\n", out)
}

func TestConfigSetAndUnset(t *testing.T) {
	home := t.TempDir()
	t.Setenv("SHOPCHAT_HOME", home)
	cfgPath := filepath.Join(home, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("gateway:\n  port: 3458\n"), 0o600))

	run := func(args ...string) string {
		cmd := newRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(append([]string{"--config", cfgPath, "--log-level", "silent"}, args...))
		require.NoError(t, cmd.Execute())
		return out.String()
	}

	assert.Equal(t, "gateway.port = 9000\n", run("config", "set", "gateway.port", "9000"))
	assert.Equal(t, "9000\n", run("config", "get", "gateway.port"))
	assert.Equal(t, "removed gateway.port\n", run("config", "unset", "gateway.port"))

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "9000")
}

func TestLoggingFileUnderLogsDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("SHOPCHAT_HOME", home)
	cfgPath := filepath.Join(home, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("logging:\n  file: cli.log\n"), 0o600))

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfgPath, "--log-level", "silent", "prompts", "list"})
	require.NoError(t, cmd.Execute())

	_, err := os.Stat(filepath.Join(home, "logs", "cli.log"))
	assert.NoError(t, err)
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, true, parseValue("true"))
	assert.Equal(t, false, parseValue("FALSE"))
	assert.Equal(t, 8080, parseValue("8080"))
	assert.Equal(t, 1.5, parseValue("1.5"))
	assert.Equal(t, "loopback", parseValue("loopback"))
}
