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
	assert.Equal(t, "http://localhost:8000/api/v1", cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, "string", cfg.API.ClientID)
	assert.True(t, cfg.Realtime.Enabled)
	assert.True(t, cfg.Realtime.RefreshOnPush)
	assert.Equal(t, 30*time.Second, cfg.Realtime.HeartbeatInterval)
	assert.Equal(t, 5*time.Second, cfg.Realtime.ReconnectDelay)
	assert.True(t, cfg.Unread.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Unread.PollInterval)
	assert.Equal(t, "sqlite", cfg.Credentials.Store)
	assert.Equal(t, 18790, cfg.Gateway.Port)
	assert.Equal(t, "loopback", cfg.Gateway.Bind)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, Defaults().API, cfg.API)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
api:
  baseUrl: https://support.example.com/api/v1
  timeout: 15s
  clientSecret: ${AGENTDESK_TEST_SECRET}
realtime:
  enabled: true
  heartbeatInterval: 45s
  reconnectDelay: 2s
  refreshOnPush: false
unread:
  enabled: true
  pollInterval: 1m
credentials:
  store: memory
gateway:
  enabled: false
  port: 9999
  bind: lan
  auth:
    token: viewer-token
logging:
  level: debug
  consoleStyle: json
notify:
  irc:
    server: irc.libera.chat
    nick: deskbot
    channel: "#support"
    useTLS: true
hooks:
  messageReceived:
    - command: "notify-send new"
      timeout: 2000
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("AGENTDESK_TEST_SECRET", "s3cret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://support.example.com/api/v1", cfg.API.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout)
	assert.Equal(t, "s3cret", cfg.API.ClientSecret)
	assert.Equal(t, "string", cfg.API.ClientID, "unset client id falls back to default")
	assert.Equal(t, 45*time.Second, cfg.Realtime.HeartbeatInterval)
	assert.Equal(t, 2*time.Second, cfg.Realtime.ReconnectDelay)
	assert.False(t, cfg.Realtime.RefreshOnPush)
	assert.Equal(t, time.Minute, cfg.Unread.PollInterval)
	assert.Equal(t, "memory", cfg.Credentials.Store)
	assert.False(t, cfg.Gateway.Enabled)
	assert.Equal(t, 9999, cfg.Gateway.Port)
	assert.Equal(t, "viewer-token", cfg.Gateway.Auth.Token)
	assert.Equal(t, "debug", cfg.Logging.Level)

	require.NotNil(t, cfg.Notify.IRC)
	assert.Equal(t, "#support", cfg.Notify.IRC.Channel)
	assert.Equal(t, 6697, cfg.Notify.IRC.Port, "TLS port defaulted")

	require.Len(t, cfg.Hooks.MessageReceived, 1)
	assert.Equal(t, "notify-send new", cfg.Hooks.MessageReceived[0].Command)
	assert.Equal(t, 2000, cfg.Hooks.MessageReceived[0].Timeout)
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
	t.Setenv("AGENTDESK_API_BASE_URL", "https://desk.example.org/api/v1")
	t.Setenv("AGENTDESK_HEARTBEAT_INTERVAL", "10s")
	t.Setenv("AGENTDESK_UNREAD_POLL_INTERVAL", "1m")
	t.Setenv("AGENTDESK_REFRESH_ON_PUSH", "false")
	t.Setenv("AGENTDESK_GATEWAY_PORT", "12345")
	t.Setenv("AGENTDESK_LOG_LEVEL", "TRACE")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "https://desk.example.org/api/v1", cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Realtime.HeartbeatInterval)
	assert.Equal(t, time.Minute, cfg.Unread.PollInterval)
	assert.False(t, cfg.Realtime.RefreshOnPush)
	assert.Equal(t, 12345, cfg.Gateway.Port)
	assert.Equal(t, "trace", cfg.Logging.Level)
}

func TestLoadEnvOverrides_Invalid(t *testing.T) {
	t.Setenv("AGENTDESK_GATEWAY_PORT", "not-a-port")

	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	var ce *ConfigError
	assert.ErrorAs(t, err, &ce)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("AGENTDESK_TEST_DOTENV=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("AGENTDESK_TEST_DOTENV") })

	loaded, err := LoadDotEnv(filepath.Join(dir, "missing.env"), envFile, "")
	require.NoError(t, err)
	assert.Equal(t, []string{envFile}, loaded)
	assert.Equal(t, "from-file", os.Getenv("AGENTDESK_TEST_DOTENV"))
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("AGENTDESK_TEST_KEEP=file\n"), 0o600))
	t.Setenv("AGENTDESK_TEST_KEEP", "process")

	_, err := LoadDotEnv(envFile)
	require.NoError(t, err)
	assert.Equal(t, "process", os.Getenv("AGENTDESK_TEST_KEEP"))
}

func TestRealtimeURL(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		explict string
		want    string
		wantErr bool
	}{
		{"http base", "http://localhost:8000/api/v1", "", "ws://localhost:8000/api/v1/ws/agent/{agentId}/conversations", false},
		{"https base", "https://desk.example.com/api/v1/", "", "wss://desk.example.com/api/v1/ws/agent/{agentId}/conversations", false},
		{"explicit url", "http://ignored", "wss://push.example.com/{agentId}", "wss://push.example.com/{agentId}", false},
		{"bad scheme", "ftp://example.com", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.API.BaseURL = tt.base
			cfg.Realtime.URL = tt.explict
			got, err := cfg.RealtimeURL()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseConfigPath(t *testing.T) {
	tests := []struct {
		input   string
		want    []string
		wantErr bool
	}{
		{"realtime.reconnectDelay", []string{"realtime", "reconnectDelay"}, false},
		{"notify.irc.server", []string{"notify", "irc", "server"}, false},
		{"", nil, true},
		{"a..b", nil, true},
		{".api", nil, true},
		{"__proto__.x", nil, true},
		{"gateway.bind mode", nil, true},
		{"hooks.messageReceived[0]", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseConfigPath(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				var ce *ConfigError
				assert.ErrorAs(t, err, &ce)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestValuePathOps(t *testing.T) {
	root := map[string]any{
		"unread": map[string]any{
			"pollInterval": "30s",
			"enabled":      true,
		},
		"simple": "value",
	}

	val, ok := GetValueAtPath(root, []string{"unread", "pollInterval"})
	assert.True(t, ok)
	assert.Equal(t, "30s", val)

	_, ok = GetValueAtPath(root, []string{"simple", "sub"})
	assert.False(t, ok)

	SetValueAtPath(root, []string{"unread", "pollInterval"}, "1m")
	val, _ = GetValueAtPath(root, []string{"unread", "pollInterval"})
	assert.Equal(t, "1m", val)

	SetValueAtPath(root, []string{"notify", "irc", "server"}, "irc.libera.chat")
	val, ok = GetValueAtPath(root, []string{"notify", "irc", "server"})
	assert.True(t, ok)
	assert.Equal(t, "irc.libera.chat", val)

	SetValueAtPath(root, []string{"simple", "port"}, 8080)
	val, ok = GetValueAtPath(root, []string{"simple", "port"})
	assert.True(t, ok)
	assert.Equal(t, 8080, val)

	assert.True(t, UnsetValueAtPath(root, []string{"unread", "enabled"}))
	assert.False(t, UnsetValueAtPath(root, []string{"unread", "enabled"}))
	assert.False(t, UnsetValueAtPath(root, []string{"missing", "key"}))
	_, ok = GetValueAtPath(root, []string{"unread", "pollInterval"})
	assert.True(t, ok)
}

func TestLoadRawAndSaveRaw(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	raw := map[string]any{"gateway": map[string]any{"port": 9999}}
	require.NoError(t, SaveRaw(path, raw))

	loaded, err := LoadRaw(path)
	require.NoError(t, err)
	val, ok := GetValueAtPath(loaded, []string{"gateway", "port"})
	assert.True(t, ok)
	assert.Equal(t, 9999, val)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Gateway.Port)
}

func TestLoadRaw_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	raw, err := LoadRaw(path)
	require.NoError(t, err)
	assert.NotNil(t, raw)
	assert.Empty(t, raw)
}

func TestResolveSecret(t *testing.T) {
	t.Setenv("AGENTDESK_TEST_IRC_PASS", "hunter2")
	os.Unsetenv("AGENTDESK_TEST_UNSET")

	assert.Equal(t, "plain", resolveSecret("plain"))
	assert.Equal(t, "hunter2", resolveSecret("${AGENTDESK_TEST_IRC_PASS}"))
	assert.Equal(t, "pre-hunter2-post", resolveSecret("pre-${AGENTDESK_TEST_IRC_PASS}-post"))
	assert.Equal(t, "${AGENTDESK_TEST_UNSET}", resolveSecret("${AGENTDESK_TEST_UNSET}"))
}
