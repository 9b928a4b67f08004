package config

import (
	"testing"
	"time"

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

func TestValidateDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, Validate(&cfg))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"relative base url", func(c *Config) { c.API.BaseURL = "/api/v1" }, "api.baseUrl"},
		{"negative timeout", func(c *Config) { c.API.Timeout = -time.Second }, "api.timeout"},
		{"realtime http url", func(c *Config) { c.Realtime.URL = "http://x/{agentId}" }, "realtime.url"},
		{"realtime missing placeholder", func(c *Config) { c.Realtime.URL = "wss://x/agent" }, "realtime.url"},
		{"tiny heartbeat", func(c *Config) { c.Realtime.HeartbeatInterval = 10 * time.Millisecond }, "realtime.heartbeatInterval"},
		{"zero reconnect delay", func(c *Config) { c.Realtime.ReconnectDelay = 0 }, "realtime.reconnectDelay"},
		{"tiny poll", func(c *Config) { c.Unread.PollInterval = time.Millisecond }, "unread.pollInterval"},
		{"bad store", func(c *Config) { c.Credentials.Store = "redis" }, "credentials.store"},
		{"bad port", func(c *Config) { c.Gateway.Port = 99999 }, "gateway.port"},
		{"bad bind", func(c *Config) { c.Gateway.Bind = "tailnet" }, "gateway.bind"},
		{"custom bind host", func(c *Config) { c.Gateway.Bind = "custom" }, "gateway.customBindHost"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad console style", func(c *Config) { c.Logging.ConsoleStyle = "fancy" }, "logging.consoleStyle"},
		{"hook without command", func(c *Config) {
			c.Hooks.UnreadChanged = []HookEntry{{Command: " "}}
		}, "hooks.unreadChanged[0].command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			issues := Validate(&cfg)
			require.NotEmpty(t, issues)
			assert.Contains(t, issuePaths(issues), tt.path)
		})
	}
}

func TestValidate_PollIntervalIgnoredWhenDisabled(t *testing.T) {
	cfg := Defaults()
	cfg.Unread.Enabled = false
	cfg.Unread.PollInterval = 0
	assert.Empty(t, Validate(&cfg))
}

func TestValidateIRC(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.IRC = &IRCConfig{Channel: "support", SASL: true}

	paths := issuePaths(Validate(&cfg))
	assert.Contains(t, paths, "notify.irc.server")
	assert.Contains(t, paths, "notify.irc.nick")
	assert.Contains(t, paths, "notify.irc.channel")
	assert.Contains(t, paths, "notify.irc.sasl")

	cfg.Notify.IRC = &IRCConfig{Server: "irc.libera.chat", Nick: "deskbot", Channel: "#support", Port: 6697}
	assert.Empty(t, Validate(&cfg))
}

func TestValidationIssueString(t *testing.T) {
	v := ValidationIssue{Path: "gateway.port", Message: "bad"}
	assert.Equal(t, "gateway.port: bad", v.String())
}
