package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	// API validation
	if u, err := url.Parse(cfg.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("api.baseUrl", "must be an absolute http(s) URL, got %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout < 0 {
		add("api.timeout", "must not be negative, got %s", cfg.API.Timeout)
	}

	// Realtime validation
	if cfg.Realtime.URL != "" {
		u, err := url.Parse(strings.ReplaceAll(cfg.Realtime.URL, "{agentId}", "x"))
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			add("realtime.url", "must be a ws:// or wss:// URL, got %q", cfg.Realtime.URL)
		}
		if !strings.Contains(cfg.Realtime.URL, "{agentId}") {
			add("realtime.url", "must contain the {agentId} placeholder")
		}
	}
	if cfg.Realtime.HeartbeatInterval < time.Second {
		add("realtime.heartbeatInterval", "must be at least 1s, got %s", cfg.Realtime.HeartbeatInterval)
	}
	if cfg.Realtime.ReconnectDelay <= 0 {
		add("realtime.reconnectDelay", "must be positive, got %s", cfg.Realtime.ReconnectDelay)
	}

	// Unread validation
	if cfg.Unread.Enabled && cfg.Unread.PollInterval < time.Second {
		add("unread.pollInterval", "must be at least 1s, got %s", cfg.Unread.PollInterval)
	}

	validStores := []string{"sqlite", "memory"}
	if cfg.Credentials.Store != "" && !slices.Contains(validStores, cfg.Credentials.Store) {
		add("credentials.store", "must be one of %v, got %q", validStores, cfg.Credentials.Store)
	}

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}

	validBinds := []string{"lan", "loopback", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		add("gateway.bind", "must be one of %v, got %q", validBinds, cfg.Gateway.Bind)
	}
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		add("gateway.customBindHost", "required when bind is custom")
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		add("logging.level", "must be one of %v, got %q", validLogLevels, cfg.Logging.Level)
	}

	validConsoleStyles := []string{"pretty", "compact", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		add("logging.consoleStyle", "must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle)
	}

	// IRC validation (only if configured)
	if irc := cfg.Notify.IRC; irc != nil {
		if irc.Server == "" {
			add("notify.irc.server", "server is required")
		}
		if irc.Nick == "" {
			add("notify.irc.nick", "nick is required")
		}
		if irc.Channel == "" {
			add("notify.irc.channel", "channel is required")
		} else if !strings.HasPrefix(irc.Channel, "#") && !strings.HasPrefix(irc.Channel, "&") {
			add("notify.irc.channel", "must start with # or &, got %q", irc.Channel)
		}
		if irc.Port < 0 || irc.Port > 65535 {
			add("notify.irc.port", "port must be 0-65535, got %d", irc.Port)
		}
		if irc.SASL && irc.Password == "" {
			add("notify.irc.sasl", "SASL requires a password to be set")
		}
	}

	// Hook validation
	for name, entries := range cfg.Hooks.byEvent() {
		for i, h := range entries {
			if strings.TrimSpace(h.Command) == "" {
				add(fmt.Sprintf("hooks.%s[%d].command", name, i), "command is required")
			}
			if h.Timeout < 0 {
				add(fmt.Sprintf("hooks.%s[%d].timeout", name, i), "must not be negative, got %d", h.Timeout)
			}
		}
	}

	return issues
}

// byEvent keys the hook lists by their YAML names.
func (h HooksConfig) byEvent() map[string][]HookEntry {
	return map[string][]HookEntry{
		"messageReceived":          h.MessageReceived,
		"conversationReactivated":  h.ConversationReactivated,
		"handoffReceived":          h.HandoffReceived,
		"transportConnected":       h.TransportConnected,
		"transportDisconnected":    h.TransportDisconnected,
		"unreadChanged":            h.UnreadChanged,
		"applicationStatusChanged": h.ApplicationStatusChanged,
	}
}
