package config

import (
	"fmt"
	"net/url"
	"strings"
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
	DefaultBaseURL           = "http://localhost:8000/api/v1"
	DefaultAPITimeout        = 10 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultReconnectDelay    = 5 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultPollInterval      = 30 * time.Second
	DefaultGatewayPort       = 18790

	// The backend's token endpoint accepts these placeholder client
	// credentials unless it is configured otherwise.
	DefaultClientID     = "string"
	DefaultClientSecret = "string"

	realtimePath = "/ws/agent/{agentId}/conversations"
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL:      DefaultBaseURL,
			Timeout:      DefaultAPITimeout,
			ClientID:     DefaultClientID,
			ClientSecret: DefaultClientSecret,
		},
		Realtime: RealtimeConfig{
			Enabled:           true,
			HeartbeatInterval: DefaultHeartbeatInterval,
			ReconnectDelay:    DefaultReconnectDelay,
			HandshakeTimeout:  DefaultHandshakeTimeout,
			RefreshOnPush:     true,
		},
		Unread: UnreadConfig{
			Enabled:      true,
			PollInterval: DefaultPollInterval,
		},
		Credentials: CredentialsConfig{
			Store: "sqlite",
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Port:    DefaultGatewayPort,
			Bind:    "loopback",
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}

// RealtimeURL returns the push-channel URL pattern. An explicit
// realtime.url wins; otherwise the ws(s) URL is derived from api.baseUrl.
func (c Config) RealtimeURL() (string, error) {
	if c.Realtime.URL != "" {
		return c.Realtime.URL, nil
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return "", &ConfigError{Message: "invalid api.baseUrl: " + err.Error()}
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", &ConfigError{Message: fmt.Sprintf("api.baseUrl has unsupported scheme %q", u.Scheme)}
	}
	u.RawQuery = ""
	u.Fragment = ""
	// Keep the placeholder braces unescaped for later substitution.
	return strings.TrimSuffix(u.String(), "/") + realtimePath, nil
}
