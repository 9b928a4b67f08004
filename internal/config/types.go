package config

import "time"

// Config is the root configuration for agentdesk.
type Config struct {
	API         APIConfig         `yaml:"api,omitempty"`
	Realtime    RealtimeConfig    `yaml:"realtime,omitempty"`
	Unread      UnreadConfig      `yaml:"unread,omitempty"`
	Credentials CredentialsConfig `yaml:"credentials,omitempty"`
	Gateway     GatewayConfig     `yaml:"gateway,omitempty"`
	Notify      NotifyConfig      `yaml:"notify,omitempty"`
	Hooks       HooksConfig       `yaml:"hooks,omitempty"`
	Logging     LoggingConfig     `yaml:"logging,omitempty"`
}

// APIConfig points at the support backend's REST API.
type APIConfig struct {
	BaseURL      string        `yaml:"baseUrl,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
	ClientID     string        `yaml:"clientId,omitempty"`
	ClientSecret string        `yaml:"clientSecret,omitempty"`
	Scope        string        `yaml:"scope,omitempty"`
}

// RealtimeConfig controls the push channel.
type RealtimeConfig struct {
	Enabled bool `yaml:"enabled"`
	// URL may contain {agentId}; empty means derive it from api.baseUrl.
	URL               string        `yaml:"url,omitempty"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval,omitempty"`
	ReconnectDelay    time.Duration `yaml:"reconnectDelay,omitempty"`
	HandshakeTimeout  time.Duration `yaml:"handshakeTimeout,omitempty"`
	// RefreshOnPush re-fetches the conversation list after every pushed message.
	RefreshOnPush bool `yaml:"refreshOnPush"`
}

// UnreadConfig controls unread-stats reconciliation polling.
type UnreadConfig struct {
	Enabled      bool          `yaml:"enabled"`
	PollInterval time.Duration `yaml:"pollInterval,omitempty"`
}

// CredentialsConfig selects where the session token pair is kept.
type CredentialsConfig struct {
	Store string `yaml:"store,omitempty"` // "sqlite" | "memory"
}

// GatewayConfig controls the local viewer HTTP/WebSocket server.
type GatewayConfig struct {
	Enabled        bool        `yaml:"enabled"`
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
}

// GatewayAuth configures viewer authentication.
type GatewayAuth struct {
	Token string `yaml:"token,omitempty"`
}

// NotifyConfig configures outbound notification relays.
type NotifyConfig struct {
	IRC *IRCConfig `yaml:"irc,omitempty"`
}

// IRCConfig defines the IRC relay.
type IRCConfig struct {
	Server   string `yaml:"server"`
	Port     int    `yaml:"port,omitempty"`
	Nick     string `yaml:"nick"`
	Password string `yaml:"password,omitempty"`
	Channel  string `yaml:"channel"`
	UseTLS   bool   `yaml:"useTLS,omitempty"`
	SASL     bool   `yaml:"sasl,omitempty"`
}

// HooksConfig maps desk events to shell commands.
type HooksConfig struct {
	MessageReceived          []HookEntry `yaml:"messageReceived,omitempty"`
	ConversationReactivated  []HookEntry `yaml:"conversationReactivated,omitempty"`
	HandoffReceived          []HookEntry `yaml:"handoffReceived,omitempty"`
	TransportConnected       []HookEntry `yaml:"transportConnected,omitempty"`
	TransportDisconnected    []HookEntry `yaml:"transportDisconnected,omitempty"`
	UnreadChanged            []HookEntry `yaml:"unreadChanged,omitempty"`
	ApplicationStatusChanged []HookEntry `yaml:"applicationStatusChanged,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
}
