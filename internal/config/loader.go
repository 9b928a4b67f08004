package config

import (
	"errors"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "agentdesk"

// secretRef matches a whole-value or embedded ${NAME} reference.
var secretRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// resolveSecret substitutes ${NAME} references from the environment.
// References to unset variables stay as written so Validate can report them.
func resolveSecret(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return secretRef.ReplaceAllStringFunc(s, func(ref string) string {
		name := secretRef.FindStringSubmatch(ref)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return ref
	})
}

// secrets lists the fields that may hold ${NAME} references.
func secrets(cfg *Config) []*string {
	out := []*string{&cfg.API.ClientSecret, &cfg.Gateway.Auth.Token}
	if cfg.Notify.IRC != nil {
		out = append(out, &cfg.Notify.IRC.Password)
	}
	return out
}

// envOverrides is filled from AGENTDESK_* variables. Unset variables
// leave the corresponding field zero (or nil) and do not override.
type envOverrides struct {
	BaseURL           string        `envconfig:"api_base_url"`
	APITimeout        time.Duration `envconfig:"api_timeout"`
	ClientID          string        `envconfig:"api_client_id"`
	ClientSecret      string        `envconfig:"api_client_secret"`
	RealtimeURL       string        `envconfig:"realtime_url"`
	RealtimeEnabled   *bool         `envconfig:"realtime_enabled"`
	HeartbeatInterval time.Duration `envconfig:"heartbeat_interval"`
	ReconnectDelay    time.Duration `envconfig:"reconnect_delay"`
	RefreshOnPush     *bool         `envconfig:"refresh_on_push"`
	PollInterval      time.Duration `envconfig:"unread_poll_interval"`
	CredentialsStore  string        `envconfig:"credentials_store"`
	GatewayPort       int           `envconfig:"gateway_port"`
	GatewayBind       string        `envconfig:"gateway_bind"`
	GatewayToken      string        `envconfig:"gateway_token"`
	LogLevel          string        `envconfig:"log_level"`
}

// LoadDotEnv loads KEY=value pairs from each existing file into the process
// environment without overriding variables that are already set. Missing
// files are skipped. It returns the files that were read.
func LoadDotEnv(files ...string) ([]string, error) {
	var loaded []string
	for _, f := range files {
		if f == "" {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return loaded, &ConfigError{Message: "failed to load " + f + ": " + err.Error()}
		}
		loaded = append(loaded, f)
	}
	return loaded, nil
}

// readFile returns the file contents, or nil when it does not exist.
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// Load builds the effective config: defaults, then the YAML file if there
// is one, then AGENTDESK_* overrides, then ${NAME} secret references.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := readFile(path)
	if err != nil {
		return cfg, err
	}
	if data != nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
		}
		applyDefaults(&cfg)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	for _, field := range secrets(&cfg) {
		*field = resolveSecret(*field)
	}
	return cfg, nil
}

// LoadRaw reads the file as a plain map for `agentdesk config get/set`.
func LoadRaw(path string) (map[string]any, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes raw back as YAML, replacing the file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = DefaultBaseURL
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = DefaultAPITimeout
	}
	if cfg.API.ClientID == "" {
		cfg.API.ClientID = DefaultClientID
	}
	if cfg.API.ClientSecret == "" {
		cfg.API.ClientSecret = DefaultClientSecret
	}
	if cfg.Realtime.HeartbeatInterval == 0 {
		cfg.Realtime.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.Realtime.ReconnectDelay == 0 {
		cfg.Realtime.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.Realtime.HandshakeTimeout == 0 {
		cfg.Realtime.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.Unread.PollInterval == 0 {
		cfg.Unread.PollInterval = DefaultPollInterval
	}
	if cfg.Credentials.Store == "" {
		cfg.Credentials.Store = "sqlite"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = DefaultGatewayPort
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}
	if cfg.Notify.IRC != nil && cfg.Notify.IRC.Port == 0 {
		if cfg.Notify.IRC.UseTLS {
			cfg.Notify.IRC.Port = 6697
		} else {
			cfg.Notify.IRC.Port = 6667
		}
	}
}

// applyEnvOverrides reads AGENTDESK_* environment variables and overrides
// config values.
func applyEnvOverrides(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return &ConfigError{Message: "invalid environment override: " + err.Error()}
	}

	if env.BaseURL != "" {
		cfg.API.BaseURL = env.BaseURL
	}
	if env.APITimeout > 0 {
		cfg.API.Timeout = env.APITimeout
	}
	if env.ClientID != "" {
		cfg.API.ClientID = env.ClientID
	}
	if env.ClientSecret != "" {
		cfg.API.ClientSecret = env.ClientSecret
	}
	if env.RealtimeURL != "" {
		cfg.Realtime.URL = env.RealtimeURL
	}
	if env.RealtimeEnabled != nil {
		cfg.Realtime.Enabled = *env.RealtimeEnabled
	}
	if env.HeartbeatInterval > 0 {
		cfg.Realtime.HeartbeatInterval = env.HeartbeatInterval
	}
	if env.ReconnectDelay > 0 {
		cfg.Realtime.ReconnectDelay = env.ReconnectDelay
	}
	if env.RefreshOnPush != nil {
		cfg.Realtime.RefreshOnPush = *env.RefreshOnPush
	}
	if env.PollInterval > 0 {
		cfg.Unread.PollInterval = env.PollInterval
	}
	if env.CredentialsStore != "" {
		cfg.Credentials.Store = env.CredentialsStore
	}
	if env.GatewayPort != 0 {
		cfg.Gateway.Port = env.GatewayPort
	}
	if env.GatewayBind != "" {
		cfg.Gateway.Bind = env.GatewayBind
	}
	if env.GatewayToken != "" {
		cfg.Gateway.Auth.Token = env.GatewayToken
	}
	if env.LogLevel != "" {
		cfg.Logging.Level = strings.ToLower(env.LogLevel)
	}
	return nil
}
