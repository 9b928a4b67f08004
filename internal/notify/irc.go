// Package notify relays desk notifications to places an agent watches
// outside the dashboard.
package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/lrstanley/girc"
	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/logging"
	"github.com/soyeahso/agentdesk/internal/version"
)

// ErrNotConnected is returned by Notify before the relay has registered
// with the IRC server.
var ErrNotConnected = errors.New("irc: not connected")

// maxLineBytes keeps a PRIVMSG well under the 512 byte IRC line limit.
const maxLineBytes = 400

// Status is the runtime state of a relay.
type Status struct {
	Connected bool   `json:"connected"`
	Running   bool   `json:"running"`
	Channel   string `json:"channel"`
	LastError string `json:"lastError,omitempty"`
}

// IRC posts notifications to one IRC channel.
type IRC struct {
	cfg config.IRCConfig
	log *logging.Logger

	mu      sync.RWMutex
	client  *girc.Client
	ready   bool
	running bool
	lastErr string
}

// NewIRC creates an IRC relay from configuration.
func NewIRC(cfg config.IRCConfig, log *logging.Logger) *IRC {
	return &IRC{cfg: cfg, log: log.Sub("irc")}
}

func (r *IRC) port() int {
	switch {
	case r.cfg.Port != 0:
		return r.cfg.Port
	case r.cfg.UseTLS:
		return 6697
	default:
		return 6667
	}
}

// Status returns the current runtime status.
func (r *IRC) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Status{
		Connected: r.ready,
		Running:   r.running,
		Channel:   r.cfg.Channel,
		LastError: r.lastErr,
	}
}

// Start connects and blocks until the connection ends or ctx is done.
func (r *IRC) Start(ctx context.Context) error {
	if r.cfg.Server == "" || r.cfg.Nick == "" || r.cfg.Channel == "" {
		return fmt.Errorf("irc: server, nick and channel are required")
	}

	gircCfg := girc.Config{
		Server:  r.cfg.Server,
		Port:    r.port(),
		Nick:    r.cfg.Nick,
		User:    r.cfg.Nick,
		Name:    "agentdesk notifications",
		SSL:     r.cfg.UseTLS,
		Version: "agentdesk/" + version.Version,
	}
	if r.cfg.UseTLS {
		gircCfg.TLSConfig = &tls.Config{ServerName: r.cfg.Server}
	}
	if r.cfg.SASL && r.cfg.Password != "" {
		gircCfg.SASL = &girc.SASLPlain{User: r.cfg.Nick, Pass: r.cfg.Password}
	} else if r.cfg.Password != "" {
		gircCfg.ServerPass = r.cfg.Password
	}

	client := girc.New(gircCfg)
	client.Handlers.Add(girc.CONNECTED, r.onConnected)
	client.Handlers.Add(girc.DISCONNECTED, r.onDisconnected)

	r.mu.Lock()
	r.client = client
	r.running = true
	r.lastErr = ""
	r.mu.Unlock()

	r.log.Info().
		Str("server", r.cfg.Server).
		Int("port", r.port()).
		Str("nick", r.cfg.Nick).
		Str("channel", r.cfg.Channel).
		Bool("tls", r.cfg.UseTLS).
		Msg("connecting to IRC")

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Connect()
	}()

	select {
	case err := <-errCh:
		r.mu.Lock()
		r.running = false
		r.ready = false
		if err != nil {
			r.lastErr = err.Error()
		}
		r.mu.Unlock()
		if err != nil {
			return fmt.Errorf("irc connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		client.Close()
		r.mu.Lock()
		r.running = false
		r.ready = false
		r.mu.Unlock()
		return ctx.Err()
	}
}

// Stop quits the server.
func (r *IRC) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil && r.client.IsConnected() {
		r.log.Info().Msg("disconnecting from IRC")
		r.client.Quit("agentdesk shutting down")
	}
	r.ready = false
	r.running = false
}

// Notify posts text to the configured channel, one PRIVMSG per line.
func (r *IRC) Notify(_ context.Context, text string) error {
	r.mu.RLock()
	client, ready := r.client, r.ready
	r.mu.RUnlock()
	if client == nil || !ready {
		return ErrNotConnected
	}

	lines := splitMessage(text, maxLineBytes)
	for _, line := range lines {
		client.Cmd.Message(r.cfg.Channel, line)
	}
	r.log.Debug().Str("to", r.cfg.Channel).Int("lines", len(lines)).Msg("sent IRC notification")
	return nil
}

func (r *IRC) onConnected(c *girc.Client, _ girc.Event) {
	r.log.Info().Str("nick", c.GetNick()).Str("channel", r.cfg.Channel).Msg("connected to IRC")
	c.Cmd.Join(r.cfg.Channel)
	r.mu.Lock()
	r.ready = true
	r.mu.Unlock()
}

func (r *IRC) onDisconnected(_ *girc.Client, _ girc.Event) {
	r.log.Warn().Msg("disconnected from IRC")
	r.mu.Lock()
	r.ready = false
	r.mu.Unlock()
}

// splitMessage breaks text into IRC-sized lines. Blank lines are dropped
// and long lines are cut on rune boundaries.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		for len(line) > maxLen {
			cut := maxLen
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if strings.TrimSpace(line) != "" {
			chunks = append(chunks, line)
		}
	}
	return chunks
}
