package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/logging"
)

// DefaultCommandTimeout bounds a command hook without its own timeout.
const DefaultCommandTimeout = 10 * time.Second

const maxOutput = 4096

// CommandHandler runs entry.Command through sh with the payload as JSON on
// stdin. AGENTDESK_EVENT carries the event name.
func CommandHandler(entry config.HookEntry, log *logging.Logger) Handler {
	timeout := DefaultCommandTimeout
	if entry.Timeout > 0 {
		timeout = time.Duration(entry.Timeout) * time.Millisecond
	}

	return func(ctx context.Context, p Payload) error {
		input, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode payload: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "sh", "-c", entry.Command)
		cmd.Stdin = bytes.NewReader(input)
		cmd.Env = append(os.Environ(), "AGENTDESK_EVENT="+p.Event)
		cmd.WaitDelay = time.Second

		start := time.Now()
		output, err := cmd.CombinedOutput()
		out := strings.TrimSpace(string(output))
		if len(out) > maxOutput {
			out = out[:maxOutput] + "..."
		}
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("hook %q timed out after %s", entry.Command, timeout)
			}
			return fmt.Errorf("hook %q failed: %w: %s", entry.Command, err, out)
		}
		log.Debug().
			Str("command", entry.Command).
			Dur("took", time.Since(start)).
			Str("output", out).
			Msg("hook command finished")
		return nil
	}
}

// commandEvents pairs each configured hook list with its event.
func commandEvents(cfg config.HooksConfig) map[string][]config.HookEntry {
	return map[string][]config.HookEntry{
		EventMessageReceived:         cfg.MessageReceived,
		EventConversationReactivated: cfg.ConversationReactivated,
		EventHandoffReceived:         cfg.HandoffReceived,
		EventTransportConnected:      cfg.TransportConnected,
		EventTransportDisconnected:   cfg.TransportDisconnected,
		EventUnreadChanged:           cfg.UnreadChanged,
		EventApplicationStatus:       cfg.ApplicationStatusChanged,
	}
}

// RegisterCommands installs a command handler for every configured hook and
// returns how many were registered.
func (m *Manager) RegisterCommands(cfg config.HooksConfig) int {
	n := 0
	byEvent := commandEvents(cfg)
	for _, event := range AllEvents {
		for i, entry := range byEvent[event] {
			if strings.TrimSpace(entry.Command) == "" {
				continue
			}
			name := fmt.Sprintf("command:%s[%d]", event, i)
			m.On(event, name, CommandHandler(entry, m.log))
			n++
		}
	}
	return n
}
