package notify

import (
	"context"
	"fmt"

	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/hooks"
)

// Notifier delivers a rendered notification line.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

const hookName = "notify"

// Register relays customer messages for conversations the agent is not
// looking at, and every handoff, to n.
func Register(hm *hooks.Manager, n Notifier) {
	hm.On(hooks.EventMessageReceived, hookName, func(ctx context.Context, p hooks.Payload) error {
		text, ok := formatMessage(p.Data)
		if !ok {
			return nil
		}
		return n.Notify(ctx, text)
	})
	hm.On(hooks.EventHandoffReceived, hookName, func(ctx context.Context, p hooks.Payload) error {
		return n.Notify(ctx, formatHandoff(p.Data))
	})
}

// Unregister removes the relay handlers.
func Unregister(hm *hooks.Manager) {
	hm.Off(hooks.EventMessageReceived, hookName)
	hm.Off(hooks.EventHandoffReceived, hookName)
}

func formatMessage(data map[string]any) (string, bool) {
	if selected, _ := data["selected"].(bool); selected {
		return "", false
	}
	source, _ := data["source"].(string)
	direction, _ := data["direction"].(string)
	if source != string(domain.SourceUser) && direction != string(domain.DirectionInbound) {
		return "", false
	}
	conv, _ := data["conversationId"].(string)
	content, _ := data["content"].(string)
	return fmt.Sprintf("[%s] %s", conv, content), true
}

func formatHandoff(data map[string]any) string {
	conv, _ := data["conversationId"].(string)
	text := fmt.Sprintf("Handoff: conversation %s", conv)
	if name, _ := data["customerName"].(string); name != "" {
		text = fmt.Sprintf("Handoff: %s (conversation %s)", name, conv)
	}
	if reason, _ := data["reason"].(string); reason != "" {
		text += " - " + reason
	}
	return text
}
