// Package notify alerts the support team about ticket activity via a
// Slack incoming webhook.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"

	"github.com/resolvai/resolvai/pkg/protocol"
)

// SlackNotifier posts ticket lifecycle alerts to a webhook. The zero
// URL disables it; callers can always hold a *SlackNotifier and let it
// no-op.
type SlackNotifier struct {
	webhookURL string
	logger     *slog.Logger
}

// NewSlack creates a notifier. logger may be nil.
func NewSlack(webhookURL string, logger *slog.Logger) *SlackNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlackNotifier{webhookURL: webhookURL, logger: logger}
}

// TicketCreated announces a new ticket so agents can pick it up.
func (n *SlackNotifier) TicketCreated(ctx context.Context, t *protocol.Ticket, customer *protocol.User) {
	n.post(ctx, fmt.Sprintf(":ticket: New ticket from %s: %q", customer.Name, t.Subject))
}

// TicketEscalated announces that a human took over from the bot.
func (n *SlackNotifier) TicketEscalated(ctx context.Context, t *protocol.Ticket, agent *protocol.User) {
	n.post(ctx, fmt.Sprintf(":bust_in_silhouette: %s took over ticket %q (bot disabled)", agent.Name, t.Subject))
}

func (n *SlackNotifier) post(ctx context.Context, text string) {
	if n.webhookURL == "" {
		return
	}
	err := slack.PostWebhookContext(ctx, n.webhookURL, &slack.WebhookMessage{Text: text})
	if err != nil {
		n.logger.Error("slack notification failed", "error", err)
	}
}
