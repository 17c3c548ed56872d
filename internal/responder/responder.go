// Package responder turns ticket history plus a new customer message
// into an automated reply.
package responder

import (
	"context"
	"log/slog"

	"github.com/resolvai/resolvai/internal/provider"
	"github.com/resolvai/resolvai/pkg/protocol"
)

// HistoryWindow is how many prior messages are included as context.
const HistoryWindow = 5

// Fallback is sent whenever the generation engine fails. The customer
// always receives some reply; errors are never surfaced to the room.
const Fallback = "I am currently experiencing high traffic. Please wait for a human agent."

const systemPrompt = `You are a helpful Customer Support AI for a company called "ResolvAI".
Be polite, concise, and professional.
If you cannot solve the issue, ask the customer to wait for a human agent.`

// Responder generates replies via an LLM provider.
type Responder struct {
	prov   provider.Provider
	logger *slog.Logger
}

// New creates a Responder. logger may be nil.
func New(prov provider.Provider, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{prov: prov, logger: logger}
}

// Reply builds a role-tagged transcript from the history window and the
// new customer message and asks the provider for a reply. On any
// provider failure the fixed fallback text is returned instead; the
// second return value reports whether the reply is the fallback.
//
// history must not contain the new message — the caller passes prior
// messages only, so the transcript never holds a duplicate of the text
// being answered.
func (r *Responder) Reply(ctx context.Context, history []protocol.Message, content string) (string, bool) {
	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}

	messages := make([]protocol.ChatMessage, 0, len(history)+1)
	for _, m := range history {
		role := "assistant"
		if m.Sender.IsHuman() {
			role = "user"
		}
		messages = append(messages, protocol.ChatMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, protocol.ChatMessage{Role: "user", Content: content})

	resp, err := r.prov.Chat(ctx, protocol.ChatRequest{
		System:   systemPrompt,
		Messages: messages,
	})
	if err != nil {
		r.logger.Error("generation failed, using fallback", "provider", r.prov.Name(), "error", err)
		return Fallback, true
	}
	if resp.Content == "" {
		r.logger.Warn("generation returned empty reply, using fallback", "provider", r.prov.Name())
		return Fallback, true
	}
	return resp.Content, false
}
