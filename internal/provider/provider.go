// Package provider abstracts the text generation engine behind a small
// chat interface.
package provider

import (
	"context"

	"github.com/resolvai/resolvai/pkg/protocol"
)

// Provider is the abstraction over LLM APIs.
type Provider interface {
	Chat(ctx context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error)
	Name() string
}
