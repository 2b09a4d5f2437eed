package ai

import (
	"context"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry of the outbound message list.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Completer sends an ordered message list to a model and returns the assistant text.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}
