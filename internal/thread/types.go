// Package thread stores the agent's own conversation history, keyed by thread.
package thread

import (
	"context"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one stored conversational turn of a thread.
type Message struct {
	ID         string    `json:"id"`
	ThreadID   string    `json:"thread_id"`
	ResourceID string    `json:"resource_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists and retrieves thread messages.
type Store interface {
	Append(ctx context.Context, msgs ...Message) error
	// Recent returns up to limit newest messages of a thread in chronological order.
	Recent(ctx context.Context, threadID string, limit int) ([]Message, error)
	// List returns every message of a thread owned by resourceID, oldest first.
	List(ctx context.Context, threadID, resourceID string) ([]Message, error)
	DeleteThread(ctx context.Context, threadID string) error
	Mode() string
	Close() error
}
