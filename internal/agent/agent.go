// Package agent runs the subsidy-search assistant: it streams model output,
// executes tool calls and keeps its own thread history.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/ent0n29/hojokin/internal/observability"
	"github.com/ent0n29/hojokin/internal/thread"
	"github.com/ent0n29/hojokin/internal/tool"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Attachment is a media reference carried by a user message.
type Attachment struct {
	Name        string `json:"name,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	URL         string `json:"url"`
}

// IsImage reports whether the attachment can be sent as an image part.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(a.ContentType), "image/")
}

// Message is one input message for a run.
type Message struct {
	Role        string
	Content     string
	Attachments []Attachment
}

// Request is one agent run bound to a thread.
type Request struct {
	ThreadID   string
	ResourceID string
	Messages   []Message
}

// UserText returns the content of the last user message.
func (r Request) UserText() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}

type EventType string

const (
	EventTextDelta  EventType = "text-delta"
	EventToolCall   EventType = "tool-call"
	EventToolResult EventType = "tool-result"
	EventStepFinish EventType = "step-finish"
	EventFinish     EventType = "finish"
	EventError      EventType = "error"
)

// Usage counts tokens for a step or a whole run.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

func (u *Usage) add(o Usage) {
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
}

// Event is one streamed unit of agent output.
type Event struct {
	Type         EventType       `json:"type"`
	Text         string          `json:"text,omitempty"`
	ToolCallID   string          `json:"toolCallId,omitempty"`
	ToolName     string          `json:"toolName,omitempty"`
	Args         json.RawMessage `json:"args,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	FinishReason string          `json:"finishReason,omitempty"`
	Usage        *Usage          `json:"usage,omitempty"`
	IsContinued  bool            `json:"isContinued,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// EventHandler receives events in order. Returning an error aborts the run.
type EventHandler func(Event) error

// Response is the outcome of a completed run.
type Response struct {
	Text         string
	FinishReason string
	Usage        Usage
}

// Agent produces a streamed reply for a request.
type Agent interface {
	Name() string
	Stream(ctx context.Context, req Request, onEvent EventHandler) (Response, error)
	// Memory is the thread store the agent reads history from and appends to.
	Memory() thread.Store
}

// NotFoundError is returned when no agent is registered under a name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("agent %q not found", e.Name)
}

// Registry resolves agents by name.
type Registry struct {
	agents map[string]Agent
}

func NewRegistry(agents ...Agent) *Registry {
	r := &Registry{agents: make(map[string]Agent, len(agents))}
	for _, a := range agents {
		r.agents[a.Name()] = a
	}
	return r
}

func (r *Registry) Get(name string) (Agent, error) {
	if r != nil {
		if a, ok := r.agents[name]; ok {
			return a, nil
		}
	}
	return nil, &NotFoundError{Name: name}
}

// Config controls agent construction.
type Config struct {
	Name          string
	Mode          string
	APIKey        string
	BaseURL       string
	Model         string
	MaxToolRounds int
	HistoryLimit  int
	Tools         *tool.Registry
	Store         thread.Store
	Metrics       *observability.Metrics
	HTTPClient    *http.Client
}

// New builds an agent for the configured mode. "auto" uses the OpenAI
// agent when an API key is present and the mock otherwise.
func New(cfg Config) (Agent, error) {
	if cfg.Store == nil {
		cfg.Store = thread.NewInMemoryStore()
	}
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.APIKey) != "" {
			return NewOpenAIAgent(cfg)
		}
		return NewMockAgent(cfg.Name, cfg.Store), nil
	case "openai":
		return NewOpenAIAgent(cfg)
	case "mock":
		return NewMockAgent(cfg.Name, cfg.Store), nil
	default:
		return nil, goerr.New("unsupported agent mode", goerr.V("mode", cfg.Mode))
	}
}

func saveTurn(ctx context.Context, store thread.Store, req Request, reply string) error {
	msgs := make([]thread.Message, 0, 2)
	if text := strings.TrimSpace(req.UserText()); text != "" {
		msgs = append(msgs, thread.Message{ThreadID: req.ThreadID, ResourceID: req.ResourceID, Role: thread.RoleUser, Content: text})
	}
	if strings.TrimSpace(reply) != "" {
		msgs = append(msgs, thread.Message{ThreadID: req.ThreadID, ResourceID: req.ResourceID, Role: thread.RoleAssistant, Content: reply})
	}
	if len(msgs) == 0 {
		return nil
	}
	return store.Append(ctx, msgs...)
}
