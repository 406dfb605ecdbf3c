package chat

import (
	"strings"
	"time"

	"github.com/ent0n29/hojokin/internal/agent"
	"github.com/ent0n29/hojokin/internal/thread"
)

// UIPart is one part of a UI message. Only text parts carry content we read.
type UIPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// UIMessage is the message shape exchanged with the chat page.
type UIMessage struct {
	ID                      string             `json:"id,omitempty"`
	Role                    string             `json:"role"`
	Content                 string             `json:"content"`
	Parts                   []UIPart           `json:"parts,omitempty"`
	ExperimentalAttachments []agent.Attachment `json:"experimental_attachments,omitempty"`
	CreatedAt               *time.Time         `json:"createdAt,omitempty"`
}

// Text returns the message content, falling back to its text parts.
func (m UIMessage) Text() string {
	if strings.TrimSpace(m.Content) != "" {
		return m.Content
	}
	var texts []string
	for _, p := range m.Parts {
		if p.Type == "text" && strings.TrimSpace(p.Text) != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Request is the body of a chat turn.
type Request struct {
	Messages []UIMessage `json:"messages"`
}

// ChatTurn is the inbound message a turn acts on.
type ChatTurn struct {
	Role        string
	Text        string
	Attachments []agent.Attachment
}

// LastTurn takes the newest message of the request. Earlier messages are
// ignored; the agent keeps its own thread history.
func (r Request) LastTurn() (ChatTurn, error) {
	if len(r.Messages) == 0 {
		return ChatTurn{}, &BadRequestError{Reason: "messages is empty"}
	}
	last := r.Messages[len(r.Messages)-1]

	role := strings.TrimSpace(last.Role)
	switch role {
	case "":
		role = agent.RoleUser
	case agent.RoleUser, agent.RoleAssistant, agent.RoleSystem:
	default:
		return ChatTurn{}, &BadRequestError{Reason: "unknown message role " + role}
	}

	turn := ChatTurn{Role: role, Text: strings.TrimSpace(last.Text())}
	for _, att := range last.ExperimentalAttachments {
		if strings.TrimSpace(att.URL) != "" {
			turn.Attachments = append(turn.Attachments, att)
		}
	}
	if turn.Text == "" && len(turn.Attachments) == 0 {
		return ChatTurn{}, &BadRequestError{Reason: "last message has neither text nor attachments"}
	}
	return turn, nil
}

func toUIMessage(m thread.Message) UIMessage {
	created := m.CreatedAt
	return UIMessage{
		ID:        m.ID,
		Role:      m.Role,
		Content:   m.Content,
		Parts:     []UIPart{{Type: "text", Text: m.Content}},
		CreatedAt: &created,
	}
}
