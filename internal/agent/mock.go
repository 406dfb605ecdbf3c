package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/ent0n29/hojokin/internal/logging"
	"github.com/ent0n29/hojokin/internal/thread"
)

// MockAgent replies deterministically without a model, for local runs and tests.
type MockAgent struct {
	name  string
	store thread.Store
}

func NewMockAgent(name string, store thread.Store) *MockAgent {
	if store == nil {
		store = thread.NewInMemoryStore()
	}
	return &MockAgent{name: name, store: store}
}

func (a *MockAgent) Name() string { return a.name }

func (a *MockAgent) Memory() thread.Store { return a.store }

func (a *MockAgent) Stream(ctx context.Context, req Request, onEvent EventHandler) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}

	text := buildMockReply(req)
	if onEvent != nil {
		for _, ev := range []Event{
			{Type: EventTextDelta, Text: text},
			{Type: EventStepFinish, FinishReason: "stop", Usage: &Usage{}},
			{Type: EventFinish, FinishReason: "stop", Usage: &Usage{}},
		} {
			if err := onEvent(ev); err != nil {
				return Response{}, err
			}
		}
	}

	if err := saveTurn(ctx, a.store, req, text); err != nil {
		logging.FromCtx(ctx).Warn().Err(err).Msg("save mock thread turn")
	}
	return Response{Text: text, FinishReason: "stop"}, nil
}

func buildMockReply(req Request) string {
	base := strings.TrimSpace(req.UserText())
	if base == "" {
		base = "（画像を受け取りました）"
	}

	var remembered string
	for _, m := range req.Messages {
		if m.Role != RoleSystem {
			continue
		}
		if _, body, ok := strings.Cut(m.Content, "\n"); ok && strings.TrimSpace(body) != "" {
			lines := strings.Split(strings.TrimSpace(body), "\n")
			remembered = lines[len(lines)-1]
		}
	}

	if remembered == "" {
		return fmt.Sprintf("承知しました: %s", base)
	}
	return fmt.Sprintf("承知しました: %s\n覚えていること: %s", base, remembered)
}
