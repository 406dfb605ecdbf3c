// Package chat runs one chat turn: remember the user's message, recall
// memories, assemble context and stream the agent's reply.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/hojokin/internal/agent"
	"github.com/ent0n29/hojokin/internal/assembler"
	"github.com/ent0n29/hojokin/internal/memory"
	"github.com/ent0n29/hojokin/internal/observability"
)

const (
	DefaultThreadID   = "default"
	DefaultResourceID = "default-user"

	longTermHeader  = "長期記憶（ユーザーについて覚えていること）:"
	shortTermHeader = "短期記憶（本日の会話メモ）:"
)

// Gateway is the memory surface a turn needs.
type Gateway interface {
	Remember(ctx context.Context, in memory.RememberInput)
	RecallLongTerm(ctx context.Context, q memory.LongTermQuery) ([]memory.QueryResult, error)
	RecallShortTerm(ctx context.Context, q memory.ShortTermQuery) ([]memory.QueryResult, error)
}

// AgentResolver looks agents up by name.
type AgentResolver interface {
	Get(name string) (agent.Agent, error)
}

// Config controls Handler behavior.
type Config struct {
	AgentName  string
	OwnerID    string
	ThreadID   string
	ResourceID string

	RecallTimeout     time.Duration
	WriteTimeout      time.Duration
	// Zero values keep the long-term search defaults.
	TopK                 int
	Threshold            float64
	DisableKeywordSearch bool
	DisableRerank        bool
	ShortTermPageSize    int

	Location *time.Location
	Now      func() time.Time
}

func (c Config) withDefaults() Config {
	if c.ThreadID == "" {
		c.ThreadID = DefaultThreadID
	}
	if c.ResourceID == "" {
		c.ResourceID = DefaultResourceID
	}
	if c.OwnerID == "" {
		c.OwnerID = DefaultResourceID
	}
	if c.RecallTimeout <= 0 {
		c.RecallTimeout = 3 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ShortTermPageSize <= 0 {
		c.ShortTermPageSize = 50
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Handler orchestrates chat turns and the thread history routes.
type Handler struct {
	gateway Gateway
	agents  AgentResolver
	cfg     Config
	metrics *observability.Metrics
}

func NewHandler(gateway Gateway, agents AgentResolver, cfg Config, metrics *observability.Metrics) *Handler {
	return &Handler{
		gateway: gateway,
		agents:  agents,
		cfg:     cfg.withDefaults(),
		metrics: metrics,
	}
}

// Turn runs one chat turn and relays agent events to onEvent as they arrive.
// Memory failures never fail the turn; they degrade to empty context.
func (h *Handler) Turn(ctx context.Context, req Request, onEvent agent.EventHandler) (agent.Response, error) {
	t := h.startTurn(ctx)

	chatTurn, err := req.LastTurn()
	if err != nil {
		return agent.Response{}, t.fail(err)
	}

	t.enter(StatePersisting)
	today := h.cfg.Now().In(h.cfg.Location).Format(memory.DateLayout)
	if chatTurn.Role == agent.RoleUser && chatTurn.Text != "" {
		h.persist(ctx, chatTurn.Text, today)
	}

	t.enter(StateRecalling)
	longTerm, shortTerm := h.recall(ctx, t.logger, chatTurn.Text, today)

	t.enter(StateAssembling)
	assembled := assembler.Merge(longTerm, shortTerm)
	if assembled.Empty() {
		h.metrics.MemoryContext("empty")
	} else {
		h.metrics.MemoryContext("recalled")
	}

	t.enter(StateInvoking)
	ag, err := h.agents.Get(h.cfg.AgentName)
	if err != nil {
		return agent.Response{}, t.fail(err)
	}

	relay := func(ev agent.Event) error {
		if t.state == StateInvoking {
			h.metrics.ObserveFirstToken(time.Since(t.started))
			t.enter(StateStreaming)
		}
		if onEvent == nil {
			return nil
		}
		return onEvent(ev)
	}
	resp, err := ag.Stream(ctx, h.agentRequest(chatTurn, assembled), relay)
	if err != nil {
		return agent.Response{}, t.fail(err)
	}

	t.done()
	return resp, nil
}

func (h *Handler) persist(ctx context.Context, text, date string) {
	// Writes outlive a client abort but not the write timeout.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.cfg.WriteTimeout)
	defer cancel()
	h.gateway.Remember(wctx, memory.RememberInput{
		OwnerID: h.cfg.OwnerID,
		AgentID: h.cfg.AgentName,
		Text:    text,
		Date:    date,
	})
}

func (h *Handler) recall(ctx context.Context, logger *zerolog.Logger, query, date string) (longTerm, shortTerm []memory.QueryResult) {
	var eg errgroup.Group
	if query != "" {
		eg.Go(func() error {
			rctx, cancel := context.WithTimeout(ctx, h.cfg.RecallTimeout)
			defer cancel()
			res, err := h.gateway.RecallLongTerm(rctx, h.longTermQuery(query))
			longTerm = h.recalled(logger, memory.LongTerm, res, err)
			return nil
		})
	}
	eg.Go(func() error {
		rctx, cancel := context.WithTimeout(ctx, h.cfg.RecallTimeout)
		defer cancel()
		res, err := h.gateway.RecallShortTerm(rctx, memory.ShortTermQuery{
			OwnerID:  h.cfg.OwnerID,
			AgentID:  h.cfg.AgentName,
			Date:     date,
			Page:     1,
			PageSize: h.cfg.ShortTermPageSize,
		})
		shortTerm = h.recalled(logger, memory.ShortTerm, res, err)
		return nil
	})
	_ = eg.Wait()
	return longTerm, shortTerm
}

func (h *Handler) longTermQuery(query string) memory.LongTermQuery {
	q := memory.DefaultLongTermQuery(query, h.cfg.OwnerID, h.cfg.AgentName)
	if h.cfg.TopK > 0 {
		q.TopK = h.cfg.TopK
	}
	if h.cfg.Threshold > 0 {
		q.Threshold = h.cfg.Threshold
	}
	if h.cfg.DisableKeywordSearch {
		q.KeywordSearch = false
	}
	if h.cfg.DisableRerank {
		q.Rerank = false
	}
	return q
}

func (h *Handler) recalled(logger *zerolog.Logger, p memory.Partition, res []memory.QueryResult, err error) []memory.QueryResult {
	if err == nil {
		h.metrics.Recall(string(p), "ok")
		return res
	}
	outcome := "error"
	if errors.Is(err, context.DeadlineExceeded) {
		outcome = "timeout"
	}
	h.metrics.Recall(string(p), outcome)
	logger.Warn().Err(err).Str("partition", string(p)).Msg("memory recall degraded to empty")
	return nil
}

func (h *Handler) agentRequest(turn ChatTurn, ctx assembler.AssembledContext) agent.Request {
	return agent.Request{
		ThreadID:   h.cfg.ThreadID,
		ResourceID: h.cfg.ResourceID,
		Messages: []agent.Message{
			{Role: agent.RoleSystem, Content: longTermHeader + "\n" + ctx.LongTermSummary},
			{Role: agent.RoleSystem, Content: shortTermHeader + "\n" + ctx.ShortTermSummary},
			{Role: turn.Role, Content: turn.Text, Attachments: turn.Attachments},
		},
	}
}

// History returns the agent's stored thread as UI messages.
func (h *Handler) History(ctx context.Context) ([]UIMessage, error) {
	ag, err := h.agents.Get(h.cfg.AgentName)
	if err != nil {
		return nil, err
	}
	msgs, err := ag.Memory().List(ctx, h.cfg.ThreadID, h.cfg.ResourceID)
	if err != nil {
		return nil, err
	}
	out := make([]UIMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toUIMessage(m))
	}
	return out, nil
}

// Clear deletes the agent's stored thread. Remembered memories are kept.
func (h *Handler) Clear(ctx context.Context) error {
	ag, err := h.agents.Get(h.cfg.AgentName)
	if err != nil {
		return err
	}
	return ag.Memory().DeleteThread(ctx, h.cfg.ThreadID)
}
