package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/hojokin/internal/agent"
	"github.com/ent0n29/hojokin/internal/memory"
	"github.com/ent0n29/hojokin/internal/observability"
	"github.com/ent0n29/hojokin/internal/thread"
)

type fakeGateway struct {
	mu         sync.Mutex
	remembered []memory.RememberInput
	longQuery  memory.LongTermQuery
	shortQuery memory.ShortTermQuery

	longTerm  func(ctx context.Context) ([]memory.QueryResult, error)
	shortTerm func(ctx context.Context) ([]memory.QueryResult, error)
}

func (g *fakeGateway) Remember(_ context.Context, in memory.RememberInput) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.remembered = append(g.remembered, in)
}

func (g *fakeGateway) RecallLongTerm(ctx context.Context, q memory.LongTermQuery) ([]memory.QueryResult, error) {
	g.mu.Lock()
	g.longQuery = q
	g.mu.Unlock()
	if g.longTerm == nil {
		return nil, nil
	}
	return g.longTerm(ctx)
}

func (g *fakeGateway) RecallShortTerm(ctx context.Context, q memory.ShortTermQuery) ([]memory.QueryResult, error) {
	g.mu.Lock()
	g.shortQuery = q
	g.mu.Unlock()
	if g.shortTerm == nil {
		return nil, nil
	}
	return g.shortTerm(ctx)
}

// recordingAgent captures the request and replies with fixed events.
type recordingAgent struct {
	name  string
	store thread.Store
	req   agent.Request
	err   error
}

func (a *recordingAgent) Name() string         { return a.name }
func (a *recordingAgent) Memory() thread.Store { return a.store }

func (a *recordingAgent) Stream(_ context.Context, req agent.Request, onEvent agent.EventHandler) (agent.Response, error) {
	a.req = req
	if a.err != nil {
		return agent.Response{}, a.err
	}
	for _, ev := range []agent.Event{
		{Type: agent.EventTextDelta, Text: "該当する補助金は"},
		{Type: agent.EventTextDelta, Text: "見つかりませんでした。"},
		{Type: agent.EventFinish, FinishReason: "stop"},
	} {
		if err := onEvent(ev); err != nil {
			return agent.Response{}, err
		}
	}
	return agent.Response{Text: "該当する補助金は見つかりませんでした。", FinishReason: "stop"}, nil
}

func tokyo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	return loc
}

func newTestHandler(t *testing.T, gw Gateway, ag agent.Agent) (*Handler, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetricsWith("test", prometheus.NewRegistry())
	h := NewHandler(gw, agent.NewRegistry(ag), Config{
		AgentName:     "subsidy-search",
		OwnerID:       "default-user",
		RecallTimeout: 50 * time.Millisecond,
		WriteTimeout:  time.Second,
		Location:      tokyo(t),
		Now:           func() time.Time { return time.Date(2025, 1, 14, 16, 30, 0, 0, time.UTC) },
	}, metrics)
	return h, metrics
}

func userRequest(text string) Request {
	return Request{Messages: []UIMessage{
		{Role: "user", Content: "前の質問"},
		{Role: "assistant", Content: "前の回答"},
		{Role: "user", Content: text},
	}}
}

func TestTurnWithEmptyRecall(t *testing.T) {
	gw := &fakeGateway{}
	ag := &recordingAgent{name: "subsidy-search", store: thread.NewInMemoryStore()}
	h, metrics := newTestHandler(t, gw, ag)

	var events []agent.Event
	resp, err := h.Turn(context.Background(), userRequest("IT補助金を探しています"), func(ev agent.Event) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "該当する補助金は見つかりませんでした。", resp.Text)
	assert.Len(t, events, 3)

	require.Len(t, gw.remembered, 1)
	assert.Equal(t, memory.RememberInput{
		OwnerID: "default-user",
		AgentID: "subsidy-search",
		Text:    "IT補助金を探しています",
		Date:    "2025-01-15",
	}, gw.remembered[0])

	assert.Equal(t, "IT補助金を探しています", gw.longQuery.Query)
	assert.Equal(t, memory.DefaultLongTermQuery("IT補助金を探しています", "default-user", "subsidy-search"), gw.longQuery)
	assert.Equal(t, memory.ShortTermQuery{OwnerID: "default-user", AgentID: "subsidy-search", Date: "2025-01-15", Page: 1, PageSize: 50}, gw.shortQuery)

	require.Len(t, ag.req.Messages, 3)
	assert.Equal(t, agent.RoleSystem, ag.req.Messages[0].Role)
	assert.Equal(t, longTermHeader+"\n", ag.req.Messages[0].Content)
	assert.Equal(t, shortTermHeader+"\n", ag.req.Messages[1].Content)
	assert.Equal(t, agent.Message{Role: agent.RoleUser, Content: "IT補助金を探しています"}, ag.req.Messages[2])
	assert.Equal(t, DefaultThreadID, ag.req.ThreadID)
	assert.Equal(t, DefaultResourceID, ag.req.ResourceID)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ChatTurns.WithLabelValues("done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RecallResults.WithLabelValues("long_term", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MemoryContexts.WithLabelValues("empty")))
}

func TestTurnLongTermQueryOverrides(t *testing.T) {
	gw := &fakeGateway{}
	ag := &recordingAgent{name: "subsidy-search", store: thread.NewInMemoryStore()}
	h := NewHandler(gw, agent.NewRegistry(ag), Config{
		AgentName:     "subsidy-search",
		TopK:          10,
		DisableRerank: true,
		Location:      tokyo(t),
	}, nil)

	_, err := h.Turn(context.Background(), userRequest("ものづくり補助金"), nil)
	require.NoError(t, err)

	want := memory.DefaultLongTermQuery("ものづくり補助金", DefaultResourceID, "subsidy-search")
	want.TopK = 10
	want.Rerank = false
	assert.Equal(t, want, gw.longQuery)
	assert.InDelta(t, 0.4, gw.longQuery.Threshold, 1e-9)
	assert.True(t, gw.longQuery.KeywordSearch)
}

func TestTurnInjectsRecalledContext(t *testing.T) {
	gw := &fakeGateway{
		longTerm: func(context.Context) ([]memory.QueryResult, error) {
			return []memory.QueryResult{{Text: "製造業"}, {Text: " "}, {Text: "従業員20名"}}, nil
		},
		shortTerm: func(context.Context) ([]memory.QueryResult, error) {
			return []memory.QueryResult{{Text: "ものづくり補助金を調べた"}}, nil
		},
	}
	ag := &recordingAgent{name: "subsidy-search", store: thread.NewInMemoryStore()}
	h, metrics := newTestHandler(t, gw, ag)

	_, err := h.Turn(context.Background(), userRequest("続きを教えて"), func(agent.Event) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, longTermHeader+"\n製造業\n従業員20名", ag.req.Messages[0].Content)
	assert.Equal(t, shortTermHeader+"\nものづくり補助金を調べた", ag.req.Messages[1].Content)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MemoryContexts.WithLabelValues("recalled")))
}

func TestTurnDegradesFailedRecalls(t *testing.T) {
	gw := &fakeGateway{
		longTerm: func(context.Context) ([]memory.QueryResult, error) {
			return nil, &memory.RecallError{Partition: memory.LongTerm, Err: errors.New("503")}
		},
		shortTerm: func(ctx context.Context) ([]memory.QueryResult, error) {
			<-ctx.Done()
			return nil, &memory.RecallError{Partition: memory.ShortTerm, Err: ctx.Err()}
		},
	}
	ag := &recordingAgent{name: "subsidy-search", store: thread.NewInMemoryStore()}
	h, metrics := newTestHandler(t, gw, ag)

	_, err := h.Turn(context.Background(), userRequest("補助金"), func(agent.Event) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, longTermHeader+"\n", ag.req.Messages[0].Content)
	assert.Equal(t, shortTermHeader+"\n", ag.req.Messages[1].Content)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RecallResults.WithLabelValues("long_term", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RecallResults.WithLabelValues("short_term", "timeout")))
}

func TestTurnRecallsConcurrently(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	wait := func(ctx context.Context) ([]memory.QueryResult, error) {
		started.Done()
		done := make(chan struct{})
		go func() {
			started.Wait()
			close(done)
		}()
		select {
		case <-done:
			return []memory.QueryResult{{Text: "ok"}}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	gw := &fakeGateway{longTerm: wait, shortTerm: wait}
	ag := &recordingAgent{name: "subsidy-search", store: thread.NewInMemoryStore()}
	h, _ := newTestHandler(t, gw, ag)

	_, err := h.Turn(context.Background(), userRequest("補助金"), func(agent.Event) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, longTermHeader+"\nok", ag.req.Messages[0].Content)
	assert.Equal(t, shortTermHeader+"\nok", ag.req.Messages[1].Content)
}

func TestTurnBadRequest(t *testing.T) {
	gw := &fakeGateway{}
	ag := &recordingAgent{name: "subsidy-search", store: thread.NewInMemoryStore()}
	h, metrics := newTestHandler(t, gw, ag)

	for name, req := range map[string]Request{
		"no messages": {},
		"blank text":  {Messages: []UIMessage{{Role: "user", Content: "  "}}},
		"bad role":    {Messages: []UIMessage{{Role: "robot", Content: "x"}}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := h.Turn(context.Background(), req, nil)
			var bad *BadRequestError
			require.ErrorAs(t, err, &bad)
		})
	}
	assert.Empty(t, gw.remembered)
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.ChatTurns.WithLabelValues("bad_request")))
}

func TestTurnAgentNotFound(t *testing.T) {
	gw := &fakeGateway{}
	h, _ := newTestHandler(t, gw, &recordingAgent{name: "other", store: thread.NewInMemoryStore()})

	_, err := h.Turn(context.Background(), userRequest("補助金"), nil)
	var nf *agent.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Len(t, gw.remembered, 1)
}

func TestTurnAgentError(t *testing.T) {
	boom := errors.New("model unavailable")
	ag := &recordingAgent{name: "subsidy-search", store: thread.NewInMemoryStore(), err: boom}
	h, metrics := newTestHandler(t, &fakeGateway{}, ag)

	_, err := h.Turn(context.Background(), userRequest("補助金"), nil)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ChatTurns.WithLabelValues("failed")))
}

func TestTurnForwardsAttachments(t *testing.T) {
	ag := &recordingAgent{name: "subsidy-search", store: thread.NewInMemoryStore()}
	gw := &fakeGateway{}
	h, _ := newTestHandler(t, gw, ag)

	req := Request{Messages: []UIMessage{{
		Role: "user",
		ExperimentalAttachments: []agent.Attachment{
			{Name: "flyer.png", ContentType: "image/png", URL: "data:image/png;base64,AAAA"},
		},
	}}}
	_, err := h.Turn(context.Background(), req, func(agent.Event) error { return nil })
	require.NoError(t, err)
	require.Len(t, ag.req.Messages[2].Attachments, 1)
	assert.Equal(t, "flyer.png", ag.req.Messages[2].Attachments[0].Name)
	// no text: nothing to remember and no long-term query
	assert.Empty(t, gw.remembered)
	assert.Empty(t, gw.longQuery.Query)
}

func TestHistoryAndClear(t *testing.T) {
	store := thread.NewInMemoryStore()
	mock := agent.NewMockAgent("subsidy-search", store)
	h, _ := newTestHandler(t, &fakeGateway{}, mock)

	_, err := h.Turn(context.Background(), userRequest("IT補助金"), func(agent.Event) error { return nil })
	require.NoError(t, err)

	history, err := h.History(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "IT補助金", history[0].Content)
	assert.Equal(t, []UIPart{{Type: "text", Text: "IT補助金"}}, history[0].Parts)
	assert.Equal(t, "assistant", history[1].Role)

	require.NoError(t, h.Clear(context.Background()))
	history, err = h.History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestUIMessageTextFromParts(t *testing.T) {
	m := UIMessage{Role: "user", Parts: []UIPart{{Type: "text", Text: "a"}, {Type: "step-start"}, {Type: "text", Text: "b"}}}
	assert.Equal(t, "a\nb", m.Text())
}
