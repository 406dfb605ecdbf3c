package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/hojokin/internal/agent"
	"github.com/ent0n29/hojokin/internal/chat"
	"github.com/ent0n29/hojokin/internal/config"
	"github.com/ent0n29/hojokin/internal/memory"
	"github.com/ent0n29/hojokin/internal/observability"
	"github.com/ent0n29/hojokin/internal/thread"
)

type fakeChat struct {
	turn    func(ctx context.Context, req chat.Request, onEvent agent.EventHandler) (agent.Response, error)
	history func(ctx context.Context) ([]chat.UIMessage, error)
	clear   func(ctx context.Context) error
}

func (f *fakeChat) Turn(ctx context.Context, req chat.Request, onEvent agent.EventHandler) (agent.Response, error) {
	return f.turn(ctx, req, onEvent)
}

func (f *fakeChat) History(ctx context.Context) ([]chat.UIMessage, error) { return f.history(ctx) }
func (f *fakeChat) Clear(ctx context.Context) error                       { return f.clear(ctx) }

type emptyGateway struct{}

func (emptyGateway) Remember(context.Context, memory.RememberInput) {}
func (emptyGateway) RecallLongTerm(context.Context, memory.LongTermQuery) ([]memory.QueryResult, error) {
	return nil, nil
}
func (emptyGateway) RecallShortTerm(context.Context, memory.ShortTermQuery) ([]memory.QueryResult, error) {
	return nil, nil
}

func testConfig() config.Config {
	return config.Config{AgentName: "subsidy-search", MaxBodyBytes: 1 << 20}
}

func newTestServer(t *testing.T, svc ChatService) *httptest.Server {
	t.Helper()
	metrics := observability.NewMetricsWith("test", prometheus.NewRegistry())
	ts := httptest.NewServer(New(testConfig(), svc, metrics, "in-memory").Router())
	t.Cleanup(ts.Close)
	return ts
}

func newMockChat(agentName string) *chat.Handler {
	ag := agent.NewMockAgent(agentName, thread.NewInMemoryStore())
	return chat.NewHandler(emptyGateway{}, agent.NewRegistry(ag), chat.Config{AgentName: "subsidy-search"}, nil)
}

func postChat(t *testing.T, url, body string) *http.Response {
	t.Helper()
	res, err := http.Post(url+"/api/chat", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func streamLines(t *testing.T, r io.Reader) []string {
	t.Helper()
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}

func decodeBody(t *testing.T, res *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return out
}

func TestUIRoutes(t *testing.T) {
	ts := newTestServer(t, newMockChat("subsidy-search"))

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	rootRes, err := client.Get(ts.URL + "/")
	require.NoError(t, err)
	defer rootRes.Body.Close()
	assert.Equal(t, http.StatusTemporaryRedirect, rootRes.StatusCode)
	assert.Equal(t, "/ui/", rootRes.Header.Get("Location"))

	uiRes, err := http.Get(ts.URL + "/ui/")
	require.NoError(t, err)
	defer uiRes.Body.Close()
	assert.Equal(t, http.StatusOK, uiRes.StatusCode)
	body, err := io.ReadAll(uiRes.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `id="chat"`)
}

func TestHealthAndPerf(t *testing.T) {
	ts := newTestServer(t, newMockChat("subsidy-search"))

	res, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, "in-memory", decodeBody(t, res)["store_mode"])

	perf, err := http.Get(ts.URL + "/api/perf/latency")
	require.NoError(t, err)
	defer perf.Body.Close()
	assert.Equal(t, http.StatusOK, perf.StatusCode)
	assert.Contains(t, decodeBody(t, perf), "stages")
}

func TestChatStreamsDataProtocol(t *testing.T) {
	ts := newTestServer(t, newMockChat("subsidy-search"))

	res := postChat(t, ts.URL, `{"messages":[{"role":"user","content":"IT補助金を探しています"}]}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "v1", res.Header.Get("X-Vercel-AI-Data-Stream"))
	assert.Equal(t, "text/plain; charset=utf-8", res.Header.Get("Content-Type"))

	lines := streamLines(t, res.Body)
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], `f:{"messageId":"msg-`))
	assert.Equal(t, `0:"承知しました: IT補助金を探しています"`, lines[1])
	assert.JSONEq(t, `{"finishReason":"stop","usage":{"promptTokens":0,"completionTokens":0},"isContinued":false}`, strings.TrimPrefix(lines[2], "e:"))
	assert.JSONEq(t, `{"finishReason":"stop","usage":{"promptTokens":0,"completionTokens":0}}`, strings.TrimPrefix(lines[3], "d:"))

	hist, err := http.Get(ts.URL + "/api/chat/history")
	require.NoError(t, err)
	defer hist.Body.Close()
	messages := decodeBody(t, hist)["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "IT補助金を探しています", messages[0].(map[string]any)["content"])

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/chat/clear", nil)
	require.NoError(t, err)
	clr, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer clr.Body.Close()
	assert.Equal(t, http.StatusOK, clr.StatusCode)
	assert.Equal(t, true, decodeBody(t, clr)["success"])
}

func TestChatBadRequest(t *testing.T) {
	ts := newTestServer(t, newMockChat("subsidy-search"))

	for name, body := range map[string]string{
		"empty messages": `{"messages":[]}`,
		"not json":       `hello`,
		"blank message":  `{"messages":[{"role":"user","content":"  "}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			res := postChat(t, ts.URL, body)
			assert.Equal(t, http.StatusBadRequest, res.StatusCode)
			out := decodeBody(t, res)
			assert.Equal(t, "bad_request", out["error"])
			assert.NotEmpty(t, out["message"])
		})
	}
}

func TestChatAgentNotFound(t *testing.T) {
	ts := newTestServer(t, newMockChat("someone-else"))

	res := postChat(t, ts.URL, `{"messages":[{"role":"user","content":"補助金"}]}`)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	out := decodeBody(t, res)
	assert.Equal(t, "internal_error", out["error"])
	assert.Equal(t, "Internal Server Error", out["message"])
}

func TestChatErrorAfterStreamStarted(t *testing.T) {
	svc := &fakeChat{turn: func(_ context.Context, _ chat.Request, onEvent agent.EventHandler) (agent.Response, error) {
		if err := onEvent(agent.Event{Type: agent.EventTextDelta, Text: "途中まで"}); err != nil {
			return agent.Response{}, err
		}
		return agent.Response{}, errors.New("model stream broke")
	}}
	ts := newTestServer(t, svc)

	res := postChat(t, ts.URL, `{"messages":[{"role":"user","content":"補助金"}]}`)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	lines := streamLines(t, res.Body)
	require.Len(t, lines, 3)
	assert.Equal(t, `0:"途中まで"`, lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "3:"))
}

func TestHistoryDegradesToEmpty(t *testing.T) {
	svc := &fakeChat{history: func(context.Context) ([]chat.UIMessage, error) {
		return nil, errors.New("store down")
	}}
	ts := newTestServer(t, svc)

	res, err := http.Get(ts.URL + "/api/chat/history")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"messages":[]}`, string(body))
}

func TestClearFailure(t *testing.T) {
	svc := &fakeChat{clear: func(context.Context) error { return errors.New("store down") }}
	ts := newTestServer(t, svc)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/chat/clear", nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false}`, string(body))
}

func TestChatWebsocket(t *testing.T) {
	ts := newTestServer(t, newMockChat("subsidy-search"))

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	require.NoError(t, conn.WriteJSON(chat.Request{Messages: []chat.UIMessage{{Role: "user", Content: "こんにちは"}}}))

	var types []agent.EventType
	for {
		var ev agent.Event
		require.NoError(t, conn.ReadJSON(&ev))
		types = append(types, ev.Type)
		if ev.Type == agent.EventTextDelta {
			assert.Equal(t, "承知しました: こんにちは", ev.Text)
		}
		if ev.Type == agent.EventFinish {
			break
		}
	}
	assert.Equal(t, []agent.EventType{agent.EventTextDelta, agent.EventStepFinish, agent.EventFinish}, types)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"messages":[]}`)))
	var ev agent.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, agent.EventError, ev.Type)
}
