package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/ent0n29/hojokin/internal/agent"
)

// dataStreamWriter renders agent events as AI SDK data stream parts, one
// "<code>:<json>\n" line each. Headers are sent with the first part, so a
// failure before any event can still become a plain JSON error response.
type dataStreamWriter struct {
	w         http.ResponseWriter
	flusher   http.Flusher
	messageID string
	started   bool
	stepOpen  bool
}

func newDataStreamWriter(w http.ResponseWriter) *dataStreamWriter {
	f, _ := w.(http.Flusher)
	return &dataStreamWriter{w: w, flusher: f, messageID: "msg-" + uuid.NewString()}
}

func (d *dataStreamWriter) Started() bool { return d.started }

func (d *dataStreamWriter) start() {
	if d.started {
		return
	}
	h := d.w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Vercel-AI-Data-Stream", "v1")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	d.w.WriteHeader(http.StatusOK)
	d.started = true
}

type toolCallPart struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args"`
}

type toolResultPart struct {
	ToolCallID string          `json:"toolCallId"`
	Result     json.RawMessage `json:"result"`
}

type stepFinishPart struct {
	FinishReason string      `json:"finishReason"`
	Usage        agent.Usage `json:"usage"`
	IsContinued  bool        `json:"isContinued"`
}

type finishPart struct {
	FinishReason string      `json:"finishReason"`
	Usage        agent.Usage `json:"usage"`
}

// Write is an agent.EventHandler.
func (d *dataStreamWriter) Write(ev agent.Event) error {
	d.start()

	if !d.stepOpen && ev.Type != agent.EventFinish && ev.Type != agent.EventError {
		if err := d.part('f', map[string]string{"messageId": d.messageID}); err != nil {
			return err
		}
		d.stepOpen = true
	}

	var err error
	switch ev.Type {
	case agent.EventTextDelta:
		err = d.part('0', ev.Text)
	case agent.EventToolCall:
		err = d.part('9', toolCallPart{ToolCallID: ev.ToolCallID, ToolName: ev.ToolName, Args: orEmptyObject(ev.Args)})
	case agent.EventToolResult:
		err = d.part('a', toolResultPart{ToolCallID: ev.ToolCallID, Result: orEmptyObject(ev.Result)})
	case agent.EventStepFinish:
		d.stepOpen = false
		err = d.part('e', stepFinishPart{FinishReason: ev.FinishReason, Usage: usageOf(ev), IsContinued: ev.IsContinued})
	case agent.EventFinish:
		err = d.part('d', finishPart{FinishReason: ev.FinishReason, Usage: usageOf(ev)})
	case agent.EventError:
		err = d.part('3', ev.Error)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	if d.flusher != nil {
		d.flusher.Flush()
	}
	return nil
}

// Error writes an error part, starting the stream if needed.
func (d *dataStreamWriter) Error(message string) error {
	return d.Write(agent.Event{Type: agent.EventError, Error: message})
}

func (d *dataStreamWriter) part(code byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(d.w, "%c:%s\n", code, b)
	return err
}

func usageOf(ev agent.Event) agent.Usage {
	if ev.Usage == nil {
		return agent.Usage{}
	}
	return *ev.Usage
}

func orEmptyObject(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || !json.Valid(raw) {
		return json.RawMessage(`{}`)
	}
	return raw
}
