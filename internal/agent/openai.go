package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	openai "github.com/sashabaranov/go-openai"

	"github.com/ent0n29/hojokin/internal/logging"
	"github.com/ent0n29/hojokin/internal/observability"
	"github.com/ent0n29/hojokin/internal/thread"
	"github.com/ent0n29/hojokin/internal/tool"
)

const (
	defaultModel         = "gpt-5-nano"
	defaultMaxToolRounds = 5
	defaultHistoryLimit  = 10
)

// OpenAIAgent streams chat completions from an OpenAI-compatible endpoint
// and runs requested tools until the model answers in text.
type OpenAIAgent struct {
	name          string
	model         string
	client        *openai.Client
	tools         *tool.Registry
	store         thread.Store
	metrics       *observability.Metrics
	maxToolRounds int
	historyLimit  int
}

func NewOpenAIAgent(cfg Config) (*OpenAIAgent, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, goerr.New("openai api key is required for openai agent mode")
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		oc.BaseURL = base
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	rounds := cfg.MaxToolRounds
	if rounds <= 0 {
		rounds = defaultMaxToolRounds
	}
	history := cfg.HistoryLimit
	if history < 0 {
		history = defaultHistoryLimit
	}
	store := cfg.Store
	if store == nil {
		store = thread.NewInMemoryStore()
	}

	return &OpenAIAgent{
		name:          cfg.Name,
		model:         model,
		client:        openai.NewClientWithConfig(oc),
		tools:         cfg.Tools,
		store:         store,
		metrics:       cfg.Metrics,
		maxToolRounds: rounds,
		historyLimit:  history,
	}, nil
}

func (a *OpenAIAgent) Name() string { return a.name }

func (a *OpenAIAgent) Memory() thread.Store { return a.store }

func (a *OpenAIAgent) Stream(ctx context.Context, req Request, onEvent EventHandler) (Response, error) {
	logger := logging.FromCtx(ctx)
	emit := func(ev Event) error {
		if onEvent == nil {
			return nil
		}
		return onEvent(ev)
	}

	messages := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: instructions}}
	if a.historyLimit > 0 {
		history, err := a.store.Recent(ctx, req.ThreadID, a.historyLimit)
		if err != nil {
			logger.Warn().Err(err).Str("thread_id", req.ThreadID).Msg("load thread history")
		}
		for _, m := range history {
			messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
		}
	}
	for _, m := range req.Messages {
		messages = append(messages, toOpenAIMessage(m))
	}

	tools := a.toolSpecs()

	var (
		reply  strings.Builder
		usage  Usage
		finish string
	)
	for round := 0; ; round++ {
		creq := openai.ChatCompletionRequest{
			Model:         a.model,
			Messages:      messages,
			Stream:        true,
			StreamOptions: &openai.StreamOptions{IncludeUsage: true},
		}
		// The last permitted round withholds tools so the model has to answer.
		if round < a.maxToolRounds {
			creq.Tools = tools
		}

		step, err := a.streamRound(ctx, creq, emit)
		if err != nil {
			return Response{}, err
		}
		usage.add(step.usage)
		reply.WriteString(step.text)
		finish = finishReason(step.finish)

		if len(step.calls) == 0 || round >= a.maxToolRounds {
			stepUsage := step.usage
			if err := emit(Event{Type: EventStepFinish, FinishReason: finish, Usage: &stepUsage}); err != nil {
				return Response{}, err
			}
			break
		}

		assistant := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: step.text}
		for _, c := range step.calls {
			assistant.ToolCalls = append(assistant.ToolCalls, openai.ToolCall{
				ID:       c.id,
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: c.name, Arguments: c.args},
			})
		}
		messages = append(messages, assistant)

		for _, c := range step.calls {
			result, err := a.runTool(ctx, c, emit)
			if err != nil {
				return Response{}, err
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    string(result),
				ToolCallID: c.id,
			})
		}

		stepUsage := step.usage
		if err := emit(Event{Type: EventStepFinish, FinishReason: "tool-calls", Usage: &stepUsage}); err != nil {
			return Response{}, err
		}
	}

	if err := emit(Event{Type: EventFinish, FinishReason: finish, Usage: &usage}); err != nil {
		return Response{}, err
	}

	text := reply.String()
	if err := saveTurn(ctx, a.store, req, text); err != nil {
		logger.Warn().Err(err).Str("thread_id", req.ThreadID).Msg("save thread turn")
	}
	return Response{Text: text, FinishReason: finish, Usage: usage}, nil
}

type pendingCall struct {
	id   string
	name string
	args string
}

type roundResult struct {
	text   string
	finish openai.FinishReason
	usage  Usage
	calls  []pendingCall
}

func (a *OpenAIAgent) streamRound(ctx context.Context, creq openai.ChatCompletionRequest, emit EventHandler) (roundResult, error) {
	stream, err := a.client.CreateChatCompletionStream(ctx, creq)
	if err != nil {
		return roundResult{}, goerr.Wrap(err, "open completion stream", goerr.V("model", a.model))
	}
	defer stream.Close()

	var (
		res   roundResult
		text  strings.Builder
		calls = map[int]*pendingCall{}
	)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return roundResult{}, goerr.Wrap(err, "read completion stream", goerr.V("model", a.model))
		}
		if chunk.Usage != nil {
			res.usage.add(Usage{PromptTokens: chunk.Usage.PromptTokens, CompletionTokens: chunk.Usage.CompletionTokens})
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if d := choice.Delta.Content; d != "" {
			text.WriteString(d)
			if err := emit(Event{Type: EventTextDelta, Text: d}); err != nil {
				return roundResult{}, err
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			c, ok := calls[idx]
			if !ok {
				c = &pendingCall{}
				calls[idx] = c
			}
			if tc.ID != "" {
				c.id = tc.ID
			}
			if tc.Function.Name != "" {
				c.name = tc.Function.Name
			}
			c.args += tc.Function.Arguments
		}
		if choice.FinishReason != "" {
			res.finish = choice.FinishReason
		}
	}

	res.text = text.String()
	idxs := make([]int, 0, len(calls))
	for i := range calls {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)
	for _, i := range idxs {
		res.calls = append(res.calls, *calls[i])
	}
	return res, nil
}

func (a *OpenAIAgent) runTool(ctx context.Context, c pendingCall, emit EventHandler) (json.RawMessage, error) {
	args := json.RawMessage(strings.TrimSpace(c.args))
	if len(args) == 0 || !json.Valid(args) {
		args = json.RawMessage(`{}`)
	}
	if err := emit(Event{Type: EventToolCall, ToolCallID: c.id, ToolName: c.name, Args: args}); err != nil {
		return nil, err
	}

	result, err := a.tools.Invoke(ctx, c.name, args)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		logging.FromCtx(ctx).Warn().Err(err).Str("tool", c.name).Msg("tool call failed")
	}
	a.metrics.ToolCall(c.name, outcome)

	if err := emit(Event{Type: EventToolResult, ToolCallID: c.id, ToolName: c.name, Result: result}); err != nil {
		return nil, err
	}
	return result, nil
}

func (a *OpenAIAgent) toolSpecs() []openai.Tool {
	defs := a.tools.Definitions()
	if len(defs) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Input,
			},
		})
	}
	return out
}

func toOpenAIMessage(m Message) openai.ChatCompletionMessage {
	msg := openai.ChatCompletionMessage{Role: m.Role}
	var images []Attachment
	for _, att := range m.Attachments {
		if att.IsImage() && att.URL != "" {
			images = append(images, att)
		}
	}
	if len(images) == 0 || m.Role != RoleUser {
		msg.Content = m.Content
		return msg
	}

	if m.Content != "" {
		msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: m.Content})
	}
	for _, img := range images {
		msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: img.URL},
		})
	}
	return msg
}

// finishReason maps OpenAI finish reasons to the data stream vocabulary.
func finishReason(r openai.FinishReason) string {
	switch r {
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return "tool-calls"
	case openai.FinishReasonContentFilter:
		return "content-filter"
	case openai.FinishReasonLength:
		return "length"
	case "":
		return "unknown"
	default:
		return string(r)
	}
}
