// Package tool defines the typed contract for functions the agent can call.
package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
)

// Tool is a capability with compile-time typed input and output.
type Tool[In, Out any] interface {
	Name() string
	Description() string
	InputSchema() *jsonschema.Schema
	OutputSchema() *jsonschema.Schema
	Execute(ctx context.Context, in In) (Out, error)
	// FailureMessage is the human-readable text returned alongside a failed call.
	FailureMessage() string
}

// Defaulter is implemented by input types that pre-fill argument defaults.
// Defaults are applied before the call arguments are decoded over them.
type Defaulter interface {
	SetDefaults()
}

// Result is the envelope every failed call is reported with.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
}

// Definition describes a tool to a model or protocol server.
type Definition struct {
	Name        string
	Description string
	Input       *jsonschema.Schema
	Output      *jsonschema.Schema
}

// Handler is a type-erased Tool.
type Handler interface {
	Definition() Definition
	// Invoke always returns a JSON document. On failure it is a Result with
	// success=false and the cause is returned as well.
	Invoke(ctx context.Context, args json.RawMessage) (json.RawMessage, error)
}

var ErrUnknownTool = errors.New("unknown tool")

// Bind erases the input and output types of t.
func Bind[In, Out any](t Tool[In, Out]) Handler {
	return &bound[In, Out]{t: t}
}

type bound[In, Out any] struct {
	t Tool[In, Out]
}

func (b *bound[In, Out]) Definition() Definition {
	return Definition{
		Name:        b.t.Name(),
		Description: b.t.Description(),
		Input:       b.t.InputSchema(),
		Output:      b.t.OutputSchema(),
	}
}

func (b *bound[In, Out]) Invoke(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in In
	if d, ok := any(&in).(Defaulter); ok {
		d.SetDefaults()
	}

	trimmed := bytes.TrimSpace(args)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &in); err != nil {
			err = goerr.Wrap(err, "invalid tool arguments", goerr.V("tool", b.t.Name()))
			return Failure(err, b.t.FailureMessage()), err
		}
	}

	out, err := b.t.Execute(ctx, in)
	if err != nil {
		return Failure(err, b.t.FailureMessage()), err
	}

	raw, err := json.Marshal(out)
	if err != nil {
		err = goerr.Wrap(err, "encode tool output", goerr.V("tool", b.t.Name()))
		return Failure(err, b.t.FailureMessage()), err
	}
	return raw, nil
}

// Failure renders a failed call envelope.
func Failure(err error, message string) json.RawMessage {
	res := Result{Success: false, Message: message}
	if err != nil {
		res.Error = err.Error()
	}
	raw, _ := json.Marshal(res)
	return raw
}
