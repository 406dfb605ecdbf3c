package tool

import (
	"context"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
)

// Registry holds handlers keyed by name, in registration order.
type Registry struct {
	handlers map[string]Handler
	order    []string
}

func NewRegistry(handlers ...Handler) (*Registry, error) {
	r := &Registry{handlers: make(map[string]Handler, len(handlers))}
	for _, h := range handlers {
		name := h.Definition().Name
		if name == "" {
			return nil, goerr.New("tool name is empty")
		}
		if _, dup := r.handlers[name]; dup {
			return nil, goerr.New("duplicate tool name", goerr.V("name", name))
		}
		r.handlers[name] = h
		r.order = append(r.order, name)
	}
	return r, nil
}

func (r *Registry) Get(name string) (Handler, bool) {
	if r == nil {
		return nil, false
	}
	h, ok := r.handlers[name]
	return h, ok
}

func (r *Registry) Definitions() []Definition {
	if r == nil {
		return nil
	}
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.handlers[name].Definition())
	}
	return defs
}

// Invoke runs the named tool. Unknown names produce a failure envelope.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	h, ok := r.Get(name)
	if !ok {
		err := goerr.Wrap(ErrUnknownTool, "tool lookup failed", goerr.V("name", name))
		return Failure(err, "指定されたツールは存在しません"), err
	}
	return h.Invoke(ctx, args)
}
