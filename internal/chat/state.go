package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ent0n29/hojokin/internal/agent"
	"github.com/ent0n29/hojokin/internal/logging"
	"github.com/ent0n29/hojokin/internal/observability"
)

// State is a chat turn lifecycle stage.
type State string

const (
	StateReceived   State = "received"
	StatePersisting State = "persisting"
	StateRecalling  State = "recalling"
	StateAssembling State = "assembling"
	StateInvoking   State = "invoking"
	StateStreaming  State = "streaming"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// turn tracks one turn's state and records how long each stage took.
type turn struct {
	id      string
	state   State
	started time.Time
	entered time.Time
	logger  *zerolog.Logger
	metrics *observability.Metrics
}

func (h *Handler) startTurn(ctx context.Context) *turn {
	now := time.Now()
	id := uuid.NewString()
	logger := logging.FromCtx(ctx).With().Str("turn_id", id).Logger()
	return &turn{
		id:      id,
		state:   StateReceived,
		started: now,
		entered: now,
		logger:  &logger,
		metrics: h.metrics,
	}
}

func (t *turn) enter(next State) {
	now := time.Now()
	if t.state != StateReceived {
		t.metrics.ObserveStage(string(t.state), now.Sub(t.entered))
	}
	t.logger.Debug().Str("from", string(t.state)).Str("to", string(next)).Msg("chat turn transition")
	t.state = next
	t.entered = now
}

func (t *turn) done() {
	t.enter(StateDone)
	t.metrics.ObserveStage("turn_total", time.Since(t.started))
	t.metrics.TurnFinished(string(StateDone))
}

func (t *turn) fail(err error) error {
	from := t.state
	t.enter(StateFailed)
	t.metrics.ObserveStage("turn_total", time.Since(t.started))

	var (
		bad *BadRequestError
		nf  *agent.NotFoundError
	)
	switch {
	case errors.As(err, &bad):
		t.metrics.TurnFinished("bad_request")
		t.logger.Info().Err(err).Msg("chat turn rejected")
	case errors.Is(err, context.Canceled):
		t.metrics.TurnFinished("canceled")
		t.logger.Info().Str("state", string(from)).Msg("chat turn canceled by client")
	case errors.As(err, &nf):
		t.metrics.TurnFinished(string(StateFailed))
		t.logger.Error().Err(err).Msg("chat agent not registered")
	default:
		t.metrics.TurnFinished(string(StateFailed))
		t.logger.Error().Err(err).Str("state", string(from)).Msg("chat turn failed")
	}
	return err
}
