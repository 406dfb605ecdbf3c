package memory

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/hojokin/internal/logging"
	"github.com/ent0n29/hojokin/internal/observability"
	"github.com/ent0n29/hojokin/internal/policy"
)

// API is the subset of the memory API the gateway needs.
type API interface {
	Add(ctx context.Context, rec MemoryRecord, customInstructions string) error
	Search(ctx context.Context, q LongTermQuery) ([]Record, error)
	GetAll(ctx context.Context, q ShortTermQuery) ([]Record, error)
}

// GatewayConfig controls Gateway behavior.
type GatewayConfig struct {
	RedactPII          bool
	CustomInstructions string
	Metrics            *observability.Metrics
}

// Gateway remembers user turns in both partitions and recalls them.
type Gateway struct {
	api     API
	cfg     GatewayConfig
	metrics *observability.Metrics
}

func NewGateway(api API, cfg GatewayConfig) *Gateway {
	return &Gateway{api: api, cfg: cfg, metrics: cfg.Metrics}
}

// Remember writes the text to both partitions concurrently. The writes are
// independent: a failure in one partition never blocks or undoes the other,
// and failures are logged and counted rather than returned.
func (g *Gateway) Remember(ctx context.Context, in RememberInput) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return
	}
	logger := logging.FromCtx(ctx)
	if g.cfg.RedactPII {
		if redacted, changed := policy.RedactPII(text); changed {
			text = redacted
			logger.Debug().Msg("redacted pii before memory write")
		}
	}

	var eg errgroup.Group
	for _, p := range []Partition{LongTerm, ShortTerm} {
		rec := MemoryRecord{
			OwnerID:   in.OwnerID,
			AgentID:   in.AgentID,
			Partition: p,
			Date:      in.Date,
			Text:      text,
		}
		eg.Go(func() error {
			if err := g.api.Add(ctx, rec, g.cfg.CustomInstructions); err != nil {
				werr := &WriteError{Partition: p, Err: err}
				g.metrics.MemoryWrite(string(p), outcome(err))
				logger.Warn().Err(werr).Str("partition", string(p)).Msg("memory write failed")
				return nil
			}
			g.metrics.MemoryWrite(string(p), "ok")
			return nil
		})
	}
	_ = eg.Wait()
}

func (g *Gateway) RecallLongTerm(ctx context.Context, q LongTermQuery) ([]QueryResult, error) {
	records, err := g.api.Search(ctx, q)
	if err != nil {
		return nil, &RecallError{Partition: LongTerm, Err: err}
	}
	return toResults(records, func(r Record) bool {
		return owned(r.UserID, q.OwnerID) && owned(r.AgentID, q.AgentID)
	}), nil
}

func (g *Gateway) RecallShortTerm(ctx context.Context, q ShortTermQuery) ([]QueryResult, error) {
	records, err := g.api.GetAll(ctx, q)
	if err != nil {
		return nil, &RecallError{Partition: ShortTerm, Err: err}
	}
	return toResults(records, func(r Record) bool {
		return owned(r.UserID, q.OwnerID) && owned(r.AgentID, q.AgentID)
	}), nil
}

func toResults(records []Record, keep func(Record) bool) []QueryResult {
	out := make([]QueryResult, 0, len(records))
	for _, r := range records {
		if !keep(r) {
			continue
		}
		out = append(out, QueryResult{Text: r.Memory, Score: r.Score})
	}
	return out
}

// owned reports whether a returned id belongs to the requested one. A record
// that omits a requested id is dropped.
func owned(got, want string) bool {
	return want == "" || got == want
}

func outcome(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
