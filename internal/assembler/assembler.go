// Package assembler turns recalled memories into the two context blocks
// handed to the agent.
package assembler

import (
	"strings"

	"github.com/ent0n29/hojokin/internal/memory"
)

// AssembledContext is the merged recall for one chat turn.
type AssembledContext struct {
	LongTermSummary  string
	ShortTermSummary string
}

// Empty reports whether neither partition contributed anything.
func (c AssembledContext) Empty() bool {
	return c.LongTermSummary == "" && c.ShortTermSummary == ""
}

// Merge joins each partition's non-blank texts with newlines, keeping the
// order they were recalled in.
func Merge(longTerm, shortTerm []memory.QueryResult) AssembledContext {
	return AssembledContext{
		LongTermSummary:  join(longTerm),
		ShortTermSummary: join(shortTerm),
	}
}

func join(results []memory.QueryResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if strings.TrimSpace(r.Text) == "" {
			continue
		}
		parts = append(parts, r.Text)
	}
	return strings.Join(parts, "\n")
}
