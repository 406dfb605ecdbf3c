// Package memory wraps the hosted long-term memory API used to remember
// user turns and recall them as agent context.
package memory

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// Partition separates durable facts from same-day conversation notes.
type Partition string

const (
	LongTerm  Partition = "long_term"
	ShortTerm Partition = "short_term"
)

// DateLayout is the calendar date format stored with every record.
const DateLayout = "2006-01-02"

// MemoryRecord is one write to the memory API.
type MemoryRecord struct {
	OwnerID   string
	AgentID   string
	Partition Partition
	Date      string
	Text      string
}

func (r MemoryRecord) Validate() error {
	if strings.TrimSpace(r.OwnerID) == "" {
		return goerr.New("memory record owner id is required")
	}
	if r.Partition != LongTerm && r.Partition != ShortTerm {
		return goerr.New("unknown memory partition", goerr.V("partition", r.Partition))
	}
	return nil
}

// Record is a memory as returned by the API.
type Record struct {
	ID        string         `json:"id"`
	Memory    string         `json:"memory"`
	UserID    string         `json:"user_id,omitempty"`
	AgentID   string         `json:"agent_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Score     float64        `json:"score,omitempty"`
	CreatedAt string         `json:"created_at,omitempty"`
}

// QueryResult is a recalled memory text with its relevance score.
type QueryResult struct {
	Text  string
	Score float64
}

// RecallResponse accepts both recall shapes the API produces: a bare array
// of records or an object carrying them under "results". Any other shape
// decodes to no records.
type RecallResponse struct {
	Records []Record
}

func (r *RecallResponse) UnmarshalJSON(data []byte) error {
	r.Records = nil
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	switch data[0] {
	case '[':
		var arr []Record
		if err := json.Unmarshal(data, &arr); err != nil {
			return goerr.Wrap(err, "decode recall array")
		}
		r.Records = arr
	case '{':
		var obj struct {
			Results json.RawMessage `json:"results"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return goerr.Wrap(err, "decode recall object")
		}
		results := bytes.TrimSpace(obj.Results)
		if len(results) == 0 || results[0] != '[' {
			return nil
		}
		var arr []Record
		if err := json.Unmarshal(results, &arr); err != nil {
			return goerr.Wrap(err, "decode recall results")
		}
		r.Records = arr
	}
	return nil
}

// RememberInput is one user turn to persist into both partitions.
type RememberInput struct {
	OwnerID string
	AgentID string
	Text    string
	Date    string
}

// LongTermQuery is a semantic search over the owner's memories for one agent.
type LongTermQuery struct {
	Query         string
	OwnerID       string
	AgentID       string
	TopK          int
	Threshold     float64
	KeywordSearch bool
	Rerank        bool
}

// DefaultLongTermQuery fills the search knobs with their usual values.
func DefaultLongTermQuery(query, ownerID, agentID string) LongTermQuery {
	return LongTermQuery{
		Query:         query,
		OwnerID:       ownerID,
		AgentID:       agentID,
		TopK:          30,
		Threshold:     0.4,
		KeywordSearch: true,
		Rerank:        true,
	}
}

// ShortTermQuery lists the owner's short-term notes with one agent for one date.
type ShortTermQuery struct {
	OwnerID  string
	AgentID  string
	Date     string
	Page     int
	PageSize int
}
