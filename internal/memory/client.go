package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/ent0n29/hojokin/internal/logging"
	"github.com/ent0n29/hojokin/internal/observability"
	"github.com/ent0n29/hojokin/internal/reliability"
)

const DefaultBaseURL = "https://api.mem0.ai"

// ClientConfig controls Client construction.
type ClientConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Retry      reliability.RetryConfig
	Metrics    *observability.Metrics
}

// Client speaks the mem0 platform REST API.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
	retrier *reliability.Retrier
	metrics *observability.Metrics
}

func NewClient(cfg ClientConfig) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, goerr.New("memory API key is required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		apiKey:  key,
		baseURL: base,
		client:  hc,
		retrier: reliability.NewRetrier(cfg.Retry),
		metrics: cfg.Metrics,
	}, nil
}

type addMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type addRequest struct {
	Messages           []addMessage   `json:"messages"`
	UserID             string         `json:"user_id"`
	AgentID            string         `json:"agent_id,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	CustomInstructions string         `json:"custom_instructions,omitempty"`
}

type filter map[string]any

type filters struct {
	AND []filter `json:"AND"`
}

type searchRequest struct {
	Query         string  `json:"query"`
	Filters       filters `json:"filters"`
	TopK          int     `json:"top_k,omitempty"`
	Threshold     float64 `json:"threshold,omitempty"`
	KeywordSearch bool    `json:"keyword_search"`
	Rerank        bool    `json:"rerank"`
}

type listRequest struct {
	Filters filters `json:"filters"`
}

// Add stores one record. Retryable failures are retried.
func (c *Client) Add(ctx context.Context, rec MemoryRecord, customInstructions string) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	body := addRequest{
		Messages: []addMessage{{Role: "user", Content: rec.Text}},
		UserID:   rec.OwnerID,
		AgentID:  rec.AgentID,
		Metadata: map[string]any{
			"type": string(rec.Partition),
			"date": rec.Date,
		},
		CustomInstructions: customInstructions,
	}
	return c.retrier.Do(ctx, func(ctx context.Context) error {
		return c.post(ctx, "/v1/memories/", nil, body, nil)
	})
}

// Search runs a semantic search scoped to owner and agent.
func (c *Client) Search(ctx context.Context, q LongTermQuery) ([]Record, error) {
	if strings.TrimSpace(q.OwnerID) == "" {
		return nil, goerr.New("search owner id is required")
	}
	and := []filter{{"user_id": q.OwnerID}}
	if q.AgentID != "" {
		and = append(and, filter{"agent_id": q.AgentID})
	}
	body := searchRequest{
		Query:         q.Query,
		Filters:       filters{AND: and},
		TopK:          q.TopK,
		Threshold:     q.Threshold,
		KeywordSearch: q.KeywordSearch,
		Rerank:        q.Rerank,
	}
	var resp RecallResponse
	if err := c.post(ctx, "/v2/memories/search/", nil, body, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// GetAll lists the owner's short-term records with one agent for one date.
func (c *Client) GetAll(ctx context.Context, q ShortTermQuery) ([]Record, error) {
	if strings.TrimSpace(q.OwnerID) == "" {
		return nil, goerr.New("list owner id is required")
	}
	page, size := q.Page, q.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("page_size", strconv.Itoa(size))

	and := []filter{{"user_id": q.OwnerID}}
	if q.AgentID != "" {
		and = append(and, filter{"agent_id": q.AgentID})
	}
	and = append(and,
		filter{"metadata": map[string]any{"type": string(ShortTerm)}},
		filter{"metadata": map[string]any{"date": q.Date}},
	)
	body := listRequest{Filters: filters{AND: and}}
	var resp RecallResponse
	if err := c.post(ctx, "/v2/memories/", params, body, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

func (c *Client) post(ctx context.Context, path string, q url.Values, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return goerr.Wrap(err, "marshal memory request", goerr.V("path", path))
	}

	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return goerr.Wrap(err, "create memory request", goerr.V("path", path))
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	res, err := c.client.Do(req)
	if err != nil {
		c.metrics.Upstream("mem0", 0)
		return goerr.Wrap(err, "send memory request", goerr.V("path", path))
	}
	defer res.Body.Close()
	c.metrics.Upstream("mem0", res.StatusCode)

	logging.FromCtx(ctx).Debug().
		Str("path", path).
		Int("status", res.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("memory request")

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return &APIError{Status: res.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return goerr.Wrap(err, "decode memory response", goerr.V("path", path))
	}
	return nil
}
