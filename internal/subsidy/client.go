package subsidy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/time/rate"

	"github.com/ent0n29/hojokin/internal/logging"
	"github.com/ent0n29/hojokin/internal/observability"
)

const DefaultBaseURL = "https://api.jgrants-portal.go.jp/exp/v1/public"

// Config controls Client construction.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RateLimit  float64 // requests per second, 0 disables limiting
	RateBurst  int
	HTTPClient *http.Client
	Metrics    *observability.Metrics
}

// Client is a typed wrapper over the public J-Grants subsidy API.
// Every call issues exactly one GET and is never retried.
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	metrics *observability.Metrics
}

func NewClient(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.RateBurst, 1))
	}
	return &Client{
		baseURL: base,
		client:  hc,
		limiter: limiter,
		metrics: cfg.Metrics,
	}
}

func (c *Client) ListSubsidies(ctx context.Context, f ListFilters) (*ListResult, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("keyword", f.Keyword)
	q.Set("sort", f.Sort)
	q.Set("order", f.Order)
	q.Set("acceptance", f.Acceptance)
	setIfPresent(q, "use_purpose", f.UsePurpose)
	setIfPresent(q, "industry", f.Industry)
	setIfPresent(q, "target_number_of_employees", f.TargetNumberOfEmployees)
	setIfPresent(q, "target_area_search", f.TargetAreaSearch)

	var raw rawList
	if err := c.get(ctx, "/subsidies", q, &raw); err != nil {
		return nil, err
	}
	return raw.normalize(), nil
}

func (c *Client) GetSubsidyDetail(ctx context.Context, id string) (*Detail, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	var env detailEnvelope
	if err := c.get(ctx, "/subsidies/id/"+url.PathEscape(id), nil, &env); err != nil {
		return nil, err
	}
	if len(env.Result) == 0 {
		return nil, goerr.Wrap(ErrNotFound, "empty detail result", goerr.V("id", id))
	}
	return env.Result[0].normalize(), nil
}

func (c *Client) Search(ctx context.Context, q SearchQuery) (*ListResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return c.ListSubsidies(ctx, q.Filters())
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return goerr.Wrap(err, "J-Grants rate limiter")
	}

	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return goerr.Wrap(err, "create J-Grants request", goerr.V("url", endpoint))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	res, err := c.client.Do(req)
	if err != nil {
		c.metrics.Upstream("jgrants", 0)
		return goerr.Wrap(err, "send J-Grants request", goerr.V("url", endpoint))
	}
	defer res.Body.Close()
	c.metrics.Upstream("jgrants", res.StatusCode)

	logging.FromCtx(ctx).Debug().
		Str("path", path).
		Int("status", res.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("j-grants request")

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4<<10))
		return &UpstreamError{Status: res.StatusCode, Message: statusText(res)}
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return goerr.Wrap(err, "decode J-Grants response", goerr.V("url", endpoint))
	}
	return nil
}

func statusText(res *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(res.Status, strconv.Itoa(res.StatusCode)))
	if text == "" {
		text = http.StatusText(res.StatusCode)
	}
	return text
}

func setIfPresent(q url.Values, key, v string) {
	if strings.TrimSpace(v) != "" {
		q.Set(key, v)
	}
}
