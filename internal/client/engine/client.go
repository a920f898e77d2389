package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/ioukeeper/internal/client/models"
	"github.com/dmitrijs2005/ioukeeper/internal/client/session"
	"github.com/dmitrijs2005/ioukeeper/internal/common"
	"github.com/dmitrijs2005/ioukeeper/internal/logging"
	"github.com/dmitrijs2005/ioukeeper/internal/metrics"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const maxBodySize = 8 << 20

// TokenSource hands out bearer credentials. *session.Manager implements it.
type TokenSource interface {
	EnsureFresh(ctx context.Context) (*session.Credential, error)
	RefreshIfCurrent(ctx context.Context, rejectedToken string) (*session.Credential, error)
}

// Options configure a Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Tokens     TokenSource
	// RateLimit is the maximum number of requests per second; 0 disables it.
	RateLimit float64
	PageSize  int
	Logger    logging.Logger
	Metrics   metrics.Recorder
}

// Client talks to the engine on behalf of the current session.
type Client struct {
	base     *url.URL
	http     *http.Client
	tokens   TokenSource
	limiter  *rate.Limiter
	pageSize int
	logger   logging.Logger
	metrics  metrics.Recorder
}

// Response is a completed engine exchange.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Err returns nil for 2xx answers and a *StatusError otherwise.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	return &StatusError{StatusCode: r.StatusCode, Message: errorMessage(r.StatusCode, r.Body)}
}

func New(opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid engine url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid engine url %q: scheme and host required", opts.BaseURL)
	}
	if opts.Tokens == nil {
		return nil, errors.New("engine client requires a token source")
	}

	c := &Client{
		base:     base,
		http:     opts.HTTPClient,
		tokens:   opts.Tokens,
		pageSize: opts.PageSize,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 10 * time.Second}
	}
	if c.pageSize <= 0 {
		c.pageSize = 100
	}
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	if c.metrics == nil {
		c.metrics = metrics.Nop{}
	}
	return c, nil
}

// BasePath is the path component of the engine url without a trailing slash,
// e.g. "/npl/objects/iou".
func (c *Client) BasePath() string {
	return strings.TrimRight(c.base.Path, "/")
}

// Endpoint returns the absolute url of rel below the engine base url. A
// trailing slash in rel is kept.
func (c *Client) Endpoint(rel string) *url.URL {
	u := *c.base
	u.Path = c.BasePath() + "/" + strings.TrimLeft(rel, "/")
	u.RawPath = ""
	u.RawQuery = ""
	return &u
}

// Resolve turns an action reference into an absolute url on the engine host.
// Paths are taken as they are; absolute urls are accepted unchanged.
func (c *Client) Resolve(ref string) (*url.URL, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid action url %q: %w", ref, err)
	}
	return c.base.ResolveReference(r), nil
}

// Do sends one request with the current credential. A 401 refreshes the
// credential, unless someone else already did, and retries once. Non-2xx
// answers are returned as a Response; only transport and auth failures are
// errors.
func (c *Client) Do(ctx context.Context, method string, u *url.URL, body []byte) (*Response, error) {
	cred, err := c.tokens.EnsureFresh(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, method, u, body, cred.Token())
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	c.logger.Debug(ctx, "engine rejected credential, refreshing", "method", method, "path", u.Path)
	cred, err = c.tokens.RefreshIfCurrent(ctx, cred.Token())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrUnauthorized, err)
	}

	resp, err = c.send(ctx, method, u, body, cred.Token())
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: %w", common.ErrUnauthorized, resp.Err())
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method string, u *url.URL, body []byte, token string) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrUnreachable, err)
		}
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	reqID := uuid.NewString()
	req.Header.Set(common.AuthorizationHeaderName, "Bearer "+token)
	req.Header.Set(common.RequestIDHeaderName, reqID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug(ctx, "engine request failed", "method", method, "path", u.Path, "request_id", reqID, "error", err)
		return nil, fmt.Errorf("%w: %w", common.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", common.ErrUnreachable, err)
	}

	c.metrics.RecordHTTPStatus(resp.StatusCode)
	c.logger.Debug(ctx, "engine request",
		"method", method,
		"path", u.Path,
		"status", resp.StatusCode,
		"request_id", reqID,
		"duration", time.Since(start),
	)
	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// Call sends payload to u using the verb strategy. On 405 the request is
// repeated once with the fallback verb.
func (c *Client) Call(ctx context.Context, u *url.URL, payload map[string]any, vs VerbStrategy) (*Response, error) {
	resp, err := c.callWith(ctx, vs.Primary, u, payload)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusMethodNotAllowed || vs.Fallback == "" {
		return resp, nil
	}

	c.metrics.RecordVerbFallback(vs.Primary, vs.Fallback)
	c.logger.Debug(ctx, "verb not allowed, retrying", "path", u.Path, "from", vs.Primary, "to", vs.Fallback)
	return c.callWith(ctx, vs.Fallback, u, payload)
}

func (c *Client) callWith(ctx context.Context, method string, u *url.URL, payload map[string]any) (*Response, error) {
	if !carriesBody(method) {
		return c.Do(ctx, method, WithQuery(u, payload), nil)
	}

	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return c.Do(ctx, method, u, body)
}

// FetchAll lists every IOU visible to the current user.
func (c *Client) FetchAll(ctx context.Context) ([]models.Record, error) {
	u := c.Endpoint("Iou/")
	q := u.Query()
	q.Set("pageSize", strconv.Itoa(c.pageSize))
	q.Set("includeCount", "true")
	u.RawQuery = q.Encode()

	resp, err := c.Do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrUnreachable, err)
	}

	recs, err := DecodeRecords(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrUnreachable, err)
	}
	return recs, nil
}

// DecodeRecords accepts a bare array, {"items": [...]} or {"content": [...]}.
// An object with neither key is an empty list.
func DecodeRecords(body []byte) ([]models.Record, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty records payload")
	}

	switch body[0] {
	case '[':
		var recs []models.Record
		if err := json.Unmarshal(body, &recs); err != nil {
			return nil, fmt.Errorf("failed to decode records: %w", err)
		}
		return recs, nil
	case '{':
		var page struct {
			Items   []models.Record `json:"items"`
			Content []models.Record `json:"content"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("failed to decode records: %w", err)
		}
		if page.Items != nil {
			return page.Items, nil
		}
		if page.Content != nil {
			return page.Content, nil
		}
		return []models.Record{}, nil
	default:
		return nil, errors.New("unexpected records payload")
	}
}
