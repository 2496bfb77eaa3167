package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

// Recognizer asks an external model what a drawing shows. The returned text
// is expected, but not guaranteed, to contain a verdict JSON object.
type Recognizer interface {
	Recognize(ctx context.Context, imageBase64, instruction string) (string, error)
}

var ErrRateLimited = errors.New("vision: rate limited")

// StatusError is a non-2xx reply other than 429.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("vision api error: status=%d body=%s", e.Code, e.Body)
}

type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *fasthttp.Client
	limiter *rate.Limiter

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithRateLimit caps outgoing requests per second; rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxConnsPerHost caps concurrent connections to the API host; n <= 0 keeps the default.
func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.http.MaxConnsPerHost = n
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		model:          "gemini-2.5-flash",
		http:           &fasthttp.Client{ReadTimeout: 30 * time.Second, WriteTimeout: 30 * time.Second, MaxConnsPerHost: 64, MaxResponseBodySize: 16 << 20},
		defaultTimeout: 30 * time.Second,
		retryMax:       1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

// text and inline_data go in separate parts.
type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// Recognize posts one generateContent call and returns the candidate text.
func (c *Client) Recognize(ctx context.Context, imageBase64, instruction string) (string, error) {
	body := generateRequest{Contents: []content{{Parts: []part{
		{Text: instruction},
		{InlineData: &inlineData{MimeType: "image/png", Data: imageBase64}},
	}}}}
	raw, err := c.doJSON(ctx, fasthttp.MethodPost, "/v1beta/models/"+c.model+":generateContent", body)
	if err != nil {
		return "", err
	}
	return ExtractCandidateText(raw), nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	if c.apiKey != "" {
		req.Header.Set("x-goog-api-key", c.apiKey)
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req.SetBody(payload)

	attempts := c.retryMax
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter: %w", err)
			}
		}
		if err := c.do(ctx, req, resp); err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt == attempts {
				return nil, lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return nil, lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status == fasthttp.StatusTooManyRequests {
			return nil, ErrRateLimited
		}
		if status < 200 || status >= 300 {
			lastErr = &StatusError{Code: status, Body: truncate(string(resp.Body()), 512)}
			if attempt == attempts || !shouldRetryStatus(status) {
				return nil, lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return nil, lastErr
			}
			continue
		}
		return append([]byte(nil), resp.Body()...), nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	dl := c.computeDeadline(ctx)
	if dl.IsZero() {
		return c.http.Do(req, resp)
	}
	return c.http.DoDeadline(req, resp, dl)
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && (c.defaultTimeout <= 0 || dl.Before(clientDL)) {
		return dl
	}
	if c.defaultTimeout <= 0 {
		return time.Time{}
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
