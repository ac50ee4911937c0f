package jobs

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/gkouam/soulbondai-sub005/job"
)

// HTTPCompleter calls the AI completion backend over HTTP.
type HTTPCompleter struct {
	client *resty.Client
	path   string
}

var _ Completer = (*HTTPCompleter)(nil)

// CompleterOption configures an HTTPCompleter.
type CompleterOption func(*HTTPCompleter)

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) CompleterOption {
	return func(c *HTTPCompleter) {
		if key != "" {
			c.client.SetAuthToken(key)
		}
	}
}

// WithHTTPTimeout bounds each backend call.
func WithHTTPTimeout(d time.Duration) CompleterOption {
	return func(c *HTTPCompleter) { c.client.SetTimeout(d) }
}

// WithPath overrides the completion endpoint path.
func WithPath(p string) CompleterOption {
	return func(c *HTTPCompleter) { c.path = p }
}

// NewHTTPCompleter creates a completer for the backend at baseURL. The
// client never retries; retries belong to the queue.
func NewHTTPCompleter(baseURL string, opts ...CompleterOption) *HTTPCompleter {
	c := &HTTPCompleter{
		client: resty.New().
			SetBaseURL(baseURL).
			SetRedirectPolicy(resty.NoRedirectPolicy()).
			SetRetryCount(0).
			SetTimeout(30*time.Second).
			SetHeader("Accept", "application/json"),
		path: "/v1/completions",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type backendError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Complete implements Completer. Client errors other than 408 and 429 are
// permanent.
func (c *HTTPCompleter) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	var (
		out    Completion
		apiErr backendError
	)
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post(c.path)
	if err != nil {
		return Completion{}, fmt.Errorf("jobs/completer: post: %w", err)
	}

	if resp.IsError() {
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode())
		}
		err := fmt.Errorf("jobs/completer: backend returned %d: %s", resp.StatusCode(), msg)
		if permanentStatus(resp.StatusCode()) {
			return Completion{}, job.Permanent(err)
		}
		return Completion{}, err
	}
	return out, nil
}

func permanentStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return false
	}
	return code >= 400 && code < 500
}

// EchoCompleter answers with the prompt itself. It backs local runs with
// no AI backend configured.
type EchoCompleter struct{}

// Complete implements Completer.
func (EchoCompleter) Complete(_ context.Context, req CompletionRequest) (Completion, error) {
	return Completion{Text: req.Prompt}, nil
}
