// Package client is a Go client for the SoulBond HTTP API.
//
// Usage:
//
//	c := client.New("https://api.soulbond.example",
//	    client.WithToken(token),
//	)
//
//	res, err := c.SendMessage(ctx, api.ChatMessageRequest{
//	    CompanionID: "luna",
//	    Content:     "good morning",
//	})
//	var qe *soulbond.QuotaExceededError
//	if errors.As(err, &qe) {
//	    fmt.Println("retry in", qe.RetryAfter)
//	}
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/gkouam/soulbondai-sub005"
	"github.com/gkouam/soulbondai-sub005/api"
)

// Client talks to a SoulBond server over HTTP. It is safe for concurrent use.
type Client struct {
	rest   *resty.Client
	logger *slog.Logger
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		rest: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(15 * time.Second).
			SetHeader("Accept", "application/json"),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do sends a request and decodes a 2xx body into out. Non-2xx responses
// are turned into errors by decodeError.
func (c *Client) do(ctx context.Context, method, path string, body, out any, configure ...func(*resty.Request)) error {
	req := c.rest.R().
		SetContext(ctx).
		SetError(&errorBody{})
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	for _, fn := range configure {
		fn(req)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", soulbond.ErrQueueUnavailable, method, path, err)
	}
	if resp.IsError() {
		apiErr := decodeError(resp)
		var code string
		var ae *APIError
		if errors.As(apiErr, &ae) {
			code = ae.Code
		}
		c.logger.Debug("soulbond request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode()),
			slog.String("code", code),
		)
		return apiErr
	}
	return nil
}

// ── Errors ──────────────────────────────────────────

// errorBody covers both the generic and the quota error payloads.
type errorBody struct {
	api.ErrorResponse
	Remaining         int64 `json:"remaining"`
	Limit             int64 `json:"limit"`
	RetryAfterSeconds int   `json:"retry_after_seconds"`
}

// APIError is a non-2xx response from the server. It matches the root
// package sentinels with errors.Is.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Fields     []string
	RequestID  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("soulbond/client: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Is maps the response to the server-side error it was produced from.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return target == soulbond.ErrInvalidRequest
	case http.StatusUnauthorized:
		return target == soulbond.ErrUnauthenticated
	case http.StatusForbidden:
		if e.Code == "feature_not_entitled" {
			return target == soulbond.ErrFeatureNotEntitled
		}
		return target == soulbond.ErrForbidden
	case http.StatusNotFound:
		return target == soulbond.ErrJobNotFound || target == soulbond.ErrDLQNotFound
	case http.StatusConflict:
		return target == soulbond.ErrAlreadyReplayed
	case http.StatusServiceUnavailable:
		return target == soulbond.ErrQueueUnavailable
	}
	return false
}

func decodeError(resp *resty.Response) error {
	body, _ := resp.Error().(*errorBody)
	if body == nil {
		body = &errorBody{}
	}

	if resp.StatusCode() == http.StatusTooManyRequests {
		secs := body.RetryAfterSeconds
		if h := resp.Header().Get("Retry-After"); h != "" {
			if n, err := strconv.Atoi(h); err == nil {
				secs = n
			}
		}
		retry := time.Duration(secs) * time.Second
		return &soulbond.QuotaExceededError{
			Limit:      body.Limit,
			Remaining:  body.Remaining,
			RetryAfter: retry,
			ResetAt:    time.Now().Add(retry),
		}
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode(),
		Code:       body.Error,
		Message:    body.Message,
		Fields:     body.Fields,
		RequestID:  body.RequestID,
	}
	if apiErr.Code == "" {
		apiErr.Code = "http_" + strconv.Itoa(resp.StatusCode())
		apiErr.Message = resp.Status()
	}
	return apiErr
}

// IsRetryable reports whether err is worth retrying later: quota denials,
// transport failures and server-side unavailability.
func IsRetryable(err error) bool {
	var qe *soulbond.QuotaExceededError
	if errors.As(err, &qe) {
		return true
	}
	return errors.Is(err, soulbond.ErrQueueUnavailable)
}
