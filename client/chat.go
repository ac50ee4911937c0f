package client

import (
	"context"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/gkouam/soulbondai-sub005/api"
	"github.com/gkouam/soulbondai-sub005/plan"
	"github.com/gkouam/soulbondai-sub005/ratelimit"
)

// SendMessage submits a chat message for the token's user. A quota denial
// is returned as *soulbond.QuotaExceededError.
func (c *Client) SendMessage(ctx context.Context, msg api.ChatMessageRequest) (*api.ChatMessageResponse, error) {
	var out api.ChatMessageResponse
	if err := c.do(ctx, http.MethodPost, "/v1/chat/messages", msg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Usage returns the caller's usage of resource in the current window.
// An empty resource means chat messages.
func (c *Client) Usage(ctx context.Context, resource plan.Resource) (*ratelimit.Usage, error) {
	var out ratelimit.Usage
	err := c.do(ctx, http.MethodGet, "/v1/usage", nil, &out, func(r *resty.Request) {
		if resource != "" {
			r.SetQueryParam("resource", string(resource))
		}
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Plans lists the plan catalog.
func (c *Client) Plans(ctx context.Context) ([]plan.Plan, error) {
	var out struct {
		Plans []plan.Plan `json:"plans"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/plans", nil, &out); err != nil {
		return nil, err
	}
	return out.Plans, nil
}
