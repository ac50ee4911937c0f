package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-resty/resty/v2"

	"github.com/gkouam/soulbondai-sub005/api"
	"github.com/gkouam/soulbondai-sub005/dlq"
	"github.com/gkouam/soulbondai-sub005/id"
	"github.com/gkouam/soulbondai-sub005/job"
	"github.com/gkouam/soulbondai-sub005/manager"
	"github.com/gkouam/soulbondai-sub005/plan"
)

// QueueStats returns the per-type job counts and worker utilization.
func (c *Client) QueueStats(ctx context.Context) (*manager.Snapshot, error) {
	var out manager.Snapshot
	if err := c.do(ctx, http.MethodGet, "/v1/admin/queue/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetJob retrieves a job by ID.
func (c *Client) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var out job.Job
	if err := c.do(ctx, http.MethodGet, "/v1/admin/jobs/"+url.PathEscape(jobID.String()), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListDLQOpts filters a dead letter listing. Zero values use the server
// defaults.
type ListDLQOpts struct {
	Limit   int
	Offset  int
	JobType string
}

// ListDLQ returns one page of dead letter entries and the total count.
func (c *Client) ListDLQ(ctx context.Context, opts ListDLQOpts) (*api.DLQListResponse, error) {
	var out api.DLQListResponse
	err := c.do(ctx, http.MethodGet, "/v1/admin/dlq", nil, &out, func(r *resty.Request) {
		if opts.Limit > 0 {
			r.SetQueryParam("limit", strconv.Itoa(opts.Limit))
		}
		if opts.Offset > 0 {
			r.SetQueryParam("offset", strconv.Itoa(opts.Offset))
		}
		if opts.JobType != "" {
			r.SetQueryParam("job_type", opts.JobType)
		}
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetDLQ retrieves a dead letter entry.
func (c *Client) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	var out dlq.Entry
	if err := c.do(ctx, http.MethodGet, "/v1/admin/dlq/"+url.PathEscape(entryID.String()), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReplayDLQ re-enqueues a dead letter entry and returns the new job.
func (c *Client) ReplayDLQ(ctx context.Context, entryID id.DLQID) (*job.Job, error) {
	var out job.Job
	path := "/v1/admin/dlq/" + url.PathEscape(entryID.String()) + "/replay"
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetUserPlan changes a user's subscription tier.
func (c *Client) SetUserPlan(ctx context.Context, userID string, tier plan.Tier) (*api.SetPlanResponse, error) {
	var out api.SetPlanResponse
	path := "/v1/admin/users/" + url.PathEscape(userID) + "/plan"
	if err := c.do(ctx, http.MethodPut, path, api.SetPlanRequest{Tier: string(tier)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
