package ratelimit_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gkouam/soulbondai-sub005"
	"github.com/gkouam/soulbondai-sub005/plan"
	"github.com/gkouam/soulbondai-sub005/ratelimit"
	"github.com/gkouam/soulbondai-sub005/store/memory"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func mustPlan(t *testing.T, tier plan.Tier) plan.Plan {
	t.Helper()
	p, ok := plan.DefaultCatalog().Plan(tier)
	if !ok {
		t.Fatalf("Plan(%s) missing", tier)
	}
	return p
}

// brokenStore fails every call.
type brokenStore struct{}

func (brokenStore) ConsumeQuota(context.Context, string, time.Time, time.Time, int64) (int64, bool, error) {
	return 0, false, errors.New("connection refused")
}

func (brokenStore) QuotaUsage(context.Context, string, time.Time) (int64, error) {
	return 0, errors.New("connection refused")
}

// ──────────────────────────────────────────────────
// Window tests
// ──────────────────────────────────────────────────

func TestWindowBounds(t *testing.T) {
	now := time.Date(2026, 2, 14, 15, 42, 7, 0, time.FixedZone("EST", -5*3600))
	utc := now.UTC()

	tests := []struct {
		window    ratelimit.Window
		wantStart time.Time
		wantEnd   time.Time
	}{
		{ratelimit.Hourly, time.Date(2026, 2, 14, 20, 0, 0, 0, time.UTC), time.Date(2026, 2, 14, 21, 0, 0, 0, time.UTC)},
		{ratelimit.Daily, time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC), time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)},
		{ratelimit.Monthly, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(string(tt.window), func(t *testing.T) {
			start, end := tt.window.Bounds(now)
			if !start.Equal(tt.wantStart) || !end.Equal(tt.wantEnd) {
				t.Fatalf("Bounds(%v) = [%v, %v), want [%v, %v)", utc, start, end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestParseWindowAndPolicy(t *testing.T) {
	if w, err := ratelimit.ParseWindow("monthly"); err != nil || w != ratelimit.Monthly {
		t.Fatalf("ParseWindow = %v, %v", w, err)
	}
	if _, err := ratelimit.ParseWindow("weekly"); err == nil {
		t.Fatal("expected error for weekly")
	}
	if p, err := ratelimit.ParsePolicy("closed"); err != nil || p != ratelimit.FailClosed {
		t.Fatalf("ParsePolicy = %v, %v", p, err)
	}
	if _, err := ratelimit.ParsePolicy("maybe"); err == nil {
		t.Fatal("expected error for maybe")
	}
}

// ──────────────────────────────────────────────────
// CheckAndConsume tests
// ──────────────────────────────────────────────────

func TestFreeTierFiftyThenDenied(t *testing.T) {
	day := time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)
	l := ratelimit.New(memory.New(), ratelimit.WithClock(func() time.Time { return day }))
	ctx := context.Background()
	free := mustPlan(t, plan.TierFree)

	for i := 1; i <= 50; i++ {
		d, err := l.CheckAndConsume(ctx, "u1", free, plan.ResourceChatMessage)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("request %d denied", i)
		}
		if want := int64(50 - i); d.Remaining != want {
			t.Fatalf("request %d: remaining = %d, want %d", i, d.Remaining, want)
		}
	}

	d, err := l.CheckAndConsume(ctx, "u1", free, plan.ResourceChatMessage)
	if err != nil {
		t.Fatalf("51st: %v", err)
	}
	if d.Allowed || d.Remaining != 0 {
		t.Fatalf("51st: allowed=%v remaining=%d", d.Allowed, d.Remaining)
	}
	wantReset := time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)
	if !d.ResetAt.Equal(wantReset) {
		t.Fatalf("ResetAt = %v, want %v", d.ResetAt, wantReset)
	}
	if d.RetryAfter != wantReset.Sub(day) {
		t.Fatalf("RetryAfter = %v", d.RetryAfter)
	}
	if d.RetryAfterSeconds() != int((14*time.Hour + 30*time.Minute).Seconds()) {
		t.Fatalf("RetryAfterSeconds = %d", d.RetryAfterSeconds())
	}

	usage, err := l.Usage(ctx, "u1", free, plan.ResourceChatMessage)
	if err != nil || usage.Used != 50 || usage.Remaining != 0 {
		t.Fatalf("Usage = %+v, %v", usage, err)
	}
}

func TestWindowResetStartsAtOne(t *testing.T) {
	now := time.Date(2026, 5, 10, 23, 59, 0, 0, time.UTC)
	l := ratelimit.New(memory.New(), ratelimit.WithClock(func() time.Time { return now }))
	ctx := context.Background()
	free := mustPlan(t, plan.TierFree)

	for range 50 {
		_, _ = l.CheckAndConsume(ctx, "u1", free, plan.ResourceChatMessage)
	}

	now = now.Add(2 * time.Minute)
	d, err := l.CheckAndConsume(ctx, "u1", free, plan.ResourceChatMessage)
	if err != nil || !d.Allowed {
		t.Fatalf("first request of new window: %+v, %v", d, err)
	}
	if d.Remaining != 49 {
		t.Fatalf("remaining = %d, want 49", d.Remaining)
	}
}

func TestConcurrentAdmissionExactlyQuota(t *testing.T) {
	l := ratelimit.New(memory.New())
	ctx := context.Background()
	basic := mustPlan(t, plan.TierBasic)

	var (
		wg      sync.WaitGroup
		allowed atomic.Int64
	)
	for range 300 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.CheckAndConsume(ctx, "u1", basic, plan.ResourceChatMessage)
			if err != nil {
				t.Errorf("CheckAndConsume: %v", err)
				return
			}
			if d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 200 {
		t.Fatalf("admitted %d, want 200", got)
	}
}

func TestUnlimitedTierStillCounts(t *testing.T) {
	l := ratelimit.New(memory.New())
	ctx := context.Background()
	premium := mustPlan(t, plan.TierPremium)

	for range 500 {
		d, err := l.CheckAndConsume(ctx, "u1", premium, plan.ResourceChatMessage)
		if err != nil || !d.Allowed {
			t.Fatalf("premium denied: %+v, %v", d, err)
		}
	}
	usage, _ := l.Usage(ctx, "u1", premium, plan.ResourceChatMessage)
	if usage.Used != 500 || usage.Limit != plan.Unlimited {
		t.Fatalf("usage = %+v", usage)
	}
}

func TestUsersAndResourcesAreIndependent(t *testing.T) {
	l := ratelimit.New(memory.New())
	ctx := context.Background()
	basic := mustPlan(t, plan.TierBasic)

	for range 10 {
		_, _ = l.CheckAndConsume(ctx, "u1", basic, plan.ResourcePhotoShare)
	}
	if d, _ := l.CheckAndConsume(ctx, "u1", basic, plan.ResourcePhotoShare); d.Allowed {
		t.Fatal("11th photo share admitted on basic")
	}
	if d, _ := l.CheckAndConsume(ctx, "u2", basic, plan.ResourcePhotoShare); !d.Allowed {
		t.Fatal("other user denied")
	}
	if d, _ := l.CheckAndConsume(ctx, "u1", basic, plan.ResourceChatMessage); !d.Allowed {
		t.Fatal("other resource denied")
	}
}

func TestZeroQuotaAlwaysDenied(t *testing.T) {
	l := ratelimit.New(memory.New())
	free := mustPlan(t, plan.TierFree)

	d, err := l.CheckAndConsume(context.Background(), "u1", free, plan.ResourcePhotoShare)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed || d.Limit != 0 {
		t.Fatalf("zero quota: %+v", d)
	}
}

func TestInvalidInput(t *testing.T) {
	l := ratelimit.New(memory.New())
	ctx := context.Background()
	free := mustPlan(t, plan.TierFree)

	tests := []struct {
		name     string
		user     string
		plan     plan.Plan
		resource plan.Resource
	}{
		{"empty user", "", free, plan.ResourceChatMessage},
		{"unknown resource", "u1", free, plan.Resource("video-call")},
		{"unknown tier", "u1", plan.Plan{Tier: "gold"}, plan.ResourceChatMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.CheckAndConsume(ctx, tt.user, tt.plan, tt.resource)
			if !errors.Is(err, soulbond.ErrInvalidRequest) {
				t.Fatalf("got %v, want ErrInvalidRequest", err)
			}
		})
	}
}

// ──────────────────────────────────────────────────
// Store failure policy tests
// ──────────────────────────────────────────────────

func TestFailOpen(t *testing.T) {
	l := ratelimit.New(brokenStore{}, ratelimit.WithLogger(quietLogger))
	d, err := l.CheckAndConsume(context.Background(), "u1", mustPlan(t, plan.TierFree), plan.ResourceChatMessage)
	if err != nil {
		t.Fatalf("fail-open returned error: %v", err)
	}
	if !d.Allowed || !d.Degraded {
		t.Fatalf("fail-open decision: %+v", d)
	}
}

func TestFailClosed(t *testing.T) {
	l := ratelimit.New(brokenStore{},
		ratelimit.WithPolicy(ratelimit.FailClosed),
		ratelimit.WithLogger(quietLogger),
	)
	_, err := l.CheckAndConsume(context.Background(), "u1", mustPlan(t, plan.TierFree), plan.ResourceChatMessage)
	if !errors.Is(err, soulbond.ErrQueueUnavailable) {
		t.Fatalf("fail-closed: got %v, want ErrQueueUnavailable", err)
	}
}
