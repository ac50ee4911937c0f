package config_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gkouam/soulbondai-sub005/config"
	"github.com/gkouam/soulbondai-sub005/ratelimit"
	"github.com/gkouam/soulbondai-sub005/throttle"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SOULBOND_JWT_SECRET", "s3cret")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store != config.StoreMemory || cfg.HTTPAddr != ":8080" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Window() != ratelimit.Daily || cfg.Policy() != ratelimit.FailOpen {
		t.Fatalf("window %q policy %q", cfg.Window(), cfg.Policy())
	}

	rt := cfg.Runtime()
	if rt.Concurrency != 10 || rt.MaxAttempts != 5 || rt.LeaseDuration != 30*time.Second {
		t.Fatalf("runtime = %+v", rt)
	}
	if rt.HeartbeatInterval >= rt.LeaseDuration {
		t.Fatal("heartbeat must be shorter than the lease")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SOULBOND_JWT_SECRET", "s3cret")
	t.Setenv("SOULBOND_STORE", "redis")
	t.Setenv("SOULBOND_CONCURRENCY", "3")
	t.Setenv("SOULBOND_JOB_TYPES", "chat.completion,notification.send")
	t.Setenv("SOULBOND_RATE_LIMIT_WINDOW", "hourly")
	t.Setenv("SOULBOND_RATE_LIMIT_POLICY", "closed")
	t.Setenv("SOULBOND_LEASE_DURATION", "1m")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store != config.StoreRedis || cfg.Concurrency != 3 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.JobTypes) != 2 || cfg.JobTypes[1] != "notification.send" {
		t.Fatalf("job types = %v", cfg.JobTypes)
	}
	if cfg.Window() != ratelimit.Hourly || cfg.Policy() != ratelimit.FailClosed {
		t.Fatalf("window %q policy %q", cfg.Window(), cfg.Policy())
	}
	if cfg.Runtime().LeaseDuration != time.Minute {
		t.Fatalf("lease = %s", cfg.Runtime().LeaseDuration)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("unprefixed LOG_LEVEL not honored: %q", cfg.LogLevel)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"no secret", map[string]string{}, "JWT_SECRET"},
		{"bad store", map[string]string{"SOULBOND_STORE": "cassandra"}, "STORE"},
		{"postgres without dsn", map[string]string{"SOULBOND_STORE": "postgres"}, "DATABASE_URL"},
		{"bad window", map[string]string{"SOULBOND_RATE_LIMIT_WINDOW": "weekly"}, "window"},
		{"bad policy", map[string]string{"SOULBOND_RATE_LIMIT_POLICY": "maybe"}, "policy"},
		{"heartbeat too long", map[string]string{"SOULBOND_HEARTBEAT_INTERVAL": "40s"}, "HEARTBEAT_INTERVAL"},
		{"zero concurrency", map[string]string{"SOULBOND_CONCURRENCY": "0"}, "CONCURRENCY"},
		{"bad throttle", map[string]string{"SOULBOND_THROTTLE": "chat.completion"}, "THROTTLE"},
		{"bad format", map[string]string{"SOULBOND_LOG_FORMAT": "xml"}, "LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.name != "no secret" {
				t.Setenv("SOULBOND_JWT_SECRET", "s3cret")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestThrottles(t *testing.T) {
	cfg := config.Config{Throttle: []string{"chat.completion=4/2.5/5", "notification.send=8"}}
	got, err := cfg.Throttles()
	if err != nil {
		t.Fatalf("Throttles: %v", err)
	}
	want := []throttle.Config{
		{JobType: "chat.completion", MaxConcurrency: 4, RateLimit: 2.5, RateBurst: 5},
		{JobType: "notification.send", MaxConcurrency: 8},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d configs", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("config %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	for _, bad := range []string{"=4", "x=", "x=a", "x=1/b", "x=1/2/c", "x=1/2/3/4"} {
		if _, err := (config.Config{Throttle: []string{bad}}).Throttles(); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := config.NewLogger(&buf, config.Config{Env: "production", LogLevel: "warn"})
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines = %q", lines)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("production logs must be JSON: %v", err)
	}
	if rec["msg"] != "shown" || rec["service"] != "soulbond" || rec["k"] != "v" {
		t.Fatalf("record = %v", rec)
	}

	buf.Reset()
	config.NewLogger(&buf, config.Config{Env: "development"}).Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Fatalf("development logs must be text: %q", buf.String())
	}
}
