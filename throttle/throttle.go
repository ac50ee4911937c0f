package throttle

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/time/rate"
)

// Config defines per-type rate limiting and concurrency.
type Config struct {
	// JobType is the job type this config applies to.
	JobType string `json:"job_type"`

	// MaxConcurrency limits how many jobs of this type may run at once in
	// the local pool. Zero means no type-specific limit.
	MaxConcurrency int `json:"max_concurrency,omitempty"`

	// RateLimit is the maximum sustained jobs per second claimed for this
	// type. Zero disables rate limiting.
	RateLimit float64 `json:"rate_limit,omitempty"`

	// RateBurst is the token-bucket burst size. Defaults to 1 when
	// RateLimit is set.
	RateBurst int `json:"rate_burst,omitempty"`
}

type typeState struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

// Manager controls per-type rate limiting and concurrency. It is safe for
// concurrent use.
type Manager struct {
	mu    sync.Mutex
	types map[string]*typeState
}

// NewManager creates a Manager with the given configurations.
func NewManager(configs ...Config) *Manager {
	m := &Manager{types: make(map[string]*typeState, len(configs))}
	for _, cfg := range configs {
		m.types[cfg.JobType] = newTypeState(cfg)
	}
	return m
}

func newTypeState(cfg Config) *typeState {
	ts := &typeState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ts.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return ts
}

// Reserve takes one concurrency slot for every type in types that has
// capacity and an available rate token, and returns those types. The
// caller must Release each returned type exactly once.
func (m *Manager) Reserve(types []string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(types))
	for _, t := range types {
		ts := m.types[t]
		if ts == nil {
			out = append(out, t)
			continue
		}
		if ts.config.MaxConcurrency > 0 && ts.active >= ts.config.MaxConcurrency {
			continue
		}
		if ts.limiter != nil && ts.limiter.Tokens() < 1 {
			continue
		}
		ts.active++
		out = append(out, t)
	}
	return out
}

// Wait consumes one rate token for jobType, blocking until one is
// available or ctx is done.
func (m *Manager) Wait(ctx context.Context, jobType string) error {
	m.mu.Lock()
	ts := m.types[jobType]
	m.mu.Unlock()

	if ts == nil || ts.limiter == nil {
		return nil
	}
	return ts.limiter.Wait(ctx)
}

// Release returns a slot taken by Reserve.
func (m *Manager) Release(jobType string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ts := m.types[jobType]; ts != nil && ts.active > 0 {
		ts.active--
	}
}

// ReleaseExcept releases every reserved type except keep.
func (m *Manager) ReleaseExcept(reserved []string, keep string) {
	kept := false
	for _, t := range reserved {
		if t == keep && !kept {
			kept = true
			continue
		}
		m.Release(t)
	}
}

// SetConfig updates (or creates) a type configuration at runtime. The
// active count is preserved.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := newTypeState(cfg)
	if existing := m.types[cfg.JobType]; existing != nil {
		ts.active = existing.active
	}
	m.types[cfg.JobType] = ts
}

// ActiveCount returns the number of reserved slots for a type.
func (m *Manager) ActiveCount(jobType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ts := m.types[jobType]; ts != nil {
		return ts.active
	}
	return 0
}

// Configs returns the configured types sorted by name.
func (m *Manager) Configs() []Config {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Config, 0, len(m.types))
	for _, ts := range m.types {
		out = append(out, ts.config)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobType < out[j].JobType })
	return out
}
