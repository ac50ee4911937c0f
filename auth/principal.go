package auth

import (
	"context"
	"sort"
)

// Capability is a named permission.
type Capability string

const (
	// CapChatSend allows producing chat messages and reading own usage.
	CapChatSend Capability = "chat:send"
	// CapQueueAdmin allows reading queue stats and managing the DLQ.
	CapQueueAdmin Capability = "queue:admin"
	// CapBillingSync allows the billing system to set user plans.
	CapBillingSync Capability = "billing:sync"
)

// roleCapabilities maps token roles to the capabilities they grant.
var roleCapabilities = map[string][]Capability{
	"user":    {CapChatSend},
	"admin":   {CapChatSend, CapQueueAdmin},
	"billing": {CapBillingSync},
	"service": {CapBillingSync, CapQueueAdmin},
}

// Principal is the authenticated caller.
type Principal struct {
	UserID       string
	Capabilities map[Capability]bool
}

// NewPrincipal builds a Principal from roles and direct capability grants.
// Unknown roles and capabilities are ignored.
func NewPrincipal(userID string, roles []string, grants []string) Principal {
	p := Principal{UserID: userID, Capabilities: make(map[Capability]bool)}
	for _, r := range roles {
		for _, c := range roleCapabilities[r] {
			p.Capabilities[c] = true
		}
	}
	for _, g := range grants {
		switch c := Capability(g); c {
		case CapChatSend, CapQueueAdmin, CapBillingSync:
			p.Capabilities[c] = true
		}
	}
	return p
}

// Has reports whether p carries c.
func (p Principal) Has(c Capability) bool { return p.Capabilities[c] }

// List returns the capabilities sorted by name.
func (p Principal) List() []Capability {
	out := make([]Capability, 0, len(p.Capabilities))
	for c, ok := range p.Capabilities {
		if ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the Principal stored in ctx.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
