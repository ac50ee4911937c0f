// Package plan holds subscription tiers and the immutable plan catalog that
// parameterizes quotas and feature access.
//
// Plans are reference data: a [Catalog] is built once at process start and
// never mutated. Which tier a given user is on comes from a [TierStore]
// that the billing system keeps up to date; this package never looks at
// billing or payment state itself.
package plan

import (
	"fmt"
	"math"
	"strings"
)

// Tier is a subscription level.
type Tier string

const (
	TierFree     Tier = "free"
	TierBasic    Tier = "basic"
	TierPremium  Tier = "premium"
	TierUltimate Tier = "ultimate"
)

// Tiers lists every tier from lowest to highest.
var Tiers = []Tier{TierFree, TierBasic, TierPremium, TierUltimate}

// Valid reports whether t is one of the four known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierBasic, TierPremium, TierUltimate:
		return true
	}
	return false
}

// ParseTier parses a tier name, case-insensitively.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("plan: unknown tier %q", s)
	}
	return t, nil
}

// Resource is a rate-limited user action.
type Resource string

const (
	ResourceChatMessage Resource = "chat-message"
	ResourcePhotoShare  Resource = "photo-share"
)

// Valid reports whether r is a known limited resource.
func (r Resource) Valid() bool {
	return r == ResourceChatMessage || r == ResourcePhotoShare
}

// Feature is a plan capability gated independently of quotas.
type Feature string

const (
	FeatureVoice        Feature = "voice"
	FeaturePhotoSharing Feature = "photo-sharing"
)

// Unlimited is the quota used for tiers without a practical cap. It is a
// large finite sentinel so that counter arithmetic stays well defined.
const Unlimited int64 = math.MaxInt32

// Price is display metadata only.
type Price struct {
	MonthlyCents int64  `json:"monthly_cents"`
	Currency     string `json:"currency"`
}

// Plan describes what a tier is entitled to.
type Plan struct {
	Tier     Tier               `json:"tier"`
	Name     string             `json:"name"`
	Quotas   map[Resource]int64 `json:"quotas"`
	Features map[Feature]bool   `json:"features"`
	Price    Price              `json:"price"`
}

// Quota returns the per-window quota for a resource and whether the plan
// defines one.
func (p Plan) Quota(r Resource) (int64, bool) {
	q, ok := p.Quotas[r]
	return q, ok
}

// Allows reports whether the plan includes a feature.
func (p Plan) Allows(f Feature) bool { return p.Features[f] }

// IsUnlimited reports whether the plan is effectively uncapped for r.
func (p Plan) IsUnlimited(r Resource) bool {
	q, ok := p.Quotas[r]
	return ok && q >= Unlimited
}
