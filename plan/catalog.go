package plan

import "fmt"

// Catalog maps each tier to its plan. A Catalog is read-only after
// construction and safe for concurrent use.
type Catalog struct {
	plans map[Tier]Plan
}

// NewCatalog builds a catalog from the given plans. Every tier must be
// present exactly once.
func NewCatalog(plans ...Plan) (*Catalog, error) {
	c := &Catalog{plans: make(map[Tier]Plan, len(plans))}
	for _, p := range plans {
		if !p.Tier.Valid() {
			return nil, fmt.Errorf("plan: catalog: invalid tier %q", p.Tier)
		}
		if _, dup := c.plans[p.Tier]; dup {
			return nil, fmt.Errorf("plan: catalog: duplicate tier %q", p.Tier)
		}
		c.plans[p.Tier] = clonePlan(p)
	}
	for _, t := range Tiers {
		if _, ok := c.plans[t]; !ok {
			return nil, fmt.Errorf("plan: catalog: missing tier %q", t)
		}
	}
	return c, nil
}

// DefaultCatalog returns the production plan set.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(
		Plan{
			Tier: TierFree, Name: "Free",
			Quotas:   map[Resource]int64{ResourceChatMessage: 50, ResourcePhotoShare: 0},
			Features: map[Feature]bool{},
			Price:    Price{MonthlyCents: 0, Currency: "usd"},
		},
		Plan{
			Tier: TierBasic, Name: "Basic",
			Quotas:   map[Resource]int64{ResourceChatMessage: 200, ResourcePhotoShare: 10},
			Features: map[Feature]bool{FeaturePhotoSharing: true},
			Price:    Price{MonthlyCents: 999, Currency: "usd"},
		},
		Plan{
			Tier: TierPremium, Name: "Premium",
			Quotas:   map[Resource]int64{ResourceChatMessage: Unlimited, ResourcePhotoShare: 100},
			Features: map[Feature]bool{FeatureVoice: true, FeaturePhotoSharing: true},
			Price:    Price{MonthlyCents: 1999, Currency: "usd"},
		},
		Plan{
			Tier: TierUltimate, Name: "Ultimate",
			Quotas:   map[Resource]int64{ResourceChatMessage: Unlimited, ResourcePhotoShare: Unlimited},
			Features: map[Feature]bool{FeatureVoice: true, FeaturePhotoSharing: true},
			Price:    Price{MonthlyCents: 2999, Currency: "usd"},
		},
	)
	if err != nil {
		panic(err)
	}
	return c
}

// Plan returns the plan for a tier.
func (c *Catalog) Plan(t Tier) (Plan, bool) {
	p, ok := c.plans[t]
	if !ok {
		return Plan{}, false
	}
	return clonePlan(p), true
}

// Plans returns every plan ordered from lowest to highest tier.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, 0, len(Tiers))
	for _, t := range Tiers {
		out = append(out, clonePlan(c.plans[t]))
	}
	return out
}

func clonePlan(p Plan) Plan {
	cp := p
	cp.Quotas = make(map[Resource]int64, len(p.Quotas))
	for k, v := range p.Quotas {
		cp.Quotas[k] = v
	}
	cp.Features = make(map[Feature]bool, len(p.Features))
	for k, v := range p.Features {
		cp.Features[k] = v
	}
	return cp
}
