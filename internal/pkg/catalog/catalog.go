package catalog

import "strings"

// Tier is one sellable product tier. Prices are major currency units
// (whole dollars); conversion to minor units happens at the gateway seam.
type Tier struct {
	ID        string
	Name      string
	UnitPrice int64
	Currency  string
	Recurring bool
	Interval  string
	PlanRef   string // FlowPay plan/price reference
	TrialDays int
	Features  []string
}

// The catalog is compiled in: tier pricing changes ship as deploys, and a
// session snapshots the tier's features at pricing time so later catalog
// edits never alter an already-quoted session.
var tiers = map[string]Tier{
	"starter": {
		ID:        "starter",
		Name:      "Starter",
		UnitPrice: 199,
		Currency:  "usd",
		Recurring: false,
		PlanRef:   "price_starter_onetime",
		Features:  []string{"single-project", "community-support"},
	},
	"pro": {
		ID:        "pro",
		Name:      "Pro",
		UnitPrice: 499,
		Currency:  "usd",
		Recurring: true,
		Interval:  "month",
		PlanRef:   "price_pro_monthly",
		TrialDays: 14,
		Features:  []string{"unlimited-projects", "priority-support", "api-access"},
	},
	"enterprise": {
		ID:        "enterprise",
		Name:      "Enterprise",
		UnitPrice: 1999,
		Currency:  "usd",
		Recurring: true,
		Interval:  "year",
		PlanRef:   "price_enterprise_yearly",
		TrialDays: 14,
		Features:  []string{"unlimited-projects", "priority-support", "api-access", "sso", "audit-export"},
	},
	"onboarding": {
		ID:        "onboarding",
		Name:      "Guided Onboarding",
		UnitPrice: 299,
		Currency:  "usd",
		Recurring: false,
		PlanRef:   "price_onboarding_onetime",
		Features:  []string{"onboarding-session"},
	},
}

// Lookup resolves a product tier id. The second return is false for
// unknown tiers.
func Lookup(id string) (Tier, bool) {
	t, ok := tiers[strings.ToLower(strings.TrimSpace(id))]
	return t, ok
}

// Snapshot returns a copy of the tier's feature list, safe for the caller
// to keep.
func (t Tier) Snapshot() []string {
	out := make([]string, len(t.Features))
	copy(out, t.Features)
	return out
}
