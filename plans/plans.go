// Package plans holds the static plan catalog. Plans are fixed per
// deployment; only the Whop plan identifiers are environment-overridable
// so staging and production can point at different Whop products.
package plans

import "os"

// Key identifies a plan tier. The set is closed: anything outside it
// resolves to Free.
type Key string

const (
	Free    Key = "free"
	Starter Key = "starter"
	Growth  Key = "growth"
	Pro     Key = "pro"
)

// SendLimits bounds one category of email for a plan.
type SendLimits struct {
	Monthly int  `json:"monthly"`
	Daily   int  `json:"daily"`
	Enabled bool `json:"enabled"`
}

// Plan describes one tier and its limits.
type Plan struct {
	Key              Key        `json:"key"`
	Name             string     `json:"name"`
	Price            int        `json:"price"` // USD per month
	ContactLimit     int        `json:"contact_limit"`
	Marketing        SendLimits `json:"marketing_emails"`
	Transactional    SendLimits `json:"transactional_emails"`
	AnalyticsEnabled bool       `json:"analytics_enabled"`
	WhopPlanID       string     `json:"whop_plan_id"`
}

// Catalog is the total mapping from plan keys to plans.
type Catalog struct {
	byKey map[Key]Plan
	order []Key
}

// Load builds the catalog, reading WHOP_PLAN_ID_* overrides from the
// environment (godotenv is loaded by config before this runs).
func Load() Catalog {
	all := []Plan{
		{
			Key:           Free,
			Name:          "Free Plan",
			Price:         0,
			ContactLimit:  25,
			Marketing:     SendLimits{Monthly: 70, Daily: 2, Enabled: true},
			Transactional: SendLimits{Monthly: 0, Daily: 0, Enabled: false},
			WhopPlanID:    getEnv("WHOP_PLAN_ID_FREE", "FREE"),
		},
		{
			Key:           Starter,
			Name:          "Starter Plan",
			Price:         9,
			ContactLimit:  100,
			Marketing:     SendLimits{Monthly: 300, Daily: 10, Enabled: true},
			Transactional: SendLimits{Monthly: 200, Daily: 6, Enabled: true},
			WhopPlanID:    getEnv("WHOP_PLAN_ID_STARTER", "plan_starter"),
		},
		{
			Key:           Growth,
			Name:          "Growth Plan",
			Price:         19,
			ContactLimit:  250,
			Marketing:     SendLimits{Monthly: 750, Daily: 25, Enabled: true},
			Transactional: SendLimits{Monthly: 500, Daily: 16, Enabled: true},
			WhopPlanID:    getEnv("WHOP_PLAN_ID_GROWTH", "plan_growth"),
		},
		{
			Key:              Pro,
			Name:             "Pro Plan",
			Price:            40,
			ContactLimit:     400,
			Marketing:        SendLimits{Monthly: 1200, Daily: 40, Enabled: true},
			Transactional:    SendLimits{Monthly: 1000, Daily: 33, Enabled: true},
			AnalyticsEnabled: true,
			WhopPlanID:       getEnv("WHOP_PLAN_ID_PRO", "plan_pro"),
		},
	}

	c := Catalog{byKey: make(map[Key]Plan, len(all))}
	for _, p := range all {
		c.byKey[p.Key] = p
		c.order = append(c.order, p.Key)
	}
	return c
}

// Lookup returns the plan for key, falling back to the free plan for any
// unknown or empty key. It never fails.
func (c Catalog) Lookup(key string) Plan {
	if p, ok := c.byKey[Key(key)]; ok {
		return p
	}
	return c.byKey[Free]
}

// KeyForWhopPlanID reverse-maps a Whop billing plan id to a catalog key,
// falling back to the free plan when no tier matches.
func (c Catalog) KeyForWhopPlanID(whopPlanID string) Key {
	if whopPlanID == "" {
		return Free
	}
	for _, k := range c.order {
		if c.byKey[k].WhopPlanID == whopPlanID {
			return k
		}
	}
	return Free
}

// All returns the plans in display order.
func (c Catalog) All() []Plan {
	out := make([]Plan, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.byKey[k])
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
