// Package quota implements the usage ledger rules: lazy calendar resets of
// a tenant's send counters and the authorization checks for a proposed
// send. Everything here is pure with respect to its inputs; persistence
// and provider calls belong to the callers.
package quota

import (
	"time"

	"ledgemail/models"
)

const (
	dailyLayout   = "2006-01-02"
	monthlyLayout = "2006-01"
)

// ResetPatch is the explicit set of ledger fields a calendar reset
// touches. Callers apply it to the tenant record before trusting any
// counter read or running a quota check.
type ResetPatch struct {
	ResetDaily   bool
	ResetMonthly bool

	// New marker values, set when the corresponding reset fires.
	LastDailyReset   string
	LastMonthlyReset string

	// Markers that could not be parsed and were treated as stale.
	// Callers should log these; the patch repairs them.
	Malformed []string
}

// CheckAndReset decides whether the tenant's daily and/or monthly counters
// are due a reset at now (UTC calendar). The two resets are independent
// and both may fire in one call. A malformed or absent marker counts as
// stale rather than failing, so a corrupted record heals on next read.
//
// Applying the returned patch and calling again with the same now yields
// no reset: the check is idempotent per calendar day/month.
func CheckAndReset(u models.User, now time.Time) (bool, ResetPatch) {
	now = now.UTC()
	var p ResetPatch

	if stale, malformed := staleMarker(u.LastDailyReset, dailyLayout, now); stale {
		p.ResetDaily = true
		p.LastDailyReset = now.Format(dailyLayout)
		if malformed {
			p.Malformed = append(p.Malformed, "last_daily_reset")
		}
	}

	if stale, malformed := staleMarker(u.LastMonthlyReset, monthlyLayout, now); stale {
		p.ResetMonthly = true
		p.LastMonthlyReset = now.Format(monthlyLayout)
		if malformed {
			p.Malformed = append(p.Malformed, "last_monthly_reset")
		}
	}

	return p.ResetDaily || p.ResetMonthly, p
}

// staleMarker reports whether a reset marker lies strictly before now's
// calendar period. Values that do not round-trip the layout are stale by
// definition.
func staleMarker(marker, layout string, now time.Time) (stale, malformed bool) {
	if _, err := time.ParseInLocation(layout, marker, time.UTC); err != nil {
		return true, true
	}
	// Valid markers are ISO-ordered, so string comparison is calendar
	// comparison.
	return now.Format(layout) > marker, false
}

// Apply writes the patch onto the tenant record, zeroing exactly the
// counters the fired resets cover.
func (p ResetPatch) Apply(u *models.User) {
	if p.ResetDaily {
		u.DailyMarketingSent = 0
		u.DailyTransactionalSent = 0
		u.LastDailyReset = p.LastDailyReset
	}
	if p.ResetMonthly {
		u.MonthlyMarketingSent = 0
		u.MonthlyTransactionalSent = 0
		u.LastMonthlyReset = p.LastMonthlyReset
	}
}
