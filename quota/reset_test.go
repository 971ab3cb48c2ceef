package quota

import (
	"testing"
	"time"

	"ledgemail/models"
)

func tenantAt(daily, monthly string) models.User {
	return models.User{
		WhopUserID:               "user_1",
		Plan:                     "free",
		DailyMarketingSent:       2,
		MonthlyMarketingSent:     40,
		DailyTransactionalSent:   1,
		MonthlyTransactionalSent: 10,
		LastDailyReset:           daily,
		LastMonthlyReset:         monthly,
	}
}

func TestCheckAndResetSamePeriodNoop(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	u := tenantAt("2026-03-15", "2026-03")

	applied, p := CheckAndReset(u, now)
	if applied || p.ResetDaily || p.ResetMonthly {
		t.Fatalf("no reset expected within the same day/month, got %+v", p)
	}
}

func TestCheckAndResetDailyOnly(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 30, 0, 0, time.UTC)
	u := tenantAt("2026-03-14", "2026-03")

	applied, p := CheckAndReset(u, now)
	if !applied || !p.ResetDaily || p.ResetMonthly {
		t.Fatalf("expected daily-only reset, got %+v", p)
	}
	if p.LastDailyReset != "2026-03-15" {
		t.Fatalf("LastDailyReset = %q, want 2026-03-15", p.LastDailyReset)
	}

	p.Apply(&u)
	if u.DailyMarketingSent != 0 || u.DailyTransactionalSent != 0 {
		t.Fatalf("daily counters not zeroed: %+v", u)
	}
	if u.MonthlyMarketingSent != 40 || u.MonthlyTransactionalSent != 10 {
		t.Fatalf("monthly counters must survive a daily reset: %+v", u)
	}
}

func TestCheckAndResetBothFire(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 1, 0, time.UTC)
	u := tenantAt("2026-03-31", "2026-03")

	applied, p := CheckAndReset(u, now)
	if !applied || !p.ResetDaily || !p.ResetMonthly {
		t.Fatalf("expected both resets at month rollover, got %+v", p)
	}

	p.Apply(&u)
	if u.DailyMarketingSent != 0 || u.MonthlyMarketingSent != 0 ||
		u.DailyTransactionalSent != 0 || u.MonthlyTransactionalSent != 0 {
		t.Fatalf("all counters should be zero, got %+v", u)
	}
	if u.LastDailyReset != "2026-04-01" || u.LastMonthlyReset != "2026-04" {
		t.Fatalf("markers not advanced: %q %q", u.LastDailyReset, u.LastMonthlyReset)
	}
}

func TestCheckAndResetIdempotent(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	u := tenantAt("2026-03-30", "2026-03")

	applied, p := CheckAndReset(u, now)
	if !applied {
		t.Fatal("first call should apply a reset")
	}
	p.Apply(&u)

	applied, p = CheckAndReset(u, now)
	if applied {
		t.Fatalf("second call with same now must be a no-op, got %+v", p)
	}
}

func TestCheckAndResetMalformedMarkers(t *testing.T) {
	for _, tc := range []struct {
		name           string
		daily, monthly string
	}{
		{"empty markers", "", ""},
		{"garbage daily", "not-a-date", "2026-03"},
		{"wrong layout monthly", "2026-03-15", "March 2026"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
			u := tenantAt(tc.daily, tc.monthly)

			applied, p := CheckAndReset(u, now)
			if !applied {
				t.Fatal("malformed markers must be treated as stale")
			}
			if len(p.Malformed) == 0 {
				t.Fatal("malformed markers should be reported for logging")
			}

			p.Apply(&u)
			// The patch must leave the record healed.
			if applied, _ := CheckAndReset(u, now); applied {
				t.Fatal("record not repaired after applying patch")
			}
		})
	}
}
