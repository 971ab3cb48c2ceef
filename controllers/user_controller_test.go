package controller

import (
	"net/http"
	"testing"

	"ledgemail/models"
)

func TestVerifyCreatesTenantOnFirstSight(t *testing.T) {
	app, db, _ := newTestApp(t)

	status, body := doJSON(t, app, http.MethodGet, "/api/user/tenant_new/verify", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %v)", status, body)
	}

	user := body["user"].(map[string]interface{})
	if user["plan"] != "free" {
		t.Errorf("plan = %v, want free", user["plan"])
	}
	usage := user["usage"].(map[string]interface{})
	if usage["dailyMarketingSent"].(float64) != 0 || usage["contactsCount"].(float64) != 0 {
		t.Errorf("fresh tenant has nonzero usage: %v", usage)
	}

	row := loadUser(t, db, "tenant_new")
	if row.Plan != "free" {
		t.Errorf("stored plan = %q, want free", row.Plan)
	}
}

func TestVerifyRejectsBadTenantIDs(t *testing.T) {
	app, _, _ := newTestApp(t)

	for _, id := range []string{"undefined"} {
		status, _ := doJSON(t, app, http.MethodGet, "/api/user/"+id+"/verify", nil)
		if status != http.StatusBadRequest {
			t.Errorf("verify %q: status = %d, want 400", id, status)
		}
	}
}

func TestVerifyAppliesOverdueResets(t *testing.T) {
	app, db, _ := newTestApp(t)
	seedTenant(t, db, "tenant_stale", "starter", func(u *models.User) {
		u.DailyMarketingSent = 5
		u.MonthlyMarketingSent = 40
		u.LastDailyReset = "2020-01-01"
		u.LastMonthlyReset = "2020-01"
	})

	status, body := doJSON(t, app, http.MethodGet, "/api/user/tenant_stale/verify", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d (body %v)", status, body)
	}

	row := loadUser(t, db, "tenant_stale")
	if row.DailyMarketingSent != 0 || row.MonthlyMarketingSent != 0 {
		t.Errorf("counters not reset: daily=%d monthly=%d", row.DailyMarketingSent, row.MonthlyMarketingSent)
	}
	if row.LastDailyReset == "2020-01-01" || row.LastMonthlyReset == "2020-01" {
		t.Errorf("reset markers not advanced: %q / %q", row.LastDailyReset, row.LastMonthlyReset)
	}
}

func TestUpdateProfile(t *testing.T) {
	app, db, _ := newTestApp(t)

	status, _ := doJSON(t, app, http.MethodPost, "/api/user/update", map[string]interface{}{
		"tenantId": "tenant_profile",
		"email":    "owner@example.com",
		"name":     "Owner",
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}

	row := loadUser(t, db, "tenant_profile")
	if row.Email != "owner@example.com" || row.Name != "Owner" {
		t.Errorf("profile = %q/%q, want owner@example.com/Owner", row.Email, row.Name)
	}

	// Partial update leaves the other field alone.
	status, _ = doJSON(t, app, http.MethodPost, "/api/user/update", map[string]interface{}{
		"tenantId": "tenant_profile",
		"name":     "New Owner",
	})
	if status != http.StatusOK {
		t.Fatalf("partial update status = %d, want 200", status)
	}
	row = loadUser(t, db, "tenant_profile")
	if row.Email != "owner@example.com" || row.Name != "New Owner" {
		t.Errorf("after partial update: %q/%q", row.Email, row.Name)
	}
}

func TestUpdateProfileRejectsBadEmail(t *testing.T) {
	app, _, _ := newTestApp(t)

	status, _ := doJSON(t, app, http.MethodPost, "/api/user/update", map[string]interface{}{
		"tenantId": "tenant_profile",
		"email":    "not-an-email",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
}

func TestAnalyticsRequiresProPlan(t *testing.T) {
	app, db, _ := newTestApp(t)
	seedTenant(t, db, "tenant_free", "free", nil)
	seedTenant(t, db, "tenant_pro", "pro", func(u *models.User) {
		u.MonthlyMarketingSent = 12
	})

	status, _ := doJSON(t, app, http.MethodGet, "/api/analytics?tenantId=tenant_free", nil)
	if status != http.StatusForbidden {
		t.Fatalf("free plan analytics: status = %d, want 403", status)
	}

	status, body := doJSON(t, app, http.MethodGet, "/api/analytics?tenantId=tenant_pro", nil)
	if status != http.StatusOK {
		t.Fatalf("pro plan analytics: status = %d (body %v)", status, body)
	}
	analytics := body["analytics"].(map[string]interface{})
	month := analytics["emailsSentThisMonth"].(map[string]interface{})
	if month["marketing"].(float64) != 12 {
		t.Errorf("monthly marketing = %v, want 12", month["marketing"])
	}
}
