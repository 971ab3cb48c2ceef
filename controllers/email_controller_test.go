package controller

import (
	"net/http"
	"strings"
	"testing"

	"ledgemail/models"
)

func sendRequest(tenantID string, extra map[string]interface{}) map[string]interface{} {
	body := map[string]interface{}{
		"tenantId":     tenantID,
		"campaignName": "Launch",
		"subject":      "Hello",
		"html":         "<p>Hi</p>",
		"type":         "marketing",
	}
	for k, v := range extra {
		body[k] = v
	}
	return body
}

func TestSendEmailToCustomRecipients(t *testing.T) {
	app, db, mailer := newTestApp(t)

	status, body := doJSON(t, app, http.MethodPost, "/api/send-email", sendRequest("tenant_send", map[string]interface{}{
		"recipientType": "custom",
		"customEmails":  []string{"a@example.com", "b@example.com"},
	}))
	if status != http.StatusOK {
		t.Fatalf("status = %d (body %v)", status, body)
	}
	if body["emailId"] != "stub_1" {
		t.Errorf("emailId = %v, want stub_1", body["emailId"])
	}
	if len(mailer.sends) != 1 || len(mailer.sends[0].To) != 2 {
		t.Fatalf("mailer got %v, want one send to 2 recipients", mailer.sends)
	}

	row := loadUser(t, db, "tenant_send")
	if row.DailyMarketingSent != 2 || row.MonthlyMarketingSent != 2 {
		t.Errorf("marketing counters = %d/%d, want 2/2", row.DailyMarketingSent, row.MonthlyMarketingSent)
	}
	if row.ContactsCount != 2 {
		t.Errorf("contacts_count = %d, want 2 (recipients charge the contact allowance)", row.ContactsCount)
	}
}

func TestSendEmailLegacyToField(t *testing.T) {
	app, _, mailer := newTestApp(t)

	// "to" as a bare string, the shape older clients send.
	status, body := doJSON(t, app, http.MethodPost, "/api/send-email", sendRequest("tenant_legacy", map[string]interface{}{
		"to": "solo@example.com",
	}))
	if status != http.StatusOK {
		t.Fatalf("status = %d (body %v)", status, body)
	}
	if len(mailer.sends) != 1 || mailer.sends[0].To[0] != "solo@example.com" {
		t.Fatalf("mailer got %v, want send to solo@example.com", mailer.sends)
	}
}

func TestSendEmailToSubscriberAudiences(t *testing.T) {
	app, db, mailer := newTestApp(t)

	// Growth-plan limits leave room for both sends below.
	seedTenant(t, db, "tenant_aud", "growth", nil)
	subs := []models.Subscriber{
		{WhopUserID: "tenant_aud", Email: "active1@example.com", Status: "active"},
		{WhopUserID: "tenant_aud", Email: "active2@example.com", Status: "active", IsVIP: true},
		{WhopUserID: "tenant_aud", Email: "gone@example.com", Status: "unsubscribed"},
	}
	for i := range subs {
		if err := db.Create(&subs[i]).Error; err != nil {
			t.Fatalf("seed subscriber: %v", err)
		}
	}

	t.Run("all skips unsubscribed", func(t *testing.T) {
		status, body := doJSON(t, app, http.MethodPost, "/api/send-email",
			sendRequest("tenant_aud", map[string]interface{}{"recipientType": "all"}))
		if status != http.StatusOK {
			t.Fatalf("status = %d (body %v)", status, body)
		}
		got := mailer.sends[len(mailer.sends)-1].To
		if len(got) != 2 {
			t.Fatalf("recipients = %v, want the 2 active subscribers", got)
		}
		for _, addr := range got {
			if strings.HasPrefix(addr, "gone@") {
				t.Errorf("unsubscribed address %s was included", addr)
			}
		}
	})

	t.Run("vip narrows to flagged", func(t *testing.T) {
		status, _ := doJSON(t, app, http.MethodPost, "/api/send-email",
			sendRequest("tenant_aud", map[string]interface{}{"recipientType": "vip"}))
		if status != http.StatusOK {
			t.Fatalf("status = %d", status)
		}
		got := mailer.sends[len(mailer.sends)-1].To
		if len(got) != 1 || got[0] != "active2@example.com" {
			t.Errorf("vip recipients = %v, want [active2@example.com]", got)
		}
	})
}

func TestSendEmailDeniedOverDailyLimit(t *testing.T) {
	app, db, mailer := newTestApp(t)

	// Free plan allows 2 marketing emails per day.
	status, body := doJSON(t, app, http.MethodPost, "/api/send-email", sendRequest("tenant_daily", map[string]interface{}{
		"customEmails": []string{"a@example.com", "b@example.com", "c@example.com"},
	}))
	if status != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 (body %v)", status, body)
	}
	if msg := body["message"].(string); !strings.Contains(msg, "Daily marketing email limit exceeded") {
		t.Errorf("message = %q, want daily-limit reason", msg)
	}
	if len(mailer.sends) != 0 {
		t.Error("denied send still reached the provider")
	}
	if row := loadUser(t, db, "tenant_daily"); row.DailyMarketingSent != 0 {
		t.Errorf("denied send consumed quota: daily = %d", row.DailyMarketingSent)
	}
}

func TestSendEmailTransactionalNeedsCapability(t *testing.T) {
	app, _, _ := newTestApp(t)

	status, body := doJSON(t, app, http.MethodPost, "/api/send-email", sendRequest("tenant_cap", map[string]interface{}{
		"type":         "transactional",
		"customEmails": []string{"a@example.com"},
	}))
	if status != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", status)
	}
	if msg := body["message"].(string); !strings.Contains(msg, "Transactional emails not available") {
		t.Errorf("message = %q, want capability reason", msg)
	}
}

func TestSendEmailProviderFailureBurnsNoQuota(t *testing.T) {
	app, db, mailer := newTestApp(t)
	mailer.fail = true

	status, _ := doJSON(t, app, http.MethodPost, "/api/send-email", sendRequest("tenant_fail", map[string]interface{}{
		"customEmails": []string{"a@example.com"},
	}))
	if status != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", status)
	}

	row := loadUser(t, db, "tenant_fail")
	if row.DailyMarketingSent != 0 || row.MonthlyMarketingSent != 0 || row.ContactsCount != 0 {
		t.Errorf("provider failure consumed quota: %d/%d/%d",
			row.DailyMarketingSent, row.MonthlyMarketingSent, row.ContactsCount)
	}

	// The tenant row stays usable for the retry.
	mailer.fail = false
	status, _ = doJSON(t, app, http.MethodPost, "/api/send-email", sendRequest("tenant_fail", map[string]interface{}{
		"customEmails": []string{"a@example.com"},
	}))
	if status != http.StatusOK {
		t.Fatalf("retry after provider recovery: status = %d, want 200", status)
	}
}

func TestSendEmailValidation(t *testing.T) {
	app, _, _ := newTestApp(t)

	cases := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing subject", sendRequest("tenant_v", map[string]interface{}{
			"subject":      "",
			"customEmails": []string{"a@example.com"},
		})},
		{"undefined tenant", sendRequest("undefined", map[string]interface{}{
			"customEmails": []string{"a@example.com"},
		})},
		{"malformed custom recipient", sendRequest("tenant_v", map[string]interface{}{
			"recipientType": "custom",
			"customEmails":  []string{"nope"},
		})},
		{"custom without recipients", sendRequest("tenant_v", map[string]interface{}{
			"recipientType": "custom",
		})},
		{"no subscribers to send to", sendRequest("tenant_v", map[string]interface{}{
			"recipientType": "all",
		})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := doJSON(t, app, http.MethodPost, "/api/send-email", tc.body)
			if status != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %v)", status, body)
			}
		})
	}
}
