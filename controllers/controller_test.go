package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"ledgemail/config"
	"ledgemail/models"
	"ledgemail/plans"
	"ledgemail/utils"
)

// stubMailer records sends instead of talking to a provider. Setting fail
// makes every Send return an error, which the send path must treat as
// "no quota consumed".
type stubMailer struct {
	fail  bool
	sends []utils.Email
}

func (m *stubMailer) Name() string { return "stub" }

func (m *stubMailer) Send(_ context.Context, email utils.Email) (string, error) {
	if m.fail {
		return "", fmt.Errorf("provider unavailable")
	}
	m.sends = append(m.sends, email)
	return fmt.Sprintf("stub_%d", len(m.sends)), nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := config.MigrateDB(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func newTestApp(t *testing.T) (*fiber.App, *gorm.DB, *stubMailer) {
	t.Helper()
	config.AppConfig.ProviderTimeout = 5 * time.Second

	db := newTestDB(t)
	catalog := plans.Load()
	mailer := &stubMailer{}
	logger := log.New(io.Discard, "", 0)

	userController := NewUserController(db, catalog, logger)
	emailController := NewEmailController(db, catalog, mailer, logger)
	subscriberController := NewSubscriberController(db, catalog, logger)
	webhookController := NewWebhookController(db, catalog, logger)

	app := fiber.New()
	app.Get("/api/user/:tenantId/verify", userController.VerifyUser)
	app.Post("/api/user/update", userController.UpdateProfile)
	app.Get("/api/analytics", userController.GetAnalytics)
	app.Post("/api/send-email", emailController.SendEmail)
	app.Get("/api/subscribers", subscriberController.GetSubscribers)
	app.Post("/api/subscribers", subscriberController.AddSubscriber)
	app.Post("/api/subscribers/bulk", subscriberController.BulkAddSubscribers)
	app.Put("/api/subscribers/:id", subscriberController.UpdateSubscriber)
	app.Delete("/api/subscribers/:id", subscriberController.DeleteSubscriber)
	app.Put("/api/subscribers/:id/vip", subscriberController.ToggleVIP)
	app.Post("/api/webhooks/whop", webhookController.HandleWhopWebhook)

	return app, db, mailer
}

// doJSON runs one request against the test app and decodes the JSON body.
func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return doRequest(t, app, req)
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	var decoded map[string]interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("decode response %q: %v", raw, err)
		}
	}
	return resp.StatusCode, decoded
}

// seedTenant inserts a tenant row with current reset markers so no lazy
// reset fires during the test.
func seedTenant(t *testing.T, db *gorm.DB, tenantID, plan string, mutate func(*models.User)) {
	t.Helper()
	user := models.NewUser(tenantID, time.Now())
	user.Plan = plan
	if mutate != nil {
		mutate(&user)
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed tenant %s: %v", tenantID, err)
	}
}

func loadUser(t *testing.T, db *gorm.DB, tenantID string) models.User {
	t.Helper()
	var user models.User
	if err := db.Where("whop_user_id = ?", tenantID).First(&user).Error; err != nil {
		t.Fatalf("load tenant %s: %v", tenantID, err)
	}
	return user
}
