package controller

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ledgemail/config"
	"ledgemail/metrics"
	"ledgemail/models"
	"ledgemail/plans"
	"ledgemail/utils"
)

type WebhookController struct {
	DB      *gorm.DB
	Catalog plans.Catalog
	Logger  *log.Logger
}

func NewWebhookController(db *gorm.DB, catalog plans.Catalog, logger *log.Logger) *WebhookController {
	return &WebhookController{
		DB:      db,
		Catalog: catalog,
		Logger:  logger,
	}
}

// WhopEvent is the subset of Whop's webhook envelope we act on.
type WhopEvent struct {
	Type string        `json:"type"`
	Data WhopEventData `json:"data"`
}

type WhopEventData struct {
	UserID       string `json:"user_id"`
	PlanID       string `json:"plan_id"`
	UserEmail    string `json:"user_email"`
	UserUsername string `json:"user_username"`
	SellerID     string `json:"seller_id"`
}

// VerifyWhopSignature checks the hex-encoded HMAC-SHA256 of the raw
// request body against the shared webhook secret. Comparison is constant
// time.
func VerifyWhopSignature(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// HandleWhopWebhook handles POST /api/webhooks/whop. Signature and parse
// failures get real error statuses so Whop retries; once an event is
// accepted, processing failures still return 200 with success=false so a
// poison event cannot wedge the delivery queue.
func (wc *WebhookController) HandleWhopWebhook(c *fiber.Ctx) error {
	body := c.Body()

	secret := config.AppConfig.WhopWebhookSecret
	if utils.IsProduction() && secret != "" {
		signature := c.Get("whop-signature")
		if signature == "" {
			metrics.RecordWebhookEvent("unknown", "rejected")
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Missing webhook signature", nil)
		}
		if !VerifyWhopSignature(body, signature, secret) {
			metrics.RecordWebhookEvent("unknown", "rejected")
			return utils.ErrorResponse(c, fiber.StatusForbidden, "Invalid webhook signature", nil)
		}
	}

	var event WhopEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid webhook payload", err)
	}
	if event.Data.UserID == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Missing user_id in webhook data", nil)
	}

	wc.Logger.Printf("whop webhook: %s for user %s", event.Type, event.Data.UserID)

	if err := wc.ApplyEvent(event, time.Now()); err != nil {
		metrics.RecordWebhookEvent(event.Type, "failed")
		logrus.WithFields(logrus.Fields{
			"event":  event.Type,
			"tenant": event.Data.UserID,
		}).WithError(err).Error("webhook processing failed")
		sentry.CaptureException(err)
		return c.JSON(fiber.Map{
			"success": false,
			"message": "Webhook received but processing failed",
		})
	}

	metrics.RecordWebhookEvent(event.Type, "processed")
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Webhook processed",
	})
}

// ApplyEvent reconciles one webhook event against the tenant store. Every
// effect is an absolute set, so redelivered events converge to the same
// state.
func (wc *WebhookController) ApplyEvent(event WhopEvent, now time.Time) error {
	switch event.Type {
	case "membership.activated", "invoice.paid":
		return wc.activateMembership(event.Data, now)
	case "membership.deactivated", "invoice.past_due":
		return wc.deactivateMembership(event.Data, now)
	case "payment.succeeded":
		wc.Logger.Printf("payment succeeded for user %s", event.Data.UserID)
		return nil
	case "payment.failed":
		wc.Logger.Printf("payment failed for user %s", event.Data.UserID)
		return nil
	default:
		wc.Logger.Printf("unhandled whop event type: %s", event.Type)
		return nil
	}
}

// activateMembership grants the plan mapped from the external plan id and
// starts a fresh billing period: all four send counters go to zero and
// both reset markers move to now. The contact counter is left alone; it
// tracks the subscriber table, not the billing period.
func (wc *WebhookController) activateMembership(data WhopEventData, now time.Time) error {
	planKey := wc.Catalog.KeyForWhopPlanID(data.PlanID)

	return wc.DB.Transaction(func(tx *gorm.DB) error {
		if _, err := loadTenantForUpdate(tx, data.UserID, now, wc.Logger); err != nil {
			return err
		}

		updates := map[string]interface{}{
			"plan":                       string(planKey),
			"daily_marketing_sent":       0,
			"monthly_marketing_sent":     0,
			"daily_transactional_sent":   0,
			"monthly_transactional_sent": 0,
			"last_daily_reset":           now.UTC().Format("2006-01-02"),
			"last_monthly_reset":         now.UTC().Format("2006-01"),
		}
		if data.UserEmail != "" {
			updates["email"] = data.UserEmail
		}
		if data.UserUsername != "" {
			updates["name"] = data.UserUsername
		}
		if err := tx.Model(&models.User{}).Where("whop_user_id = ?", data.UserID).
			Updates(updates).Error; err != nil {
			return err
		}

		// A purchase on a seller's storefront also lands the buyer on the
		// seller's mailing list.
		if data.SellerID != "" && data.SellerID != data.UserID && data.UserEmail != "" {
			return wc.addBuyerToSeller(tx, data, now)
		}
		return nil
	})
}

func (wc *WebhookController) addBuyerToSeller(tx *gorm.DB, data WhopEventData, now time.Time) error {
	if _, err := loadTenantForUpdate(tx, data.SellerID, now, wc.Logger); err != nil {
		return err
	}
	sub := models.Subscriber{
		WhopUserID: data.SellerID,
		Email:      strings.ToLower(data.UserEmail),
		Name:       data.UserUsername,
		Status:     models.SubscriberActive,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "whop_user_id"}, {Name: "email"}},
		DoNothing: true,
	}).Create(&sub).Error; err != nil {
		return err
	}
	_, err := resyncContactsCount(tx, data.SellerID)
	return err
}

// deactivateMembership drops the tenant to the free plan. Usage counters
// are deliberately untouched so a lapsed tenant cannot launder quota by
// cycling its membership.
func (wc *WebhookController) deactivateMembership(data WhopEventData, now time.Time) error {
	return wc.DB.Transaction(func(tx *gorm.DB) error {
		if _, err := loadTenantForUpdate(tx, data.UserID, now, wc.Logger); err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("whop_user_id = ?", data.UserID).
			Update("plan", string(plans.Free)).Error
	})
}
