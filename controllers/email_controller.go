package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"ledgemail/config"
	"ledgemail/metrics"
	"ledgemail/models"
	"ledgemail/plans"
	"ledgemail/quota"
	"ledgemail/utils"
)

type EmailController struct {
	DB      *gorm.DB
	Catalog plans.Catalog
	Mailer  utils.Mailer
	Logger  *log.Logger
}

func NewEmailController(db *gorm.DB, catalog plans.Catalog, mailer utils.Mailer, logger *log.Logger) *EmailController {
	return &EmailController{
		DB:      db,
		Catalog: catalog,
		Mailer:  mailer,
		Logger:  logger,
	}
}

type sendEmailRequest struct {
	TenantID     string `json:"tenantId"`
	CampaignName string `json:"campaignName" validate:"required,max=255"`
	Subject      string `json:"subject" validate:"required,max=998"`
	HTML         string `json:"html" validate:"required"`
	Type         string `json:"type" validate:"required"`

	// recipientType selects the audience: "all" (default), "vip", or
	// "custom". The legacy "to" field is still honored as an implicit
	// custom audience.
	RecipientType string           `json:"recipientType" validate:"omitempty,oneof=all vip custom"`
	CustomEmails  []string         `json:"customEmails"`
	To            utils.StringList `json:"to"`
}

// resolveRecipients expands the request's audience selector into a flat
// list of addresses.
func (ec *EmailController) resolveRecipients(req sendEmailRequest) ([]string, error) {
	custom := req.CustomEmails
	if len(custom) == 0 {
		custom = req.To
	}
	if req.RecipientType == "custom" || (req.RecipientType == "" && len(custom) > 0) {
		if len(custom) == 0 {
			return nil, errors.New("customEmails is required when recipientType is custom")
		}
		for _, addr := range custom {
			if err := utils.ValidateEmailFormat(addr); err != nil {
				return nil, fmt.Errorf("invalid recipient address: %s", addr)
			}
		}
		return custom, nil
	}

	query := ec.DB.Model(&models.Subscriber{}).
		Where("whop_user_id = ? AND status = ?", req.TenantID, models.SubscriberActive)
	if req.RecipientType == "vip" {
		query = query.Where("is_vip = ?", true)
	}
	var emails []string
	if err := query.Order("created_at ASC").Pluck("email", &emails).Error; err != nil {
		return nil, fmt.Errorf("failed to load subscribers: %w", err)
	}
	return emails, nil
}

// SendEmail handles POST /api/send-email. Quota accounting and the
// provider call run inside one transaction that holds the tenant row lock,
// so concurrent sends for the same tenant serialize and a provider failure
// never burns quota.
func (ec *EmailController) SendEmail(c *fiber.Ctx) error {
	var req sendEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if !utils.ValidTenantID(req.TenantID) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Valid tenant ID required", nil)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}
	emailType := quota.ParseEmailType(req.Type)

	recipients, err := ec.resolveRecipients(req)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}
	if len(recipients) == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "No recipients to send to", nil)
	}

	tx := ec.DB.Begin()
	if tx.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to start send", tx.Error)
	}

	user, err := loadTenantForUpdate(tx, req.TenantID, time.Now(), ec.Logger)
	if err != nil {
		tx.Rollback()
		ec.Logger.Printf("send: tenant load failed for %s: %v", req.TenantID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load account", err)
	}

	plan := ec.Catalog.Lookup(user.Plan)
	if err := quota.AuthorizeSend(*user, plan, emailType, len(recipients)); err != nil {
		tx.Rollback()
		var denial *quota.Denial
		if errors.As(err, &denial) {
			metrics.RecordSend(string(emailType), "denied")
			return utils.ErrorResponse(c, fiber.StatusForbidden, denial.Reason, nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to authorize send", err)
	}

	ctx, cancel := context.WithTimeout(c.Context(), config.AppConfig.ProviderTimeout)
	defer cancel()
	emailID, err := ec.Mailer.Send(ctx, utils.Email{
		From:    config.AppConfig.FromAddress,
		To:      recipients,
		Subject: req.Subject,
		HTML:    req.HTML,
		Tags: map[string]string{
			"campaign": req.CampaignName,
			"plan":     user.Plan,
			"type":     string(emailType),
		},
	})
	if err != nil {
		tx.Rollback()
		metrics.RecordSend(string(emailType), "failed")
		logrus.WithFields(logrus.Fields{
			"tenant":   req.TenantID,
			"campaign": req.CampaignName,
			"provider": ec.Mailer.Name(),
		}).WithError(err).Error("email provider call failed")
		sentry.CaptureException(err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to send email", err)
	}

	quota.RecordSend(user, emailType, len(recipients))
	if err := tx.Model(&models.User{}).Where("whop_user_id = ?", req.TenantID).
		Updates(sendColumns(user, emailType)).Error; err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to record send", err)
	}
	if err := tx.Commit().Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to record send", err)
	}

	metrics.RecordSend(string(emailType), "sent")
	ec.Logger.Printf("sent %s campaign %q for tenant %s to %d recipients (id %s)",
		emailType, req.CampaignName, req.TenantID, len(recipients), emailID)

	daily, monthly := user.DailyMarketingSent, user.MonthlyMarketingSent
	if emailType == quota.Transactional {
		daily, monthly = user.DailyTransactionalSent, user.MonthlyTransactionalSent
	}
	return c.JSON(fiber.Map{
		"success":        true,
		"message":        fmt.Sprintf("Email sent to %d recipients", len(recipients)),
		"emailId":        emailID,
		"demo":           ec.Mailer.Name() == "demo",
		"recipientCount": len(recipients),
		"usage": fiber.Map{
			"daily":    daily,
			"monthly":  monthly,
			"contacts": user.ContactsCount,
		},
	})
}

// sendColumns maps the counters RecordSend touched for this email type
// onto their columns, written as absolute values computed under the row
// lock.
func sendColumns(u *models.User, emailType quota.EmailType) map[string]interface{} {
	cols := map[string]interface{}{
		"contacts_count": u.ContactsCount,
	}
	if emailType == quota.Transactional {
		cols["daily_transactional_sent"] = u.DailyTransactionalSent
		cols["monthly_transactional_sent"] = u.MonthlyTransactionalSent
	} else {
		cols["daily_marketing_sent"] = u.DailyMarketingSent
		cols["monthly_marketing_sent"] = u.MonthlyMarketingSent
	}
	return cols
}
