package controller

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ledgemail/models"
	"ledgemail/plans"
	"ledgemail/utils"
)

type SubscriberController struct {
	DB      *gorm.DB
	Catalog plans.Catalog
	Logger  *log.Logger
}

func NewSubscriberController(db *gorm.DB, catalog plans.Catalog, logger *log.Logger) *SubscriberController {
	return &SubscriberController{
		DB:      db,
		Catalog: catalog,
		Logger:  logger,
	}
}

// GetSubscribers handles GET /api/subscribers?tenantId=&status=. The
// response carries the list plus the status breakdown the dashboard shows
// in its header.
func (sc *SubscriberController) GetSubscribers(c *fiber.Ctx) error {
	tenantID := c.Query("tenantId")
	if !utils.ValidTenantID(tenantID) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Valid tenant ID required", nil)
	}

	query := sc.DB.Where("whop_user_id = ?", tenantID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var subscribers []models.Subscriber
	if err := query.Order("created_at DESC").Find(&subscribers).Error; err != nil {
		sc.Logger.Printf("list subscribers failed for tenant %s: %v", tenantID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load subscribers", err)
	}

	var total, active, unsubscribed int64
	base := sc.DB.Model(&models.Subscriber{}).Where("whop_user_id = ?", tenantID)
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load subscribers", err)
	}
	base.Session(&gorm.Session{}).Where("status = ?", models.SubscriberActive).Count(&active)
	base.Session(&gorm.Session{}).Where("status = ?", models.SubscriberUnsubscribed).Count(&unsubscribed)

	return c.JSON(fiber.Map{
		"success":     true,
		"subscribers": subscribers,
		"stats": fiber.Map{
			"total":        total,
			"active":       active,
			"unsubscribed": unsubscribed,
		},
	})
}

type addSubscriberRequest struct {
	TenantID string `json:"tenantId"`
	Email    string `json:"email" validate:"required"`
	Name     string `json:"name" validate:"omitempty,max=255"`
}

// AddSubscriber handles POST /api/subscribers. Adding an address the
// tenant already has is a no-op update, not an error, so import scripts
// can be re-run safely.
func (sc *SubscriberController) AddSubscriber(c *fiber.Ctx) error {
	var req addSubscriberRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if !utils.ValidTenantID(req.TenantID) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Valid tenant ID required", nil)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := utils.ValidateEmailFormat(email); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid email address", nil)
	}

	var sub models.Subscriber
	var count int64
	err := sc.DB.Transaction(func(tx *gorm.DB) error {
		user, err := loadTenantForUpdate(tx, req.TenantID, time.Now(), sc.Logger)
		if err != nil {
			return err
		}
		plan := sc.Catalog.Lookup(user.Plan)

		var existing int64
		if err := tx.Model(&models.Subscriber{}).
			Where("whop_user_id = ? AND email = ?", req.TenantID, email).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing == 0 && user.ContactsCount+1 > plan.ContactLimit {
			return &contactLimitError{used: user.ContactsCount, limit: plan.ContactLimit}
		}

		sub = models.Subscriber{
			WhopUserID: req.TenantID,
			Email:      email,
			Name:       req.Name,
			Status:     models.SubscriberActive,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "whop_user_id"}, {Name: "email"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"name": req.Name}),
		}).Create(&sub).Error; err != nil {
			return err
		}

		count, err = resyncContactsCount(tx, req.TenantID)
		return err
	})
	if err != nil {
		var limitErr *contactLimitError
		if errors.As(err, &limitErr) {
			return utils.ErrorResponse(c, fiber.StatusForbidden, limitErr.Error(), nil)
		}
		sc.Logger.Printf("add subscriber failed for tenant %s: %v", req.TenantID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to add subscriber", err)
	}

	return c.JSON(fiber.Map{
		"success":       true,
		"message":       "Subscriber added",
		"subscriber":    sub,
		"contactsCount": count,
	})
}

type bulkSubscriberEntry struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type bulkAddRequest struct {
	TenantID    string                `json:"tenantId"`
	Subscribers []bulkSubscriberEntry `json:"subscribers" validate:"required,min=1,max=1000"`
}

// BulkAddSubscribers handles POST /api/subscribers/bulk. The whole batch
// runs in one transaction: duplicates and malformed rows are skipped, but
// a storage failure rolls back every row in the batch.
func (sc *SubscriberController) BulkAddSubscribers(c *fiber.Ctx) error {
	var req bulkAddRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if !utils.ValidTenantID(req.TenantID) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Valid tenant ID required", nil)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	var added, skipped int
	var count int64
	err := sc.DB.Transaction(func(tx *gorm.DB) error {
		user, err := loadTenantForUpdate(tx, req.TenantID, time.Now(), sc.Logger)
		if err != nil {
			return err
		}
		plan := sc.Catalog.Lookup(user.Plan)

		remaining := plan.ContactLimit - user.ContactsCount
		if len(req.Subscribers) > remaining {
			if remaining < 0 {
				remaining = 0
			}
			return &contactLimitError{
				used:  user.ContactsCount,
				limit: plan.ContactLimit,
				hint:  fmt.Sprintf("You can add up to %d more contacts.", remaining),
			}
		}

		for _, entry := range req.Subscribers {
			email := strings.ToLower(strings.TrimSpace(entry.Email))
			if utils.ValidateEmailFormat(email) != nil {
				skipped++
				continue
			}
			sub := models.Subscriber{
				WhopUserID: req.TenantID,
				Email:      email,
				Name:       entry.Name,
				Status:     models.SubscriberActive,
			}
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "whop_user_id"}, {Name: "email"}},
				DoNothing: true,
			}).Create(&sub)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				added++
			} else {
				skipped++
			}
		}

		count, err = resyncContactsCount(tx, req.TenantID)
		return err
	})
	if err != nil {
		var limitErr *contactLimitError
		if errors.As(err, &limitErr) {
			return utils.ErrorResponse(c, fiber.StatusForbidden, limitErr.Error(), nil)
		}
		sc.Logger.Printf("bulk add failed for tenant %s: %v", req.TenantID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to import subscribers", err)
	}

	return c.JSON(fiber.Map{
		"success":       true,
		"message":       fmt.Sprintf("Imported %d subscribers (%d skipped)", added, skipped),
		"added":         added,
		"skipped":       skipped,
		"contactsCount": count,
	})
}

type updateSubscriberRequest struct {
	TenantID string  `json:"tenantId"`
	Name     *string `json:"name" validate:"omitempty,max=255"`
	Status   *string `json:"status" validate:"omitempty,oneof=active unsubscribed"`
}

// UpdateSubscriber handles PUT /api/subscribers/:id. Only name and status
// are writable; ownership is checked before anything else so tenants can
// never see each other's rows.
func (sc *SubscriberController) UpdateSubscriber(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Valid subscriber ID required", nil)
	}
	var req updateSubscriberRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if !utils.ValidTenantID(req.TenantID) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Valid tenant ID required", nil)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if len(updates) == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Nothing to update", nil)
	}

	var sub models.Subscriber
	if err := sc.DB.Where("id = ? AND whop_user_id = ?", id, req.TenantID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Subscriber not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update subscriber", err)
	}
	if err := sc.DB.Model(&sub).Updates(updates).Error; err != nil {
		sc.Logger.Printf("update subscriber %d failed for tenant %s: %v", id, req.TenantID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update subscriber", err)
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"message":    "Subscriber updated",
		"subscriber": sub,
	})
}

// DeleteSubscriber handles DELETE /api/subscribers/:id?tenantId=. Deletes
// are hard deletes; the tenant's contact counter is recomputed in the same
// transaction.
func (sc *SubscriberController) DeleteSubscriber(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Valid subscriber ID required", nil)
	}
	tenantID := c.Query("tenantId")
	if !utils.ValidTenantID(tenantID) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Valid tenant ID required", nil)
	}

	var count int64
	err = sc.DB.Transaction(func(tx *gorm.DB) error {
		if _, err := loadTenantForUpdate(tx, tenantID, time.Now(), sc.Logger); err != nil {
			return err
		}
		res := tx.Where("id = ? AND whop_user_id = ?", id, tenantID).Delete(&models.Subscriber{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		var err error
		count, err = resyncContactsCount(tx, tenantID)
		return err
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Subscriber not found", nil)
		}
		sc.Logger.Printf("delete subscriber %d failed for tenant %s: %v", id, tenantID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete subscriber", err)
	}

	return c.JSON(fiber.Map{
		"success":       true,
		"message":       "Subscriber deleted",
		"contactsCount": count,
	})
}

type toggleVIPRequest struct {
	TenantID string `json:"tenantId"`
	IsVIP    *bool  `json:"isVip"`
}

// ToggleVIP handles PUT /api/subscribers/:id/vip. With an explicit isVip
// the flag is set to that value; without one it flips.
func (sc *SubscriberController) ToggleVIP(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Valid subscriber ID required", nil)
	}
	var req toggleVIPRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if !utils.ValidTenantID(req.TenantID) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Valid tenant ID required", nil)
	}

	var sub models.Subscriber
	if err := sc.DB.Where("id = ? AND whop_user_id = ?", id, req.TenantID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Subscriber not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update subscriber", err)
	}

	next := !sub.IsVIP
	if req.IsVIP != nil {
		next = *req.IsVIP
	}
	if err := sc.DB.Model(&sub).Update("is_vip", next).Error; err != nil {
		sc.Logger.Printf("vip toggle for subscriber %d failed for tenant %s: %v", id, req.TenantID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update subscriber", err)
	}
	sub.IsVIP = next

	return c.JSON(fiber.Map{
		"success":    true,
		"message":    "Subscriber updated",
		"subscriber": sub,
	})
}

// contactLimitError is the subscriber-store variant of a quota refusal.
type contactLimitError struct {
	used  int
	limit int
	hint  string
}

func (e *contactLimitError) Error() string {
	msg := fmt.Sprintf("Contact limit exceeded. You have %d/%d contacts.", e.used, e.limit)
	if e.hint != "" {
		msg += " " + e.hint
	}
	return msg
}
