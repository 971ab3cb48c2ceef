package controller

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"ledgemail/models"
	"ledgemail/plans"
	"ledgemail/utils"
)

type UserController struct {
	DB      *gorm.DB
	Catalog plans.Catalog
	Logger  *log.Logger
}

func NewUserController(db *gorm.DB, catalog plans.Catalog, logger *log.Logger) *UserController {
	return &UserController{
		DB:      db,
		Catalog: catalog,
		Logger:  logger,
	}
}

// tenantSnapshot is the wire shape of a tenant: the stored row joined with
// the limits of its current plan.
func tenantSnapshot(user *models.User, plan plans.Plan) fiber.Map {
	return fiber.Map{
		"tenantId": user.WhopUserID,
		"email":    user.Email,
		"name":     user.Name,
		"plan":     user.Plan,
		"planDetails": fiber.Map{
			"name":             plan.Name,
			"price":            plan.Price,
			"contactLimit":     plan.ContactLimit,
			"marketing":        plan.Marketing,
			"transactional":    plan.Transactional,
			"analyticsEnabled": plan.AnalyticsEnabled,
		},
		"usage": fiber.Map{
			"contactsCount":            user.ContactsCount,
			"dailyMarketingSent":       user.DailyMarketingSent,
			"monthlyMarketingSent":     user.MonthlyMarketingSent,
			"dailyTransactionalSent":   user.DailyTransactionalSent,
			"monthlyTransactionalSent": user.MonthlyTransactionalSent,
			"lastDailyReset":           user.LastDailyReset,
			"lastMonthlyReset":         user.LastMonthlyReset,
		},
	}
}

// VerifyUser handles GET /api/user/:tenantId/verify. The first request for
// an unseen tenant creates its row with free-plan defaults, so the
// frontend never needs a separate signup call.
func (uc *UserController) VerifyUser(c *fiber.Ctx) error {
	tenantID := c.Params("tenantId")
	if !utils.ValidTenantID(tenantID) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Valid tenant ID required", nil)
	}

	var user *models.User
	err := uc.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		user, txErr = loadTenantForUpdate(tx, tenantID, time.Now(), uc.Logger)
		return txErr
	})
	if err != nil {
		uc.Logger.Printf("verify failed for tenant %s: %v", tenantID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to verify user", err)
	}

	plan := uc.Catalog.Lookup(user.Plan)
	return c.JSON(fiber.Map{
		"success": true,
		"user":    tenantSnapshot(user, plan),
	})
}

type updateProfileRequest struct {
	TenantID string `json:"tenantId"`
	Email    string `json:"email" validate:"omitempty,email"`
	Name     string `json:"name" validate:"omitempty,max=255"`
}

// UpdateProfile handles POST /api/user/update. Only the profile fields are
// writable here; plan and usage columns change exclusively through the
// webhook and send paths.
func (uc *UserController) UpdateProfile(c *fiber.Ctx) error {
	var req updateProfileRequest
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
	if req.Email != "" {
		updates["email"] = req.Email
	}
	if req.Name != "" {
		updates["name"] = req.Name
	}

	var user *models.User
	err := uc.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		user, txErr = loadTenantForUpdate(tx, req.TenantID, time.Now(), uc.Logger)
		if txErr != nil {
			return txErr
		}
		if len(updates) == 0 {
			return nil
		}
		if txErr := tx.Model(&models.User{}).Where("whop_user_id = ?", req.TenantID).
			Updates(updates).Error; txErr != nil {
			return txErr
		}
		if req.Email != "" {
			user.Email = req.Email
		}
		if req.Name != "" {
			user.Name = req.Name
		}
		return nil
	})
	if err != nil {
		uc.Logger.Printf("profile update failed for tenant %s: %v", req.TenantID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update profile", err)
	}

	plan := uc.Catalog.Lookup(user.Plan)
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Profile updated",
		"user":    tenantSnapshot(user, plan),
	})
}

// GetAnalytics handles GET /api/analytics. Campaign analytics are a Pro
// feature; lower plans get a 403 with an upgrade hint.
func (uc *UserController) GetAnalytics(c *fiber.Ctx) error {
	tenantID := c.Query("tenantId")
	if !utils.ValidTenantID(tenantID) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Valid tenant ID required", nil)
	}

	var user *models.User
	err := uc.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		user, txErr = loadTenantForUpdate(tx, tenantID, time.Now(), uc.Logger)
		return txErr
	})
	if err != nil {
		uc.Logger.Printf("analytics lookup failed for tenant %s: %v", tenantID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load analytics", err)
	}

	plan := uc.Catalog.Lookup(user.Plan)
	if !plan.AnalyticsEnabled {
		return utils.ErrorResponse(c, fiber.StatusForbidden,
			"Analytics requires the Pro plan. Upgrade to unlock campaign analytics.", nil)
	}

	var total, active, unsubscribed int64
	if err := uc.DB.Model(&models.Subscriber{}).Where("whop_user_id = ?", tenantID).Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load analytics", err)
	}
	uc.DB.Model(&models.Subscriber{}).Where("whop_user_id = ? AND status = ?", tenantID, models.SubscriberActive).Count(&active)
	uc.DB.Model(&models.Subscriber{}).Where("whop_user_id = ? AND status = ?", tenantID, models.SubscriberUnsubscribed).Count(&unsubscribed)

	return c.JSON(fiber.Map{
		"success": true,
		"analytics": fiber.Map{
			"emailsSentThisMonth": fiber.Map{
				"marketing":     user.MonthlyMarketingSent,
				"transactional": user.MonthlyTransactionalSent,
			},
			"emailsSentToday": fiber.Map{
				"marketing":     user.DailyMarketingSent,
				"transactional": user.DailyTransactionalSent,
			},
			"subscribers": fiber.Map{
				"total":        total,
				"active":       active,
				"unsubscribed": unsubscribed,
			},
			"plan": user.Plan,
		},
	})
}
