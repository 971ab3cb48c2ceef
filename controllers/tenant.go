package controller

import (
	"errors"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ledgemail/models"
	"ledgemail/quota"
)

// lockForUpdate adds a row-level lock on dialects that support it. The
// sqlite driver used by the test suite serializes writers on its own and
// rejects FOR UPDATE syntax.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// loadTenantForUpdate fetches the tenant row inside tx, creating it with
// free-plan defaults on first sight, and holds a row lock for the rest of
// the transaction. Any calendar reset that came due since the last request
// is applied and persisted before the row is returned, so callers always
// see current-period counters.
func loadTenantForUpdate(tx *gorm.DB, tenantID string, now time.Time, logger *log.Logger) (*models.User, error) {
	var user models.User
	err := lockForUpdate(tx).Where("whop_user_id = ?", tenantID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fresh := models.NewUser(tenantID, now)
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh).Error; err != nil {
			return nil, err
		}
		// Re-read under the lock in case a concurrent request created the
		// row between our miss and the insert.
		if err := lockForUpdate(tx).Where("whop_user_id = ?", tenantID).First(&user).Error; err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	due, patch := quota.CheckAndReset(user, now)
	for _, marker := range patch.Malformed {
		logger.Printf("tenant %s: malformed %s reset marker, treating period as elapsed", tenantID, marker)
	}
	if due {
		patch.Apply(&user)
		if err := tx.Model(&models.User{}).Where("whop_user_id = ?", tenantID).
			Updates(resetColumns(patch)).Error; err != nil {
			return nil, err
		}
	}
	return &user, nil
}

// resetColumns maps a reset patch onto the exact columns it covers.
// Counters outside the elapsed period are never touched.
func resetColumns(p quota.ResetPatch) map[string]interface{} {
	cols := map[string]interface{}{}
	if p.ResetDaily {
		cols["daily_marketing_sent"] = 0
		cols["daily_transactional_sent"] = 0
		cols["last_daily_reset"] = p.LastDailyReset
	}
	if p.ResetMonthly {
		cols["monthly_marketing_sent"] = 0
		cols["monthly_transactional_sent"] = 0
		cols["last_monthly_reset"] = p.LastMonthlyReset
	}
	return cols
}

// resyncContactsCount recomputes the tenant's contacts_count from the
// subscriber table inside the same transaction as the mutation that
// changed it. The stored counter is a cache of this row count, never the
// other way around.
func resyncContactsCount(tx *gorm.DB, tenantID string) (int64, error) {
	var n int64
	if err := tx.Model(&models.Subscriber{}).Where("whop_user_id = ?", tenantID).Count(&n).Error; err != nil {
		return 0, err
	}
	if err := tx.Model(&models.User{}).Where("whop_user_id = ?", tenantID).
		Update("contacts_count", n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
