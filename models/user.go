package models

import (
	"time"
)

// User represents a Whop seller (tenant) using the app. Tenants are keyed
// by the opaque user id Whop assigns, not by a surrogate id, because every
// request and webhook identifies the tenant that way.
type User struct {
	WhopUserID string `gorm:"primaryKey;size:255" json:"whopUserId"`

	Email string `gorm:"size:255" json:"email"`
	Name  string `gorm:"size:255" json:"name"`

	// Plan is a key into the plan catalog. Unknown keys resolve to free
	// at lookup time, so a stale value here is never fatal.
	Plan string `gorm:"size:50;default:'free';index" json:"plan"`

	// Usage counters
	ContactsCount            int `gorm:"default:0" json:"contacts_count"`
	DailyMarketingSent       int `gorm:"default:0" json:"daily_marketing_sent"`
	MonthlyMarketingSent     int `gorm:"default:0" json:"monthly_marketing_sent"`
	DailyTransactionalSent   int `gorm:"default:0" json:"daily_transactional_sent"`
	MonthlyTransactionalSent int `gorm:"default:0" json:"monthly_transactional_sent"`

	// Reset markers are stored as calendar strings so that a malformed or
	// missing value degrades to a stale (resettable) state instead of an
	// error when the record is next read.
	LastDailyReset   string `gorm:"size:10" json:"last_daily_reset"`  // YYYY-MM-DD
	LastMonthlyReset string `gorm:"size:7" json:"last_monthly_reset"` // YYYY-MM

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Subscribers []Subscriber `gorm:"foreignKey:WhopUserID;references:WhopUserID;constraint:OnDelete:CASCADE" json:"-"`
}

// NewUser returns a tenant record with free-plan defaults. The reset
// markers are stamped with the current UTC calendar so a brand-new tenant
// does not immediately trigger a catch-up reset.
func NewUser(whopUserID string, now time.Time) User {
	now = now.UTC()
	return User{
		WhopUserID:       whopUserID,
		Plan:             "free",
		LastDailyReset:   now.Format("2006-01-02"),
		LastMonthlyReset: now.Format("2006-01"),
	}
}
