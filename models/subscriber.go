package models

import "time"

// Subscriber statuses
const (
	SubscriberActive       = "active"
	SubscriberUnsubscribed = "unsubscribed"
)

// Subscriber is one contact on a tenant's mailing list. A tenant can hold
// an email address at most once; inserts use an upsert on the
// (whop_user_id, email) pair so repeated adds are no-ops. Deletes are
// hard deletes, so the tenant's contacts_count can always be re-derived
// from a plain row count.
type Subscriber struct {
	ID uint `gorm:"primaryKey" json:"id"`

	WhopUserID string `gorm:"size:255;not null;index;uniqueIndex:idx_subscribers_tenant_email" json:"whopUserId"`
	Email      string `gorm:"size:255;not null;uniqueIndex:idx_subscribers_tenant_email" json:"email"`
	Name       string `gorm:"size:255" json:"name"`
	Status     string `gorm:"size:50;default:'active';index" json:"status"`
	IsVIP      bool   `gorm:"column:is_vip;default:false" json:"is_vip"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
