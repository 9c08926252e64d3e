package models

import "time"

const (
	DemoRequestStatusPending      = "pending"
	DemoRequestStatusProvisioning = "provisioning"
	DemoRequestStatusApproved     = "approved"
)

type DemoRequest struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	RestaurantName string `gorm:"type:varchar(255);not null" json:"restaurant_name"`
	Email          string `gorm:"type:varchar(255);not null;index" json:"email"`
	// PendingEmail mirrors Email while the request is open and is NULL afterwards,
	// so the unique index only covers open requests.
	PendingEmail   *string    `gorm:"type:varchar(255);uniqueIndex" json:"-"`
	Phone          string     `gorm:"type:varchar(50)" json:"phone"`
	Location       string     `gorm:"type:varchar(255)" json:"location"`
	RestaurantType string     `gorm:"type:varchar(100)" json:"restaurant_type"`
	IsPending      bool       `gorm:"not null;default:true;index" json:"is_pending"`
	Status         string     `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	ClaimedAt      *time.Time `json:"claimed_at,omitempty"`
	// ClaimToken is rewritten on every claim; writes made under an older
	// token no longer match.
	ClaimToken        *string   `gorm:"type:varchar(36)" json:"-"`
	ProvisionedUserID *string   `gorm:"type:varchar(36)" json:"provisioned_user_id,omitempty"`
	RestaurantID      *string   `gorm:"type:varchar(36)" json:"restaurant_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
