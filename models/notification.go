package models

import (
	"time"
)

const (
	NotificationQRCodeSucceeded = "qr_code_succeeded"
	NotificationQRCodeFailed    = "qr_code_failed"
	NotificationEmailSucceeded  = "credentials_email_succeeded"
	NotificationEmailFailed     = "credentials_email_failed"
)

// Notification is an admin-facing record of a best-effort side channel outcome.
type Notification struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	RestaurantID *string   `gorm:"type:varchar(36);index" json:"restaurant_id,omitempty"`
	Kind         string    `gorm:"type:varchar(50);not null;index" json:"kind"`
	Title        *string   `gorm:"type:varchar(100)" json:"title,omitempty"`
	Message      string    `gorm:"type:text;not null" json:"message"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
}
