package models

import "time"

type Feedback struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	RestaurantID     string    `gorm:"type:varchar(36);not null;index:idx_feedback_restaurant_created,priority:1" json:"restaurant_id"`
	CustomerName     string    `gorm:"type:varchar(255)" json:"customer_name"`
	WaitTime         int       `gorm:"not null" json:"wait_time"`
	FoodQuality      int       `gorm:"not null" json:"food_quality"`
	Service          int       `gorm:"not null" json:"service"`
	Ambiance         int       `gorm:"not null" json:"ambiance"`
	Comment          string    `gorm:"type:text" json:"comment"`
	ReferralSource   string    `gorm:"type:varchar(100)" json:"referral_source"`
	NewAverageReview float64   `gorm:"type:decimal(2,1);not null" json:"new_average_review"`
	CreatedAt        time.Time `gorm:"not null;index:idx_feedback_restaurant_created,priority:2" json:"created_at"`
}

func (Feedback) TableName() string {
	return "feedback"
}
