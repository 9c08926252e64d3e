package models

import "time"

const (
	PlanFreeTier   = "free tier"
	PlanSubscribed = "subscribed"
)

type Restaurant struct {
	ID             string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	RestaurantName string     `gorm:"type:varchar(255);not null" json:"restaurant_name"`
	Email          string     `gorm:"type:varchar(255);not null;index" json:"email"`
	Phone          string     `gorm:"type:varchar(50)" json:"phone"`
	Location       string     `gorm:"type:varchar(255)" json:"location"`
	RestaurantType string     `gorm:"type:varchar(100)" json:"restaurant_type"`
	Plan           string     `gorm:"type:varchar(20);not null;default:'free tier';index" json:"plan"`
	OverallRating  float64    `gorm:"type:decimal(2,1);not null;default:0;index" json:"overall_rating"`
	ReviewCount    int        `gorm:"not null;default:0" json:"review_count"`
	RatingSum      *float64   `json:"-"`
	Version        uint       `gorm:"not null;default:0" json:"-"`
	DateOfJoining  time.Time  `gorm:"not null" json:"date_of_joining"`
	QRCodeURL      string     `gorm:"type:varchar(512)" json:"qr_code_url"`
	IsPending      bool       `gorm:"not null;default:false;index" json:"is_pending"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Feedback       []Feedback `gorm:"foreignKey:RestaurantID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// CurrentRatingSum returns the sum of all unrounded submission averages.
// Rows written before rating_sum existed fall back to overall_rating * review_count.
func (r *Restaurant) CurrentRatingSum() float64 {
	if r.RatingSum != nil {
		return *r.RatingSum
	}
	return r.OverallRating * float64(r.ReviewCount)
}
