package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-feedback/models"
	"github.com/yeremiapane/restaurant-feedback/utils"
	"gorm.io/gorm"
)

const topRatedLimit = 5

type AdminController struct {
	DB *gorm.DB
}

func NewAdminController(db *gorm.DB) *AdminController {
	return &AdminController{DB: db}
}

type DashboardStats struct {
	TotalRestaurants    int64               `json:"total_restaurants"`
	RestaurantsByPlan   map[string]int64    `json:"restaurants_by_plan"`
	PendingDemoRequests int64               `json:"pending_demo_requests"`
	TopRated            []models.Restaurant `json:"top_rated"`
}

// GetDashboardStats -> numbers for the admin dashboard
func (ac *AdminController) GetDashboardStats(c *gin.Context) {
	db := ac.DB.WithContext(c.Request.Context())
	stats := DashboardStats{
		RestaurantsByPlan: map[string]int64{
			models.PlanFreeTier:   0,
			models.PlanSubscribed: 0,
		},
		TopRated: make([]models.Restaurant, 0),
	}

	if err := db.Model(&models.Restaurant{}).Where("is_pending = ?", false).Count(&stats.TotalRestaurants).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	var byPlan []struct {
		Plan  string
		Count int64
	}
	if err := db.Model(&models.Restaurant{}).
		Select("plan, COUNT(*) AS count").
		Where("is_pending = ?", false).
		Group("plan").
		Scan(&byPlan).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	for _, row := range byPlan {
		stats.RestaurantsByPlan[row.Plan] = row.Count
	}

	if err := db.Model(&models.DemoRequest{}).Where("is_pending = ?", true).Count(&stats.PendingDemoRequests).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	if err := db.Where("is_pending = ?", false).
		Order("overall_rating DESC, review_count DESC").
		Limit(topRatedLimit).
		Find(&stats.TopRated).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Dashboard stats retrieved successfully", stats)
}
