package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-feedback/models"
	"github.com/yeremiapane/restaurant-feedback/utils"
	"gorm.io/gorm"
)

type NotificationController struct {
	DB *gorm.DB
}

func NewNotificationController(db *gorm.DB) *NotificationController {
	return &NotificationController{DB: db}
}

// GetAllNotifications -> side channel outcomes, newest first; ?restaurant_id= filters
func (nc *NotificationController) GetAllNotifications(c *gin.Context) {
	query := nc.DB.WithContext(c.Request.Context()).Order("created_at DESC, id DESC")
	if restaurantID := c.Query("restaurant_id"); restaurantID != "" {
		query = query.Where("restaurant_id = ?", restaurantID)
	}

	notifs := make([]models.Notification, 0)
	if err := query.Find(&notifs).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "All notifications", notifs)
}

func (nc *NotificationController) GetNotificationByID(c *gin.Context) {
	id, ok := parseUintParam(c, "notif_id")
	if !ok {
		return
	}

	var notif models.Notification
	if err := nc.DB.WithContext(c.Request.Context()).First(&notif, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.RespondError(c, http.StatusNotFound, errors.New("notification not found"))
			return
		}
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Notification detail", notif)
}

func (nc *NotificationController) DeleteNotification(c *gin.Context) {
	id, ok := parseUintParam(c, "notif_id")
	if !ok {
		return
	}

	if err := nc.DB.WithContext(c.Request.Context()).Delete(&models.Notification{}, id).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Notification deleted", gin.H{"notif_id": id})
}
