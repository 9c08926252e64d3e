package controllers_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/restaurant-feedback/controllers"
	"github.com/yeremiapane/restaurant-feedback/models"
)

func setupFeedbackRouter(s *testServices) *gin.Engine {
	router := gin.New()
	fc := controllers.NewFeedbackController(s.ratings)
	router.POST("/feedback/:restaurant_id", fc.SubmitFeedback)
	router.GET("/restaurants/:restaurant_id/summary", fc.GetRatingSummary)
	router.GET("/restaurants/:restaurant_id/feedback", fc.GetAllFeedback)
	router.GET("/restaurants/:restaurant_id/feedback/recent", fc.GetRecentFeedback)
	return router
}

func TestSubmitFeedback(t *testing.T) {
	s := newTestServices(t)
	require.NoError(t, s.db.Create(&models.Restaurant{
		ID: "resto-1", RestaurantName: "Warung", Email: "w@b.com", Plan: models.PlanFreeTier,
		OverallRating: 4.0, ReviewCount: 3, DateOfJoining: time.Now(),
	}).Error)
	router := setupFeedbackRouter(s)

	w, resp := doJSON(t, router, http.MethodPost, "/feedback/resto-1", map[string]interface{}{
		"customer_name":   "Budi",
		"wait_time":       5,
		"food_quality":    5,
		"service":         5,
		"ambiance":        5,
		"comment":         "mantap",
		"referral_source": "instagram",
	})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, resp.Status)
	data := dataMap(t, resp)
	assert.Equal(t, 4.3, data["overall_rating"])
	assert.Equal(t, float64(4), data["review_count"])

	w, resp = doJSON(t, router, http.MethodGet, "/restaurants/resto-1/summary", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 4.3, dataMap(t, resp)["overall_rating"])

	w, resp = doJSON(t, router, http.MethodGet, "/restaurants/resto-1/feedback/recent?limit=1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, 1)
}

func TestSubmitFeedback_Validation(t *testing.T) {
	s := newTestServices(t)
	router := setupFeedbackRouter(s)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"rating above five", map[string]interface{}{"customer_name": "A", "wait_time": 6, "food_quality": 5, "service": 5, "ambiance": 5}},
		{"rating missing", map[string]interface{}{"customer_name": "A", "wait_time": 3, "food_quality": 5, "service": 5}},
		{"name missing", map[string]interface{}{"wait_time": 3, "food_quality": 5, "service": 5, "ambiance": 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := doJSON(t, router, http.MethodPost, "/feedback/resto-1", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, resp.Status)
		})
	}
}

func TestSubmitFeedback_UnknownRestaurant(t *testing.T) {
	s := newTestServices(t)
	router := setupFeedbackRouter(s)

	w, resp := doJSON(t, router, http.MethodPost, "/feedback/missing", map[string]interface{}{
		"customer_name": "A", "wait_time": 3, "food_quality": 3, "service": 3, "ambiance": 3,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "restaurant not found", resp.Message)

	var count int64
	s.db.Model(&models.Feedback{}).Count(&count)
	assert.Zero(t, count)
}

func TestGetRecentFeedback_InvalidLimit(t *testing.T) {
	s := newTestServices(t)
	router := setupFeedbackRouter(s)

	w, _ := doJSON(t, router, http.MethodGet, "/restaurants/resto-1/feedback/recent?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
