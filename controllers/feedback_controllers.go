package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-feedback/services"
	"github.com/yeremiapane/restaurant-feedback/utils"
)

type FeedbackController struct {
	Ratings *services.RatingAggregator
}

func NewFeedbackController(ratings *services.RatingAggregator) *FeedbackController {
	return &FeedbackController{Ratings: ratings}
}

// SubmitFeedback is the public form behind the restaurant's QR code.
func (fc *FeedbackController) SubmitFeedback(c *gin.Context) {
	var req struct {
		CustomerName   string `json:"customer_name" binding:"required"`
		WaitTime       int    `json:"wait_time" binding:"required,min=1,max=5"`
		FoodQuality    int    `json:"food_quality" binding:"required,min=1,max=5"`
		Service        int    `json:"service" binding:"required,min=1,max=5"`
		Ambiance       int    `json:"ambiance" binding:"required,min=1,max=5"`
		Comment        string `json:"comment"`
		ReferralSource string `json:"referral_source"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	receipt, err := fc.Ratings.SubmitFeedback(c.Request.Context(), c.Param("restaurant_id"), services.FeedbackInput{
		CustomerName:   req.CustomerName,
		WaitTime:       req.WaitTime,
		FoodQuality:    req.FoodQuality,
		Service:        req.Service,
		Ambiance:       req.Ambiance,
		Comment:        req.Comment,
		ReferralSource: req.ReferralSource,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.RespondJSON(c, http.StatusCreated, "Feedback submitted", receipt)
}

func (fc *FeedbackController) GetRatingSummary(c *gin.Context) {
	summary, err := fc.Ratings.RatingSummary(c.Request.Context(), c.Param("restaurant_id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Rating summary", summary)
}

func (fc *FeedbackController) GetAllFeedback(c *gin.Context) {
	feedback, err := fc.Ratings.ListFeedback(c.Request.Context(), c.Param("restaurant_id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "All feedback", feedback)
}

// GetRecentFeedback -> ?limit=N, default 5
func (fc *FeedbackController) GetRecentFeedback(c *gin.Context) {
	limit := services.RecentFeedbackLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			utils.RespondError(c, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}

	feedback, err := fc.Ratings.RecentFeedback(c.Request.Context(), c.Param("restaurant_id"), limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Recent feedback", feedback)
}

// GetOwnerFeedback lists feedback for the signed-in owner's restaurant.
func (fc *FeedbackController) GetOwnerFeedback(c *gin.Context) {
	feedback, err := fc.Ratings.ListFeedback(c.Request.Context(), c.GetString("restaurant_id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "All feedback", feedback)
}
