package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-feedback/services"
	"github.com/yeremiapane/restaurant-feedback/utils"
)

type RestaurantController struct {
	Lifecycle       *services.LifecycleManager
	SideChannelWait time.Duration
}

func NewRestaurantController(lifecycle *services.LifecycleManager, sideChannelWait time.Duration) *RestaurantController {
	return &RestaurantController{Lifecycle: lifecycle, SideChannelWait: sideChannelWait}
}

func (rc *RestaurantController) GetAllRestaurants(c *gin.Context) {
	restaurants, err := rc.Lifecycle.ListRestaurants(c.Request.Context(), c.Query("search"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "All restaurants", restaurants)
}

// CreateRestaurant -> admin add-restaurant form, no demo request involved
func (rc *RestaurantController) CreateRestaurant(c *gin.Context) {
	var req struct {
		RestaurantName string `json:"restaurant_name" binding:"required"`
		Email          string `json:"email" binding:"required,email"`
		Phone          string `json:"phone"`
		Location       string `json:"location"`
		RestaurantType string `json:"restaurant_type"`
		Plan           string `json:"plan" binding:"omitempty,oneof='free tier' subscribed"`
		Password       string `json:"password" binding:"omitempty,min=6"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	result, err := rc.Lifecycle.OnboardRestaurant(c.Request.Context(), services.RestaurantInput{
		DemoRequestInput: services.DemoRequestInput{
			RestaurantName: req.RestaurantName,
			Email:          req.Email,
			Phone:          req.Phone,
			Location:       req.Location,
			RestaurantType: req.RestaurantType,
		},
		Plan: req.Plan,
	}, req.Password)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.RespondJSON(c, http.StatusCreated, "Restaurant created", onboardingResponse(result, rc.SideChannelWait))
}

func (rc *RestaurantController) GetRestaurantByID(c *gin.Context) {
	restaurant, err := rc.Lifecycle.GetRestaurant(c.Request.Context(), c.Param("restaurant_id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Restaurant detail", restaurant)
}

func (rc *RestaurantController) UpdateRestaurant(c *gin.Context) {
	var req struct {
		RestaurantName *string `json:"restaurant_name"`
		Email          *string `json:"email" binding:"omitempty,email"`
		Phone          *string `json:"phone"`
		Location       *string `json:"location"`
		RestaurantType *string `json:"restaurant_type"`
		Plan           *string `json:"plan"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	restaurant, err := rc.Lifecycle.UpdateRestaurant(c.Request.Context(), c.Param("restaurant_id"), services.RestaurantUpdate{
		RestaurantName: req.RestaurantName,
		Email:          req.Email,
		Phone:          req.Phone,
		Location:       req.Location,
		RestaurantType: req.RestaurantType,
		Plan:           req.Plan,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Restaurant updated", restaurant)
}

func (rc *RestaurantController) DeleteRestaurant(c *gin.Context) {
	id := c.Param("restaurant_id")
	if err := rc.Lifecycle.DeleteRestaurant(c.Request.Context(), id); err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Restaurant deleted", gin.H{"restaurant_id": id})
}

// GetOwnerRestaurant returns the signed-in owner's restaurant.
func (rc *RestaurantController) GetOwnerRestaurant(c *gin.Context) {
	restaurant, err := rc.Lifecycle.GetRestaurant(c.Request.Context(), c.GetString("restaurant_id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Restaurant detail", restaurant)
}
