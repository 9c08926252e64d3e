package controllers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-feedback/services"
	"github.com/yeremiapane/restaurant-feedback/utils"
)

type DemoRequestController struct {
	Lifecycle       *services.LifecycleManager
	SideChannelWait time.Duration
}

func NewDemoRequestController(lifecycle *services.LifecycleManager, sideChannelWait time.Duration) *DemoRequestController {
	return &DemoRequestController{Lifecycle: lifecycle, SideChannelWait: sideChannelWait}
}

// SubmitDemoRequest -> public signup form
func (dc *DemoRequestController) SubmitDemoRequest(c *gin.Context) {
	var req struct {
		RestaurantName string `json:"restaurant_name" binding:"required"`
		Email          string `json:"email" binding:"required,email"`
		Phone          string `json:"phone"`
		Location       string `json:"location"`
		RestaurantType string `json:"restaurant_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	request, err := dc.Lifecycle.SubmitDemoRequest(c.Request.Context(), services.DemoRequestInput{
		RestaurantName: req.RestaurantName,
		Email:          req.Email,
		Phone:          req.Phone,
		Location:       req.Location,
		RestaurantType: req.RestaurantType,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.RespondJSON(c, http.StatusCreated, "Demo request submitted", request)
}

// GetPendingDemoRequests -> ?search= filters by name or email
func (dc *DemoRequestController) GetPendingDemoRequests(c *gin.Context) {
	requests, err := dc.Lifecycle.ListPendingDemoRequests(c.Request.Context(), c.Query("search"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Pending demo requests", requests)
}

// ApproveDemoRequest creates the owner account and restaurant. The body is
// optional; without a password one is generated.
func (dc *DemoRequestController) ApproveDemoRequest(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		Password string `json:"password" binding:"omitempty,min=6"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	result, err := dc.Lifecycle.ApproveDemoRequest(c.Request.Context(), id, req.Password)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.RespondJSON(c, http.StatusCreated, "Demo request approved", onboardingResponse(result, dc.SideChannelWait))
}

func (dc *DemoRequestController) RejectDemoRequest(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	if err := dc.Lifecycle.RejectDemoRequest(c.Request.Context(), id); err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Demo request rejected", gin.H{"id": id})
}
