package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-feedback/services"
	"github.com/yeremiapane/restaurant-feedback/utils"
)

// respondServiceError maps a service error category to its HTTP status.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		utils.RespondError(c, http.StatusBadRequest, err)
	case errors.Is(err, services.ErrNotFound):
		utils.RespondError(c, http.StatusNotFound, err)
	case errors.Is(err, services.ErrConflict):
		utils.RespondError(c, http.StatusConflict, err)
	case errors.Is(err, services.ErrTransactionRetryExhausted):
		utils.RespondErrorMessage(c, http.StatusServiceUnavailable, "please try again", err)
	case errors.Is(err, services.ErrExternalService):
		utils.RespondError(c, http.StatusBadGateway, err)
	default:
		utils.ErrorLogger.Printf("Unhandled error on %s %s: %v", c.Request.Method, c.FullPath(), err)
		utils.RespondErrorMessage(c, http.StatusInternalServerError, "internal server error", err)
	}
}

func parseUintParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid "+name))
		return 0, false
	}
	return uint(id), true
}
