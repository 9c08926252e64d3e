package controllers

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-feedback/services"
	"github.com/yeremiapane/restaurant-feedback/utils"
)

// EmailController is the email relay: it accepts {to, subject, text} and
// sends it through the configured mailer. Without a relay token it refuses
// every request.
type EmailController struct {
	Mailer services.Mailer
	Token  string
}

func NewEmailController(mailer services.Mailer, token string) *EmailController {
	return &EmailController{Mailer: mailer, Token: token}
}

func (ec *EmailController) SendEmail(c *gin.Context) {
	if ec.Token == "" {
		utils.RespondError(c, http.StatusServiceUnavailable, errors.New("email relay is not configured"))
		return
	}
	got := c.GetHeader(services.RelayTokenHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(ec.Token)) != 1 {
		utils.RespondError(c, http.StatusUnauthorized, errors.New("invalid relay token"))
		return
	}

	var msg services.EmailMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	if err := ec.Mailer.Send(c.Request.Context(), msg); err != nil {
		utils.ErrorLogger.Printf("Error sending email to %s: %v", msg.To, err)
		utils.RespondError(c, http.StatusInternalServerError, errors.New("error sending email"))
		return
	}

	utils.InfoLogger.Printf("Email sent to %s", msg.To)
	utils.RespondJSON(c, http.StatusOK, "Email sent successfully", nil)
}
