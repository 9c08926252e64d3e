package controllers_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/restaurant-feedback/controllers"
	"github.com/yeremiapane/restaurant-feedback/services"
	"github.com/yeremiapane/restaurant-feedback/utils"
)

const relayToken = "relay-token"

func setupEmailRouter(mailer services.Mailer, token string) *gin.Engine {
	router := gin.New()
	router.POST("/send-email", controllers.NewEmailController(mailer, token).SendEmail)
	return router
}

func postEmail(t *testing.T, r http.Handler, token string, body interface{}) (*httptest.ResponseRecorder, utils.JSONResponse) {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/send-email", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(services.RelayTokenHeader, token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp utils.JSONResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

func TestSendEmail(t *testing.T) {
	mailer := &recordingMailer{}
	router := setupEmailRouter(mailer, relayToken)

	body := map[string]string{"to": "owner@example.com", "subject": "Hi", "text": "Hello"}
	w, resp := postEmail(t, router, relayToken, body)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Email sent successfully", resp.Message)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, services.EmailMessage{To: "owner@example.com", Subject: "Hi", Text: "Hello"}, mailer.sent[0])

	w, _ = postEmail(t, router, relayToken, map[string]string{"to": "not-an-email", "subject": "Hi", "text": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendEmail_MailerFailure(t *testing.T) {
	router := setupEmailRouter(&recordingMailer{err: errors.New("smtp down")}, relayToken)

	w, resp := postEmail(t, router, relayToken, map[string]string{"to": "a@b.com", "subject": "Hi", "text": "x"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "error sending email", resp.Message)
}

func TestSendEmail_RequiresRelayToken(t *testing.T) {
	mailer := &recordingMailer{}
	router := setupEmailRouter(mailer, relayToken)
	body := map[string]string{"to": "a@b.com", "subject": "Hi", "text": "x"}

	w, _ := postEmail(t, router, "", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = postEmail(t, router, "wrong", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, mailer.sent)
}

func TestSendEmail_DisabledWithoutConfiguredToken(t *testing.T) {
	mailer := &recordingMailer{}
	router := setupEmailRouter(mailer, "")

	w, resp := postEmail(t, router, "", map[string]string{"to": "a@b.com", "subject": "Hi", "text": "x"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "email relay is not configured", resp.Message)
	assert.Empty(t, mailer.sent)
}
