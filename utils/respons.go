package utils

import (
	"github.com/gin-gonic/gin"
)

// JSONResponse is the envelope every endpoint answers with.
type JSONResponse struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func RespondJSON(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, JSONResponse{
		Status:  code >= 200 && code < 300,
		Message: message,
		Data:    data,
	})
}

// RespondError writes err as the message and attaches it to the context so
// the request logger reports it.
func RespondError(c *gin.Context, code int, err error) {
	_ = c.Error(err)
	c.JSON(code, JSONResponse{Status: false, Message: err.Error()})
}

// RespondErrorMessage hides the underlying error from the client while still
// logging it with the request.
func RespondErrorMessage(c *gin.Context, code int, message string, err error) {
	if err != nil {
		_ = c.Error(err)
	}
	c.JSON(code, JSONResponse{Status: false, Message: message})
}
