package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope is the JSON shape every non-streaming endpoint returns. Code is 0
// on success and mirrors the HTTP status on errors; streaming endpoints
// bypass it entirely.
type Envelope struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success wraps data in a success envelope.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Message: "success", Data: data})
}

// Error sends an error envelope with the given HTTP status.
func Error(c *gin.Context, status int, message string) {
	c.JSON(status, Envelope{Code: status, Message: message})
}

// BadRequest sends a 400 response.
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

// Unauthorized sends a 401 response.
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message)
}

// NotFound sends a 404 response.
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message)
}

// InternalError sends a 500 response.
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, message)
}
