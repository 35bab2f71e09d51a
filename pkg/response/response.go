package response

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the error body shared by handlers and middleware
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

// Error builds an ErrorResponse whose error field is the code in lower snake case
func Error(code, message string) ErrorResponse {
	return ErrorResponse{
		Error:   strings.ToLower(code),
		Code:    code,
		Message: message,
	}
}

// Abort writes an error body and stops the handler chain
func Abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Error(code, message))
}
