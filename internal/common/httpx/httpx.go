// Package httpx maps service errors onto the REST wire shape.
package httpx

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/maestro/maestro/internal/common/errors"
)

// Error writes the error response {error:true, code, message} with the
// status carried by the AppError (500 for unknown errors).
func Error(c *gin.Context, err error) {
	appErr := apperrors.AsAppError(err)
	c.JSON(appErr.HTTPStatus, gin.H{
		"error":   true,
		"code":    appErr.Code,
		"message": appErr.Message,
	})
}

// BadRequest writes a 400 validation response for malformed request bodies.
func BadRequest(c *gin.Context, message string) {
	Error(c, apperrors.Validation(message))
}
