package custom_error

import (
	"errors"

	"github.com/gin-gonic/gin"
)

// Abort writes the error response for err with the status and code it maps to. Validation
// errors also report the offending property.
func Abort(c *gin.Context, message string, err error) {
	body := gin.H{
		"error":   message,
		"code":    Code(err),
		"details": err.Error(),
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) && validationErr.Property != "" {
		body["property"] = validationErr.Property
	}
	c.AbortWithStatusJSON(HTTPStatus(err), body)
}
