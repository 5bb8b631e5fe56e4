package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/physio-outreach/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Meta   interface{} `json:"meta,omitempty"`
	Error  *Error      `json:"error,omitempty"`
}

// Error represents API error
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Status: "success",
		Data:   data,
	})
}

// RespondWithMeta sends a success response with run metadata.
func RespondWithMeta(c *gin.Context, data, meta interface{}) {
	c.JSON(http.StatusOK, Response{
		Status: "success",
		Data:   data,
		Meta:   meta,
	})
}

// RespondWithError sends an error response. Errors that are not an
// AppError are reported as internal without their details.
func RespondWithError(c *gin.Context, err error) {
	statusCode := http.StatusInternalServerError
	message := "internal server error"

	if appErr, ok := errors.As(err); ok {
		statusCode = appErr.HTTPStatus()
		message = appErr.Message
	}

	c.AbortWithStatusJSON(statusCode, Response{
		Status: "error",
		Error: &Error{
			Code:    statusCode,
			Message: message,
		},
	})
}
