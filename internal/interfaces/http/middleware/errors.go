package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
	types "github.com/turtacn/KeyIP-FamilyExplorer/pkg/types/exploration"
)

// RespondError aborts the request with the error envelope. AppError codes
// map to their HTTP status; anything else is a masked 500.
func RespondError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	if code == errors.CodeUnknown {
		code = errors.ErrCodeInternal
	}
	status := errors.HTTPStatusForCode(code)
	msg := err.Error()

	var ae *errors.AppError
	if errors.As(err, &ae) {
		msg = ae.Message
		if ae.Detail != "" {
			msg += ": " + ae.Detail
		}
	}
	if status >= http.StatusInternalServerError && code != errors.ErrCodeServiceUnavailable {
		msg = errors.DefaultMessageForCode(code)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, types.ErrorResponse{Error: types.ErrorBody{
		Code:      string(code),
		Message:   msg,
		RequestID: GetRequestID(c),
	}})
}

// RespondStatus aborts with a fixed status, code and message.
func RespondStatus(c *gin.Context, status int, code errors.ErrorCode, msg string) {
	c.AbortWithStatusJSON(status, types.ErrorResponse{Error: types.ErrorBody{
		Code:      string(code),
		Message:   msg,
		RequestID: GetRequestID(c),
	}})
}
