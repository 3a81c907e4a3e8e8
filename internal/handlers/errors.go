package handlers

import (
	"errors"
	"net/http"
	"strconv"

	apperrors "github.com/devroad/mentorchat/pkg/errors"
	"github.com/devroad/mentorchat/pkg/i18n"
	"github.com/gin-gonic/gin"
)

func __(msg string) string {
	return i18n.Translate(msg)
}

type errorResponse struct {
	Error string         `json:"error"`
	Code  apperrors.Code `json:"code"`
}

func statusOf(code apperrors.Code) int {
	switch code {
	case apperrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case apperrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case apperrors.CodePermissionDenied:
		return http.StatusForbidden
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeFailedPrecondition:
		return http.StatusConflict
	case apperrors.CodeResourceExhausted:
		return http.StatusTooManyRequests
	case apperrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError writes err as a JSON error and aborts the chain. Errors that
// are not application errors are attached to the context for the error
// logger and answered with a generic message.
func respondError(c *gin.Context, err error) {
	// non-participants must not learn that the conversation exists
	if errors.Is(err, apperrors.ErrNotParticipant) {
		err = apperrors.ErrConversationNotFound
	}

	appErr, ok := apperrors.As(err)
	if !ok || statusOf(appErr.Code) == http.StatusInternalServerError {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{
			Error: __("internal server error"),
			Code:  apperrors.CodeInternal,
		})
		return
	}

	status := statusOf(appErr.Code)
	if status == http.StatusServiceUnavailable && appErr.Cause != nil {
		_ = c.Error(err)
	}
	if appErr.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(appErr.RetryAfter.Seconds())))
	}
	c.AbortWithStatusJSON(status, errorResponse{
		Error: __(appErr.Message),
		Code:  appErr.Code,
	})
}

// currentUserID returns the id set by the auth middleware.
func currentUserID(c *gin.Context) int {
	return c.GetInt("user_id")
}
