package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/history"
	"github.com/matheus3301/chatsync/internal/media"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/zap"
)

var (
	errUnauthenticated = errors.New("unauthorized: no user identity")
	errBadRequest      = errors.New("bad request")
)

// ErrorBody is the single error shape of the API.
type ErrorBody struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, errBadRequest),
		errors.Is(err, chat.ErrEmptyPayload),
		errors.Is(err, store.ErrSameParticipant),
		errors.Is(err, media.ErrInvalidImage),
		errors.Is(err, history.ErrPageOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes err as an ErrorBody. Server faults are logged and
// their detail kept out of the response.
func abortWithError(c *gin.Context, logger *zap.Logger, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status, ErrorBody{Message: msg, Status: status})
}
