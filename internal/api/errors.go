package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/Borislavv/go-subbox/internal/paging"
	"github.com/Borislavv/go-subbox/internal/resolver"
	"github.com/Borislavv/go-subbox/internal/source"
	"github.com/gin-gonic/gin"
)

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
}

// validationError marks malformed request parameters.
type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }

func statusOf(err error) int {
	var (
		nf *resolver.NotFoundError
		ve *validationError
		ue *source.UpstreamError
	)
	switch {
	case errors.As(err, &nf), errors.As(err, &ve), errors.Is(err, paging.ErrResolutionFailed):
		return http.StatusBadRequest
	case errors.As(err, &ue):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) writeError(c *gin.Context, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.Request.URL.Path, "request_id", requestIDFrom(c), "err", err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, errorBody{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   msg,
	})
}
