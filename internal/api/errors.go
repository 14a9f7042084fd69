package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"stakegate/internal/domain"
)

var (
	errInvalidLimit    = errors.New("limit must be a non-negative integer")
	errAccountRequired = errors.New("account is required")
)

type errorBody struct {
	Error     string      `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
	Denial    *denialView `json:"denial,omitempty"`
}

var statusByErr = []struct {
	err    error
	status int
}{
	{domain.ErrInvalidAmount, http.StatusBadRequest},
	{domain.ErrInvalidRequest, http.StatusBadRequest},
	{domain.ErrUnauthorized, http.StatusForbidden},
	{domain.ErrTierLimitExceeded, http.StatusForbidden},
	{domain.ErrProposalNotFound, http.StatusNotFound},
	{domain.ErrJobNotFound, http.StatusNotFound},
	{domain.ErrInsufficientBalance, http.StatusUnprocessableEntity},
	{domain.ErrInsufficientStake, http.StatusUnprocessableEntity},
	{domain.ErrInsufficientStakeToPropose, http.StatusUnprocessableEntity},
	{domain.ErrAllocationExhausted, http.StatusUnprocessableEntity},
	{domain.ErrVotingClosed, http.StatusConflict},
	{domain.ErrVotingOpen, http.StatusConflict},
	{domain.ErrAlreadyVoted, http.StatusConflict},
	{domain.ErrNotPassed, http.StatusConflict},
	{domain.ErrInvalidTransition, http.StatusConflict},
	{domain.ErrQueueClosed, http.StatusServiceUnavailable},
}

func statusOf(err error) int {
	for _, m := range statusByErr {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// fail writes err with the status its sentinel maps to.
func (s *Server) fail(c *gin.Context, err error) {
	status := statusOf(err)
	body := errorBody{Error: err.Error(), RequestID: c.GetString(ctxRequestID)}
	var denied *domain.DeniedError
	if errors.As(err, &denied) {
		body.Denial = newDenialView(denied)
	}
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		body.Error = "internal error"
	}
	c.JSON(status, body)
}

func (s *Server) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorBody{Error: err.Error(), RequestID: c.GetString(ctxRequestID)})
}
