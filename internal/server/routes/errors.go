package routes

import (
	"errors"
	"net/http"

	"github.com/knowledgesnode/backend/pkg/common"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type messageResponse struct {
	Message string `json:"message"`
}

// statusFor maps store errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrPersistenceConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(status int) string {
	switch status {
	case http.StatusNotFound:
		return "Not found"
	case http.StatusBadRequest:
		return "Invalid request params"
	case http.StatusConflict:
		return "Already exists"
	default:
		return "Internal server error"
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}
