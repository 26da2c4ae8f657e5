package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"gamecatalog/internal/client/provider"
	"gamecatalog/internal/ratelimit"
	"gamecatalog/internal/repository"
	"gamecatalog/internal/service"
)

type apiResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	// Kind classifies failures: conflict, invalid, unavailable, rate_limited, store, upstream.
	Kind string         `json:"kind,omitempty"`
	Data any            `json:"data,omitempty"`
	Meta map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

// Accepted acknowledges work that carries on after the response.
func Accepted(c *gin.Context, message string, data any) {
	c.JSON(http.StatusAccepted, apiResponse{
		Code:    0,
		Message: message,
		Data:    data,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// Fail reports err with the status of its class.
func Fail(c *gin.Context, err error) {
	status, kind := errorStatus(err)
	c.JSON(status, apiResponse{
		Code:    status,
		Message: err.Error(),
		Kind:    kind,
	})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrSyncInProgress):
		return http.StatusConflict, "conflict"
	case errors.Is(err, service.ErrInvalidScope), errors.Is(err, service.ErrEmptyImport):
		return http.StatusBadRequest, "invalid"
	case errors.Is(err, service.ErrNotConfigured):
		return http.StatusInternalServerError, "unavailable"
	case errors.Is(err, provider.ErrRateLimited), errors.Is(err, ratelimit.ErrRateLimitTimeout):
		return http.StatusServiceUnavailable, "rate_limited"
	case errors.Is(err, repository.ErrStoreIO):
		return http.StatusBadGateway, "store"
	default:
		return http.StatusBadGateway, "upstream"
	}
}
