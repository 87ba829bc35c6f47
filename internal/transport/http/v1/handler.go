// Package v1 serves the public trip agent API.
package v1

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/tripagent/internal/service"
)

// DefaultTurnTimeout bounds a turn when no timeout is configured.
const DefaultTurnTimeout = 60 * time.Second

// Handler handles HTTP requests.
type Handler struct {
	service     *service.Service
	turnTimeout time.Duration
}

// NewHandler creates a new handler. A non-positive turnTimeout uses
// DefaultTurnTimeout.
func NewHandler(service *service.Service, turnTimeout time.Duration) *Handler {
	if turnTimeout <= 0 {
		turnTimeout = DefaultTurnTimeout
	}
	return &Handler{
		service:     service,
		turnTimeout: turnTimeout,
	}
}

// RegisterRoutes registers the public routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Turns
	e.POST("/v1/turns", h.PostTurn)
	e.POST("/v1/sessions/:session_id/turns", h.PostSessionTurn)

	// Session record
	e.GET("/v1/sessions/:session_id", h.GetSession)
	e.GET("/v1/sessions/:session_id/messages", h.GetSessionMessages)
	e.GET("/v1/sessions/:session_id/tool-calls", h.GetToolCalls)
	e.GET("/v1/sessions/:session_id/plans", h.ListPlans)
	e.GET("/v1/plans/:plan_id", h.GetPlan)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

// serviceError maps service errors onto HTTP status codes.
func serviceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrEmptyTurn):
		return errorJSON(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		return errorJSON(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrSessionBusy):
		return errorJSON(c, http.StatusConflict, err.Error())
	default:
		c.Logger().Error(err)
		return errorJSON(c, http.StatusInternalServerError, "internal error")
	}
}
