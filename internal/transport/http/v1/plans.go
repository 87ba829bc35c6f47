package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/tripagent/internal/domain"
)

// GetPlan handles GET /v1/plans/:plan_id.
func (h *Handler) GetPlan(c echo.Context) error {
	plan, err := h.service.GetPlan(c.Request().Context(), c.Param("plan_id"))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, plan)
}

// ListPlans handles GET /v1/sessions/:session_id/plans.
func (h *Handler) ListPlans(c echo.Context) error {
	sessionID := c.Param("session_id")
	plans, err := h.service.ListPlans(c.Request().Context(), sessionID)
	if err != nil {
		return serviceError(c, err)
	}
	if plans == nil {
		plans = []domain.TravelPlan{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"session_id": sessionID,
		"plans":      plans,
	})
}
