package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/tripagent/internal/domain"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 200
)

// GetSession handles GET /v1/sessions/:session_id.
func (h *Handler) GetSession(c echo.Context) error {
	session, err := h.service.GetSession(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

// GetSessionMessages handles GET /v1/sessions/:session_id/messages.
func (h *Handler) GetSessionMessages(c echo.Context) error {
	sessionID := c.Param("session_id")
	before := c.QueryParam("before")

	limit := defaultMessageLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return errorJSON(c, http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxMessageLimit)
	}

	// One extra turn tells whether an older page exists.
	turns, err := h.service.GetSessionHistory(c.Request().Context(), sessionID, limit+1, before)
	if err != nil {
		return serviceError(c, err)
	}
	hasMore := len(turns) > limit
	if hasMore {
		turns = turns[len(turns)-limit:]
	}
	if turns == nil {
		turns = []domain.Turn{}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"session_id": sessionID,
		"messages":   turns,
		"has_more":   hasMore,
	})
}

// GetToolCalls handles GET /v1/sessions/:session_id/tool-calls.
func (h *Handler) GetToolCalls(c echo.Context) error {
	sessionID := c.Param("session_id")
	records, err := h.service.GetToolCalls(c.Request().Context(), sessionID)
	if err != nil {
		return serviceError(c, err)
	}
	if records == nil {
		records = []domain.ToolCallRecord{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"session_id": sessionID,
		"tool_calls": records,
	})
}
