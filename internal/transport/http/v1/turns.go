package v1

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// TurnRequest is the body of a turn submission.
type TurnRequest struct {
	SessionID string `json:"session_id" validate:"omitempty,max=64"`
	Text      string `json:"text" validate:"required,max=2000"`
}

// PostTurn handles POST /v1/turns. A missing session_id starts a new session.
func (h *Handler) PostTurn(c echo.Context) error {
	var req TurnRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	return h.runTurn(c, req)
}

// PostSessionTurn handles POST /v1/sessions/:session_id/turns.
func (h *Handler) PostSessionTurn(c echo.Context) error {
	var req TurnRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	req.SessionID = c.Param("session_id")
	return h.runTurn(c, req)
}

func (h *Handler) runTurn(c echo.Context, req TurnRequest) error {
	if err := c.Validate(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	// A client that disconnects mid-turn must not abandon a turn whose user
	// message is already recorded.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), h.turnTimeout)
	defer cancel()

	result, err := h.service.HandleTurn(ctx, req.SessionID, req.Text)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}
