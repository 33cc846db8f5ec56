package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bank-report-review/internal/agent"
	"github.com/iliyamo/bank-report-review/internal/middleware"
	"github.com/iliyamo/bank-report-review/internal/model"
)

// Asker is the conversational agent.
type Asker interface {
	Ask(ctx context.Context, id model.Identity, key, question string) (agent.Answer, error)
	NewThread(key string) string
}

// ChatHandler forwards free-text questions to the agent.  Conversations
// are keyed by the caller's session.
type ChatHandler struct {
	Agent Asker
}

func NewChatHandler(a Asker) *ChatHandler {
	return &ChatHandler{Agent: a}
}

type chatReq struct {
	Message string `json:"message" validate:"required,max=8000"`
}

func (h *ChatHandler) Chat(c echo.Context) error {
	var req chatReq
	if err := bind(c, &req); err != nil {
		return respond(c, err)
	}
	rec, _ := middleware.Session(c)
	ans, err := h.Agent.Ask(c.Request().Context(), rec.Identity(), rec.ID, req.Message)
	if err != nil {
		if errors.Is(err, agent.ErrUnavailable) {
			return c.JSON(http.StatusBadGateway, echo.Map{"error": err.Error(), "kind": "agent_unavailable"})
		}
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, ans)
}

// NewChat starts a fresh conversation for the caller's session.
func (h *ChatHandler) NewChat(c echo.Context) error {
	rec, _ := middleware.Session(c)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "thread_id": h.Agent.NewThread(rec.ID)})
}
