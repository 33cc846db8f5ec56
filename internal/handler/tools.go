package handler

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bank-report-review/internal/middleware"
	"github.com/iliyamo/bank-report-review/internal/tools"
)

// mcpSessionHeader carries the MCP-over-HTTP session id.
const mcpSessionHeader = "Mcp-Session-Id"

const maxMCPBody = 1 << 20

// ToolsHandler publishes the tool contracts and serves MCP over HTTP.
type ToolsHandler struct {
	Registry *tools.Registry
	Server   *tools.Server
	Sessions *tools.Sessions
}

func NewToolsHandler(r *tools.Registry, s *tools.Server, sessions *tools.Sessions) *ToolsHandler {
	return &ToolsHandler{Registry: r, Server: s, Sessions: sessions}
}

type toolContract struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
	InputSchema any    `json:"input_schema"`
	ReadOnly    bool   `json:"read_only"`
}

// List returns the declared tool contracts.
func (h *ToolsHandler) List(c echo.Context) error {
	list := h.Registry.Tools()
	out := make([]toolContract, 0, len(list))
	for _, t := range list {
		out = append(out, toolContract{
			Name:        t.Name,
			Title:       t.Title,
			Description: t.Description,
			InputSchema: t.InputSchema,
			ReadOnly:    t.ReadOnly,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// MCP handles one JSON-RPC message.  A client that completes initialize
// without a session id is given one; later requests must send it back and
// run as the same login session.
func (h *ToolsHandler) MCP(c echo.Context) error {
	rec, _ := middleware.Session(c)
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxMCPBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "read body", "kind": "invalid_input"})
	}

	sid := c.Request().Header.Get(mcpSessionHeader)
	var st *tools.State
	if sid != "" {
		var found bool
		if st, found = h.Sessions.Get(sid, rec.ID); !found {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown MCP session", "kind": "not_found"})
		}
	} else {
		st = tools.NewState(rec.Identity())
	}

	reply := h.Server.Handle(c.Request().Context(), st, body)
	if sid == "" && st.Initialized() {
		c.Response().Header().Set(mcpSessionHeader, h.Sessions.Put(rec.ID, st))
	}
	if reply == nil {
		return c.NoContent(http.StatusAccepted)
	}
	return c.JSONBlob(http.StatusOK, reply)
}

// CloseMCP ends an MCP-over-HTTP session.
func (h *ToolsHandler) CloseMCP(c echo.Context) error {
	rec, _ := middleware.Session(c)
	if !h.Sessions.Close(c.Request().Header.Get(mcpSessionHeader), rec.ID) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown MCP session", "kind": "not_found"})
	}
	return c.NoContent(http.StatusNoContent)
}
