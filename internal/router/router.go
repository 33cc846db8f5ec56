// Package router registers the HTTP routes of the review server.
package router

import (
	"os"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/bank-report-review/internal/config"
	"github.com/iliyamo/bank-report-review/internal/handler"
	"github.com/iliyamo/bank-report-review/internal/metrics"
	"github.com/iliyamo/bank-report-review/internal/middleware"
	"github.com/iliyamo/bank-report-review/internal/session"
)

// Setup installs the global middleware: recovery, access log, metrics,
// CORS, JSON error rendering and request validation.
func Setup(e *echo.Echo, log logrus.FieldLogger, m *metrics.Metrics, corsOrigins []string) {
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(log)
	e.Validator = handler.NewValidator()

	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log))
	e.Use(middleware.Metrics(m))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  corsOrigins,
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Mcp-Session-Id"},
		ExposeHeaders: []string{"Mcp-Session-Id", "Retry-After"},
	}))
}

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, m *metrics.Metrics) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
}

// Limits carries the rate limiter shared by login, chat and MCP.
type Limits struct {
	Config config.RateLimitConfig
	Redis  *redis.Client
	Log    logrus.FieldLogger
}

func (l Limits) middleware() echo.MiddlewareFunc {
	return middleware.RateLimit(l.Config, l.Redis, l.Log)
}

// RegisterAuth registers login, logout and the current user.  Logout does
// not require a valid session so that a stale client can always sign out.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, store session.Store, limits Limits) {
	e.POST("/api/login", a.Login, limits.middleware())
	e.POST("/api/logout", a.Logout)
	e.GET("/api/me", a.Me, middleware.SessionAuth(store))
}

// RegisterReview registers the bank, report, error and comment endpoints.
func RegisterReview(e *echo.Echo, r *handler.ReviewHandler, store session.Store) {
	g := e.Group("/api", middleware.SessionAuth(store))
	g.GET("/banks", r.ListBanks)
	g.POST("/banks", r.CreateBank)
	g.PUT("/banks/:id", r.UpdateBank)
	g.DELETE("/banks/:id", r.DeleteBank)

	g.GET("/reports", r.ListReports)
	g.GET("/reports/status/:status", r.ListReportsByStatus)
	g.GET("/reports/:id/errors", r.ListReportErrors)
	g.PUT("/reports/:id/status", r.SetReportStatus)

	g.POST("/errors/:id/comments", r.AddComment)
}

// RegisterAgent registers chat, the tool contracts and the MCP endpoint.
func RegisterAgent(e *echo.Echo, chat *handler.ChatHandler, t *handler.ToolsHandler, store session.Store, limits Limits) {
	auth := middleware.SessionAuth(store)
	rl := limits.middleware()

	e.POST("/api/chat", chat.Chat, auth, rl)
	e.POST("/api/chat/new", chat.NewChat, auth)
	e.GET("/api/tools", t.List, auth)

	e.POST("/mcp", t.MCP, auth, rl)
	e.DELETE("/mcp", t.CloseMCP, auth)
}

// RegisterWS registers the WebSocket endpoint.  Authentication happens on
// the first frame, not the upgrade request.
func RegisterWS(e *echo.Echo, h *handler.WSHandler) {
	e.GET("/ws", h.Serve)
}

// RegisterStatic serves the browser client from dir when it exists.
func RegisterStatic(e *echo.Echo, dir string) bool {
	if dir == "" {
		return false
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return false
	}
	e.Use(echomw.StaticWithConfig(echomw.StaticConfig{Root: dir, Index: "index.html"}))
	return true
}
