package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/bank-report-review/internal/session"
	"github.com/iliyamo/bank-report-review/internal/ws"
)

// WSHandler upgrades /ws and hands the connection to the hub, which
// authenticates it from the first frame.
type WSHandler struct {
	Hub      *ws.Hub
	Store    session.Store
	Log      logrus.FieldLogger
	upgrader websocket.Upgrader
	// base is cancelled on shutdown so open sockets are released.
	base context.Context
}

func NewWSHandler(base context.Context, hub *ws.Hub, store session.Store, log logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		Hub:   hub,
		Store: store,
		Log:   log,
		base:  base,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the error response
		return nil
	}
	if err := h.Hub.Serve(h.base, conn, h.Store); err != nil {
		h.Log.WithError(err).WithField("remote_ip", c.RealIP()).Debug("ws: connection ended")
	}
	return nil
}
