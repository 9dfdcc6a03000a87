package handlers

import (
	"context"
	"net/http"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// Conns serves upgraded push connections. *push.Hub implements it.
type Conns interface {
	Serve(ctx context.Context, ws *websocket.Conn, id string)
}

// PushHandler upgrades authenticated requests to push connections
type PushHandler struct {
	conns    Conns
	upgrader websocket.Upgrader
}

// NewPushHandler creates a new PushHandler
func NewPushHandler(conns Conns) *PushHandler {
	return &PushHandler{
		conns: conns,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// RegisterPushRoutes registers the websocket endpoint
func (h *PushHandler) RegisterPushRoutes(g *echo.Group) {
	g.GET("/ws", h.Connect)
}

// Connect upgrades the request and serves it until the client leaves
func (h *PushHandler) Connect(c echo.Context) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the error response
		glog.V(1).Infof("[push]upgrade %s error = %s\n", identity.ID, err)
		return nil
	}
	h.conns.Serve(c.Request().Context(), ws, identity.ID)
	return nil
}
