package handlers

import (
	"errors"
	"net/http"

	"github.com/golang/glog"
	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/memberhub/internal/middleware"
	"github.com/anonto42/nano-midea/memberhub/internal/models"
	"github.com/anonto42/nano-midea/memberhub/internal/repositories"
	"github.com/anonto42/nano-midea/memberhub/pkg/entity"
)

// Publisher fans an event out to subscribed clients. *push.Hub implements it.
type Publisher interface {
	Publish(ev entity.Event)
}

func publish(p Publisher, typ entity.EventType, itemID string, payload any) {
	ev, err := entity.NewEvent(typ, itemID, payload)
	if err != nil {
		glog.Errorf("[events]%s", err)
		return
	}
	p.Publish(ev)
}

func currentIdentity(c echo.Context) (models.Identity, error) {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return models.Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
	}
	return id, nil
}

// storageError maps repository errors to HTTP errors
func storageError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrItemNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Item not found")
	case errors.Is(err, repositories.ErrReplyNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Reply not found")
	}
	glog.Errorf("[storage]%s", err)
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
