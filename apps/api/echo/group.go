package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/group"
)

type groupApi struct {
	svc group.Service
}

func registerGroupAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc group.Service) {
	api := groupApi{svc: svc}

	gg := g.Group("/groups", jwt)

	gg.GET("", api.query)
	gg.GET("/:id", api.retrieve)
	gg.GET("/:id/roster", api.roster, teacherOrAdminMiddleware())
}

// Handlers

func (api *groupApi) query(ctx echo.Context) error {
	groups, err := api.svc.GetAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying groups")
	}
	return ctx.JSON(http.StatusOK, groups)
}

func (api *groupApi) retrieve(ctx echo.Context) error {
	grp, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, grp)
}

func (api *groupApi) roster(ctx echo.Context) error {
	roster, err := api.svc.Roster(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, roster)
}
