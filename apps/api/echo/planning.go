package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/foundi/core/planning"
	"github.com/trezcool/foundi/core/user"
)

type planningApi struct {
	svc      *planning.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerPlanningAPI(g *echo.Group, auth []echo.MiddlewareFunc, deps ServerDeps) {
	api := planningApi{svc: deps.PlanningSvc, usrSvc: deps.UserSvc, validate: deps.Validate}

	g.GET("/planning", api.get, auth...)
	g.PUT("/planning/:day/:slot", api.setSlot, auth...)
	g.DELETE("/planning/:day/:slot", api.removeSlot, auth...)
}

func (api *planningApi) get(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	s, err := api.svc.Get(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "getting schedule")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *planningApi) setSlot(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data planning.SetSlot
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetSlot")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	entry, err := api.svc.SetSlot(ctx.Request().Context(), usr, ctx.Param("day"), ctx.Param("slot"), data)
	if err != nil {
		return errors.Wrap(err, "setting slot")
	}
	return ctx.JSON(http.StatusOK, entry)
}

func (api *planningApi) removeSlot(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err = api.svc.RemoveSlot(ctx.Request().Context(), usr, ctx.Param("day"), ctx.Param("slot")); err != nil {
		return errors.Wrap(err, "removing slot")
	}
	return ctx.NoContent(http.StatusNoContent)
}
