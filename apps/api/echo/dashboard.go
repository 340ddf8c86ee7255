package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/foundi/core/access"
	"github.com/trezcool/foundi/core/chat"
	"github.com/trezcool/foundi/core/course"
	"github.com/trezcool/foundi/core/portal"
	"github.com/trezcool/foundi/core/user"
)

type dashboardApi struct {
	usrSvc    user.Service
	courseSvc *course.Service
	chatSvc   *chat.Service
}

func registerDashboardAPI(g *echo.Group, auth []echo.MiddlewareFunc, deps ServerDeps) {
	api := dashboardApi{usrSvc: deps.UserSvc, courseSvc: deps.CourseSvc, chatSvc: deps.ChatSvc}

	g.GET("/dashboard", api.dashboard, auth...)
	g.POST("/dashboard/panel", api.navigate, auth...)
	g.GET("/admin/usage", api.usage, withMiddleware(auth, policyMiddleware(deps.Policy, deps.UserSvc, access.ObjUsage, access.ActRead))...)
}

func (api *dashboardApi) dashboard(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	dash, err := portal.DashboardFor(usr.Role)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, dash)
}

func (api *dashboardApi) navigate(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data NavigateRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NavigateRequest")
	}
	dash, err := portal.DashboardFor(usr.Role)
	if err != nil {
		return err
	}
	dash, err = dash.Navigate(data.Panel)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, dash)
}

func (api *dashboardApi) usage(ctx echo.Context) error {
	u, err := portal.MeasureUsage(ctx.Request().Context(), api.usrSvc, api.courseSvc, api.chatSvc)
	if err != nil {
		return errors.Wrap(err, "measuring usage")
	}
	return ctx.JSON(http.StatusOK, u)
}

type NavigateRequest struct {
	Panel portal.Panel `json:"panel"`
}
