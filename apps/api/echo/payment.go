package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/foundi/core/payment"
	"github.com/trezcool/foundi/core/user"
)

type paymentApi struct {
	svc    *payment.Service
	usrSvc user.Service
}

func registerPaymentAPI(g *echo.Group, auth []echo.MiddlewareFunc, deps ServerDeps) {
	api := paymentApi{svc: deps.PaymentSvc, usrSvc: deps.UserSvc}
	object := ctxUserOrAdminMiddleware(deps.UserSvc)

	g.GET("/me/payments", api.mine, auth...)
	g.GET("/users/:id/payments", api.summary, withMiddleware(auth, object)...)
	g.POST("/users/:id/payments/:month/toggle", api.toggle, auth...)
	g.PUT("/users/:id/payments/:month", api.set, auth...)
	g.GET("/admin/stats", api.stats, auth...)
}

func (api *paymentApi) mine(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	sum, err := api.svc.SummaryFor(usr, usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sum)
}

func (api *paymentApi) summary(ctx echo.Context) error {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	sum, err := api.svc.SummaryFor(ctxUsr, usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sum)
}

func (api *paymentApi) toggle(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	paid, err := api.svc.Toggle(ctx.Request().Context(), ctxUsr, ctx.Param("id"), ctx.Param("month"))
	if err != nil {
		return errors.Wrap(err, "toggling payment")
	}
	return ctx.JSON(http.StatusOK, PaymentResponse{Month: payment.MonthKeyOf(ctx.Param("month")), Paid: paid})
}

func (api *paymentApi) set(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data SetPaymentRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetPaymentRequest")
	}
	if err = api.svc.Set(ctx.Request().Context(), ctxUsr, ctx.Param("id"), ctx.Param("month"), data.Paid); err != nil {
		return errors.Wrap(err, "setting payment")
	}
	return ctx.JSON(http.StatusOK, PaymentResponse{Month: payment.MonthKeyOf(ctx.Param("month")), Paid: data.Paid})
}

func (api *paymentApi) stats(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	st, err := api.svc.Stats(ctx.Request().Context(), ctxUsr)
	if err != nil {
		return errors.Wrap(err, "computing stats")
	}
	return ctx.JSON(http.StatusOK, st)
}

type (
	SetPaymentRequest struct {
		Paid bool `json:"paid"`
	}

	PaymentResponse struct {
		Month string `json:"month"`
		Paid  bool   `json:"paid"`
	}
)
