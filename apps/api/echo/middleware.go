package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/foundi/core"
	"github.com/trezcool/foundi/core/access"
	"github.com/trezcool/foundi/core/portal"
	"github.com/trezcool/foundi/core/user"
)

const authScheme = "Bearer"

// sessionCookieMiddleware lets browser sessions through the JWT middleware:
// the session cookie stands in for a missing Authorization header.
func sessionCookieMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		req := ctx.Request()
		if req.Header.Get(echo.HeaderAuthorization) == "" {
			if cookie, err := ctx.Cookie(portal.SessionCookieKey); err == nil && cookie.Value != "" {
				req.Header.Set(echo.HeaderAuthorization, authScheme+" "+cookie.Value)
			}
		}
		return next(ctx)
	}
}

// activeUserMiddleware loads the user behind the token. Accounts waiting for validation are refused.
func activeUserMiddleware(svc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if !usr.IsActive() {
				return errAccountPending
			}
			return next(ctx)
		}
	}
}

// policyMiddleware checks a rule that does not depend on the target object.
func policyMiddleware(policy *access.Policy, svc user.Service, obj, act string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if !policy.Can(usr, obj, act) {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

// ctxUserOrAdminMiddleware puts the user of the :id param in the context as "object"
// when the context user is that user or an admin.
func ctxUserOrAdminMiddleware(svc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}

			if ctx.Param("id") == ctxUsr.ID || ctxUsr.IsAdmin() {
				if usr, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id")); err == nil {
					ctx.Set(contextObjectKey, usr)
					return next(ctx)
				} else if !core.IsNotFound(err) {
					return errors.Wrap(err, "finding user by ID")
				}
			}
			return errHttpNotFound
		}
	}
}

// withMiddleware appends route specific middleware to the common ones.
func withMiddleware(common []echo.MiddlewareFunc, extra ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := make([]echo.MiddlewareFunc, 0, len(common)+len(extra))
	out = append(out, common...)
	return append(out, extra...)
}
