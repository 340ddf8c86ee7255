package echoapi

import (
	"io/fs"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/foundi/core"
	"github.com/trezcool/foundi/core/portal"
	"github.com/trezcool/foundi/core/user"
	appfs "github.com/trezcool/foundi/fs"
)

const shellPath = "web/index.html"

type pages struct {
	conf   *core.Config
	usrSvc user.Service
	shell  []byte
}

func registerPages(app *echo.Echo, deps ServerDeps) {
	shell, err := fs.ReadFile(appfs.FS, shellPath)
	if err != nil {
		// embedded at build time
		panic(errors.Wrap(err, "reading SPA shell"))
	}
	p := &pages{conf: deps.Conf, usrSvc: deps.UserSvc, shell: shell}

	for _, route := range portal.Routes {
		if route.Guarded {
			app.GET(route.Path, p.serve, p.gate(route))
		} else {
			app.GET(route.Path, p.serve)
		}
	}
}

func (p *pages) serve(ctx echo.Context) error {
	return ctx.HTMLBlob(http.StatusOK, p.shell)
}

// gate only lets a valid session of an active user with the right role reach route.
// Requests without a readable session are redirected before any storage read.
func (p *pages) gate(route portal.Route) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			toLogin := func(clear bool) error {
				if clear {
					clearSessionCookie(ctx)
				}
				return ctx.Redirect(http.StatusFound, portal.LoginPath)
			}

			cookie, err := ctx.Cookie(portal.SessionCookieKey)
			if err != nil || cookie.Value == "" {
				return toLogin(false)
			}
			claims, err := parseToken(cookie.Value, p.conf.SecretKey)
			if err != nil {
				return toLogin(true)
			}

			usr, err := p.usrSvc.GetByID(ctx.Request().Context(), claims.Subject)
			if err != nil {
				if core.IsNotFound(err) {
					return toLogin(true)
				}
				return errors.Wrap(err, "finding user by ID")
			}
			if !usr.IsActive() {
				return toLogin(true)
			}
			if route.Role != "" && route.Role != usr.Role {
				return ctx.Redirect(http.StatusFound, portal.HomeFor(usr.Role))
			}
			ctx.Set(contextUserKey, usr)
			return next(ctx)
		}
	}
}
