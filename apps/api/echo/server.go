// Package echoapi is the HTTP surface of the portal: the JSON API, the live feed and the
// SPA pages with their session gate.
package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/foundi/core"
	"github.com/trezcool/foundi/core/access"
	"github.com/trezcool/foundi/core/chat"
	"github.com/trezcool/foundi/core/course"
	"github.com/trezcool/foundi/core/payment"
	"github.com/trezcool/foundi/core/planning"
	"github.com/trezcool/foundi/core/user"
	"github.com/trezcool/foundi/services/pubsub"
)

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		Policy         *access.Policy
		UserSvc        user.Service
		PaymentSvc     *payment.Service
		CourseSvc      *course.Service
		PlanningSvc    *planning.Service
		ChatSvc        *chat.Service
		Broker         pubsub.Broker
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool
	}

	Server interface {
		http.Handler
		Start()
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
		Shutdown(ctx context.Context) error
		Close() error
	}

	server struct {
		deps     ServerDeps
		app      *echo.Echo
		jwt      echo.MiddlewareFunc
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	s := &server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug
	s.app.HideBanner = true

	s.jwt = middleware.JWTWithConfig(newJWTConfig(conf))
	auth := []echo.MiddlewareFunc{sessionCookieMiddleware, s.jwt, activeUserMiddleware(s.deps.UserSvc)}

	api := s.app.Group("/api")
	api.GET("/health", s.health)

	registerUserAPI(api, auth, s.deps)
	registerPaymentAPI(api, auth, s.deps)
	registerCourseAPI(api, auth, s.deps)
	registerPlanningAPI(api, auth, s.deps)
	registerChatAPI(api, auth, s.deps)
	registerDashboardAPI(api, auth, s.deps)
	registerFeed(api, s.deps)

	registerPages(s.app, s.deps)
}

func (s *server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *server) Errors() <-chan error {
	return s.errors
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already shutting down
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	signal.Stop(s.shutdown)
	return s.app.Close()
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{
		"status": "ok",
		"build":  s.deps.Conf.Build,
	})
}
