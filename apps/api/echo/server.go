package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/trezcool/tutorhub/core"
	"github.com/trezcool/tutorhub/core/provision"
	"github.com/trezcool/tutorhub/services/metrics"
)

type (
	// ProfileCounter counts the legacy profiles eligible for provisioning.
	ProfileCounter interface {
		CountUsers(ctx context.Context) (int, error)
	}

	ServerDeps struct {
		Conf        *core.Config
		Logger      core.Logger
		Provisioner *provision.Service
		Profiles    ProfileCounter
		Mailer      core.EmailService
		Metrics     *metricssvc.Collector
	}

	Server struct {
		app      *echo.Echo
		address  string
		errors   chan error
		shutdown chan os.Signal
		mailer   core.EmailService
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		app:      echo.New(),
		address:  deps.Conf.Server.Address,
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
		mailer:   deps.Mailer,
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup(deps)
	return s
}

func (s *Server) setup(deps ServerDeps) {
	conf := deps.Conf
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(metricsMiddleware(deps.Metrics))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(deps.Logger)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)
	s.app.GET("/healthz", healthz)
	s.app.GET("/metrics", echo.WrapHandler(deps.Metrics.Handler()))

	v1 := s.app.Group("/v1")
	registerProvisioningAPI(v1, jwtMiddleware(conf), deps)
}

// Start blocks until the server stops. Errors other than a graceful shutdown are sent to Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// Shutdown stops accepting requests, then waits for queued report emails.
func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	err := s.app.Shutdown(ctx)
	s.mailer.Wait()
	return err
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Tutorhub identity provisioning API!")
}

func healthz(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
