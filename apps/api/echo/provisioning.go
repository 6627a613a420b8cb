package echoapi

import (
	"context"
	"net/http"
	"net/mail"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tutorhub/core"
	"github.com/trezcool/tutorhub/core/provision"
	"github.com/trezcool/tutorhub/services/metrics"
)

type provisioningApi struct {
	conf     *core.Config
	svc      *provision.Service
	profiles ProfileCounter
	mailer   core.EmailService
	metrics  *metricssvc.Collector

	running sync.Mutex // one run at a time

	mu      sync.RWMutex
	lastRun *provision.Run
}

func registerProvisioningAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := &provisioningApi{
		conf:     deps.Conf,
		svc:      deps.Provisioner,
		profiles: deps.Profiles,
		mailer:   deps.Mailer,
		metrics:  deps.Metrics,
	}

	pg := g.Group("/provisioning", jwt, adminMiddleware())
	pg.POST("/runs", api.run)
	pg.GET("/runs/last", api.retrieveLastRun)
	pg.GET("/source", api.source)
}

// Handlers

func (api *provisioningApi) run(ctx echo.Context) error {
	var data provision.Request
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to provision.Request")
	}
	if err := data.Validate(); err != nil {
		return err
	}
	cfg, err := data.RunConfig()
	if err != nil {
		return err
	}
	var recipients []mail.Address
	if data.Report {
		if recipients = data.Recipients(api.conf.ReportRecipients()); len(recipients) == 0 {
			return errNoRecipients
		}
	}

	if !api.running.TryLock() {
		return errRunInProgress
	}
	defer api.running.Unlock()

	// runs to completion even if the client disconnects
	run, err := api.svc.Run(context.WithoutCancel(ctx.Request().Context()), cfg)
	api.metrics.RecordRun(run)
	if err != nil {
		if errors.Is(err, provision.ErrPrecheckUnsupported) {
			return core.NewValidationError(nil, core.FieldError{Field: "precheck", Error: err.Error()})
		}
		return errors.Wrap(err, "running provisioning")
	}
	api.setLastRun(run)

	if data.Report {
		msg, err := provision.NewReportMessage(run, recipients...)
		if err != nil {
			return errors.Wrap(err, "building report")
		}
		api.mailer.SendMessages(msg)
	}
	return ctx.JSON(http.StatusOK, run)
}

func (api *provisioningApi) retrieveLastRun(ctx echo.Context) error {
	api.mu.RLock()
	defer api.mu.RUnlock()
	if api.lastRun == nil {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, api.lastRun)
}

func (api *provisioningApi) source(ctx echo.Context) error {
	count, err := api.profiles.CountUsers(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "counting legacy profiles")
	}
	return ctx.JSON(http.StatusOK, SourceResponse{Eligible: count})
}

func (api *provisioningApi) setLastRun(run provision.Run) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.lastRun = &run
}

type SourceResponse struct {
	Eligible int `json:"eligible"`
}
