// Package di wires the dependencies shared by the admin CLI, the API server and the cloud functions.
package di

import (
	"context"
	"log"
	"net/mail"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/tutorhub/core"
	"github.com/trezcool/tutorhub/core/provision"
	"github.com/trezcool/tutorhub/services/email"
	"github.com/trezcool/tutorhub/services/identity"
	"github.com/trezcool/tutorhub/services/identity/gotrue"
	"github.com/trezcool/tutorhub/services/identity/kratos"
	"github.com/trezcool/tutorhub/services/logger"
	"github.com/trezcool/tutorhub/services/metrics"
	"github.com/trezcool/tutorhub/storage/database"
	"github.com/trezcool/tutorhub/storage/database/sqlx"
)

// Container holds everything a provisioning run needs.
type Container struct {
	Conf     *core.Config
	Logger   core.Logger
	DB       *sqlx.DB // nil when the source is not a database
	Source   provision.Source
	Provider provision.Provider
	Mailer   core.EmailService
	Metrics  *metricssvc.Collector
}

// New checks the configuration, connects to the legacy store and builds the identity provider client.
// Any error is fatal for the caller: nothing was provisioned yet.
func New(ctx context.Context, conf *core.Config, logger core.Logger) (*Container, error) {
	if err := conf.RequireIdentity(); err != nil {
		return nil, err
	}
	if err := conf.RequireDatabase(); err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to the legacy store")
	}

	mailer := NewEmailService(conf, logger)
	provider, err := NewProvider(conf, mailer)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Container{
		Conf:     conf,
		Logger:   logger,
		DB:       db,
		Source:   sqlxrepos.NewProfileRepository(db),
		Provider: provider,
		Mailer:   mailer,
		Metrics:  metricssvc.NewCollector(),
	}, nil
}

// Provisioner returns a provisioning service reporting to the container metrics.
func (c *Container) Provisioner(opts ...provision.Option) *provision.Service {
	base := []provision.Option{
		provision.WithProgressEvery(c.Conf.Provisioning.ProgressEvery),
		provision.WithMigratedFrom(c.Conf.Provisioning.MigratedFrom),
	}
	if c.Metrics != nil {
		base = append(base, provision.WithObservers(c.Metrics))
	}
	return provision.NewService(c.Source, c.Provider, c.Logger, append(base, opts...)...)
}

// SendReport mails the run report to, the configured operators when empty.
// It returns once the report is delivered.
func (c *Container) SendReport(ctx context.Context, run provision.Run, to ...mail.Address) error {
	if len(to) == 0 {
		to = c.Conf.ReportRecipients()
	}
	if len(to) == 0 {
		return errors.New("no report recipients configured (TUTORHUB_MAIL_REPORTRECIPIENTS)")
	}
	msg, err := provision.NewReportMessage(run, to...)
	if err != nil {
		return errors.Wrap(err, "building report")
	}
	return errors.Wrap(c.Mailer.Send(ctx, msg), "sending report")
}

func (c *Container) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// NewLogger returns the application logger, printing to stdout with prefix.
func NewLogger(conf *core.Config, prefix string) *logsvc.RollbarLogger {
	return logsvc.NewRollbarLogger(log.New(os.Stdout, prefix, log.LstdFlags|log.Lmicroseconds), conf)
}

func NewEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.Mail.SendgridApiKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// NewProvider builds the configured identity provider client, rate limited when configured.
func NewProvider(conf *core.Config, mailer core.EmailService) (provision.Provider, error) {
	var provider provision.Provider
	switch conf.Identity.Provider {
	case "gotrue":
		provider = gotrue.NewClient(conf)
	case "kratos":
		provider = kratos.NewClient(conf, mailer)
	default:
		return nil, errors.Errorf("unknown identity provider %q", conf.Identity.Provider)
	}
	return identity.Throttle(provider, conf.Identity.RequestsPerSecond), nil
}
