package provision

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/tutorhub/core"
)

var (
	nowFunc = time.Now // mockable

	// errors
	ErrPrecheckUnsupported = errors.New("the identity provider does not support lookups")
)

type (
	// Source is the read-only legacy profile store.
	Source interface {
		// FetchUsers returns profiles with a non-blank email, ordered by email ascending.
		FetchUsers(ctx context.Context, limit, offset int) ([]LegacyUser, error)
	}

	// Provider is the external identity provider.
	// Both operations must treat an already provisioned email as an error whose message Classify maps to AlreadyExists.
	Provider interface {
		InviteUser(ctx context.Context, email string, meta Metadata) error
		CreateUser(ctx context.Context, email, password string, meta Metadata) error
	}

	// Lookuper is implemented by providers able to tell whether an email is already provisioned.
	Lookuper interface {
		LookupUserByEmail(ctx context.Context, email string) (bool, error)
	}

	// Observer is notified of every record outcome, in processing order.
	Observer interface {
		Observe(cfg RunConfig, o Outcome)
	}

	Option func(svc *Service)

	Service struct {
		source        Source
		provider      Provider
		logger        core.Logger
		observers     []Observer
		out           io.Writer
		errOut        io.Writer
		progressEvery int
		migratedFrom  string
	}
)

// ProviderError is a request the identity provider understood and rejected.
type ProviderError struct {
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("identity provider rejected the request (status %d): %s", e.Status, e.Message)
}

// WithOutput sets where progress lines and per-record errors are written (stdout and stderr by default).
func WithOutput(out, errOut io.Writer) Option {
	return func(svc *Service) {
		svc.out = out
		svc.errOut = errOut
	}
}

func WithProgressEvery(n int) Option {
	return func(svc *Service) { svc.progressEvery = n }
}

func WithMigratedFrom(tag string) Option {
	return func(svc *Service) { svc.migratedFrom = tag }
}

func WithObservers(obs ...Observer) Option {
	return func(svc *Service) { svc.observers = append(svc.observers, obs...) }
}

func NewService(source Source, provider Provider, logger core.Logger, opts ...Option) *Service {
	svc := &Service{
		source:        source,
		provider:      provider,
		logger:        logger,
		out:           os.Stdout,
		errOut:        os.Stderr,
		progressEvery: DefaultProgressEvery,
		migratedFrom:  DefaultMigratedFrom,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Run provisions one slice of the legacy store, one record at a time.
// Per-record failures never stop the run: they are counted and written to the error output.
// An error is only returned when the run could not start or when ctx is done.
func (svc *Service) Run(ctx context.Context, cfg RunConfig) (Run, error) {
	run := Run{ID: uuid.New(), Config: cfg, Status: StatusNotStarted}

	if err := cfg.Validate(); err != nil {
		return run, err
	}

	var lookuper Lookuper
	if cfg.Precheck && !cfg.DryRun {
		l, ok := svc.provider.(Lookuper)
		if !ok {
			return run, ErrPrecheckUnsupported
		}
		lookuper = l
	}

	users, err := svc.source.FetchUsers(ctx, cfg.Limit, cfg.Offset)
	if err != nil {
		return run, errors.Wrap(err, "fetching legacy users")
	}

	startedAt := nowFunc().UTC()
	run.Status = StatusRunning
	run.StartedAt = &startedAt
	run.Summary.Total = len(users)
	svc.logger.Info(fmt.Sprintf(
		"provisioning run %s started: mode=%s dry_run=%t limit=%d offset=%d records=%d",
		run.ID, cfg.Mode, cfg.DryRun, cfg.Limit, cfg.Offset, len(users),
	))

	for i, usr := range users {
		if err := ctx.Err(); err != nil {
			svc.logger.Warn(fmt.Sprintf("provisioning run %s interrupted after %d records", run.ID, i), err)
			return run, errors.Wrap(err, "provisioning interrupted")
		}

		pos := i + 1
		outcome := svc.provision(ctx, cfg, lookuper, usr)
		run.Summary = run.Summary.Apply(outcome)

		if outcome.Kind == OutcomeErrored {
			email := usr.NormalizedEmail()
			_, _ = fmt.Fprintf(svc.errOut, "[%d/%d] %s: %s\n", pos, run.Summary.Total, email, outcome.Message)
			run.Failures = append(run.Failures, Failure{
				Position: pos,
				Email:    email,
				UniqueID: usr.UniqueID,
				Message:  outcome.Message,
			})
		}
		for _, obs := range svc.observers {
			obs.Observe(cfg, outcome)
		}

		if svc.progressEvery > 0 && pos%svc.progressEvery == 0 {
			_, _ = fmt.Fprintf(svc.out, "progress %d/%d: %s\n", pos, run.Summary.Total, run.Summary)
		}
	}

	finishedAt := nowFunc().UTC()
	run.Status = StatusCompleted
	run.FinishedAt = &finishedAt

	_, _ = fmt.Fprintf(svc.out, "done: %s\n", run.Summary)
	svc.logger.Info(fmt.Sprintf("provisioning run %s completed in %s: %s", run.ID, finishedAt.Sub(startedAt), run.Summary))
	return run, nil
}

func (svc *Service) provision(ctx context.Context, cfg RunConfig, lookuper Lookuper, usr LegacyUser) Outcome {
	email := usr.NormalizedEmail()
	if email == "" {
		return Skipped(ReasonBlankEmail)
	}
	if cfg.DryRun {
		return Skipped(ReasonDryRun)
	}

	if lookuper != nil {
		exists, err := lookuper.LookupUserByEmail(ctx, email)
		if err != nil {
			return failed(err)
		}
		if exists {
			return Skipped(ReasonAlreadyProvisioned)
		}
	}

	meta := usr.Metadata(svc.migratedFrom)
	switch cfg.Mode {
	case ModeInvite:
		if err := svc.provider.InviteUser(ctx, email, meta); err != nil {
			return failed(err)
		}
		return Invited()
	case ModePassword:
		secret, err := newSecret()
		if err != nil {
			return failed(err)
		}
		if err := svc.provider.CreateUser(ctx, email, secret, meta); err != nil {
			return failed(err)
		}
		return Created()
	default:
		return Errored(fmt.Sprintf("unsupported mode %q", cfg.Mode))
	}
}

// failed turns a provider failure into an outcome.
// Only structured provider rejections are classified, anything else is a real error.
func failed(err error) Outcome {
	var pErr *ProviderError
	if errors.As(err, &pErr) {
		if Classify(pErr.Message) == AlreadyExists {
			return Skipped(ReasonAlreadyProvisioned)
		}
		return Errored(pErr.Message)
	}
	return Errored(err.Error())
}
