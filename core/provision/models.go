package provision

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/tutorhub/core"
)

// Modes
const (
	ModeInvite   Mode = "invite"
	ModePassword Mode = "password"
)

// Skip reasons
const (
	ReasonBlankEmail         = "blank-email"
	ReasonDryRun             = "dry-run"
	ReasonAlreadyProvisioned = "already-provisioned"
)

// Metadata keys sent along with every provisioned identity
const (
	MetaUniqueID     = "unique_id"
	MetaUserType     = "user_type"
	MetaMigratedFrom = "migrated_from"
)

const (
	DefaultUserType      = "user"
	DefaultMigratedFrom  = "legacy-system"
	DefaultProgressEvery = 200
	DefaultLimit         = math.MaxInt32 // effectively "all"
)

var Modes = []Mode{ModeInvite, ModePassword}

type Mode string

func (m Mode) Valid() bool {
	for _, mode := range Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// ParseMode cleans s and checks that it is a known mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(core.CleanString(s, true /* lower */))
	if !m.Valid() {
		return "", fmt.Errorf("invalid mode %q: must be one of invite, password", s)
	}
	return m, nil
}

type Metadata map[string]string

// LegacyUser is a read-only profile row of the legacy store.
type LegacyUser struct {
	Email    string `json:"email" db:"email"`
	UniqueID string `json:"unique_id" db:"unique_id"`
	UserType string `json:"user_type" db:"user_type"`
}

func (u LegacyUser) NormalizedEmail() string {
	return core.CleanString(u.Email, true /* lower */)
}

func (u LegacyUser) Type() string {
	if t := core.CleanString(u.UserType); t != "" {
		return t
	}
	return DefaultUserType
}

func (u LegacyUser) Metadata(migratedFrom string) Metadata {
	return Metadata{
		MetaUniqueID:     u.UniqueID,
		MetaUserType:     u.Type(),
		MetaMigratedFrom: migratedFrom,
	}
}

type OutcomeKind int

const (
	OutcomeCreated OutcomeKind = iota + 1
	OutcomeInvited
	OutcomeSkipped
	OutcomeErrored
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCreated:
		return "created"
	case OutcomeInvited:
		return "invited"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Outcome is the terminal state of one record in one run.
// Reason is only set for skipped records, Message only for errored ones.
type Outcome struct {
	Kind    OutcomeKind
	Reason  string
	Message string
}

func Created() Outcome               { return Outcome{Kind: OutcomeCreated} }
func Invited() Outcome               { return Outcome{Kind: OutcomeInvited} }
func Skipped(reason string) Outcome  { return Outcome{Kind: OutcomeSkipped, Reason: reason} }
func Errored(message string) Outcome { return Outcome{Kind: OutcomeErrored, Message: message} }

type Summary struct {
	Total   int `json:"total"`
	Created int `json:"created"`
	Invited int `json:"invited"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// Apply returns the summary with the outcome counted in.
func (s Summary) Apply(o Outcome) Summary {
	switch o.Kind {
	case OutcomeCreated:
		s.Created++
	case OutcomeInvited:
		s.Invited++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeErrored:
		s.Errors++
	}
	return s
}

// Processed is the number of records that reached a terminal outcome.
func (s Summary) Processed() int {
	return s.Created + s.Invited + s.Skipped + s.Errors
}

func (s Summary) String() string {
	return fmt.Sprintf("total=%d created=%d invited=%d skipped=%d errors=%d",
		s.Total, s.Created, s.Invited, s.Skipped, s.Errors)
}

type RunConfig struct {
	Mode   Mode `json:"mode" validate:"required,provmode"`
	DryRun bool `json:"dry_run"`
	Limit  int  `json:"limit" validate:"gte=0"`
	Offset int  `json:"offset" validate:"gte=0"`

	// Precheck skips emails the provider already knows before calling it.
	Precheck bool `json:"precheck"`
}

func DefaultRunConfig() RunConfig {
	return RunConfig{Mode: ModeInvite, Limit: DefaultLimit}
}

type Status string

const (
	StatusNotStarted Status = "not-started"
	StatusRunning    Status = "running"
	StatusCompleted  Status = "completed"
)

type Run struct {
	ID         uuid.UUID  `json:"id"`
	Config     RunConfig  `json:"config"`
	Status     Status     `json:"status"`
	Summary    Summary    `json:"summary"`
	Failures   []Failure  `json:"failures,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Failure is an errored record, kept for the run report.
type Failure struct {
	Position int    `json:"position"`
	Email    string `json:"email"`
	UniqueID string `json:"unique_id"`
	Message  string `json:"message"`
}
