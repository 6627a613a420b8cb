package provision

import (
	"net/mail"

	"github.com/trezcool/tutorhub/core"
)

// Request is a run asked for through a trigger (HTTP, Pub/Sub), with its report options.
// Zero values mean invite mode over every record.
type Request struct {
	Mode     string   `json:"mode"`
	DryRun   bool     `json:"dry_run"`
	Limit    *int     `json:"limit" validate:"omitempty,gte=0"`
	Offset   int      `json:"offset" validate:"gte=0"`
	Precheck bool     `json:"precheck"`
	Report   bool     `json:"report"`
	ReportTo []string `json:"report_to" validate:"omitempty,dive,email"`
}

func (r *Request) Validate() error {
	for i, addr := range r.ReportTo {
		r.ReportTo[i] = core.CleanString(addr, true /* lower */)
	}
	return core.TranslateValidationError(validate.Struct(r), translator)
}

// RunConfig returns the run configuration requested.
func (r Request) RunConfig() (RunConfig, error) {
	cfg := DefaultRunConfig()
	if r.Mode != "" {
		mode, err := ParseMode(r.Mode)
		if err != nil {
			return cfg, core.NewValidationError(nil, core.FieldError{Field: "mode", Error: err.Error()})
		}
		cfg.Mode = mode
	}
	if r.Limit != nil {
		cfg.Limit = *r.Limit
	}
	cfg.Offset = r.Offset
	cfg.DryRun = r.DryRun
	cfg.Precheck = r.Precheck
	return cfg, cfg.Validate()
}

// Recipients returns the addresses the report goes to, defaults when none were requested.
func (r Request) Recipients(defaults []mail.Address) []mail.Address {
	if len(r.ReportTo) == 0 {
		return defaults
	}
	addrs := make([]mail.Address, 0, len(r.ReportTo))
	for _, raw := range r.ReportTo {
		addrs = append(addrs, mail.Address{Address: raw})
	}
	return addrs
}
