package provision

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/mail"
	"strconv"

	"github.com/pkg/errors"

	"github.com/trezcool/tutorhub/core"
)

const (
	reportTemplate   = "provisioning_report"
	reportAttachment = "errors.csv"
)

// NewReportMessage builds the email summarizing run for the operators.
// Errored records are attached as a CSV file.
func NewReportMessage(run Run, to ...mail.Address) (*core.EmailMessage, error) {
	msg := &core.EmailMessage{
		To:           to,
		Subject:      fmt.Sprintf("Provisioning run %s: %d errors", run.Status, run.Summary.Errors),
		TemplateName: reportTemplate,
		TemplateData: run,
	}
	if len(run.Failures) == 0 {
		return msg, nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"position", "email", "unique_id", "message"})
	for _, f := range run.Failures {
		_ = w.Write([]string{strconv.Itoa(f.Position), f.Email, f.UniqueID, f.Message})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.Wrap(err, "writing failures csv")
	}

	if err := msg.Attach(&buf, reportAttachment, "text/csv"); err != nil {
		return nil, err
	}
	return msg, nil
}
