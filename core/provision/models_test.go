package provision

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"net/mail"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "invite", want: ModeInvite},
		{in: " Password ", want: ModePassword},
		{in: "INVITE", want: ModeInvite},
		{in: "", wantErr: true},
		{in: "magic-link", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLegacyUser(t *testing.T) {
	usr := LegacyUser{Email: "  Jane.Doe@Example.COM ", UniqueID: "42"}
	assert.Equal(t, "jane.doe@example.com", usr.NormalizedEmail())
	assert.Equal(t, DefaultUserType, usr.Type())

	usr.UserType = "  "
	assert.Equal(t, DefaultUserType, usr.Type())

	usr.UserType = "bursary_student"
	assert.Equal(t, Metadata{
		MetaUniqueID:     "42",
		MetaUserType:     "bursary_student",
		MetaMigratedFrom: "old-crm",
	}, usr.Metadata("old-crm"))
}

func TestSummary_Apply(t *testing.T) {
	s := Summary{Total: 5}
	for _, o := range []Outcome{
		Created(),
		Invited(),
		Skipped(ReasonDryRun),
		Errored("boom"),
		Skipped(ReasonBlankEmail),
	} {
		s = s.Apply(o)
	}
	assert.Equal(t, Summary{Total: 5, Created: 1, Invited: 1, Skipped: 2, Errors: 1}, s)
	assert.Equal(t, s.Total, s.Processed())
	assert.Equal(t, "total=5 created=1 invited=1 skipped=2 errors=1", s.String())

	// unknown outcomes are not counted
	assert.Equal(t, s, s.Apply(Outcome{}))
}

func TestRunConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RunConfig
		wantErr string
	}{
		{name: "default", cfg: DefaultRunConfig()},
		{name: "password dry run", cfg: RunConfig{Mode: ModePassword, DryRun: true, Limit: 10, Offset: 20}},
		{name: "missing mode", cfg: RunConfig{Limit: 10}, wantErr: "mode: this field is required"},
		{name: "unknown mode", cfg: RunConfig{Mode: "sso", Limit: 10}, wantErr: "mode: mode must be one of invite, password"},
		{name: "negative limit", cfg: RunConfig{Mode: ModeInvite, Limit: -1}, wantErr: "limit: "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestNewReportMessage(t *testing.T) {
	to := mail.Address{Name: "Ops", Address: "ops@tutorhub.test"}
	run := Run{
		ID:      uuid.New(),
		Config:  DefaultRunConfig(),
		Status:  StatusCompleted,
		Summary: Summary{Total: 2, Invited: 1, Errors: 1},
		Failures: []Failure{
			{Position: 2, Email: "b@x.com", UniqueID: "u-2", Message: "Service unavailable, retry later"},
		},
	}

	msg, err := NewReportMessage(run, to)
	if err != nil {
		t.Fatalf("NewReportMessage() error = %v", err)
	}
	assert.Equal(t, []mail.Address{to}, msg.To)
	assert.Equal(t, "Provisioning run completed: 1 errors", msg.Subject)
	assert.Equal(t, reportTemplate, msg.TemplateName)
	if assert.Len(t, msg.Attachments, 1) {
		at := msg.Attachments[0]
		assert.Equal(t, reportAttachment, at.Filename)
		assert.Equal(t, "text/csv", at.ContentType)

		raw, err := base64.StdEncoding.DecodeString(at.Content.String())
		if err != nil {
			t.Fatalf("decoding attachment: %v", err)
		}
		records, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
		if err != nil {
			t.Fatalf("reading attachment: %v", err)
		}
		assert.Equal(t, [][]string{
			{"position", "email", "unique_id", "message"},
			{"2", "b@x.com", "u-2", "Service unavailable, retry later"},
		}, records)
	}

	run.Failures = nil
	msg, err = NewReportMessage(run, to)
	if err != nil {
		t.Fatalf("NewReportMessage() error = %v", err)
	}
	assert.False(t, msg.HasAttachments())
}
