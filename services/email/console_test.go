package emailsvc

import (
	"context"
	"net/mail"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/tutorhub/core"
	"github.com/trezcool/tutorhub/tests"
)

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	ResetSentMessages()
	conf := &core.Config{AppName: "Tutorhub", TestMode: true, Mail: core.MailConfig{DefaultFromEmail: "noreply@tutorhub.test"}}
	core.ParseEmailTemplates(conf, testutil.NewLogger())
	svc := NewConsoleServiceMock(conf, testutil.NewLogger())

	withAttachment := &core.EmailMessage{
		To:      []mail.Address{{Address: "ops@tutorhub.test"}},
		Subject: "report",
		BodyStr: "see attachment",
	}
	if err := withAttachment.Attach(strings.NewReader("position,email\n1,a@x.com\n"), "errors.csv", "text/csv"); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	svc.SendMessages(
		withAttachment,
		&core.EmailMessage{Subject: "no recipient", BodyStr: "dropped"},
		&core.EmailMessage{To: []mail.Address{{Address: "a@x.com"}}, Subject: "empty"},
	)

	sent := SentMessages()
	if assert.Len(t, sent, 1) {
		assert.Equal(t, "report", sent[0].Subject)
		assert.Equal(t, "see attachment", sent[0].TextContent)
		assert.True(t, sent[0].HasAttachments())
	}
}

func TestConsoleService_SendMessagesThenWait(t *testing.T) {
	ResetSentMessages()
	conf := &core.Config{AppName: "Tutorhub", TestMode: true, Mail: core.MailConfig{DefaultFromEmail: "noreply@tutorhub.test"}}
	svc := NewConsoleService(conf, testutil.NewLogger())
	svc.(*consoleService).disableOutput = true

	for i := 0; i < 5; i++ {
		svc.SendMessages(&core.EmailMessage{
			To:      []mail.Address{{Address: "ops@tutorhub.test"}},
			Subject: "report",
			BodyStr: "done",
		})
	}
	svc.Wait()

	assert.Len(t, SentMessages(), 5)
}

func TestConsoleService_Send(t *testing.T) {
	conf := &core.Config{AppName: "Tutorhub", TestMode: true, Mail: core.MailConfig{DefaultFromEmail: "noreply@tutorhub.test"}}
	svc := NewConsoleServiceMock(conf, testutil.NewLogger())
	to := []mail.Address{{Address: "a@x.com"}}

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name    string
		ctx     context.Context
		msg     *core.EmailMessage
		wantErr error
	}{
		{name: "sent", ctx: context.Background(), msg: &core.EmailMessage{To: to, Subject: "hi", BodyStr: "hello"}},
		{name: "no recipients", ctx: context.Background(), msg: &core.EmailMessage{Subject: "hi", BodyStr: "hello"}, wantErr: errNoRecipients},
		{name: "no content", ctx: context.Background(), msg: &core.EmailMessage{To: to, Subject: "hi"}, wantErr: errNoContent},
		{name: "canceled", ctx: canceled, msg: &core.EmailMessage{To: to, Subject: "hi", BodyStr: "hello"}, wantErr: context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ResetSentMessages()
			err := svc.Send(tt.ctx, tt.msg)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "Send() error = %v, want %v", err, tt.wantErr)
				assert.Empty(t, SentMessages())
				return
			}
			assert.NoError(t, err)
			assert.Len(t, SentMessages(), 1)
		})
	}
}
