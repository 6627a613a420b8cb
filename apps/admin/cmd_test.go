package main

import (
	"bytes"
	"context"
	"database/sql"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/tutorhub/apps/api/echo"
	"github.com/trezcool/tutorhub/apps/di"
	"github.com/trezcool/tutorhub/core"
	"github.com/trezcool/tutorhub/core/provision"
	"github.com/trezcool/tutorhub/services/email"
	"github.com/trezcool/tutorhub/services/identity/dummy"
	"github.com/trezcool/tutorhub/services/metrics"
	"github.com/trezcool/tutorhub/storage/database/inmem"
	"github.com/trezcool/tutorhub/tests"
)

var legacyProfiles = []provision.LegacyUser{
	{Email: "a@x.com", UniqueID: "u-1"},
	{Email: "b@x.com", UniqueID: "u-2"},
	{Email: "c@x.com", UniqueID: "u-3"},
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func setup(t *testing.T) (*commandLine, *bytes.Buffer, *bytes.Buffer) {
	conf := &core.Config{
		TestMode:  true,
		AppName:   "Tutorhub",
		SecretKey: "test-secret",
		Database:  core.DatabaseConfig{URL: "postgres://tutorhub@localhost:5432/tutorhub_test?sslmode=disable", Engine: "postgres"},
		Identity:  core.IdentityConfig{Provider: "gotrue", URL: "https://id.tutorhub.test", ServiceKey: "service-key"},
		Mail:      core.MailConfig{ReportRecipients: []string{"ops@tutorhub.test"}},
		Provisioning: core.ProvisioningConfig{
			ProgressEvery: provision.DefaultProgressEvery,
			MigratedFrom:  provision.DefaultMigratedFrom,
		},
	}
	logger := testutil.NewLogger()
	core.ParseEmailTemplates(conf, logger)

	var stdout, stderr bytes.Buffer
	cli := &commandLine{conf: conf, logger: logger, stdout: &stdout, stderr: &stderr}

	origBuild, origTerm, origRead := buildContainerFunc, isTerminalFunc, readPasswordFunc
	t.Cleanup(func() {
		buildContainerFunc, isTerminalFunc, readPasswordFunc = origBuild, origTerm, origRead
	})
	isTerminalFunc = func(int) bool { return false }
	return cli, &stdout, &stderr
}

// fakeContainer makes buildContainerFunc return an in-memory container around provider.
func fakeContainer(t *testing.T, provider provision.Provider) {
	buildContainerFunc = func(_ context.Context, conf *core.Config, logger core.Logger) (*di.Container, error) {
		db, err := inmemdb.Open()
		if err != nil {
			t.Fatalf("inmemdb.Open(): %v", err)
		}
		repo := inmemdb.NewProfileRepository(db)
		repo.AddProfiles(legacyProfiles...)
		return &di.Container{
			Conf:     conf,
			Logger:   logger,
			Source:   repo,
			Provider: provider,
			Mailer:   emailsvc.NewConsoleServiceMock(conf, logger),
			Metrics:  metricssvc.NewCollector(),
		}, nil
	}
}

func checkErr(t *testing.T, tt cliTest, err error) {
	t.Helper()
	switch {
	case err == nil:
		if tt.wantErr != nil || tt.wantErrStr != "" {
			t.Errorf("cli.run() error = nil, wantErr %v %s", tt.wantErr, tt.wantErrStr)
		}
	case tt.wantErr != nil:
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr != "":
		if !strings.Contains(err.Error(), tt.wantErrStr) {
			t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
		}
	default:
		t.Errorf("cli.run() unexpected error = %v", err)
	}
}

func Test_commandLine_usage(t *testing.T) {
	tests := []cliTest{
		{name: "help command", args: []string{"help"}, wantErr: flag.ErrHelp},
		{name: "--help", args: []string{"--help"}, wantErr: flag.ErrHelp},
		{name: "provision -h", args: []string{"provision", "-h"}, wantErr: flag.ErrHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "unknown flag", args: []string{"--lol"}, wantErr: errHelp},
		{name: "bad limit", args: []string{"--limit", "all"}, wantErr: errHelp},
		{name: "extra args", args: []string{"provision", "now"}, wantErr: errHelp},
		{name: "invalid mode", args: []string{"--mode", "sso"}, wantErrStr: `invalid mode "sso": must be one of invite, password`},
		{name: "negative offset", args: []string{"--offset=-1"}, wantErrStr: "offset"},
		{name: "migrate: no command", args: []string{"migrate"}, wantErr: errHelp},
		{name: "token: no subject", args: []string{"token"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli, stdout, _ := setup(t)
			buildContainerFunc = func(context.Context, *core.Config, core.Logger) (*di.Container, error) {
				t.Fatal("no dependency must be set up")
				return nil, nil
			}

			err := cli.run(context.Background(), append([]string{"admin"}, tt.args...))
			checkErr(t, tt, err)
			if errors.Is(err, flag.ErrHelp) {
				assert.Contains(t, stdout.String(), "Usage:")
			}
		})
	}
}

func Test_commandLine_provision(t *testing.T) {
	type extra struct {
		stdout, stderr []string
		calls          int
	}
	tests := []cliTest{
		{
			name: "invite (default)",
			extra: extra{
				stdout: []string{"done: total=3 created=0 invited=2 skipped=1 errors=0\n"},
				calls:  3,
			},
		},
		{
			name: "password",
			args: []string{"provision", "--mode=password", "--limit", "2"},
			extra: extra{
				stdout: []string{"done: total=2 created=1 invited=0 skipped=1 errors=0\n"},
				calls:  2,
			},
		},
		{
			name:  "dry run",
			args:  []string{"--dry-run", "--offset", "1"},
			extra: extra{stdout: []string{"done: total=2 created=0 invited=0 skipped=2 errors=0\n"}},
		},
		{
			name: "precheck",
			args: []string{"--precheck"},
			extra: extra{
				stdout: []string{"done: total=3 created=0 invited=2 skipped=1 errors=0\n"},
				calls:  5, // 3 lookups, 2 invites
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli, stdout, stderr := setup(t)
			provider := dummyidentity.NewProvider("b@x.com")
			fakeContainer(t, provider)

			checkErr(t, tt, cli.run(context.Background(), append([]string{"admin"}, tt.args...)))

			want := tt.extra.(extra)
			for _, s := range want.stdout {
				assert.Contains(t, stdout.String(), s)
			}
			assert.Empty(t, stderr.String())
			assert.Len(t, provider.Calls(), want.calls)
		})
	}
}

func Test_commandLine_provisionErrors(t *testing.T) {
	cli, stdout, stderr := setup(t)
	provider := dummyidentity.NewProvider()
	provider.FailWith("b@x.com", &provision.ProviderError{Status: 503, Message: "Service unavailable"})
	fakeContainer(t, provider)

	emailsvc.ResetSentMessages()
	// record errors do not fail the command
	if err := cli.run(context.Background(), []string{"admin", "provision", "--report"}); err != nil {
		t.Fatalf("cli.run() unexpected error = %v", err)
	}
	assert.Equal(t, "[2/3] b@x.com: Service unavailable\n", stderr.String())
	assert.Contains(t, stdout.String(), "done: total=3 created=0 invited=2 skipped=0 errors=1\n")

	if sent := emailsvc.SentMessages(); assert.Len(t, sent, 1) {
		assert.Equal(t, "ops@tutorhub.test", sent[0].To[0].Address)
		assert.True(t, sent[0].HasAttachments())
	}
}

func Test_commandLine_provisionStartup(t *testing.T) {
	cli, stdout, _ := setup(t)
	errUnreachable := errors.New("connecting to the legacy store: connection refused")
	buildContainerFunc = func(context.Context, *core.Config, core.Logger) (*di.Container, error) {
		return nil, errUnreachable
	}

	err := cli.run(context.Background(), []string{"admin"})
	assert.Equal(t, errUnreachable, err)
	assert.Empty(t, stdout.String())
}

func Test_commandLine_promptServiceKey(t *testing.T) {
	type extra struct {
		terminal bool
		key      string
		wantKey  string
	}
	tests := []cliTest{
		{name: "configured key", extra: extra{terminal: true, key: "typed", wantKey: "service-key"}},
		{name: "no terminal", extra: extra{terminal: false, key: "typed", wantKey: ""}},
		{name: "prompted", extra: extra{terminal: true, key: "typed", wantKey: "typed"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli, _, _ := setup(t)
			ex := tt.extra.(extra)
			if tt.name != "configured key" {
				cli.conf.Identity.ServiceKey = ""
			}
			isTerminalFunc = func(int) bool { return ex.terminal }
			readPasswordFunc = func(int) ([]byte, error) { return []byte(ex.key), nil }

			var gotKey string
			buildContainerFunc = func(_ context.Context, conf *core.Config, _ core.Logger) (*di.Container, error) {
				gotKey = conf.Identity.ServiceKey
				return nil, errors.New("stop here")
			}

			_ = cli.run(context.Background(), []string{"admin", "--dry-run"})
			assert.Equal(t, ex.wantKey, gotKey)
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, _ := setup(t)

	origOpen, origRun := openDBFunc, gooseRunFunc
	t.Cleanup(func() { openDBFunc, gooseRunFunc = origOpen, origRun })

	// sqlx.Open does not connect
	openDBFunc = func(_ context.Context, conf *core.Config) (*sqlx.DB, error) {
		return sqlx.Open(conf.Database.Engine, conf.Database.DSN())
	}
	gooseRunFunc = func(_ context.Context, db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "profile_index", "sql"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, tt, cli.run(context.Background(), args))
		})
	}

	cli.conf.Database = core.DatabaseConfig{}
	checkErr(t, cliTest{wantErrStr: "data source is not set"}, cli.run(context.Background(), []string{"admin", "migrate", "up"}))
}

func Test_commandLine_token(t *testing.T) {
	cli, stdout, _ := setup(t)

	if err := cli.run(context.Background(), []string{"admin", "token", "-subject", "op-1", "-email", "op@tutorhub.test"}); err != nil {
		t.Fatalf("cli.run() unexpected error = %v", err)
	}

	claims := new(echoapi.Claims)
	_, err := jwt.ParseWithClaims(strings.TrimSpace(stdout.String()), claims, func(*jwt.Token) (interface{}, error) {
		return []byte(cli.conf.SecretKey), nil
	})
	if err != nil {
		t.Fatalf("jwt.ParseWithClaims() error = %v", err)
	}
	assert.Equal(t, "op-1", claims.Subject)
	assert.Equal(t, "op@tutorhub.test", claims.Email)
	assert.True(t, claims.IsAdmin)
}

func Test_commandLine_token_prodDevKey(t *testing.T) {
	t.Setenv("ENV", "PROD")
	t.Setenv("TUTORHUB_SECRETKEY", "")
	cli, stdout, _ := setup(t)
	cli.conf = core.NewConfig()

	err := cli.run(context.Background(), []string{"admin", "token", "-subject", "op-1"})
	checkErr(t, cliTest{wantErrStr: "development default"}, err)
	assert.Empty(t, stdout.String())
}
