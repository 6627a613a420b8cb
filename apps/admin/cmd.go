package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/tutorhub/apps/di"
	"github.com/trezcool/tutorhub/core"
	"github.com/trezcool/tutorhub/storage/database"
)

var (
	// mockable
	readPasswordFunc   = term.ReadPassword
	isTerminalFunc     = term.IsTerminal
	buildContainerFunc = di.New
	openDBFunc         = database.Open

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf   *core.Config
	logger core.Logger
	stdin  int // file descriptor the service key is prompted on
	stdout io.Writer
	stderr io.Writer
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.stdout, "Usage:")
	_, _ = fmt.Fprintln(cli.stdout, "  provision [-dry-run] [-mode invite|password] [-limit N] [-offset N] [-precheck] [-report]")
	_, _ = fmt.Fprintln(cli.stdout, "      provision the legacy user profiles into the identity provider (the default command)")
	_, _ = fmt.Fprintln(cli.stdout, "  migrate COMMAND [ARGS] - run a goose command against the legacy profile store")
	_, _ = fmt.Fprintln(cli.stdout, "  token -subject ID [-name NAME] [-email EMAIL] - print an admin token for the provisioning API")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	// provision is the default command
	if len(args) < 2 || strings.HasPrefix(args[1], "-") {
		return cli.provision(ctx, args[1:])
	}

	switch args[1] {
	case "help":
		cli.printUsage()
		return flag.ErrHelp
	case "provision":
		return cli.provision(ctx, args[2:])
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2:])
	case "token":
		return cli.token(args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) openDB(ctx context.Context) (*sqlx.DB, error) {
	if err := cli.conf.RequireDatabase(); err != nil {
		return nil, err
	}
	return openDBFunc(ctx, cli.conf)
}
