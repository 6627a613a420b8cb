package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/trezcool/tutorhub/apps/di"
	"github.com/trezcool/tutorhub/core"
)

func main() {
	os.Exit(run())
}

func run() int {
	conf := core.NewConfig()

	logger := di.NewLogger(conf, "ADMIN : ")
	defer logger.Close()

	core.ParseEmailTemplates(conf, logger)

	// interrupting stops the run between two records
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := commandLine{
		conf:   conf,
		logger: logger,
		stdin:  int(os.Stdin.Fd()),
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	if err := cli.run(ctx, os.Args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		if !errors.Is(err, errHelp) {
			_, _ = fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		return 1
	}
	return 0
}
