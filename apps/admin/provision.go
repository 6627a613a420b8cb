package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/trezcool/tutorhub/core/provision"
)

func (cli *commandLine) provision(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("provision", flag.ContinueOnError)
	fs.SetOutput(cli.stdout)
	fs.Usage = func() {
		cli.printUsage()
		_, _ = fmt.Fprintln(cli.stdout, "\nprovision flags:")
		fs.PrintDefaults()
	}
	dryRun := fs.Bool("dry-run", false, "Count the records without calling the identity provider.")
	mode := fs.String("mode", string(provision.ModeInvite), "invite: send invitation emails; password: create accounts with a random password.")
	limit := fs.Int("limit", provision.DefaultLimit, "Maximum number of records to process.")
	offset := fs.Int("offset", 0, "Number of records to skip, in email order.")
	precheck := fs.Bool("precheck", false, "Skip emails the identity provider already knows before calling it.")
	report := fs.Bool("report", false, "Mail the run report to the configured recipients.")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return err
		}
		return errHelp // flag already printed the error and the usage
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return errHelp
	}

	m, err := provision.ParseMode(*mode)
	if err != nil {
		return err
	}
	cfg := provision.RunConfig{Mode: m, DryRun: *dryRun, Limit: *limit, Offset: *offset, Precheck: *precheck}
	if err = cfg.Validate(); err != nil {
		return err
	}

	if err = cli.promptServiceKey(); err != nil {
		return err
	}

	c, err := buildContainerFunc(ctx, cli.conf, cli.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			cli.logger.Warn(fmt.Sprintf("closing database: %v", err), err)
		}
	}()

	svc := c.Provisioner(provision.WithOutput(cli.stdout, cli.stderr))
	run, err := svc.Run(ctx, cfg)
	c.Metrics.RecordRun(run)
	cli.pushMetrics(ctx, c.Metrics.Push)
	if err != nil {
		return err
	}

	if *report {
		if err = c.SendReport(ctx, run); err != nil {
			// the run itself succeeded
			cli.logger.Warn(fmt.Sprintf("sending run report: %v", err), err)
		}
	}
	return nil
}

// promptServiceKey asks for the GoTrue service key when it is not configured and someone is at the terminal.
func (cli *commandLine) promptServiceKey() error {
	if cli.conf.Identity.Provider != "gotrue" || cli.conf.Identity.ServiceKey != "" || !isTerminalFunc(cli.stdin) {
		return nil
	}
	_, _ = fmt.Fprint(cli.stdout, "Enter identity provider service key:")
	key, err := readPasswordFunc(cli.stdin)
	_, _ = fmt.Fprintln(cli.stdout)
	if err != nil {
		return err
	}
	cli.conf.Identity.ServiceKey = string(key)
	return nil
}

func (cli *commandLine) pushMetrics(ctx context.Context, push func(ctx context.Context, url, job string) error) {
	if cli.conf.Metrics.PushgatewayURL == "" {
		return
	}
	if err := push(ctx, cli.conf.Metrics.PushgatewayURL, cli.conf.Metrics.JobName); err != nil {
		cli.logger.Warn(fmt.Sprintf("pushing metrics: %v", err), err)
	}
}
