package main

import (
	"flag"
	"fmt"

	"github.com/trezcool/tutorhub/apps/api/echo"
)

func (cli *commandLine) token(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(cli.stdout)
	subject := fs.String("subject", "", "The operator ID the token is issued to.")
	name := fs.String("name", "", "The operator name.")
	email := fs.String("email", "", "The operator email.")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return err
		}
		return errHelp
	}
	if *subject == "" {
		fs.Usage()
		return errHelp
	}

	if err := cli.conf.RequireSecretKey(); err != nil {
		return err
	}

	token, err := echoapi.GenerateToken(cli.conf, echoapi.NewAdminClaims(cli.conf, *subject, *name, *email))
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cli.stdout, token)
	return nil
}
