package main

import (
	"context"

	"github.com/trezcool/tutorhub/storage/database"
)

var gooseRunFunc = database.RunMigrations // mockable

func (cli *commandLine) migrate(ctx context.Context, args []string) error {
	db, err := cli.openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	return gooseRunFunc(ctx, db.DB, args[0], args[1:]...)
}
