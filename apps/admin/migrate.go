package main

import (
	"github.com/darasahq/darasa/storage/database"
)

var gooseRunFunc = database.RunMigrationCommand // mockable

func (cli *commandLine) migrate(args []string) error {
	if len(args) == 0 {
		cli.printUsage()
		return errHelp
	}
	return gooseRunFunc(cli.db.DB, args[0], args[1:]...)
}
