package main

func (cli *commandLine) migrate(args []string) error {
	return migrateFunc(cli.db.DB, cli.engine, args[0], args[1:]...)
}
