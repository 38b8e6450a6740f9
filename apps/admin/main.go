package main

import (
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	dig_container "github.com/trezcool/masomo-economy/apps/di/dig"
	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/economy"
)

func main() {
	c := dig_container.New("ADMIN")

	var code int
	err := c.Invoke(func(conf *core.Config, logger core.Logger, db *sqlx.DB, eng *economy.Engine) {
		defer func() { _ = db.Close() }()

		// start CLI
		cli := commandLine{
			db:     db.DB,
			engine: conf.Database.Engine,
			eng:    eng,
			out:    os.Stdout,
		}
		if err := cli.run(os.Args); err != nil {
			if err != errHelp {
				logger.Error("admin command failed", err)
			}
			code = 1
		}
	})
	if err != nil {
		log.Fatal(err)
	}
	os.Exit(code)
}
