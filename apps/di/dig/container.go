package dig_container

import (
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/economy"
	logsvc "github.com/trezcool/masomo-economy/services/logger"
	"github.com/trezcool/masomo-economy/storage/database"
	sqlxrepos "github.com/trezcool/masomo-economy/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// AppName is the prefix of the application logger, eg. "ADMIN" or "WORKER".
type AppName string

func newLogger(conf *core.Config, name AppName) core.Logger {
	stdLogger := log.New(os.Stdout, string(name)+" : ", log.LstdFlags)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB, conf.Database.Engine); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newStore(conf *core.Config, db *sqlx.DB) economy.Store {
	return sqlxrepos.NewStore(db, conf.Database.Engine)
}

func newPolicies(conf *core.Config, logger core.Logger) *core.Policies {
	pols, err := core.LoadPolicies(conf.PolicyFile)
	if err != nil {
		logger.Fatal(fmt.Sprintf("loading policies: %v", err), err)
	}
	return pols
}

func newClock() core.Clock {
	return core.SystemClock
}

// New returns a new dependency injection dig.Container
func New(name AppName) *dig.Container {
	c := dig.New()

	must(c.Provide(func() AppName { return name }))
	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newStore))
	must(c.Provide(newPolicies))
	must(c.Provide(newClock))
	must(c.Provide(economy.New))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
