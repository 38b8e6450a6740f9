package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	dig_container "github.com/trezcool/masomo-economy/apps/di/dig"
	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/economy"
)

const shutdownTimeout = 30 * time.Second

func main() {
	c := dig_container.New("WORKER")

	err := c.Invoke(func(conf *core.Config, logger core.Logger, db *sqlx.DB, eng *economy.Engine) {
		logger.Info(fmt.Sprintf("Worker initializing : version %q", conf.Build))
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error("failed to close database", err)
			}
		}()
		defer logger.Info("Worker stopped")

		if len(conf.Tenants) == 0 {
			logger.Warn("no tenants configured; jobs will have nothing to do")
		}

		sched := NewScheduler(eng, conf.Tenants, logger)
		if err := sched.RegisterAll(conf.Worker.YieldCron, conf.Worker.SweepCron); err != nil {
			logger.Fatal(fmt.Sprintf("registering jobs: %v", err), err)
		}
		sched.Start()

		// =========================================================================
		// Shutdown

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		logger.Info("Start shutdown...")

		// give running jobs a deadline for completion
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sched.Stop(sctx); err != nil {
			if core.IsShutdown(err) {
				logger.Warn(err.Error())
				return
			}
			logger.Error("could not stop scheduler gracefully", err)
		}
	})
	if err != nil {
		log.Fatal(err)
	}
}
