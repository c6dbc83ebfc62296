/**
 * @description
 * Entry point for the scheduler. It runs the slot completion and subscription
 * expiry jobs on their cron schedules until SIGINT or SIGTERM.
 */
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/app"
	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/config"
	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/platform"
	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found, relying on environment\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	logger := platform.NewLogger(os.Stdout, cfg.LogLevel)

	ctx := context.Background()
	dbpool, err := platform.NewPool(ctx, cfg.DatabaseURL, platform.PoolSettings{MaxConns: 5, MinConns: 1})
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	repository := store.NewPostgresRepository(dbpool, cfg.EventsExchange)
	emitter := app.NewActivityEmitter(repository, logger)
	accounts := app.NewAccountService(repository, repository, emitter, logger)
	jobs := app.NewJobs(repository, accounts, logger)
	scheduler := app.NewScheduler(jobs, logger, app.ScheduleConfig{
		SlotCompletion:     cfg.SlotCompletionSchedule,
		SubscriptionExpiry: cfg.SubscriptionExpirySchedule,
	})

	if n := scheduler.Start(); n == 0 {
		logger.Warn("no jobs scheduled")
	}
	logger.Info("scheduler started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, stopping scheduler")
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	logger.Info("scheduler stopped gracefully")
}
