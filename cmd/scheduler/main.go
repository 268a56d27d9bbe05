package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"famledger/internal/app"
	"famledger/internal/shared/config"
	"famledger/internal/shared/logging"
	"famledger/internal/shared/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}

	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("Application error")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.NewDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			MetricsAddr:  cfg.Telemetry.MetricsAddr,
		}, deps.Health, log)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), deps.ShutdownTimeout())
			defer cancel()
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				log.WithError(err).Warn("Error shutting down telemetry")
			}
		}()
	}

	if !cfg.Scheduler.Enabled {
		log.Info("Scheduler is disabled; waiting for shutdown signal")
		<-ctx.Done()
		return nil
	}

	sched, err := deps.NewScheduler()
	if err != nil {
		return err
	}
	sched.Start()

	for _, e := range sched.Entries() {
		log.WithFields(logrus.Fields{
			"job":  e.Name,
			"spec": e.Spec,
			"next": e.Next,
		}).Info("Job scheduled")
	}

	<-ctx.Done()
	log.Info("Shutting down scheduler...")
	sched.Shutdown(deps.ShutdownTimeout())
	log.Info("Scheduler stopped")
	return nil
}
