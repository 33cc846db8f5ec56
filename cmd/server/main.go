package main // Entry point package

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iliyamo/bank-report-review/internal/app"
	"github.com/iliyamo/bank-report-review/internal/config"
)

func main() {
	cfg := config.Load() // Load environment config
	log := config.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, app.Options{
		Config:    cfg,
		RateLimit: config.LoadRateLimitConfig(),
		Redis:     config.LoadRedisConfig(),
		Log:       log,
	})
	if err != nil {
		log.WithError(err).Fatal("startup failed")
	}

	errc := make(chan error, 1)
	go func() { errc <- a.Start(":" + cfg.Port) }()

	select {
	case err := <-errc: // server failed before a signal arrived
		a.Close()
		if err != nil {
			log.WithError(err).Fatal("server stopped")
		}
		return
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
