package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/ametov/dosewatch/internal/config"
	"github.com/ametov/dosewatch/internal/notify"
	"github.com/ametov/dosewatch/internal/scheduler"
	"github.com/ametov/dosewatch/internal/sweep"
)

// serveCmd runs the engine as a daemon: the foreground timer scheduler, the
// cron-driven background sweeps, and an optional metrics endpoint.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reminder engine",
	RunE:  serveHandler,
}

func serveHandler(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := buildLogger(cfg)

	repo, err := openRepo(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	notifier := buildNotifier(cfg, log)
	dispatcher := notify.Dispatcher{Notifier: notifier, Log: log}
	sweeper := &sweep.Sweeper{
		Repo:       repo,
		Dispatcher: dispatcher,
		Log:        log,
		Slack:      cfg.LookaheadSlack,
	}

	engine := scheduler.NewEngine(32)
	planner := &scheduler.Planner{
		Engine:         engine,
		Repo:           repo,
		Notifier:       notifier,
		Dispatcher:     dispatcher,
		Consume:        sweeper.ConsumeOne,
		Log:            log,
		NotifyBefore:   cfg.NotifyBefore,
		Horizon:        cfg.Horizon,
		RefireCooldown: cfg.ImmediateRefireCooldown,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine.Start()
	defer engine.Stop()
	go planner.Run(ctx)

	if cfg.CurvePath != "" {
		curve, err := loadCurve(cfg.CurvePath)
		if err != nil {
			return err
		}
		if err := planner.SetCurve(ctx, curve, time.Now()); err != nil {
			log.Warn().Err(err).Msg("curve recompute failed")
		}
	}
	if err := planner.SetEnabled(ctx, cfg.Enabled, time.Now()); err != nil {
		// Permission problems disable delivery but must not kill the
		// daemon: rules and records stay intact, simply undelivered.
		log.Warn().Err(err).Msg("foreground scheduling disabled")
	}

	wake := cron.New()
	if _, err := wake.AddFunc(cfg.SweepSchedule, func() {
		if _, err := sweeper.Sweep(ctx, time.Now()); err != nil {
			log.Error().Err(err).Msg("sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule sweeps: %w", err)
	}
	wake.Start()
	defer wake.Stop()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer srv.Close()
	}

	log.Info().Str("db", cfg.DBPath).Str("schedule", cfg.SweepSchedule).Msg("dosewatch started")
	<-ctx.Done()
	log.Info().Msg("dosewatch stopping")
	return nil
}
