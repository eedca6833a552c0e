package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ametov/dosewatch/internal/config"
	"github.com/ametov/dosewatch/internal/notify"
	"github.com/ametov/dosewatch/internal/sweep"
)

// sweepCmd is the explicit wake: run exactly one background sweep and exit.
// It is what an OS-level periodic job invokes when the daemon is not running.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one background sweep and exit",
	RunE:  sweepHandler,
}

func sweepHandler(cmd *cobra.Command, args []string) error {
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

	sweeper := &sweep.Sweeper{
		Repo:       repo,
		Dispatcher: notify.Dispatcher{Notifier: buildNotifier(cfg, log), Log: log},
		Log:        log,
		Slack:      cfg.LookaheadSlack,
	}

	delivered, err := sweeper.Sweep(context.Background(), time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("delivered %d reminder(s)\n", delivered)
	return nil
}
