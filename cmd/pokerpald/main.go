// pokerpald runs the poker tournament daemon: it opens the database, wires
// the game engine to the tournament orchestrator, and sweeps running
// tournaments so play keeps moving without any in-process scheduler state.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/CodeSpent/pokerpal/internal/logging"
	"github.com/CodeSpent/pokerpal/pkg/broadcast"
	"github.com/CodeSpent/pokerpal/pkg/config"
	"github.com/CodeSpent/pokerpal/pkg/engine"
	"github.com/CodeSpent/pokerpal/pkg/store"
	"github.com/CodeSpent/pokerpal/pkg/tournament"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pokerpald: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "pokerpal.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}

	logMgr, err := logging.New(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer logMgr.Close()
	log := logMgr.Logger("MAIN")

	if err := os.MkdirAll(filepath.Dir(cfg.DB.Path), 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.Open(cfg.DB.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	var bcast broadcast.Broadcaster = broadcast.Nop{}
	if cfg.NATS.URL != "" {
		nb, err := broadcast.NewNATS(cfg.NATS.URL, logMgr.Logger("NATS"))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nb.Close()
		bcast = nb
		log.Infof("broadcasting to NATS at %s", cfg.NATS.URL)
	}

	game := engine.NewGameService(logMgr.Logger("GAME"), st, bcast, cfg.Game.TurnTimer.Std())
	orch := tournament.NewOrchestrator(logMgr.Logger("TRNY"), st, bcast, game, cfg.Game.StartCountdown.Std())
	game.SetHooks(orch)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("pokerpald started: db=%s sweep=%s turn_timer=%s",
		cfg.DB.Path, cfg.Game.SweepInterval, cfg.Game.TurnTimer)

	ticker := time.NewTicker(cfg.Game.SweepInterval.Std())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Infof("shutting down")
			return nil
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, cfg.Game.SweepInterval.Std()*2)
			if err := orch.Sweep(sweepCtx); err != nil {
				log.Errorf("sweep: %v", err)
			}
			cancel()
		}
	}
}
