package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/0022papa/kiwoom-bot/internal/config"
	"github.com/0022papa/kiwoom-bot/internal/logger"
	"github.com/0022papa/kiwoom-bot/internal/models"
	"github.com/0022papa/kiwoom-bot/internal/persistence"
	"github.com/0022papa/kiwoom-bot/internal/server"
	"github.com/0022papa/kiwoom-bot/internal/store"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	flag.Parse()

	_ = godotenv.Load()

	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("failed to load config: %v", err)
	}
	logger.InitLogger(cfg.LogConfig)
	log := logger.S()

	st, err := store.Open(cfg.Store)
	if err != nil {
		log.Fatalf("failed to open store (%s backend at %s): %v", cfg.Store.Backend, cfg.Store.Path, err)
	}
	defer st.Close()

	repo := persistence.NewRepository(st, log)
	sessions := server.NewSessionManager(cfg.Password)
	if !sessions.Enabled() {
		log.Warn("no dashboard password configured, authentication is disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.CleanupDays > 0 {
		go runCleanup(ctx, st, cfg.CleanupDays)
	}

	srv := server.New(cfg.Addr, server.NewRouter(log, repo, sessions), log)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
	log.Info("control process stopped")
}

// runCleanup prunes old log records and completed commands once a day.
func runCleanup(ctx context.Context, st store.Store, days int) {
	log := logger.S()
	retention := time.Duration(days) * 24 * time.Hour

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		removed, err := st.Cleanup(time.Now().Add(-retention))
		if err != nil {
			log.Errorw("store cleanup failed", "error", err)
		} else if removed > 0 {
			log.Infow("store cleanup finished", "removed", removed, "retention_days", days)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
