package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tickerdesk/internal/app"
	"tickerdesk/internal/config"
	"tickerdesk/internal/httpapi"
	"tickerdesk/internal/store"
	"tickerdesk/internal/util"
)

func main() {
	_ = godotenv.Load()

	// Load config.
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// Setup logging.
	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	// Open the store and server.
	a, err := app.Open(cfg, logger)
	if err != nil {
		log.Fatalf("opening tickerdesk: %v", err)
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.Store.Load(ctx)
	logger.Info("watchlist loaded", "records", len(a.Store.Records()), "snapshot", a.Snapshot.Location())
	go a.Store.Run(ctx)

	var archive store.Archive
	if a.Archive != nil {
		archive = a.Archive
	}
	srv := httpapi.NewServer(a.Store, archive, logger, cfg.Server.AllowedOrigins...)

	// Start HTTP server.
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: srv.Handler(),
	}
	// Closing the store ends open event streams.
	httpServer.RegisterOnShutdown(a.Store.Close)

	go func() {
		logger.Info("tickerdesk server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down tickerdesk server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
