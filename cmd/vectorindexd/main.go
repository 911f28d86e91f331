// Command vectorindexd serves the vector index over HTTP: it parses
// configuration, recovers state from the snapshot + WAL on disk, runs
// the background snapshot ticker, and shuts down gracefully on
// SIGINT/SIGTERM, flushing a final snapshot first.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"vectorindex/internal/config"
	"vectorindex/internal/httpapi"
	"vectorindex/internal/logging"
	"vectorindex/internal/service"
)

func main() {
	cfg := config.Load(".env", os.Args[1:])
	logger := logging.NewStandardLogger(nil, logging.InfoLevel, "vectorindexd")

	if err := os.MkdirAll(filepath.Dir(cfg.SnapshotPath), 0o755); err != nil {
		logger.Error("failed to create snapshot directory: %v", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.WALPath), 0o755); err != nil {
		logger.Error("failed to create WAL directory: %v", err)
		os.Exit(1)
	}

	svcCfg := service.Config{
		SnapshotPath: cfg.SnapshotPath,
		WALPath:      cfg.WALPath,
		FsyncMode:    config.ParseFsyncMode(cfg.WALFsyncMode),
	}
	svc, err := service.Open(context.Background(), svcCfg, cfg.DefaultDimension, logger, nil)
	if err != nil {
		logger.Error("failed to open service: %v", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: httpapi.New(svc, logger),
	}

	stopTicker := make(chan struct{})
	if cfg.SnapshotIntervalSec > 0 {
		go runSnapshotTicker(svc, logger, time.Duration(cfg.SnapshotIntervalSec)*time.Second, stopTicker)
	}

	go func() {
		logger.Info("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed: %v", err)
			os.Exit(1)
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	<-signalChan
	logger.Info("shutting down")
	close(stopTicker)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error: %v", err)
	}

	if seq, err := svc.SaveSnapshot(); err != nil {
		logger.Error("final snapshot failed: %v", err)
	} else {
		logger.Info("final snapshot saved at sequence %d", seq)
	}
	logger.Info("stopped")
}

// runSnapshotTicker periodically saves a snapshot until stop is
// closed. Each tick is tagged with a correlation UUID purely for the
// log line; it never touches the on-disk format or the HTTP response.
func runSnapshotTicker(svc *service.Service, logger logging.Logger, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			opLogger := logger.WithOp(uuid.NewString())
			seq, err := svc.SaveSnapshot()
			if err != nil {
				opLogger.Error("background snapshot failed: %v", err)
				continue
			}
			opLogger.Debug("background snapshot saved at sequence %d", seq)
		case <-stop:
			return
		}
	}
}
