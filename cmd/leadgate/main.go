// Package main wires together the leadgate gateway binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/torqlist/leadgate/internal/api"
	"github.com/torqlist/leadgate/internal/blob"
	"github.com/torqlist/leadgate/internal/clock/system"
	"github.com/torqlist/leadgate/internal/config"
	"github.com/torqlist/leadgate/internal/logging"
	"github.com/torqlist/leadgate/internal/notify"
	"github.com/torqlist/leadgate/internal/pipeline"
	"github.com/torqlist/leadgate/internal/proxy"
	"github.com/torqlist/leadgate/internal/store"
	"github.com/torqlist/leadgate/internal/store/fallback"
	"github.com/torqlist/leadgate/internal/store/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fallbackStore, err := fallback.New(cfg.Fallback.Path)
	if err != nil {
		logger.Fatal("fallback store init failed", zap.Error(err))
	}

	// An empty DSN is a supported deployment shape: every signup lands in
	// the fallback store and readiness reports fallback-only.
	var primary store.Backend
	var prober store.Prober
	if cfg.DB.DSN != "" {
		pg, err := postgres.New(ctx, postgres.Config{
			DSN:          cfg.DB.DSN,
			Table:        cfg.DB.Table,
			MaxConns:     cfg.DB.MaxConns,
			MinConns:     cfg.DB.MinConns,
			ProbeTimeout: cfg.ProbeTimeout(),
		})
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		defer pg.Close()
		primary = pg
		prober = pg
	} else {
		logger.Warn("db.dsn not configured, running fallback-only")
	}

	var admin notify.AdminNotifier = notify.NoOpNotifier{}
	if cfg.Notify.ProjectID != "" && cfg.Notify.TopicName != "" {
		pub, err := notify.NewPubSubNotifier(ctx, cfg.Notify.ProjectID, cfg.Notify.TopicName, logger.Named("notify"))
		if err != nil {
			logger.Warn("pubsub notifier init failed, notifications disabled", zap.Error(err))
		} else {
			defer func() {
				if closeErr := pub.Close(); closeErr != nil {
					logger.Warn("pubsub notifier close failed", zap.Error(closeErr))
				}
			}()
			admin = pub
		}
	}
	ack := &notify.LogAckSender{From: cfg.Notify.AckFrom, Logger: logger.Named("ack")}
	dispatcher := notify.NewDispatcher(admin, ack, 10*time.Second, logger.Named("notify"))

	var archive blob.Provider
	switch cfg.Blob.Provider {
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("gcs client init failed", zap.Error(err))
		}
		gcsProvider, err := blob.NewGCSProvider(client, cfg.Blob.GCSBucket)
		if err != nil {
			logger.Fatal("gcs provider init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := gcsProvider.Close(); closeErr != nil {
				logger.Warn("gcs provider close failed", zap.Error(closeErr))
			}
		}()
		archive = gcsProvider
	case "local":
		localProvider, err := blob.NewLocalProvider(cfg.Blob.BaseDir)
		if err != nil {
			logger.Fatal("local blob provider init failed", zap.Error(err))
		}
		archive = localProvider
	default:
		archive = blob.NoOpProvider{}
	}

	clock := system.New()
	pl := pipeline.New(primary, prober, fallbackStore, dispatcher, clock, logger.Named("pipeline"))
	chat := proxy.NewChatProxy(cfg.LLM.CompletionURL, cfg.LLM.Model, cfg.LLM.SystemPrompt, logger.Named("chat"))
	analyzer := proxy.NewAnalysisProxy(cfg.Backend.BaseURL, cfg.BackendTimeout(), logger.Named("analyze"))

	apiServer := api.NewServer(pl, chat, analyzer, archive, prober, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
