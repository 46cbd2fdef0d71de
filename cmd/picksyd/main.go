package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/picksy/syncd/internal/config"
	"github.com/picksy/syncd/internal/events"
	"github.com/picksy/syncd/internal/handlers"
	"github.com/picksy/syncd/internal/importer"
	"github.com/picksy/syncd/internal/library"
	custommw "github.com/picksy/syncd/internal/middleware"
	"github.com/picksy/syncd/internal/observability"
	"github.com/picksy/syncd/internal/replication"
	"github.com/picksy/syncd/internal/store/docstore"
	"github.com/picksy/syncd/internal/supervisor"
)

const serviceName = "picksyd"

var version = "dev"

func main() {
	if err := run(); err != nil {
		observability.GetLogger().WithError(err).Error("picksyd exited")
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			observability.Errorf("Invalid configuration: %v", cfgErr)
		}
		return err
	}
	observability.Configure(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry, err := observability.Initialize(ctx, observability.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    cfg.Telemetry.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(shutdownCtx)
	}()

	// Initialize the document store
	if cfg.Store.UsePostgres() {
		observability.Info("Using PostgreSQL document store")
	} else {
		observability.Info("Using SQLite document store")
	}
	st, err := docstore.Open(docstore.Options{
		DataDir:     cfg.Store.DataDir,
		DatabaseURL: cfg.Store.DatabaseURL,
		DeviceName:  cfg.Store.DeviceName,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	pipelineMetrics, err := observability.NewPipelineMetrics()
	if err != nil {
		return err
	}
	httpMetrics, err := observability.NewHTTPMetrics()
	if err != nil {
		return err
	}

	// Library and its collaborators
	hub := events.NewHub()
	svc := library.NewService(st, hub, library.Options{
		Pipeline: library.PipelineConfig{
			BatchSize:         cfg.Pipeline.BatchSize,
			QueueCapacity:     cfg.Pipeline.QueueCapacity,
			Policy:            library.QueuePolicy(cfg.Pipeline.QueuePolicy),
			HeartbeatInterval: cfg.Pipeline.HeartbeatInterval,
			Timeout:           cfg.Pipeline.Timeout,
		},
		MaxAttachmentSize: cfg.Pipeline.MaxAttachmentSize,
		BridgeMinInterval: cfg.Bridge.MinInterval,
		Metrics:           pipelineMetrics,
	})
	im := importer.New(svc, importer.Config{
		EnqueueBatchSize: cfg.Import.EnqueueBatchSize,
		ThumbnailSize:    cfg.Import.ThumbnailSize,
	})
	link := replication.NewLink(replication.Config{
		AppID:              cfg.Store.AppID,
		SharedToken:        cfg.Store.SharedToken,
		AuthURL:            cfg.Store.AuthURL,
		WebsocketURL:       cfg.Store.WebsocketURL,
		ReconnectDelay:     cfg.Replication.ReconnectDelay,
		BreakerMaxFailures: cfg.Replication.BreakerMaxFailures,
		BreakerTimeout:     cfg.Replication.BreakerTimeout,
	}, st)

	var verifier *custommw.KeyVerifier
	if cfg.Server.APIKey != "" {
		if verifier, err = custommw.NewKeyVerifier(cfg.Server.APIKey); err != nil {
			return err
		}
	} else {
		observability.Warn("No API key configured; the command surface is unauthenticated")
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Service:         svc,
		Importer:        im,
		Hub:             hub,
		Sync:            st,
		APIKey:          verifier,
		APIKeyHeader:    cfg.Server.APIKeyHeader,
		CORSOrigins:     cfg.Server.CORSOrigins,
		RateLimitReqs:   cfg.Server.RateLimitReqs,
		RateLimitWindow: cfg.Server.RateLimitWindow,
		Metrics:         httpMetrics,
		ServiceName:     serviceName,
	})
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // Longer for folder imports
		IdleTimeout:  60 * time.Second,
	}

	// Supervisor tree
	tree := supervisor.NewTree(supervisor.TreeConfig{ShutdownTimeout: cfg.Server.ShutdownTimeout})
	tree.AddStoreService(link)
	tree.AddSyncService(supervisor.Named("state-actor", svc.State()))
	tree.AddSyncService(supervisor.Named("upsert-pipeline", svc.Pipeline()))
	tree.AddSyncService(supervisor.Named("change-bridge", svc.Bridge()))
	tree.AddSyncService(supervisor.Named("presence-tracker", svc.Presence()))
	tree.AddAPIService(supervisor.Named("event-hub", hub))
	tree.AddAPIService(supervisor.NewHTTPServerService(srv, cfg.Server.ShutdownTimeout))

	treeCtx, cancelTree := context.WithCancel(context.Background())
	defer cancelTree()
	done := tree.ServeBackground(treeCtx)

	if err := svc.Start(ctx); err != nil {
		cancelTree()
		<-done
		return err
	}
	observability.Infof("picksyd %s listening on %s (peer %s)", version, cfg.Server.Address, st.LocalPeerKey())

	<-ctx.Done()
	observability.Info("Shutting down...")

	// Stop accepting work and let the pipeline write what is queued
	svc.Stop()
	select {
	case <-svc.Pipeline().Drained():
	case <-time.After(cfg.Server.ShutdownTimeout):
		observability.Warn("upsert pipeline did not drain before the shutdown timeout")
	}
	cancelTree()
	<-done
	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		observability.Warnf("%d services missed the shutdown timeout", len(report))
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := svc.FlushState(flushCtx); err != nil {
		observability.GetLogger().WithError(err).Warn("final state write failed")
	}

	observability.Info("Server stopped")
	return nil
}
