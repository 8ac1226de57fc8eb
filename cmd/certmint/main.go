package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/certmint/certmint/pkg/api"
	"github.com/certmint/certmint/pkg/bus"
	"github.com/certmint/certmint/pkg/config"
	"github.com/certmint/certmint/pkg/gateway"
	"github.com/certmint/certmint/pkg/health"
	"github.com/certmint/certmint/pkg/jobstore"
	"github.com/certmint/certmint/pkg/log"
	"github.com/certmint/certmint/pkg/orchestrator"
	"github.com/certmint/certmint/pkg/pipeline"
	"github.com/certmint/certmint/pkg/qr"
	"github.com/certmint/certmint/pkg/templates"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "certmint",
	Short: "Certmint - batch PDF certificate generator",
	Long: `Certmint renders personalized PDF certificates in batches.

It consumes batch requests from NATS, renders each certificate from a
cached template, stamps a verification QR code onto it and uploads the
result to the file gateway, publishing per-item and per-batch events
along the way.`,
	Version: Version,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("certmint version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"certmint version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the certificate worker",
	Long: `Run the certificate worker daemon.

The worker subscribes to pdf.batch.requested and pdf.job.status.requested,
processes batches through the render pipeline and serves operational
endpoints (health, readiness, metrics, cache stats) over HTTP.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("config", "c", "", "Path to YAML config file")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %v", err)
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})
	logger := log.WithComponent("main")
	logger.Info().
		Str("version", Version).
		Str("layout", cfg.WorkerLayout).
		Str("store", cfg.StoreBackend).
		Msg("Starting certmint worker")

	store, err := jobstore.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to open job store: %v", err)
	}
	defer store.Close()

	gw := gateway.NewClient(gateway.Config{
		BaseURL:         cfg.GatewayURL,
		AccessKey:       cfg.GatewayAccessKey,
		SecretKey:       cfg.GatewaySecretKey,
		ProjectID:       cfg.GatewayProjectID,
		DownloadTimeout: cfg.DownloadTimeout,
		UploadTimeout:   cfg.UploadTimeout,
	})

	cache, err := templates.New(gw, templates.Config{
		Dir:           cfg.CacheDir,
		TTL:           cfg.TemplateCacheTTL,
		SweepInterval: cfg.CacheSweepInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to create template cache: %v", err)
	}
	cache.Start()
	defer cache.Stop()

	pipe, err := pipeline.New(cache, qr.New(qr.Config{}), gw, cfg.ScratchDir)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %v", err)
	}

	b, err := bus.Connect(bus.Config{URL: cfg.BusURL, Name: cfg.BusName})
	if err != nil {
		return err
	}

	orch := orchestrator.New(orchestrator.Config{
		Layout:       cfg.WorkerLayout,
		Parallelism:  cfg.ConcurrencyPerBatch,
		QueueWorkers: cfg.QueueWorkers,
	}, store, pipe, b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orch.Start(ctx)

	if err := b.SubscribeBatchRequests(ctx, orch); err != nil {
		return err
	}
	if err := b.SubscribeStatusRequests(ctx, orch); err != nil {
		return err
	}

	var ops *api.Server
	if cfg.OpsAddr != "" {
		checks := health.New(
			health.NewPingChecker("store", store),
			health.NewPingChecker("gateway", gw),
			health.NewConnChecker("bus", b.Connected),
			health.NewScratchChecker(cfg.ScratchDir),
		)
		ops = api.NewServer(checks, cache, Version)
		ops.Start(cfg.OpsAddr)
	}

	// Reap scratch directories orphaned by an earlier crash.
	sweepStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.CacheSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepStop:
				return
			case <-ticker.C:
				if removed := pipe.SweepScratch(cfg.CacheSweepInterval); removed > 0 {
					logger.Info().Int("removed", removed).Msg("Swept orphaned scratch directories")
				}
			}
		}
	}()

	logger.Info().Msg("Worker is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("Shutting down")

	// Intake stops first, then in-flight batches drain and publish their
	// final events while the connection is still alive. Only after that
	// does the connection flush and close.
	close(sweepStop)
	b.Stop()
	orch.Stop()
	b.Close()

	if ops != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		ops.Stop(shutdownCtx)
		shutdownCancel()
	}

	logger.Info().Msg("Shutdown complete")
	return nil
}
