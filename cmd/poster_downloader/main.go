package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/italolelis/poster_downloader/internal/cleanup"
	"github.com/italolelis/poster_downloader/internal/config"
	"github.com/italolelis/poster_downloader/internal/downloader"
	"github.com/italolelis/poster_downloader/internal/downloader/progress"
	"github.com/italolelis/poster_downloader/internal/fetcher"
	"github.com/italolelis/poster_downloader/internal/http/rest"
	"github.com/italolelis/poster_downloader/internal/logctx"
	"github.com/italolelis/poster_downloader/internal/notifier"
	"github.com/italolelis/poster_downloader/internal/records"
	"github.com/italolelis/poster_downloader/internal/storage"
	"github.com/italolelis/poster_downloader/internal/storage/sqlite"
	"github.com/italolelis/poster_downloader/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	serviceName    = "poster_downloader"
	defaultCSVFile = "anime.csv"
	failureLogName = "download.log"
)

var version = "dev"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [csv-file]\n\nDownloads the posters of csv-file (relative to the data directory, default %s).\n", serviceName, defaultCSVFile)
	}
	flag.Parse()

	csvFile := defaultCSVFile
	if flag.NArg() > 0 {
		csvFile = flag.Arg(0)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, csvFile); err != nil {
		slog.Error("fatal error", "err", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, csvFile string) error {
	paths, err := config.LoadPaths(cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	// =========================================================================
	// Start Logging
	failureLog, err := logctx.OpenFailureLog(filepath.Join(paths.LogPath, failureLogName))
	if err != nil {
		return err
	}
	defer failureLog.Close()

	logger := logctx.NewLogger(os.Stdout, cfg.SlogLevel(), failureLog)
	slog.SetDefault(logger)

	ctx = logctx.WithLogger(ctx, logger)

	logger.InfoContext(ctx, "poster downloader starting...", "log_level", cfg.LogLevel, "version", version)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to start telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Load Records
	tasks, err := loadTasks(ctx, filepath.Join(paths.DataPath, csvFile), cfg)
	if err != nil {
		return err
	}

	// =========================================================================
	// Start Cleanup
	if _, err := cleanup.DeleteStaleTempFiles(ctx, paths.ImagesPath, cfg.StaleTempAge); err != nil {
		logger.WarnContext(ctx, "failed to delete stale temp files", "err", err)
	}

	// =========================================================================
	// Start Database
	var repo storage.OutcomeRepository

	if cfg.DBPath != "" {
		database, err := sqlite.InitDB(cfg.DBPath)
		if err != nil {
			logger.Error("DB error", "err", err)

			return err
		}
		defer database.Close()

		repo = sqlite.NewInstrumentedOutcomeRepository(database, tel)
	}

	// =========================================================================
	// Start Downloader
	tracker := progress.New(40)

	client := fetcher.NewInstrumentedClient(fetcher.NewClient(fetcher.Options{
		Timeout: cfg.FetchTimeout,
		Retry: fetcher.RetryPolicy{
			MaxAttempts:      cfg.RetryMaxAttempts,
			BaseBackoff:      cfg.RetryBackoff,
			MaxBackoff:       cfg.RetryMaxBackoff,
			RetryStatusCodes: cfg.RetryStatusCodes,
		},
		MaxIdleConnsPerHost: cfg.MaxParallel,
		UserAgent:           serviceName + "/" + version,
	}), tel)

	opts := []downloader.Option{
		downloader.WithTelemetry(tel),
		downloader.WithProgress(tracker),
	}
	if repo != nil {
		opts = append(opts, downloader.WithStore(repo))
	}

	d := downloader.NewDownloader(paths.ImagesPath, cfg.MaxParallel, client, opts...)

	batchID := uuid.NewString()
	ctx = logctx.WithBatchID(ctx, batchID)

	// =========================================================================
	// Start API Service
	statusHandler := rest.NewStatusHandler(tracker, repo, tel)
	statusHandler.SetBatch(batchID, true)

	if cfg.Web.BindAddress != "" {
		server := setupServer(ctx, statusHandler, cfg)

		go func() {
			logger.InfoContext(ctx, "Initializing API support", "host", cfg.Web.BindAddress)

			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.ErrorContext(ctx, "status server stopped", "err", err)
			}
		}()

		defer shutdownServer(ctx, server, cfg)
	}

	// =========================================================================
	// Run Batch
	progressCtx, stopProgress := context.WithCancel(ctx)
	progressDone := make(chan struct{})

	go func() {
		defer close(progressDone)

		tracker.Run(progressCtx, os.Stderr, 250*time.Millisecond)
	}()

	report, err := d.DownloadBatch(ctx, tasks)

	stopProgress()
	<-progressDone

	statusHandler.SetBatch(batchID, false)

	if err != nil {
		return fmt.Errorf("failed to run batch: %w", err)
	}

	byKind := make(map[string]int)
	for kind, n := range report.ByKind() {
		byKind[string(kind)] = n
	}

	fmt.Fprintln(os.Stderr, progress.Summary(report.BatchID, tracker.Snapshot(), byKind))

	// =========================================================================
	// Start Notification
	if cfg.DiscordWebhookURL != "" {
		notif := notifier.NewDiscordNotifier(cfg.DiscordWebhookURL)

		if err := notif.Notify(context.WithoutCancel(ctx), notifier.BatchMessage(report)); err != nil {
			logger.ErrorContext(ctx, "failed to send notification", "err", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("batch interrupted: %w", err)
	}

	return nil
}

// loadTasks reads the records file, drops the rows without poster and turns
// the rest into download tasks.
func loadTasks(ctx context.Context, path string, cfg *config.Config) ([]downloader.Task, error) {
	logger := logctx.LoggerFromContext(ctx)

	table, err := records.ReadCSV(path)
	if err != nil {
		return nil, err
	}

	filtered, err := records.DropMissing(table, cfg.URLColumn)
	if err != nil {
		return nil, fmt.Errorf("failed to filter records: %w", err)
	}

	tasks, skipped, err := records.Tasks(filtered, cfg.IDColumn, cfg.URLColumn)
	if err != nil {
		return nil, fmt.Errorf("failed to build tasks: %w", err)
	}

	logger.InfoContext(ctx, "records loaded",
		"file", path,
		"records", table.Len(),
		"missing_poster", table.Len()-filtered.Len(),
		"skipped", skipped,
		"tasks", len(tasks),
	)

	return tasks, nil
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(ctx context.Context, h *rest.StatusHandler, cfg *config.Config) *http.Server {
	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      otelhttp.NewHandler(h.Routes(), "status"),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

func shutdownServer(ctx context.Context, server *http.Server, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	// Give outstanding requests a deadline for completion.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("failed to gracefully shutdown the server", "err", err)

		if err = server.Close(); err != nil {
			logger.Error("could not stop server gracefully", "err", err)
		}
	}
}
