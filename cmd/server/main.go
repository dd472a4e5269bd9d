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

	"go.uber.org/zap"

	"github.com/yourusername/dl-progress/api"
	"github.com/yourusername/dl-progress/api/handlers"
	"github.com/yourusername/dl-progress/internal/app"
	"github.com/yourusername/dl-progress/internal/domain"
	"github.com/yourusername/dl-progress/internal/infrastructure"
	"github.com/yourusername/dl-progress/pkg/logger"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	daemon     = flag.Bool("daemon", false, "Detach from the terminal and run in background")
)

func main() {
	flag.Parse()

	if *daemon {
		var args []string
		if *configPath != "" {
			args = append(args, "-config", *configPath)
		}
		if err := startAsDaemon(args); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := runServer(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func runServer() error {
	config, err := app.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	// Category logs: queue, registry, error
	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Fetch.LogsDir,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize category logs: %w", err)
	}
	defer multiLog.Close()

	log.Info("Starting dl-progress server",
		zap.String("version", handlers.Version),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.String("download_dir", config.Fetch.DownloadDir))

	if err := os.MkdirAll(config.Fetch.DownloadDir, 0755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	repo, err := infrastructure.NewSQLiteRepository(config.Queue.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := app.NewDispatcher(&config.Dispatch, log.Named("dispatch"))
	if err := dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}

	registry := app.NewRegistry(app.NewProgressStore(), app.NewNotifier(dispatcher, log), log.Named("registry"))
	if config.Registry.RestoreOnStart {
		restoreRegistry(registry, repo, log)
	}

	var snapshots domain.SnapshotRepository
	if config.Registry.PersistSnapshots {
		snapshots = repo
		registry.Subscribe(infrastructure.NewSnapshotRecorder(repo, registry.Get, log))
	}
	registry.Subscribe(infrastructure.NewEventLogger(multiLog))

	desktop := infrastructure.NewNotificationService(&config.Notification, log)
	if config.Notification.Enabled {
		registry.Subscribe(desktop)
	}

	fetcher := infrastructure.NewHTTPFetcher(&config.Fetch, infrastructure.NewDiskSpaceChecker(), log.Named("fetch"))
	fetchMgr := app.NewFetchManager(repo, fetcher, registry, &config.Fetch, log)
	queueMgr := app.NewQueueManager(repo, fetchMgr, &config.Queue, multiLog)

	if config.Fetch.AutoStartWorkers {
		if err := queueMgr.Start(ctx); err != nil {
			return fmt.Errorf("failed to start queue manager: %w", err)
		}
	}

	router := api.SetupRouter(api.Dependencies{
		Registry:    registry,
		Dispatcher:  dispatcher,
		QueueMgr:    queueMgr,
		FetchMgr:    fetchMgr,
		Snapshots:   snapshots,
		Logger:      log,
		LogsDir:     config.Fetch.LogsDir,
		DownloadDir: config.Fetch.DownloadDir,
	})

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("Received shutdown signal")
	case <-queueMgr.WaitForExit():
		log.Info("Queue manager triggered auto-exit (queue drained)")
	case err := <-serverErr:
		log.Error("HTTP server failed", zap.Error(err))
	}

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if queueMgr.IsRunning() {
		if err := queueMgr.Stop(); err != nil {
			log.Error("Error stopping queue manager", zap.Error(err))
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := dispatcher.Stop(); err != nil {
		log.Error("Error stopping dispatcher", zap.Error(err))
	}
	desktop.Wait()

	log.Info("Server exited")
	return nil
}

func restoreRegistry(registry *app.Registry, repo *infrastructure.SQLiteRepository, log *zap.Logger) {
	snapshots, err := repo.ListSnapshots()
	if err != nil {
		log.Warn("Failed to load snapshots", zap.Error(err))
		return
	}
	completions, err := repo.ListCompletions()
	if err != nil {
		log.Warn("Failed to load completions", zap.Error(err))
	}
	restored := registry.Restore(snapshots, completions)
	log.Info("Restored progress registry", zap.Int("snapshots", restored))
}
