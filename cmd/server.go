package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HillviewCap/ferrocodex-sub002/advisory"
	"github.com/HillviewCap/ferrocodex-sub002/analyzer"
	"github.com/HillviewCap/ferrocodex-sub002/config"
	"github.com/HillviewCap/ferrocodex-sub002/db"
	"github.com/HillviewCap/ferrocodex-sub002/events"
	"github.com/HillviewCap/ferrocodex-sub002/logging"
	"github.com/HillviewCap/ferrocodex-sub002/notifier"
	"github.com/HillviewCap/ferrocodex-sub002/queue"
	"github.com/HillviewCap/ferrocodex-sub002/storage"
	"github.com/HillviewCap/ferrocodex-sub002/web"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the firmware analysis API server",
	Long: `Start the REST API server together with the background analysis queue.
Queued analyses keep running until the process receives SIGINT or SIGTERM;
shutdown waits for accepted jobs to drain before exiting.`,
	RunE: runServer,
}

var serverPort string

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().StringVarP(&serverPort, "port", "p", "", "API server port (overrides config)")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logging.Init(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	database, err := db.NewDatabase(cfg.Database.Driver, cfg.Database.GetDSN())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	store, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize firmware store: %w", err)
	}

	hub := events.NewHub()
	defer hub.Close()

	q := queue.New(database, database, store, buildAnalyzer(cfg), hub, database, queue.Options{
		Capacity: cfg.Queue.Capacity,
		Workers:  cfg.Queue.Workers,
		Notifier: buildNotifier(cfg),
	})

	port := serverPort
	if port == "" {
		port = cfg.Server.Port
	}

	server := web.NewServer(database, store, q, hub, buildAdvisoryClient(cfg), port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case sig := <-sigCh:
		log.Printf("Received %s, shutting down...", sig)
	}

	if err := server.Stop(); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Let accepted analysis jobs drain before exiting.
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := q.Shutdown(ctx); err != nil {
		log.Printf("Analysis queue did not drain cleanly: %v", err)
	}

	log.Println("Shutdown complete")
	return nil
}

func buildStore(cfg *config.Config) (storage.FirmwareStore, error) {
	switch cfg.Storage.Backend {
	case "minio":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return storage.NewMinioStore(ctx, cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.Bucket, cfg.Storage.UseSSL)
	default:
		return storage.NewLocalStore(cfg.Storage.LocalDir)
	}
}

func buildAnalyzer(cfg *config.Config) *analyzer.Analyzer {
	opts := []analyzer.Option{
		analyzer.WithTimeout(time.Duration(cfg.Analyzer.TimeoutSeconds) * time.Second),
	}

	if cfg.Analyzer.EnableBinwalk {
		scanner := analyzer.NewBinwalkScanner(cfg.Analyzer.BinwalkPath, cfg.Analyzer.TempDir, cfg.Analyzer.BinwalkTimeoutSecs)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := scanner.ValidateInstallation(ctx); err != nil {
			log.Printf("binwalk unavailable, signature scanning disabled: %v", err)
		} else {
			opts = append(opts, analyzer.WithSignatureScanner(scanner))
		}
	}

	return analyzer.New(opts...)
}

func buildNotifier(cfg *config.Config) queue.Notifier {
	if !cfg.Notification.Enabled || cfg.Notification.SlackWebhookURL == "" {
		return nil
	}
	return notifier.NewSlackNotifier(cfg.Notification.SlackWebhookURL, "Firmware Analyzer", cfg.Notification.SlackChannel, ":shield:")
}

func buildAdvisoryClient(cfg *config.Config) *advisory.Client {
	opts := []advisory.Option{}
	if cfg.Advisory.NVDBaseURL != "" {
		opts = append(opts, advisory.WithAPIBaseURL(cfg.Advisory.NVDBaseURL))
	}
	if cfg.Advisory.TimeoutSeconds > 0 {
		opts = append(opts, advisory.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Advisory.TimeoutSeconds) * time.Second}))
	}
	return advisory.NewClient(opts...)
}
