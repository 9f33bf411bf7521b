package cmd

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/goconflux/internal/config"
	"github.com/3leaps/goconflux/internal/observability"
	"github.com/3leaps/goconflux/internal/server"
	"github.com/3leaps/goconflux/internal/server/handlers"
	"github.com/3leaps/goconflux/pkg/dispatch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion HTTP API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "Listen host (overrides config)")
	serveCmd.Flags().Int("port", 0, "Listen port (overrides config)")
}

// dbHealthChecker pings the relational store.
type dbHealthChecker struct {
	db *sql.DB
}

func (c dbHealthChecker) CheckHealth(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.GetConfig()
	logger := observability.Logger

	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack, err := buildStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	dispatcher := dispatch.New(stack.tracker, stack.runner,
		cfg.Ingest.Workers, cfg.Ingest.QueueDepth, logger)

	handlers.SetVersionInfo("goconflux", versionInfo.Version)
	handlers.InitHealthManager(versionInfo.Version)
	hm := handlers.GetHealthManager()
	hm.RegisterChecker("database", dbHealthChecker{db: stack.db})
	if stack.analytics != nil {
		hm.RegisterChecker("analytics", stack.analytics)
	}
	if stack.search != nil {
		hm.RegisterChecker("search", stack.search)
	}

	srv := server.New(cfg.Server.Host, cfg.Server.Port)
	srv.MountAPI(handlers.NewIngestAPI(dispatcher, stack.tracker,
		cfg.Ingest.UploadDir, cfg.Ingest.MaxJSONRecords, s3OptionsFromConfig(cfg), logger))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", srv.Addr()),
			zap.Int("workers", cfg.Ingest.Workers))
		errCh <- srv.Start(server.Timeouts{
			Read:  cfg.Server.ReadTimeout,
			Write: cfg.Server.WriteTimeout,
			Idle:  cfg.Server.IdleTimeout,
		})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warn("dispatcher shutdown incomplete", zap.Error(err))
	}
	return <-errCh
}
