package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/docwatch/internal/db"
	"github.com/raphaelgruber/docwatch/internal/engine"
	"github.com/raphaelgruber/docwatch/internal/server"
	"github.com/spf13/cobra"
)

var serveWipe bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tracker behind the HTTP and websocket bridge",
	Long: `Run the job tracker as a long-lived process.

Endpoints:
  GET  /health            liveness
  GET  /jobs              current snapshot (optional ?status=)
  GET  /jobs/{id}         one tracked job
  POST /jobs/{id}/retry   retry a job
  POST /cadence           {"mode":"foreground"|"background"}
  GET  /stats             operation timings and counters
  GET  /ws                live snapshot feed

With DOCWATCH_PERSIST=true, tracked jobs are mirrored to SurrealDB and
restored on the next start.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWipe, "wipe", false, "wipe persisted jobs on startup (testing only)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, col, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	if cfg.Persist {
		dbClient, err := connectDB(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := dbClient.Close(context.Background()); err != nil {
				logger.Error("failed to close database", "error", err)
			}
		}()

		if serveWipe {
			if err := dbClient.WipeData(ctx); err != nil {
				return fmt.Errorf("wipe database: %w", err)
			}
		}
		if _, err := eng.Restore(ctx, dbClient); err != nil {
			return err
		}

		snapshots, unsubscribe := eng.Store().Subscribe(64)
		defer unsubscribe()
		go func() {
			if err := dbClient.Mirror(ctx, snapshots); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("job mirror stopped", "error", err)
			}
		}()
	}

	if _, err := eng.Refresh(ctx); err != nil {
		logger.Warn("initial job list failed", "error", err)
	}
	if _, err := eng.RefreshActive(ctx); err != nil {
		logger.Warn("refresh of in-flight jobs failed", "error", err)
	}

	if cfg.ResyncInterval > 0 {
		resync, err := engine.NewResync(eng, cfg.ResyncInterval)
		if err != nil {
			return err
		}
		resync.Start()
		defer resync.Stop()
	}

	bridge := server.New(eng, logger, server.WithStats(col))
	httpServer := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     bridge,
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("host bridge listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	logger.Info("shutting down")
	eng.OnShutdown()
	bridge.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func connectDB(ctx context.Context) (*db.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	dbClient, err := db.NewClient(connectCtx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := dbClient.InitSchema(connectCtx); err != nil {
		_ = dbClient.Close(context.Background())
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return dbClient, nil
}
