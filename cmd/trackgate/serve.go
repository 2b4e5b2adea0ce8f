package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/neuralpositive/trackgate/internal/api"
	"github.com/neuralpositive/trackgate/internal/version"
)

func newServeCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the streaming gateway HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configFlag)
		},
	}
}

func runServe(configPath string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	go a.bus.Start()
	defer a.bus.Stop()

	router := api.NewRouter(api.RouterDeps{
		Catalog:       a.store,
		Proxy:         a.proxy,
		RepairService: a.repair,
		Resolver:      a.resolver,
		Index:         a.cache,
		URLs:          a.storage,
		Logger:        a.logger,
		BasePath:      a.cfg.Server.BasePath,
		Bucket:        a.cfg.Storage.Bucket,
		PublicBucket:  a.cfg.Storage.PublicBucket,
		SignedTTL:     a.cfg.Storage.SignedTTLSeconds,
		StreamFloor:   a.cfg.Matching.StreamFloor,
		CORSOrigins:   a.cfg.Server.CORSOrigins,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("version", version.Version))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
