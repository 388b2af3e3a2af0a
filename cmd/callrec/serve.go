package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"callrec/internal/infra/control"
	"callrec/internal/infra/grant"
	"callrec/internal/observe"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		handler, shutdown, err := observe.InitProvider("callrec", version)
		if err != nil {
			return err
		}
		defer shutdown(context.Background())
		metricsHandler = handler
	}
	metrics := observe.DefaultMetrics()

	manager, err := buildManager(cfg, metrics, logger)
	if err != nil {
		return err
	}

	if cfg.Grant.Secret == "" {
		logger.Warn("grant.secret is empty, every capture request will be rejected")
	}
	if cfg.Control.AuthToken == "" {
		logger.Warn("control.auth_token is empty, control endpoints are unauthenticated")
	}

	server := control.NewServer(control.Options{
		Addr:           cfg.Control.Addr,
		AuthToken:      cfg.Control.AuthToken,
		RateLimit:      cfg.Control.RateLimit,
		MetricsHandler: metricsHandler,
		Metrics:        metrics,
	}, manager, grant.NewVerifier(cfg.Grant.Secret, cfg.Grant.Issuer), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if _, err := manager.Stop(stopCtx); err != nil {
			logger.Error("stopping capture on shutdown", "error", err)
		}
		return nil
	})

	return g.Wait()
}
