package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/claimscrub/internal/core/api"
	"github.com/solatis/claimscrub/internal/core/auth"
	"github.com/solatis/claimscrub/internal/core/config"
	"github.com/solatis/claimscrub/internal/core/metrics"
	"github.com/solatis/claimscrub/internal/core/server"
)

const Version = "0.1.0"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start gRPC scrub API service",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addConfigFlags(serveCmd, "host", "port", "data-dir", "metrics-port", "stop-on-deny", "workers",
		"max-batch", "budget", "max-samples", "test-timeout", "conflict-wait")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (set CS_HMAC_SECRET environment variable)")
	}
	authenticator := auth.NewAuthenticator(secrets, a.q)

	m := metrics.New()
	service, err := api.NewScrubService(a.engine(), a.store, a.cfg, m, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	if err := service.Reload(ctx); err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	grpcServer, err := server.NewGRPCServer(a.cfg, service, authenticator, m, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	a.logger.Info("starting claimscrub scrub api", "version", Version, "host", a.cfg.Host, "port", a.cfg.Port)
	errChan := make(chan error, 1)
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		a.logger.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return grpcServer.Shutdown(shutdownCtx)
	}
}
