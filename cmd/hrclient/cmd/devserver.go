package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/jmcleod/hrclient/devserver"
	"github.com/jmcleod/hrclient/internal/config"
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run an in-memory HR backend for local development",
	Long: `Run an in-memory HR backend implementing the authentication endpoints.
It is seeded with admin/admin123 and user/user123; all state is lost on exit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd.Flags())
		if err != nil {
			return err
		}
		accessTTL, _ := cmd.Flags().GetDuration("access-ttl")
		refreshTTL, _ := cmd.Flags().GetDuration("refresh-ttl")

		dev, err := devserver.New(
			devserver.WithTokenTTL(accessTTL, refreshTTL),
			devserver.WithLogger(cfg.Logger(cmd.ErrOrStderr())),
		)
		if err != nil {
			return fmt.Errorf("failed to start development backend: %w", err)
		}

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Mount("/", dev.Handler())

		server := &http.Server{
			Addr:              cfg.DevAddr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		out := cmd.OutOrStdout()
		printBanner(out)
		fmt.Fprintf(out, "Listening on %s (API at %s, docs at %s/docs)\n", cfg.DevAddr, devserver.MountPath, devserver.MountPath)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(devserverCmd)
	devserverCmd.Flags().String("addr", "", "Listen address (env HRCLIENT_DEV_ADDR, default :5007)")
	devserverCmd.Flags().Duration("access-ttl", time.Hour, "Access token lifetime")
	devserverCmd.Flags().Duration("refresh-ttl", 30*24*time.Hour, "Refresh token lifetime")
}
