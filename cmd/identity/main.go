package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/bootstrap"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/config"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "identity",
		Short:         "Account registration and authentication service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := config.LoadIdentityConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log, err := bootstrap.NewLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Close()

			if migrate {
				if err := bootstrap.Migrate(ctx, cfg, log); err != nil {
					return fmt.Errorf("failed to migrate: %w", err)
				}
			}

			app, err := bootstrap.NewApp(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("failed to start: %w", err)
			}

			srv := server.New(cfg.HTTPPort, app.Handler())
			return server.Run(ctx, srv, log, bootstrap.ServiceName, func(context.Context) error {
				return app.Close()
			})
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending schema migrations before serving")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadStoreConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log, err := bootstrap.NewLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Close()

			return bootstrap.Migrate(cmd.Context(), cfg, log)
		},
	}
}
