package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diewo77/go-budgets/actor"
	"github.com/diewo77/go-budgets/internal/config"
	"github.com/diewo77/go-budgets/internal/server"
	"github.com/diewo77/go-budgets/internal/services"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// Load environment variables from .env file
	_ = godotenv.Load()

	if err := RootCommand(config.Load()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// RootCommand creates and returns the root command
func RootCommand(cfg *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "budgets",
		Short:        "IT budget financial consistency engine",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		serveCommand(cfg),
		migrateCommand(cfg),
		prepareCommand(cfg),
		backfillCommand(cfg),
	)
	return rootCmd
}

func serveCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(cfg)
			app, err := NewApp(cfg, log)
			if err != nil {
				return err
			}
			defer app.Close()
			if err := app.backfill(cmd.Context()); err != nil {
				return fmt.Errorf("backfill available: %w", err)
			}

			srv := &http.Server{
				Addr:         ":" + cfg.Server.Port,
				Handler:      server.New(app.engine, app.db, app.registry, log),
				ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
				WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
				IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("server starting", "port", cfg.Server.Port, "dev", cfg.App.Dev, "driver", cfg.Database.Driver)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			// Wait for interrupt signal
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
			case <-ctx.Done():
				log.Info("shutdown signal received")
			}

			// Graceful shutdown with timeout
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			log.Info("server stopped gracefully")
			return nil
		},
	}
}

func migrateCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			app.Close()
			app.log.Info("migrations completed")
			return nil
		},
	}
}

func prepareCommand(cfg *config.Config) *cobra.Command {
	var in services.PrepareInput
	var preview bool
	cmd := &cobra.Command{
		Use:   "prepare-next-year",
		Short: "Draft next-year budgets from the source year and running maintenance contracts",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			defer app.Close()
			ctx := actor.WithActor(cmd.Context(), "cli")
			if in.TargetYear == 0 {
				in.TargetYear = in.SourceYear + 1
			}
			if preview {
				proposals, err := app.engine.Forecast.PreviewNextYear(ctx, in)
				if err != nil {
					return err
				}
				for _, p := range proposals {
					state := "new"
					if p.Exists {
						state = "exists"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%-10s %-7s %12s  %s\n", p.Nature, state, p.ForecastAmount.StringFixed(2), p.Label)
				}
				return nil
			}
			n, err := app.engine.Forecast.PrepareNextYear(ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d line(s) created for %d\n", n, in.TargetYear)
			return nil
		},
	}
	cmd.Flags().UintVar(&in.EntityID, "entity", 0, "entity id")
	cmd.Flags().IntVar(&in.SourceYear, "source", time.Now().Year(), "source exercise")
	cmd.Flags().IntVar(&in.TargetYear, "target", 0, "target exercise (source + 1 when omitted)")
	cmd.Flags().BoolVar(&preview, "dry-run", false, "list proposals without writing")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}

func backfillCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill-available",
		Short: "Rewrite every line balance as voted minus committed",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			defer app.Close()
			n, err := app.engine.Budgets.BackfillAvailable(actor.WithActor(cmd.Context(), "cli"))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d line balance(s) rewritten\n", n)
			return nil
		},
	}
}
