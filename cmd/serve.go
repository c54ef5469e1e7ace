package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"toolhub/app"
	"toolhub/config"
	"toolhub/db"
	"toolhub/logging"
	"toolhub/routes"
)

const shutdownTimeout = 10 * time.Second

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API on $PORT. Usage:

	toolhub serve
	toolhub serve --migrate
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		log := logging.New(cfg.LogLevel)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("start: %w", err)
		}
		defer a.Close()

		if serveMigrate {
			n, err := db.Migrate(a.DB)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info(ctx, "schema migrated", "overdue_normalized", n)
		}
		if _, err := app.BootstrapFirstAdmin(ctx, cfg, a.Repo, log); err != nil {
			log.Warn(ctx, "bootstrap admin", "err", err)
		}

		routes.RegisterRoutes(a.Router, a)

		srv := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           a.Router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() {
			log.Info(ctx, "listening", "addr", srv.Addr)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		log.Info(context.Background(), "shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "migrate the schema before serving")
}
