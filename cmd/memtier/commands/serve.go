package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackms/memtier-go/internal/api"
)

var serveAddr string

// ServeCmd starts the HTTP API server with the background controller and
// promotion loops.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the memory engine HTTP server",
	Long: `Start the memory engine: the HTTP API, the resource controller's
monitoring loops, and the periodic promotion cycle.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := LoadApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		if serveAddr != "" {
			app.Config.Server.Addr = serveAddr
		}

		app.Resources.Start(ctx)
		defer app.Resources.Close()

		go runPromotionLoop(ctx, app)

		server := &http.Server{
			Addr: app.Config.Server.Addr,
			Handler: api.NewServer(app.Search, app.Resources, app.Promotion, app.Repo, app.Embedder,
				api.WithRecordIndex(app.Index),
				api.WithLogger(app.Logger)),
			ReadTimeout:  app.Config.Server.ReadTimeout,
			WriteTimeout: app.Config.Server.WriteTimeout,
		}

		errCh := make(chan error, 1)
		go func() {
			app.Logger.Info("server listening", slog.String("addr", server.Addr))
			errCh <- server.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			return fmt.Errorf("server: %w", err)
		case <-ctx.Done():
		}

		app.Logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	},
}

func runPromotionLoop(ctx context.Context, app *App) {
	interval := app.Config.Promotion.CycleInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := app.Promotion.AutomatedCycle(ctx); err != nil {
				app.Logger.Warn("promotion cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

func init() {
	ServeCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
}
