package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/the-scouts/incognita-sub000/internal/config"
	"github.com/the-scouts/incognita-sub000/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve estimated district boundaries over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		handler, cleanup, err := buildHandler(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		return listenAndServe(ctx, srv)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildHandler wires the district source and, when a history database is
// configured, the run history into the HTTP handler.
func buildHandler(ctx context.Context, c *config.Config) (http.Handler, func(), error) {
	districts, closeDistricts, err := initDistrictSource(ctx, c)
	if err != nil {
		return nil, nil, err
	}

	var runs server.RunReader
	cleanup := closeDistricts
	if c.Store.HistoryPath != "" {
		hist, err := initHistory(ctx, c)
		if err != nil {
			closeDistricts()
			return nil, nil, err
		}
		runs = hist
		cleanup = func() {
			hist.Close() //nolint:errcheck
			closeDistricts()
		}
	}

	return server.New(districts, runs).Handler(), cleanup, nil
}

// listenAndServe runs srv until ctx is done, then shuts it down gracefully.
func listenAndServe(ctx context.Context, srv *http.Server) error {
	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("starting server", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}
