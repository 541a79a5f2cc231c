package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/boiler-controller/internal/logging"
	"github.com/sweeney/boiler-controller/internal/metrics"
	"github.com/sweeney/boiler-controller/internal/store"
	"github.com/sweeney/boiler-controller/internal/web"
)

func newServeCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard from the database without running the loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.HTTPAddr
			}
			if addr == "" {
				return errors.New("no listen address: set http_addr or --addr")
			}

			st, err := store.Open(cfg.DBPath, store.Options{ReadOnly: true, Log: logging.Component(logger, "store")})
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			log := logging.Component(logger, "web")
			defer func() {
				if err := st.Close(); err != nil {
					log.WithError(err).Debug("close store")
				}
			}()

			ctx, stop := signalContext(cmd.Context(), logging.Component(logger, "main"))
			defer stop()

			srv := web.New(web.Options{
				Addr:    addr,
				History: st,
				Metrics: metrics.New(),
				Log:     log,
			})
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			log.WithField("addr", addr).Info("dashboard listening")

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to http_addr)")
	return cmd
}
