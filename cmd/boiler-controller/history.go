package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/boiler-controller/internal/logging"
	"github.com/sweeney/boiler-controller/internal/store"
	"github.com/sweeney/boiler-controller/internal/web"
)

func newHistoryCmd(configPath *string) *cobra.Command {
	var (
		window time.Duration
		asCSV  bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Plot the recorded temperature over a window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if window <= 0 {
				return errors.New("--window must be positive")
			}
			cfg, logger, err := setup(*configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			st, err := store.Open(cfg.DBPath, store.Options{ReadOnly: true, Log: logging.Component(logger, "store")})
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer func() {
				if err := st.Close(); err != nil {
					logger.WithError(err).Debug("close store")
				}
			}()

			rows, err := st.QuerySince(cmd.Context(), time.Now().Add(-window))
			if err != nil {
				return err
			}
			if asCSV {
				return writeCSV(cmd.OutOrStdout(), rows)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), web.Plot(rows, window))
			return err
		},
	}
	cmd.Flags().DurationVar(&window, "window", web.DefaultWindow, "how far back to look")
	cmd.Flags().BoolVar(&asCSV, "csv", false, "print rows as CSV instead of a plot")
	return cmd
}

func writeCSV(w io.Writer, rows []store.Sample) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"timestamp", "temp", "proportional", "integral", "derivative", "duty_cycle"})
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, s := range rows {
		cw.Write([]string{
			s.Timestamp.UTC().Format(store.TimeLayout),
			f(s.Temperature), f(s.Proportional), f(s.Integral), f(s.Derivative), f(s.DutyCycle),
		})
	}
	cw.Flush()
	return cw.Error()
}
