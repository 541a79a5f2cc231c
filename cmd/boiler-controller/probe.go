package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/boiler-controller/internal/controller"
	"github.com/sweeney/boiler-controller/internal/sensor"
)

func newProbeCmd() *cobra.Command {
	var (
		dir      string
		id       string
		interval time.Duration
		count    int
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Print elapsed_seconds,temperature from the thermometer without driving the heater",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return errors.New("--interval must be positive")
			}
			bus, err := sensor.NewW1Bus(dir, sensor.Modprobe{})
			if err != nil {
				return err
			}
			th, err := sensor.Open(bus, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "probing %s every %v\n", th.ID(), interval)
			return probe(cmd.Context(), th, cmd.OutOrStdout(), interval, count)
		},
	}
	cmd.Flags().StringVar(&dir, "w1-dir", sensor.DefaultDevicesDir, "one-wire devices directory")
	cmd.Flags().StringVar(&id, "sensor", "", "thermometer id (default: first found)")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "time between reads")
	cmd.Flags().IntVar(&count, "count", 0, "number of readings to print (0 runs until interrupted)")
	return cmd
}

// probe prints one "elapsed_seconds,temperature" line per valid reading.
// Not-ready readings are skipped and do not count towards count.
func probe(ctx context.Context, th controller.Thermometer, w io.Writer, interval time.Duration, count int) error {
	start := time.Now()
	printed := 0
	for count <= 0 || printed < count {
		temp, ok, err := th.Read()
		switch {
		case errors.Is(err, sensor.ErrBadReading):
		case err != nil:
			return err
		case ok:
			fmt.Fprintf(w, "%.3f,%.3f\n", time.Since(start).Seconds(), temp)
			printed++
			if count > 0 && printed >= count {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
	return nil
}
