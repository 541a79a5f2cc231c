// Command boiler-controller holds a boiler at its set point with a PID loop
// driving a PWM heating element, and records every decision to SQLite.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sweeney/boiler-controller/internal/config"
	"github.com/sweeney/boiler-controller/internal/logging"
)

// DefaultConfigPath is used when --config is not given.
const DefaultConfigPath = "/etc/boiler-controller/config.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "boiler-controller",
		Short:        "PID temperature controller for a PWM-driven boiler",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", DefaultConfigPath, "config file path (yaml)")

	root.AddCommand(
		newRunCmd(&configPath),
		newServeCmd(&configPath),
		newHistoryCmd(&configPath),
		newProbeCmd(),
	)
	return root
}

// setup loads the config and builds the process logger writing to w.
func setup(path string, w io.Writer) (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(w, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// signalContext returns a context cancelled by the first SIGINT or SIGTERM,
// with the signal name as its cause. Later signals are logged and ignored so
// teardown is never re-entered. stop releases the handler.
func signalContext(parent context.Context, log *logrus.Entry) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancelCause(parent)
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		watchSignals(sigCh, cancel, log)
		close(done)
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		close(sigCh)
		<-done
		cancel(nil)
	}
}

// watchSignals cancels on the first signal and ignores the rest until sigCh
// is closed.
func watchSignals(sigCh <-chan os.Signal, cancel context.CancelCauseFunc, log *logrus.Entry) {
	first := true
	for s := range sigCh {
		name := signalName(s)
		if first {
			log.WithField("signal", name).Info("shutting down")
			cancel(errors.New(name))
			first = false
			continue
		}
		log.WithField("signal", name).Warn("shutdown already in progress")
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return fmt.Sprintf("SIGNAL(%v)", s)
	}
}
