package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sweeney/boiler-controller/internal/actuator"
	"github.com/sweeney/boiler-controller/internal/config"
	"github.com/sweeney/boiler-controller/internal/controller"
	"github.com/sweeney/boiler-controller/internal/logging"
	"github.com/sweeney/boiler-controller/internal/metrics"
	"github.com/sweeney/boiler-controller/internal/mqtt"
	"github.com/sweeney/boiler-controller/internal/sensor"
	"github.com/sweeney/boiler-controller/internal/status"
	"github.com/sweeney/boiler-controller/internal/store"
	"github.com/sweeney/boiler-controller/internal/web"
)

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the control loop (and the dashboard when http_addr is set)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context(), logging.Component(logger, "main"))
			defer stop()
			return runController(ctx, cfg, logger)
		},
	}
}

// runController wires the hardware, telemetry and dashboard around a
// controller.Controller and runs it until ctx is cancelled or it faults.
func runController(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	log := logging.Component(logger, "main")
	m := metrics.New()
	tracker := status.NewTracker(time.Now(), statusConfig(cfg))

	var pub mqtt.Publisher
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:             cfg.MQTT.Broker,
			ClientID:           cfg.MQTT.ClientID,
			Log:                logging.Component(logger, "mqtt"),
			OnConnectionChange: tracker.SetMQTTConnected,
		})
		if err != nil {
			log.WithError(err).Warn("mqtt telemetry disabled")
		} else {
			pub = p
			defer func() {
				if err := p.Close(); err != nil {
					log.WithError(err).Debug("close mqtt publisher")
				}
			}()
		}
	}

	history := &sharedHistory{}
	deps := controller.Deps{
		OpenSensor: func() (controller.Thermometer, error) {
			bus, err := sensor.NewW1Bus(cfg.W1DevicesDir, sensor.Modprobe{})
			if err != nil {
				return nil, err
			}
			return sensor.Open(bus, cfg.SensorID)
		},
		OpenActuator: actuator.NewOpener(cfg.GPIOChip),
		OpenStore: func() (controller.Recorder, error) {
			st, err := store.Open(cfg.DBPath, store.Options{
				Capacity: cfg.Controller.RetentionCapacity,
				Log:      logging.Component(logger, "store"),
			})
			if err != nil {
				return nil, err
			}
			history.set(st)
			return &detachingRecorder{Store: st, history: history}, nil
		},
		Publisher: pub,
		Tracker:   tracker,
		Metrics:   m,
		Log:       logging.Component(logger, "controller"),
	}

	if cfg.HTTPAddr != "" {
		srv := web.New(web.Options{
			Addr:    cfg.HTTPAddr,
			History: history,
			Tracker: tracker,
			Metrics: m,
			Log:     logging.Component(logger, "web"),
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("http server")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Debug("http server shutdown")
			}
		}()
		log.WithField("addr", cfg.HTTPAddr).Info("dashboard listening")
	}

	return controller.New(cfg.Controller, cfg.RelayPin, deps).Run(ctx)
}

func statusConfig(cfg config.Config) status.Config {
	c := cfg.Controller
	return status.Config{
		SetPoint:             c.SetPoint,
		Kp:                   c.Kp,
		Ki:                   c.Ki,
		Kd:                   c.Kd,
		MaxIntegral:          c.MaxIntegral,
		MaxErrorAccumulation: c.MaxErrorAccumulation,
		SamplePeriodMs:       c.SamplePeriod.Milliseconds(),
		PWMFrequency:         c.PWMFrequency,
		RetentionCapacity:    c.RetentionCapacity,
		RelayPin:             cfg.RelayPin,
		Broker:               cfg.MQTT.Broker,
		HTTPAddr:             cfg.HTTPAddr,
	}
}

var errStoreNotOpen = errors.New("store not open")

// detachingRecorder hides the store from the dashboard before closing it, so
// requests arriving during shutdown see errStoreNotOpen.
type detachingRecorder struct {
	*store.Store
	history *sharedHistory
}

func (r *detachingRecorder) Close() error {
	r.history.set(nil)
	return r.Store.Close()
}

// sharedHistory hands the controller's store to the dashboard once the
// controller has opened it.
type sharedHistory struct {
	mu sync.RWMutex
	st *store.Store
}

func (h *sharedHistory) set(st *store.Store) {
	h.mu.Lock()
	h.st = st
	h.mu.Unlock()
}

func (h *sharedHistory) get() *store.Store {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.st
}

func (h *sharedHistory) Latest(ctx context.Context) (store.Sample, bool, error) {
	st := h.get()
	if st == nil {
		return store.Sample{}, false, errStoreNotOpen
	}
	return st.Latest(ctx)
}

func (h *sharedHistory) QuerySince(ctx context.Context, since time.Time) ([]store.Sample, error) {
	st := h.get()
	if st == nil {
		return nil, errStoreNotOpen
	}
	return st.QuerySince(ctx, since)
}
