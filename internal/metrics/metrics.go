// Package metrics exposes controller telemetry to Prometheus.
//
// All methods are safe on a nil *Metrics, so callers may run without metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "boiler"

// Metrics holds the controller collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	temperature prometheus.Gauge
	setPoint    prometheus.Gauge
	duty        prometheus.Gauge
	terms       *prometheus.GaugeVec
	phase       *prometheus.GaugeVec
	cycles      prometheus.Counter
	skipped     prometheus.Counter
	faults      *prometheus.CounterVec
	cycleTime   prometheus.Histogram

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Last valid vessel temperature reading.",
		}),
		setPoint: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "set_point_celsius",
			Help:      "Configured target temperature.",
		}),
		duty: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "duty_cycle_percent",
			Help:      "Heating element duty cycle last commanded.",
		}),
		terms: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pid_term",
			Help:      "Last PID quantities (error, integral, derivative).",
		}, []string{"term"}),
		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "controller_phase",
			Help:      "1 for the controller's current phase, 0 otherwise.",
		}, []string{"phase"}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_cycles_total",
			Help:      "Control cycles that commanded the actuator.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_cycles_total",
			Help:      "Cycles skipped because the sensor was not ready.",
		}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faults_total",
			Help:      "Faults caught at the control loop boundary, by class.",
		}, []string{"class"}),
		cycleTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Time spent in a control cycle, excluding the sleep.",
			Buckets:   prometheus.DefBuckets,
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.reg.MustRegister(
		m.temperature,
		m.setPoint,
		m.duty,
		m.terms,
		m.phase,
		m.cycles,
		m.skipped,
		m.faults,
		m.cycleTime,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// SetPoint records the configured target.
func (m *Metrics) SetPoint(c float64) {
	if m == nil {
		return
	}
	m.setPoint.Set(c)
}

// Phase marks name as the current controller phase.
func (m *Metrics) Phase(name string, all []string) {
	if m == nil {
		return
	}
	for _, p := range all {
		v := 0.0
		if p == name {
			v = 1
		}
		m.phase.WithLabelValues(p).Set(v)
	}
}

// Cycle records a completed control decision.
func (m *Metrics) Cycle(temperature, errorTerm, integral, derivative, duty float64, took time.Duration) {
	if m == nil {
		return
	}
	m.temperature.Set(temperature)
	m.duty.Set(duty)
	m.terms.WithLabelValues("error").Set(errorTerm)
	m.terms.WithLabelValues("integral").Set(integral)
	m.terms.WithLabelValues("derivative").Set(derivative)
	m.cycles.Inc()
	m.cycleTime.Observe(took.Seconds())
}

// Duty records a duty cycle commanded outside a normal cycle (e.g. shutdown).
func (m *Metrics) Duty(duty float64) {
	if m == nil {
		return
	}
	m.duty.Set(duty)
}

// Skipped records a not-ready cycle.
func (m *Metrics) Skipped() {
	if m == nil {
		return
	}
	m.skipped.Inc()
}

// Fault records a fault of the given class.
func (m *Metrics) Fault(class string) {
	if m == nil {
		return
	}
	m.faults.WithLabelValues(class).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts and times requests to route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
