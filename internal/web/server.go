// Package web serves the boiler dashboard: the live reading, the controller
// status, the recorded history and Prometheus metrics.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/boiler-controller/internal/metrics"
	"github.com/sweeney/boiler-controller/internal/status"
	"github.com/sweeney/boiler-controller/internal/store"
)

// DefaultWindow is the history span when ?window= is absent.
const DefaultWindow = time.Hour

// History is the read side of the time-series store.
type History interface {
	Latest(ctx context.Context) (store.Sample, bool, error)
	QuerySince(ctx context.Context, since time.Time) ([]store.Sample, error)
}

// Options configure a Server. History is required.
type Options struct {
	Addr    string
	History History
	Tracker *status.Tracker // nil when serving a database without a running loop
	Metrics *metrics.Metrics
	Log     *logrus.Entry
	Now     func() time.Time
}

// Server serves the dashboard over HTTP.
type Server struct {
	httpServer *http.Server
	history    History
	tracker    *status.Tracker
	log        *logrus.Entry
	accessLog  io.WriteCloser
	now        func() time.Time
}

// New creates a Server.
func New(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Server{
		history:   opts.History,
		tracker:   opts.Tracker,
		log:       log,
		accessLog: log.WriterLevel(logrus.DebugLevel),
		now:       now,
	}

	r := mux.NewRouter()
	route := func(path string, h http.HandlerFunc) {
		r.Handle(path, opts.Metrics.WrapHandler(path, h)).Methods(http.MethodGet, http.MethodHead)
	}
	route("/", s.handleIndex)
	route("/index.html", s.handleIndex)
	route("/index.json", s.handleStatusJSON)
	route("/status", s.handleLatest)
	route("/history.json", s.handleHistory)
	route("/temps.txt", s.handlePlot)
	r.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)

	h := handlers.RecoveryHandler(handlers.RecoveryLogger(log), handlers.PrintRecoveryStack(true))(r)
	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      handlers.LoggingHandler(s.accessLog, h),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.accessLog.Close()
	return err
}

// window parses ?window= as a Go duration.
func window(r *http.Request) (time.Duration, error) {
	v := r.URL.Query().Get("window")
	if v == "" {
		return DefaultWindow, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("window: %w", err)
	}
	if d <= 0 {
		return 0, errors.New("window must be positive")
	}
	return d, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	latest, ok, err := s.history.Latest(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	page := indexPage{HasSample: ok, Latest: latest}
	if s.tracker != nil {
		snap := s.tracker.Snapshot()
		page.Snapshot = &snap
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, page); err != nil {
		s.log.WithError(err).Warn("render index")
	}
}

func (s *Server) handleStatusJSON(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		writeJSONError(w, http.StatusNotFound, "controller not running in this process")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	latest, ok, err := s.history.Latest(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	if !ok {
		writeJSONError(w, http.StatusNotFound, "no samples recorded")
		return
	}
	writeJSON(w, formatLatest(latest))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	rows, d, ok := s.query(w, r)
	if !ok {
		return
	}
	writeJSON(w, formatHistory(rows, d))
}

func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	rows, d, ok := s.query(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, Plot(rows, d))
}

// query returns the samples in the requested window, or writes an error.
func (s *Server) query(w http.ResponseWriter, r *http.Request) ([]store.Sample, time.Duration, bool) {
	d, err := window(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return nil, 0, false
	}
	rows, err := s.history.QuerySince(r.Context(), s.now().Add(-d))
	if err != nil {
		s.fail(w, err)
		return nil, 0, false
	}
	return rows, d, true
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.log.WithError(err).Error("query history")
	writeJSONError(w, http.StatusInternalServerError, "history unavailable")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
