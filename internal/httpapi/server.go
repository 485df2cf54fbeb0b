package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cloudpico-tag/internal/health"
	"cloudpico-tag/internal/utils"
)

type Options struct {
	// Component names the binary in request logs: "tag" or "gateway".
	Component string
	Registry  *prometheus.Registry
	// Report is optional; the gateway has no boot steps.
	Report    *health.Report
	Checks    map[string]Check
	Logger    *slog.Logger
}

// NewMux routes GET /healthz and, when a registry is set, /metrics. Anything
// else gets a JSON 404.
func NewMux(opts Options) *http.ServeMux {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, r, http.StatusNotFound, "no route for "+r.URL.Path)
	})
	mux.HandleFunc("GET /healthz", healthz(opts.Report, opts.Checks, logger))
	if opts.Registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// Serve listens on addr until ctx is done.
func Serve(ctx context.Context, addr string, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           requestLogger(logger, opts.Component, NewMux(opts)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("http: listening", "addr", addr, "component", opts.Component)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
