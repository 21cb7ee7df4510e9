package http

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autopeer-io/airtraffic/internal/pkg/metrics"
	middleware "github.com/autopeer-io/airtraffic/internal/pkg/middleware/http"
	"github.com/autopeer-io/airtraffic/pkg/log"
	"github.com/autopeer-io/airtraffic/pkg/options"
)

// ReadinessFunc reports whether the tower has finished its startup handshake.
type ReadinessFunc func() bool

type Server struct {
	server  *http.Server
	options *options.HttpOptions
	logger  log.Logger
}

func NewServer(opts *options.HttpOptions, ready ReadinessFunc, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Server{
		server: &http.Server{
			Addr:              opts.Addr,
			Handler:           NewRouter(ready, logger),
			ReadHeaderTimeout: opts.ReadHeaderTimeout,
		},
		options: opts,
		logger:  logger,
	}
}

// NewRouter exposes the metrics registry and the liveness and readiness probes.
func NewRouter(ready ReadinessFunc, logger log.Logger) *mux.Router {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	r := mux.NewRouter()
	r.Use(middleware.Logging(logger), middleware.Timeout(middleware.DefaultRequestTimeout))

	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	// Basic Liveness Probe
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	// Ready once every channel is connected and the start token has arrived.
	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil && !ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("waiting for channels"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	return r
}

func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen(s.options.Network, s.server.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("Starting HTTP Server", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.options.ShutdownTimeout)
		defer cancel()
		s.logger.Info("Shutting down HTTP Server")
		return s.server.Shutdown(shutdownCtx)
	}
}
