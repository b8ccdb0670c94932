// Package httpapi serves the operational HTTP surface: health, prometheus
// metrics, parity checks, run inspection and seed triggers.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodia-labs/cityseed/internal/core/ports/driving"
	"github.com/custodia-labs/cityseed/internal/logger"
)

// Default server timeouts.
const (
	DefaultAddr         = "127.0.0.1:8088"
	readHeaderTimeout   = 5 * time.Second
	requestTimeout      = 60 * time.Second
	shutdownGracePeriod = 10 * time.Second

	// seedRequestsPerMinute limits seed triggers per client IP.
	seedRequestsPerMinute = 10
)

// Server routes ops requests to the core services.
type Server struct {
	seeder    driving.Seeder
	publisher driving.Publisher
	metrics   http.Handler

	// runCtx parents seed runs started by POST requests so they outlive
	// the request but stop with the server.
	runCtx context.Context
	runs   sync.WaitGroup
}

// NewServer creates a server. publisher may be nil, in which case the
// parity route answers 503.
func NewServer(seeder driving.Seeder, publisher driving.Publisher) *Server {
	return &Server{
		seeder:    seeder,
		publisher: publisher,
		metrics:   promhttp.Handler(),
		runCtx:    context.Background(),
	}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", s.metrics)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(requestTimeout))

		r.Get("/runs/{runID}", s.getRun)
		r.Route("/cities/{city}", func(r chi.Router) {
			r.Get("/parity", s.getParity)
			r.Get("/runs", s.listRuns)
			r.With(httprate.LimitByIP(seedRequestsPerMinute, time.Minute)).Post("/seed", s.postSeed)
		})
	})

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down and waits
// for seed runs it started.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	runCtx, cancelRuns := context.WithCancel(ctx)
	defer cancelRuns()
	s.runCtx = runCtx

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ops server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	cancelRuns()
	s.runs.Wait()
	return err
}

// Wait blocks until every seed run started by the server has returned.
func (s *Server) Wait() {
	s.runs.Wait()
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debug("%s %s -> %d (%s, request %s)",
			r.Method, r.URL.Path, ww.Status(), time.Since(start), chimiddleware.GetReqID(r.Context()))
	})
}
