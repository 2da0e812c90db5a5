package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"spatiallsm/pkg/config"
	"spatiallsm/pkg/dberrors"
	"spatiallsm/pkg/geometry"
	"spatiallsm/pkg/metrics"
	"spatiallsm/pkg/store"
)

const (
	contentTypeJSON        = "application/json"
	defaultHTTPPort        = 8080
	defaultShutdownTimeout = time.Second * 5
	defaultQueryLimit      = 1000
)

type iStoreAPI interface {
	Put(id uint64, box geometry.Box, value []byte) error
	Get(id uint64) (store.Object, error)
	Query(ctx context.Context, query geometry.Box, visit func(store.Object) bool) error
	Flush(ctx context.Context) error
	Stats() store.Stats
}

// Server exposes a store over HTTP.
type Server struct {
	store      iStoreAPI
	metrics    metrics.Collector
	exporter   http.Handler
	httpServer *http.Server
	cfg        config.ServerConfig
	URL        string
	addr       string
}

// NewServer creates a new server instance
func NewServer(st iStoreAPI, cfg config.ServerConfig) *Server {
	if cfg.Port == 0 {
		cfg.Port = defaultHTTPPort
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = time.Second
	}
	port := strconv.Itoa(cfg.Port)
	return &Server{
		store:   st,
		metrics: metrics.Noop{},
		cfg:     cfg,
		URL:     "http://localhost:" + port,
		addr:    ":" + port,
	}
}

// SetMetrics makes the server report request metrics to p and serve its
// registry on /metrics.
func (s *Server) SetMetrics(p *metrics.Prometheus) {
	s.metrics = p
	s.exporter = p.Handler()
}

// Start starts the server
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	s.httpServer = &http.Server{
		Handler:           s.createRouter(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("HTTP server started", "addr", s.URL)
	return nil
}

// Stop stops the server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	slog.Info("HTTP server stopped", "addr", s.URL)
	return nil
}

// createRouter builds chi router
func (s *Server) createRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api", func(r chi.Router) {
		r.Put("/points", s.handlePut)
		r.Get("/points/{id}", s.handleGet)
		r.Get("/query", s.handleQuery)
		r.Post("/flush", s.handleFlush)
		r.Get("/stats", s.handleStats)
	})

	return r
}

// instrument counts requests per route pattern and status.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		labels := map[string]string{
			"method": r.Method,
			"route":  route,
			"code":   strconv.Itoa(ww.Status()),
		}
		s.metrics.IncCounter(metrics.HTTPRequests, labels, 1)
		s.metrics.ObserveHistogram(metrics.HTTPRequestSeconds,
			map[string]string{"route": route}, time.Since(start).Seconds())
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Error encoding response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, dberrors.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, dberrors.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, dberrors.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, NewErrorResponse(err.Error()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewOKResponse())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.exporter != nil {
		s.exporter.ServeHTTP(w, r)
		return
	}
	if _, err := w.Write([]byte("# spatiallsm metrics disabled\n")); err != nil {
		slog.Warn("Failed to write metrics response", "error", err)
	}
}

// handlePut stores a point (x, y) or a box (x_min, x_max, y_min, y_max)
// under id.
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Failed to parse form"))
		return
	}

	id, err := strconv.ParseUint(r.FormValue("id"), 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing or invalid id"))
		return
	}

	var box geometry.Box
	if r.Form.Has("x") || r.Form.Has("y") {
		p, err := parseFloats(r, "x", "y")
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, NewErrorResponse(err.Error()))
			return
		}
		box = geometry.Point(id, p[0], p[1])
	} else {
		b, err := parseFloats(r, "x_min", "x_max", "y_min", "y_max")
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, NewErrorResponse(err.Error()))
			return
		}
		box = geometry.NewBox(id, id, b[0], b[1], b[2], b[3])
	}

	if err := s.store.Put(id, box, []byte(r.FormValue("value"))); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid id"))
		return
	}

	obj, err := s.store.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewObjectResponse(obj))
}

// handleQuery runs a window query. Omitted bounds are unbounded; limit caps
// the number of returned objects.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bounds := [4]float64{math.Inf(-1), math.Inf(1), math.Inf(-1), math.Inf(1)}
	for i, name := range []string{"x_min", "x_max", "y_min", "y_max"} {
		if !q.Has(name) {
			continue
		}
		v, err := strconv.ParseFloat(q.Get(name), 64)
		if err != nil || math.IsNaN(v) {
			s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid "+name))
			return
		}
		bounds[i] = v
	}

	limit := defaultQueryLimit
	if q.Has("limit") {
		n, err := strconv.Atoi(q.Get("limit"))
		if err != nil || n <= 0 {
			s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid limit"))
			return
		}
		limit = n
	}

	var (
		objs      []Object
		truncated bool
	)
	err := s.store.Query(r.Context(), geometry.Window(bounds[0], bounds[1], bounds[2], bounds[3]), func(obj store.Object) bool {
		if len(objs) == limit {
			truncated = true
			return false
		}
		objs = append(objs, toObject(obj))
		return true
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewQueryResponse(objs, truncated))
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Flush(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewStatsResponse(s.store.Stats()))
}

func parseFloats(r *http.Request, names ...string) ([]float64, error) {
	out := make([]float64, len(names))
	for i, name := range names {
		v, err := strconv.ParseFloat(r.FormValue(name), 64)
		if err != nil {
			return nil, fmt.Errorf("missing or invalid %s", name)
		}
		out[i] = v
	}
	return out, nil
}
