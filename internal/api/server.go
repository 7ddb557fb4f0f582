// Package api serves live and historical aircraft positions over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"adsb_history/internal/feed"
	"adsb_history/internal/metrics"
	"adsb_history/internal/position"
	"adsb_history/internal/query"
)

// Fetcher returns the current feed snapshot.
type Fetcher interface {
	Fetch(ctx context.Context) (*feed.Feed, error)
}

// Store answers history queries.
type Store interface {
	Query(ctx context.Context, p query.PredicateSet) ([]position.Position, error)
	Ping(ctx context.Context) error
}

// Config holds configuration for the API server.
type Config struct {
	Port int
}

// Server provides REST access to live and stored positions.
type Server struct {
	fetcher Fetcher
	store   Store
	logger  *zap.Logger
	port    int
	now     func() time.Time

	// live coalesces concurrent snapshot requests into one feed fetch.
	live singleflight.Group
}

// NewServer creates a new API server.
func NewServer(fetcher Fetcher, store Store, logger *zap.Logger, cfg Config) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		fetcher: fetcher,
		store:   store,
		logger:  logger,
		port:    cfg.Port,
		now:     time.Now,
	}
}

// HTTPServer returns an http.Server bound to the configured port. The
// caller owns ListenAndServe and Shutdown.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              ":" + strconv.Itoa(s.port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Router returns the configured chi router.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	// Standard middleware.
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  zap.NewStdLog(s.logger.Named("http")),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.InstrumentHandler)

	// CORS for browser map clients.
	r.Use(corsMiddleware)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/positions/live", s.handleLive)
	r.Get("/positions/history", s.handleHistory)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}

// corsMiddleware adds CORS headers for browser access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Hello World"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	now := s.now().UTC().Format(time.RFC3339)
	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
			"time":   now,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   now,
	})
}

// LiveResponse is the body of /positions/live.
type LiveResponse struct {
	Aircraft []position.Position `json:"aircraft"`
}

// HistoryResponse is the body of /positions/history.
type HistoryResponse struct {
	Results []position.Position `json:"results"`
}

// handleLive normalizes a fresh feed snapshot without touching the store.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	v, err, shared := s.live.Do("live", func() (any, error) {
		// Detached so one caller disconnecting does not fail the others;
		// the feed client enforces its own timeout.
		f, err := s.fetcher.Fetch(context.WithoutCancel(r.Context()))
		if err != nil {
			return nil, err
		}
		return position.NormalizeAll(f.Aircraft, s.now()), nil
	})
	if err != nil {
		var fe *feed.FetchError
		if errors.As(err, &fe) {
			s.logger.Warn("live fetch failed", zap.String("url", fe.URL), zap.Int("status", fe.StatusCode), zap.Error(fe.Err))
		} else {
			s.logger.Error("live fetch failed", zap.Error(err))
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Debug("live snapshot served", zap.Bool("shared", shared))
	writeJSON(w, http.StatusOK, LiveResponse{Aircraft: v.([]position.Position)})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := query.Build(f, s.now())
	if err != nil {
		var ve *query.ValidationError
		if errors.As(err, &ve) {
			s.logger.Debug("rejected history query", zap.String("field", ve.Field))
			writeError(w, http.StatusBadRequest, ve.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	results, err := s.store.Query(r.Context(), p)
	if err != nil {
		s.logger.Error("history query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, HistoryResponse{Results: results})
}

// parseFilters reads the history query parameters. Absent or empty
// parameters are left unset.
func parseFilters(q url.Values) (query.Filters, error) {
	var (
		f   query.Filters
		err error
	)

	if f.Start, err = timeParam(q, "start"); err != nil {
		return f, err
	}
	if f.End, err = timeParam(q, "end"); err != nil {
		return f, err
	}

	f.Hex = q.Get("hex_code")
	f.Flight = q.Get("flight")
	f.Squawk = q.Get("squawk")
	f.Category = q.Get("category")

	floats := []struct {
		name string
		dst  **float64
	}{
		{"heading", &f.Heading},
		{"altitude_min", &f.AltitudeMin},
		{"altitude_max", &f.AltitudeMax},
		{"lat_min", &f.LatMin},
		{"lat_max", &f.LatMax},
		{"lon_min", &f.LonMin},
		{"lon_max", &f.LonMax},
	}
	for _, fl := range floats {
		if *fl.dst, err = floatParam(q, fl.name); err != nil {
			return f, err
		}
	}

	return f, nil
}

func floatParam(q url.Values, name string) (*float64, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q is not a number", name, raw)
	}
	return &v, nil
}

func timeParam(q url.Values, name string) (*time.Time, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	t, err := query.ParseTime(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return &t, nil
}

// Helper functions.

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
