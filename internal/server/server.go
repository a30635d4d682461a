// Package server exposes the market queries as a local HTTP JSON service.
// Every data endpoint answers with the query's view: the last good data,
// its fetch state and the latest error, so a failed refresh still serves
// what the cache holds.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/derickschaefer/coinwatch/internal/coingecko"
	"github.com/derickschaefer/coinwatch/internal/model"
	"github.com/derickschaefer/coinwatch/internal/query"
)

// Options configures a Server.
type Options struct {
	Addr        string
	Limit       int // default page size for /api/coins
	Logger      *slog.Logger
	Version     string
	Environment string
	Now         func() time.Time
}

// Server serves the market API.
type Server struct {
	market  *query.Market
	opts    Options
	log     *slog.Logger
	started time.Time
	handler http.Handler
}

// New builds a Server over market.
func New(market *query.Market, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Environment == "" {
		opts.Environment = "development"
	}
	s := &Server{market: market, opts: opts, log: opts.Logger, started: opts.Now()}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/coins", s.handleTop)
	mux.HandleFunc("GET /api/coins/{id}", s.handleDetail)
	mux.HandleFunc("GET /api/coins/{id}/chart", s.handleChart)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/cache", s.handleCache)
	s.handler = s.withRequestLog(mux)
	return s
}

// Handler returns the root handler, request logging included.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.log.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := s.opts.Now()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"timestamp":      now.UTC().Format(time.RFC3339),
		"uptime_seconds": now.Sub(s.started).Seconds(),
		"environment":    s.opts.Environment,
		"version":        s.opts.Version,
	})
}

func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", s.opts.Limit, 1, 250)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	writeView(w, s.market.Top(limit).Get(r.Context()))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	v := s.market.Search(q).Get(r.Context())
	if !v.HasData && v.Err == nil {
		// blank query: nothing to match
		v.Data, v.HasData = []model.CryptocurrencySummary{}, true
	}
	writeView(w, v)
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	writeView(w, s.market.Detail(r.PathValue("id")).Get(r.Context()))
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", 7, 1, 365)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	writeView(w, s.market.Chart(r.PathValue("id"), days).Get(r.Context()))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", s.opts.Limit, 1, 250)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	writeView(w, s.market.Refresh(r.Context(), limit))
}

type cacheEntry struct {
	Key       string     `json:"key"`
	HasValue  bool       `json:"has_value"`
	Fetching  bool       `json:"fetching"`
	Fetches   int        `json:"fetches"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Error     *apiError  `json:"error,omitempty"`
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	snaps := s.market.Cache().Entries()
	out := make([]cacheEntry, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, cacheEntry{
			Key:       snap.Key.String(),
			HasValue:  snap.HasValue,
			Fetching:  snap.Fetching,
			Fetches:   snap.Fetches,
			UpdatedAt: timePtr(snap.UpdatedAt),
			Error:     errorOf(snap.Err),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

// ─── Responses ────────────────────────────────────────────────────────────────

type apiError struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type viewResponse struct {
	Data       any        `json:"data"`
	IsLoading  bool       `json:"is_loading"`
	IsFetching bool       `json:"is_fetching"`
	Error      *apiError  `json:"error,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// writeView answers 200 whenever data is present, even alongside an error.
func writeView[T any](w http.ResponseWriter, v query.View[T]) {
	resp := viewResponse{
		IsLoading:  v.IsLoading,
		IsFetching: v.IsFetching,
		Error:      errorOf(v.Err),
		UpdatedAt:  timePtr(v.UpdatedAt),
	}
	status := http.StatusOK
	if v.HasData {
		resp.Data = v.Data
	} else if v.Err != nil {
		status = StatusFor(v.Err)
	}
	writeJSON(w, status, resp)
}

// StatusFor maps a classified provider error to an HTTP status.
func StatusFor(err error) int {
	switch coingecko.KindOf(err) {
	case coingecko.KindRateLimited:
		return http.StatusTooManyRequests
	case coingecko.KindNotFound:
		return http.StatusNotFound
	case coingecko.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func errorOf(err error) *apiError {
	if err == nil {
		return nil
	}
	k := coingecko.KindOf(err)
	return &apiError{Kind: k.String(), Message: coingecko.UserMessage(err), Retryable: k.Retryable()}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error": apiError{Kind: "bad_request", Message: err.Error()},
	})
}

// intParam parses an optional integer query parameter within [lo, hi].
func intParam(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("%s must be an integer between %d and %d", name, lo, hi)
	}
	return n, nil
}

// ─── Middleware ───────────────────────────────────────────────────────────────

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withRequestLog tags each request with an X-Request-ID and logs its outcome.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		level := slog.LevelDebug
		if rec.status >= 500 {
			level = slog.LevelWarn
		}
		s.log.Log(r.Context(), level, "http request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
