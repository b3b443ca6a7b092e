package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/malbeclabs/rentreclaim/api/metrics"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/reclaimer"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Reclaimer is the pipeline the API exposes.
type Reclaimer interface {
	Discover(ctx context.Context) []reclaimer.SponsoredAccount
	Evaluate(ctx context.Context, accounts []reclaimer.SponsoredAccount) []reclaimer.ReclaimableAccount
	ReclaimBatch(ctx context.Context, accounts []reclaimer.ReclaimableAccount) []reclaimer.ReclaimResult
	RunFullCycle(ctx context.Context) reclaimer.CycleResult
	GetStats(scanned []reclaimer.SponsoredAccount, reclaimable []reclaimer.ReclaimableAccount) reclaimer.RentStats
	SignerAddress() string
	TreasuryAddress() string
	MinBalance() uint64
	AccountAgeThreshold() int
}

// CycleStore holds the most recent full cycle.
type CycleStore interface {
	Last() *reclaimer.CycleResult
	Record(cycle reclaimer.CycleResult)
	Ready() bool
}

type Config struct {
	Logger    *slog.Logger
	Reclaimer Reclaimer
	Cycles    CycleStore
	// AllowedOrigins lists CORS origins. When empty only localhost origins are
	// allowed.
	AllowedOrigins []string
	// MutationLimiter throttles endpoints that submit transactions. Defaults to
	// two requests per minute per client.
	MutationLimiter *RateLimiter
	RequestTimeout  time.Duration
	// TrustProxy takes the client address from proxy headers. Enable only when
	// the API sits behind a proxy that overwrites them.
	TrustProxy bool
	Build      BuildInfo
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Reclaimer == nil {
		return errors.New("reclaimer is required")
	}
	if cfg.Cycles == nil {
		return errors.New("cycle store is required")
	}
	if cfg.MutationLimiter == nil {
		cfg.MutationLimiter = NewRateLimiter(rate.Every(30*time.Second), 2)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Minute
	}
	return nil
}

// Server serves the dashboard JSON API.
type Server struct {
	log    *slog.Logger
	cfg    Config
	router *chi.Mux
}

func NewServer(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		log:    cfg.Logger,
		cfg:    cfg,
		router: chi.NewRouter(),
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	if s.cfg.TrustProxy {
		s.router.Use(middleware.RealIP)
	}
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.Middleware)
	s.router.Use(s.corsHandler())

	s.router.Get("/readyz", s.handleReady)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.RequestTimeout))
			r.Get("/config", s.handleConfig)
			r.Get("/accounts", s.handleAccounts)
			r.Get("/stats", s.handleStats)
			r.Get("/version", s.handleVersion)
			r.Get("/cycle/results", s.handleCycleResults)
		})
		// Mutations are not bounded by RequestTimeout.
		r.Group(func(r chi.Router) {
			r.Use(RateLimitMiddleware(s.cfg.MutationLimiter))
			r.Post("/reclaim", s.handleReclaim)
			r.Post("/cycle", s.handleCycle)
		})
	})
}

func (s *Server) corsHandler() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}
	if len(s.cfg.AllowedOrigins) > 0 {
		opts.AllowedOrigins = s.cfg.AllowedOrigins
	} else {
		opts.AllowOriginFunc = func(_ *http.Request, origin string) bool {
			return isLocalhostOrigin(origin)
		}
	}
	return cors.Handler(opts)
}

// isLocalhostOrigin reports whether the given Origin header value is a localhost origin.
func isLocalhostOrigin(origin string) bool {
	return strings.HasPrefix(origin, "http://localhost") ||
		strings.HasPrefix(origin, "https://localhost") ||
		strings.HasPrefix(origin, "http://127.0.0.1") ||
		strings.HasPrefix(origin, "https://127.0.0.1")
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.cfg.Cycles.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("waiting for first cycle"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	r := s.cfg.Reclaimer
	s.writeJSON(w, http.StatusOK, ConfigResponse{
		Signer:                  r.SignerAddress(),
		Treasury:                r.TreasuryAddress(),
		MinBalanceLamports:      r.MinBalance(),
		MinBalanceSOL:           reclaimer.LamportsToSOL(r.MinBalance()),
		AccountAgeThresholdDays: r.AccountAgeThreshold(),
	})
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	scanned := s.cfg.Reclaimer.Discover(r.Context())
	reclaimable := s.cfg.Reclaimer.Evaluate(r.Context(), scanned)
	if r.Context().Err() != nil {
		// The timeout middleware answers with 504.
		return
	}
	s.writeJSON(w, http.StatusOK, AccountsResponse{
		Scanned:     toAccounts(scanned),
		Reclaimable: toReclaimable(reclaimable),
		Stats:       toStats(s.cfg.Reclaimer.GetStats(scanned, reclaimable)),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	var stats reclaimer.RentStats
	if last := s.cfg.Cycles.Last(); last != nil {
		stats = s.cfg.Reclaimer.GetStats(last.Scanned, last.Reclaimable)
	} else {
		stats = s.cfg.Reclaimer.GetStats(nil, nil)
	}
	s.writeJSON(w, http.StatusOK, toStats(stats))
}

func (s *Server) handleReclaim(w http.ResponseWriter, r *http.Request) {
	dryRun := false
	if v := r.URL.Query().Get("dry_run"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "dry_run must be a boolean")
			return
		}
		dryRun = parsed
	}

	scanned := s.cfg.Reclaimer.Discover(r.Context())
	reclaimable := s.cfg.Reclaimer.Evaluate(r.Context(), scanned)
	if err := r.Context().Err(); err != nil {
		s.writeError(w, http.StatusGatewayTimeout, "scan did not finish: "+err.Error())
		return
	}

	resp := ReclaimResponse{
		DryRun:      dryRun,
		Reclaimable: toReclaimable(reclaimable),
		Results:     []ResultResponse{},
	}
	if !dryRun {
		results := s.cfg.Reclaimer.ReclaimBatch(r.Context(), reclaimable)
		resp.Results = toResults(results)
		for _, res := range results {
			if res.Success {
				resp.Succeeded++
				resp.Reclaimed += res.Lamports
			} else {
				resp.Failed++
			}
		}
		resp.ReclaimedSOL = reclaimer.LamportsToSOL(resp.Reclaimed)
		s.log.Info("api: reclaim requested",
			"request_id", middleware.GetReqID(r.Context()),
			"attempted", len(results),
			"succeeded", resp.Succeeded,
			"reclaimed_lamports", resp.Reclaimed)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	cycle := s.cfg.Reclaimer.RunFullCycle(r.Context())
	s.cfg.Cycles.Record(cycle)
	s.log.Info("api: cycle requested", "request_id", middleware.GetReqID(r.Context()), "cycle_id", cycle.ID)

	s.writeJSON(w, http.StatusOK, CycleResponse{
		ID:          cycle.ID,
		StartedAt:   cycle.StartedAt,
		FinishedAt:  cycle.FinishedAt,
		Scanned:     toAccounts(cycle.Scanned),
		Reclaimable: toReclaimable(cycle.Reclaimable),
		Results:     toResults(cycle.Results),
		Stats:       toStats(s.cfg.Reclaimer.GetStats(cycle.Scanned, cycle.Reclaimable)),
	})
}

// handleCycleResults pages through the reclaim results of the most recent
// cycle.
func (s *Server) handleCycleResults(w http.ResponseWriter, r *http.Request) {
	last := s.cfg.Cycles.Last()
	if last == nil {
		s.writeError(w, http.StatusNotFound, "no cycle has completed yet")
		return
	}
	s.writeJSON(w, http.StatusOK, Paginate(toResults(last.Results), ParsePagination(r, DefaultLimit)))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("api: failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}
