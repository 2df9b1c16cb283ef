package synthd

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"synthdollar/native/collateral"
	"synthdollar/native/oracle"
	"synthdollar/storage/audit"
)

// Server exposes the accounting engine over HTTP. Mutating routes append to
// the audit trail; admin routes drive the manual price feeds.
type Server struct {
	engine  *collateral.Engine
	feeds   map[string]*oracle.ManualFeed
	audit   *audit.Store
	logger  *slog.Logger
	limiter *RateLimiter
}

// Config wires the server's collaborators.
type Config struct {
	Engine *collateral.Engine
	// Feeds maps asset symbols to the manual price feeds served by the admin
	// API. Deployments with external oracles leave this empty.
	Feeds  map[string]*oracle.ManualFeed
	Audit  *audit.Store
	Logger *slog.Logger
	Limits map[string]RateLimit
}

// NewServer constructs the HTTP surface.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:  cfg.Engine,
		feeds:   cfg.Feeds,
		audit:   cfg.Audit,
		logger:  logger,
		limiter: NewRateLimiter(cfg.Limits),
	}
}

// Router assembles the chi router with middleware and all routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.With(s.limiter.Middleware("mutate")).Group(func(r chi.Router) {
			r.Post("/collateral/deposit", s.handleDeposit)
			r.Post("/collateral/redeem", s.handleRedeem)
			r.Post("/debt/mint", s.handleMint)
			r.Post("/debt/burn", s.handleBurn)
			r.Post("/positions/open", s.handleOpenPosition)
			r.Post("/positions/close", s.handleClosePosition)
			r.Post("/liquidations", s.handleLiquidate)
		})

		r.With(s.limiter.Middleware("query")).Group(func(r chi.Router) {
			r.Get("/accounts/{address}", s.handleAccount)
			r.Get("/accounts/{address}/health", s.handleAccountHealth)
			r.Get("/solvency", s.handleSolvency)
			r.Get("/params", s.handleParams)
			r.Get("/assets", s.handleAssets)
			r.Get("/audit/recent", s.handleAuditRecent)
		})

		r.With(s.limiter.Middleware("admin")).Post("/admin/prices", s.handleSetPrice)
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
