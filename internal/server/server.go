package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/lazypower/amplifier/internal/engine"
	"github.com/lazypower/amplifier/internal/logging"
	"github.com/lazypower/amplifier/internal/store"
)

// Options tunes the server. RunEvery and RunBurst bound how often an
// analysis can be triggered over HTTP.
type Options struct {
	RunEvery time.Duration
	RunBurst int
}

// Server is the amplifier HTTP API server.
type Server struct {
	store   store.Store
	engine  *engine.Engine
	router  chi.Router
	version string
	started time.Time
	limiter *rate.Limiter
	log     *log.Logger
}

// New creates a Server over st. eng may be nil, in which case the run
// trigger answers 503.
func New(st store.Store, eng *engine.Engine, version string, opts Options) *Server {
	limit := rate.Inf
	if opts.RunEvery > 0 {
		limit = rate.Every(opts.RunEvery)
	}
	burst := opts.RunBurst
	if burst <= 0 {
		burst = 1
	}

	s := &Server{
		store:   st,
		engine:  eng,
		version: version,
		started: time.Now(),
		limiter: rate.NewLimiter(limit, burst),
		log:     logging.New("server"),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/analysis/run", s.handleRunAnalysis)

		r.Get("/amplification", s.handleListAmplification)
		r.Get("/amplification/{entity}", s.handleGetAmplification)

		r.Post("/tenants", s.handleUpsertTenant)
		r.Route("/tenants/{tenantID}", func(r chi.Router) {
			r.Get("/snapshots", s.handleListSnapshots)
			r.Get("/entities", s.handleListEntities)
			r.Get("/narratives", s.handleListNarratives)
			r.Get("/briefing", s.handleBriefing)
		})

		r.Post("/signals", s.handleInsertSignal)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := s.store.Ping(r.Context()) == nil

	body := map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
	}
	if db, ok := s.store.(*store.DB); ok {
		body["db_path"] = db.Path
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
