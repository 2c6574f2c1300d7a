// Package api serves the operator surface over HTTP: review adjudication,
// merges, corrections, quarantine and the downstream team/game graph.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/teamresolve/internal/correction"
	"github.com/sells-group/teamresolve/internal/merge"
	"github.com/sells-group/teamresolve/internal/monitoring"
	"github.com/sells-group/teamresolve/internal/quarantine"
	"github.com/sells-group/teamresolve/internal/review"
	"github.com/sells-group/teamresolve/internal/store"
)

// Deps are the services behind the API.
type Deps struct {
	Store       store.Store
	Review      *review.Service
	Merges      *merge.Coordinator
	Corrections *correction.Ledger
	Quarantine  *quarantine.Service
	// Monitor serves GET /stats when set.
	Monitor *monitoring.Collector
}

// Options configures the router.
type Options struct {
	CORSOrigins []string
	Timeout     time.Duration
}

type handlers struct {
	Deps
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps, opts Options) http.Handler {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	h := &handlers{Deps: d}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.Timeout))
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", h.health)
	if d.Monitor != nil {
		r.Get("/stats", h.stats)
	}

	r.Route("/review", func(r chi.Router) {
		r.Get("/", h.listReviews)
		r.Get("/counts", h.reviewCounts)
		r.Post("/bulk-approve", h.bulkApprove)
		r.Get("/{id}", h.getReview)
		r.Post("/{id}/approve", h.approveReview)
		r.Post("/{id}/reject", h.rejectReview)
	})

	r.Route("/merges", func(r chi.Router) {
		r.Get("/", h.listMerges)
		r.Post("/", h.proposeMerge)
		r.Get("/preview/{teamID}", h.previewMerge)
		r.Get("/{id}", h.getMerge)
		r.Post("/{id}/execute", h.executeMerge)
		r.Post("/{id}/revert", h.revertMerge)
	})

	r.Route("/corrections", func(r chi.Router) {
		r.Get("/", h.listCorrections)
		r.Post("/", h.proposeCorrection)
		r.Get("/{id}", h.getCorrection)
		r.Post("/{id}/apply", h.applyCorrection)
		r.Post("/{id}/reject", h.rejectCorrection)
		r.Post("/{id}/revert", h.revertCorrection)
	})

	r.Route("/quarantine", func(r chi.Router) {
		r.Get("/", h.listQuarantine)
		r.Get("/counts", h.quarantineCounts)
		r.Delete("/{id}", h.deleteQuarantine)
	})

	r.Get("/teams", h.listTeams)
	r.Get("/teams/{id}", h.getTeam)
	r.Get("/games", h.listGames)

	return r
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Monitor.Collect(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("request",
			zap.String("component", "api"),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}
