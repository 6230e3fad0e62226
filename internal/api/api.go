// Package api serves crawl history and learned patterns over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cashback-intel/internal/model"
	"github.com/sells-group/cashback-intel/internal/patterns"
	"github.com/sells-group/cashback-intel/internal/store"
)

// PatternSource lists learned patterns.
type PatternSource interface {
	All() []model.LearnedPattern
}

// PatternView is a learned pattern with its decayed confidence.
type PatternView struct {
	model.LearnedPattern
	Selector            string  `json:"selector"`
	EffectiveConfidence float64 `json:"effective_confidence"`
	Stale               bool    `json:"stale"`
}

// Server exposes read-only endpoints over a store.
type Server struct {
	store    store.Store
	patterns PatternSource
	decay    patterns.DecayConfig
	now      func() time.Time
}

// NewServer creates a Server. pats may be nil.
func NewServer(st store.Store, pats PatternSource, decay patterns.DecayConfig) *Server {
	return &Server{store: st, patterns: pats, decay: decay, now: time.Now}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.listRuns)
		r.Get("/{id}", s.getRun)
		r.Get("/{id}/offers", s.listOffers)
	})
	r.Get("/patterns", s.listPatterns)
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset, err := paging(q.Get("limit"), q.Get("offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := s.store.ListRuns(r.Context(), store.RunFilter{
		Status: model.RunStatus(q.Get("status")),
		Site:   q.Get("site"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.internal(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if eris.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) listOffers(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetRun(r.Context(), id); err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.internal(w, r, err)
		return
	}

	q := r.URL.Query()
	limit, offset, err := paging(q.Get("limit"), q.Get("offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var minConf float64
	if v := q.Get("min_confidence"); v != "" {
		minConf, err = strconv.ParseFloat(v, 64)
		if err != nil || minConf < 0 || minConf > 1 {
			writeError(w, http.StatusBadRequest, "min_confidence must be between 0 and 1")
			return
		}
	}

	offers, err := s.store.ListOffers(r.Context(), store.OfferFilter{
		RunID:         id,
		Merchant:      q.Get("merchant"),
		MinConfidence: minConf,
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		s.internal(w, r, err)
		return
	}
	if offers == nil {
		offers = []store.Offer{}
	}
	writeJSON(w, http.StatusOK, offers)
}

func (s *Server) listPatterns(w http.ResponseWriter, r *http.Request) {
	views := []PatternView{}
	if s.patterns == nil {
		writeJSON(w, http.StatusOK, views)
		return
	}

	siteType := strings.ToLower(r.URL.Query().Get("site_type"))
	now := s.now()
	for _, p := range s.patterns.All() {
		if siteType != "" && p.SiteType != siteType {
			continue
		}
		views = append(views, PatternView{
			LearnedPattern:      p,
			Selector:            p.Selector(),
			EffectiveConfidence: patterns.EffectiveConfidence(p, now, s.decay),
			Stale:               patterns.Stale(p, now, s.decay),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) internal(w http.ResponseWriter, r *http.Request, err error) {
	zap.L().Error("api: request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func paging(limitStr, offsetStr string) (int, int, error) {
	var limit, offset int
	var err error
	if limitStr != "" {
		if limit, err = strconv.Atoi(limitStr); err != nil || limit < 0 || limit > 1000 {
			return 0, 0, eris.New("limit must be between 0 and 1000")
		}
	}
	if offsetStr != "" {
		if offset, err = strconv.Atoi(offsetStr); err != nil || offset < 0 {
			return 0, 0, eris.New("offset must be non-negative")
		}
	}
	return limit, offset, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
