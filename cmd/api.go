package main

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-scanner/internal/cache"
	"github.com/sells-group/market-scanner/internal/escalate"
	"github.com/sells-group/market-scanner/internal/model"
	"github.com/sells-group/market-scanner/internal/resilience"
	"github.com/sells-group/market-scanner/internal/store"
)

// apiDeps carries what the HTTP handlers need. Nil fields disable the
// endpoints that depend on them, so partial routers stay testable.
type apiDeps struct {
	store     store.Store
	cache     cache.Store
	breakers  *resilience.BreakerSet
	cooldowns escalate.CooldownStore
	metrics   http.Handler
	started   time.Time

	// scan triggers an async run and reports false when one is already in
	// flight. Nil means on-demand scans are unavailable.
	scan func() bool
}

type cacheStatus struct {
	Source  string `json:"source"`
	AgeSecs int64  `json:"age_secs"`
	TTLSecs int64  `json:"ttl_secs"`
	Fresh   bool   `json:"fresh"`
}

type statusResponse struct {
	Status          string            `json:"status"`
	UptimeSecs      int64             `json:"uptime_secs"`
	LastRun         *model.Run        `json:"last_run,omitempty"`
	Breakers        map[string]string `json:"breakers,omitempty"`
	Caches          []cacheStatus     `json:"caches,omitempty"`
	ActiveCooldowns int               `json:"active_cooldowns"`
}

func newRouter(d apiDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Link"},
		MaxAge:         300,
	}))

	r.Get("/healthz", d.handleHealth)
	r.Get("/status", d.handleStatus)
	r.Get("/runs", d.handleRuns)
	r.Get("/runs/{id}", d.handleRun)
	r.Get("/edges", d.handleEdges)
	r.Post("/scan", d.handleScan)
	if d.metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.metrics)
	}

	return r
}

func (d apiDeps) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (d apiDeps) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:     "ok",
		UptimeSecs: int64(time.Since(d.started).Seconds()),
	}
	if d.breakers != nil {
		resp.Breakers = d.breakers.States()
	}
	if d.cache != nil {
		now := time.Now()
		for _, e := range d.cache.Entries(r.Context()) {
			resp.Caches = append(resp.Caches, cacheStatus{
				Source:  e.Source,
				AgeSecs: int64(e.Age(now).Seconds()),
				TTLSecs: int64(e.TTL.Seconds()),
				Fresh:   e.Fresh(now),
			})
		}
		sort.Slice(resp.Caches, func(i, j int) bool { return resp.Caches[i].Source < resp.Caches[j].Source })
	}
	if d.cooldowns != nil {
		resp.ActiveCooldowns = d.cooldowns.Count(r.Context())
	}
	if d.store != nil {
		runs, err := d.store.ListRuns(r.Context(), store.RunFilter{Limit: 1})
		if err != nil {
			zap.L().Error("api: status last run", zap.Error(err))
		} else if len(runs) > 0 {
			resp.LastRun = &runs[0]
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d apiDeps) handleRuns(w http.ResponseWriter, r *http.Request) {
	if d.store == nil {
		http.Error(w, `{"error":"store unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	filter := store.RunFilter{
		Limit:  queryInt(r, "limit", 20),
		Offset: queryInt(r, "offset", 0),
	}
	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = model.RunStatus(s)
	}

	runs, err := d.store.ListRuns(r.Context(), filter)
	if err != nil {
		serverError(w, "list runs", err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (d apiDeps) handleRun(w http.ResponseWriter, r *http.Request) {
	if d.store == nil {
		http.Error(w, `{"error":"store unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	run, err := d.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if eris.Is(err, store.ErrRunNotFound) {
			http.Error(w, `{"error":"run not found"}`, http.StatusNotFound)
			return
		}
		serverError(w, "get run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (d apiDeps) handleEdges(w http.ResponseWriter, r *http.Request) {
	if d.store == nil {
		http.Error(w, `{"error":"store unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	filter := store.EdgeFilter{
		RunID:    r.URL.Query().Get("run_id"),
		Detector: r.URL.Query().Get("detector"),
		Limit:    queryInt(r, "limit", 50),
	}
	if s := r.URL.Query().Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, `{"error":"since must be RFC3339"}`, http.StatusBadRequest)
			return
		}
		filter.Since = t
	}

	edges, err := d.store.ListEdges(r.Context(), filter)
	if err != nil {
		serverError(w, "list edges", err)
		return
	}
	if edges == nil {
		edges = []store.EdgeLogEntry{}
	}
	writeJSON(w, http.StatusOK, edges)
}

func (d apiDeps) handleScan(w http.ResponseWriter, r *http.Request) {
	if d.scan == nil {
		http.Error(w, `{"error":"on-demand scans unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	if !d.scan() {
		http.Error(w, `{"error":"scan already in flight"}`, http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("api: encode response", zap.Error(err))
	}
}

func serverError(w http.ResponseWriter, op string, err error) {
	zap.L().Error("api: "+op, zap.Error(err))
	http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
}

func queryInt(r *http.Request, name string, def int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
