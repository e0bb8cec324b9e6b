// Package httpapi exposes customer history, sparepart rules and the job
// control plane over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"

	"repairdesk/internal/config"
	"repairdesk/internal/jobs"
	"repairdesk/internal/ledger"
	"repairdesk/internal/logger"
	"repairdesk/internal/metrics"
	"repairdesk/internal/servicehistory"
	"repairdesk/internal/store"
	"repairdesk/internal/watch"
)

const maxBodyBytes = 1 << 20

// Router builds HTTP handlers for /api and /ops.
type Router struct {
	cfg     config.Config
	store   *store.Store
	runner  *jobs.Runner
	history *servicehistory.Service
	watcher *watch.Watcher
	metrics *metrics.Metrics
	log     *slog.Logger
	started time.Time
}

// Deps groups the collaborators a Router needs.
type Deps struct {
	Config  config.Config
	Store   *store.Store
	Runner  *jobs.Runner
	History *servicehistory.Service
	Watcher *watch.Watcher
	Metrics *metrics.Metrics
	Log     *slog.Logger
}

func NewRouter(d Deps) *Router {
	return &Router{
		cfg:     d.Config,
		store:   d.Store,
		runner:  d.Runner,
		history: d.History,
		watcher: d.Watcher,
		metrics: d.Metrics,
		log:     d.Log,
		started: time.Now(),
	}
}

func (r *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/customers/history", r.customerHistory)
	mux.HandleFunc("/api/customers/history.txt", r.customerHistoryText)
	mux.HandleFunc("/api/customers/chart", r.customerChart)
	mux.HandleFunc("/api/records", r.records)
	mux.HandleFunc("/api/records/damage", r.recordDamage)
	mux.HandleFunc("/api/spareparts", r.spareparts)
	mux.HandleFunc("/api/spareparts/rules", r.sparepartRules)

	mux.HandleFunc("/ops/status", r.status)
	mux.HandleFunc("/ops/jobs", r.jobs)
	mux.HandleFunc("/ops/jobs/enqueue", r.enqueue)
	mux.HandleFunc("/ops/jobs/", r.jobDetail)
	mux.HandleFunc("/ops/sweep", r.sweep)
	mux.HandleFunc("/ops/backfill", r.backfill)
	mux.HandleFunc("/ops/health", r.health)
	mux.Handle("/metrics", r.metrics.Handler())
}

// Handler returns the full handler chain: request IDs, CORS and the mux.
func (r *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	r.Register(mux)
	origins := r.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
	})
	return r.requestID(c.Handler(mux))
}

func (r *Router) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := req.Header.Get("X-Request-ID")
		if id == "" {
			id = logger.GenerateRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, req.WithContext(logger.WithRequestID(req.Context(), id)))
	})
}

func (r *Router) status(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	imports, _ := r.store.ListImports(ctx, 5)
	jobList, _ := r.store.ListJobs(ctx, 10)
	respondJSON(w, map[string]any{
		"imports":        imports,
		"jobs":           jobList,
		"queue":          r.runner.Stats(),
		"watcher":        r.cfg.EnableWatcher,
		"sweep_schedule": r.cfg.SweepSchedule,
		"uptime_sec":     int64(time.Since(r.started).Seconds()),
	})
}

func (r *Router) jobs(w http.ResponseWriter, req *http.Request) {
	list, err := r.store.ListJobs(req.Context(), queryLimit(req, 50, 500))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, list)
}

func (r *Router) enqueue(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Subject string         `json:"subject"`
		Stage   jobs.Stage     `json:"stage"`
		Params  map[string]any `json:"params"`
	}
	if err := json.NewDecoder(io.LimitReader(req.Body, maxBodyBytes)).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	switch body.Stage {
	case jobs.StageImport:
		if body.Subject == "" {
			http.Error(w, "subject is required for IMPORT", http.StatusBadRequest)
			return
		}
	case jobs.StageSweep:
		if body.Subject == "" {
			body.Subject = jobs.SweepSubject
		}
	default:
		http.Error(w, "unknown stage "+strconv.Quote(string(body.Stage)), http.StatusBadRequest)
		return
	}
	job, err := r.runner.Enqueue(req.Context(), body.Subject, body.Stage, body.Params)
	if err != nil {
		http.Error(w, err.Error(), enqueueStatus(err))
		return
	}
	respondJSON(w, job)
}

func (r *Router) jobDetail(w http.ResponseWriter, req *http.Request) {
	// /ops/jobs/{id}/logs or detail
	rest := strings.TrimPrefix(req.URL.Path, "/ops/jobs/")
	wantLogs := strings.HasSuffix(rest, "/logs")
	id, err := strconv.ParseInt(strings.TrimSuffix(rest, "/logs"), 10, 64)
	if err != nil {
		http.NotFound(w, req)
		return
	}
	if wantLogs {
		lines := r.runner.Logs(id)
		if len(lines) == 0 {
			// Fall back to persisted lines after a restart.
			lines, err = r.store.JobLogs(req.Context(), id)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		if lines == nil {
			lines = []string{}
		}
		respondJSON(w, lines)
		return
	}
	job, err := r.store.GetJob(req.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, req)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, job)
}

func (r *Router) sweep(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	job, err := r.runner.Enqueue(req.Context(), jobs.SweepSubject, jobs.StageSweep, nil)
	if err != nil {
		http.Error(w, err.Error(), enqueueStatus(err))
		return
	}
	respondJSON(w, job)
}

func (r *Router) backfill(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	summary, err := r.watcher.Backfill(req.Context(), r.store)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, summary)
}

func (r *Router) health(w http.ResponseWriter, req *http.Request) {
	if err := r.store.Health(req.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func enqueueStatus(err error) int {
	if errors.Is(err, jobs.ErrQueueFull) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func contactFromQuery(req *http.Request) ledger.Contact {
	q := req.URL.Query()
	return ledger.Contact{Name: q.Get("name"), Phone: q.Get("phone")}
}

func queryLimit(req *http.Request, def, max int) int {
	n, err := strconv.Atoi(req.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func respondJSON(w http.ResponseWriter, payload any) {
	respondJSONStatus(w, http.StatusOK, payload)
}

func respondJSONStatus(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("write json", "err", err)
	}
}
