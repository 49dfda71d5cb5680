package diagnostics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/json-iterator/go"

	"github.com/xraph/conductor/errors"
	"github.com/xraph/conductor/internal/orchestrator"
	"github.com/xraph/conductor/internal/shared"
	"github.com/xraph/conductor/logger"
	"github.com/xraph/conductor/observability"
)

// Response wraps every JSON body served by the diagnostics API.
type Response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// ServiceView is the detail of one service.
type ServiceView struct {
	Identity   shared.Identity           `json:"identity"`
	State      orchestrator.State        `json:"state"`
	Lifetime   string                    `json:"lifetime"`
	Required   []shared.Identity         `json:"required,omitempty"`
	Optional   []shared.Identity         `json:"optional,omitempty"`
	Dependents []shared.Identity         `json:"dependents,omitempty"`
	Metadata   map[string]string         `json:"metadata,omitempty"`
	Stats      orchestrator.ServiceStats `json:"stats"`
}

type handler struct {
	orch    *orchestrator.Orchestrator
	metrics observability.Metrics
	logger  logger.Logger
}

// NewRouter builds the diagnostics routes:
//
//	GET  /health                  aggregate health, 503 when any service is unhealthy
//	GET  /graph                   text visualization of the dependency graph
//	GET  /report                  structured dependency analysis
//	GET  /order                   initialization order, 409 on cycles
//	GET  /states                  lifecycle state of every service
//	GET  /services/{id}           state, declaration and counters of one service
//	POST /services/{id}/restart   targeted restart
//	GET  /metrics                 prometheus exposition
func NewRouter(o *orchestrator.Orchestrator, m observability.Metrics, l logger.Logger) http.Handler {
	if l == nil {
		l = logger.NewNoopLogger()
	}

	if m == nil {
		m = observability.NewNoopMetrics()
	}

	h := &handler{orch: o, metrics: m, logger: l}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(h.available)

		r.Get("/health", h.health)
		r.Get("/graph", h.graph)
		r.Get("/report", h.report)
		r.Get("/order", h.order)
		r.Get("/states", h.states)
		r.Route("/services/{id}", func(r chi.Router) {
			r.Get("/", h.service)
			r.Post("/restart", h.restart)
		})
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	report, err := h.orch.HealthCheckAll(r.Context())
	if err != nil {
		h.fail(w, err)

		return
	}

	if !report.Healthy {
		writeJSON(w, http.StatusServiceUnavailable, Response{Status: "unhealthy", Timestamp: now(), Data: report})

		return
	}

	writeJSON(w, http.StatusOK, Response{Status: "healthy", Timestamp: now(), Data: report})
}

func (h *handler) graph(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(h.orch.Graph().Visualization()))
}

func (h *handler) report(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ok(h.orch.Graph().Report()))
}

func (h *handler) order(w http.ResponseWriter, r *http.Request) {
	order, err := h.orch.Graph().InitializationOrder()
	if err != nil {
		h.fail(w, err)

		return
	}

	writeJSON(w, http.StatusOK, ok(order))
}

func (h *handler) states(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ok(h.orch.States()))
}

func (h *handler) service(w http.ResponseWriter, r *http.Request) {
	id := shared.Identity(chi.URLParam(r, "id"))

	node, found := h.orch.Graph().Node(id)
	if !found {
		h.fail(w, errors.ErrServiceNotFound(string(id)))

		return
	}

	stats, _ := h.orch.Stats(id)

	writeJSON(w, http.StatusOK, ok(ServiceView{
		Identity:   id,
		State:      h.orch.State(id),
		Lifetime:   node.Descriptor.Lifetime.String(),
		Required:   node.Descriptor.Required,
		Optional:   node.Descriptor.Optional,
		Dependents: node.DependentIDs(),
		Metadata:   node.Descriptor.Metadata,
		Stats:      stats,
	}))
}

func (h *handler) restart(w http.ResponseWriter, r *http.Request) {
	id := shared.Identity(chi.URLParam(r, "id"))

	if err := h.orch.RestartService(r.Context(), id); err != nil {
		h.fail(w, err)

		return
	}

	writeJSON(w, http.StatusOK, ok(map[string]any{
		"identity": id,
		"state":    h.orch.State(id),
	}))
}

// fail maps the error taxonomy onto HTTP status codes.
func (h *handler) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.IsServiceNotFound(err):
		status = http.StatusNotFound
	case errors.IsCircularDependency(err), errors.IsMissingDependency(err), errors.IsInvalidState(err):
		status = http.StatusConflict
	case errors.IsDisposed(err):
		status = http.StatusServiceUnavailable
	case errors.IsInitializationFailure(err), errors.IsShutdownFailure(err):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		h.logger.Warn("diagnostics request failed", logger.Error(err))
	}

	writeJSON(w, status, Response{Status: "error", Timestamp: now(), Error: err.Error()})
}

// available rejects lifecycle requests once the orchestrator is disposed.
func (h *handler) available(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.orch.Disposed() {
			h.fail(w, errors.ErrDisposed("orchestrator"))

			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		h.logger.Debug("diagnostics request",
			logger.String("request_id", middleware.GetReqID(r.Context())),
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", ww.Status()),
			logger.Duration("duration", time.Since(start)),
		)
	})
}

func ok(data any) Response {
	return Response{Status: "ok", Timestamp: now(), Data: data}
}

func now() time.Time {
	return time.Now().UTC()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(body)
}
