// internal/infra/httpapi/router.go
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"rre_filing_agent/internal/app/builder"
	"rre_filing_agent/internal/codec"
	"rre_filing_agent/internal/domain/filing"
	"rre_filing_agent/internal/domain/transport"
)

// FilingService is the lifecycle surface exposed over HTTP.
type FilingService interface {
	Stats(ctx context.Context) (map[filing.Status]int, error)
	Lookup(ctx context.Context, reportID uuid.UUID) (*filing.Submission, error)
	EnqueueReport(ctx context.Context, reportID uuid.UUID) (*filing.Submission, error)
	RetryReport(ctx context.Context, reportID uuid.UUID) (*filing.Submission, error)
	DemoOverrideReport(ctx context.Context, reportID uuid.UUID, outcome filing.DemoOutcome, code, message string) (*filing.Submission, error)
	Snapshot(sub *filing.Submission) ([]byte, error)
}

type Pinger interface {
	Ping(ctx context.Context) transport.PingResult
}

// Handler serves the operational HTTP API.
type Handler struct {
	filings  FilingService
	pinger   Pinger
	gatherer prometheus.Gatherer
	logger   *logrus.Entry
}

func New(filings FilingService, pinger Pinger, gatherer prometheus.Gatherer, logger *logrus.Entry) *Handler {
	return &Handler{
		filings:  filings,
		pinger:   pinger,
		gatherer: gatherer,
		logger:   logger.WithField("component", "httpapi"),
	}
}

// Router builds the chi router with every route mounted.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		// ping dials the remote endpoint and may take a while
		r.Use(middleware.Timeout(60 * time.Second))
		r.Get("/healthz/transport", h.handleTransportHealth)
	})

	r.Route("/filings", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/stats", h.handleStats)
		r.Route("/{reportID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Get("/document", h.handleDocument)
			r.Post("/enqueue", h.handleEnqueue)
			r.Post("/retry", h.handleRetry)
			r.Post("/demo-outcome", h.handleDemoOutcome)
		})
	})
	return r
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.WithFields(logrus.Fields{
			"request_id":  middleware.GetReqID(r.Context()),
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("HTTP request")
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleTransportHealth(w http.ResponseWriter, r *http.Request) {
	res := h.pinger.Ping(r.Context())
	status := http.StatusOK
	if !res.OK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.filings.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make(map[string]int, len(counts))
	for st, n := range counts {
		out[string(st)] = n
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	reportID, ok := h.reportID(w, r)
	if !ok {
		return
	}
	sub, err := h.filings.Lookup(r.Context(), reportID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSubmissionView(sub))
}

func (h *Handler) handleDocument(w http.ResponseWriter, r *http.Request) {
	reportID, ok := h.reportID(w, r)
	if !ok {
		return
	}
	sub, err := h.filings.Lookup(r.Context(), reportID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	doc, err := h.filings.Snapshot(sub)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("X-Payload-SHA256", sub.PayloadSHA256.String)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func (h *Handler) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.filings.EnqueueReport)
}

func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.filings.RetryReport)
}

type demoOutcomeRequest struct {
	Outcome string `json:"outcome"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) handleDemoOutcome(w http.ResponseWriter, r *http.Request) {
	var req demoOutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	h.mutate(w, r, func(ctx context.Context, reportID uuid.UUID) (*filing.Submission, error) {
		return h.filings.DemoOverrideReport(ctx, reportID, filing.DemoOutcome(req.Outcome), req.Code, req.Message)
	})
}

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID) (*filing.Submission, error)) {
	reportID, ok := h.reportID(w, r)
	if !ok {
		return
	}
	sub, err := op(r.Context(), reportID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSubmissionView(sub))
}

func (h *Handler) reportID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "reportID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "reportID must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var pe *builder.PreflightError
	status := http.StatusInternalServerError
	kind := ""
	switch {
	case errors.Is(err, filing.ErrSubmissionNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, filing.ErrInvalidTransition):
		status, kind = http.StatusConflict, "invalid_transition"
	case errors.Is(err, filing.ErrStaleSubmission):
		status, kind = http.StatusConflict, "stale"
	case errors.Is(err, filing.ErrDemoDisabled):
		status, kind = http.StatusForbidden, "demo_disabled"
	case errors.Is(err, codec.ErrCorruptArtifact):
		status, kind = http.StatusUnprocessableEntity, "corrupt_snapshot"
	case errors.As(err, &pe):
		status, kind = http.StatusUnprocessableEntity, "preflight"
	}

	entry := h.logger.WithError(err).WithField("request_id", middleware.GetReqID(r.Context()))
	if status == http.StatusInternalServerError {
		entry.Error("Request failed")
		writeJSON(w, status, errorBody{Error: "internal error"})
		return
	}
	entry.Debug("Request rejected")
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
