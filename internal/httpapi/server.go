// Package httpapi exposes the chat, feedback and diagnostics endpoints over
// HTTP, including the SSE and WebSocket streaming variants.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/hopline-ai/hopline/internal/answer"
	"github.com/hopline-ai/hopline/internal/health"
	"github.com/hopline-ai/hopline/internal/ledger"
)

// Answerer is the orchestration surface the handlers call.
type Answerer interface {
	Answer(ctx context.Context, message, conversationID string) (*answer.Reply, error)
	AnswerStream(ctx context.Context, message, conversationID string, emit func(answer.Frame) error)
}

// FeedbackLedger is the slice of the ledger the API writes and reads.
type FeedbackLedger interface {
	SubmitFeedback(ctx context.Context, responseID string, feedback int, correction string) error
	Metrics(ctx context.Context) (*ledger.DebugMetrics, error)
}

// Handler carries the API dependencies. Register routes with RegisterRoutes.
type Handler struct {
	answerer Answerer
	store    FeedbackLedger
	checks   *health.Manager
	logger   *zap.Logger
}

// New creates the API handler. checks backs the readiness endpoint and may
// be nil when no probes are registered.
func New(answerer Answerer, store FeedbackLedger, checks *health.Manager, logger *zap.Logger) *Handler {
	return &Handler{
		answerer: answerer,
		store:    store,
		checks:   checks,
		logger:   logger,
	}
}

// RegisterRoutes registers all API routes on the provided mux, wrapping them
// with the metrics and rate-limit middleware.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, limiter *ClientLimiter) {
	wrap := func(route string, fn http.HandlerFunc) http.Handler {
		return MetricsMiddleware(route, RateLimitMiddleware(limiter, fn))
	}

	mux.Handle("/api/chat", wrap("/api/chat", h.handleChat))
	mux.Handle("/api/chat/stream", wrap("/api/chat/stream", h.handleChatStream))
	mux.Handle("/api/chat/ws", wrap("/api/chat/ws", h.handleChatWS))
	mux.Handle("/api/feedback", wrap("/api/feedback", h.handleFeedback))
	mux.Handle("/api/debug/metrics", wrap("/api/debug/metrics", h.handleDebugMetrics))

	// probes bypass rate limiting
	mux.Handle("/health", MetricsMiddleware("/health", h.handleHealth))
	mux.Handle("/readiness", MetricsMiddleware("/readiness", h.handleReadiness))
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadiness probes every registered dependency; a critical failure
// flips the status to 503 with per-dependency detail.
func (h *Handler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if h.checks == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	report := h.checks.Report(r.Context())
	status := http.StatusOK
	overall := "ready"
	if !report.Ready {
		status = http.StatusServiceUnavailable
		overall = "not ready"
	}
	writeJSON(w, status, map[string]interface{}{
		"status": overall,
		"checks": report.Checks,
	})
}

func (h *Handler) handleDebugMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	m, err := h.store.Metrics(r.Context())
	if err != nil {
		h.logger.Error("Debug metrics query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to collect metrics")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
