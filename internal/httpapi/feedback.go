package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hopline-ai/hopline/internal/ledger"
)

type feedbackRequest struct {
	ResponseID string `json:"response_id"`
	Feedback   *int   `json:"feedback"`
	Correction string `json:"correction"`
}

// handleFeedback records a thumbs-up or thumbs-down for a response.
// POST /api/feedback {"response_id": "...", "feedback": 1|-1, "correction": "..."}
func (h *Handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ResponseID == "" {
		writeError(w, http.StatusBadRequest, "response_id is required")
		return
	}
	if req.Feedback == nil {
		writeError(w, http.StatusBadRequest, "feedback is required")
		return
	}
	if *req.Feedback != 1 && *req.Feedback != -1 {
		writeError(w, http.StatusBadRequest, "feedback must be 1 or -1")
		return
	}

	err := h.store.SubmitFeedback(r.Context(), req.ResponseID, *req.Feedback, req.Correction)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, "response not found")
		return
	case err != nil:
		h.logger.Error("Feedback submission failed",
			zap.String("response_id", req.ResponseID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to record feedback")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Feedback recorded",
	})
}
