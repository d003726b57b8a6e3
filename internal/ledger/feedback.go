package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hopline-ai/hopline/internal/metrics"
	"github.com/hopline-ai/hopline/internal/vectordb"
)

// SubmitFeedback finalises a response's feedback value. Negative feedback
// triggers the weakest-link diagnosis; a substantive correction is ingested
// as a new retrievable document. Both side effects are best-effort: their
// failures are logged, never surfaced.
func (s *Store) SubmitFeedback(ctx context.Context, responseID string, feedback int, correction string) error {
	if feedback != 1 && feedback != -1 {
		return fmt.Errorf("feedback must be +1 or -1, got %d", feedback)
	}

	var corrParam interface{}
	trimmed := strings.TrimSpace(correction)
	if trimmed != "" {
		corrParam = trimmed
	}

	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE responses SET user_feedback = ?, user_correction = ? WHERE id = ?`),
		feedback, corrParam, responseID)
	if err != nil {
		return fmt.Errorf("submit feedback: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	signal := "positive"
	if feedback == -1 {
		signal = "negative"
	}
	metrics.FeedbackReceived.WithLabelValues(signal).Inc()

	if feedback == -1 {
		if err := s.markWeakestHop(ctx, responseID); err != nil {
			s.logger.Warn("Weakest-link diagnosis failed",
				zap.String("response_id", responseID),
				zap.Error(err),
			)
		}
	}

	if len(trimmed) > 5 {
		if err := s.injectCorrection(ctx, trimmed); err != nil {
			metrics.CorrectionsInjected.WithLabelValues("error").Inc()
			s.logger.Warn("Correction injection failed",
				zap.String("response_id", responseID),
				zap.Error(err),
			)
		} else {
			metrics.CorrectionsInjected.WithLabelValues("success").Inc()
		}
	}

	return nil
}

// markWeakestHop blames the hop with the lowest mean combined score in the
// response's evidence chain. No chain means nothing to diagnose.
func (s *Store) markWeakestHop(ctx context.Context, responseID string) error {
	var rawHopIDs string
	err := s.db.GetContext(ctx, &rawHopIDs, s.rebind(
		`SELECT hop_ids FROM evidence_chains WHERE response_id = ? LIMIT 1`), responseID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load evidence chain: %w", err)
	}

	var hopIDs []string
	if err := json.Unmarshal([]byte(rawHopIDs), &hopIDs); err != nil {
		return fmt.Errorf("decode hop ids: %w", err)
	}
	if len(hopIDs) == 0 {
		return nil
	}

	weakestID := ""
	weakestScore := 0.0
	weakestOrder := 0
	for _, hopID := range hopIDs {
		hop, err := s.GetHop(ctx, hopID)
		if err != nil {
			return fmt.Errorf("load hop %s: %w", hopID, err)
		}

		var avg sql.NullFloat64
		if err := s.db.GetContext(ctx, &avg, s.rebind(
			`SELECT AVG(dense_score + sparse_score) FROM hop_documents WHERE hop_id = ?`), hopID); err != nil {
			return fmt.Errorf("hop %s mean score: %w", hopID, err)
		}
		score := 0.0
		if avg.Valid {
			score = avg.Float64
		}

		replace := weakestID == "" ||
			score < weakestScore ||
			(score == weakestScore && hop.HopOrder < weakestOrder) ||
			(score == weakestScore && hop.HopOrder == weakestOrder && hopID < weakestID)
		if replace {
			weakestID = hopID
			weakestScore = score
			weakestOrder = hop.HopOrder
		}
	}

	if _, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE hops SET status = ? WHERE id = ?`), HopStatusFailed, weakestID); err != nil {
		return fmt.Errorf("mark hop failed: %w", err)
	}

	s.logger.Info("Weakest hop marked failed",
		zap.String("response_id", responseID),
		zap.String("hop_id", weakestID),
		zap.Float64("mean_score", weakestScore),
	)
	return nil
}

// injectCorrection embeds the correction text and upserts it into the
// vector index so it becomes retrievable like any document.
func (s *Store) injectCorrection(ctx context.Context, text string) error {
	if s.embedder == nil || s.vector == nil {
		return fmt.Errorf("correction sink not configured")
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed correction: %w", err)
	}

	item := vectordb.UpsertItem{
		ID:     "correction-" + uuid.New().String(),
		Vector: vec,
		Metadata: map[string]interface{}{
			"text":      text,
			"type":      "correction",
			"source":    "user_feedback",
			"timestamp": s.now(),
		},
	}
	if err := s.vector.Upsert(ctx, []vectordb.UpsertItem{item}); err != nil {
		return fmt.Errorf("upsert correction: %w", err)
	}

	s.logger.Info("Correction injected", zap.String("id", item.ID))
	return nil
}
