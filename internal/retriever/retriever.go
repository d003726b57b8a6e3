// Package retriever fuses dense semantic similarity, lexical keyword
// overlap and persisted per-document feedback into a single ranking.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hopline-ai/hopline/internal/keywords"
	"github.com/hopline-ai/hopline/internal/metrics"
	"github.com/hopline-ai/hopline/internal/vectordb"
)

// Fusion weights. appearsInBoth adds a flat boost on top.
const (
	weightSemantic = 0.6
	weightKeyword  = 0.3
	weightFeedback = 0.1
	overlapBoost   = 0.05

	// keyword score above which a candidate counts as a lexical match too
	overlapThreshold = 0.3

	// candidates fetched from the index per requested result
	overFetchFactor = 3
)

// HybridResult is one fused candidate. Within a single search each document
// id appears at most once.
type HybridResult struct {
	ID            string                 `json:"id"`
	SemanticScore float64                `json:"semantic_score"`
	KeywordScore  float64                `json:"keyword_score"`
	FeedbackScore float64                `json:"feedback_score"`
	FinalScore    float64                `json:"final_score"`
	Metadata      map[string]interface{} `json:"metadata"`
	AppearsInBoth bool                   `json:"appears_in_both"`
}

// VectorQuerier is the slice of the vector index the retriever needs.
type VectorQuerier interface {
	Query(ctx context.Context, queryText string, topK int) ([]vectordb.Match, *float64, error)
}

// FeedbackScorer provides the per-document aggregate feedback signal.
type FeedbackScorer interface {
	DocumentGlobalScore(ctx context.Context, documentID string) (float64, error)
}

// Retriever runs hybrid searches. Safe for concurrent use.
type Retriever struct {
	vector   VectorQuerier
	feedback FeedbackScorer
	logger   *zap.Logger
}

// New creates a hybrid retriever.
func New(vector VectorQuerier, feedback FeedbackScorer, logger *zap.Logger) *Retriever {
	return &Retriever{vector: vector, feedback: feedback, logger: logger}
}

// Search returns at most topK results ordered by descending finalScore.
// Backend failures degrade to an empty result, never an error surfaced to
// the multi-hop loop.
func (r *Retriever) Search(ctx context.Context, query string, topK int) []HybridResult {
	metrics.RetrievalSearches.Inc()

	terms := keywords.Extract(query)

	matches, _, err := r.vector.Query(ctx, query, overFetchFactor*topK)
	if err != nil {
		r.logger.Warn("Vector query failed, returning empty result",
			zap.String("query", query),
			zap.Error(err),
		)
		return nil
	}
	if len(matches) == 0 {
		metrics.RetrievalResults.Observe(0)
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	candidates := make([]HybridResult, 0, len(matches))
	for _, m := range matches {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}

		kwScore := keywords.Score(terms, documentText(m.Metadata))
		candidates = append(candidates, HybridResult{
			ID:            m.ID,
			SemanticScore: m.Score,
			KeywordScore:  kwScore,
			Metadata:      m.Metadata,
			AppearsInBoth: kwScore > overlapThreshold,
		})
	}

	// feedback fan-out: per-candidate failures score 0 without aborting
	g, gctx := errgroup.WithContext(ctx)
	for i := range candidates {
		g.Go(func() error {
			score, err := r.feedback.DocumentGlobalScore(gctx, candidates[i].ID)
			if err != nil {
				r.logger.Debug("Feedback score lookup failed",
					zap.String("document_id", candidates[i].ID),
					zap.Error(err),
				)
				score = 0
			}
			candidates[i].FeedbackScore = score
			return nil
		})
	}
	g.Wait()

	for i := range candidates {
		c := &candidates[i]
		c.FinalScore = weightSemantic*c.SemanticScore +
			weightKeyword*c.KeywordScore +
			weightFeedback*c.FeedbackScore
		if c.AppearsInBoth {
			c.FinalScore += overlapBoost
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		if a.SemanticScore != b.SemanticScore {
			return a.SemanticScore > b.SemanticScore
		}
		return a.ID < b.ID
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	metrics.RetrievalResults.Observe(float64(len(candidates)))
	return candidates
}

// HighestScore returns the maximum finalScore, nil when results is empty.
func HighestScore(results []HybridResult) *float64 {
	if len(results) == 0 {
		return nil
	}
	highest := results[0].FinalScore
	for _, r := range results[1:] {
		if r.FinalScore > highest {
			highest = r.FinalScore
		}
	}
	return &highest
}

// documentText concatenates the metadata fields the lexical scorer reads.
func documentText(metadata map[string]interface{}) string {
	var parts []string
	for _, key := range []string{"text", "title", "source"} {
		if v, ok := metadata[key].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	if tags, ok := metadata["tags"].([]interface{}); ok {
		for _, tag := range tags {
			if t, ok := tag.(string); ok {
				parts = append(parts, t)
			}
		}
	}
	if tags, ok := metadata["tags"].([]string); ok {
		parts = append(parts, tags...)
	}
	return strings.Join(parts, " ")
}

// Text returns the metadata text field of a result, empty when absent.
func (h HybridResult) Text() string {
	if v, ok := h.Metadata["text"].(string); ok {
		return v
	}
	return ""
}

// Title returns the metadata title, falling back to the document id.
func (h HybridResult) Title() string {
	if v, ok := h.Metadata["title"].(string); ok && v != "" {
		return v
	}
	return h.ID
}

// SourceName returns the metadata source field, empty when absent.
func (h HybridResult) SourceName() string {
	if v, ok := h.Metadata["source"].(string); ok {
		return v
	}
	return ""
}

// String implements fmt.Stringer for debug logging.
func (h HybridResult) String() string {
	return fmt.Sprintf("%s(final=%.3f sem=%.3f kw=%.3f fb=%.3f)",
		h.ID, h.FinalScore, h.SemanticScore, h.KeywordScore, h.FeedbackScore)
}
