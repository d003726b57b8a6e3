// Package multihop drives iterative retrieval: template replay for questions
// answered successfully before, sufficiency evaluation of accumulated
// evidence, LLM-driven decomposition into sub-queries and fan-out hops.
package multihop

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hopline-ai/hopline/internal/ledger"
	"github.com/hopline-ai/hopline/internal/llm"
	"github.com/hopline-ai/hopline/internal/metrics"
	"github.com/hopline-ai/hopline/internal/retriever"
)

// Hop reasonings recorded in the ledger.
const (
	ReasoningInitial = "Initial Query"
	ReasoningReplay  = "Replay from history"
	ReasoningLLM     = "LLM Generated"
)

// Retrieval depths per hop kind.
const (
	initialTopK = 10
	fanoutTopK  = 5
)

// evaluateThreshold filters accumulated results when building the context
// handed to the sufficiency evaluation. Deliberately below the answer-path
// threshold so borderline evidence still informs decomposition.
const evaluateThreshold = 0.4

// Searcher is the hybrid search dependency.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) []retriever.HybridResult
}

// Ledger is the slice of the feedback ledger the controller writes and reads.
type Ledger interface {
	LogQuery(ctx context.Context, id, text string) error
	LogHop(ctx context.Context, hop ledger.Hop) error
	LogHopDocument(ctx context.Context, doc ledger.HopDocument) error
	SuccessfulTemplate(ctx context.Context, queryText string) ([]ledger.TemplateStep, error)
}

// Result is the outcome of one multi-hop run.
type Result struct {
	Results          []retriever.HybridResult
	Hops             int
	GeneratedQueries []string
	QueryID          string
	HopIDs           []string
}

// Controller executes the multi-hop state machine. Safe for concurrent use;
// all per-run state lives on the stack.
type Controller struct {
	search  Searcher
	store   Ledger
	llm     llm.Provider
	prompts llm.Prompts
	maxHops int
	logger  *zap.Logger
}

// New creates a controller. maxHops bounds decomposition rounds per run.
func New(search Searcher, store Ledger, provider llm.Provider, prompts llm.Prompts, maxHops int, logger *zap.Logger) *Controller {
	if maxHops < 0 {
		maxHops = 1
	}
	return &Controller{
		search:  search,
		store:   store,
		llm:     provider,
		prompts: prompts,
		maxHops: maxHops,
		logger:  logger,
	}
}

// run-local accumulator deduplicating documents across hops.
type accumulator struct {
	seen    map[string]struct{}
	results []retriever.HybridResult
}

func newAccumulator() *accumulator {
	return &accumulator{seen: make(map[string]struct{})}
}

func (a *accumulator) merge(results []retriever.HybridResult) {
	for _, r := range results {
		if _, dup := a.seen[r.ID]; dup {
			continue
		}
		a.seen[r.ID] = struct{}{}
		a.results = append(a.results, r)
	}
}

func (a *accumulator) sorted() []retriever.HybridResult {
	out := a.results
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinalScore > out[j].FinalScore
	})
	return out
}

// Run executes the state machine for one query. Ledger failures are logged
// and contained; the run proceeds with whatever evidence it can gather.
func (c *Controller) Run(ctx context.Context, originalQuery string) *Result {
	queryID := uuid.New().String()
	if err := c.store.LogQuery(ctx, queryID, originalQuery); err != nil {
		c.logger.Warn("Failed to log query", zap.String("query_id", queryID), zap.Error(err))
	}

	res := &Result{QueryID: queryID}
	acc := newAccumulator()

	template, err := c.store.SuccessfulTemplate(ctx, originalQuery)
	if err != nil {
		c.logger.Warn("Template lookup failed", zap.Error(err))
	}
	if len(template) > 0 {
		c.replay(ctx, queryID, template, acc, res)
		res.Results = acc.sorted()
		metrics.TemplateReplays.Inc()
		metrics.HopsPerRun.Observe(float64(res.Hops))
		return res
	}

	c.executeHop(ctx, queryID, 0, originalQuery, ReasoningInitial, initialTopK, acc, res)

	for hop := 0; hop < c.maxHops; hop++ {
		decision, ok := c.evaluate(ctx, originalQuery, acc.results)
		if !ok {
			break
		}
		if decision.Sufficient || len(decision.Queries) == 0 {
			break
		}
		for _, subQuery := range decision.Queries {
			res.GeneratedQueries = append(res.GeneratedQueries, subQuery)
			c.executeHop(ctx, queryID, hop+1, subQuery, ReasoningLLM, fanoutTopK, acc, res)
		}
	}

	res.Results = acc.sorted()
	metrics.HopsPerRun.Observe(float64(res.Hops))
	return res
}

// replay re-executes the sub-queries of a previously successful run,
// bypassing sufficiency evaluation.
func (c *Controller) replay(ctx context.Context, queryID string, template []ledger.TemplateStep, acc *accumulator, res *Result) {
	c.logger.Info("Replaying successful template",
		zap.String("query_id", queryID),
		zap.Int("steps", len(template)),
	)
	for _, step := range template {
		res.GeneratedQueries = append(res.GeneratedQueries, step.SubQuery)
		c.executeHop(ctx, queryID, step.HopOrder, step.SubQuery, ReasoningReplay, fanoutTopK, acc, res)
	}
}

func (c *Controller) executeHop(ctx context.Context, queryID string, order int, subQuery, reasoning string, topK int, acc *accumulator, res *Result) {
	hopID := uuid.New().String()
	if err := c.store.LogHop(ctx, ledger.Hop{
		ID:        hopID,
		QueryID:   queryID,
		HopOrder:  order,
		SubQuery:  subQuery,
		Reasoning: reasoning,
	}); err != nil {
		c.logger.Warn("Failed to log hop", zap.String("hop_id", hopID), zap.Error(err))
	}

	results := c.search.Search(ctx, subQuery, topK)
	for rank, doc := range results {
		if err := c.store.LogHopDocument(ctx, ledger.HopDocument{
			ID:           uuid.New().String(),
			HopID:        hopID,
			DocumentID:   doc.ID,
			DenseScore:   doc.SemanticScore,
			SparseScore:  doc.KeywordScore,
			RankPosition: rank + 1,
		}); err != nil {
			c.logger.Warn("Failed to log hop document",
				zap.String("hop_id", hopID),
				zap.String("document_id", doc.ID),
				zap.Error(err),
			)
		}
	}

	acc.merge(results)
	res.Hops++
	res.HopIDs = append(res.HopIDs, hopID)
}

type decomposition struct {
	Sufficient bool     `json:"sufficient"`
	Queries    []string `json:"queries"`
}

// evaluate asks the LLM whether the accumulated evidence answers the
// question. Any provider or parse failure terminates the loop: the caller
// uses what it has.
func (c *Controller) evaluate(ctx context.Context, originalQuery string, results []retriever.HybridResult) (decomposition, bool) {
	var parts []string
	for _, r := range results {
		if r.FinalScore >= evaluateThreshold && r.Text() != "" {
			parts = append(parts, r.Text())
		}
	}
	contextText := strings.Join(parts, "\n\n")

	prompt := c.prompts.RenderDecomposition(contextText, originalQuery)
	raw, err := c.llm.Complete(ctx, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		c.logger.Warn("Decomposition call failed", zap.Error(err))
		metrics.DecompositionFailures.Inc()
		return decomposition{}, false
	}

	var decision decomposition
	if err := json.Unmarshal([]byte(llm.StripCodeFences(raw)), &decision); err != nil {
		c.logger.Warn("Decomposition response not parseable", zap.Error(err))
		metrics.DecompositionFailures.Inc()
		return decomposition{}, false
	}
	return decision, true
}
