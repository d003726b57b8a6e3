package ledger

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hopline-ai/hopline/internal/circuitbreaker"
	"github.com/hopline-ai/hopline/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func logChain(t *testing.T, s *Store, queryText string) (queryID, hopID, responseID string) {
	t.Helper()
	ctx := context.Background()
	queryID = uuid.New().String()
	hopID = uuid.New().String()
	responseID = uuid.New().String()

	require.NoError(t, s.LogQuery(ctx, queryID, queryText))
	require.NoError(t, s.LogHop(ctx, Hop{
		ID: hopID, QueryID: queryID, HopOrder: 0, SubQuery: queryText, Reasoning: "Initial Query",
	}))
	require.NoError(t, s.LogHopDocument(ctx, HopDocument{
		ID: uuid.New().String(), HopID: hopID, DocumentID: "doc-1",
		DenseScore: 0.8, SparseScore: 0.5, RankPosition: 1,
	}))
	require.NoError(t, s.LogResponse(ctx, responseID, queryID, "answer text"))
	require.NoError(t, s.LogEvidenceChain(ctx, EvidenceChain{
		ID: uuid.New().String(), ResponseID: responseID,
		HopIDs: []string{hopID}, DocumentIDs: []string{"doc-1"}, ConfidenceScore: 0.8,
	}))
	return queryID, hopID, responseID
}

func TestWritesAreIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := uuid.New().String()
	require.NoError(t, s.LogQuery(ctx, id, "q"))
	require.NoError(t, s.LogQuery(ctx, id, "q"))

	var count int
	require.NoError(t, s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM queries WHERE id = ?`, id))
	assert.Equal(t, 1, count)
}

func TestForeignKeysEnforced(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.LogHop(ctx, Hop{
		ID: uuid.New().String(), QueryID: "missing-query", HopOrder: 0,
		SubQuery: "x", Reasoning: "Initial Query",
	})
	assert.Error(t, err)

	err = s.LogHopDocument(ctx, HopDocument{
		ID: uuid.New().String(), HopID: "missing-hop", DocumentID: "d",
		DenseScore: 0, SparseScore: 0, RankPosition: 1,
	})
	assert.Error(t, err)
}

func TestDocumentGlobalScoreNoFeedback(t *testing.T) {
	s := newTestStore(t)
	logChain(t, s, "what is x")

	score, err := s.DocumentGlobalScore(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestDocumentGlobalScorePositiveFeedback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, _, responseID := logChain(t, s, "what is x")

	require.NoError(t, s.SubmitFeedback(ctx, responseID, 1, ""))

	score, err := s.DocumentGlobalScore(ctx, "doc-1")
	require.NoError(t, err)
	// raw = 1, age ~ 0 days
	assert.InDelta(t, math.Tanh(0.1), score, 1e-3)
}

func TestDocumentGlobalScoreDecaysOverTime(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, _, responseID := logChain(t, s, "what is x")
	require.NoError(t, s.SubmitFeedback(ctx, responseID, 1, ""))

	fresh, err := s.DocumentGlobalScore(ctx, "doc-1")
	require.NoError(t, err)

	// shift the clock 10 days forward
	base := time.Now().UnixMilli()
	s.now = func() int64 { return base + 10*86400000 }

	aged, err := s.DocumentGlobalScore(ctx, "doc-1")
	require.NoError(t, err)
	assert.Less(t, aged, fresh)
	assert.InDelta(t, math.Tanh(0.1)*math.Exp(-1.0), aged, 1e-3)
}

func TestDocumentGlobalScoreUnknownDocument(t *testing.T) {
	s := newTestStore(t)
	score, err := s.DocumentGlobalScore(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestSuccessfulTemplateRequiresPositiveFeedback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, _, responseID := logChain(t, s, "compare a and b")

	steps, err := s.SuccessfulTemplate(ctx, "compare a and b")
	require.NoError(t, err)
	assert.Empty(t, steps)

	require.NoError(t, s.SubmitFeedback(ctx, responseID, 1, ""))

	steps, err = s.SuccessfulTemplate(ctx, "compare a and b")
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, 0, steps[0].HopOrder)
	assert.Equal(t, "compare a and b", steps[0].SubQuery)
}

func TestSuccessfulTemplateOrderedByHopOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	queryID, _, responseID := logChain(t, s, "multi hop q")

	// fanout hops logged out of order
	require.NoError(t, s.LogHop(ctx, Hop{
		ID: uuid.New().String(), QueryID: queryID, HopOrder: 1,
		SubQuery: "what is b", Reasoning: "LLM Generated",
	}))
	require.NoError(t, s.SubmitFeedback(ctx, responseID, 1, ""))

	steps, err := s.SuccessfulTemplate(ctx, "multi hop q")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, 0, steps[0].HopOrder)
	assert.Equal(t, 1, steps[1].HopOrder)
}

func TestSuccessfulTemplateExactTextOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, _, responseID := logChain(t, s, "what is project x")
	require.NoError(t, s.SubmitFeedback(ctx, responseID, 1, ""))

	steps, err := s.SuccessfulTemplate(ctx, "What is project x")
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestMetricsAggregates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, r1 := logChain(t, s, "q1")
	_, _, r2 := logChain(t, s, "q2")
	require.NoError(t, s.SubmitFeedback(ctx, r1, 1, ""))
	require.NoError(t, s.SubmitFeedback(ctx, r2, -1, ""))

	m, err := s.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, m.PositiveFeedback)
	assert.Equal(t, 1, m.NegativeFeedback)
	assert.Equal(t, 2, m.TotalFeedback)
	assert.Equal(t, 2, m.TotalQueries)
	assert.Equal(t, 2, m.TotalHops)
	// the negative response's hop was marked failed by the diagnosis
	require.Len(t, m.TopFailedQueries, 1)
	assert.Equal(t, "q2", m.TopFailedQueries[0].SubQuery)
	require.Len(t, m.TopNegativeDocs, 1)
	assert.Equal(t, "doc-1", m.TopNegativeDocs[0].DocumentID)
}

func TestLogQueryPropagatesExecErrors(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectExec("INSERT INTO queries").WillReturnError(assert.AnError)

	s := &Store{
		db:     circuitbreaker.NewSQLWrapper(sqlx.NewDb(mockDB, "sqlite3"), "sqlmock", zap.NewNop()),
		driver: "sqlite",
		logger: zap.NewNop(),
		now:    func() int64 { return 0 },
	}
	err = s.LogQuery(context.Background(), "id", "text")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
