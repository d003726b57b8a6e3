package ledger

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hopline-ai/hopline/internal/vectordb"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.vec, s.err
}

type stubUpserter struct {
	items []vectordb.UpsertItem
	err   error
}

func (s *stubUpserter) Upsert(ctx context.Context, items []vectordb.UpsertItem) error {
	s.items = append(s.items, items...)
	return s.err
}

func TestSubmitFeedbackValidation(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.SubmitFeedback(context.Background(), "r", 0, ""))
	assert.Error(t, s.SubmitFeedback(context.Background(), "r", 2, ""))
}

func TestSubmitFeedbackUnknownResponse(t *testing.T) {
	s := newTestStore(t)
	err := s.SubmitFeedback(context.Background(), "no-such-response", 1, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitFeedbackLastWriteWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, hopID, responseID := logChain(t, s, "q")

	require.NoError(t, s.SubmitFeedback(ctx, responseID, 1, ""))
	require.NoError(t, s.SubmitFeedback(ctx, responseID, -1, ""))

	resp, err := s.GetResponse(ctx, responseID)
	require.NoError(t, err)
	assert.Equal(t, -1, resp.UserFeedback)

	// the -1 submission ran the diagnosis
	hop, err := s.GetHop(ctx, hopID)
	require.NoError(t, err)
	assert.Equal(t, HopStatusFailed, hop.Status)
}

func TestWeakestLinkMarksLowestMeanHop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	queryID := uuid.New().String()
	h1 := uuid.New().String()
	h2 := uuid.New().String()
	responseID := uuid.New().String()

	require.NoError(t, s.LogQuery(ctx, queryID, "q"))
	require.NoError(t, s.LogHop(ctx, Hop{ID: h1, QueryID: queryID, HopOrder: 0, SubQuery: "a", Reasoning: "Initial Query"}))
	require.NoError(t, s.LogHop(ctx, Hop{ID: h2, QueryID: queryID, HopOrder: 1, SubQuery: "b", Reasoning: "LLM Generated"}))

	// H1 mean combined score 1.4, H2 mean 0.6
	require.NoError(t, s.LogHopDocument(ctx, HopDocument{ID: uuid.New().String(), HopID: h1, DocumentID: "d1", DenseScore: 0.9, SparseScore: 0.5, RankPosition: 1}))
	require.NoError(t, s.LogHopDocument(ctx, HopDocument{ID: uuid.New().String(), HopID: h2, DocumentID: "d2", DenseScore: 0.4, SparseScore: 0.2, RankPosition: 1}))

	require.NoError(t, s.LogResponse(ctx, responseID, queryID, "answer"))
	require.NoError(t, s.LogEvidenceChain(ctx, EvidenceChain{
		ID: uuid.New().String(), ResponseID: responseID,
		HopIDs: []string{h1, h2}, DocumentIDs: []string{"d1", "d2"}, ConfidenceScore: 0.9,
	}))

	require.NoError(t, s.SubmitFeedback(ctx, responseID, -1, ""))

	hop1, err := s.GetHop(ctx, h1)
	require.NoError(t, err)
	hop2, err := s.GetHop(ctx, h2)
	require.NoError(t, err)
	assert.Equal(t, HopStatusPending, hop1.Status)
	assert.Equal(t, HopStatusFailed, hop2.Status)
}

func TestWeakestLinkNoEvidenceChain(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	queryID := uuid.New().String()
	responseID := uuid.New().String()
	require.NoError(t, s.LogQuery(ctx, queryID, "q"))
	require.NoError(t, s.LogResponse(ctx, responseID, queryID, "answer"))

	// no chain logged; feedback still succeeds
	require.NoError(t, s.SubmitFeedback(ctx, responseID, -1, ""))
}

func TestCorrectionInjected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, _, responseID := logChain(t, s, "q")

	sink := &stubUpserter{}
	s.WithCorrectionSink(&stubEmbedder{vec: []float32{0.1, 0.2}}, sink)
	s.now = func() int64 { return 1700000000000 }

	require.NoError(t, s.SubmitFeedback(ctx, responseID, -1, "The launch date was 2024-03-01."))

	require.Len(t, sink.items, 1)
	item := sink.items[0]
	assert.True(t, strings.HasPrefix(item.ID, "correction-"))
	assert.Equal(t, "correction", item.Metadata["type"])
	assert.Equal(t, "user_feedback", item.Metadata["source"])
	assert.Equal(t, "The launch date was 2024-03-01.", item.Metadata["text"])
	assert.Equal(t, int64(1700000000000), item.Metadata["timestamp"])

	resp, err := s.GetResponse(ctx, responseID)
	require.NoError(t, err)
	require.NotNil(t, resp.UserCorrection)
	assert.Equal(t, "The launch date was 2024-03-01.", *resp.UserCorrection)
}

func TestCorrectionTooShortSkipped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, _, responseID := logChain(t, s, "q")

	sink := &stubUpserter{}
	s.WithCorrectionSink(&stubEmbedder{vec: []float32{0.1}}, sink)

	require.NoError(t, s.SubmitFeedback(ctx, responseID, -1, "  ok   "))
	assert.Empty(t, sink.items)
}

func TestCorrectionFailureDoesNotFailFeedback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, _, responseID := logChain(t, s, "q")

	s.WithCorrectionSink(&stubEmbedder{vec: []float32{0.1}}, &stubUpserter{err: assert.AnError})

	require.NoError(t, s.SubmitFeedback(ctx, responseID, -1, "a correction that is long enough"))

	resp, err := s.GetResponse(ctx, responseID)
	require.NoError(t, err)
	assert.Equal(t, -1, resp.UserFeedback)
}
