package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hopline-ai/hopline/internal/answer"
	"github.com/hopline-ai/hopline/internal/health"
	"github.com/hopline-ai/hopline/internal/ledger"
)

type stubAnswerer struct {
	reply  *answer.Reply
	err    error
	frames []answer.Frame
}

func (s *stubAnswerer) Answer(ctx context.Context, message, conversationID string) (*answer.Reply, error) {
	return s.reply, s.err
}

func (s *stubAnswerer) AnswerStream(ctx context.Context, message, conversationID string, emit func(answer.Frame) error) {
	for _, f := range s.frames {
		if err := emit(f); err != nil {
			return
		}
	}
}

type stubFeedback struct {
	responseID string
	feedback   int
	correction string
	err        error
	metrics    *ledger.DebugMetrics
}

func (s *stubFeedback) SubmitFeedback(ctx context.Context, responseID string, feedback int, correction string) error {
	s.responseID = responseID
	s.feedback = feedback
	s.correction = correction
	return s.err
}

func (s *stubFeedback) Metrics(ctx context.Context) (*ledger.DebugMetrics, error) {
	if s.metrics == nil {
		return nil, errors.New("no metrics")
	}
	return s.metrics, nil
}

func newTestServer(t *testing.T, answerer Answerer, store FeedbackLedger, checks *health.Manager) *httptest.Server {
	t.Helper()
	h := New(answerer, store, checks, zap.NewNop())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux, nil)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestChatReturnsReply(t *testing.T) {
	answerer := &stubAnswerer{reply: &answer.Reply{
		Blocks:    []answer.Block{answer.Paragraph("Project X ships in Q3.")},
		Sources:   []answer.Source{{Title: "Doc", Source: "wiki", Score: 0.9}},
		Mode:      "rag",
		RequestID: "abcd1234",
	}}
	srv := newTestServer(t, answerer, &stubFeedback{}, nil)

	resp := postJSON(t, srv.URL+"/api/chat", `{"message": "What is Project X?"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reply answer.Reply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	assert.Equal(t, "rag", reply.Mode)
	assert.Equal(t, "abcd1234", reply.RequestID)
	require.Len(t, reply.Blocks, 1)
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	srv := newTestServer(t, &stubAnswerer{}, &stubFeedback{}, nil)

	resp := postJSON(t, srv.URL+"/api/chat", `{"message": "  "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatLLMFailureReturns500WithErrorBlock(t *testing.T) {
	srv := newTestServer(t, &stubAnswerer{err: errors.New("provider down")}, &stubFeedback{}, nil)

	resp := postJSON(t, srv.URL+"/api/chat", `{"message": "hello"}`)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var reply answer.Reply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	require.Len(t, reply.Blocks, 1)
	assert.Equal(t, answer.ErrorText, reply.Blocks[0].Content)
	assert.Equal(t, "general", reply.Mode)
	assert.Empty(t, reply.Sources)
	assert.Len(t, reply.RequestID, 8)
}

func TestChatStreamEmitsSSEFrames(t *testing.T) {
	answerer := &stubAnswerer{frames: []answer.Frame{
		{Type: "meta", Mode: "rag", RequestID: "abcd1234"},
		{Type: "chunk", Data: "hello"},
		{Type: "done"},
	}}
	srv := newTestServer(t, answerer, &stubFeedback{}, nil)

	resp := postJSON(t, srv.URL+"/api/chat/stream", `{"message": "What is Project X?"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var frames []answer.Frame
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var f answer.Frame
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &f))
		frames = append(frames, f)
	}

	require.Len(t, frames, 3)
	assert.Equal(t, "meta", frames[0].Type)
	assert.Equal(t, "hello", frames[1].Data)
	assert.Equal(t, "done", frames[2].Type)
}

func TestFeedbackValidation(t *testing.T) {
	store := &stubFeedback{}
	srv := newTestServer(t, &stubAnswerer{}, store, nil)

	cases := []struct {
		body string
		want int
	}{
		{`{"feedback": 1}`, http.StatusBadRequest},
		{`{"response_id": "r1"}`, http.StatusBadRequest},
		{`{"response_id": "r1", "feedback": 2}`, http.StatusBadRequest},
		{`not json`, http.StatusBadRequest},
		{`{"response_id": "r1", "feedback": -1, "correction": "actually Q4"}`, http.StatusOK},
	}
	for _, tc := range cases {
		resp := postJSON(t, srv.URL+"/api/feedback", tc.body)
		assert.Equal(t, tc.want, resp.StatusCode, "body: %s", tc.body)
	}

	assert.Equal(t, "r1", store.responseID)
	assert.Equal(t, -1, store.feedback)
	assert.Equal(t, "actually Q4", store.correction)
}

func TestFeedbackUnknownResponse(t *testing.T) {
	srv := newTestServer(t, &stubAnswerer{}, &stubFeedback{err: ledger.ErrNotFound}, nil)

	resp := postJSON(t, srv.URL+"/api/feedback", `{"response_id": "nope", "feedback": 1}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDebugMetrics(t *testing.T) {
	store := &stubFeedback{metrics: &ledger.DebugMetrics{
		PositiveFeedback: 3,
		NegativeFeedback: 1,
		TotalFeedback:    4,
		TotalQueries:     10,
	}}
	srv := newTestServer(t, &stubAnswerer{}, store, nil)

	resp, err := http.Get(srv.URL + "/api/debug/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var m ledger.DebugMetrics
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	assert.Equal(t, 3, m.PositiveFeedback)
	assert.Equal(t, 10, m.TotalQueries)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubAnswerer{}, &stubFeedback{}, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestReadiness(t *testing.T) {
	checks := health.NewManager(time.Second, zap.NewNop())
	checks.Register(health.NewFuncChecker("ledger", true, func(ctx context.Context) error {
		return errors.New("connection refused")
	}))
	checks.Register(health.NewFuncChecker("redis", false, func(ctx context.Context) error {
		return nil
	}))
	srv := newTestServer(t, &stubAnswerer{}, &stubFeedback{}, checks)

	resp, err := http.Get(srv.URL + "/readiness")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body struct {
		Status string                        `json:"status"`
		Checks map[string]health.CheckResult `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "not ready", body.Status)
	assert.False(t, body.Checks["ledger"].Healthy)
	assert.Contains(t, body.Checks["ledger"].Error, "refused")
	assert.True(t, body.Checks["redis"].Healthy)
}

func TestReadinessNonCriticalFailureStaysReady(t *testing.T) {
	checks := health.NewManager(time.Second, zap.NewNop())
	checks.Register(health.NewFuncChecker("redis", false, func(ctx context.Context) error {
		return errors.New("connection refused")
	}))
	srv := newTestServer(t, &stubAnswerer{}, &stubFeedback{}, checks)

	resp, err := http.Get(srv.URL + "/readiness")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	h := New(&stubAnswerer{reply: &answer.Reply{Mode: "general"}}, &stubFeedback{}, nil, zap.NewNop())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux, NewClientLimiter(1, 2))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	statuses := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		resp := postJSON(t, srv.URL+"/api/chat", `{"message": "hello"}`)
		statuses = append(statuses, resp.StatusCode)
	}

	assert.Equal(t, http.StatusOK, statuses[0])
	assert.Equal(t, http.StatusOK, statuses[1])
	assert.Equal(t, http.StatusTooManyRequests, statuses[2])
	assert.Equal(t, http.StatusTooManyRequests, statuses[3])
}
