// Package answer is the request orchestrator: mode detection, retrieval via
// the multi-hop controller, prompt assembly, LLM invocation (buffered or
// streamed), structured-output parsing and evidence recording.
package answer

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hopline-ai/hopline/internal/ledger"
	"github.com/hopline-ai/hopline/internal/llm"
	"github.com/hopline-ai/hopline/internal/memory"
	"github.com/hopline-ai/hopline/internal/multihop"
	"github.com/hopline-ai/hopline/internal/retriever"
)

// Canonical user-visible texts.
const (
	FallbackText = "I don't have that information in my knowledge base. Could you try rephrasing, or ask about something else?"
	ErrorText    = "I encountered an issue while processing your request. Please try again."
)

// Runner is the multi-hop dependency.
type Runner interface {
	Run(ctx context.Context, originalQuery string) *multihop.Result
}

// ResponseLedger is the slice of the ledger the orchestrator writes.
type ResponseLedger interface {
	LogResponse(ctx context.Context, id, queryID, content string) error
	LogEvidenceChain(ctx context.Context, chain ledger.EvidenceChain) error
}

// Reply is the buffered answer shape.
type Reply struct {
	Blocks     []Block  `json:"blocks"`
	Sources    []Source `json:"sources"`
	Mode       string   `json:"mode"`
	RequestID  string   `json:"request_id"`
	ResponseID string   `json:"response_id,omitempty"`
}

// Frame is one streamed event.
type Frame struct {
	Type       string   `json:"type"` // "meta", "chunk", "done" or "error"
	Mode       string   `json:"mode,omitempty"`
	Sources    []Source `json:"sources,omitempty"` // set on meta frames
	RequestID  string   `json:"request_id,omitempty"`
	ResponseID string   `json:"response_id,omitempty"`
	Data       string   `json:"data,omitempty"`
	Message    string   `json:"message,omitempty"`
}

// Orchestrator answers user messages. Construct once at startup and share.
type Orchestrator struct {
	runner    Runner
	store     ResponseLedger
	llm       llm.Provider
	prompts   llm.Prompts
	window    *memory.Window
	threshold func() float64
	logger    *zap.Logger
}

// New creates an orchestrator. threshold is read per request so config
// hot-reloads take effect without restart.
func New(runner Runner, store ResponseLedger, provider llm.Provider, prompts llm.Prompts, window *memory.Window, threshold func() float64, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		runner:    runner,
		store:     store,
		llm:       provider,
		prompts:   prompts,
		window:    window,
		threshold: threshold,
		logger:    logger,
	}
}

// newRequestID draws the short request identifier: the first 8 hex chars of
// a UUID. The full UUID doubles as the response row id.
func newRequestID() (requestID, responseID string) {
	full := uuid.New().String()
	return full[:8], full
}

// Answer produces a buffered reply. LLM failures are returned to the caller;
// retrieval and ledger failures degrade internally.
func (o *Orchestrator) Answer(ctx context.Context, message, conversationID string) (*Reply, error) {
	requestID, responseID := newRequestID()
	if conversationID == "" {
		conversationID = requestID
	}

	mode := DetectMode(message)
	if mode == ModeGeneral {
		return o.answerGeneral(ctx, message, conversationID, requestID)
	}
	return o.answerKnowledge(ctx, message, conversationID, requestID, responseID)
}

func (o *Orchestrator) answerGeneral(ctx context.Context, message, conversationID, requestID string) (*Reply, error) {
	raw, err := o.llm.Complete(ctx, o.buildMessages(o.prompts.General, conversationID, message))
	if err != nil {
		return nil, err
	}

	o.persistTurns(conversationID, message, raw)
	return &Reply{
		Blocks:    ParseLLMJSON(raw),
		Sources:   []Source{},
		Mode:      "general",
		RequestID: requestID,
	}, nil
}

func (o *Orchestrator) answerKnowledge(ctx context.Context, message, conversationID, requestID, responseID string) (*Reply, error) {
	mh := o.runner.Run(ctx, message)
	contextText, sources, ok := o.selectEvidence(mh)
	if !ok {
		return &Reply{
			Blocks:    []Block{Paragraph(FallbackText)},
			Sources:   []Source{},
			Mode:      "rag",
			RequestID: requestID,
		}, nil
	}

	raw, err := o.llm.Complete(ctx, o.buildMessages(o.prompts.RenderRAG(contextText), conversationID, message))
	if err != nil {
		return nil, err
	}

	o.persistTurns(conversationID, message, raw)
	o.recordResponse(ctx, responseID, mh, raw)

	return &Reply{
		Blocks:     ParseLLMJSON(raw),
		Sources:    sources,
		Mode:       "rag",
		RequestID:  requestID,
		ResponseID: responseID,
	}, nil
}

// AnswerStream produces a streamed reply, emitting frames through emit.
// A failed emit (client gone) aborts quietly. On LLM timeout the partial
// content is finalised: the done frame is still sent and only non-empty
// partials are persisted.
func (o *Orchestrator) AnswerStream(ctx context.Context, message, conversationID string, emit func(Frame) error) {
	requestID, responseID := newRequestID()
	if conversationID == "" {
		conversationID = requestID
	}

	mode := DetectMode(message)
	if mode == ModeGeneral {
		o.streamCompletion(ctx, o.prompts.General, message, conversationID, Frame{
			Type: "meta", Mode: "general", Sources: []Source{}, RequestID: requestID,
		}, nil, "", emit)
		return
	}

	mh := o.runner.Run(ctx, message)
	contextText, sources, ok := o.selectEvidence(mh)
	if !ok {
		emitAll(emit,
			Frame{Type: "meta", Mode: "rag", Sources: []Source{}, RequestID: requestID},
			Frame{Type: "chunk", Data: FallbackText},
			Frame{Type: "done"},
		)
		return
	}

	o.streamCompletion(ctx, o.prompts.RenderRAG(contextText), message, conversationID, Frame{
		Type: "meta", Mode: "rag", Sources: sources, RequestID: requestID, ResponseID: responseID,
	}, mh, responseID, emit)
}

func (o *Orchestrator) streamCompletion(ctx context.Context, systemPrompt, message, conversationID string, meta Frame, mh *multihop.Result, responseID string, emit func(Frame) error) {
	if err := emit(meta); err != nil {
		return
	}

	clientGone := false
	full, err := o.llm.Stream(ctx, o.buildMessages(systemPrompt, conversationID, message), func(chunk string) error {
		if err := emit(Frame{Type: "chunk", Data: chunk}); err != nil {
			clientGone = true
			return err
		}
		return nil
	})

	switch {
	case clientGone:
		o.logger.Debug("Client disconnected mid-stream",
			zap.String("conversation_id", conversationID))
		return
	case err == nil:
		// clean finish
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		o.logger.Warn("Stream cut short, finalising partial answer",
			zap.String("conversation_id", conversationID),
			zap.Int("partial_len", len(full)),
		)
	default:
		o.logger.Error("Stream failed", zap.Error(err))
		emit(Frame{Type: "error", Message: ErrorText})
		return
	}

	emit(Frame{Type: "done"})

	if strings.TrimSpace(full) != "" {
		o.persistTurns(conversationID, message, full)
		if mh != nil && responseID != "" {
			o.recordResponse(ctx, responseID, mh, full)
		}
	}
}

// selectEvidence applies the similarity threshold to a run's results and
// assembles the context string plus user-facing sources. ok is false when
// retrieval lacks sufficient support and the fallback applies.
func (o *Orchestrator) selectEvidence(mh *multihop.Result) (string, []Source, bool) {
	threshold := o.threshold()

	highest := retriever.HighestScore(mh.Results)
	if highest == nil || *highest < threshold {
		return "", nil, false
	}

	var parts []string
	var sources []Source
	for _, r := range mh.Results {
		if r.FinalScore < threshold {
			continue
		}
		if text := r.Text(); text != "" {
			parts = append(parts, text)
		}
		sources = append(sources, Source{
			Title:  r.Title(),
			Source: r.SourceName(),
			Score:  r.FinalScore,
		})
	}

	contextText := strings.Join(parts, "\n\n")
	if strings.TrimSpace(contextText) == "" {
		return "", nil, false
	}
	return contextText, sources, true
}

func (o *Orchestrator) buildMessages(systemPrompt, conversationID, message string) []llm.Message {
	history := o.window.Get(conversationID)
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: systemPrompt})
	for _, turn := range history {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	return append(messages, llm.Message{Role: "user", Content: message})
}

func (o *Orchestrator) persistTurns(conversationID, userMessage, assistantContent string) {
	o.window.Append(conversationID, "user", userMessage)
	o.window.Append(conversationID, "assistant", assistantContent)
}

// recordResponse writes the response row and its evidence chain. Failures
// are logged; the user still gets their answer.
func (o *Orchestrator) recordResponse(ctx context.Context, responseID string, mh *multihop.Result, content string) {
	if err := o.store.LogResponse(ctx, responseID, mh.QueryID, content); err != nil {
		o.logger.Warn("Failed to record response",
			zap.String("response_id", responseID),
			zap.Error(err),
		)
		return
	}

	docIDs := make([]string, 0, len(mh.Results))
	for _, r := range mh.Results {
		docIDs = append(docIDs, r.ID)
	}
	confidence := 0.0
	if h := retriever.HighestScore(mh.Results); h != nil {
		confidence = *h
	}

	if err := o.store.LogEvidenceChain(ctx, ledger.EvidenceChain{
		ID:              uuid.New().String(),
		ResponseID:      responseID,
		HopIDs:          mh.HopIDs,
		DocumentIDs:     docIDs,
		ConfidenceScore: confidence,
	}); err != nil {
		o.logger.Warn("Failed to record evidence chain",
			zap.String("response_id", responseID),
			zap.Error(err),
		)
	}
}

func emitAll(emit func(Frame) error, frames ...Frame) {
	for _, f := range frames {
		if err := emit(f); err != nil {
			return
		}
	}
}
