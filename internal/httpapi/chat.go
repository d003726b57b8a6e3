package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hopline-ai/hopline/internal/answer"
	"github.com/hopline-ai/hopline/internal/metrics"
)

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

func decodeChatRequest(w http.ResponseWriter, r *http.Request) (*chatRequest, bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return nil, false
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return nil, false
	}
	return &req, true
}

// handleChat is the buffered chat endpoint.
// POST /api/chat {"message": "...", "conversation_id": "..."}
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}

	reply, err := h.answerer.Answer(r.Context(), req.Message, req.ConversationID)
	if err != nil {
		h.logger.Error("Chat request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, answer.Reply{
			Blocks:    []answer.Block{answer.Paragraph(answer.ErrorText)},
			Sources:   []answer.Source{},
			Mode:      "general",
			RequestID: uuid.New().String()[:8],
		})
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// handleChatStream is the SSE chat endpoint. Each frame goes out as one
// `data:` line; the stream closes after the done or error frame.
// POST /api/chat/stream {"message": "...", "conversation_id": "..."}
func (h *Handler) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	ctx := r.Context()
	h.answerer.AnswerStream(ctx, req.Message, req.ConversationID, func(f answer.Frame) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		payload, err := json.Marshal(f)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // secure via proxy in prod
}

// handleChatWS is the WebSocket chat endpoint. The client sends one JSON
// chat request per message; the server answers with the same frames as the
// SSE endpoint.
// GET /api/chat/ws
func (h *Handler) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(1 << 16)
	conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
		return nil
	})

	ping := time.NewTicker(20 * time.Second)
	defer ping.Stop()
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			if err := conn.WriteJSON(answer.Frame{Type: "error", Message: "message is required"}); err != nil {
				return
			}
			continue
		}
		conn.SetReadDeadline(time.Now().Add(5 * time.Minute))

		h.answerer.AnswerStream(r.Context(), req.Message, req.ConversationID, func(f answer.Frame) error {
			return conn.WriteJSON(f)
		})
	}
}
