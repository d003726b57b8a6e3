package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hopline-ai/hopline/internal/answer"
)

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/chat/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestChatWSStreamsFrames(t *testing.T) {
	answerer := &stubAnswerer{frames: []answer.Frame{
		{Type: "meta", Mode: "general", RequestID: "abcd1234"},
		{Type: "chunk", Data: "hello there"},
		{Type: "done"},
	}}
	h := New(answerer, &stubFeedback{}, nil, zap.NewNop())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux, nil)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	conn := dialWS(t, srv)
	require.NoError(t, conn.WriteJSON(map[string]string{"message": "hello"}))

	var frames []answer.Frame
	for len(frames) < 3 {
		var f answer.Frame
		require.NoError(t, conn.ReadJSON(&f))
		frames = append(frames, f)
	}

	assert.Equal(t, "meta", frames[0].Type)
	assert.Equal(t, "abcd1234", frames[0].RequestID)
	assert.Equal(t, "hello there", frames[1].Data)
	assert.Equal(t, "done", frames[2].Type)
}

func TestChatWSEmptyMessageGetsErrorFrame(t *testing.T) {
	h := New(&stubAnswerer{}, &stubFeedback{}, nil, zap.NewNop())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux, nil)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	conn := dialWS(t, srv)
	require.NoError(t, conn.WriteJSON(map[string]string{"message": ""}))

	var f answer.Frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "error", f.Type)
}
