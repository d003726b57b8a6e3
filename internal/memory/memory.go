// Package memory keeps a per-conversation rolling window of prior turns.
// Process lifetime only; nothing is persisted.
package memory

import "sync"

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Window maps conversation ids to their most recent turns, trimmed to a
// fixed length. Appends to the same conversation are serialised; distinct
// conversations do not contend.
type Window struct {
	limit int

	mu            sync.Mutex
	conversations map[string]*conversation
}

type conversation struct {
	mu       sync.Mutex
	messages []Message
}

// NewWindow creates a window keeping at most limit messages per conversation.
func NewWindow(limit int) *Window {
	if limit <= 0 {
		limit = 6
	}
	return &Window{
		limit:         limit,
		conversations: make(map[string]*conversation),
	}
}

func (w *Window) conversationFor(id string) *conversation {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.conversations[id]
	if !ok {
		c = &conversation{}
		w.conversations[id] = c
	}
	return c
}

// Get returns a copy of the conversation's current messages in order.
func (w *Window) Get(id string) []Message {
	c := w.conversationFor(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Append pushes a turn to the tail, trimming the head once the window
// exceeds its limit.
func (w *Window) Append(id, role, content string) {
	c := w.conversationFor(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, Message{Role: role, Content: content})
	if overflow := len(c.messages) - w.limit; overflow > 0 {
		c.messages = append([]Message(nil), c.messages[overflow:]...)
	}
}
