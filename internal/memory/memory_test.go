package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndGet(t *testing.T) {
	w := NewWindow(6)
	w.Append("c1", "user", "hello")
	w.Append("c1", "assistant", "hi there")

	msgs := w.Get("c1")
	require.Len(t, msgs, 2)
	assert.Equal(t, Message{Role: "user", Content: "hello"}, msgs[0])
	assert.Equal(t, Message{Role: "assistant", Content: "hi there"}, msgs[1])
}

func TestTrimKeepsMostRecent(t *testing.T) {
	w := NewWindow(3)
	for i := 0; i < 5; i++ {
		w.Append("c1", "user", fmt.Sprintf("msg-%d", i))
	}

	msgs := w.Get("c1")
	require.Len(t, msgs, 3)
	assert.Equal(t, "msg-2", msgs[0].Content)
	assert.Equal(t, "msg-4", msgs[2].Content)
}

func TestConversationsAreIndependent(t *testing.T) {
	w := NewWindow(6)
	w.Append("c1", "user", "one")
	w.Append("c2", "user", "two")

	assert.Len(t, w.Get("c1"), 1)
	assert.Len(t, w.Get("c2"), 1)
	assert.Empty(t, w.Get("unknown"))
}

func TestGetReturnsCopy(t *testing.T) {
	w := NewWindow(6)
	w.Append("c1", "user", "original")

	msgs := w.Get("c1")
	msgs[0].Content = "mutated"

	assert.Equal(t, "original", w.Get("c1")[0].Content)
}

func TestConcurrentAppends(t *testing.T) {
	w := NewWindow(100)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			w.Append("c1", "user", fmt.Sprintf("msg-%d", n))
		}(i)
	}
	wg.Wait()

	assert.Len(t, w.Get("c1"), 50)
}
