package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/chat-gateway/backend/internal/service/ai"
	"github.com/zhouzirui/chat-gateway/backend/internal/service/ai/aitest"
)

func conversationAt(t *testing.T, created time.Time) *ai.Conversation {
	t.Helper()
	svc, err := ai.NewService(context.Background(), aitest.Echo(), ai.Options{
		Now: func() time.Time { return created },
	})
	require.NoError(t, err)
	return svc.StartConversation(nil)
}

func TestMemoryStore_GetMissing(t *testing.T) {
	store := NewMemoryStore(0)

	_, ok := store.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_PutAndGet(t *testing.T) {
	store := NewMemoryStore(0)
	conv := conversationAt(t, time.Now())

	store.Put("abc", conv)

	got, ok := store.Get("abc")
	require.True(t, ok)
	assert.Same(t, conv, got)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_PutReplaces(t *testing.T) {
	store := NewMemoryStore(0)
	first := conversationAt(t, time.Now())
	second := conversationAt(t, time.Now())

	store.Put("abc", first)
	store.Put("abc", second)

	got, ok := store.Get("abc")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_LoadOrStore(t *testing.T) {
	store := NewMemoryStore(0)
	first := conversationAt(t, time.Now())
	second := conversationAt(t, time.Now())

	actual, loaded := store.LoadOrStore("abc", first)
	assert.False(t, loaded)
	assert.Same(t, first, actual)

	actual, loaded = store.LoadOrStore("abc", second)
	assert.True(t, loaded)
	assert.Same(t, first, actual)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_EvictsLeastRecentlyUsed(t *testing.T) {
	store := NewMemoryStore(2)

	store.Put("a", conversationAt(t, time.Now()))
	store.Put("b", conversationAt(t, time.Now()))

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := store.Get("a")
	require.True(t, ok)

	store.Put("c", conversationAt(t, time.Now()))

	assert.Equal(t, 2, store.Len())
	_, ok = store.Get("b")
	assert.False(t, ok)
	_, ok = store.Get("a")
	assert.True(t, ok)
	_, ok = store.Get("c")
	assert.True(t, ok)
}

func TestMemoryStore_SweepOlderThan(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore(0)
	store.now = func() time.Time { return now }

	store.Put("old", conversationAt(t, now.Add(-2*time.Hour)))
	store.Put("fresh", conversationAt(t, now.Add(-10*time.Minute)))
	store.Put("not-a-timestamp", conversationAt(t, now.Add(-90*time.Minute)))

	removed := store.SweepOlderThan(time.Hour)

	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, store.Len())
	_, ok := store.Get("old")
	assert.False(t, ok)
	_, ok = store.Get("not-a-timestamp")
	assert.False(t, ok)
	_, ok = store.Get("fresh")
	assert.True(t, ok)

	// The LRU list must stay consistent after sweeping.
	store.Put("next", conversationAt(t, now))
	assert.Equal(t, 2, store.Len())
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore(50)
	conv := conversationAt(t, time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := fmt.Sprintf("s-%d-%d", n, j%10)
				store.LoadOrStore(id, conv)
				store.Get(id)
				if j%17 == 0 {
					store.SweepOlderThan(time.Hour)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, store.Len(), 50)
}
