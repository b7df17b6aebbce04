package chat

import (
	"container/list"
	"sync"
	"time"

	"github.com/zhouzirui/chat-gateway/backend/internal/service/ai"
)

// Store maps session identifiers to conversations. Implementations are safe
// for concurrent use.
type Store interface {
	Get(id string) (*ai.Conversation, bool)
	Put(id string, conv *ai.Conversation)
	LoadOrStore(id string, conv *ai.Conversation) (actual *ai.Conversation, loaded bool)
	SweepOlderThan(maxAge time.Duration) int
	Len() int
}

type storeEntry struct {
	conv    *ai.Conversation
	element *list.Element
}

// MemoryStore keeps conversations in process memory. When maxEntries is
// positive, inserting into a full store evicts the least recently used entry.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*storeEntry
	order      *list.List // session ids, least recently used at front
	maxEntries int
	now        func() time.Time
}

// NewMemoryStore creates an empty store. maxEntries <= 0 means unbounded.
func NewMemoryStore(maxEntries int) *MemoryStore {
	return &MemoryStore{
		entries:    make(map[string]*storeEntry),
		order:      list.New(),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the conversation for id and marks it recently used.
func (s *MemoryStore) Get(id string) (*ai.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	s.order.MoveToBack(entry.element)
	return entry.conv, true
}

// Put registers conv under id, replacing any previous conversation.
func (s *MemoryStore) Put(id string, conv *ai.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[id]; ok {
		entry.conv = conv
		s.order.MoveToBack(entry.element)
		return
	}
	s.insertLocked(id, conv)
}

// LoadOrStore returns the existing conversation for id if present. Otherwise
// it stores conv and returns it with loaded=false.
func (s *MemoryStore) LoadOrStore(id string, conv *ai.Conversation) (*ai.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[id]; ok {
		s.order.MoveToBack(entry.element)
		return entry.conv, true
	}
	s.insertLocked(id, conv)
	return conv, false
}

// SweepOlderThan removes conversations created more than maxAge ago and
// returns how many were removed.
func (s *MemoryStore) SweepOlderThan(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for id, entry := range s.entries {
		if entry.conv.CreatedAt().Before(cutoff) {
			s.order.Remove(entry.element)
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored conversations.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// insertLocked must be called with mu held.
func (s *MemoryStore) insertLocked(id string, conv *ai.Conversation) {
	if s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		s.evictOldestLocked()
	}
	s.entries[id] = &storeEntry{conv: conv, element: s.order.PushBack(id)}
}

func (s *MemoryStore) evictOldestLocked() {
	front := s.order.Front()
	if front == nil {
		return
	}
	id, _ := front.Value.(string)
	s.order.Remove(front)
	delete(s.entries, id)
}
