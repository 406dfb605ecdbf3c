package thread

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps threads in process memory for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	threads map[string][]Message
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{threads: make(map[string][]Message)}
}

func (s *InMemoryStore) Append(_ context.Context, msgs ...Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		m = withDefaults(m)
		s.threads[m.ThreadID] = append(s.threads[m.ThreadID], m)
	}
	return nil
}

func (s *InMemoryStore) Recent(_ context.Context, threadID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.threads[threadID]
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Message, limit)
	copy(out, arr[len(arr)-limit:])
	return out, nil
}

func (s *InMemoryStore) List(_ context.Context, threadID, resourceID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, 0, len(s.threads[threadID]))
	for _, m := range s.threads[threadID] {
		if resourceID == "" || m.ResourceID == resourceID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *InMemoryStore) DeleteThread(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
	return nil
}

func (s *InMemoryStore) Mode() string { return "in-memory" }

func (s *InMemoryStore) Close() error { return nil }

func withDefaults(m Message) Message {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return m
}
