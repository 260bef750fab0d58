package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dealerops/sheetbridge/command"
)

// MemoryStore is an in-process Store for tests and single-shot tooling. It
// honors the full Store contract but does not survive a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	items  map[int64]QueuedCommand
	now    func() time.Time
}

// NewMemoryStore returns an empty in-memory queue store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[int64]QueuedCommand{}, now: time.Now}
}

func (s *MemoryStore) Insert(_ context.Context, cmd command.Command) (QueuedCommand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	entry := QueuedCommand{
		ID:       s.nextID,
		Payload:  cmd,
		ScopeID:  cmd.ScopeID,
		QueuedAt: s.now().UTC(),
	}
	s.items[entry.ID] = entry
	return entry, nil
}

func (s *MemoryStore) List(_ context.Context) ([]QueuedCommand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]QueuedCommand, 0, len(s.items))
	for _, entry := range s.items {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QueuedAt.Equal(out[j].QueuedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].QueuedAt.Before(out[j].QueuedAt)
	})
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items), nil
}

func (s *MemoryStore) MarkRetry(_ context.Context, id int64, retries int, nextRetryAt time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.items[id]
	if !ok {
		return nil
	}
	entry.Retries = retries
	next := nextRetryAt.UTC()
	entry.NextRetryAt = &next
	entry.LastError = lastError
	s.items[id] = entry
	return nil
}

func (s *MemoryStore) RemoveByID(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = map[int64]QueuedCommand{}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
