package store

import (
	"context"
	"sync"

	"github.com/headline-goat/variant-goat/internal/experiment"
)

// MemoryStore keeps everything in process memory. Used for tests and
// server-side rendering where nothing needs to outlive the process.
type MemoryStore struct {
	mu          sync.RWMutex
	assignments map[string]string
	events      []experiment.Event
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{assignments: make(map[string]string)}
}

func assignmentKey(testID, userID string) string {
	return testID + "\x00" + userID
}

func (s *MemoryStore) GetAssignment(ctx context.Context, testID, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.assignments[assignmentKey(testID, userID)]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) CreateAssignment(ctx context.Context, a experiment.Assignment) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := assignmentKey(a.TestID, a.UserID)
	if existing, ok := s.assignments[key]; ok {
		return existing, false, nil
	}
	s.assignments[key] = a.VariantID
	return a.VariantID, true, nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, e experiment.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, e)
	return nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, testID string) ([]experiment.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []experiment.Event
	for _, e := range s.events {
		if testID == "" || e.TestID == testID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
