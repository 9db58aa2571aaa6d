package tutor

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultThreadTTL bounds how long an unanswered consent prompt stays
// resumable.
const DefaultThreadTTL = 30 * time.Minute

var ErrThreadNotFound = errors.New("thread not found")

// PendingThread is a workflow suspended at a consent prompt.
type PendingThread struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

// ThreadStore keeps suspended threads until they are resumed once.
type ThreadStore interface {
	Save(ctx context.Context, thread PendingThread) error
	// Take removes and returns a thread. A second Take of the same id fails
	// with ErrThreadNotFound.
	Take(ctx context.Context, id string) (PendingThread, error)
}

type memoryEntry struct {
	thread  PendingThread
	expires time.Time
}

// MemoryThreadStore is an in-process ThreadStore.
type MemoryThreadStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	threads map[string]memoryEntry
}

// NewMemoryThreadStore creates an empty store; ttl <= 0 selects
// DefaultThreadTTL.
func NewMemoryThreadStore(ttl time.Duration) *MemoryThreadStore {
	if ttl <= 0 {
		ttl = DefaultThreadTTL
	}
	return &MemoryThreadStore{
		ttl:     ttl,
		now:     time.Now,
		threads: make(map[string]memoryEntry),
	}
}

func (s *MemoryThreadStore) Save(_ context.Context, thread PendingThread) error {
	if thread.ID == "" {
		return errors.New("thread id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, entry := range s.threads {
		if now.After(entry.expires) {
			delete(s.threads, id)
		}
	}
	s.threads[thread.ID] = memoryEntry{thread: thread, expires: now.Add(s.ttl)}
	return nil
}

func (s *MemoryThreadStore) Take(_ context.Context, id string) (PendingThread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.threads[id]
	if !ok {
		return PendingThread{}, ErrThreadNotFound
	}
	delete(s.threads, id)
	if s.now().After(entry.expires) {
		return PendingThread{}, ErrThreadNotFound
	}
	return entry.thread, nil
}
