package clarify

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with TTL expiry
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Pending
	ttl     time.Duration
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// NewMemoryStore creates a store whose entries expire after ttl. A background
// goroutine sweeps expired entries until Close is called.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &MemoryStore{
		entries: make(map[string]*Pending),
		ttl:     ttl,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go s.cleanup()
	return s
}

// Save implements Store
func (s *MemoryStore) Save(_ context.Context, sessionID string, p *Pending) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.mu.Lock()
	s.entries[sessionID] = p
	s.mu.Unlock()
	return nil
}

// Get implements Store
func (s *MemoryStore) Get(_ context.Context, sessionID string) (*Pending, error) {
	s.mu.RLock()
	p, ok := s.entries[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	if s.now().Sub(p.CreatedAt) > s.ttl {
		s.mu.Lock()
		delete(s.entries, sessionID)
		s.mu.Unlock()
		return nil, nil
	}
	return p, nil
}

// Clear implements Store
func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.entries, sessionID)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the background sweeper
func (s *MemoryStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *MemoryStore) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.entries {
		if now.Sub(p.CreatedAt) > s.ttl {
			delete(s.entries, id)
		}
	}
}
