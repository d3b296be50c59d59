package approval

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps tickets in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	tickets map[string]Ticket
	now     func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets: make(map[string]Ticket),
		now:     time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, t *Ticket) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("ticket id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[t.ID]; ok {
		return fmt.Errorf("ticket %s already exists", t.ID)
	}
	s.tickets[t.ID] = *t
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *MemoryStore) Decide(_ context.Context, id string, d Decision) (*Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if t.Decided() {
		return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyDecided, id, t.State)
	}
	t.State = d.state()
	t.DecidedBy = d.By
	t.Reason = d.Reason
	t.DecidedAt = s.now().UTC()
	s.tickets[id] = t
	return &t, nil
}

// lookup must be called with mu held.
func (s *MemoryStore) lookup(id string) (Ticket, error) {
	t, ok := s.tickets[id]
	if !ok {
		return Ticket{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if t.Expired(s.now()) {
		delete(s.tickets, id)
		return Ticket{}, fmt.Errorf("%w: %s (expired)", ErrNotFound, id)
	}
	return t, nil
}
