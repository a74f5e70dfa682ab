package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/antoniostano/switchboard/internal/call"
)

// InMemoryStore is a simple in-process store for local/dev use and tests.
type InMemoryStore struct {
	mu    sync.RWMutex
	calls map[string]*call.Call
	saves int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{calls: make(map[string]*call.Call)}
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*call.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.calls[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(c), nil
}

func (s *InMemoryStore) SearchOneByPhone(_ context.Context, phoneNumber string) (*call.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *call.Call
	for _, c := range s.calls {
		if c.PhoneNumber != phoneNumber {
			continue
		}
		if latest == nil || c.UpdatedAt.After(latest.UpdatedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return clone(latest), nil
}

func (s *InMemoryStore) SearchAllByPhone(_ context.Context, phoneNumber string, limit int) ([]*call.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	out := make([]*call.Call, 0, limit)
	for _, c := range s.calls {
		if c.PhoneNumber != phoneNumber {
			continue
		}
		out = append(out, clone(c))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) Save(_ context.Context, c *call.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.UpdatedAt = time.Now().UTC()
	s.calls[c.ID] = clone(c)
	s.saves++
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

// Len reports how many calls are stored. Test helper.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.calls)
}

// SaveCount reports how many writes have happened. Test helper.
func (s *InMemoryStore) SaveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

func clone(c *call.Call) *call.Call {
	// Deep copy through JSON keeps the fake honest about shared slices.
	raw, err := json.Marshal(c)
	if err != nil {
		panic(err)
	}
	var out call.Call
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return &out
}
