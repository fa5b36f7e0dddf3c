package shared

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore keeps the document in process. Notifications are delivered
// synchronously from UpsertMerge, after the store lock is released.
type MemoryStore struct {
	mu          sync.Mutex
	fields      map[string]json.RawMessage
	subscribers map[int]func(Document)
	nextID      int
	writes      int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		fields:      map[string]json.RawMessage{},
		subscribers: map[int]func(Document){},
	}
}

func (s *MemoryStore) Subscribe(ctx context.Context, onChange func(Document)) (Subscription, error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = onChange
	current := DecodeFields(s.fields)
	s.mu.Unlock()

	onChange(current)

	return subscriptionFunc(func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}), nil
}

func (s *MemoryStore) UpsertMerge(ctx context.Context, patch Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fields, err := patch.Fields()
	if err != nil {
		return err
	}

	s.mu.Lock()
	for k, v := range fields {
		s.fields[k] = v
	}
	s.writes++
	doc := DecodeFields(s.fields)
	subscribers := make([]func(Document), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subscribers = append(subscribers, fn)
	}
	s.mu.Unlock()

	for _, fn := range subscribers {
		fn(doc)
	}
	return nil
}

// Put replaces a raw field, bypassing notification. Used to seed fields
// this subsystem does not own.
func (s *MemoryStore) Put(field string, raw json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields[field] = raw
}

// Document returns the current stored document.
func (s *MemoryStore) Document() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return DecodeFields(s.fields)
}

// Field returns a raw stored field.
func (s *MemoryStore) Field(name string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.fields[name]
	return raw, ok
}

// Writes counts successful upserts.
func (s *MemoryStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Subscribers counts live subscriptions.
func (s *MemoryStore) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}
