package memory

import (
	"context"
	"sync"
)

// Store is an in-process storage.KeyValueStore. Values are copied on the way
// in and out so callers cannot alias the stored bytes.
type Store struct {
	mu     sync.Mutex
	values map[string][]byte
	puts   int
	failFn func(key string) error
}

func New() *Store {
	return &Store{values: make(map[string][]byte)}
}

// NewWithValues seeds the store, e.g. with a previously persisted snapshot.
func NewWithValues(values map[string]string) *Store {
	s := New()
	for k, v := range values {
		s.values[k] = []byte(v)
	}
	return s
}

// Get implements storage.KeyValueStore
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Put implements storage.KeyValueStore
func (s *Store) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFn != nil {
		if err := s.failFn(key); err != nil {
			return err
		}
	}
	s.values[key] = append([]byte(nil), value...)
	s.puts++
	return nil
}

// FailPuts makes subsequent Puts return the error produced by fn. A nil fn
// restores normal behaviour.
func (s *Store) FailPuts(fn func(key string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFn = fn
}

// Puts returns how many writes succeeded.
func (s *Store) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

// Value returns the stored value as a string, for assertions.
func (s *Store) Value(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return string(v), ok
}
