// Package kvstore provides the key-value capability used for local draft
// snapshots.
package kvstore

// Store is a string key-value store scoped to one user session.
type Store interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
}

// MemoryStore keeps values in a map. It is used by exactly one session at a
// time and is not safe for concurrent use.
type MemoryStore struct {
	data map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (s *MemoryStore) Get(key string) (string, bool, error) {
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(key, value string) error {
	s.data[key] = value
	return nil
}

func (s *MemoryStore) Remove(key string) error {
	delete(s.data, key)
	return nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int { return len(s.data) }
