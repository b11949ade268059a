package session

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// memoryHeadroom multiplies the nominal capacity into the cache's cost
// budget. Ristretto only evicts, and may refuse new keys, once the budget is
// full, so sessions within the nominal capacity always stay resident.
const memoryHeadroom = 4

// MemoryStore keeps sessions in process memory. Sessions are lost on restart.
// It is a cache: past maxSessions*memoryHeadroom live sessions, older ones can
// be evicted and Save can fail with ErrRejected. Use RedisStore when that
// limit matters.
type MemoryStore struct {
	cache *ristretto.Cache
}

// NewMemoryStore creates a store sized for maxSessions concurrent sessions.
func NewMemoryStore(maxSessions int64) (*MemoryStore, error) {
	if maxSessions <= 0 {
		return nil, fmt.Errorf("invalid session capacity %d", maxSessions)
	}
	budget := maxSessions * memoryHeadroom
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        budget * 10,
		MaxCost:            budget,
		BufferItems:        64,
		IgnoreInternalCost: true, // each session costs 1
	})
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: cache}, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	v, ok := m.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	stored := v.(Session)
	s := stored
	s.ID = id
	s.Flashes = append([]Flash(nil), stored.Flashes...)
	return &s, nil
}

// Save stores a copy of s. Writes are applied before Save returns.
func (m *MemoryStore) Save(ctx context.Context, s *Session, ttl time.Duration) error {
	stored := *s
	stored.Flashes = append([]Flash(nil), s.Flashes...)
	if !m.cache.SetWithTTL(s.ID, stored, 1, ttl) {
		return ErrRejected
	}
	m.cache.Wait()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.cache.Del(id)
	m.cache.Wait()
	return nil
}

// Close releases the cache.
func (m *MemoryStore) Close() {
	m.cache.Close()
}
