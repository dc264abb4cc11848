package peerlist

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps registrations in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	topics   map[string]map[string]time.Time
	expireIn time.Duration
	now      func() time.Time
}

// NewMemoryStore creates a store whose entries expire after expireIn; zero
// disables expiry.
func NewMemoryStore(expireIn time.Duration) *MemoryStore {
	return &MemoryStore{
		topics:   make(map[string]map[string]time.Time),
		expireIn: expireIn,
		now:      time.Now,
	}
}

func (s *MemoryStore) Register(_ context.Context, topic, addr string) error {
	if err := validate(topic, addr); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	peers, ok := s.topics[topic]
	if !ok {
		peers = make(map[string]time.Time)
		s.topics[topic] = peers
	}
	peers[addr] = s.now()
	return nil
}

func (s *MemoryStore) List(_ context.Context, topic string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneExpired(topic)
	peers := s.topics[topic]
	addrs := make([]string, 0, len(peers))
	for addr := range peers {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	return addrs, nil
}

func (s *MemoryStore) Remove(_ context.Context, topic, addr string) error {
	if err := validate(topic, addr); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if peers, ok := s.topics[topic]; ok {
		delete(peers, addr)
		if len(peers) == 0 {
			delete(s.topics, topic)
		}
	}
	return nil
}

func (s *MemoryStore) pruneExpired(topic string) {
	if s.expireIn <= 0 {
		return
	}
	peers, ok := s.topics[topic]
	if !ok {
		return
	}
	deadline := s.now().Add(-s.expireIn)
	for addr, ts := range peers {
		if ts.Before(deadline) {
			delete(peers, addr)
		}
	}
	if len(peers) == 0 {
		delete(s.topics, topic)
	}
}
