package gateway

import "sync"

// Store holds named cache partitions of request-key → response snapshot.
// Individual operations are serialized by a single lock; there are no
// cross-request transactions, so two concurrent refreshes of one key
// interleave and the last write wins.
type Store struct {
	mu         sync.RWMutex
	partitions map[string]map[string]*Response
}

func NewStore() *Store {
	return &Store{partitions: make(map[string]map[string]*Response)}
}

// Put stores a snapshot clone under (partition, key), creating the partition
// on first use.
func (s *Store) Put(partition, key string, resp *Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partitions[partition]
	if !ok {
		p = make(map[string]*Response)
		s.partitions[partition] = p
	}
	clone := resp.Clone()
	clone.Source = SourceCache
	p[key] = clone
}

// Get returns a clone of the stored snapshot, if any.
func (s *Store) Get(partition, key string) (*Response, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.partitions[partition]
	if !ok {
		return nil, false
	}
	resp, ok := p[key]
	if !ok {
		return nil, false
	}
	return resp.Clone(), true
}

// Has reports whether (partition, key) is cached.
func (s *Store) Has(partition, key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.partitions[partition][key]
	return ok
}

// Names lists existing partition names.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.partitions))
	for name := range s.partitions {
		names = append(names, name)
	}
	return names
}

// Keys lists the request keys of one partition.
func (s *Store) Keys(partition string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.partitions[partition]
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	return keys
}

// DeletePartition drops a whole partition.
func (s *Store) DeletePartition(partition string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.partitions, partition)
}
