package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryScheduleStore is a mutex-guarded in-memory ScheduleStore used by
// tests and local development. Range queries scan all entries; fine at
// test scale.
type MemoryScheduleStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	scores map[string]float64
}

// NewMemoryScheduleStore creates an empty in-memory schedule store.
func NewMemoryScheduleStore() *MemoryScheduleStore {
	return &MemoryScheduleStore{
		data:   make(map[string][]byte),
		scores: make(map[string]float64),
	}
}

// Add overwrites values but keeps an existing score untouched.
func (s *MemoryScheduleStore) Add(_ context.Context, items ...ScheduleItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		s.data[it.ID] = it.Data
		if _, ok := s.scores[it.ID]; !ok {
			s.scores[it.ID] = it.Priority
		}
	}
	return nil
}

func (s *MemoryScheduleStore) Get(_ context.Context, ids ...string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out [][]byte
	for _, id := range ids {
		if d, ok := s.data[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// Update overwrites value and score only for entries that already exist.
func (s *MemoryScheduleStore) Update(_ context.Context, items ...ScheduleItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		if _, ok := s.data[it.ID]; !ok {
			continue
		}
		s.data[it.ID] = it.Data
		s.scores[it.ID] = it.Priority
	}
	return nil
}

func (s *MemoryScheduleStore) Delete(_ context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.data, id)
		delete(s.scores, id)
	}
	return nil
}

// GetRange returns ids with score in [min, max], ordered by score.
func (s *MemoryScheduleStore) GetRange(_ context.Context, min, max float64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, score := range s.scores {
		if score >= min && score <= max {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		if s.scores[ids[i]] == s.scores[ids[j]] {
			return ids[i] < ids[j]
		}
		return s.scores[ids[i]] < s.scores[ids[j]]
	})
	return ids, nil
}

func (s *MemoryScheduleStore) Size(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data)), nil
}

// MemoryJobStore is the in-memory JobStore counterpart.
type MemoryJobStore struct {
	mu       sync.RWMutex
	data     map[string][]byte
	byParent map[string][]string
}

// NewMemoryJobStore creates an empty in-memory job store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		data:     make(map[string][]byte),
		byParent: make(map[string][]string),
	}
}

func (s *MemoryJobStore) Add(_ context.Context, items ...JobItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		s.data[it.ID] = it.Data
		s.byParent[it.ScheduleID] = append(s.byParent[it.ScheduleID], it.ID)
	}
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, ids ...string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out [][]byte
	for _, id := range ids {
		if d, ok := s.data[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *MemoryJobStore) GetByParent(_ context.Context, scheduleIDs ...string) (map[string][][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][][]byte, len(scheduleIDs))
	for _, sid := range scheduleIDs {
		var jobs [][]byte
		for _, jid := range s.byParent[sid] {
			if d, ok := s.data[jid]; ok {
				jobs = append(jobs, d)
			}
		}
		out[sid] = jobs
	}
	return out, nil
}
