package trace

import (
	"context"
	"sync"
)

// MemoryStore keeps records in slices.
type MemoryStore struct {
	mu     sync.RWMutex
	cycles []CycleRecord
	logs   []LogRecord
	faults []FaultRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(context.Context) error { return nil }

func (s *MemoryStore) AppendCycle(_ context.Context, record CycleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles = append(s.cycles, record)
	return nil
}

func (s *MemoryStore) AppendLog(_ context.Context, record LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, record)
	return nil
}

func (s *MemoryStore) AppendFault(_ context.Context, record FaultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, record)
	return nil
}

func (s *MemoryStore) Cycles(context.Context) ([]CycleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]CycleRecord(nil), s.cycles...), nil
}

func (s *MemoryStore) Logs(context.Context) ([]LogRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]LogRecord(nil), s.logs...), nil
}

func (s *MemoryStore) Faults(context.Context) ([]FaultRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]FaultRecord(nil), s.faults...), nil
}

func (s *MemoryStore) Close() error { return nil }
