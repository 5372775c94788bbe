package trace

import (
	"context"
	"fmt"
)

// Store persists run records.
type Store interface {
	Init(ctx context.Context) error
	AppendCycle(ctx context.Context, record CycleRecord) error
	AppendLog(ctx context.Context, record LogRecord) error
	AppendFault(ctx context.Context, record FaultRecord) error
	Cycles(ctx context.Context) ([]CycleRecord, error)
	Logs(ctx context.Context) ([]LogRecord, error)
	Faults(ctx context.Context) ([]FaultRecord, error)
	Close() error
}

// NewStore builds a store by backend name.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(sqlitePath), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}
