package trace

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// TraceLevel controls what a Recorder keeps.
type TraceLevel string

const (
	// TraceLevelNone disables recording.
	TraceLevelNone TraceLevel = "none"
	// TraceLevelEvents keeps robot logs and faults.
	TraceLevelEvents TraceLevel = "events"
	// TraceLevelCycles additionally keeps every scheduler cycle.
	TraceLevelCycles TraceLevel = "cycles"
)

var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:   true,
	TraceLevelEvents: true,
	TraceLevelCycles: true,
	"":               true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
	Store string // "memory" or "sqlite"
	Path  string // sqlite database file
}

// Recorder appends records to a Store. Safe for concurrent use: robot
// programs log from their own goroutines.
type Recorder struct {
	Config TraceConfig

	mu    sync.Mutex
	store Store
	ctx   context.Context
	errs  int
}

// NewRecorder opens the configured store.
func NewRecorder(ctx context.Context, config TraceConfig) (*Recorder, error) {
	r := &Recorder{Config: config, ctx: ctx}
	if !r.enabled(TraceLevelEvents) {
		return r, nil
	}
	store, err := NewStore(config.Store, config.Path)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	r.store = store
	return r, nil
}

func (r *Recorder) enabled(level TraceLevel) bool {
	switch r.Config.Level {
	case TraceLevelCycles:
		return true
	case TraceLevelEvents:
		return level == TraceLevelEvents
	}
	return false
}

// Store is the underlying store, nil when recording is off.
func (r *Recorder) Store() Store { return r.store }

// RecordCycle appends a cycle record.
func (r *Recorder) RecordCycle(record CycleRecord) {
	if !r.enabled(TraceLevelCycles) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.check(r.store.AppendCycle(r.ctx, record))
}

// RecordLog appends a robot log line.
func (r *Recorder) RecordLog(record LogRecord) {
	if !r.enabled(TraceLevelEvents) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.check(r.store.AppendLog(r.ctx, record))
}

// RecordFault appends a fault.
func (r *Recorder) RecordFault(record FaultRecord) {
	if !r.enabled(TraceLevelEvents) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.check(r.store.AppendFault(r.ctx, record))
}

// check logs the first store failure; later ones are only counted.
func (r *Recorder) check(err error) {
	if err == nil {
		return
	}
	if r.errs == 0 {
		logrus.WithField("source", "sim").Warnf("trace: store write failed: %v", err)
	}
	r.errs++
}

// Close closes the store.
func (r *Recorder) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}
