package trace

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore writes records to a sqlite database file.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	// one writer; sqlite serialises anyway
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) AppendCycle(ctx context.Context, r CycleRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO cycles (tick, writes, published, duration_us, budget_us)
		VALUES (?, ?, ?, ?, ?)
	`, r.Tick, r.Writes, r.Published, r.DurationMicros, r.BudgetMicros)
	return err
}

func (s *SQLiteStore) AppendLog(ctx context.Context, r LogRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO logs (tick, robot, message) VALUES (?, ?, ?)`, r.Tick, r.Robot, r.Message)
	return err
}

func (s *SQLiteStore) AppendFault(ctx context.Context, r FaultRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO faults (tick, robot, kind, message) VALUES (?, ?, ?, ?)`, r.Tick, r.Robot, r.Kind, r.Message)
	return err
}

func (s *SQLiteStore) Cycles(ctx context.Context) ([]CycleRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT tick, writes, published, duration_us, budget_us FROM cycles ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		var r CycleRecord
		if err := rows.Scan(&r.Tick, &r.Writes, &r.Published, &r.DurationMicros, &r.BudgetMicros); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Logs(ctx context.Context) ([]LogRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT tick, robot, message FROM logs ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LogRecord
	for rows.Next() {
		var r LogRecord
		if err := rows.Scan(&r.Tick, &r.Robot, &r.Message); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Faults(ctx context.Context) ([]FaultRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT tick, robot, kind, message FROM faults ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FaultRecord
	for rows.Next() {
		var r FaultRecord
		if err := rows.Scan(&r.Tick, &r.Robot, &r.Kind, &r.Message); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS cycles (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			tick INTEGER NOT NULL,
			writes INTEGER NOT NULL,
			published INTEGER NOT NULL,
			duration_us INTEGER NOT NULL,
			budget_us INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS logs (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			tick INTEGER NOT NULL,
			robot TEXT NOT NULL,
			message TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS faults (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			tick INTEGER NOT NULL,
			robot TEXT NOT NULL,
			kind TEXT NOT NULL,
			message TEXT NOT NULL
		);
	`)
	return err
}
