package trace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
)

// ExportCSV writes cycles.csv, logs.csv and faults.csv into dir. Files for
// empty tables are written with headers only.
func ExportCSV(ctx context.Context, store Store, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	cycles, err := store.Cycles(ctx)
	if err != nil {
		return fmt.Errorf("read cycles: %w", err)
	}
	if err := writeCSV(filepath.Join(dir, "cycles.csv"), cycles); err != nil {
		return err
	}
	logs, err := store.Logs(ctx)
	if err != nil {
		return fmt.Errorf("read logs: %w", err)
	}
	if err := writeCSV(filepath.Join(dir, "logs.csv"), logs); err != nil {
		return err
	}
	faults, err := store.Faults(ctx)
	if err != nil {
		return fmt.Errorf("read faults: %w", err)
	}
	return writeCSV(filepath.Join(dir, "faults.csv"), faults)
}

func writeCSV[T any](path string, records []T) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if records == nil {
		records = []T{}
	}
	if err := gocsv.MarshalFile(records, f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
