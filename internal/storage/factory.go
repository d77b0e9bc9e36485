package storage

import "fmt"

// Backend represents the kind of store to open.
type Backend string

const (
	// BackendSQLite stores records in a SQLite database file.
	BackendSQLite Backend = "sqlite"
	// BackendMemory keeps records in memory, optionally persisted as a snapshot file.
	BackendMemory Backend = "memory"
)

// Options describes how to open a store.
type Options struct {
	Backend   Backend
	Driver    string // SQLite driver name; DriverCGO when empty
	Path      string // database path or snapshot path
	Dimension int
	Codec     Codec // snapshot codec for the memory backend
}

// Open opens the store described by opts.
// Supported backends: "sqlite" (default), "memory".
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case BackendSQLite, "":
		return NewSQLiteStore(opts.Path, opts.Dimension, WithDriver(opts.Driver))
	case BackendMemory:
		var memOpts []MemoryOption
		if opts.Path != "" {
			memOpts = append(memOpts, WithSnapshot(opts.Path, opts.Codec))
		}
		return NewMemoryStore(opts.Dimension, memOpts...)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: sqlite, memory)", opts.Backend)
	}
}
