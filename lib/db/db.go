package db

import (
	"fmt"
	"sort"
	"sync"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplBolt  Implementation = "bolt"
	ImplMdbx  Implementation = "mdbx"
	ImplRocks Implementation = "rocksdb"
)

// Feature represents engine features as bit flags
type Feature uint64

const (
	FeatureCapacityLimit Feature = 1 << iota // Writes fail with ErrCapacity once Options.MaxSizeBytes is reached
	FeatureSnapshotReads                     // Read transactions see a stable snapshot
	FeatureOffHeapReads                      // Returned slices point into the memory map
)

func (f Feature) String() string {
	switch f {
	case FeatureCapacityLimit:
		return "CapacityLimit"
	case FeatureSnapshotReads:
		return "SnapshotReads"
	case FeatureOffHeapReads:
		return "OffHeapReads"
	default:
		return "Unknown"
	}
}

// Table is the name of a sub-table inside an environment.
// Sub-tables are created by the first write that touches them,
// reading a table that was never written behaves like reading an empty table.
type Table string

func (t Table) Name() string {
	return string(t)
}

// Options configure an engine when it is opened.
type Options struct {
	Dir          string // Directory holding the data files
	MaxSizeBytes int64  // Ceiling for the data file (0 = engine default)
	MaxTables    int    // Maximum number of sub-tables (only used by engines that need it)
	NoSync       bool   // Skip fsync on commit
}

type Info struct {
	SizeBytes         int64          `json:"size_bytes"`
	MaxSizeBytes      int64          `json:"max_size_bytes"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Path              string         `json:"path"`
}

// --------------------------------------------------------------------------
// Environment Interfaces
// --------------------------------------------------------------------------

// Env is the top level storage container. It owns the data files and all sub-tables.
// Exactly one write transaction may be open at any time, any number of read transactions
// may be open concurrently. Implementations must block or fail in BeginWrite while
// another write transaction is open.
type Env interface {
	// BeginRead opens a read transaction on the last committed state.
	// The returned transaction must be released, long-lived readers block space reclamation.
	BeginRead() (txn ReadTxn, err error)

	// BeginWrite opens the single write transaction of the environment.
	// Only the writer (see package writer) is supposed to call this.
	BeginWrite() (txn WriteTxn, err error)

	// SupportsFeature checks if the engine supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// Info returns information about the environment.
	Info() (info Info)

	// Close releases the memory map and all file handles.
	Close() (err error)
}

// Reader is the read view of a transaction.
// Slices returned by Get and by cursors are only valid until the transaction ends.
type Reader interface {
	// Get retrieves the value for an exact key. The boolean return value
	// indicates whether the key was found.
	Get(table Table, key []byte) (value []byte, found bool, err error)

	// Cursor opens an ordered cursor over the table. The cursor must be closed
	// before the transaction ends.
	Cursor(table Table) (cursor Cursor, err error)
}

// Writer is the mutable view of the write transaction.
type Writer interface {
	Reader

	// Put inserts or overwrites a key. Implementations copy key and value,
	// the caller may reuse both slices once Put returns.
	Put(table Table, key, value []byte) (err error)

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(table Table, key []byte) (err error)
}

type ReadTxn interface {
	Reader
	// Release ends the read transaction. Calling it twice is a no-op.
	Release()
}

type WriteTxn interface {
	Writer
	// Commit makes all writes visible to new readers. After a failed commit
	// nothing of this transaction is visible.
	Commit() (err error)
	// Abort discards the transaction. Calling it after Commit is a no-op.
	Abort()
}

// Cursor iterates a table in byte-lexicographic key order.
// All positioning methods return a nil key once the cursor runs off the table.
type Cursor interface {
	First() (key, value []byte)
	Last() (key, value []byte)
	// Seek moves to the first key >= seek.
	Seek(seek []byte) (key, value []byte)
	Next() (key, value []byte)
	Prev() (key, value []byte)
	Close()
}

// --------------------------------------------------------------------------
// Engine Registry
// --------------------------------------------------------------------------

// Factory opens an engine with the given options.
type Factory func(opts Options) (Env, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[Implementation]Factory)
)

// Register makes an engine available under the given name.
// Engine packages call this from their init function.
func Register(impl Implementation, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if factory == nil {
		panic("db: Register factory is nil")
	}
	if _, dup := registry[impl]; dup {
		panic("db: Register called twice for engine " + string(impl))
	}
	registry[impl] = factory
}

// Open opens a registered engine.
func Open(impl Implementation, opts Options) (Env, error) {
	registryMu.RLock()
	factory, ok := registry[impl]
	registryMu.RUnlock()
	if !ok {
		return nil, NewError(ErrCodeConfig, fmt.Sprintf("unknown engine %q (registered: %v)", impl, Registered()))
	}
	return factory(opts)
}

// Registered returns the sorted names of all registered engines.
func Registered() []Implementation {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]Implementation, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// SupportedFeatures lists the single features contained in f.
func SupportedFeatures(f Feature) []Feature {
	var out []Feature
	for bit := FeatureCapacityLimit; bit <= FeatureOffHeapReads; bit <<= 1 {
		if f&bit != 0 {
			out = append(out, bit)
		}
	}
	return out
}
