// Package db defines the environment and transaction interfaces the storage core
// is written against, the engine registry and the error taxonomy.
//
// Key Components:
//
//   - Env: the top level container of an engine. It hands out read transactions
//     (any number, concurrently) and write transactions (one at a time).
//
//   - Reader / Writer: the views passed to lookups, serdes and write operations.
//     Byte slices returned by a Reader point into engine memory and are only valid
//     until the transaction ends; callers copy what they keep.
//
//   - Cursor: ordered iteration over one sub-table (First, Last, Seek, Next, Prev).
//
//   - Feature Flags: engines advertise optional capabilities (size ceiling,
//     snapshot reads, off-heap reads) through SupportsFeature.
//
//   - Registry: engines register a Factory under their Implementation name in an
//     init function. Importing an engine package is enough to make it available to Open:
//
//     import _ "github.com/ValentinKolb/planb/lib/db/engines/bolt"
//
//   - Errors: every failure of the core is an *Error with an ErrCode. Match
//     categories with errors.Is against the sentinels (ErrSerde, ErrCapacity,
//     ErrCollision, ErrWriterShutdown, ErrConfig, ErrInternal).
//
// Available engines:
//   - bolt (go.etcd.io/bbolt): always compiled in, the default
//   - mdbx (github.com/erigontech/mdbx-go): build tag "mdbx"
//   - rocksdb (github.com/tecbot/gorocksdb): build tag "rocksdb"
//
// The conformance suite in lib/db/testing runs the same tests against every engine.
package db
