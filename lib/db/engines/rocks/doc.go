// Package rocks is a storage engine on RocksDB through github.com/tecbot/gorocksdb.
// It needs cgo and librocksdb and is only compiled with the rocksdb build tag.
//
// RocksDB is an LSM tree rather than a B+tree, but a TransactionDB offers the same
// contract: snapshot reads, a write transaction that reads its own writes, atomic commit.
// All sub-tables share the default column family, separated by key prefix. Returned
// slices are copies, reads are not served from a memory map.
package rocks
