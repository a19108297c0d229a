// Package mdbx is a storage engine built on libmdbx through github.com/erigontech/mdbx-go.
//
// It needs cgo and is only compiled with the mdbx build tag:
//
//	go build -tags mdbx ./...
//
// Sub-tables are named mdbx databases, so Options.MaxTables bounds how many can exist.
// Options.MaxSizeBytes becomes the upper bound of the map geometry, a write that does
// not fit fails with MDBX_MAP_FULL which is reported as db.ErrCapacity.
package mdbx
