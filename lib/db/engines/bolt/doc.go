// Package bolt is the default storage engine, built on go.etcd.io/bbolt.
//
// Every sub-table is a top level bucket of a single file (planb.bolt) inside the
// configured directory. bbolt is a copy-on-write B+tree over a read-only memory map:
// read transactions see a stable snapshot and the slices they return point into the
// map, so they must not be used after the transaction is released.
//
// bbolt has no size ceiling of its own. The engine estimates the growth of a write
// transaction from the bytes put into it and aborts the commit with db.ErrCapacity when
// the estimate exceeds Options.MaxSizeBytes.
//
// The package registers itself as db.ImplBolt, importing it is enough:
//
//	import _ "github.com/ValentinKolb/planb/lib/db/engines/bolt"
//
//	env, err := db.Open(db.ImplBolt, db.Options{Dir: "/var/lib/planb"})
package bolt
