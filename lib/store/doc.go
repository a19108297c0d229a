// Package store provides typed key-value tables on top of an environment.
//
// A Store binds a key serde and a value serde to one sub-table and offers the
// usual operations (Put, PutIfAbsent, Delete, Get, Has, ForEach, Scan, Count).
// Writes are routed through the writer of the Backend, so they are batched with
// all other mutations of the environment. Reads open a short-lived read
// transaction per call; GetTx reads inside a transaction the caller already holds.
//
// Encodings are built in pooled buffers. For queued writes the buffers stay
// leased until the batch holding the write has been committed or aborted.
//
// Usage:
//
//	users := store.New[uint64, string](pb, "users", serde.Uint64{}, serde.String{})
//	if err := users.Put(ctx, 42, "alice"); err != nil {
//		return err
//	}
//	name, found, err := users.Get(42)
package store
