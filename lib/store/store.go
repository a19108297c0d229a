package store

import (
	"context"

	"github.com/ValentinKolb/planb/lib/bytebuffer"
	"github.com/ValentinKolb/planb/lib/db"
	"github.com/ValentinKolb/planb/lib/serde"
	"github.com/ValentinKolb/planb/lib/writer"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Backend is what a Store needs from its environment: the writer that applies
// mutations, short-lived read transactions and the buffer pool.
type Backend interface {
	// Writer returns the commit scheduler of the environment.
	Writer() *writer.Writer
	// Read runs fn inside a read transaction that is released when fn returns.
	Read(fn func(r db.Reader) error) error
	// Pool returns the buffer pool used for key and value encodings.
	Pool() *bytebuffer.Pool
}

// Store binds a key serde and a value serde to one sub-table.
// Keys are ordered by their encoding, so Scan only yields a meaningful order
// for order-preserving key serdes (the fixed-width integer serdes, Instant, String).
//
// Thread-safety: All methods are safe for concurrent use. Mutations go through
// the writer, reads open their own read transaction.
type Store[K, V any] struct {
	backend Backend
	table   db.Table
	keys    serde.Serde[K]
	values  serde.Serde[V]
}

// New creates a store for table
func New[K, V any](backend Backend, table db.Table, keys serde.Serde[K], values serde.Serde[V]) *Store[K, V] {
	return &Store[K, V]{backend: backend, table: table, keys: keys, values: values}
}

// Table returns the sub-table the store writes to
func (s *Store[K, V]) Table() db.Table {
	return s.table
}

// --------------------------------------------------------------------------
// Writes
// --------------------------------------------------------------------------

// Put stores v under k and waits for the commit
func (s *Store[K, V]) Put(ctx context.Context, k K, v V) error {
	return s.put(ctx, true, k, v)
}

// PutIfAbsent stores v under k unless k already exists. An existing key is
// not an error, its value is left unchanged.
func (s *Store[K, V]) PutIfAbsent(ctx context.Context, k K, v V) error {
	return s.put(ctx, false, k, v)
}

// PutAsync queues the put and returns. The outcome is reported to hooks.
func (s *Store[K, V]) PutAsync(k K, v V, hooks ...writer.CompletionHook) error {
	l, err := s.encode(k, v)
	if err != nil {
		return err
	}
	hooks = append([]writer.CompletionHook{l.release}, hooks...)
	if err := s.backend.Writer().PutAsync(true, l.put(s.table), hooks...); err != nil {
		l.release(err)
		return err
	}
	return nil
}

// Delete removes k and waits for the commit. Deleting a missing key is not an error.
func (s *Store[K, V]) Delete(ctx context.Context, k K) error {
	pool := s.backend.Pool()
	key := pool.Acquire(serde.SizeHint[K](s.keys, k))
	if err := s.keys.Serialize(key, k); err != nil {
		pool.Release(key)
		return err
	}
	release := func(error) { pool.Release(key) }
	err := s.backend.Writer().PutSync(ctx, true, func(txn db.Writer) error {
		return txn.Delete(s.table, key.Bytes())
	}, release)
	if db.CodeOf(err) == db.ErrCodeWriterShutdown {
		pool.Release(key)
	}
	return err
}

func (s *Store[K, V]) put(ctx context.Context, overwrite bool, k K, v V) error {
	l, err := s.encode(k, v)
	if err != nil {
		return err
	}
	err = s.backend.Writer().PutSync(ctx, overwrite, l.put(s.table), l.release)
	if db.CodeOf(err) == db.ErrCodeWriterShutdown {
		l.release(err)
	}
	return err
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

// Get returns the value stored under k
func (s *Store[K, V]) Get(k K) (V, bool, error) {
	var (
		v     V
		found bool
	)
	err := s.backend.Read(func(r db.Reader) error {
		var err error
		v, found, err = s.GetTx(r, k)
		return err
	})
	return v, found, err
}

// GetTx returns the value stored under k as seen by r. Use it to combine
// several reads in one consistent snapshot.
func (s *Store[K, V]) GetTx(r db.Reader, k K) (V, bool, error) {
	var (
		v     V
		found bool
	)
	err := serde.Marshal[K](s.backend.Pool(), s.keys, k, func(key []byte) error {
		raw, ok, err := r.Get(s.table, key)
		if err != nil || !ok {
			return err
		}
		found = true
		v, err = s.values.Deserialize(raw)
		return err
	})
	return v, found, err
}

// Has reports whether k exists
func (s *Store[K, V]) Has(k K) (bool, error) {
	var found bool
	err := s.backend.Read(func(r db.Reader) error {
		return serde.Marshal[K](s.backend.Pool(), s.keys, k, func(key []byte) error {
			var err error
			_, found, err = r.Get(s.table, key)
			return err
		})
	})
	return found, err
}

// ForEach calls fn for every entry in key order. An error from fn stops the
// iteration and is returned.
func (s *Store[K, V]) ForEach(fn func(k K, v V) error) error {
	return s.backend.Read(func(r db.Reader) error {
		cur, err := r.Cursor(s.table)
		if err != nil {
			return err
		}
		defer cur.Close()
		for key, raw := cur.First(); key != nil; key, raw = cur.Next() {
			k, v, err := s.decode(key, raw)
			if err != nil {
				return err
			}
			if err := fn(k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Scan calls fn for every entry with a key >= from, in key order, until fn
// returns false.
func (s *Store[K, V]) Scan(from K, fn func(k K, v V) bool) error {
	return s.backend.Read(func(r db.Reader) error {
		return serde.Marshal[K](s.backend.Pool(), s.keys, from, func(start []byte) error {
			cur, err := r.Cursor(s.table)
			if err != nil {
				return err
			}
			defer cur.Close()
			for key, raw := cur.Seek(start); key != nil; key, raw = cur.Next() {
				k, v, err := s.decode(key, raw)
				if err != nil {
					return err
				}
				if !fn(k, v) {
					return nil
				}
			}
			return nil
		})
	})
}

// Count returns the number of entries
func (s *Store[K, V]) Count() (int, error) {
	n := 0
	err := s.backend.Read(func(r db.Reader) error {
		cur, err := r.Cursor(s.table)
		if err != nil {
			return err
		}
		defer cur.Close()
		for key, _ := cur.First(); key != nil; key, _ = cur.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// lease holds the encoded key and value of a queued put until its batch is done
type lease struct {
	pool       *bytebuffer.Pool
	key, value *bytebuffer.Buffer
}

func (l *lease) put(table db.Table) writer.WriteOp {
	return func(txn db.Writer) error {
		return txn.Put(table, l.key.Bytes(), l.value.Bytes())
	}
}

// release is a CompletionHook, calling it more than once is harmless
func (l *lease) release(error) {
	l.pool.Release(l.key)
	l.pool.Release(l.value)
}

func (s *Store[K, V]) encode(k K, v V) (*lease, error) {
	pool := s.backend.Pool()
	l := &lease{
		pool:  pool,
		key:   pool.Acquire(serde.SizeHint[K](s.keys, k)),
		value: pool.Acquire(serde.SizeHint[V](s.values, v)),
	}
	if err := s.keys.Serialize(l.key, k); err != nil {
		l.release(err)
		return nil, err
	}
	if err := s.values.Serialize(l.value, v); err != nil {
		l.release(err)
		return nil, err
	}
	return l, nil
}

func (s *Store[K, V]) decode(key, raw []byte) (K, V, error) {
	var v V
	k, err := s.keys.Deserialize(key)
	if err != nil {
		return k, v, err
	}
	v, err = s.values.Deserialize(raw)
	return k, v, err
}
