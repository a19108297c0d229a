//go:build rocksdb

package rocks

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/tecbot/gorocksdb"

	"github.com/ValentinKolb/planb/lib/db"
)

var Logger = logger.GetLogger("engine")

const (
	rowOverhead = 32 // Estimated bytes per row besides key and value

	features = db.FeatureCapacityLimit | db.FeatureSnapshotReads
)

func init() {
	db.Register(db.ImplRocks, New)
}

// --------------------------------------------------------------------------
// Environment
// --------------------------------------------------------------------------

// rocksEnv keeps all sub-tables in the default column family of one TransactionDB.
// A row of table t is stored under t ++ 0x00 ++ key, so every table is a contiguous
// key range and cursors only need to stay inside the prefix.
type rocksEnv struct {
	tdb     *gorocksdb.TransactionDB
	opts    db.Options
	dbOpts  *gorocksdb.Options
	txnOpts *gorocksdb.TransactionDBOptions
	wo      *gorocksdb.WriteOptions

	writeMu sync.Mutex   // held by the open write transaction
	size    atomic.Int64 // estimated bytes on disk
}

// New opens (or creates) the RocksDB TransactionDB in opts.Dir
func New(opts db.Options) (db.Env, error) {
	if opts.Dir == "" {
		return nil, db.NewError(db.ErrCodeConfig, "rocksdb: no directory configured")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, db.WrapError(db.ErrCodeInternal, err, "rocksdb: create directory")
	}

	dbOpts := gorocksdb.NewDefaultOptions()
	dbOpts.SetCreateIfMissing(true)
	dbOpts.SetWriteBufferSize(64 * 1024 * 1024)
	dbOpts.SetMaxWriteBufferNumber(3)
	txnOpts := gorocksdb.NewDefaultTransactionDBOptions()

	tdb, err := gorocksdb.OpenTransactionDb(dbOpts, txnOpts, opts.Dir)
	if err != nil {
		txnOpts.Destroy()
		dbOpts.Destroy()
		return nil, db.WrapError(db.ErrCodeInternal, err, "rocksdb: open "+opts.Dir)
	}

	wo := gorocksdb.NewDefaultWriteOptions()
	wo.SetSync(!opts.NoSync)

	e := &rocksEnv{tdb: tdb, opts: opts, dbOpts: dbOpts, txnOpts: txnOpts, wo: wo}
	e.size.Store(dirSize(opts.Dir))

	Logger.Infof("opened rocksdb environment at %s (max size %d bytes)", opts.Dir, opts.MaxSizeBytes)
	return e, nil
}

func (e *rocksEnv) BeginRead() (db.ReadTxn, error) {
	snapshot := e.tdb.NewSnapshot()
	ro := gorocksdb.NewDefaultReadOptions()
	ro.SetSnapshot(snapshot)
	to := gorocksdb.NewDefaultTransactionOptions()
	defer to.Destroy()

	txn := e.tdb.TransactionBegin(e.wo, to, nil)
	return &readTxn{
		txnView:  txnView{txn: txn, ro: ro},
		env:      e,
		snapshot: snapshot,
	}, nil
}

func (e *rocksEnv) BeginWrite() (db.WriteTxn, error) {
	e.writeMu.Lock()
	to := gorocksdb.NewDefaultTransactionOptions()
	defer to.Destroy()

	txn := e.tdb.TransactionBegin(e.wo, to, nil)
	return &writeTxn{
		txnView: txnView{txn: txn, ro: gorocksdb.NewDefaultReadOptions()},
		env:     e,
	}, nil
}

func (e *rocksEnv) SupportsFeature(feature db.Feature) bool {
	return features&feature == feature
}

func (e *rocksEnv) Info() db.Info {
	return db.Info{
		SizeBytes:         dirSize(e.opts.Dir),
		MaxSizeBytes:      e.opts.MaxSizeBytes,
		DbType:            db.ImplRocks,
		SupportedFeatures: db.SupportedFeatures(features),
		Path:              e.opts.Dir,
	}
}

func (e *rocksEnv) Close() error {
	e.tdb.Close()
	e.wo.Destroy()
	e.txnOpts.Destroy()
	e.dbOpts.Destroy()
	return nil
}

// --------------------------------------------------------------------------
// Transactions
// --------------------------------------------------------------------------

// txnView implements db.Reader. Values are copied out of RocksDB memory,
// so returned slices stay valid after the transaction ends.
type txnView struct {
	txn *gorocksdb.Transaction
	ro  *gorocksdb.ReadOptions
}

func (v *txnView) Get(table db.Table, key []byte) ([]byte, bool, error) {
	s, err := v.txn.Get(v.ro, tableKey(table, key))
	if err != nil {
		return nil, false, db.WrapError(db.ErrCodeInternal, err, fmt.Sprintf("rocksdb: get from %s", table))
	}
	defer s.Free()
	if !s.Exists() {
		return nil, false, nil
	}
	return append([]byte{}, s.Data()...), true, nil
}

func (v *txnView) Cursor(table db.Table) (db.Cursor, error) {
	prefix := tablePrefix(table)
	return &cursor{it: v.txn.NewIterator(v.ro), prefix: prefix}, nil
}

type readTxn struct {
	txnView
	env      *rocksEnv
	snapshot *gorocksdb.Snapshot
	done     bool
}

func (t *readTxn) Release() {
	if t.done {
		return
	}
	t.done = true
	_ = t.txn.Rollback()
	t.txn.Destroy()
	t.ro.Destroy()
	t.env.tdb.ReleaseSnapshot(t.snapshot)
}

type writeTxn struct {
	txnView
	env     *rocksEnv
	pending int64
	done    bool
}

func (t *writeTxn) Put(table db.Table, key, value []byte) error {
	if err := t.txn.Put(tableKey(table, key), value); err != nil {
		return db.WrapError(db.ErrCodeInternal, err, fmt.Sprintf("rocksdb: put into %s", table))
	}
	t.pending += int64(len(table) + 1 + len(key) + len(value) + rowOverhead)
	return nil
}

func (t *writeTxn) Delete(table db.Table, key []byte) error {
	if err := t.txn.Delete(tableKey(table, key)); err != nil {
		return db.WrapError(db.ErrCodeInternal, err, fmt.Sprintf("rocksdb: delete from %s", table))
	}
	return nil
}

// Commit enforces Options.MaxSizeBytes on the estimated size, RocksDB itself has no
// ceiling. The estimate is refreshed from the directory on every commit.
func (t *writeTxn) Commit() error {
	if t.done {
		return db.NewError(db.ErrCodeInternal, "rocksdb: transaction already finished")
	}
	defer t.finish()

	if limit := t.env.opts.MaxSizeBytes; limit > 0 {
		if estimated := t.env.size.Load() + t.pending; estimated > limit {
			_ = t.txn.Rollback()
			return db.NewError(db.ErrCodeCapacity,
				fmt.Sprintf("rocksdb: commit needs about %d bytes, limit is %d", estimated, limit))
		}
	}
	if err := t.txn.Commit(); err != nil {
		return db.WrapError(db.ErrCodeInternal, err, "rocksdb: commit")
	}
	t.env.size.Store(max(dirSize(t.env.opts.Dir), t.env.size.Load()+t.pending))
	return nil
}

func (t *writeTxn) Abort() {
	if t.done {
		return
	}
	_ = t.txn.Rollback()
	t.finish()
}

func (t *writeTxn) finish() {
	t.done = true
	t.txn.Destroy()
	t.ro.Destroy()
	t.env.writeMu.Unlock()
}

// --------------------------------------------------------------------------
// Cursors
// --------------------------------------------------------------------------

// cursor walks the key range of one table. Keys and values are copied because
// the iterator memory is only valid until it moves.
type cursor struct {
	it     *gorocksdb.Iterator
	prefix []byte
}

func (c *cursor) current() ([]byte, []byte) {
	if !c.it.Valid() {
		return nil, nil
	}
	k := c.it.Key()
	defer k.Free()
	if !bytes.HasPrefix(k.Data(), c.prefix) {
		return nil, nil
	}
	v := c.it.Value()
	defer v.Free()
	return append([]byte{}, k.Data()[len(c.prefix):]...), append([]byte{}, v.Data()...)
}

func (c *cursor) First() ([]byte, []byte) {
	c.it.Seek(c.prefix)
	return c.current()
}

func (c *cursor) Last() ([]byte, []byte) {
	// the prefix ends in 0x00, the same name followed by 0x01 sorts after all its rows
	upper := append([]byte{}, c.prefix...)
	upper[len(upper)-1] = 0x01
	c.it.SeekForPrev(upper)
	return c.current()
}

func (c *cursor) Seek(seek []byte) ([]byte, []byte) {
	c.it.Seek(append(append([]byte{}, c.prefix...), seek...))
	return c.current()
}

func (c *cursor) Next() ([]byte, []byte) {
	if !c.it.Valid() {
		return nil, nil
	}
	c.it.Next()
	return c.current()
}

func (c *cursor) Prev() ([]byte, []byte) {
	if !c.it.Valid() {
		return nil, nil
	}
	c.it.Prev()
	return c.current()
}

func (c *cursor) Close() {
	c.it.Close()
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func tablePrefix(table db.Table) []byte {
	p := make([]byte, 0, len(table)+1)
	p = append(p, table...)
	return append(p, 0x00)
}

func tableKey(table db.Table, key []byte) []byte {
	k := make([]byte, 0, len(table)+1+len(key))
	k = append(k, table...)
	k = append(k, 0x00)
	return append(k, key...)
}

func dirSize(dir string) int64 {
	var size int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
		}
		return nil
	})
	return size
}
