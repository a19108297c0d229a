//go:build mdbx

package mdbx

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/erigontech/mdbx-go/mdbx"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/ValentinKolb/planb/lib/db"
)

var Logger = logger.GetLogger("engine")

const (
	DataFile         = "mdbx.dat" // Data file inside Options.Dir
	defaultMaxTables = 64

	features = db.FeatureCapacityLimit | db.FeatureSnapshotReads | db.FeatureOffHeapReads
)

func init() {
	db.Register(db.ImplMdbx, New)
}

// --------------------------------------------------------------------------
// Environment
// --------------------------------------------------------------------------

// mdbxEnv maps every sub-table to a named mdbx database (DBI). Handles of tables
// created by a committed write transaction are cached for the lifetime of the env.
type mdbxEnv struct {
	env  *mdbx.Env
	opts db.Options
	dbis *xsync.MapOf[db.Table, mdbx.DBI]
}

// New opens (or creates) the mdbx environment in opts.Dir
func New(opts db.Options) (db.Env, error) {
	if opts.Dir == "" {
		return nil, db.NewError(db.ErrCodeConfig, "mdbx: no directory configured")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, db.WrapError(db.ErrCodeInternal, err, "mdbx: create directory")
	}

	env, err := mdbx.NewEnv(mdbx.Label("planb"))
	if err != nil {
		return nil, db.WrapError(db.ErrCodeInternal, err, "mdbx: create env")
	}

	maxTables := opts.MaxTables
	if maxTables <= 0 {
		maxTables = defaultMaxTables
	}
	if err := env.SetOption(mdbx.OptMaxDB, uint64(maxTables)); err != nil {
		env.Close()
		return nil, db.WrapError(db.ErrCodeConfig, err, "mdbx: set max tables")
	}

	upper := -1
	if opts.MaxSizeBytes > 0 {
		upper = int(opts.MaxSizeBytes)
	}
	if err := env.SetGeometry(-1, -1, upper, -1, -1, -1); err != nil {
		env.Close()
		return nil, db.WrapError(db.ErrCodeConfig, err, "mdbx: set geometry")
	}

	// transactions are handed between goroutines, they must not be bound to OS threads
	flags := uint(mdbx.Create | mdbx.NoStickyThreads)
	if opts.NoSync {
		flags |= uint(mdbx.SafeNoSync)
	}
	if err := env.Open(opts.Dir, flags, 0o644); err != nil {
		env.Close()
		return nil, db.WrapError(db.ErrCodeInternal, err, "mdbx: open "+opts.Dir)
	}

	Logger.Infof("opened mdbx environment at %s (max size %d bytes, %d tables)", opts.Dir, opts.MaxSizeBytes, maxTables)
	return &mdbxEnv{
		env:  env,
		opts: opts,
		dbis: xsync.NewMapOf[db.Table, mdbx.DBI](),
	}, nil
}

func (e *mdbxEnv) BeginRead() (db.ReadTxn, error) {
	txn, err := e.env.BeginTxn(nil, mdbx.Readonly)
	if err != nil {
		return nil, db.WrapError(db.ErrCodeInternal, err, "mdbx: begin read")
	}
	return &readTxn{txnView: txnView{env: e, txn: txn, local: map[db.Table]mdbx.DBI{}}}, nil
}

func (e *mdbxEnv) BeginWrite() (db.WriteTxn, error) {
	txn, err := e.env.BeginTxn(nil, 0)
	if err != nil {
		return nil, db.WrapError(db.ErrCodeInternal, err, "mdbx: begin write")
	}
	return &writeTxn{txnView: txnView{env: e, txn: txn, local: map[db.Table]mdbx.DBI{}}}, nil
}

func (e *mdbxEnv) SupportsFeature(feature db.Feature) bool {
	return features&feature == feature
}

func (e *mdbxEnv) Info() db.Info {
	path := filepath.Join(e.opts.Dir, DataFile)
	var size int64
	if fi, err := os.Stat(path); err == nil {
		size = fi.Size()
	}
	return db.Info{
		SizeBytes:         size,
		MaxSizeBytes:      e.opts.MaxSizeBytes,
		DbType:            db.ImplMdbx,
		SupportedFeatures: db.SupportedFeatures(features),
		Path:              path,
	}
}

func (e *mdbxEnv) Close() error {
	e.env.Close()
	return nil
}

// --------------------------------------------------------------------------
// Transactions
// --------------------------------------------------------------------------

// txnView implements db.Reader. local holds the handles opened by this transaction,
// they only become visible to other transactions once a write transaction commits.
type txnView struct {
	env   *mdbxEnv
	txn   *mdbx.Txn
	local map[db.Table]mdbx.DBI
}

// dbi returns the handle of table, ok is false if the table does not exist yet
func (v *txnView) dbi(table db.Table, create bool) (mdbx.DBI, bool, error) {
	if dbi, ok := v.env.dbis.Load(table); ok {
		return dbi, true, nil
	}
	if dbi, ok := v.local[table]; ok {
		return dbi, true, nil
	}
	var flags uint
	if create {
		flags = uint(mdbx.Create)
	}
	dbi, err := v.txn.OpenDBISimple(string(table), flags)
	if mdbx.IsNotFound(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, wrap(err, fmt.Sprintf("mdbx: open table %s", table))
	}
	v.local[table] = dbi
	return dbi, true, nil
}

func (v *txnView) Get(table db.Table, key []byte) ([]byte, bool, error) {
	dbi, ok, err := v.dbi(table, false)
	if err != nil || !ok {
		return nil, false, err
	}
	value, err := v.txn.Get(dbi, key)
	if mdbx.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap(err, fmt.Sprintf("mdbx: get from %s", table))
	}
	if value == nil {
		value = []byte{}
	}
	return value, true, nil
}

func (v *txnView) Cursor(table db.Table) (db.Cursor, error) {
	dbi, ok, err := v.dbi(table, false)
	if err != nil {
		return nil, err
	}
	if !ok {
		return emptyCursor{}, nil
	}
	cur, err := v.txn.OpenCursor(dbi)
	if err != nil {
		return nil, wrap(err, fmt.Sprintf("mdbx: open cursor on %s", table))
	}
	return &cursor{cur: cur}, nil
}

type readTxn struct {
	txnView
	done bool
}

func (t *readTxn) Release() {
	if t.done {
		return
	}
	t.done = true
	t.txn.Abort()
}

type writeTxn struct {
	txnView
	done bool
}

func (t *writeTxn) Put(table db.Table, key, value []byte) error {
	dbi, _, err := t.dbi(table, true)
	if err != nil {
		return err
	}
	// mdbx copies key and value into its pages
	if err := t.txn.Put(dbi, key, value, 0); err != nil {
		return wrap(err, fmt.Sprintf("mdbx: put into %s", table))
	}
	return nil
}

func (t *writeTxn) Delete(table db.Table, key []byte) error {
	dbi, ok, err := t.dbi(table, false)
	if err != nil || !ok {
		return err
	}
	if err := t.txn.Del(dbi, key, nil); err != nil && !mdbx.IsNotFound(err) {
		return wrap(err, fmt.Sprintf("mdbx: delete from %s", table))
	}
	return nil
}

func (t *writeTxn) Commit() error {
	if t.done {
		return db.NewError(db.ErrCodeInternal, "mdbx: transaction already finished")
	}
	t.done = true
	if _, err := t.txn.Commit(); err != nil {
		return wrap(err, "mdbx: commit")
	}
	for table, dbi := range t.local {
		t.env.dbis.Store(table, dbi)
	}
	return nil
}

func (t *writeTxn) Abort() {
	if t.done {
		return
	}
	t.done = true
	t.txn.Abort()
}

// wrap maps "map full" to the capacity error, everything else is internal
func wrap(err error, msg string) error {
	if mdbx.IsMapFull(err) {
		return db.WrapError(db.ErrCodeCapacity, err, msg)
	}
	return db.WrapError(db.ErrCodeInternal, err, msg)
}

// --------------------------------------------------------------------------
// Cursors
// --------------------------------------------------------------------------

type cursor struct {
	cur *mdbx.Cursor
}

func (c *cursor) get(seek []byte, op uint) ([]byte, []byte) {
	k, v, err := c.cur.Get(seek, nil, op)
	if err != nil {
		if !mdbx.IsNotFound(err) {
			Logger.Warningf("mdbx: cursor: %v", err)
		}
		return nil, nil
	}
	return k, v
}

func (c *cursor) First() ([]byte, []byte)           { return c.get(nil, mdbx.First) }
func (c *cursor) Last() ([]byte, []byte)            { return c.get(nil, mdbx.Last) }
func (c *cursor) Seek(seek []byte) ([]byte, []byte) { return c.get(seek, mdbx.SetRange) }
func (c *cursor) Next() ([]byte, []byte)            { return c.get(nil, mdbx.Next) }
func (c *cursor) Prev() ([]byte, []byte)            { return c.get(nil, mdbx.Prev) }
func (c *cursor) Close()                            { c.cur.Close() }

type emptyCursor struct{}

func (emptyCursor) First() ([]byte, []byte)      { return nil, nil }
func (emptyCursor) Last() ([]byte, []byte)       { return nil, nil }
func (emptyCursor) Seek([]byte) ([]byte, []byte) { return nil, nil }
func (emptyCursor) Next() ([]byte, []byte)       { return nil, nil }
func (emptyCursor) Prev() ([]byte, []byte)       { return nil, nil }
func (emptyCursor) Close()                       {}
