package bolt

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	bolt "go.etcd.io/bbolt"

	"github.com/ValentinKolb/planb/lib/db"
)

var Logger = logger.GetLogger("engine")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	FileName        = "planb.bolt"    // Data file inside Options.Dir
	openTimeout     = 5 * time.Second // Wait for the file lock of another process
	rowOverhead     = 16              // Estimated page bytes per row besides key and value
	pageSplitFactor = 2               // Headroom for half-full pages after splits
	defaultMmapSize = 64 << 20        // Initial mapping when no size ceiling is configured

	features = db.FeatureCapacityLimit | db.FeatureSnapshotReads | db.FeatureOffHeapReads
)

func init() {
	db.Register(db.ImplBolt, New)
}

// --------------------------------------------------------------------------
// Environment
// --------------------------------------------------------------------------

// boltEnv stores every sub-table as a top level bucket of one bbolt file.
// bbolt allows a single read-write transaction at a time, Begin(true) blocks while
// another one is open, which gives the single writer guarantee for free.
type boltEnv struct {
	db   *bolt.DB
	opts db.Options
	path string
}

// New opens (or creates) the bbolt file in opts.Dir
func New(opts db.Options) (db.Env, error) {
	if opts.Dir == "" {
		return nil, db.NewError(db.ErrCodeConfig, "bolt: no directory configured")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, db.WrapError(db.ErrCodeInternal, err, "bolt: create directory")
	}

	// bbolt remaps under an exclusive lock that waits for open readers, a mapping
	// large enough up front keeps readers from stalling the writer
	mmapSize := defaultMmapSize
	if opts.MaxSizeBytes > 0 {
		mmapSize = int(opts.MaxSizeBytes)
	}

	path := filepath.Join(opts.Dir, FileName)
	bdb, err := bolt.Open(path, 0o644, &bolt.Options{
		Timeout:         openTimeout,
		NoSync:          opts.NoSync,
		NoFreelistSync:  true,
		InitialMmapSize: mmapSize,
	})
	if err != nil {
		return nil, db.WrapError(db.ErrCodeInternal, err, "bolt: open "+path)
	}

	Logger.Infof("opened bolt environment at %s (max size %d bytes)", path, opts.MaxSizeBytes)
	return &boltEnv{db: bdb, opts: opts, path: path}, nil
}

func (e *boltEnv) BeginRead() (db.ReadTxn, error) {
	tx, err := e.db.Begin(false)
	if err != nil {
		return nil, db.WrapError(db.ErrCodeInternal, err, "bolt: begin read")
	}
	return &readTxn{reader: reader{tx: tx}}, nil
}

func (e *boltEnv) BeginWrite() (db.WriteTxn, error) {
	tx, err := e.db.Begin(true)
	if err != nil {
		return nil, db.WrapError(db.ErrCodeInternal, err, "bolt: begin write")
	}
	return &writeTxn{reader: reader{tx: tx}, maxSize: e.opts.MaxSizeBytes}, nil
}

func (e *boltEnv) SupportsFeature(feature db.Feature) bool {
	return features&feature == feature
}

func (e *boltEnv) Info() db.Info {
	var size int64
	if fi, err := os.Stat(e.path); err == nil {
		size = fi.Size()
	}
	return db.Info{
		SizeBytes:         size,
		MaxSizeBytes:      e.opts.MaxSizeBytes,
		DbType:            db.ImplBolt,
		SupportedFeatures: db.SupportedFeatures(features),
		Path:              e.path,
	}
}

func (e *boltEnv) Close() error {
	if err := e.db.Close(); err != nil {
		return db.WrapError(db.ErrCodeInternal, err, "bolt: close")
	}
	return nil
}

// --------------------------------------------------------------------------
// Transactions
// --------------------------------------------------------------------------

// reader implements db.Reader on any bbolt transaction
type reader struct {
	tx *bolt.Tx
}

func (r *reader) Get(table db.Table, key []byte) ([]byte, bool, error) {
	b := r.tx.Bucket([]byte(table))
	if b == nil {
		return nil, false, nil
	}
	// a cursor distinguishes an empty value from a missing key, Bucket.Get does not
	k, v := b.Cursor().Seek(key)
	if k == nil || !bytes.Equal(k, key) {
		return nil, false, nil
	}
	if v == nil {
		v = []byte{}
	}
	return v, true, nil
}

func (r *reader) Cursor(table db.Table) (db.Cursor, error) {
	b := r.tx.Bucket([]byte(table))
	if b == nil {
		return emptyCursor{}, nil
	}
	return &cursor{c: b.Cursor()}, nil
}

type readTxn struct {
	reader
	done bool
}

func (t *readTxn) Release() {
	if t.done {
		return
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil {
		Logger.Debugf("bolt: release read txn: %v", err)
	}
}

type writeTxn struct {
	reader
	maxSize int64
	pending int64 // estimated bytes added by this transaction
	done    bool
}

func (t *writeTxn) Put(table db.Table, key, value []byte) error {
	b, err := t.tx.CreateBucketIfNotExists([]byte(table))
	if err != nil {
		return db.WrapError(db.ErrCodeInternal, err, fmt.Sprintf("bolt: create table %s", table))
	}
	// bbolt keeps references until commit, the caller may reuse its buffers
	k := append([]byte(nil), key...)
	v := append(make([]byte, 0, len(value)), value...)
	if err := b.Put(k, v); err != nil {
		if errors.Is(err, bolt.ErrKeyRequired) || errors.Is(err, bolt.ErrKeyTooLarge) || errors.Is(err, bolt.ErrValueTooLarge) {
			return db.WrapError(db.ErrCodeSerde, err, fmt.Sprintf("bolt: put into %s", table))
		}
		return db.WrapError(db.ErrCodeInternal, err, fmt.Sprintf("bolt: put into %s", table))
	}
	t.pending += int64(len(key)+len(value)+rowOverhead) * pageSplitFactor
	return nil
}

func (t *writeTxn) Delete(table db.Table, key []byte) error {
	b := t.tx.Bucket([]byte(table))
	if b == nil {
		return nil
	}
	if err := b.Delete(key); err != nil {
		return db.WrapError(db.ErrCodeInternal, err, fmt.Sprintf("bolt: delete from %s", table))
	}
	return nil
}

// Commit checks the size ceiling before writing: bbolt grows its file without limit,
// so the transaction is aborted when the current size plus the estimated growth
// would exceed Options.MaxSizeBytes.
func (t *writeTxn) Commit() error {
	if t.done {
		return db.NewError(db.ErrCodeInternal, "bolt: transaction already finished")
	}
	t.done = true

	if t.maxSize > 0 {
		if estimated := t.tx.Size() + t.pending; estimated > t.maxSize {
			_ = t.tx.Rollback()
			return db.NewError(db.ErrCodeCapacity,
				fmt.Sprintf("bolt: commit needs about %d bytes, limit is %d", estimated, t.maxSize))
		}
	}
	if err := t.tx.Commit(); err != nil {
		return db.WrapError(db.ErrCodeInternal, err, "bolt: commit")
	}
	return nil
}

func (t *writeTxn) Abort() {
	if t.done {
		return
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil {
		Logger.Debugf("bolt: abort: %v", err)
	}
}

// --------------------------------------------------------------------------
// Cursors
// --------------------------------------------------------------------------

type cursor struct {
	c *bolt.Cursor
}

func (c *cursor) First() ([]byte, []byte)           { return c.c.First() }
func (c *cursor) Last() ([]byte, []byte)            { return c.c.Last() }
func (c *cursor) Seek(seek []byte) ([]byte, []byte) { return c.c.Seek(seek) }
func (c *cursor) Next() ([]byte, []byte)            { return c.c.Next() }
func (c *cursor) Prev() ([]byte, []byte)            { return c.c.Prev() }
func (c *cursor) Close()                            {}

// emptyCursor iterates a table that was never written
type emptyCursor struct{}

func (emptyCursor) First() ([]byte, []byte)      { return nil, nil }
func (emptyCursor) Last() ([]byte, []byte)       { return nil, nil }
func (emptyCursor) Seek([]byte) ([]byte, []byte) { return nil, nil }
func (emptyCursor) Next() ([]byte, []byte)       { return nil, nil }
func (emptyCursor) Prev() ([]byte, []byte)       { return nil, nil }
func (emptyCursor) Close()                       {}
