package planb

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/ValentinKolb/planb/lib/bytebuffer"
	"github.com/ValentinKolb/planb/lib/common"
	"github.com/ValentinKolb/planb/lib/db"
	"github.com/ValentinKolb/planb/lib/hash"
	"github.com/ValentinKolb/planb/lib/uid"
	"github.com/ValentinKolb/planb/lib/writer"
)

var Logger = logger.GetLogger("planb")

// closeTimeout bounds the final commit in Close
const closeTimeout = time.Minute

// PlanB owns everything needed to work with one data directory: the engine,
// the buffer pool, the hash factory, the writer and the lookup tables.
//
// Thread-safety: All methods are safe for concurrent use.
type PlanB struct {
	cfg     common.Config
	env     db.Env
	pool    *bytebuffer.Pool
	factory hash.Factory
	writer  *writer.Writer
	metrics *metrics.Set
	lookups *xsync.MapOf[db.Table, uid.Lookup]

	closeOnce sync.Once
	closeErr  error
}

// Stats is a point-in-time view of the environment
type Stats struct {
	Info   db.Info          `json:"info"`
	Writer writer.Stats     `json:"writer"`
	Pool   bytebuffer.Stats `json:"pool"`
}

// Open validates cfg and opens the environment it describes
func Open(cfg common.Config) (*PlanB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	factory, err := hash.NewFactory(cfg.HashWidth)
	if err != nil {
		return nil, err
	}

	env, err := db.Open(cfg.Engine, db.Options{
		Dir:          cfg.Dir,
		MaxSizeBytes: cfg.MaxSizeBytes,
		MaxTables:    cfg.MaxTables,
		NoSync:       cfg.NoSync,
	})
	if err != nil {
		return nil, err
	}

	set := metrics.NewSet()
	pb := &PlanB{
		cfg:     cfg,
		env:     env,
		factory: factory,
		metrics: set,
		lookups: xsync.NewMapOf[db.Table, uid.Lookup](),
		pool: bytebuffer.NewPool(&bytebuffer.Options{
			MaxIdlePerClass: cfg.PoolMaxIdle,
			Metrics:         set,
		}),
		writer: writer.New(env, &writer.Options{
			MaxBatchSize:  cfg.WriterMaxBatch,
			FlushInterval: cfg.WriterFlushInterval,
			Metrics:       set,
		}),
	}
	Logger.Infof("opened %s environment in %s", cfg.Engine, cfg.Dir)
	return pb, nil
}

// Config returns the configuration the environment was opened with
func (pb *PlanB) Config() common.Config { return pb.cfg }

// Env returns the underlying engine
func (pb *PlanB) Env() db.Env { return pb.env }

// Writer returns the commit scheduler, all mutations must go through it
func (pb *PlanB) Writer() *writer.Writer { return pb.writer }

// Pool returns the buffer pool
func (pb *PlanB) Pool() *bytebuffer.Pool { return pb.pool }

// HashFactory returns the hash factory selected by Config.HashWidth
func (pb *PlanB) HashFactory() hash.Factory { return pb.factory }

// Read runs fn inside a read transaction. The transaction, and every slice
// obtained from it, is only valid until fn returns.
func (pb *PlanB) Read(fn func(r db.Reader) error) error {
	txn, err := pb.env.BeginRead()
	if err != nil {
		return err
	}
	defer txn.Release()
	return fn(txn)
}

// Update applies op through the writer and waits for the commit, bounded by
// Config.PutTimeout. On timeout the op stays queued.
func (pb *PlanB) Update(ctx context.Context, op writer.WriteOp) error {
	if pb.cfg.PutTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, pb.cfg.PutTimeout)
		defer cancel()
	}
	return pb.writer.PutSync(ctx, true, op)
}

// Lookup returns the lookup table stored in table. Lookups are created on first
// use with the configured strategy and cached.
func (pb *PlanB) Lookup(table db.Table) (uid.Lookup, error) {
	if l, ok := pb.lookups.Load(table); ok {
		return l, nil
	}

	opts := &uid.Options{MaxProbes: pb.cfg.UIDMaxProbes, Metrics: pb.metrics}
	var l uid.Lookup
	switch pb.cfg.LookupStrategy {
	case common.LookupSequence:
		var err error
		if l, err = uid.NewSequenceLookup(table, pb.factory, pb.cfg.HashWidth, opts); err != nil {
			return nil, err
		}
	default:
		l = uid.NewHashLookup(table, pb.factory, opts)
	}
	l, _ = pb.lookups.LoadOrStore(table, l)
	return l, nil
}

// Stats returns engine, writer and pool counters
func (pb *PlanB) Stats() Stats {
	return Stats{
		Info:   pb.env.Info(),
		Writer: pb.writer.Stats(),
		Pool:   pb.pool.Stats(),
	}
}

// Metrics writes all metrics of the environment in Prometheus text format
func (pb *PlanB) Metrics(w io.Writer) {
	pb.metrics.WritePrometheus(w)
}

// Close commits everything queued, stops the writer and closes the engine.
// Calling it again returns the same result.
func (pb *PlanB) Close() error {
	pb.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()

		werr := pb.writer.Shutdown(ctx)
		if werr != nil {
			Logger.Errorf("final commit failed: %v", werr)
		}
		eerr := pb.env.Close()
		pb.pool.Close()
		pb.closeErr = errors.Join(werr, eerr)
		Logger.Infof("closed environment in %s", pb.cfg.Dir)
	})
	return pb.closeErr
}
