package writer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"

	"github.com/ValentinKolb/planb/lib/db"
	"github.com/ValentinKolb/planb/lib/db/util"
)

var Logger = logger.GetLogger("writer")

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

const DefaultMaxBatchSize = 10_000

// WriteOp is a deferred mutation. It runs on the writer goroutine inside the open
// write transaction and may perform any number of reads and puts.
type WriteOp func(txn db.Writer) error

// CompletionHook observes the outcome of the batch an async op was part of.
// Hooks run on the writer goroutine and must not block.
type CompletionHook func(err error)

// Options configure a Writer
type Options struct {
	MaxBatchSize  int           // Ops per write transaction (0 = DefaultMaxBatchSize)
	FlushInterval time.Duration // Commit pending async ops this long after the first one arrived (0 = only on demand)
	Metrics       *metrics.Set  // Set to register the writer metrics in (nil = private set)
}

// Stats is a point-in-time view of the writer counters
type Stats struct {
	Commits uint64 `json:"commits"` // Committed batches
	Aborts  uint64 `json:"aborts"`  // Failed batches
	Applied uint64 `json:"applied"` // Ops in committed batches
	Queued  int64  `json:"queued"`  // Ops submitted but not yet committed
}

type requestKind uint8

const (
	kindPut requestKind = iota
	kindCommit
	kindShutdown
)

// request is one message in the writer mailbox
type request struct {
	kind      requestKind
	op        WriteOp
	overwrite bool
	done      chan error // buffered, set for sync puts and commit requests
	hooks     []CompletionHook
}

// --------------------------------------------------------------------------
// Writer
// --------------------------------------------------------------------------

// Writer is the single-writer commit scheduler of an environment. Any goroutine may
// submit ops, one dedicated goroutine (locked to its OS thread) applies them in
// submission order and groups them into write transactions.
//
// States: idle (nothing pending), accumulating (async ops pending, no transaction
// open) and committing (transaction open). A commit is started by a sync put, a commit
// request, shutdown, MaxBatchSize pending ops or the FlushInterval timer. If any op of a
// batch fails or panics, the whole batch is aborted and every caller of the batch gets
// the error. Failures of async ops are also kept and returned by the next commit request.
//
// Thread-safety: All exported methods are safe for concurrent use.
type Writer struct {
	env           db.Env
	maxBatch      int
	flushInterval time.Duration

	mailbox *util.Mailbox[*request]
	mu      sync.RWMutex // guards closing against concurrent submissions
	closing bool
	stopped chan struct{}
	result  error // outcome of the final commit, set before stopped is closed

	// writer goroutine state
	pending   []*request
	asyncErrs []error

	commits atomic.Uint64
	aborts  atomic.Uint64
	applied atomic.Uint64
	queued  atomic.Int64

	batchSize      *metrics.Histogram
	commitDuration *metrics.Histogram
	opsCounter     *metrics.Counter
	abortCounter   *metrics.Counter
}

// New starts the writer goroutine for env
func New(env db.Env, opts *Options) *Writer {
	if opts == nil {
		opts = &Options{}
	}
	maxBatch := opts.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatchSize
	}
	set := opts.Metrics
	if set == nil {
		set = metrics.NewSet()
	}

	w := &Writer{
		env:           env,
		maxBatch:      maxBatch,
		flushInterval: opts.FlushInterval,
		mailbox:       util.NewMailbox[*request](),
		stopped:       make(chan struct{}),
	}
	w.batchSize = set.NewHistogram("planb_writer_batch_size")
	w.commitDuration = set.NewHistogram("planb_writer_commit_duration_seconds")
	w.opsCounter = set.NewCounter("planb_writer_ops_total")
	w.abortCounter = set.NewCounter("planb_writer_aborts_total")
	set.NewGauge("planb_writer_queued", func() float64 {
		return float64(w.queued.Load())
	})

	go w.run()
	return w
}

// PutSync submits op and waits until the batch containing it is committed or failed.
// If ctx ends first, ctx.Err() is returned and the op stays queued: it will still be
// applied, only the caller stops waiting. Hooks run once the outcome is known, also
// when the caller stopped waiting.
func (w *Writer) PutSync(ctx context.Context, overwrite bool, op WriteOp, hooks ...CompletionHook) error {
	r := &request{kind: kindPut, op: op, overwrite: overwrite, done: make(chan error, 1), hooks: hooks}
	if err := w.submit(r); err != nil {
		return err
	}
	select {
	case err := <-r.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PutAsync submits op and returns immediately. The outcome is reported to hooks and,
// on failure, to the next CommitSync/CommitAsync. The only error returned directly is
// db.ErrWriterShutdown.
func (w *Writer) PutAsync(overwrite bool, op WriteOp, hooks ...CompletionHook) error {
	return w.submit(&request{kind: kindPut, op: op, overwrite: overwrite, hooks: hooks})
}

// CommitSync commits all pending ops and waits for the result. The error joins the
// failure of this commit with failures of earlier async ops not reported yet.
func (w *Writer) CommitSync(ctx context.Context) error {
	select {
	case err := <-w.CommitAsync():
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CommitAsync schedules a commit of all pending ops. The returned channel receives
// exactly one value, the same result CommitSync would have returned.
func (w *Writer) CommitAsync() <-chan error {
	r := &request{kind: kindCommit, done: make(chan error, 1)}
	if err := w.submit(r); err != nil {
		r.done <- err
	}
	return r.done
}

// Shutdown stops accepting ops, commits everything already queued and stops the
// writer goroutine. It returns the result of that final commit, including unreported
// async failures. Calling it again waits for the same result.
func (w *Writer) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.closing {
		w.closing = true
		// pushed under the write lock, so it is the last request in the mailbox
		w.mailbox.Push(&request{kind: kindShutdown})
		w.mailbox.Close()
		Logger.Infof("writer shutting down with %d ops queued", w.queued.Load())
	}
	w.mu.Unlock()

	select {
	case <-w.stopped:
		return w.result
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the current writer counters
func (w *Writer) Stats() Stats {
	return Stats{
		Commits: w.commits.Load(),
		Aborts:  w.aborts.Load(),
		Applied: w.applied.Load(),
		Queued:  w.queued.Load(),
	}
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (w *Writer) submit(r *request) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closing {
		return db.NewError(db.ErrCodeWriterShutdown, "writer is shut down")
	}
	if r.kind == kindPut {
		w.queued.Add(1)
	}
	w.mailbox.Push(r)
	return nil
}

// run is the writer goroutine. It is the only caller of env.BeginWrite.
func (w *Writer) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.stopped)

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
	}

	for {
		select {
		case <-w.mailbox.Notify():
		case <-timerC:
			timer, timerC = nil, nil
			Logger.Debugf("flush interval elapsed, committing %d ops", len(w.pending))
			w.flush()
		}

		var waiters []*request
		commit, shutdown := false, false
		w.mailbox.Drain(0, func(r *request) {
			switch r.kind {
			case kindPut:
				w.pending = append(w.pending, r)
				if r.done != nil {
					commit = true
				}
				if len(w.pending) >= w.maxBatch {
					w.flush()
				}
			case kindCommit:
				waiters = append(waiters, r)
				commit = true
			case kindShutdown:
				shutdown = true
			}
		})

		if commit || shutdown {
			stopTimer()
			w.flush()
			for _, r := range waiters {
				r.done <- w.takeAsyncErrs()
			}
		}
		if shutdown {
			w.result = w.takeAsyncErrs()
			Logger.Infof("writer stopped after %d commits", w.commits.Load())
			return
		}

		switch {
		case len(w.pending) == 0:
			stopTimer()
		case timer == nil && w.flushInterval > 0:
			timer = time.NewTimer(w.flushInterval)
			timerC = timer.C
		}
	}
}

// flush commits all pending ops in batches of at most maxBatch
func (w *Writer) flush() {
	for len(w.pending) > 0 {
		n := min(len(w.pending), w.maxBatch)
		batch := w.pending[:n]
		w.commitBatch(batch)
		clear(batch)
		w.pending = w.pending[n:]
	}
	w.pending = nil
}

// commitBatch applies batch in one write transaction and reports the outcome
// to every request of the batch
func (w *Writer) commitBatch(batch []*request) {
	start := time.Now()
	err := w.execute(batch)
	w.queued.Add(-int64(len(batch)))

	if err != nil {
		w.aborts.Add(1)
		w.abortCounter.Inc()
		Logger.Warningf("batch of %d ops aborted: %v", len(batch), err)
	} else {
		w.commits.Add(1)
		w.applied.Add(uint64(len(batch)))
		w.opsCounter.Add(len(batch))
		w.batchSize.Update(float64(len(batch)))
		w.commitDuration.UpdateDuration(start)
	}

	hasAsync := false
	for _, r := range batch {
		for _, hook := range r.hooks {
			runHook(hook, err)
		}
		if r.done != nil {
			r.done <- err
		} else {
			hasAsync = true
		}
	}
	if err != nil && hasAsync {
		w.asyncErrs = append(w.asyncErrs, err)
	}
}

func (w *Writer) execute(batch []*request) error {
	txn, err := w.env.BeginWrite()
	if err != nil {
		return err
	}
	for i, r := range batch {
		if err := apply(txn, r); err != nil {
			txn.Abort()
			return fmt.Errorf("writer: op %d of batch of %d: %w", i, len(batch), err)
		}
	}
	return txn.Commit()
}

// apply runs one op and turns a panic into an error
func apply(txn db.WriteTxn, r *request) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = db.NewError(db.ErrCodeInternal, fmt.Sprintf("write op panicked: %v", p))
		}
	}()
	var target db.Writer = txn
	if !r.overwrite {
		target = putIfAbsent{Writer: txn}
	}
	return r.op(target)
}

func runHook(hook CompletionHook, err error) {
	defer func() {
		if p := recover(); p != nil {
			Logger.Errorf("completion hook panicked: %v", p)
		}
	}()
	hook(err)
}

func (w *Writer) takeAsyncErrs() error {
	err := errors.Join(w.asyncErrs...)
	w.asyncErrs = nil
	return err
}

// putIfAbsent turns Put into an insert that leaves existing keys unchanged
type putIfAbsent struct {
	db.Writer
}

func (p putIfAbsent) Put(table db.Table, key, value []byte) error {
	_, found, err := p.Get(table, key)
	if err != nil || found {
		return err
	}
	return p.Writer.Put(table, key, value)
}
