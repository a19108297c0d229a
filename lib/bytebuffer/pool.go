package bytebuffer

import (
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("pool")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	MinClassSize           = 64        // Smallest size class
	OffHeapThreshold       = 64 * 1024 // Classes of at least this size are allocated outside the Go heap
	DefaultMaxIdlePerClass = 64        // Idle buffers kept per size class
)

// ClassSize rounds n up to its size class (the next power of two, at least MinClassSize).
func ClassSize(n int) int {
	if n <= MinClassSize {
		return MinClassSize
	}
	return 1 << bits.Len(uint(n-1))
}

// --------------------------------------------------------------------------
// Pool
// --------------------------------------------------------------------------

// Options configure a Pool
type Options struct {
	MaxIdlePerClass int          // Idle buffers kept per size class (0 = DefaultMaxIdlePerClass)
	Metrics         *metrics.Set // Set to register the pool metrics in (nil = private set)
}

// Stats is a point-in-time view of the pool counters
type Stats struct {
	Outstanding int64  `json:"outstanding"` // Buffers currently leased
	Allocations uint64 `json:"allocations"` // Backing arrays allocated
	Reuses      uint64 `json:"reuses"`      // Leases served from an idle buffer
	Idle        int    `json:"idle"`        // Buffers waiting for reuse
}

// sizeClass holds the idle backing arrays of one size
type sizeClass struct {
	size int
	mu   sync.Mutex
	free [][]byte
}

// Pool leases byte buffers rounded up to power-of-two size classes.
// An empty class allocates on demand, so the pool never blocks and has no hard cap.
//
// Thread-safety: All methods are safe for concurrent use. A leased Buffer is owned
// exclusively by its holder until it is released.
type Pool struct {
	classes *xsync.MapOf[int, *sizeClass]
	maxIdle int

	outstanding atomic.Int64
	allocs      atomic.Uint64
	reuses      atomic.Uint64
	closed      atomic.Bool

	acquireCounter *metrics.Counter
	allocCounter   *metrics.Counter
}

// NewPool creates a new buffer pool with the specified options (optional)
func NewPool(opts *Options) *Pool {
	if opts == nil {
		opts = &Options{}
	}
	maxIdle := opts.MaxIdlePerClass
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdlePerClass
	}
	set := opts.Metrics
	if set == nil {
		set = metrics.NewSet()
	}

	p := &Pool{
		classes: xsync.NewMapOf[int, *sizeClass](),
		maxIdle: maxIdle,
	}
	p.acquireCounter = set.NewCounter("planb_pool_acquire_total")
	p.allocCounter = set.NewCounter("planb_pool_alloc_total")
	set.NewGauge("planb_pool_outstanding", func() float64 {
		return float64(p.outstanding.Load())
	})
	return p
}

// Acquire leases a buffer with at least minCapacity bytes of capacity.
// The buffer is empty (Len() == 0) and must be released exactly once.
func (p *Pool) Acquire(minCapacity int) *Buffer {
	p.outstanding.Add(1)
	p.acquireCounter.Inc()
	return &Buffer{
		pool: p,
		buf:  p.take(ClassSize(minCapacity)),
	}
}

// Release returns the buffer to the pool. Using the buffer afterwards panics,
// releasing it twice is a no-op.
func (p *Pool) Release(b *Buffer) {
	if b == nil || b.buf == nil {
		return
	}
	buf := b.buf
	b.buf = nil
	b.n = 0
	p.outstanding.Add(-1)
	p.put(buf)
}

// With leases a buffer for the duration of fn. The buffer is released on every
// exit path, including a panic inside fn.
func (p *Pool) With(minCapacity int, fn func(buf *Buffer) error) error {
	buf := p.Acquire(minCapacity)
	defer p.Release(buf)
	return fn(buf)
}

// With2 leases two buffers (typically key and value) for the duration of fn.
func (p *Pool) With2(keyCapacity, valueCapacity int, fn func(key, value *Buffer) error) error {
	key := p.Acquire(keyCapacity)
	defer p.Release(key)
	value := p.Acquire(valueCapacity)
	defer p.Release(value)
	return fn(key, value)
}

// Stats returns the current pool counters
func (p *Pool) Stats() Stats {
	idle := 0
	p.classes.Range(func(_ int, c *sizeClass) bool {
		c.mu.Lock()
		idle += len(c.free)
		c.mu.Unlock()
		return true
	})
	return Stats{
		Outstanding: p.outstanding.Load(),
		Allocations: p.allocs.Load(),
		Reuses:      p.reuses.Load(),
		Idle:        idle,
	}
}

// Close frees all idle buffers. Buffers still leased are freed when they are released.
func (p *Pool) Close() {
	p.closed.Store(true)
	p.classes.Range(func(_ int, c *sizeClass) bool {
		c.mu.Lock()
		for _, buf := range c.free {
			free(buf)
		}
		c.free = nil
		c.mu.Unlock()
		return true
	})
	if n := p.outstanding.Load(); n != 0 {
		Logger.Warningf("pool closed with %d buffers still leased", n)
	}
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// class returns the size class for the given (already rounded) size
func (p *Pool) class(size int) *sizeClass {
	c, _ := p.classes.LoadOrCompute(size, func() *sizeClass {
		return &sizeClass{size: size}
	})
	return c
}

// take returns a backing array of exactly size bytes
func (p *Pool) take(size int) []byte {
	c := p.class(size)
	c.mu.Lock()
	if n := len(c.free); n > 0 {
		buf := c.free[n-1]
		c.free[n-1] = nil
		c.free = c.free[:n-1]
		c.mu.Unlock()
		p.reuses.Add(1)
		return buf
	}
	c.mu.Unlock()

	p.allocs.Add(1)
	p.allocCounter.Inc()
	return allocate(size)
}

// put hands a backing array back to its class, or frees it if the class is full
func (p *Pool) put(buf []byte) {
	if p.closed.Load() {
		free(buf)
		return
	}
	c := p.class(len(buf))
	c.mu.Lock()
	if len(c.free) < p.maxIdle {
		c.free = append(c.free, buf)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	free(buf)
}
