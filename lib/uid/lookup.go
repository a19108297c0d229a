package uid

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"

	"github.com/ValentinKolb/planb/lib/db"
)

var Logger = logger.GetLogger("uid")

// --------------------------------------------------------------------------
// Interface
// --------------------------------------------------------------------------

// Lookup maps raw values to fixed-width surrogate ids and back. Rows are append-only:
// an id, once assigned, always resolves to the same raw bytes.
//
// Thread-safety: GetValue and GetID may run in any number of read transactions.
// Put performs a check-then-insert and must run inside the single write transaction
// of the writer.
type Lookup interface {
	// Put returns the id of raw through fn, inserting a new row if raw was never seen.
	// The id slice is only valid during fn.
	Put(w db.Writer, raw []byte, fn func(id []byte) error) error

	// GetValue resolves an id to its raw bytes. The returned slice is only valid until
	// the transaction ends.
	GetValue(r db.Reader, id []byte) ([]byte, bool, error)

	// GetID returns the id of raw without inserting it
	GetID(r db.Reader, raw []byte) ([]byte, bool, error)

	// IDLength returns the width of the ids in bytes
	IDLength() int

	// Table returns the sub-table holding the id -> raw rows
	Table() db.Table
}

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

const DefaultMaxProbes = 16

// Options configure a lookup
type Options struct {
	MaxProbes int          // Slots probed before a hash collision is reported (0 = DefaultMaxProbes)
	Metrics   *metrics.Set // Set to register the lookup metrics in (nil = private set)
}

func (o *Options) maxProbes() int {
	if o == nil || o.MaxProbes <= 0 {
		return DefaultMaxProbes
	}
	return o.MaxProbes
}

func (o *Options) metricSet() *metrics.Set {
	if o == nil || o.Metrics == nil {
		return metrics.NewSet()
	}
	return o.Metrics
}

// counters are the per-table metrics shared by both strategies
type counters struct {
	inserts *metrics.Counter
	hits    *metrics.Counter
	probes  *metrics.Counter
}

func newCounters(set *metrics.Set, table db.Table) counters {
	return counters{
		inserts: set.GetOrCreateCounter(fmt.Sprintf(`planb_uid_inserts_total{table=%q}`, table)),
		hits:    set.GetOrCreateCounter(fmt.Sprintf(`planb_uid_hits_total{table=%q}`, table)),
		probes:  set.GetOrCreateCounter(fmt.Sprintf(`planb_uid_collision_probes_total{table=%q}`, table)),
	}
}
