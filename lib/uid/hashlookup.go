package uid

import (
	"bytes"
	"fmt"

	"github.com/ValentinKolb/planb/lib/db"
	"github.com/ValentinKolb/planb/lib/hash"
)

// hashLookup keys rows by the hash of the raw value. Collisions are resolved by
// linear probing: slot h, h+1, ... is tried until a free slot or a slot holding the
// same raw bytes is found.
type hashLookup struct {
	table     db.Table
	factory   hash.Factory
	maxProbes int
	counters
}

// NewHashLookup creates a lookup over table whose ids are hashes from factory
func NewHashLookup(table db.Table, factory hash.Factory, opts *Options) Lookup {
	return &hashLookup{
		table:     table,
		factory:   factory,
		maxProbes: opts.maxProbes(),
		counters:  newCounters(opts.metricSet(), table),
	}
}

func (l *hashLookup) Put(w db.Writer, raw []byte, fn func(id []byte) error) error {
	h := l.factory.Create(raw)
	id := make([]byte, h.Len())

	for probe := 0; probe < l.maxProbes; probe++ {
		h.Add(uint64(probe)).PutBytes(id)

		stored, found, err := w.Get(l.table, id)
		if err != nil {
			return err
		}
		if !found {
			if err := w.Put(l.table, id, raw); err != nil {
				return err
			}
			l.inserts.Inc()
			if probe > 0 {
				l.probes.Add(probe)
				Logger.Debugf("table %s: hash %s collided, stored in slot +%d", l.table, h, probe)
			}
			return fn(id)
		}
		// verify before reuse, equal hash alone is not a match
		if bytes.Equal(stored, raw) {
			l.hits.Inc()
			return fn(id)
		}
	}

	Logger.Warningf("table %s: no free slot for hash %s after %d probes", l.table, h, l.maxProbes)
	return db.NewError(db.ErrCodeCollision,
		fmt.Sprintf("table %s: hash %s unresolved after %d probes", l.table, h, l.maxProbes))
}

func (l *hashLookup) GetValue(r db.Reader, id []byte) ([]byte, bool, error) {
	if len(id) != l.factory.HashLength() {
		return nil, false, db.SerdeErrorf("table %s: id has %d bytes, want %d", l.table, len(id), l.factory.HashLength())
	}
	return r.Get(l.table, id)
}

func (l *hashLookup) GetID(r db.Reader, raw []byte) ([]byte, bool, error) {
	h := l.factory.Create(raw)
	for probe := 0; probe < l.maxProbes; probe++ {
		id := h.Add(uint64(probe)).Bytes()
		stored, found, err := r.Get(l.table, id)
		if err != nil || !found {
			return nil, false, err
		}
		if bytes.Equal(stored, raw) {
			return id, true, nil
		}
	}
	return nil, false, nil
}

func (l *hashLookup) IDLength() int {
	return l.factory.HashLength()
}

func (l *hashLookup) Table() db.Table {
	return l.table
}
