package uid

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/planb/lib/db"
	"github.com/ValentinKolb/planb/lib/hash"
)

// sequenceLookup assigns ids from a monotonic counter (last id + 1). The forward
// table maps id -> raw, the index table holds one empty row per value keyed by
// hash(raw) ++ id, so equal hashes are disambiguated by reading the forward rows.
type sequenceLookup struct {
	table   db.Table
	index   db.Table
	factory hash.Factory
	width   int
	maxID   uint64
	counters
}

// IndexTable returns the name of the reverse index of a sequence lookup table
func IndexTable(table db.Table) db.Table {
	return table + "-idx"
}

// NewSequenceLookup creates a lookup over table with ids of width bytes (4 or 8)
func NewSequenceLookup(table db.Table, factory hash.Factory, width int, opts *Options) (Lookup, error) {
	var maxID uint64
	switch width {
	case 4:
		maxID = 1<<32 - 1
	case 8:
		maxID = 1<<64 - 1
	default:
		return nil, db.NewError(db.ErrCodeConfig, fmt.Sprintf("sequence id width must be 4 or 8, got %d", width))
	}
	return &sequenceLookup{
		table:    table,
		index:    IndexTable(table),
		factory:  factory,
		width:    width,
		maxID:    maxID,
		counters: newCounters(opts.metricSet(), table),
	}, nil
}

func (l *sequenceLookup) Put(w db.Writer, raw []byte, fn func(id []byte) error) error {
	prefix := l.factory.Create(raw).Bytes()

	id, found, err := l.find(w, prefix, raw)
	if err != nil {
		return err
	}
	if found {
		l.hits.Inc()
		return fn(id)
	}

	next, err := l.nextID(w)
	if err != nil {
		return err
	}
	id = l.encode(next)
	if err := w.Put(l.table, id, raw); err != nil {
		return err
	}
	if err := w.Put(l.index, append(prefix, id...), []byte{}); err != nil {
		return err
	}
	l.inserts.Inc()
	return fn(id)
}

func (l *sequenceLookup) GetValue(r db.Reader, id []byte) ([]byte, bool, error) {
	if len(id) != l.width {
		return nil, false, db.SerdeErrorf("table %s: id has %d bytes, want %d", l.table, len(id), l.width)
	}
	return r.Get(l.table, id)
}

func (l *sequenceLookup) GetID(r db.Reader, raw []byte) ([]byte, bool, error) {
	return l.find(r, l.factory.Create(raw).Bytes(), raw)
}

func (l *sequenceLookup) IDLength() int {
	return l.width
}

func (l *sequenceLookup) Table() db.Table {
	return l.table
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// find scans the index rows sharing the hash prefix and returns the id whose forward
// row holds exactly raw
func (l *sequenceLookup) find(r db.Reader, prefix, raw []byte) ([]byte, bool, error) {
	cur, err := r.Cursor(l.index)
	if err != nil {
		return nil, false, err
	}
	defer cur.Close()

	candidates := 0
	for k, _ := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cur.Next() {
		if len(k) != len(prefix)+l.width {
			return nil, false, db.SerdeErrorf("table %s: malformed index key of %d bytes", l.index, len(k))
		}
		candidates++
		id := append([]byte(nil), k[len(prefix):]...)
		stored, found, err := r.Get(l.table, id)
		if err != nil {
			return nil, false, err
		}
		if !found {
			return nil, false, db.NewError(db.ErrCodeInternal,
				fmt.Sprintf("table %s: index row without forward row for id %x", l.index, id))
		}
		if bytes.Equal(stored, raw) {
			return id, true, nil
		}
	}
	if candidates > 0 {
		l.probes.Add(candidates)
	}
	return nil, false, nil
}

// nextID returns the id following the last assigned one
func (l *sequenceLookup) nextID(r db.Reader) (uint64, error) {
	cur, err := r.Cursor(l.table)
	if err != nil {
		return 0, err
	}
	defer cur.Close()

	k, _ := cur.Last()
	if k == nil {
		return 0, nil
	}
	if len(k) != l.width {
		return 0, db.SerdeErrorf("table %s: malformed id of %d bytes", l.table, len(k))
	}
	last := l.decode(k)
	if last == l.maxID {
		return 0, db.NewError(db.ErrCodeCapacity, fmt.Sprintf("table %s: %d byte id space exhausted", l.table, l.width))
	}
	return last + 1, nil
}

func (l *sequenceLookup) encode(id uint64) []byte {
	out := make([]byte, l.width)
	if l.width == 4 {
		binary.BigEndian.PutUint32(out, uint32(id))
	} else {
		binary.BigEndian.PutUint64(out, id)
	}
	return out
}

func (l *sequenceLookup) decode(b []byte) uint64 {
	if l.width == 4 {
		return uint64(binary.BigEndian.Uint32(b))
	}
	return binary.BigEndian.Uint64(b)
}
