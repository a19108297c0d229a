package util

import (
	"math"
	"sync"

	"github.com/ValentinKolb/planb/lib/db"
)

// ----------------------------------------------------------------------------
// SizeHistogram
// ----------------------------------------------------------------------------

// sizeBoundaries are the inclusive upper bounds of the histogram buckets,
// powers of four from 16 B to 1 GiB
var sizeBoundaries = func() []int {
	var b []int
	for size := 16; size <= 1<<30; size *= 4 {
		b = append(b, size)
	}
	return b
}()

// SizeHistogram tracks the distribution of entry sizes in exponential buckets.
//
// Thread-safe: All methods are safe for concurrent use
type SizeHistogram struct {
	mu      sync.RWMutex
	buckets []int64 // one per boundary plus one for larger sizes
	count   int64
	sum     int64
	max     int
}

func NewSizeHistogram() *SizeHistogram {
	return &SizeHistogram{buckets: make([]int64, len(sizeBoundaries)+1)}
}

// AddSample records one size
func (h *SizeHistogram) AddSample(size int) {
	i := len(sizeBoundaries)
	for j, boundary := range sizeBoundaries {
		if size <= boundary {
			i = j
			break
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.buckets[i]++
	h.count++
	h.sum += int64(size)
	h.max = max(h.max, size)
}

// Count returns the number of samples
func (h *SizeHistogram) Count() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Total returns the sum of all samples
func (h *SizeHistogram) Total() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sum
}

// Average returns the mean size, 0 without samples
func (h *SizeHistogram) Average() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.count == 0 {
		return 0
	}
	return int(h.sum / h.count)
}

// Max returns the largest sample
func (h *SizeHistogram) Max() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.max
}

// Percentile estimates the size below which p percent (0-100) of the samples fall.
// The estimate is the upper bound of the bucket holding that sample, capped at Max.
func (h *SizeHistogram) Percentile(p float64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.count == 0 || p < 0 || p > 100 {
		return 0
	}

	target := max(int64(math.Ceil(float64(h.count)*p/100)), 1)
	var cumulative int64
	for i, n := range h.buckets {
		cumulative += n
		if cumulative >= target {
			if i < len(sizeBoundaries) {
				return min(sizeBoundaries[i], h.max)
			}
			return h.max
		}
	}
	return h.max
}

// Distribution returns the bucket upper bounds and the share of samples (in percent)
// in each bucket. The last share belongs to sizes above the last bound.
func (h *SizeHistogram) Distribution() ([]int, []float64) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	shares := make([]float64, len(h.buckets))
	if h.count > 0 {
		for i, n := range h.buckets {
			shares[i] = float64(n) * 100 / float64(h.count)
		}
	}
	return sizeBoundaries, shares
}

// ----------------------------------------------------------------------------
// Table profile
// ----------------------------------------------------------------------------

// TableProfile summarizes the key and value sizes of one sub-table
type TableProfile struct {
	Table  db.Table
	Keys   *SizeHistogram
	Values *SizeHistogram
}

// ProfileTable scans table in r and records the size of every key and value
func ProfileTable(r db.Reader, table db.Table) (TableProfile, error) {
	p := TableProfile{Table: table, Keys: NewSizeHistogram(), Values: NewSizeHistogram()}
	cur, err := r.Cursor(table)
	if err != nil {
		return p, err
	}
	defer cur.Close()

	for k, v := cur.First(); k != nil; k, v = cur.Next() {
		p.Keys.AddSample(len(k))
		p.Values.AddSample(len(v))
	}
	return p, nil
}
