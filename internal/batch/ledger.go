package batch

import (
	"math"
	"sort"
)

// Ledger is the per-run record of each item's displayed progress. Values
// only ever increase; RecordAndClamp is the sole way to change them.
type Ledger struct {
	progress map[int]int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{progress: make(map[int]int)}
}

// RecordAndClamp stores max(current, candidate) for fileIndex and returns it.
// Candidates outside [0,100] are clamped first.
func (l *Ledger) RecordAndClamp(fileIndex, candidate int) int {
	if candidate < 0 {
		candidate = 0
	}
	if candidate > 100 {
		candidate = 100
	}
	effective := candidate
	if cur, ok := l.progress[fileIndex]; ok && cur > effective {
		effective = cur
	}
	l.progress[fileIndex] = effective
	return effective
}

// Get returns the recorded progress for fileIndex, or 0.
func (l *Ledger) Get(fileIndex int) int {
	return l.progress[fileIndex]
}

// Snapshot returns a copy of the ledger.
func (l *Ledger) Snapshot() map[int]int {
	out := make(map[int]int, len(l.progress))
	for k, v := range l.progress {
		out[k] = v
	}
	return out
}

// Indices returns the recorded file indices in ascending order.
func (l *Ledger) Indices() []int {
	idx := make([]int, 0, len(l.progress))
	for k := range l.progress {
		idx = append(idx, k)
	}
	sort.Ints(idx)
	return idx
}

// Average returns the mean progress across total items, counting
// unrecorded items as 0.
func (l *Ledger) Average(total int) int {
	if total <= 0 {
		return 0
	}
	sum := 0
	for _, v := range l.progress {
		sum += v
	}
	avg := sum / total
	if avg > 100 {
		avg = 100
	}
	return avg
}

// VectorizePageProgress maps a page position into [55,99]. 100 is left for
// the file_complete/file_error transition.
func VectorizePageProgress(pageIndex, totalPages int) int {
	if totalPages <= 0 {
		return checkpointVectorizeStart
	}
	p := int(math.Round(fraction(pageIndex, totalPages)*44)) + 55
	if p > 99 {
		p = 99
	}
	return p
}

// ConvertPageProgress maps a page position into [0,99] for operations that
// report pages without the vectorize band.
func ConvertPageProgress(pageIndex, totalPages int) int {
	if totalPages <= 0 {
		return 0
	}
	p := int(math.Round(fraction(pageIndex, totalPages) * 99))
	if p > 99 {
		p = 99
	}
	return p
}

func fraction(n, d int) float64 {
	f := float64(n) / float64(d)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
