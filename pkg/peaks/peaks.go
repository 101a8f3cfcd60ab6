// Package peaks tracks the top-N monthly grid-import peaks that the
// effect tariff bills. Only readings inside the measurement-hour
// window count; the Nth-highest reading is the threshold a new peak
// has to beat to change the bill.
package peaks

import (
	"container/heap"
	"sort"
	"time"

	"github.com/MendeTr/BatterySim/pkg/types"
)

// Tracker owns the month-keyed peak state for one simulation run.
// It is not safe for concurrent use; each run constructs its own.
type Tracker struct {
	windowStart int
	windowEnd   int
	topN        int

	months map[string]*monthState
	seq    int
}

type entry struct {
	kw  float64
	ts  time.Time
	seq int
}

// peakHeap is a min-heap on kw so the smallest of the kept top-N is at
// the root. Equal readings order by insertion: the later one sits
// closer to the root and is evicted first, so the earliest reading
// stays counted.
type peakHeap []entry

func (h peakHeap) Len() int { return len(h) }
func (h peakHeap) Less(i, j int) bool {
	if h[i].kw != h[j].kw {
		return h[i].kw < h[j].kw
	}
	return h[i].seq > h[j].seq
}
func (h peakHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *peakHeap) Push(x any)        { *h = append(*h, x.(entry)) }
func (h *peakHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

type monthState struct {
	top   peakHeap
	count int // measurement-hour readings seen this month
	maxKW float64
	sumKW float64
}

// New returns a Tracker for the given measurement window (inclusive
// start/end hours) keeping the topN highest readings per month.
func New(windowStartHour, windowEndHour, topN int) *Tracker {
	return &Tracker{
		windowStart: windowStartHour,
		windowEnd:   windowEndHour,
		topN:        topN,
		months:      make(map[string]*monthState),
	}
}

// TopN returns the configured top-N size.
func (t *Tracker) TopN() int {
	return t.topN
}

// IsMeasurementHour reports whether readings at ts count toward the
// effect tariff.
func (t *Tracker) IsMeasurementHour(ts time.Time) bool {
	h := ts.Hour()
	return h >= t.windowStart && h <= t.windowEnd
}

// Update records a realized grid-import reading. Readings outside the
// measurement window are ignored entirely. A month with no state yet is
// created lazily.
func (t *Tracker) Update(ts time.Time, gridImportKW float64) {
	if !t.IsMeasurementHour(ts) {
		return
	}

	month := types.MonthKey(ts)
	st, ok := t.months[month]
	if !ok {
		st = &monthState{top: make(peakHeap, 0, t.topN)}
		t.months[month] = st
	}

	t.seq++
	st.count++
	st.sumKW += gridImportKW
	if gridImportKW > st.maxKW {
		st.maxKW = gridImportKW
	}

	e := entry{kw: gridImportKW, ts: ts, seq: t.seq}
	if st.top.Len() < t.topN {
		heap.Push(&st.top, e)
		return
	}
	// Strict comparison: an exact tie never displaces the reading that
	// was counted first.
	if gridImportKW > st.top[0].kw {
		st.top[0] = e
		heap.Fix(&st.top, 0)
	}
}

// Threshold returns the smallest reading currently in the month's
// top-N set, or 0 while fewer than N readings exist.
func (t *Tracker) Threshold(month string) float64 {
	st, ok := t.months[month]
	if !ok || st.top.Len() < t.topN {
		return 0
	}
	return st.top[0].kw
}

// WouldEnterTopN reports whether a candidate reading would join the
// month's top-N set. Before N readings exist every measurement-hour
// reading is in the top-N by definition. Ties do not enter: they would
// not change the billed average.
func (t *Tracker) WouldEnterTopN(month string, candidateKW float64) bool {
	st, ok := t.months[month]
	if !ok || st.top.Len() < t.topN {
		return true
	}
	return candidateKW > st.top[0].kw
}

// Peaks returns the month's top-N readings in descending order.
func (t *Tracker) Peaks(month string) []float64 {
	st, ok := t.months[month]
	if !ok {
		return nil
	}
	out := make([]float64, 0, st.top.Len())
	for _, e := range st.top {
		out = append(out, e.kw)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(out)))
	return out
}

// Average returns the mean of the month's top-N readings, the figure
// the monthly demand charge is billed on. Zero if no readings exist.
func (t *Tracker) Average(month string) float64 {
	peaks := t.Peaks(month)
	if len(peaks) == 0 {
		return 0
	}
	var sum float64
	for _, p := range peaks {
		sum += p
	}
	return sum / float64(len(peaks))
}

// Count returns how many measurement-hour readings the month has seen.
func (t *Tracker) Count(month string) int {
	st, ok := t.months[month]
	if !ok {
		return 0
	}
	return st.count
}

// Months returns the tracked month keys in ascending order.
func (t *Tracker) Months() []string {
	out := make([]string, 0, len(t.months))
	for m := range t.months {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Summary returns the final top-N peak sets for every tracked month.
func (t *Tracker) Summary() []types.MonthPeaks {
	months := t.Months()
	out := make([]types.MonthPeaks, 0, len(months))
	for _, m := range months {
		out = append(out, types.MonthPeaks{
			Month:     m,
			PeaksKW:   t.Peaks(m),
			AverageKW: t.Average(m),
		})
	}
	return out
}
