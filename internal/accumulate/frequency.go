package accumulate

import (
	"container/heap"
	"sort"
	"strings"
)

// FrequencyTable counts values in a table of fixed capacity.
//
// When a new value arrives at full capacity, the entry with the lowest count
// is evicted; among equal counts, the one first seen most recently goes
// first. Counts of surviving entries are exact lower bounds once anything was
// evicted.
type FrequencyTable struct {
	capacity int
	entries  map[string]*freqEntry
	order    freqHeap
	seq      int64
	evicted  bool
}

type freqEntry struct {
	value string
	count int64
	seq   int64 // first-seen order
	index int   // position in the heap
}

func NewFrequencyTable(capacity int) *FrequencyTable {
	if capacity < 1 {
		capacity = 1
	}
	return &FrequencyTable{
		capacity: capacity,
		entries:  make(map[string]*freqEntry, min(capacity, 1024)),
	}
}

func (t *FrequencyTable) Add(v string) {
	if e, ok := t.entries[v]; ok {
		e.count++
		heap.Fix(&t.order, e.index)
		return
	}
	if len(t.entries) >= t.capacity {
		out := heap.Pop(&t.order).(*freqEntry)
		delete(t.entries, out.value)
		t.evicted = true
	}
	t.seq++
	e := &freqEntry{value: strings.Clone(v), count: 1, seq: t.seq}
	t.entries[e.value] = e
	heap.Push(&t.order, e)
}

// Evicted reports whether any value was dropped, i.e. whether counts may be
// underestimates.
func (t *FrequencyTable) Evicted() bool { return t.evicted }

func (t *FrequencyTable) Len() int { return len(t.entries) }

// Top returns up to k values by descending count, ties by first-seen order.
func (t *FrequencyTable) Top(k int) []ValueCount {
	all := make([]*freqEntry, 0, len(t.entries))
	for _, e := range t.entries {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].count != all[j].count {
			return all[i].count > all[j].count
		}
		return all[i].seq < all[j].seq
	})
	if k > len(all) {
		k = len(all)
	}
	out := make([]ValueCount, k)
	for i := range out {
		out[i] = ValueCount{Value: all[i].value, Count: all[i].count}
	}
	return out
}

// freqHeap is a min-heap on the eviction order.
type freqHeap []*freqEntry

func (h freqHeap) Len() int { return len(h) }

func (h freqHeap) Less(i, j int) bool {
	if h[i].count != h[j].count {
		return h[i].count < h[j].count
	}
	return h[i].seq > h[j].seq
}

func (h freqHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *freqHeap) Push(x any) {
	e := x.(*freqEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *freqHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
