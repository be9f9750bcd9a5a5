package profile

import (
	"sync"
	"sync/atomic"
)

// rowBatch is a pooled, row-major block of cells shared read-only by the
// workers of a parallel dispatcher.
//
// Ownership: the producer fills a batch and sets refs to the number of
// workers before sending it. Each worker calls release once it no longer
// reads the batch; the last release returns it to the pool.
type rowBatch struct {
	cells   []string
	width   int
	promote bool
	refs    atomic.Int32
}

var batchPool sync.Pool

// getBatch returns an empty batch with room for rows rows of width cells.
func getBatch(width, rows int) *rowBatch {
	if v := batchPool.Get(); v != nil {
		b := v.(*rowBatch)
		b.cells = b.cells[:0]
		b.width = width
		b.promote = false
		return b
	}
	return &rowBatch{cells: make([]string, 0, width*rows), width: width}
}

// append copies row; the source may reuse its slice.
func (b *rowBatch) append(row []string) { b.cells = append(b.cells, row...) }

func (b *rowBatch) rows() int { return len(b.cells) / b.width }

func (b *rowBatch) row(i int) []string { return b.cells[i*b.width : (i+1)*b.width] }

func (b *rowBatch) release() {
	if b.refs.Add(-1) != 0 {
		return
	}
	clear(b.cells) // drop string references before pooling
	batchPool.Put(b)
}
