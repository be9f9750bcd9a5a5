package profile

import (
	"dataprof/internal/accumulate"

	"golang.org/x/sync/errgroup"
)

// dispatcher feeds rows to the column accumulators in row order.
type dispatcher interface {
	add(row []string)
	// promote switches every column to approximate quantiles after the
	// rows added so far.
	promote()
	// close waits until every added row has been applied.
	close() error
}

func newDispatcher(cols []*accumulate.Column, workers, batchSize int) dispatcher {
	workers = min(workers, len(cols))
	if workers <= 1 {
		return inline(cols)
	}
	return newParallel(cols, workers, batchSize)
}

// inline applies rows on the calling goroutine.
type inline []*accumulate.Column

func (d inline) add(row []string) {
	for i, v := range row {
		d[i].Add(v)
	}
}

func (d inline) promote() {
	for _, c := range d {
		c.Promote()
	}
}

func (inline) close() error { return nil }

// parallel partitions columns round-robin over workers. The producer
// broadcasts each batch to every worker, so each column still sees its cells
// in row order and no accumulator is shared.
type parallel struct {
	chans []chan *rowBatch
	cur   *rowBatch
	width int
	size  int
	g     errgroup.Group
}

func newParallel(cols []*accumulate.Column, workers, batchSize int) *parallel {
	p := &parallel{width: len(cols), size: batchSize}
	p.cur = getBatch(p.width, p.size)
	for w := 0; w < workers; w++ {
		var mine []int
		for i := w; i < len(cols); i += workers {
			mine = append(mine, i)
		}
		ch := make(chan *rowBatch, 4)
		p.chans = append(p.chans, ch)

		p.g.Go(func() error {
			for b := range ch {
				for r := 0; r < b.rows(); r++ {
					row := b.row(r)
					for _, i := range mine {
						cols[i].Add(row[i])
					}
				}
				if b.promote {
					for _, i := range mine {
						cols[i].Promote()
					}
				}
				b.release()
			}
			return nil
		})
	}
	return p
}

func (p *parallel) add(row []string) {
	p.cur.append(row)
	if p.cur.rows() >= p.size {
		p.flush(false)
	}
}

func (p *parallel) promote() { p.flush(true) }

func (p *parallel) flush(promote bool) {
	if p.cur.rows() == 0 && !promote {
		return
	}
	b := p.cur
	b.promote = promote
	b.refs.Store(int32(len(p.chans)))
	p.cur = getBatch(p.width, p.size)
	for _, ch := range p.chans {
		ch <- b
	}
}

func (p *parallel) close() error {
	p.flush(false)
	for _, ch := range p.chans {
		close(ch)
	}
	return p.g.Wait()
}
