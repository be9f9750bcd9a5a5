// Package dedupe counts duplicate rows by content hash.
//
// Each row is hashed with SHA-256 over its field count followed by every
// field prefixed with its byte length, so ("ab","c") and ("a","bc") differ and
// rows of different width never collide. Hashes are kept exactly until the
// number of distinct rows exceeds Options.ExactLimit; from then on a Bloom
// filter answers membership and the count becomes approximate (it may only
// over-count, by about FalsePositiveRate per new row).
//
// A Detector is not safe for concurrent use.
package dedupe

import (
	"crypto/sha256"
	"encoding/binary"
	"hash"

	"github.com/bits-and-blooms/bloom/v3"
)

// Mode reports how duplicates were counted.
type Mode string

const (
	Exact       Mode = "exact"
	Approximate Mode = "approximate"
)

const (
	DefaultExactLimit        = 2_000_000
	DefaultFalsePositiveRate = 0.001
)

type Options struct {
	// ExactLimit is the number of distinct rows kept in the exact map.
	// Zero means DefaultExactLimit.
	ExactLimit int
	// FalsePositiveRate of the Bloom filter after promotion.
	FalsePositiveRate float64
	// ExpectedRows sizes the Bloom filter. When unknown (0) it is sized for
	// four times ExactLimit.
	ExpectedRows int64
}

type Detector struct {
	opt  Options
	seen map[[32]byte]uint32
	bf   *bloom.BloomFilter
	dups int64
	h    hash.Hash
	buf  []byte
	rows int64
}

func New(opt Options) *Detector {
	if opt.ExactLimit <= 0 {
		opt.ExactLimit = DefaultExactLimit
	}
	if opt.FalsePositiveRate <= 0 || opt.FalsePositiveRate >= 1 {
		opt.FalsePositiveRate = DefaultFalsePositiveRate
	}
	return &Detector{
		opt:  opt,
		seen: make(map[[32]byte]uint32),
		h:    sha256.New(),
		buf:  make([]byte, 0, 256),
	}
}

// Add records a row and reports whether it duplicates an earlier one.
func (d *Detector) Add(fields []string) bool {
	d.rows++
	sum := d.hash(fields)

	if d.bf != nil {
		if d.bf.TestAndAdd(sum[:]) {
			d.dups++
			return true
		}
		return false
	}

	n := d.seen[sum]
	d.seen[sum] = n + 1
	if n > 0 {
		d.dups++
		return true
	}
	if len(d.seen) > d.opt.ExactLimit {
		d.promote()
	}
	return false
}

// Duplicates returns the number of rows that repeat an earlier row, that is
// the sum of (count-1) over every distinct row.
func (d *Detector) Duplicates() int64 { return d.dups }

// Rows returns the number of rows added.
func (d *Detector) Rows() int64 { return d.rows }

func (d *Detector) Mode() Mode {
	if d.bf != nil {
		return Approximate
	}
	return Exact
}

// FalsePositiveRate is the configured rate, meaningful in Approximate mode.
func (d *Detector) FalsePositiveRate() float64 { return d.opt.FalsePositiveRate }

func (d *Detector) promote() {
	capacity := d.opt.ExpectedRows
	if floor := int64(4 * d.opt.ExactLimit); capacity < floor {
		capacity = floor
	}
	d.bf = bloom.NewWithEstimates(uint(capacity), d.opt.FalsePositiveRate)
	for sum := range d.seen {
		d.bf.Add(sum[:])
	}
	d.seen = nil
}

func (d *Detector) hash(fields []string) [32]byte {
	var sum [32]byte
	d.buf = sumRow(d.h, d.buf, fields, sum[:0])
	return sum
}

// Hash returns the row hash used by Detector.
func Hash(fields []string) [32]byte {
	var sum [32]byte
	sumRow(sha256.New(), nil, fields, sum[:0])
	return sum
}

// sumRow hashes fields into dst using buf as scratch and returns buf for reuse.
func sumRow(h hash.Hash, buf []byte, fields []string, dst []byte) []byte {
	h.Reset()
	b := binary.BigEndian.AppendUint64(buf[:0], uint64(len(fields)))
	for _, f := range fields {
		b = binary.BigEndian.AppendUint64(b, uint64(len(f)))
		b = append(b, f...)
		if len(b) >= 4096 {
			h.Write(b)
			b = b[:0]
		}
	}
	h.Write(b)
	h.Sum(dst)
	return b[:0]
}
