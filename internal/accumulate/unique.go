package accumulate

import (
	"strings"

	"github.com/axiomhq/hyperloglog"
)

// DefaultUniqueExactLimit is the number of distinct values counted exactly
// before switching to HyperLogLog.
const DefaultUniqueExactLimit = 100_000

// uniqueTracker counts distinct values exactly up to limit, then estimates
// with a precision-14 HyperLogLog (standard error about 0.81%).
type uniqueTracker struct {
	limit int
	exact map[string]struct{}
	hll   *hyperloglog.Sketch
}

func newUniqueTracker(limit int) *uniqueTracker {
	if limit <= 0 {
		limit = DefaultUniqueExactLimit
	}
	return &uniqueTracker{limit: limit, exact: make(map[string]struct{})}
}

func (u *uniqueTracker) add(v string) {
	if u.hll != nil {
		u.hll.Insert([]byte(v))
		return
	}
	if _, ok := u.exact[v]; ok {
		return
	}
	u.exact[strings.Clone(v)] = struct{}{}
	if len(u.exact) > u.limit {
		u.promote()
	}
}

func (u *uniqueTracker) promote() {
	u.hll = hyperloglog.New14()
	for v := range u.exact {
		u.hll.Insert([]byte(v))
	}
	u.exact = nil
}

func (u *uniqueTracker) count() uint64 {
	if u.hll != nil {
		return u.hll.Estimate()
	}
	return uint64(len(u.exact))
}

func (u *uniqueTracker) approximate() bool { return u.hll != nil }
