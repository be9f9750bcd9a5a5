package dedupe

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tenRows() [][]string {
	rows := make([][]string, 10)
	for i := range rows {
		rows[i] = []string{fmt.Sprint(i + 1), "x", ""}
	}
	return rows
}

func TestDetector_Exact(t *testing.T) {
	t.Run("rows_3_and_7_identical", func(t *testing.T) {
		rows := tenRows()
		rows[6] = append([]string(nil), rows[2]...)

		d := New(Options{})
		var flagged []int
		for i, r := range rows {
			if d.Add(r) {
				flagged = append(flagged, i+1)
			}
		}
		assert.Equal(t, int64(1), d.Duplicates())
		assert.Equal(t, []int{7}, flagged)
		assert.Equal(t, Exact, d.Mode())
		assert.Equal(t, int64(10), d.Rows())
	})

	t.Run("no_duplicates", func(t *testing.T) {
		d := New(Options{})
		for _, r := range tenRows() {
			d.Add(r)
		}
		assert.Zero(t, d.Duplicates())
	})

	t.Run("triplicate_counts_two", func(t *testing.T) {
		d := New(Options{})
		for range 3 {
			d.Add([]string{"a", "b"})
		}
		assert.Equal(t, int64(2), d.Duplicates())
	})
}

func TestHash_FieldBoundaries(t *testing.T) {
	assert.NotEqual(t, Hash([]string{"ab", "c"}), Hash([]string{"a", "bc"}))
	assert.NotEqual(t, Hash([]string{"a", ""}), Hash([]string{"a"}))
	assert.NotEqual(t, Hash([]string{""}), Hash(nil))
	assert.Equal(t, Hash([]string{"x", "y"}), Hash([]string{"x", "y"}))
}

func TestHash_LongRowMatchesDetector(t *testing.T) {
	long := make([]string, 50)
	for i := range long {
		long[i] = fmt.Sprintf("%0200d", i)
	}
	d := New(Options{})
	assert.Equal(t, Hash(long), d.hash(long))
	assert.Equal(t, Hash([]string{"a"}), d.hash([]string{"a"}))
}

func TestDetector_PromotesToBloom(t *testing.T) {
	d := New(Options{ExactLimit: 3, FalsePositiveRate: 0.0001})
	for _, v := range []string{"a", "b", "c"} {
		require.False(t, d.Add([]string{v}))
	}
	assert.Equal(t, Exact, d.Mode())

	require.False(t, d.Add([]string{"d"}))
	assert.Equal(t, Approximate, d.Mode())

	// rows seen before promotion are still remembered
	assert.True(t, d.Add([]string{"a"}))
	assert.True(t, d.Add([]string{"d"}))
	assert.Equal(t, int64(2), d.Duplicates())
	assert.Equal(t, 0.0001, d.FalsePositiveRate())
}
