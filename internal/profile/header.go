package profile

import (
	"fmt"
	"strings"
)

// columnNames cleans header cells: BOM and surrounding space are trimmed,
// blank names become column_<i> (1-based) and repeated names get _2, _3, ...
// suffixes in order of appearance.
func columnNames(raw []string) []string {
	out := make([]string, len(raw))
	taken := make(map[string]bool, len(raw))
	for i, h := range raw {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if name == "" {
			name = positionalName(i)
		}
		if taken[name] {
			base := name
			for n := 2; ; n++ {
				name = fmt.Sprintf("%s_%d", base, n)
				if !taken[name] {
					break
				}
			}
		}
		taken[name] = true
		out[i] = name
	}
	return out
}

// positionalNames returns column_1 .. column_n.
func positionalNames(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = positionalName(i)
	}
	return out
}

func positionalName(i int) string { return fmt.Sprintf("column_%d", i+1) }
