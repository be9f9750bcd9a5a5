package source

import (
	"context"
	"io"
)

// Records is an in-memory Source over pre-split rows. It is used by the HTML
// table reader, which must parse the whole document before yielding rows, and
// by tests.
type Records struct {
	rows   [][]string
	header []string
	pos    int
}

// FromRecords returns a Source yielding rows in order. When header is non-nil
// the returned value also implements Headered.
func FromRecords(header []string, rows [][]string) Source {
	r := &Records{rows: rows, header: header}
	if header != nil {
		return &headeredRecords{r}
	}
	return r
}

func (r *Records) Next(ctx context.Context) (RawRow, error) {
	if err := ctx.Err(); err != nil {
		return RawRow{}, err
	}
	if r.pos >= len(r.rows) {
		return RawRow{}, io.EOF
	}
	r.pos++
	return RawRow{Fields: r.rows[r.pos-1], Index: r.pos}, nil
}

func (r *Records) Close() error { return nil }

type headeredRecords struct{ *Records }

func (h *headeredRecords) Header() []string { return h.header }
