// Package html exposes an HTML <table> as a source.Source so tables scraped
// from reports can be profiled like any delimited file.
package html

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"dataprof/internal/source"

	"github.com/PuerkitoBio/goquery"
)

// maxColspan guards against absurd colspan attributes inflating a row.
const maxColspan = 64

// ReadTable parses the document and returns a Source over the index-th
// (0-based) <table>, in DOM order.
//
// A leading row made only of <th> cells becomes the header and the returned
// Source implements source.Headered. Cells spanning several columns
// (colspan) repeat their text in each column they cover. Rows of nested
// tables belong to the nested table, not to the selected one.
//
// Errors:
//   - Parse failures of the document are unreadable source errors.
//   - A missing table, or a table without rows, is an empty source error.
func ReadTable(r io.Reader, index int) (source.Source, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, source.Unreadable(0, fmt.Errorf("parse html: %w", err))
	}

	tables := doc.Find("table")
	if index < 0 || index >= tables.Length() {
		return nil, &source.Error{
			Kind: source.KindEmpty,
			Err:  fmt.Errorf("no table at index %d (found %d)", index, tables.Length()),
		}
	}
	tbl := tables.Eq(index)

	var (
		header []string
		rows   [][]string
	)
	tbl.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if !tr.Closest("table").IsSelection(tbl) {
			return
		}
		cells := tr.ChildrenFiltered("th, td")
		if cells.Length() == 0 {
			return
		}

		vals := cellTexts(cells)
		allTH := cells.Filter("td").Length() == 0
		if allTH && header == nil && len(rows) == 0 {
			header = vals
			return
		}
		rows = append(rows, vals)
	})

	if header == nil && len(rows) == 0 {
		return nil, &source.Error{Kind: source.KindEmpty, Err: fmt.Errorf("table %d has no rows", index)}
	}
	return source.FromRecords(header, rows), nil
}

func cellTexts(cells *goquery.Selection) []string {
	out := make([]string, 0, cells.Length())
	cells.Each(func(_ int, c *goquery.Selection) {
		v := strings.Join(strings.Fields(c.Text()), " ")
		n := 1
		if span, ok := c.Attr("colspan"); ok {
			if k, err := strconv.Atoi(strings.TrimSpace(span)); err == nil && k > 1 {
				n = min(k, maxColspan)
			}
		}
		for range n {
			out = append(out, v)
		}
	})
	return out
}
