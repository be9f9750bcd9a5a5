// Package csv implements source.Source over delimited text.
//
// The reader streams records with encoding/csv (ReuseRecord, variable field
// counts), so memory stays flat regardless of input size. Field-count
// validation is left to the profiler, which needs to count ragged rows rather
// than fail on them.
package csv

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"dataprof/internal/source"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Options control how delimited text is read.
type Options struct {
	// Separator is the field delimiter. Zero means detect it from the first
	// non-empty line (see DetectSeparator).
	Separator rune

	// LazyQuotes tolerates bare quotes inside unquoted fields.
	LazyQuotes bool

	// TrimSpace trims leading/trailing whitespace from every field.
	TrimSpace bool

	// Encoding names a legacy text encoding (WHATWG label such as
	// "windows-1250" or "iso-8859-2"). Empty means UTF-8, which is validated
	// rather than repaired.
	Encoding string

	// Size is the total input size in bytes when known, else 0.
	Size int64
}

// peekSize bounds how much of the stream separator detection may look at.
const peekSize = 64 << 10

// Reader streams RawRows from delimited text.
type Reader struct {
	cr     *csv.Reader
	closer io.Closer
	sep    rune
	trim   bool
	utf8   bool
	size   int64
	line   int
}

// NewReader wraps r. It reads ahead at most 64KiB when the separator must be
// detected; no record is consumed.
//
// Errors:
//   - Unknown Encoding names are reported as plain errors (configuration).
//   - I/O failures during the look-ahead are *source.Error (unreadable).
func NewReader(r io.Reader, opt Options) (*Reader, error) {
	dec, isUTF8, err := decoderFor(opt.Encoding)
	if err != nil {
		return nil, err
	}

	br := bufio.NewReaderSize(transform.NewReader(r, dec), peekSize)

	sep := opt.Separator
	if sep == 0 {
		head, err := br.Peek(peekSize)
		if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
			return nil, source.Unreadable(0, err)
		}
		sep = DetectSeparator(firstNonEmptyLine(head))
	}

	cr := csv.NewReader(br)
	cr.Comma = sep
	cr.ReuseRecord = true
	cr.LazyQuotes = opt.LazyQuotes
	cr.FieldsPerRecord = -1 // the profiler validates widths itself

	size := opt.Size
	if size <= 0 {
		size = -1
	}

	rd := &Reader{
		cr:   cr,
		sep:  sep,
		trim: opt.TrimSpace,
		utf8: isUTF8,
		size: size,
	}
	if c, ok := r.(io.Closer); ok {
		rd.closer = c
	}
	return rd, nil
}

// Open opens a file (or stdin for "-") and returns a Reader over it. The file
// size is used as the size hint.
func Open(path string, opt Options) (*Reader, error) {
	if path == "-" {
		return NewReader(io.NopCloser(os.Stdin), opt)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, source.Unreadable(0, err)
	}
	if fi, err := f.Stat(); err == nil && opt.Size <= 0 {
		opt.Size = fi.Size()
	}

	rd, err := NewReader(f, opt)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return rd, nil
}

// Separator returns the delimiter in use (configured or detected).
func (r *Reader) Separator() rune { return r.sep }

// Next implements source.Source.
//
// A record that encoding/csv rejects (bare quote, unterminated field) is
// returned as source.ErrMalformed so the caller can skip it and continue.
// Lines holding only whitespace are skipped like empty lines, so the first
// record is the line separator detection looked at.
func (r *Reader) Next(ctx context.Context) (source.RawRow, error) {
	if err := ctx.Err(); err != nil {
		return source.RawRow{}, err
	}

	rec, err := r.read()
	if err == io.EOF {
		if r.line == 0 {
			return source.RawRow{}, source.Empty()
		}
		return source.RawRow{}, io.EOF
	}
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			r.line++
			return source.RawRow{}, source.Malformed(r.line, err)
		}
		return source.RawRow{}, source.Unreadable(r.line+1, err)
	}
	r.line++

	for i, v := range rec {
		if r.utf8 && !utf8.ValidString(v) {
			return source.RawRow{}, source.Encoding(r.line, fmt.Errorf("field %d is not valid UTF-8", i+1))
		}
		if r.trim && hasEdgeSpace(v) {
			rec[i] = strings.TrimSpace(v)
		}
	}

	return source.RawRow{Fields: rec, Index: r.line}, nil
}

func (r *Reader) read() ([]string, error) {
	for {
		rec, err := r.cr.Read()
		if err != nil || !blankRecord(rec) {
			return rec, err
		}
	}
}

func blankRecord(rec []string) bool {
	return len(rec) == 1 && strings.TrimSpace(rec[0]) == ""
}

// SizeHint implements source.Sized.
func (r *Reader) SizeHint() int64 { return r.size }

// Offset implements source.Sized. It counts decoded bytes consumed by the
// parser, which equals raw bytes for UTF-8 input.
func (r *Reader) Offset() int64 { return r.cr.InputOffset() }

// Close closes the underlying stream when it is an io.Closer.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// decoderFor returns the byte-level transform for the named encoding. UTF-8
// and UTF-16 BOMs are always honoured and stripped.
func decoderFor(name string) (transform.Transformer, bool, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return unicode.BOMOverride(transform.Nop), true, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, false, fmt.Errorf("csv: unknown encoding %q: %w", name, err)
	}
	return unicode.BOMOverride(enc.NewDecoder()), false, nil
}

func hasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	return s[0] == ' ' || s[len(s)-1] == ' ' || s[0] == '\t' || s[len(s)-1] == '\t'
}

var _ source.Sized = (*Reader)(nil)
