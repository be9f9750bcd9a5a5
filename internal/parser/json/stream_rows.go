// Package json implements source.Source over JSON documents that hold
// records as objects.
//
// Supported layouts:
//   - a root array of objects, optionally followed by more objects (JSONL)
//   - an envelope: a root object whose first array-of-objects field holds
//     the records; the other fields are skipped
//   - a stream of objects (JSONL); a root object without an array-of-objects
//     field is the first record of that stream
//
// The keys of the first record, in document order, are the header. Keys that
// only appear in later records are ignored and absent keys become blank
// (missing) cells. Elements that are not objects are reported as malformed
// records.
package json

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"dataprof/internal/source"
)

// Options control how records are rendered into cells.
type Options struct {
	// ArrayJoinSeparator joins arrays of scalars into one cell. Default ",".
	ArrayJoinSeparator string

	// Size is the total input size in bytes when known, else 0.
	Size int64
}

type state int

const (
	inArray  state = iota + 1 // records are elements of an open array
	inStream                  // records are top-level values
	done
)

// Reader streams records from a JSON document. It implements source.Source,
// source.Headered and source.Sized.
type Reader struct {
	dec      *json.Decoder
	closer   io.Closer
	sep      string
	size     int64
	state    state
	envelope bool // the open array is a field of the root object

	header []string
	// ahead holds the malformed-record errors met while looking for the
	// first record; Next reports them before pending.
	ahead   []error
	pending *record
	line    int
	out     []string
}

// record is one object with its keys in document order.
type record struct {
	keys []string
	vals map[string]any
}

// NewReader reads up to the first record to fix the header.
//
// Errors:
//   - A document without any record is an empty source error.
//   - Syntax errors and I/O failures are unreadable source errors.
func NewReader(r io.Reader, opt Options) (*Reader, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	rd := &Reader{dec: dec, sep: opt.ArrayJoinSeparator, size: opt.Size}
	if rd.sep == "" {
		rd.sep = ","
	}
	if rd.size <= 0 {
		rd.size = -1
	}
	if c, ok := r.(io.Closer); ok {
		rd.closer = c
	}

	first, err := rd.start()
	if err != nil {
		return nil, err
	}
	if first == nil {
		return nil, source.Empty()
	}
	rd.pending = first
	rd.header = first.keys
	return rd, nil
}

// Open opens a file (or stdin for "-"). The file size is used as the size
// hint.
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

// start consumes the root token and returns the first record, or nil when
// the document holds none.
func (r *Reader) start() (*record, error) {
	tok, err := r.dec.Token()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, source.Unreadable(0, fmt.Errorf("json: read first token: %w", err))
	}

	switch tok {
	case json.Delim('['):
		r.state = inArray
		return r.firstFrom(r.next)
	case json.Delim('{'):
		rec, err := r.rootObject()
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return rec, nil
		}
		return r.firstFrom(r.next)
	}
	return nil, source.Unreadable(0, fmt.Errorf("json: unsupported root token %v (want object or array)", tok))
}

// firstFrom returns the first well-formed record produced by next. Malformed
// records before it are queued in r.ahead.
func (r *Reader) firstFrom(next func() (*record, error)) (*record, error) {
	for {
		rec, err := next()
		switch {
		case err == nil:
			return rec, nil
		case errors.Is(err, io.EOF):
			return nil, nil
		case errors.Is(err, source.ErrMalformed):
			r.ahead = append(r.ahead, err)
			continue
		default:
			return nil, err
		}
	}
}

// rootObject walks the root object (after '{'). It returns the first record
// of an envelope array, or the root object itself when it has no such field.
func (r *Reader) rootObject() (*record, error) {
	rec := &record{vals: map[string]any{}}
	for r.dec.More() {
		key, err := r.key()
		if err != nil {
			return nil, err
		}
		tok, err := r.dec.Token()
		if err != nil {
			return nil, r.syntax("read object value", err)
		}

		if tok == json.Delim('[') && r.dec.More() {
			first, err := r.dec.Token()
			if err != nil {
				return nil, r.syntax("read array element", err)
			}
			if first == json.Delim('{') {
				r.state = inArray
				r.envelope = true
				return r.object()
			}
			elem, err := materialize(r.dec, first)
			if err != nil {
				return nil, r.syntax("read array", err)
			}
			rest, err := materialize(r.dec, json.Delim('['))
			if err != nil {
				return nil, r.syntax("read array", err)
			}
			rec.add(key, append([]any{elem}, rest.([]any)...))
			continue
		}

		v, err := materialize(r.dec, tok)
		if err != nil {
			return nil, r.syntax("read object value", err)
		}
		rec.add(key, v)
	}
	if _, err := r.dec.Token(); err != nil {
		return nil, r.syntax("read object end", err)
	}
	r.state = inStream
	if len(rec.keys) == 0 {
		return nil, nil
	}
	return rec, nil
}

// next returns the next record, io.EOF at the end of the document, or a
// malformed-record error for values that are not objects.
func (r *Reader) next() (*record, error) {
	for {
		switch r.state {
		case inArray:
			if !r.dec.More() {
				if err := r.closeArray(); err != nil {
					return nil, err
				}
				r.state = inStream
				continue
			}
			return r.value()
		case inStream:
			return r.value()
		default:
			return nil, io.EOF
		}
	}
}

// value reads one record-position value.
func (r *Reader) value() (*record, error) {
	tok, err := r.dec.Token()
	if errors.Is(err, io.EOF) && r.state == inStream {
		r.state = done
		return nil, io.EOF
	}
	if err != nil {
		return nil, r.syntax("read record", err)
	}
	if tok == json.Delim('{') {
		return r.object()
	}
	if err := skip(r.dec, tok); err != nil {
		return nil, r.syntax("skip value", err)
	}
	r.line++
	return nil, source.Malformed(r.line, fmt.Errorf("json: record is %s, not an object", kindOf(tok)))
}

// closeArray consumes ']' and, for envelopes, the rest of the root object.
func (r *Reader) closeArray() error {
	if _, err := r.dec.Token(); err != nil {
		return r.syntax("read array end", err)
	}
	if !r.envelope {
		return nil
	}
	r.envelope = false
	for r.dec.More() {
		if _, err := r.key(); err != nil {
			return err
		}
		tok, err := r.dec.Token()
		if err != nil {
			return r.syntax("skip envelope field", err)
		}
		if err := skip(r.dec, tok); err != nil {
			return r.syntax("skip envelope field", err)
		}
	}
	if _, err := r.dec.Token(); err != nil {
		return r.syntax("read object end", err)
	}
	return nil
}

// object reads an object whose '{' was consumed, keeping key order.
func (r *Reader) object() (*record, error) {
	rec := &record{vals: map[string]any{}}
	for r.dec.More() {
		key, err := r.key()
		if err != nil {
			return nil, err
		}
		tok, err := r.dec.Token()
		if err != nil {
			return nil, r.syntax("read object value", err)
		}
		v, err := materialize(r.dec, tok)
		if err != nil {
			return nil, r.syntax("read object value", err)
		}
		rec.add(key, v)
	}
	if _, err := r.dec.Token(); err != nil {
		return nil, r.syntax("read object end", err)
	}
	return rec, nil
}

func (r *Reader) key() (string, error) {
	tok, err := r.dec.Token()
	if err != nil {
		return "", r.syntax("read object key", err)
	}
	k, ok := tok.(string)
	if !ok {
		return "", r.syntax("read object key", fmt.Errorf("key is %T", tok))
	}
	return k, nil
}

func (r *Reader) syntax(op string, err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return source.Unreadable(r.line+1, fmt.Errorf("json: %s: %w", op, err))
}

func (rec *record) add(k string, v any) {
	if _, dup := rec.vals[k]; !dup {
		rec.keys = append(rec.keys, k)
	}
	rec.vals[k] = v
}

// Header implements source.Headered.
func (r *Reader) Header() []string { return r.header }

// Next implements source.Source. The returned fields are reused by the next
// call.
func (r *Reader) Next(ctx context.Context) (source.RawRow, error) {
	if err := ctx.Err(); err != nil {
		return source.RawRow{}, err
	}

	if len(r.ahead) > 0 {
		err := r.ahead[0]
		r.ahead = r.ahead[1:]
		return source.RawRow{}, err
	}

	rec := r.pending
	r.pending = nil
	if rec == nil {
		var err error
		if rec, err = r.next(); err != nil {
			return source.RawRow{}, err
		}
	}
	r.line++

	if cap(r.out) < len(r.header) {
		r.out = make([]string, len(r.header))
	}
	r.out = r.out[:len(r.header)]
	for i, k := range r.header {
		r.out[i] = cell(rec.vals[k], r.sep)
	}
	return source.RawRow{Fields: r.out, Index: r.line}, nil
}

// SizeHint implements source.Sized.
func (r *Reader) SizeHint() int64 { return r.size }

// Offset implements source.Sized.
func (r *Reader) Offset() int64 { return r.dec.InputOffset() }

// Close closes the underlying stream when it is an io.Closer.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// cell renders a JSON value as text. null is blank, arrays of scalars are
// joined with sep and nested structures are re-encoded as compact JSON.
func cell(v any, sep string) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, it := range t {
			switch it.(type) {
			case nil:
				continue
			case map[string]any, []any:
				return compact(v)
			}
			parts = append(parts, cell(it, sep))
		}
		return strings.Join(parts, sep)
	}
	return compact(v)
}

func compact(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func kindOf(tok json.Token) string {
	switch tok.(type) {
	case json.Delim:
		return "an array"
	case string:
		return "a string"
	case json.Number:
		return "a number"
	case bool:
		return "a boolean"
	case nil:
		return "null"
	}
	return fmt.Sprintf("%T", tok)
}

// materialize builds the value whose first token was already read. For
// '[' and '{' it reads up to the matching delimiter.
func materialize(dec *json.Decoder, tok json.Token) (any, error) {
	d, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch d {
	case '{':
		m := make(map[string]any)
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			k, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("object key is %T", kt)
			}
			vt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			v, err := materialize(dec, vt)
			if err != nil {
				return nil, err
			}
			m[k] = v
		}
		_, err := dec.Token()
		return m, err
	case '[':
		arr := []any{}
		for dec.More() {
			vt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			v, err := materialize(dec, vt)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		_, err := dec.Token()
		return arr, err
	}
	return nil, fmt.Errorf("unexpected delimiter %q", d)
}

// skip consumes the rest of the value whose first token was already read.
func skip(dec *json.Decoder, tok json.Token) error {
	d, ok := tok.(json.Delim)
	if !ok {
		return nil
	}
	if d != '{' && d != '[' {
		return fmt.Errorf("unexpected delimiter %q", d)
	}
	for dec.More() {
		if d == '{' {
			if _, err := dec.Token(); err != nil {
				return err
			}
		}
		vt, err := dec.Token()
		if err != nil {
			return err
		}
		if err := skip(dec, vt); err != nil {
			return err
		}
	}
	_, err := dec.Token()
	return err
}

var (
	_ source.Source   = (*Reader)(nil)
	_ source.Headered = (*Reader)(nil)
	_ source.Sized    = (*Reader)(nil)
)
