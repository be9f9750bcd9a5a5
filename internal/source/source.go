// Package source defines the row-stream contract shared by every input the
// profiler can read: delimited text, HTML tables and SQL result sets.
//
// A Source yields RawRow values lazily. The stream is finite and cannot be
// restarted; callers read it exactly once.
package source

import (
	"context"
	"errors"
	"fmt"
)

// RawRow is one record as read from the input.
//
// Ownership contract:
//   - Fields may alias a buffer the source reuses on the next call to Next.
//   - Consumers that keep values beyond the next Next call must copy them.
type RawRow struct {
	Fields []string
	Index  int // 1-based record number within the source
}

// Source is a lazy, finite, non-restartable sequence of rows.
//
// Next returns io.EOF once the stream is exhausted. Any other error is either
// ErrMalformed (the current record is unusable but the stream can continue) or
// a fatal *Error.
type Source interface {
	Next(ctx context.Context) (RawRow, error)
	Close() error
}

// Headered is implemented by sources that know their column names up front
// (SQL result sets, HTML tables with <th> cells). The profiler does not consume
// a header row from such sources.
type Headered interface {
	Header() []string
}

// Sized is implemented by sources that can report byte progress.
//
// SizeHint returns the total input size in bytes, or -1 when unknown.
// Offset returns the number of input bytes consumed so far.
type Sized interface {
	SizeHint() int64
	Offset() int64
}

// Kind classifies fatal source failures.
type Kind int

const (
	KindEmpty Kind = iota + 1
	KindEncoding
	KindUnreadable
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindEncoding:
		return "encoding"
	case KindUnreadable:
		return "unreadable"
	}
	return "unknown"
}

var (
	// ErrEmpty: the stream yielded zero lines.
	ErrEmpty = errors.New("source: empty input")
	// ErrEncoding: bytes could not be decoded as text.
	ErrEncoding = errors.New("source: invalid text encoding")
	// ErrUnreadable: the underlying stream failed.
	ErrUnreadable = errors.New("source: unreadable input")

	// ErrMalformed marks a single record that could not be parsed. It is not
	// fatal; the profiler counts the record as skipped and keeps reading.
	ErrMalformed = errors.New("source: malformed record")
)

// Error is a fatal source failure. It matches its Kind's sentinel with
// errors.Is and unwraps to the underlying cause.
type Error struct {
	Kind Kind
	Line int // 1-based record number when known, else 0
	Err  error
}

func (e *Error) Error() string {
	msg := "source " + e.Kind.String()
	if e.Line > 0 {
		msg = fmt.Sprintf("%s at record %d", msg, e.Line)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindEmpty:
		return target == ErrEmpty
	case KindEncoding:
		return target == ErrEncoding
	case KindUnreadable:
		return target == ErrUnreadable
	}
	return false
}

// Empty returns the error reported for a stream with no lines.
func Empty() error { return &Error{Kind: KindEmpty} }

// Encoding wraps a decoding failure at the given record.
func Encoding(line int, err error) error {
	return &Error{Kind: KindEncoding, Line: line, Err: err}
}

// Unreadable wraps an I/O failure of the underlying stream.
func Unreadable(line int, err error) error {
	return &Error{Kind: KindUnreadable, Line: line, Err: err}
}

// MalformedError is a record-level parse failure. It matches ErrMalformed.
type MalformedError struct {
	Line int // 1-based record number
	Err  error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("record %d: %v: %v", e.Line, ErrMalformed, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

func (e *MalformedError) Is(target error) bool { return target == ErrMalformed }

// Malformed wraps a record-level parse failure.
func Malformed(line int, err error) error {
	return &MalformedError{Line: line, Err: err}
}

// RecordIndex returns the record number carried by a malformed-record
// error, or 0.
func RecordIndex(err error) int {
	var me *MalformedError
	if errors.As(err, &me) {
		return me.Line
	}
	return 0
}

// Fatal reports whether err should stop a profiling run.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	var se *Error
	return errors.As(err, &se)
}
