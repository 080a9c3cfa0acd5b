package resource

import (
	"errors"
	"strconv"
	"strings"

	"github.com/keithlinneman/respack/internal/xerrors"
)

// Error kinds. Every error returned by this package matches exactly one of
// these with errors.Is.
var (
	ErrIO          = errors.New("i/o error")
	ErrNotFound    = errors.New("not found")
	ErrCorrupt     = errors.New("corrupt data")
	ErrInvalidName = errors.New("invalid name")
	ErrUnsupported = errors.New("unsupported value")
)

// OpError records the operation, the name or path it was working on, the
// error kind and the underlying cause (which may be nil).
type OpError struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	var b strings.Builder
	b.WriteString("resource: ")
	b.WriteString(e.Op)
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(strconv.Quote(e.Path))
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause, so errors.Is(err, ErrIO) and
// errors.Is(err, fs.ErrNotExist) both hold for a missing file.
func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opErr(op, path string, kind, err error) error {
	return xerrors.WithStack(&OpError{Op: op, Path: path, Kind: kind, Err: err})
}
