package ocirepo

import (
	"errors"
	"strings"

	"github.com/aweris/ocirepo/internal/naming"
	"github.com/aweris/ocirepo/internal/remote"
)

// Error kinds. Every operation failure is an *OpError whose Kind is one of
// these, so callers can test with errors.Is.
var (
	ErrInvalidReference = errors.New("ocirepo: invalid reference")
	ErrNotFound         = errors.New("ocirepo: not found")
	ErrTransferFailed   = errors.New("ocirepo: transfer failed")
	ErrUnsupported      = errors.New("ocirepo: operation not supported")

	// ErrPackaging marks failures while building the image from a local
	// file. They are reported with kind ErrTransferFailed.
	ErrPackaging = errors.New("ocirepo: packaging failed")
)

// OpError describes a failed operation on one artifact.
type OpError struct {
	Op   string // put, get, exists, getIfNewer, ...
	Path string // artifact path
	Ref  string // resolved image reference, if resolution succeeded
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	if e.Ref != "" {
		b.WriteString(" (")
		b.WriteString(e.Ref)
		b.WriteString(")")
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newOpError(op, path, ref string, err error) *OpError {
	return &OpError{Op: op, Path: path, Ref: ref, Kind: kindOf(err), Err: err}
}

func kindOf(err error) error {
	switch {
	case errors.Is(err, naming.ErrInvalidReference):
		return ErrInvalidReference
	case errors.Is(err, remote.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrUnsupported):
		return ErrUnsupported
	default:
		return ErrTransferFailed
	}
}
