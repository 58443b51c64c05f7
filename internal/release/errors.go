package release

import (
	"errors"
	"fmt"
)

// Kind classifies installer and catalog failures.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindCatalogFetch
	KindTransfer
	KindIntegrity
	KindExtraction
	KindAbort
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindCatalogFetch:
		return "catalog fetch"
	case KindTransfer:
		return "transfer"
	case KindIntegrity:
		return "integrity"
	case KindExtraction:
		return "extraction"
	case KindAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrValidation   = errors.New("validation failed")
	ErrCatalogFetch = errors.New("catalog fetch failed")
	ErrTransfer     = errors.New("transfer failed")
	ErrIntegrity    = errors.New("integrity check failed")
	ErrExtraction   = errors.New("extraction failed")
	ErrAborted      = errors.New("operation aborted")
)

var sentinels = map[Kind]error{
	KindValidation:   ErrValidation,
	KindCatalogFetch: ErrCatalogFetch,
	KindTransfer:     ErrTransfer,
	KindIntegrity:    ErrIntegrity,
	KindExtraction:   ErrExtraction,
	KindAbort:        ErrAborted,
}

// Error is the typed failure returned across package boundaries.
type Error struct {
	Kind    Kind
	Version string // empty when not tied to a version
	Msg     string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	sentinel, ok := sentinels[e.Kind]
	return ok && sentinel == target
}

// Errorf builds an *Error of the given kind with a formatted message.
func Errorf(kind Kind, version string, cause error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Version: version,
		Msg:     fmt.Sprintf(format, args...),
		Err:     cause,
	}
}

// KindOf returns the kind of the first *Error in err's chain, or zero.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsAbort reports whether err stems from cooperative cancellation.
func IsAbort(err error) bool {
	return errors.Is(err, ErrAborted)
}
