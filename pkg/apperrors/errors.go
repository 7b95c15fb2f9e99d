package apperrors

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrSyncInProgress = errors.New("sync already in progress")
)

// Kind classifies ingestion failures. The string values are the names
// reported in SyncReport failures.
type Kind string

const (
	KindTransport  Kind = "TransportError"
	KindParse      Kind = "ParseError"
	KindValidation Kind = "ValidationError"
	KindConflict   Kind = "ConflictError"
	KindStore      Kind = "StoreError"
	KindCache      Kind = "CacheError"
)

// Error carries a failure kind alongside the operation that produced it.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: KindParse}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates an error of the given kind.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Message: msg}
}

// Wrap wraps err with a kind. An existing kind in the chain is preserved.
func Wrap(err error, kind Kind, op string) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		kind = existing.Kind
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
