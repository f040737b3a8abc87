package fault

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Internal Kind = iota
	Validation
	Unauthorized
	Forbidden
	Conflict
	NotFound
	Upstream
)

// Fault is an error that carries a kind the HTTP layer can map to a status code.
type Fault struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Fault) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is and errors.As to work.
func (e *Fault) Unwrap() error {
	return e.Err
}

func (k Kind) String() string {
	switch k {
	case Internal:
		return "InternalError"
	case Validation:
		return "ValidationError"
	case Unauthorized:
		return "Unauthorized"
	case Forbidden:
		return "Forbidden"
	case Conflict:
		return "Conflict"
	case NotFound:
		return "NotFound"
	case Upstream:
		return "UpstreamError"
	default:
		return "UnknownError"
	}
}

func New(kind Kind, msg string, err error) error {
	return &Fault{Kind: kind, Message: msg, Err: err}
}

func Invalid(msg string) error { return New(Validation, msg, nil) }
func Conflicted(msg string) error { return New(Conflict, msg, nil) }
func Missing(msg string) error { return New(NotFound, msg, nil) }
func Denied(msg string) error { return New(Forbidden, msg, nil) }
func Unauth(msg string) error { return New(Unauthorized, msg, nil) }
func Wrap(msg string, err error) error { return New(Internal, msg, err) }

// UpstreamErr marks a failed call to an external service.
func UpstreamErr(msg string, err error) error {
	return New(Upstream, msg, err)
}

// KindOf returns the kind of the first Fault in err's chain, or Internal.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return Internal
}

// Message returns the user-facing message of the first Fault in err's chain.
func Message(err error) string {
	var f *Fault
	if errors.As(err, &f) {
		return f.Message
	}
	return "internal error"
}

// Is reports whether err carries a Fault of the given kind.
func Is(err error, kind Kind) bool {
	var f *Fault
	return errors.As(err, &f) && f.Kind == kind
}
