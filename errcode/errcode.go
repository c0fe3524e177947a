package errcode

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes. Every conductor/controller reply carries exactly one of
// these (spec.md §6's error taxonomy).
const (
	Ok               Code = "ok"
	InvalidArgument  Code = "invalid_argument"
	NotFound         Code = "not_found"
	NotOwner         Code = "not_owner"
	AlreadyReserved  Code = "already_reserved"
	NoPath           Code = "no_path"
	QueueFull        Code = "queue_full"
	Communication    Code = "communication"
	NotInitialized   Code = "not_initialized"
	Pending          Code = "pending"
	Unknown          Code = "unknown"
)

// E is the wrapper used when a code needs attached context and/or a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Wrap attaches an operation name and cause to a Code.
func Wrap(c Code, op string, err error) *E {
	return &E{C: c, Op: op, Err: err}
}

// Of extracts a Code from an error, defaulting to Unknown.
func Of(err error) Code {
	if err == nil {
		return Ok
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Unknown
}

// Is reports whether err ultimately carries the given Code.
func Is(err error, c Code) bool {
	return Of(err) == c
}
