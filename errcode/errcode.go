package errcode

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK            Code = "ok"
	Busy          Code = "busy"
	Unsupported   Code = "unsupported"
	InvalidParams Code = "invalid_params"
	Conflict      Code = "conflict"
	NotReady      Code = "not_ready"

	UnknownBus Code = "unknown_bus"
	UnknownPin Code = "unknown_pin"
	PinInUse   Code = "pin_in_use"
	NotFound   Code = "not_found"
	Timeout    Code = "timeout"

	Error Code = "error" // generic fallback
)

// E keeps a code together with the failing operation and an optional cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += " (" + e.Err.Error() + ")"
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Wrap attaches op and cause to a code. A nil cause still yields a non-nil error.
func Wrap(c Code, op string, err error) error {
	return &E{C: c, Op: op, Err: err}
}

// Invalid builds an InvalidParams error for option validation.
func Invalid(op, msg string) error {
	return &E{C: InvalidParams, Op: op, Msg: msg}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}

// MapDriverErr maps low-level driver errors to a Code.
// Codes pass through; anything else is reported as Error.
func MapDriverErr(err error) Code {
	return Of(err)
}
