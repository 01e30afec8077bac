package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad     Phase = "load"     // binary retrieval and compilation
	PhaseHost     Phase = "host"     // runtime shim imports called by the module
	PhaseRuntime  Phase = "runtime"  // export calls into the module
	PhaseCrypto   Phase = "crypto"   // key, sign and verify operations
	PhaseEvent    Phase = "event"    // event serialization and checks
	PhaseGenerate Phase = "generate" // build-time binding generation
	PhaseConfig   Phase = "config"   // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidSecretKey Kind = "invalid_secret_key"
	KindInvalidPublicKey Kind = "invalid_public_key"
	KindSignatureInvalid Kind = "signature_invalid"
	KindIDMismatch       Kind = "id_mismatch"
	KindUnknownChannel   Kind = "unknown_channel"
	KindOutOfMemory      Kind = "out_of_memory"
	KindAborted          Kind = "aborted"
	KindInstantiation    Kind = "instantiation"
	KindMissingExport    Kind = "missing_export"
	KindInvalidInput     Kind = "invalid_input"
	KindOutOfBounds      Kind = "out_of_bounds"
	KindNotInitialized   Kind = "not_initialized"
	KindPoisoned         Kind = "poisoned"
	KindCallFailed       Kind = "call_failed"
)

// Error is the structured error type used throughout the library
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Op     string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a Phase matches on Kind alone, which is how the sentinels work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Sentinels for errors.Is matching by Kind.
var (
	ErrInvalidSecretKey = &Error{Kind: KindInvalidSecretKey}
	ErrInvalidPublicKey = &Error{Kind: KindInvalidPublicKey}
	ErrSignatureInvalid = &Error{Kind: KindSignatureInvalid}
	ErrIDMismatch       = &Error{Kind: KindIDMismatch}
	ErrUnknownChannel   = &Error{Kind: KindUnknownChannel}
	ErrOutOfMemory      = &Error{Kind: KindOutOfMemory}
	ErrAborted          = &Error{Kind: KindAborted}
	ErrInstantiation    = &Error{Kind: KindInstantiation}
	ErrMissingExport    = &Error{Kind: KindMissingExport}
	ErrInvalidInput     = &Error{Kind: KindInvalidInput}
	ErrOutOfBounds      = &Error{Kind: KindOutOfBounds}
	ErrNotInitialized   = &Error{Kind: KindNotInitialized}
	ErrPoisoned         = &Error{Kind: KindPoisoned}
)

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Op sets the name of the failing operation
func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidSecretKey reports a secret key the module refused to derive a keypair from.
func InvalidSecretKey(op string) *Error {
	return &Error{
		Phase:  PhaseCrypto,
		Kind:   KindInvalidSecretKey,
		Op:     op,
		Detail: "invalid private key",
	}
}

// InvalidPublicKey reports 32 bytes that do not parse as an x-only public key.
func InvalidPublicKey(phase Phase, op string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidPublicKey,
		Op:     op,
		Detail: "invalid public key",
	}
}

// SignatureInvalid reports an explicit verification failure.
func SignatureInvalid(op string) *Error {
	return &Error{
		Phase:  PhaseEvent,
		Kind:   KindSignatureInvalid,
		Op:     op,
		Detail: "signature is invalid",
	}
}

// IDMismatch reports an event whose id does not hash its content.
func IDMismatch(op string) *Error {
	return &Error{
		Phase:  PhaseEvent,
		Kind:   KindIDMismatch,
		Op:     op,
		Detail: "id is invalid",
	}
}

// UnknownChannel reports a write to a file descriptor the shim never opened.
func UnknownChannel(fd uint32, text string) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindUnknownChannel,
		Detail: fmt.Sprintf("module tried writing to non-open file descriptor: %d\n%s", fd, text),
		Value:  fd,
	}
}

// OutOfMemory reports a refused heap growth request.
func OutOfMemory(label string, requested uint32) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindOutOfMemory,
		Op:     label,
		Detail: fmt.Sprintf("out of memory (resizing %d)", requested),
		Value:  requested,
	}
}

// Aborted reports a module-triggered abort carrying the last diagnostic text.
func Aborted(label, lastError string) *Error {
	if lastError == "" {
		lastError = "an unknown error occurred"
	}
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindAborted,
		Op:     label,
		Detail: lastError,
	}
}

// Instantiation creates an instantiation error
func Instantiation(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingExport reports an export the binding table names but the module lacks.
func MissingExport(name, symbol string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindMissingExport,
		Detail: fmt.Sprintf("export %s (symbol %q) not found", name, symbol),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, op, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Op:     op,
		Detail: detail,
	}
}

// InvalidLength reports a byte argument of the wrong size.
func InvalidLength(phase Phase, op, what string, want, got int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Op:     op,
		Detail: fmt.Sprintf("%s must be %d bytes, got %d", what, want, got),
		Value:  got,
	}
}

// OutOfBounds reports an access outside the bound linear memory.
func OutOfBounds(phase Phase, offset, length, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("range [%d, %d) outside memory of %d bytes", offset, uint64(offset)+uint64(length), size),
		Value:  offset,
	}
}

// NotInitialized creates a not-initialized error for missing module/instance
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// CallFailed wraps a result code of 0 from a module call that has no dedicated Kind.
func CallFailed(op, detail string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindCallFailed,
		Op:     op,
		Detail: detail,
	}
}

// Call wraps a trap or host failure raised while an export was running.
func Call(export string, cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindCallFailed,
		Op:     export,
		Detail: "module call failed",
		Cause:  cause,
	}
}

// Poisoned reports use of a module instance after a fatal condition.
func Poisoned(cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindPoisoned,
		Detail: "module instance is no longer usable after a fatal error",
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
