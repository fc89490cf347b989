package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLayout   Phase = "layout"   // struct/array layout construction
	PhaseBind     Phase = "bind"     // per-function binding resolution
	PhaseLoad     Phase = "load"     // library load (all functions)
	PhaseCall     Phase = "call"     // argument marshaling and invocation
	PhaseValidate Phase = "validate" // runtime checks
	PhaseConfig   Phase = "config"   // configuration parsing
	PhaseDecl     Phase = "decl"     // declaration files
)

// Kind categorizes the error
type Kind string

const (
	KindSizeMismatch  Kind = "size_mismatch"
	KindSymbolMissing Kind = "symbol_missing"
	KindOverflow      Kind = "overflow"
	KindUnsupported   Kind = "unsupported"
	KindInvalidInput  Kind = "invalid_input"
	KindNilPointer    Kind = "nil_pointer"
	KindNotFound      Kind = "not_found"
	KindAllocation    Kind = "allocation"
	KindTypeMismatch  Kind = "type_mismatch"
	KindOutOfBounds   Kind = "out_of_bounds"
	KindDuplicate     Kind = "duplicate"
	KindTrap          Kind = "trap" // native call failed
)

// Error is the structured error type used throughout nativebind
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Symbol string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Symbol != "" {
		b.WriteString(" in ")
		b.WriteString(e.Symbol)
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
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

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

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

// Symbol sets the function or entrypoint name
func (b *Builder) Symbol(name string) *Builder {
	b.err.Symbol = name
	return b
}

// Path sets the parameter or field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
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

// ArraySize creates the validation error raised when a fixed-size array
// argument does not have the declared number of elements.
func ArraySize(expected, got int64) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindSizeMismatch,
		Detail: fmt.Sprintf("array size mismatch: expected %d, got %d", expected, got),
		Value:  got,
	}
}

// SymbolMissing creates the binding error for a symbol absent from a library.
func SymbolMissing(entrypoint, library string) *Error {
	return &Error{
		Phase:  PhaseBind,
		Kind:   KindSymbolMissing,
		Symbol: entrypoint,
		Detail: fmt.Sprintf("symbol not found in %s", library),
	}
}

// LayoutOverflow creates an overflow error for size accumulation in a layout.
func LayoutOverflow(path []string, detail string) *Error {
	return &Error{
		Phase:  PhaseLayout,
		Kind:   KindOverflow,
		Path:   path,
		Detail: detail,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds creates an out of bounds error for a memory access.
func OutOfBounds(phase Phase, addr, length uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("memory access out of bounds: addr=0x%x, length=%d", addr, length),
		Value:  addr,
	}
}

// NilPointer creates a nil pointer error
func NilPointer(phase Phase, path []string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNilPointer,
		Path:   path,
		Detail: "nil value for non-nullable argument",
	}
}

// Overflow creates an overflow error for a value that does not fit its layout.
func Overflow(phase Phase, path []string, value any, target string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		Detail: fmt.Sprintf("value %v overflows %s", value, target),
		Value:  value,
	}
}

// TypeMismatch creates a type mismatch error between a Go value and a layout.
func TypeMismatch(phase Phase, path []string, goType, layout string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Path:   path,
		Detail: fmt.Sprintf("cannot use Go type %s as %s", goType, layout),
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint64, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
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

// Load wraps a failure that aborted a library load.
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidInput,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingSymbol is a single unresolved, non-tolerant function
type MissingSymbol struct {
	Library    string // symbol table name, e.g. "libGL.so.1"
	Entrypoint string // native symbol name
	Function   string // declared function name
}

// MissingSymbolsError is returned when a library load fails because one or
// more required symbols could not be resolved. All missing symbols of a load
// are reported together.
type MissingSymbolsError struct {
	Symbols []MissingSymbol
}

// NewMissingSymbolsError creates an error from the given missing symbols
func NewMissingSymbolsError(symbols []MissingSymbol) *MissingSymbolsError {
	return &MissingSymbolsError{Symbols: symbols}
}

func (e *MissingSymbolsError) Error() string {
	if len(e.Symbols) == 0 {
		return "[load] symbol_missing: no symbols specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[load] symbol_missing: %d required symbol(s) not found:\n", len(e.Symbols))

	byLib := make(map[string][]MissingSymbol)
	var libOrder []string
	for _, s := range e.Symbols {
		if _, exists := byLib[s.Library]; !exists {
			libOrder = append(libOrder, s.Library)
		}
		byLib[s.Library] = append(byLib[s.Library], s)
	}

	for _, lib := range libOrder {
		b.WriteString("\n  ")
		b.WriteString(lib)
		b.WriteString(":\n")
		for _, s := range byLib[lib] {
			b.WriteString("    - ")
			b.WriteString(s.Entrypoint)
			if s.Function != "" && s.Function != s.Entrypoint {
				b.WriteString(" (")
				b.WriteString(s.Function)
				b.WriteByte(')')
			}
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type. A MissingSymbolsError
// also matches the generic symbol_missing error at the bind phase.
func (e *MissingSymbolsError) Is(target error) bool {
	switch t := target.(type) {
	case *MissingSymbolsError:
		return true
	case *Error:
		return t.Kind == KindSymbolMissing
	}
	return false
}
