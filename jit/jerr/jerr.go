// Package jerr defines the compile-time error surface shared by
// jit/builder, jit/codegen, and jit/codecache. OK is represented as a nil
// error; every other compile-time result is a *CompileError wrapping one
// of the sentinel Codes below.
package jerr

import "fmt"

// Code enumerates the compile-time results a function build/compile can
// end in. CacheFull is internal only: jit/codegen.Driver.Compile always
// catches it and retries on a larger page, so it must never escape
// Compile.
type Code uint8

const (
	OutOfMemory Code = iota + 1
	CompileErr
	NullFunction
	NullReference
	CalledNested
	CacheFull
)

func (c Code) String() string {
	switch c {
	case OutOfMemory:
		return "out of memory"
	case CompileErr:
		return "compile error"
	case NullFunction:
		return "null function"
	case NullReference:
		return "null reference"
	case CalledNested:
		return "called nested"
	case CacheFull:
		return "cache full"
	default:
		return fmt.Sprintf("jerr.Code(%d)", c)
	}
}

// CompileError carries a Code plus optional context.
type CompileError struct {
	Code Code
	Msg  string
}

func (e *CompileError) Error() string {
	if e.Msg == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// New builds a *CompileError for code with a formatted message.
func New(code Code, format string, args ...interface{}) *CompileError {
	return &CompileError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Is reports whether err is a *CompileError with the given Code, so callers
// can write `if jerr.Is(err, jerr.CacheFull)` instead of a type assertion.
func Is(err error, code Code) bool {
	ce, ok := err.(*CompileError)
	return ok && ce.Code == code
}
