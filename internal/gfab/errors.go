package gfab

import (
	"errors"
	"fmt"
)

// Kind classifies failures for exit-code mapping and error handling.
type Kind int

const (
	KindUsage Kind = iota + 1
	KindEmptyInput
	KindMalformedRecord
	KindDuplicateSegment
	KindNotFound
	KindIncompatibleFile
	KindIO
	KindInternal
)

// Error carries a failure kind plus, for parse errors, the input line.
type Error struct {
	Kind Kind
	Msg  string
	Line int
	Err  error
}

func (e *Error) Error() string {
	prefix := ""
	switch e.Kind {
	case KindUsage:
		prefix = "[bad command] "
	case KindEmptyInput:
		prefix = "[empty input] "
	case KindMalformedRecord:
		prefix = "[invalid input] "
	case KindDuplicateSegment:
		prefix = "[duplicate segment] "
	case KindNotFound:
		prefix = "[not found] "
	case KindIncompatibleFile:
		prefix = "[incompatible file] "
	case KindInternal:
		prefix = "[internal] "
	}
	if e.Line > 0 {
		return fmt.Sprintf("%sline %d: %s", prefix, e.Line, e.Msg)
	}
	return prefix + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Usagef reports a bad command line (exit 2).
func Usagef(format string, args ...interface{}) error {
	return newError(KindUsage, format, args...)
}

// EmptyInputf reports a GFA stream with no segments (exit 3).
func EmptyInputf(format string, args ...interface{}) error {
	return newError(KindEmptyInput, format, args...)
}

// Malformedf reports a rejected input record (exit 4).
func Malformedf(line int, format string, args ...interface{}) error {
	return &Error{Kind: KindMalformedRecord, Msg: fmt.Sprintf(format, args...), Line: line}
}

// DuplicateSegmentf reports a segment name collision (exit 4).
func DuplicateSegmentf(line int, format string, args ...interface{}) error {
	return &Error{Kind: KindDuplicateSegment, Msg: fmt.Sprintf(format, args...), Line: line}
}

// NotFoundf reports an unresolvable query selector (exit 1).
func NotFoundf(format string, args ...interface{}) error {
	return newError(KindNotFound, format, args...)
}

// Incompatiblef reports a file that is not (a supported) .gfab (exit 1).
func Incompatiblef(format string, args ...interface{}) error {
	return newError(KindIncompatibleFile, format, args...)
}

// IOf wraps a storage or network failure (exit 5).
func IOf(err error, format string, args ...interface{}) error {
	return &Error{Kind: KindIO, Msg: fmt.Sprintf(format, args...) + ": " + err.Error(), Err: err}
}

// Internalf reports an assertion failure (exit 6).
func Internalf(format string, args ...interface{}) error {
	return newError(KindInternal, format, args...)
}

// ExitCode maps an error to the documented process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindUsage:
			return 2
		case KindEmptyInput:
			return 3
		case KindMalformedRecord, KindDuplicateSegment:
			return 4
		case KindNotFound, KindIncompatibleFile:
			return 1
		case KindIO:
			return 5
		case KindInternal:
			return 6
		}
	}
	// unclassified errors come from flag parsing
	return 2
}
