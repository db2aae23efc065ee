package parser

import "fmt"

// Kind names the reason a tier did not produce a value.
type Kind string

const (
	KindNone          Kind = ""
	KindNoSpan        Kind = "no_span"
	KindInvalidEscape Kind = "invalid_escape"
	KindTruncated     Kind = "truncated"
	KindSyntax        Kind = "syntax"
	KindSchema        Kind = "schema"
)

type state uint8

const (
	stateSuccess state = iota + 1
	stateRecoverable
	stateFatal
)

// Outcome is the result of one tier: a value, a failure a later tier may
// repair, or a failure no tier can repair.
type Outcome[T any] struct {
	state state
	value T
	kind  Kind
	err   error
}

func succeed[T any](v T) Outcome[T] { return Outcome[T]{state: stateSuccess, value: v} }

func recoverable[T any](kind Kind, err error) Outcome[T] {
	return Outcome[T]{state: stateRecoverable, kind: kind, err: err}
}

func fatal[T any](kind Kind, err error) Outcome[T] {
	return Outcome[T]{state: stateFatal, kind: kind, err: err}
}

// Ok reports success.
func (o Outcome[T]) Ok() bool { return o.state == stateSuccess }

// Recoverable reports a failure a later tier may repair.
func (o Outcome[T]) Recoverable() bool { return o.state == stateRecoverable }

// Fatal reports a failure no tier repairs.
func (o Outcome[T]) Fatal() bool { return o.state == stateFatal }

// Value returns the decoded value; the zero value unless Ok.
func (o Outcome[T]) Value() T { return o.value }

// Kind returns the failure kind, KindNone on success.
func (o Outcome[T]) Kind() Kind { return o.kind }

// Err returns the underlying decode or validation error.
func (o Outcome[T]) Err() error { return o.err }

func (o Outcome[T]) String() string {
	switch o.state {
	case stateSuccess:
		return "success"
	case stateRecoverable:
		return fmt.Sprintf("recoverable(%s)", o.kind)
	case stateFatal:
		return fmt.Sprintf("fatal(%s)", o.kind)
	default:
		return "unset"
	}
}
