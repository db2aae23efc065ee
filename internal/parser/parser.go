// Package parser turns free-form model replies into typed values.
//
// A reply is expected to contain one JSON value somewhere in its text. Parse
// locates it and decodes it through an ordered series of repair tiers, stopping
// at the first that succeeds:
//
//  1. span extraction
//  2. direct decoding and validation
//  3. escape repair, only for illegal backslash escapes
//  4. truncation repair, only for input that ends before the value closes
//
// When every tier fails Parse returns *UnrecoverableError and hands both the
// original and the repaired text to the configured DiagnosticSink.
// ParseScore is the degrade-to-defaults variant used for numeric scoring; it
// never fails.
package parser

import (
	"errors"
	"fmt"
)

// ErrNoStructuredSpan indicates the reply contains no JSON-like text at all.
var ErrNoStructuredSpan = errors.New("no structured span found")

// Tier identifies the stage that produced the final value.
type Tier int

const (
	TierNone       Tier = 0
	TierExtract    Tier = 1
	TierDirect     Tier = 2
	TierEscape     Tier = 3
	TierTruncation Tier = 4
	// TierFields is used only by ParseScore: scalar fields were pulled out of
	// the raw text one by one.
	TierFields Tier = 5
	// TierDefaults is used only by ParseScore: nothing was recoverable.
	TierDefaults Tier = 6
)

func (t Tier) String() string {
	switch t {
	case TierExtract:
		return "extract"
	case TierDirect:
		return "direct"
	case TierEscape:
		return "escape_repair"
	case TierTruncation:
		return "truncation_repair"
	case TierFields:
		return "field_extraction"
	case TierDefaults:
		return "defaults"
	default:
		return "none"
	}
}

// Attempt records one parse call. It is never persisted.
type Attempt struct {
	Raw      string
	Span     string
	Repaired string
	Tier     Tier
	Kind     Kind
	Err      error
}

// UnrecoverableError is returned once every repair tier failed.
type UnrecoverableError struct {
	Original string
	Repaired string
	Kind     Kind
	Cause    error
}

func (e *UnrecoverableError) Error() string {
	return fmt.Sprintf("unrecoverable parse failure (%s): %v", e.Kind, e.Cause)
}

func (e *UnrecoverableError) Unwrap() error { return e.Cause }

type config struct {
	sink DiagnosticSink
}

// Option configures a parse call.
type Option func(*config)

// WithSink sends unrecoverable inputs to sink. The default sink logs them.
func WithSink(sink DiagnosticSink) Option {
	return func(c *config) { c.sink = sink }
}

func newConfig(opts []Option) config {
	c := config{sink: defaultSink}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Parse extracts and decodes the JSON value in raw into T.
// The returned Attempt describes how the value was obtained, or why not.
func Parse[T any](raw string, opts ...Option) (T, *Attempt, error) {
	cfg := newConfig(opts)
	attempt := &Attempt{Raw: raw, Tier: TierExtract}

	var zero T
	span, err := ExtractSpan(raw)
	if err != nil {
		attempt.Kind, attempt.Err = KindNoSpan, err
		return zero, attempt, err
	}
	attempt.Span = span

	out := decode[T](span)
	if out.Ok() {
		attempt.Tier = TierDirect
		return out.Value(), attempt, nil
	}

	repaired := span
	if out.Recoverable() && out.Kind() == KindInvalidEscape {
		repaired = repairEscapes(span)
		out = decode[T](repaired)
		if out.Ok() {
			attempt.Tier, attempt.Repaired = TierEscape, repaired
			return out.Value(), attempt, nil
		}
	}

	if out.Recoverable() && out.Kind() == KindTruncated {
		repaired = repairTruncation(repaired)
		out = decode[T](repaired)
		if out.Ok() {
			attempt.Tier, attempt.Repaired = TierTruncation, repaired
			return out.Value(), attempt, nil
		}
	}

	attempt.Tier = TierNone
	attempt.Repaired = repaired
	attempt.Kind = out.Kind()
	attempt.Err = &UnrecoverableError{Original: span, Repaired: repaired, Kind: out.Kind(), Cause: out.Err()}
	cfg.sink.Record(span, repaired, attempt.Err)
	return zero, attempt, attempt.Err
}
