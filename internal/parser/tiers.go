package parser

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

const (
	escapeErrFragment    = "in string escape code"
	truncatedErrFragment = "unexpected end of JSON input"
)

// decode is the direct validation tier: text decoded verbatim into T, then
// struct tags checked when T is a struct.
func decode[T any](text string) Outcome[T] {
	var v T
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return classify[T](err)
	}
	if isStruct(v) {
		if err := validate.Struct(v); err != nil {
			return fatal[T](KindSchema, err)
		}
	}
	return succeed(v)
}

func classify[T any](err error) Outcome[T] {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		switch {
		case strings.Contains(syntaxErr.Error(), escapeErrFragment):
			return recoverable[T](KindInvalidEscape, err)
		case strings.Contains(syntaxErr.Error(), truncatedErrFragment):
			return recoverable[T](KindTruncated, err)
		default:
			return fatal[T](KindSyntax, err)
		}
	}
	return fatal[T](KindSchema, err)
}

func isStruct(v any) bool {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t != nil && t.Kind() == reflect.Struct
}

// repairEscapes doubles every backslash. Mathematical notation such as \frac
// becomes a literal backslash instead of an illegal escape.
func repairEscapes(text string) string {
	return strings.ReplaceAll(text, `\`, `\\`)
}

// repairTruncation closes a value the model stopped emitting midway.
// An open string is closed first, dangling separators are dropped, then the
// unmatched brackets are closed innermost first.
func repairTruncation(text string) string {
	var (
		stack    []byte
		inString bool
		escaped  bool
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if n := len(stack); n > 0 && stack[n-1] == c {
				stack = stack[:n-1]
			}
		}
	}

	var b strings.Builder
	b.Grow(len(text) + len(stack) + 1)
	b.WriteString(text)
	if inString {
		if escaped {
			b.WriteByte('\\')
		}
		b.WriteByte('"')
	}

	repaired := strings.TrimRight(b.String(), " \t\r\n")
	repaired = strings.TrimRight(repaired, ",")

	b.Reset()
	b.WriteString(repaired)
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}
