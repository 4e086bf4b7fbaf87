// Package filter evaluates subscriber-supplied JSONPath predicates against
// publication payloads.
//
// A subscription matches a payload when its expression yields at least one
// result. Expressions are compiled once when a subscription is registered; an
// empty expression matches everything.
package filter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// Expr is a compiled filter expression. The zero value and a nil *Expr match
// every payload.
type Expr struct {
	source     string
	path       jp.Expr
	rootFilter bool
}

// errMissingRoot rejects expressions that do not start at the document root.
var errMissingRoot = errors.New("expression must start with $")

// SyntaxError reports an expression that cannot be parsed.
type SyntaxError struct {
	Expr string
	Err  error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("filter: invalid expression %q: %v", e.Expr, e.Err)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// Compile parses expr. The single "=" equality spelling is accepted and
// treated as "==".
func Compile(expr string) (*Expr, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return &Expr{}, nil
	}

	if !strings.HasPrefix(trimmed, "$") {
		return nil, &SyntaxError{Expr: expr, Err: errMissingRoot}
	}

	path, err := jp.ParseString(normalize(trimmed))
	if err != nil {
		return nil, &SyntaxError{Expr: expr, Err: err}
	}

	return &Expr{
		source: expr,
		path:   path,
		// A filter applied directly to the root selects the root document
		// itself rather than its members.
		rootFilter: strings.HasPrefix(strings.ReplaceAll(trimmed, " ", ""), "$[?"),
	}, nil
}

// Validate reports whether expr is syntactically valid.
func Validate(expr string) error {
	_, err := Compile(expr)
	return err
}

// Matches compiles expr and evaluates it against payload.
func Matches(expr string, payload any) (bool, error) {
	x, err := Compile(expr)
	if err != nil {
		return false, err
	}
	return x.Match(payload)
}

// String returns the expression as it was written.
func (x *Expr) String() string {
	if x == nil {
		return ""
	}
	return x.source
}

// MatchAll reports whether the expression is empty.
func (x *Expr) MatchAll() bool {
	return x == nil || x.path == nil
}

// Match evaluates the expression against payload. Encoded JSON
// (json.RawMessage or []byte) is decoded first. An error is returned when
// decoding or evaluation fails.
func (x *Expr) Match(payload any) (matched bool, err error) {
	if x.MatchAll() {
		return true, nil
	}

	data, err := Decode(payload)
	if err != nil {
		return false, err
	}
	if x.rootFilter {
		data = []any{data}
	}

	defer func() {
		if r := recover(); r != nil {
			matched, err = false, fmt.Errorf("filter: evaluate %q: %v", x.source, r)
		}
	}()
	return len(x.path.Get(data)) > 0, nil
}

// Decode parses encoded JSON (json.RawMessage or []byte) into the generic form
// expressions evaluate against. Other values are returned unchanged, so a
// payload can be decoded once and matched against many expressions.
func Decode(payload any) (any, error) {
	var raw []byte
	switch p := payload.(type) {
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		return payload, nil
	}
	if len(raw) == 0 {
		return nil, nil
	}
	data, err := oj.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("filter: decode payload: %w", err)
	}
	return data, nil
}

// normalize rewrites a lone "=" outside string literals to "==".
func normalize(expr string) string {
	var b strings.Builder
	b.Grow(len(expr) + 4)

	var quote byte
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case quote != 0:
			if c == '\\' && i+1 < len(expr) {
				b.WriteByte(c)
				i++
				c = expr[i]
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '=':
			prev := byte(0)
			if i > 0 {
				prev = expr[i-1]
			}
			next := byte(0)
			if i+1 < len(expr) {
				next = expr[i+1]
			}
			if !strings.ContainsRune("=!<>", rune(prev)) && next != '=' && next != '~' {
				b.WriteString("==")
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}
