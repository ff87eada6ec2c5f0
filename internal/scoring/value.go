// Package scoring provides the rule evaluation core: typed values, field
// resolution, and the additive scoring engine.
package scoring

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/openlend/kestrel/internal/domain"
)

// Kind tags the type of a resolved value.
type Kind int

const (
	KindNumber Kind = iota
	KindString
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Value is a tagged union of the types a rule field can resolve to.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
	Bool bool
}

// Number wraps a float64 as a Value.
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// String wraps a string as a Value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Bool wraps a bool as a Value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

var (
	// ErrKindMismatch indicates the two operands are of different kinds.
	ErrKindMismatch = errors.New("operand kinds do not match")

	// ErrBadOperator indicates an unrecognized comparison operator.
	ErrBadOperator = errors.New("unsupported operator")

	// ErrBadLiteral indicates a rule literal that does not parse into the
	// resolved field's kind.
	ErrBadLiteral = errors.New("literal does not parse")
)

// ParseLiteral interprets a rule's stored literal according to the kind of
// the resolved field it is compared against.
func ParseLiteral(raw string, kind Kind) (Value, error) {
	switch kind {
	case KindNumber:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q as number", ErrBadLiteral, raw)
		}
		return Number(f), nil
	case KindBool:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q as bool", ErrBadLiteral, raw)
		}
		return Bool(b), nil
	case KindString:
		return String(raw), nil
	default:
		return Value{}, fmt.Errorf("%w: unknown kind", ErrBadLiteral)
	}
}

// Compare applies a comparison operator to two values of matching kind.
// The operator set is fixed; ordering is natural for numbers, lexical for
// strings, and false < true for booleans. There is no per-kind operator
// special-casing: every kind defers to its ordering.
func Compare(left Value, operator string, right Value) (bool, error) {
	if left.Kind != right.Kind {
		return false, fmt.Errorf("%w: %s vs %s", ErrKindMismatch, left.Kind, right.Kind)
	}

	var ord int
	switch left.Kind {
	case KindNumber:
		switch {
		case left.Num < right.Num:
			ord = -1
		case left.Num > right.Num:
			ord = 1
		}
	case KindString:
		ord = strings.Compare(left.Str, right.Str)
	case KindBool:
		ord = boolOrd(left.Bool) - boolOrd(right.Bool)
	}

	switch operator {
	case domain.OpGreater:
		return ord > 0, nil
	case domain.OpLess:
		return ord < 0, nil
	case domain.OpEqual:
		return ord == 0, nil
	case domain.OpNotEqual:
		return ord != 0, nil
	case domain.OpGreaterEqual:
		return ord >= 0, nil
	case domain.OpLessEqual:
		return ord <= 0, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrBadOperator, operator)
	}
}

func boolOrd(b bool) int {
	if b {
		return 1
	}
	return 0
}
