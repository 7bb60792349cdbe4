package condition

import (
	"fmt"
	"strings"

	"github.com/nerrad567/avbridge/internal/device"
)

// node is one element of a parsed expression.
type node interface {
	eval(s device.State) (any, error)
}

type literalNode struct{ value any }

func (n literalNode) eval(device.State) (any, error) { return n.value, nil }

type pathNode struct{ fields []string }

func (n pathNode) eval(s device.State) (any, error) {
	v, ok := s.Lookup(n.fields...)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, pathRoot, strings.Join(n.fields, "."))
	}
	if f, isNum := toFloat(v); isNum {
		return f, nil
	}
	return v, nil
}

type notNode struct{ operand node }

func (n notNode) eval(s device.State) (any, error) {
	v, err := n.operand.eval(s)
	if err != nil {
		return nil, err
	}
	return !truthy(v), nil
}

type andNode struct{ left, right node }

func (n andNode) eval(s device.State) (any, error) {
	l, err := n.left.eval(s)
	if err != nil {
		return nil, err
	}
	if !truthy(l) {
		return false, nil
	}
	r, err := n.right.eval(s)
	if err != nil {
		return nil, err
	}
	return truthy(r), nil
}

type orNode struct{ left, right node }

func (n orNode) eval(s device.State) (any, error) {
	l, err := n.left.eval(s)
	if err != nil {
		return nil, err
	}
	if truthy(l) {
		return true, nil
	}
	r, err := n.right.eval(s)
	if err != nil {
		return nil, err
	}
	return truthy(r), nil
}

type compareNode struct {
	op          string
	left, right node
}

func (n compareNode) eval(s device.State) (any, error) {
	l, err := n.left.eval(s)
	if err != nil {
		return nil, err
	}
	r, err := n.right.eval(s)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==":
		return equal(l, r), nil
	case "!=":
		return !equal(l, r), nil
	}

	lf, lok := toFloat(l)
	rf, rok := toFloat(r)
	if !lok || !rok {
		return nil, fmt.Errorf("%w: cannot order %T %s %T", ErrType, l, n.op, r)
	}
	switch n.op {
	case "<":
		return lf < rf, nil
	case "<=":
		return lf <= rf, nil
	case ">":
		return lf > rf, nil
	default:
		return lf >= rf, nil
	}
}

// equal compares scalars. Values of different kinds are never equal.
func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case map[string]any:
		return len(val) > 0
	case []any:
		return len(val) > 0
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
