package contribution

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

func (n orNode) eval(ctx Context) any  { return truthy(n.left.eval(ctx)) || truthy(n.right.eval(ctx)) }
func (n andNode) eval(ctx Context) any { return truthy(n.left.eval(ctx)) && truthy(n.right.eval(ctx)) }
func (n notNode) eval(ctx Context) any { return !truthy(n.operand.eval(ctx)) }

func (n eqNode) eval(ctx Context) any {
	l, r := n.left.eval(ctx), n.right.eval(ctx)
	if l == nil || r == nil {
		return false
	}
	return equal(l, r)
}

func (n neqNode) eval(ctx Context) any {
	l, r := n.left.eval(ctx), n.right.eval(ctx)
	if l == nil || r == nil {
		return false
	}
	return !equal(l, r)
}

func (n inNode) eval(ctx Context) any {
	needle, haystack := n.left.eval(ctx), n.right.eval(ctx)
	if needle == nil || haystack == nil {
		return false
	}
	switch h := haystack.(type) {
	case string:
		return strings.Contains(h, toString(needle))
	case map[string]any:
		_, ok := h[toString(needle)]
		return ok
	}
	v := reflect.ValueOf(haystack)
	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		for i := 0; i < v.Len(); i++ {
			if equal(needle, v.Index(i).Interface()) {
				return true
			}
		}
	}
	return false
}

func (n matchNode) eval(ctx Context) any {
	v := n.left.eval(ctx)
	if v == nil {
		return false
	}
	return n.re.MatchString(toString(v))
}

func (n keyNode) eval(ctx Context) any     { return ctx.Lookup(n.key) }
func (n literalNode) eval(ctx Context) any { return n.value }

// truthy follows the usual scripting rules: nil, false, zero, the empty
// string and empty collections are false.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	}
	return true
}

// equal compares values loosely: numbers by value, and mixed types by
// their string forms so that a literal 1 equals a context value "1".
func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return ba == bb
		}
	}
	return toString(a) == toString(b)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}
