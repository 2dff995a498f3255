package contribution

import "strings"

// Context maps context keys to values. Keys may be dotted; a dotted key
// that is not present verbatim is resolved through nested maps, so
// "resource.language" finds {"resource": {"language": "go"}}.
type Context map[string]any

// Lookup returns the value of key, or nil when it is undefined.
func (c Context) Lookup(key string) any {
	if v, ok := c[key]; ok {
		return v
	}
	parts := strings.Split(key, ".")
	if len(parts) < 2 {
		return nil
	}
	var cur any = map[string]any(c)
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			if ctx, isCtx := cur.(Context); isCtx {
				m = ctx
			} else {
				return nil
			}
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}
