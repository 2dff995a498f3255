package contribution

import (
	"github.com/dgraph-io/ristretto/v2"
)

// Expr is a compiled when-expression. The zero source compiles to an
// expression that is always true.
type Expr struct {
	src  string
	root node
}

// Source returns the expression text.
func (e *Expr) Source() string { return e.src }

// Eval evaluates the expression against ctx.
func (e *Expr) Eval(ctx Context) bool {
	if e == nil || e.root == nil {
		return true
	}
	return truthy(e.root.eval(ctx))
}

// Compile parses a when-expression.
func Compile(src string) (*Expr, error) {
	if isBlank(src) {
		return &Expr{src: src}, nil
	}
	root, err := parse(src)
	if err != nil {
		return nil, err
	}
	return &Expr{src: src, root: root}, nil
}

func isBlank(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isSpace(s[i]) {
			return false
		}
	}
	return true
}

// compiled is a cache entry. Parse failures are cached too so a broken
// expression is not re-parsed on every evaluation.
type compiled struct {
	expr *Expr
	err  error
}

// exprCache memoizes compiled expressions.
type exprCache struct {
	c *ristretto.Cache[string, compiled]
}

func newExprCache(maxEntries int64) (*exprCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, compiled]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &exprCache{c: c}, nil
}

func (c *exprCache) compile(src string) (*Expr, error) {
	if entry, ok := c.c.Get(src); ok {
		return entry.expr, entry.err
	}
	expr, err := Compile(src)
	c.c.Set(src, compiled{expr: expr, err: err}, 1)
	return expr, err
}

func (c *exprCache) close() {
	c.c.Close()
}
