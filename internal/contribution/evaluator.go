package contribution

import (
	"sort"

	"github.com/dshills/exthost/internal/protocol"
	"go.uber.org/zap"
)

// Source is the contributions of one extension.
type Source struct {
	Extension     string
	Contributions protocol.Contributions
}

// Action is an action in the evaluated set.
type Action struct {
	Extension string
	protocol.ActionContribution

	// Enabled is the value of the action's own when-expression.
	Enabled bool
}

// Item is a visible menu item with the action it shows.
type Item struct {
	Extension string
	Group     string
	Action    Action
}

// Result is the visible and enabled contribution set for a context.
type Result struct {
	Menus   map[protocol.MenuID][]Item
	Actions []Action
}

// Evaluator evaluates contributions. It is safe for concurrent use.
type Evaluator struct {
	cache  *exprCache
	logger *zap.Logger
}

// Option configures an Evaluator.
type Option func(*evaluatorConfig)

type evaluatorConfig struct {
	cacheSize int64
	logger    *zap.Logger
}

// WithCacheSize bounds the number of compiled expressions kept.
func WithCacheSize(n int64) Option {
	return func(c *evaluatorConfig) {
		if n > 0 {
			c.cacheSize = n
		}
	}
}

// WithLogger sets the evaluator logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *evaluatorConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewEvaluator creates an evaluator.
func NewEvaluator(opts ...Option) (*Evaluator, error) {
	cfg := evaluatorConfig{cacheSize: 4096, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	cache, err := newExprCache(cfg.cacheSize)
	if err != nil {
		return nil, err
	}
	return &Evaluator{cache: cache, logger: cfg.logger}, nil
}

// Close releases the expression cache.
func (e *Evaluator) Close() {
	e.cache.close()
}

// Compile compiles src through the cache.
func (e *Evaluator) Compile(src string) (*Expr, error) {
	return e.cache.compile(src)
}

// When evaluates a single expression. An expression that does not compile
// is false.
func (e *Evaluator) When(src string, ctx Context) bool {
	expr, err := e.cache.compile(src)
	if err != nil {
		e.logger.Debug("invalid when-expression", zap.String("expr", src), zap.Error(err))
		return false
	}
	return expr.Eval(ctx)
}

// Evaluate computes the visible menu items and the action set for ctx.
// Sources are never modified.
//
// A menu item is visible when its when-expression holds and it names an
// action of the same extension. Items are sorted by group, then title.
// The action set holds the actions referenced by visible items and every
// action without a when-expression of its own, ordered by extension and
// then declaration order.
func (e *Evaluator) Evaluate(sources []Source, ctx Context) Result {
	res := Result{Menus: make(map[protocol.MenuID][]Item)}

	var actions []Action

	ordered := append([]Source(nil), sources...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Extension < ordered[j].Extension })

	for _, src := range ordered {
		byID := make(map[string]Action, len(src.Contributions.Actions))
		for _, ac := range src.Contributions.Actions {
			byID[ac.ID] = Action{
				Extension:          src.Extension,
				ActionContribution: ac,
				Enabled:            e.When(ac.When, ctx),
			}
		}

		menuIDs := make([]protocol.MenuID, 0, len(src.Contributions.Menus))
		for id := range src.Contributions.Menus {
			menuIDs = append(menuIDs, id)
		}
		sort.Slice(menuIDs, func(i, j int) bool { return menuIDs[i] < menuIDs[j] })

		referenced := make(map[string]bool)
		for _, menu := range menuIDs {
			for _, mi := range src.Contributions.Menus[menu] {
				action, ok := byID[mi.Action]
				if !ok || !e.When(mi.When, ctx) {
					continue
				}
				res.Menus[menu] = append(res.Menus[menu], Item{
					Extension: src.Extension,
					Group:     mi.Group,
					Action:    action,
				})
				referenced[action.ID] = true
			}
		}

		listed := make(map[string]bool)
		for _, ac := range src.Contributions.Actions {
			if listed[ac.ID] || !(referenced[ac.ID] || isBlank(ac.When)) {
				continue
			}
			listed[ac.ID] = true
			actions = append(actions, byID[ac.ID])
		}
	}

	for menu, items := range res.Menus {
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].Group != items[j].Group {
				return items[i].Group < items[j].Group
			}
			return items[i].Action.Title < items[j].Action.Title
		})
		res.Menus[menu] = items
	}
	res.Actions = actions
	return res
}

// Visible returns the visible items of one menu.
func (r Result) Visible(menu protocol.MenuID) []Item {
	return r.Menus[menu]
}
