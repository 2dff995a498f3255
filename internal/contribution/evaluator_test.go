package contribution

import (
	"testing"

	"github.com/dshills/exthost/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	e, err := NewEvaluator(WithCacheSize(128))
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func goSource() Source {
	return Source{
		Extension: "go",
		Contributions: protocol.Contributions{
			Actions: []protocol.ActionContribution{
				{ID: "test", Command: "go.test", Title: "Run tests", When: "resource.language == go"},
				{ID: "fmt", Command: "go.fmt", Title: "Format"},
				{ID: "vet", Command: "go.vet", Title: "Vet", When: "undefined"},
				{ID: "hidden", Command: "go.hidden", Title: "Hidden", When: "false"},
			},
			Menus: map[protocol.MenuID][]protocol.MenuItem{
				protocol.MenuEditorTitle: {
					{Action: "test", When: "resource.language == go", Group: "2_run"},
					{Action: "fmt", Group: "1_edit"},
					{Action: "vet", Group: "2_run"},
					{Action: "missing"},
					{Action: "hidden", When: "resource.language == python"},
				},
				protocol.MenuCommandPalette: {
					{Action: "test", When: "broken &&"},
				},
			},
		},
	}
}

func TestEvaluate_VisibleMenus(t *testing.T) {
	e := newEvaluator(t)
	res := e.Evaluate([]Source{goSource()}, Context{"resource.language": "go"})

	items := res.Visible(protocol.MenuEditorTitle)
	require.Len(t, items, 3)
	assert.Equal(t, "fmt", items[0].Action.ID)
	assert.Equal(t, "test", items[1].Action.ID)
	assert.Equal(t, "vet", items[2].Action.ID)
	assert.True(t, items[1].Action.Enabled)
	assert.False(t, items[2].Action.Enabled, "menu shows the action but it is disabled")

	assert.Empty(t, res.Visible(protocol.MenuCommandPalette), "broken expressions hide the item")

	var ids []string
	for _, a := range res.Actions {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"test", "fmt", "vet"}, ids)
}

func TestEvaluate_OtherLanguage(t *testing.T) {
	e := newEvaluator(t)
	res := e.Evaluate([]Source{goSource()}, Context{"resource.language": "python"})

	var ids []string
	for _, it := range res.Visible(protocol.MenuEditorTitle) {
		ids = append(ids, it.Action.ID)
	}
	assert.Equal(t, []string{"hidden", "fmt", "vet"}, ids)
}

func TestEvaluate_DoesNotMutateInput(t *testing.T) {
	e := newEvaluator(t)
	src := goSource()
	before := goSource()
	e.Evaluate([]Source{src}, Context{"resource.language": "go"})
	assert.Equal(t, before, src)
}

func TestEvaluate_Pure(t *testing.T) {
	e := newEvaluator(t)
	rapid.Check(t, func(t *rapid.T) {
		ctx := Context{
			"resource.language": rapid.SampledFrom([]string{"go", "python", ""}).Draw(t, "lang"),
			"undefined":         rapid.Bool().Draw(t, "flag"),
		}
		first := e.Evaluate([]Source{goSource()}, ctx)
		second := e.Evaluate([]Source{goSource()}, ctx)
		assert.Equal(t, first, second)
	})
}

func TestEvaluator_When(t *testing.T) {
	e := newEvaluator(t)
	assert.True(t, e.When("a == b", Context{"a": "b"}))
	assert.False(t, e.When("a ==", Context{"a": "b"}))

	expr, err := e.Compile("a")
	require.NoError(t, err)
	assert.Equal(t, "a", expr.Source())
}
