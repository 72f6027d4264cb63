package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webgym/api/schemas"
)

func clickableAt(x, y, w, h float64) schemas.Candidate {
	return schemas.Candidate{
		Tag:       "button",
		Role:      schemas.RoleButton,
		Text:      "go",
		BBox:      schemas.BBox{X: x, Y: y, Width: w, Height: h},
		Clickable: true,
		Visible:   true,
		Enabled:   true,
	}
}

func TestLayoutShape(t *testing.T) {
	t.Parallel()

	layout := NewLayout(12)
	assert.Equal(t, 18, layout.Size())
	assert.Equal(t, KindNoop, layout.Classify(0))
	assert.Equal(t, KindClick, layout.Classify(1))
	assert.Equal(t, KindClick, layout.Classify(12))
	assert.Equal(t, KindMacro, layout.Classify(13))
	assert.Equal(t, KindMacro, layout.Classify(17))
	assert.Equal(t, KindInvalid, layout.Classify(18))
	assert.Equal(t, KindInvalid, layout.Classify(-1))
}

func TestResolveNoop(t *testing.T) {
	t.Parallel()

	layout := NewLayout(12)
	task := schemas.Task{Goal: "buy shoes"}
	candidates := []schemas.Candidate{clickableAt(10, 10, 100, 40)}

	// Action 0 resolves to no operation regardless of available candidates.
	op := layout.Resolve(0, candidates, task)
	assert.True(t, op.IsNoop())
}

func TestResolveClick(t *testing.T) {
	t.Parallel()

	layout := NewLayout(12)
	task := schemas.Task{Goal: "buy shoes"}

	t.Run("click resolves to candidate center", func(t *testing.T) {
		t.Parallel()
		candidates := []schemas.Candidate{clickableAt(10, 20, 100, 40)}
		op := layout.Resolve(1, candidates, task)
		require.Equal(t, schemas.OpClick, op.Kind)
		assert.Equal(t, 60, op.X)
		assert.Equal(t, 40, op.Y)
	})

	t.Run("slot beyond candidate list is a no-op", func(t *testing.T) {
		t.Parallel()
		op := layout.Resolve(5, nil, task)
		assert.True(t, op.IsNoop())
	})

	t.Run("candidate without a usable box is a no-op", func(t *testing.T) {
		t.Parallel()
		flat := clickableAt(10, 20, 0, 0)
		op := layout.Resolve(1, []schemas.Candidate{flat}, task)
		assert.True(t, op.IsNoop())
	})
}

func TestResolveMacros(t *testing.T) {
	t.Parallel()

	layout := NewLayout(3)
	base := 1 + layout.K

	macroAction := func(name schemas.MacroName) int {
		for i, m := range layout.Macros {
			if m == name {
				return base + i
			}
		}
		t.Fatalf("unknown macro %q", name)
		return -1
	}

	t.Run("type_confirm uses auxiliary text", func(t *testing.T) {
		task := schemas.Task{
			Goal: "search for shoes",
			Aux:  map[string]string{schemas.AuxInputText: "red shoes"},
		}
		op := layout.Resolve(macroAction(schemas.MacroTypeConfirm), nil, task)
		require.Equal(t, schemas.OpType, op.Kind)
		assert.Equal(t, "red shoes", op.Text)
	})

	t.Run("type_confirm falls back to the goal", func(t *testing.T) {
		task := schemas.Task{Goal: "search for shoes"}
		op := layout.Resolve(macroAction(schemas.MacroTypeConfirm), nil, task)
		require.Equal(t, schemas.OpType, op.Kind)
		assert.Equal(t, "search for shoes", op.Text)
	})

	t.Run("type_confirm with no text at all is a no-op", func(t *testing.T) {
		op := layout.Resolve(macroAction(schemas.MacroTypeConfirm), nil, schemas.Task{})
		assert.True(t, op.IsNoop())
	})

	t.Run("submit presses enter", func(t *testing.T) {
		op := layout.Resolve(macroAction(schemas.MacroSubmit), nil, schemas.Task{Goal: "g"})
		assert.Equal(t, schemas.OpKeyEnter, op.Kind)
	})

	t.Run("scrolls use the fixed delta", func(t *testing.T) {
		down := layout.Resolve(macroAction(schemas.MacroScrollDown), nil, schemas.Task{Goal: "g"})
		require.Equal(t, schemas.OpScroll, down.Kind)
		assert.Equal(t, scrollDelta, down.DeltaY)

		up := layout.Resolve(macroAction(schemas.MacroScrollUp), nil, schemas.Task{Goal: "g"})
		require.Equal(t, schemas.OpScroll, up.Kind)
		assert.Equal(t, -scrollDelta, up.DeltaY)
	})

	t.Run("back navigates history", func(t *testing.T) {
		op := layout.Resolve(macroAction(schemas.MacroBack), nil, schemas.Task{Goal: "g"})
		assert.Equal(t, schemas.OpBack, op.Kind)
	})
}

func TestResolveOutOfRange(t *testing.T) {
	t.Parallel()

	layout := NewLayout(3)
	task := schemas.Task{Goal: "g"}
	candidates := []schemas.Candidate{clickableAt(0, 0, 10, 10)}

	for _, action := range []int{-3, layout.Size(), layout.Size() + 7} {
		assert.True(t, layout.Resolve(action, candidates, task).IsNoop(), "action %d", action)
	}
}
