package env

import (
	"github.com/xkilldash9x/webgym/api/schemas"
)

// scrollDelta is the fixed vertical distance, in CSS pixels, covered by one
// scroll macro.
const scrollDelta = 600

// ActionKind classifies a discrete action index within a Layout.
type ActionKind string

const (
	KindNoop    ActionKind = "noop"
	KindClick   ActionKind = "click"
	KindMacro   ActionKind = "macro"
	KindInvalid ActionKind = "invalid"
)

// Layout fixes the shape of the discrete action space: index 0 is NOOP,
// indices [1, K] address ranked candidate slots, and the remaining indices
// address macros in their wire order. The shape never changes within an
// environment's lifetime, regardless of how many candidates a page yields.
type Layout struct {
	K      int
	Macros []schemas.MacroName
}

// NewLayout builds the standard layout for k candidate slots.
func NewLayout(k int) Layout {
	if k < 0 {
		k = 0
	}
	return Layout{K: k, Macros: schemas.Macros()}
}

// Size returns the total number of discrete actions: 1 + K + len(Macros).
func (l Layout) Size() int {
	return 1 + l.K + len(l.Macros)
}

// Classify reports which region of the action space an index falls in.
func (l Layout) Classify(action int) ActionKind {
	switch {
	case action == 0:
		return KindNoop
	case action >= 1 && action <= l.K:
		return KindClick
	case action > l.K && action < l.Size():
		return KindMacro
	default:
		return KindInvalid
	}
}

// ClickSlot maps a click action to its zero-based candidate slot.
func (l Layout) ClickSlot(action int) (int, bool) {
	if l.Classify(action) != KindClick {
		return 0, false
	}
	return action - 1, true
}

// MacroAt maps a macro action to its macro name.
func (l Layout) MacroAt(action int) (schemas.MacroName, bool) {
	if l.Classify(action) != KindMacro {
		return "", false
	}
	return l.Macros[action-1-l.K], true
}

// Resolve translates a discrete action into a concrete browser operation
// against the currently ranked candidates. Every unmappable action resolves
// to the no-op operation; Resolve never fails. Callers treat a no-op result
// as an invalid selection rather than an error.
func (l Layout) Resolve(action int, candidates []schemas.Candidate, task schemas.Task) schemas.Op {
	switch l.Classify(action) {
	case KindClick:
		slot, _ := l.ClickSlot(action)
		if slot >= len(candidates) {
			return schemas.Noop()
		}
		x, y, ok := candidates[slot].BBox.Center()
		if !ok {
			return schemas.Noop()
		}
		return schemas.Op{Kind: schemas.OpClick, X: x, Y: y}
	case KindMacro:
		name, _ := l.MacroAt(action)
		return resolveMacro(name, task)
	default:
		return schemas.Noop()
	}
}

func resolveMacro(name schemas.MacroName, task schemas.Task) schemas.Op {
	switch name {
	case schemas.MacroTypeConfirm:
		text := task.InputText()
		if text == "" {
			return schemas.Noop()
		}
		return schemas.Op{Kind: schemas.OpType, Text: text}
	case schemas.MacroSubmit:
		return schemas.Op{Kind: schemas.OpKeyEnter}
	case schemas.MacroScrollDown:
		return schemas.Op{Kind: schemas.OpScroll, DeltaY: scrollDelta}
	case schemas.MacroScrollUp:
		return schemas.Op{Kind: schemas.OpScroll, DeltaY: -scrollDelta}
	case schemas.MacroBack:
		return schemas.Op{Kind: schemas.OpBack}
	default:
		return schemas.Noop()
	}
}
