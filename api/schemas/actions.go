package schemas

import "fmt"

// OpKind identifies the concrete browser operation a resolved action maps to.
type OpKind string

const (
	// OpNoop is the single uniform "nothing should be executed this step"
	// signal. Resolution failures of every kind collapse to it.
	OpNoop     OpKind = "noop"
	OpClick    OpKind = "click"
	OpType     OpKind = "type"
	OpKeyEnter OpKind = "key_enter"
	OpScroll   OpKind = "scroll"
	OpBack     OpKind = "back"
	OpNavigate OpKind = "navigate"
)

// Op is a fully resolved browser operation. Only the fields relevant to its
// kind are populated: X/Y for clicks, Text for typing, DeltaY for scrolls,
// URL for navigation.
type Op struct {
	Kind   OpKind `json:"kind"`
	X      int    `json:"x,omitempty"`
	Y      int    `json:"y,omitempty"`
	Text   string `json:"text,omitempty"`
	DeltaY int    `json:"delta_y,omitempty"`
	URL    string `json:"url,omitempty"`
}

// Noop returns the uniform no-operation value.
func Noop() Op { return Op{Kind: OpNoop} }

// IsNoop reports whether the operation executes nothing.
func (o Op) IsNoop() bool { return o.Kind == OpNoop || o.Kind == "" }

// String renders a short human-readable description for logs and step info.
func (o Op) String() string {
	switch o.Kind {
	case OpClick:
		return fmt.Sprintf("click(%d,%d)", o.X, o.Y)
	case OpType:
		return fmt.Sprintf("type(%q)", truncate(o.Text, 32))
	case OpKeyEnter:
		return "press(Enter)"
	case OpScroll:
		if o.DeltaY < 0 {
			return "scroll(up)"
		}
		return "scroll(down)"
	case OpBack:
		return "back()"
	case OpNavigate:
		return fmt.Sprintf("navigate(%s)", o.URL)
	default:
		return "noop"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// MacroName identifies one of the fixed composite actions exposed at the tail
// of the action space.
type MacroName string

const (
	MacroTypeConfirm MacroName = "type_confirm"
	MacroSubmit      MacroName = "submit"
	MacroScrollDown  MacroName = "scroll_down"
	MacroScrollUp    MacroName = "scroll_up"
	MacroBack        MacroName = "back"
)

// Macros returns the macro set in its fixed, stable action-space order. The
// order is part of the wire contract with trainers and must never change for
// a live environment.
func Macros() []MacroName {
	return []MacroName{
		MacroTypeConfirm,
		MacroSubmit,
		MacroScrollDown,
		MacroScrollUp,
		MacroBack,
	}
}
