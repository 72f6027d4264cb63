package schemas

import (
	"math"
	"time"
)

// Role classifies an interactive element by its dominant affordance. It is
// derived from tag/type/role attributes at query time and is intentionally
// coarse; the ranker only distinguishes the classes below.
type Role string

const (
	RoleButton  Role = "button"
	RoleLink    Role = "link"
	RoleSubmit  Role = "submit"
	RoleTextbox Role = "textbox"
	RoleGeneric Role = "generic"
)

// RoleClass maps a role to a small stable integer for feature encoding.
// Unknown roles collapse to 0.
func RoleClass(r Role) int {
	switch r {
	case RoleButton:
		return 1
	case RoleLink:
		return 2
	case RoleSubmit:
		return 3
	case RoleTextbox:
		return 4
	default:
		return 0
	}
}

// BBox is an axis-aligned bounding box in CSS pixels, viewport coordinates.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the integer-rounded center point of the box. The second
// return is false when the box has no positive area and therefore cannot
// yield a click target.
func (b BBox) Center() (int, int, bool) {
	if b.Width <= 0 || b.Height <= 0 {
		return 0, 0, false
	}
	cx := int(math.Round(b.X + b.Width/2))
	cy := int(math.Round(b.Y + b.Height/2))
	return cx, cy, true
}

// Candidate is one interactive element snapshot extracted from the live page
// at a single point in time. Candidates carry no identity across steps: index
// i in a returned top-K list refers to that call's ranking position, never to
// a persistent DOM node.
type Candidate struct {
	Tag       string `json:"tag"`
	Role      Role   `json:"role"`
	Text      string `json:"text"`
	BBox      BBox   `json:"bbox"`
	Clickable bool   `json:"clickable"`
	Focusable bool   `json:"focusable"`
	Editable  bool   `json:"editable"`
	Visible   bool   `json:"visible"`
	Enabled   bool   `json:"enabled"`
}

// Actionable reports whether the candidate is a legal click target this step.
func (c Candidate) Actionable() bool {
	return c.Clickable && c.Visible && c.Enabled
}

// CandidateFeature is the fixed-shape numeric rendering of one top-K slot.
// Empty slots carry zero tokens and zero features.
type CandidateFeature struct {
	Tokens   []int32   `json:"tokens"`
	Features []float64 `json:"features"`
}

// Observation is the fixed-shape structured record handed to the policy. Its
// shape is identical regardless of actual page size: every array is truncated
// or zero-padded to the configured length.
type Observation struct {
	GoalTokens    []int32            `json:"goal_tokens"`
	PageTokens    []int32            `json:"page_tokens"`
	URLToken      int32              `json:"url_token"`
	ActionHistory []int32            `json:"action_history"`
	Candidates    []CandidateFeature `json:"candidates"`
	LastScore     float64            `json:"last_score"`
}

// PartialScore is the continuous progress signal produced once per step by
// the evaluator. RawScore is in [0,1]; Success doubles as the termination
// signal.
type PartialScore struct {
	RawScore    float64 `json:"raw_score"`
	TestsPassed int     `json:"tests_passed"`
	TotalTests  int     `json:"total_tests"`
	Success     bool    `json:"success"`
}

// CheckKind selects the predicate an evaluator applies for one task check.
type CheckKind string

const (
	CheckURLContains    CheckKind = "url_contains"
	CheckTextPresent    CheckKind = "text_present"
	CheckSelectorExists CheckKind = "selector_exists"
	CheckEventEmitted   CheckKind = "event_emitted"
)

// Check is one verifiable success condition of a task.
type Check struct {
	Kind  CheckKind `json:"kind"`
	Value string    `json:"value"`
}

// AuxInputText is the auxiliary-data key the type_confirm macro reads its
// literal input text from before falling back to the task goal.
const AuxInputText = "input_text"

// Task is one natural-language objective against a project, plus the machine
// checkable conditions that define progress and success.
type Task struct {
	ID       string            `json:"id"`
	Project  string            `json:"project"`
	Goal     string            `json:"goal"`
	EntryURL string            `json:"entry_url"`
	Aux      map[string]string `json:"aux,omitempty"`
	Checks   []Check           `json:"checks,omitempty"`
}

// InputText resolves the literal text for a typing action: the input_text
// auxiliary entry when present, the goal text otherwise.
func (t Task) InputText() string {
	if v, ok := t.Aux[AuxInputText]; ok && v != "" {
		return v
	}
	return t.Goal
}

// PageSnapshot is a point-in-time capture of the rendered page.
type PageSnapshot struct {
	URL        string    `json:"url"`
	HTML       string    `json:"html"`
	CapturedAt time.Time `json:"captured_at"`
}

// BackendEvent is one console call, page binding invocation, or runtime
// exception harvested from the browser while an operation executed.
type BackendEvent struct {
	Type    string    `json:"type"`
	Name    string    `json:"name"`
	Payload string    `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// ExecutionRecord is one entry of the evaluator's append-only history: the
// operation that ran, the snapshot taken after it, and whatever backend
// events the page emitted meanwhile.
type ExecutionRecord struct {
	Seq      int            `json:"seq"`
	Op       Op             `json:"op"`
	Snapshot PageSnapshot   `json:"snapshot"`
	Events   []BackendEvent `json:"events,omitempty"`
	Error    string         `json:"error,omitempty"`
	Duration time.Duration  `json:"duration"`
	At       time.Time      `json:"at"`
}

// StepRecord is the persisted trace of one environment step.
type StepRecord struct {
	Index      int     `json:"index"`
	Action     int     `json:"action"`
	ActionDesc string  `json:"action_desc"`
	Invalid    bool    `json:"invalid"`
	RawScore   float64 `json:"raw_score"`
	Reward     float64 `json:"reward"`
	URL        string  `json:"url"`
}

// EpisodeRecord is the persisted trace of one completed episode.
type EpisodeRecord struct {
	ID         string       `json:"id"`
	TaskID     string       `json:"task_id"`
	Project    string       `json:"project"`
	Goal       string       `json:"goal"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Steps      []StepRecord `json:"steps"`
	FinalScore float64      `json:"final_score"`
	Success    bool         `json:"success"`
	Truncated  bool         `json:"truncated"`
}
