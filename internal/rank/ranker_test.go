package rank_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webgym/api/schemas"
	"github.com/xkilldash9x/webgym/internal/rank"
)

const (
	viewportW = 1280
	viewportH = 720
)

// fakeQuerier serves a canned candidate list, or a canned error.
type fakeQuerier struct {
	cands []schemas.Candidate
	err   error
	calls int
}

func (f *fakeQuerier) QueryCandidates(ctx context.Context) ([]schemas.Candidate, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.cands, nil
}

func visibleLink(text string) schemas.Candidate {
	return schemas.Candidate{Tag: "a", Role: schemas.RoleLink, Text: text, Visible: true, Enabled: true}
}

func TestTopKRankingStability(t *testing.T) {
	t.Parallel()

	// Scores land at exactly [0.9, 0.9, 0.5, 0.1]: two links (role bonus
	// only), one focusable+editable element, one element whose only merit is
	// sitting dead center of the viewport.
	centered := schemas.Candidate{
		Tag: "div", Role: schemas.RoleGeneric, Visible: true, Enabled: true,
		BBox: schemas.BBox{X: 600, Y: 340, Width: 80, Height: 40},
	}
	q := &fakeQuerier{cands: []schemas.Candidate{
		visibleLink("first"),
		visibleLink("second"),
		{Tag: "span", Role: schemas.RoleGeneric, Focusable: true, Editable: true, Visible: true, Enabled: true, Text: "third"},
		centered,
	}}
	r := rank.New(q, viewportW, viewportH, nil)

	got1 := r.TopK(context.Background(), "", 3)
	got2 := r.TopK(context.Background(), "", 3)

	require.Len(t, got1.Candidates, 3)
	// Ties broken by original query order: "first" before "second".
	assert.Equal(t, "first", got1.Candidates[0].Text)
	assert.Equal(t, "second", got1.Candidates[1].Text)
	assert.Equal(t, "third", got1.Candidates[2].Text)

	if diff := cmp.Diff(got1.Candidates, got2.Candidates); diff != "" {
		t.Errorf("re-ranking an unchanged page must reproduce the ordering (-first +second):\n%s", diff)
	}
	assert.Equal(t, 2, q.calls, "every TopK call must issue a fresh page query")
}

func TestTopKDropsZeroScores(t *testing.T) {
	t.Parallel()

	q := &fakeQuerier{cands: []schemas.Candidate{
		{Tag: "button", Role: schemas.RoleButton, Clickable: true, Visible: false, Enabled: true},
		{Tag: "button", Role: schemas.RoleButton, Clickable: true, Visible: true, Enabled: false},
		visibleLink("kept"),
	}}
	r := rank.New(q, viewportW, viewportH, nil)

	got := r.TopK(context.Background(), "", 10)
	require.Len(t, got.Candidates, 1)
	assert.Equal(t, "kept", got.Candidates[0].Text)
}

func TestTopKClickMask(t *testing.T) {
	t.Parallel()

	q := &fakeQuerier{cands: []schemas.Candidate{
		{Tag: "button", Role: schemas.RoleButton, Clickable: true, Visible: true, Enabled: true, Text: "go"},
		{Tag: "input", Role: schemas.RoleTextbox, Focusable: true, Editable: true, Visible: true, Enabled: true, Text: ""},
	}}
	r := rank.New(q, viewportW, viewportH, nil)

	got := r.TopK(context.Background(), "", 5)
	require.Len(t, got.Candidates, 2)
	require.Len(t, got.ClickMask, 2)

	assert.Equal(t, "go", got.Candidates[0].Text)
	assert.True(t, got.ClickMask[0])
	// The textbox ranks but is not a click target.
	assert.False(t, got.ClickMask[1])
}

func TestTopKQueryFailureYieldsEmptyResult(t *testing.T) {
	t.Parallel()

	q := &fakeQuerier{err: errors.New("target closed")}
	r := rank.New(q, viewportW, viewportH, nil)

	got := r.TopK(context.Background(), "anything", 12)

	assert.Empty(t, got.Candidates)
	assert.Empty(t, got.ClickMask)
	require.Len(t, got.Macros, 5)
	for name, ok := range got.Macros {
		assert.False(t, ok, "macro %s must be unavailable after a failed query", name)
	}
}

func TestTopKNonPositiveK(t *testing.T) {
	t.Parallel()

	q := &fakeQuerier{cands: []schemas.Candidate{visibleLink("x")}}
	r := rank.New(q, viewportW, viewportH, nil)

	got := r.TopK(context.Background(), "", 0)
	assert.Empty(t, got.Candidates)
	assert.Equal(t, 0, q.calls, "no page query for a degenerate K")
}

func TestTopKTruncatesToK(t *testing.T) {
	t.Parallel()

	cands := make([]schemas.Candidate, 0, 8)
	for i := 0; i < 8; i++ {
		cands = append(cands, visibleLink("l"))
	}
	q := &fakeQuerier{cands: cands}
	r := rank.New(q, viewportW, viewportH, nil)

	got := r.TopK(context.Background(), "", 3)
	assert.Len(t, got.Candidates, 3)
	assert.Len(t, got.ClickMask, 3)
}

func TestLexicalOverlapRaisesRank(t *testing.T) {
	t.Parallel()

	q := &fakeQuerier{cands: []schemas.Candidate{
		{Tag: "a", Role: schemas.RoleGeneric, Clickable: true, Visible: true, Enabled: true, Text: "privacy policy"},
		{Tag: "a", Role: schemas.RoleGeneric, Clickable: true, Visible: true, Enabled: true, Text: "red shoes"},
	}}
	r := rank.New(q, viewportW, viewportH, nil)

	got := r.TopK(context.Background(), "buy red shoes", 2)
	require.Len(t, got.Candidates, 2)
	assert.Equal(t, "red shoes", got.Candidates[0].Text, "prompt-overlapping candidate must outrank")
}

func TestCentralityRaisesRank(t *testing.T) {
	t.Parallel()

	q := &fakeQuerier{cands: []schemas.Candidate{
		{Tag: "a", Clickable: true, Visible: true, Enabled: true, Text: "corner",
			BBox: schemas.BBox{X: 0, Y: 0, Width: 10, Height: 10}},
		{Tag: "a", Clickable: true, Visible: true, Enabled: true, Text: "center",
			BBox: schemas.BBox{X: 600, Y: 340, Width: 80, Height: 40}},
	}}
	r := rank.New(q, viewportW, viewportH, nil)

	got := r.TopK(context.Background(), "", 2)
	require.Len(t, got.Candidates, 2)
	assert.Equal(t, "center", got.Candidates[0].Text)
}

func TestMacroAvailability(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		cands    []schemas.Candidate
		expected map[schemas.MacroName]bool
	}{
		{
			name:  "empty page leaves everything unavailable",
			cands: nil,
			expected: map[schemas.MacroName]bool{
				schemas.MacroTypeConfirm: false,
				schemas.MacroSubmit:      false,
				schemas.MacroScrollDown:  false,
				schemas.MacroScrollUp:    false,
				schemas.MacroBack:        false,
			},
		},
		{
			name:  "live page enables navigation macros",
			cands: []schemas.Candidate{{Tag: "div", Visible: true, Enabled: true}},
			expected: map[schemas.MacroName]bool{
				schemas.MacroTypeConfirm: false,
				schemas.MacroSubmit:      false,
				schemas.MacroScrollDown:  true,
				schemas.MacroScrollUp:    true,
				schemas.MacroBack:        true,
			},
		},
		{
			name: "editable field enables typing and submit",
			cands: []schemas.Candidate{
				{Tag: "input", Role: schemas.RoleTextbox, Editable: true, Focusable: true, Visible: true, Enabled: true},
			},
			expected: map[schemas.MacroName]bool{
				schemas.MacroTypeConfirm: true,
				schemas.MacroSubmit:      true,
				schemas.MacroScrollDown:  true,
				schemas.MacroScrollUp:    true,
				schemas.MacroBack:        true,
			},
		},
		{
			name: "submit control without editable enables submit only",
			cands: []schemas.Candidate{
				{Tag: "input", Role: schemas.RoleSubmit, Clickable: true, Visible: true, Enabled: true},
			},
			expected: map[schemas.MacroName]bool{
				schemas.MacroTypeConfirm: false,
				schemas.MacroSubmit:      true,
				schemas.MacroScrollDown:  true,
				schemas.MacroScrollUp:    true,
				schemas.MacroBack:        true,
			},
		},
		{
			name: "hidden editable does not count",
			cands: []schemas.Candidate{
				{Tag: "input", Role: schemas.RoleTextbox, Editable: true, Visible: false, Enabled: true},
			},
			expected: map[schemas.MacroName]bool{
				schemas.MacroTypeConfirm: false,
				schemas.MacroSubmit:      false,
				schemas.MacroScrollDown:  true,
				schemas.MacroScrollUp:    true,
				schemas.MacroBack:        true,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			q := &fakeQuerier{cands: tc.cands}
			r := rank.New(q, viewportW, viewportH, nil)
			got := r.TopK(context.Background(), "", 5)
			assert.Equal(t, tc.expected, got.Macros)
		})
	}
}
