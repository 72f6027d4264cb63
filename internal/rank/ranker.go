// Package rank turns the unbounded set of interactive elements on a live
// page into the bounded, ordered top-K view the fixed action space is built
// over.
package rank

import (
	"context"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webgym/api/schemas"
	"github.com/xkilldash9x/webgym/internal/encode"
)

// Affordance weights and role bonuses of the scoring function. Fixed: they
// are part of the ranking contract, not tuning knobs.
const (
	weightClickable = 1.0
	weightFocusable = 0.3
	weightEditable  = 0.2

	bonusButton  = 1.0
	bonusLink    = 0.9
	bonusSubmit  = 0.95
	bonusTextbox = 0.8

	centralityWeight = 0.1
)

// PageQuerier issues one read-only query against the live page and returns
// the validated candidate list. A fresh query is required per call; results
// are never cached.
type PageQuerier interface {
	QueryCandidates(ctx context.Context) ([]schemas.Candidate, error)
}

// Result is the bounded view of one ranking call. Candidates holds at most K
// entries in rank order; ClickMask has exactly the same length; Macros always
// carries every macro name.
type Result struct {
	Candidates []schemas.Candidate
	ClickMask  []bool
	Macros     map[schemas.MacroName]bool
}

// emptyResult is what every failure path collapses to: no candidates, no
// legal clicks, no available macros.
func emptyResult() Result {
	return Result{
		Candidates: []schemas.Candidate{},
		ClickMask:  []bool{},
		Macros:     allFalseMacros(),
	}
}

func allFalseMacros() map[schemas.MacroName]bool {
	m := make(map[schemas.MacroName]bool, len(schemas.Macros()))
	for _, name := range schemas.Macros() {
		m[name] = false
	}
	return m
}

// Ranker scores live-page candidates against the task prompt.
type Ranker struct {
	querier   PageQuerier
	viewportW float64
	viewportH float64
	logger    *zap.Logger
}

// New returns a Ranker over the given querier. Viewport dimensions feed the
// centrality bonus; a nil logger degrades to a nop.
func New(querier PageQuerier, viewportW, viewportH int, logger *zap.Logger) *Ranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ranker{
		querier:   querier,
		viewportW: float64(viewportW),
		viewportH: float64(viewportH),
		logger:    logger.Named("ranker"),
	}
}

// ListCandidates runs one fresh read-only page query.
func (r *Ranker) ListCandidates(ctx context.Context) ([]schemas.Candidate, error) {
	return r.querier.QueryCandidates(ctx)
}

// TopK queries the page, scores every candidate against the prompt, and
// returns the top K with their click mask and the macro availability map.
//
// This method never fails: any query error or timeout is logged and
// converted into the empty result, which callers must treat as "no legal
// interactive action this step."
func (r *Ranker) TopK(ctx context.Context, promptText string, k int) Result {
	if k <= 0 {
		return emptyResult()
	}

	all, err := r.ListCandidates(ctx)
	if err != nil {
		r.logger.Debug("Candidate query failed; substituting empty ranking.", zap.Error(err))
		return emptyResult()
	}

	return r.rank(all, promptText, k)
}

// rank is the pure core of TopK, separated from the page query.
func (r *Ranker) rank(all []schemas.Candidate, promptText string, k int) Result {
	promptSet := encode.TokenSet(promptText)

	type scored struct {
		cand  schemas.Candidate
		score float64
	}
	kept := make([]scored, 0, len(all))
	for _, c := range all {
		s := r.score(c, promptSet)
		if s == 0 {
			continue
		}
		kept = append(kept, scored{cand: c, score: s})
	}

	// Stable: equal scores keep original query order, so re-ranking an
	// unchanged page reproduces the exact same ordering.
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].score > kept[j].score
	})

	if len(kept) > k {
		kept = kept[:k]
	}

	res := Result{
		Candidates: make([]schemas.Candidate, len(kept)),
		ClickMask:  make([]bool, len(kept)),
		Macros:     macroAvailability(all),
	}
	for i, s := range kept {
		res.Candidates[i] = s.cand
		res.ClickMask[i] = s.cand.Actionable()
	}
	return res
}

// score implements the fixed scoring function. Candidates that are not
// visible or not enabled score zero and are dropped by the caller.
func (r *Ranker) score(c schemas.Candidate, promptSet map[string]struct{}) float64 {
	if !c.Visible || !c.Enabled {
		return 0
	}
	var s float64
	if c.Clickable {
		s += weightClickable
	}
	if c.Focusable {
		s += weightFocusable
	}
	if c.Editable {
		s += weightEditable
	}
	s += roleBonus(c.Role)
	s += lexicalOverlap(c.Text, promptSet)
	s += r.centrality(c.BBox)
	return s
}

func roleBonus(role schemas.Role) float64 {
	switch role {
	case schemas.RoleButton:
		return bonusButton
	case schemas.RoleLink:
		return bonusLink
	case schemas.RoleSubmit:
		return bonusSubmit
	case schemas.RoleTextbox:
		return bonusTextbox
	default:
		return 0
	}
}

// lexicalOverlap counts distinct shared tokens between candidate text and
// prompt, normalized by the geometric mean of the two distinct-token counts.
func lexicalOverlap(candText string, promptSet map[string]struct{}) float64 {
	if len(promptSet) == 0 {
		return 0
	}
	candSet := encode.TokenSet(candText)
	if len(candSet) == 0 {
		return 0
	}
	overlap := 0
	for tok := range candSet {
		if _, ok := promptSet[tok]; ok {
			overlap++
		}
	}
	if overlap == 0 {
		return 0
	}
	return float64(overlap) / math.Sqrt(float64(len(promptSet))*float64(len(candSet)))
}

// centrality rewards proximity of the bounding-box center to the viewport
// center, scaled so an element exactly centered earns the full weight and one
// at the far corner earns nothing.
func (r *Ranker) centrality(b schemas.BBox) float64 {
	cx, cy, ok := b.Center()
	if !ok || r.viewportW <= 0 || r.viewportH <= 0 {
		return 0
	}
	dx := float64(cx) - r.viewportW/2
	dy := float64(cy) - r.viewportH/2
	dist := math.Sqrt(dx*dx + dy*dy)
	halfDiag := math.Sqrt(r.viewportW*r.viewportW+r.viewportH*r.viewportH) / 2
	return centralityWeight * (1 - math.Min(1, dist/halfDiag))
}

// macroAvailability derives the macro map from existence predicates over the
// full pre-truncation candidate set. An empty set (page query returned
// nothing) leaves every macro unavailable.
func macroAvailability(all []schemas.Candidate) map[schemas.MacroName]bool {
	avail := allFalseMacros()
	if len(all) == 0 {
		return avail
	}
	avail[schemas.MacroScrollDown] = true
	avail[schemas.MacroScrollUp] = true
	avail[schemas.MacroBack] = true
	for _, c := range all {
		if !c.Visible || !c.Enabled {
			continue
		}
		if c.Editable {
			avail[schemas.MacroTypeConfirm] = true
			avail[schemas.MacroSubmit] = true
		}
		if c.Role == schemas.RoleSubmit || c.Role == schemas.RoleButton {
			avail[schemas.MacroSubmit] = true
		}
	}
	return avail
}
