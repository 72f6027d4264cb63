package browser

import (
	"fmt"
	"math"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webgym/api/schemas"
)

// candidateSelectors matches the element classes a policy can plausibly act
// on. Everything else on the page is scenery as far as the action space is
// concerned.
const candidateSelectors = "a[href], button, [onclick], [role=button], [role=link], input, textarea, select, summary, [tabindex='0'], [contenteditable=true]"

// maxCandidates bounds a single query so pathological pages cannot flood the
// ranker.
const maxCandidates = 256

// maxCandidateText mirrors the truncation applied inside the page script.
const maxCandidateText = 64

// candidateQueryScript performs discovery, visibility checks, and data
// extraction in a single read-only JS evaluation. It never mutates the page;
// hidden and disabled elements are reported with their flags rather than
// filtered, so the ranker can score them out.
var candidateQueryScript = fmt.Sprintf(`(() => {
	const maxText = %d;
	const maxCandidates = %d;
	const textInput = new Set(['text', 'search', 'email', 'url', 'tel', 'password', 'number']);
	const clickInput = new Set(['submit', 'button', 'reset', 'checkbox', 'radio']);

	// Approximates the visibility checks an interactive driver would apply.
	const isVisible = (el, rect) => {
		const style = window.getComputedStyle(el);
		if (style.visibility === 'hidden' || style.display === 'none' || style.opacity === '0') return false;
		return rect.width > 0 && rect.height > 0;
	};

	const out = [];
	for (const el of document.querySelectorAll(%q)) {
		if (out.length >= maxCandidates) break;

		const tag = el.tagName.toLowerCase();
		const aria = (el.getAttribute('role') || '').toLowerCase();
		const type = (el.getAttribute('type') || (tag === 'input' ? 'text' : '')).toLowerCase();
		const rect = el.getBoundingClientRect();

		const editable = el.isContentEditable || tag === 'textarea' || (tag === 'input' && textInput.has(type));

		let role = 'generic';
		if (editable || aria === 'textbox') {
			role = 'textbox';
		} else if (type === 'submit' && (tag === 'input' || tag === 'button')) {
			role = 'submit';
		} else if (tag === 'button' || aria === 'button' || (tag === 'input' && clickInput.has(type))) {
			role = 'button';
		} else if ((tag === 'a' && el.hasAttribute('href')) || aria === 'link') {
			role = 'link';
		}

		let text = (el.innerText || el.value || el.getAttribute('aria-label') || el.getAttribute('placeholder') || '').trim();
		if (text.length > maxText) text = text.substring(0, maxText);

		out.push({
			tag: tag,
			role: role,
			text: text,
			bbox: {x: rect.x, y: rect.y, width: rect.width, height: rect.height},
			clickable: !editable && (tag === 'button' || tag === 'select' || tag === 'summary' ||
				aria === 'button' || aria === 'link' || el.hasAttribute('onclick') ||
				(tag === 'a' && el.hasAttribute('href')) || (tag === 'input' && clickInput.has(type))),
			focusable: el.tabIndex >= 0 && !el.disabled,
			editable: editable,
			visible: isVisible(el, rect),
			enabled: !(el.disabled || el.getAttribute('aria-disabled') === 'true'),
		});
	}
	return out;
})()`, maxCandidateText, maxCandidates, candidateSelectors)

// decodeCandidates converts the script's raw JSON into validated candidates.
// Individually malformed entries are dropped rather than failing the whole
// query.
func decodeCandidates(raw []byte, logger *zap.Logger) ([]schemas.Candidate, error) {
	var decoded []schemas.Candidate
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decoding candidate query result: %w", err)
	}

	out := make([]schemas.Candidate, 0, len(decoded))
	dropped := 0
	for _, c := range decoded {
		if c.Tag == "" {
			dropped++
			continue
		}
		c.Role = normalizeRole(c.Role)
		if !finiteBox(c.BBox) {
			c.BBox = schemas.BBox{}
		}
		if runes := []rune(c.Text); len(runes) > maxCandidateText {
			c.Text = string(runes[:maxCandidateText])
		}
		out = append(out, c)
	}
	if dropped > 0 && logger != nil {
		logger.Debug("Dropped malformed candidate entries.", zap.Int("dropped", dropped))
	}
	return out, nil
}

func normalizeRole(r schemas.Role) schemas.Role {
	switch r {
	case schemas.RoleButton, schemas.RoleLink, schemas.RoleSubmit, schemas.RoleTextbox, schemas.RoleGeneric:
		return r
	default:
		return schemas.RoleGeneric
	}
}

func finiteBox(b schemas.BBox) bool {
	for _, v := range [4]float64{b.X, b.Y, b.Width, b.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.Width >= 0 && b.Height >= 0
}
