// Package browser drives one headless Chrome tab over the DevTools protocol
// and exposes the narrow operation set the environment needs: navigate, apply
// a resolved operation, snapshot the page, and query interactive candidates.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webgym/api/schemas"
	"github.com/xkilldash9x/webgym/internal/config"
)

// ErrDriverClosed is returned by every operation issued after Close.
var ErrDriverClosed = errors.New("browser: driver closed")

const (
	launchTimeout = 30 * time.Second
	closeTimeout  = 10 * time.Second
)

// Driver owns a single browser process with a single tab. All operations are
// serialized through one mutex: the tab is a stateful shared resource and
// interleaved CDP commands against it produce garbage.
type Driver struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
	tap    *eventTap

	// allocCtx manages the browser process; tabCtx the one tab within it.
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	// run executes chromedp actions against the tab. Tests substitute it.
	run func(ctx context.Context, actions ...chromedp.Action) error

	mu     sync.Mutex
	closed bool
}

// New launches the browser process, opens the tab, and verifies it responds
// before handing the driver out. The browser lives until Close or until ctx
// is canceled.
func New(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Driver{
		cfg:    cfg,
		logger: logger.Named("browser"),
		tap:    newEventTap(logger),
		run:    chromedp.Run,
	}

	d.allocCtx, d.allocCancel = chromedp.NewExecAllocator(ctx, AllocatorOptions(cfg)...)
	d.tabCtx, d.tabCancel = chromedp.NewContext(d.allocCtx)

	chromedp.ListenTarget(d.tabCtx, d.tap.observe)

	// Run a trivial task to confirm the browser started and is responsive.
	launchCtx, cancel := context.WithTimeout(d.tabCtx, launchTimeout)
	defer cancel()
	if err := d.run(launchCtx, runtime.Enable(), chromedp.Navigate("about:blank")); err != nil {
		d.tabCancel()
		d.allocCancel()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	d.logger.Info("Browser launched.",
		zap.Bool("headless", cfg.Headless),
		zap.Int("window_width", cfg.WindowWidth),
		zap.Int("window_height", cfg.WindowHeight),
	)
	return d, nil
}

// runActions executes the actions against the tab under the driver mutex,
// honoring both the tab lifetime and the caller's deadline.
func (d *Driver) runActions(ctx context.Context, actions ...chromedp.Action) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDriverClosed
	}

	runCtx, cancel := combineContext(d.tabCtx, ctx)
	defer cancel()
	return d.run(runCtx, actions...)
}

// Navigate loads url and waits for the document body under the configured
// navigation budget.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	navCtx := ctx
	if d.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, d.cfg.NavigationTimeout)
		defer cancel()
	}
	if err := d.runActions(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

// Apply executes one resolved operation. A noop returns immediately without
// touching the browser.
func (d *Driver) Apply(ctx context.Context, op schemas.Op) error {
	actions, err := opActions(op)
	if err != nil {
		return err
	}
	if len(actions) == 0 {
		return nil
	}
	if err := d.runActions(ctx, actions...); err != nil {
		return fmt.Errorf("applying %s: %w", op, err)
	}
	return nil
}

// opActions maps an operation onto the chromedp actions that realize it.
// Operations that can change the document wait for the body to be ready
// again before returning.
func opActions(op schemas.Op) ([]chromedp.Action, error) {
	waitBody := chromedp.WaitReady("body", chromedp.ByQuery)

	switch op.Kind {
	case schemas.OpNoop, "":
		return nil, nil
	case schemas.OpClick:
		return []chromedp.Action{
			chromedp.MouseClickXY(float64(op.X), float64(op.Y)),
			waitBody,
		}, nil
	case schemas.OpType:
		text := op.Text
		return []chromedp.Action{
			chromedp.ActionFunc(func(c context.Context) error {
				return typeIntoEditable(c, text)
			}),
		}, nil
	case schemas.OpKeyEnter:
		return []chromedp.Action{
			chromedp.KeyEvent(kb.Enter),
			waitBody,
		}, nil
	case schemas.OpScroll:
		return []chromedp.Action{
			chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", op.DeltaY), nil),
		}, nil
	case schemas.OpBack:
		return []chromedp.Action{
			chromedp.NavigateBack(),
			waitBody,
		}, nil
	case schemas.OpNavigate:
		return []chromedp.Action{
			chromedp.Navigate(op.URL),
			waitBody,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported operation kind %q", op.Kind)
	}
}

// typeFocusScript focuses the first visible editable element unless one
// already holds focus. It returns whether an editable element has focus.
const typeFocusScript = `(() => {
	const editable = (el) => {
		if (!el) return false;
		if (el.isContentEditable) return true;
		const tag = el.tagName ? el.tagName.toLowerCase() : '';
		if (tag === 'textarea') return true;
		if (tag !== 'input') return false;
		const type = (el.getAttribute('type') || 'text').toLowerCase();
		return ['text', 'search', 'email', 'url', 'tel', 'password', 'number'].includes(type);
	};
	if (editable(document.activeElement)) return true;
	for (const el of document.querySelectorAll('input, textarea, [contenteditable=true]')) {
		if (!editable(el)) continue;
		const rect = el.getBoundingClientRect();
		if (rect.width === 0 || rect.height === 0) continue;
		el.focus();
		return editable(document.activeElement);
	}
	return false;
})()`

// typeIntoEditable inserts text into the focused editable element, focusing
// the first visible one when nothing editable holds focus. InsertText mimics
// a paste, which fires the input events form frameworks listen for.
func typeIntoEditable(ctx context.Context, text string) error {
	var focused bool
	if err := chromedp.Evaluate(typeFocusScript, &focused).Do(ctx); err != nil {
		return fmt.Errorf("focusing editable element: %w", err)
	}
	if !focused {
		return errors.New("no editable element to receive text")
	}
	return input.InsertText(text).Do(ctx)
}

// Snapshot captures the current URL and the serialized document.
func (d *Driver) Snapshot(ctx context.Context) (schemas.PageSnapshot, error) {
	var url, html string
	if err := d.runActions(ctx,
		chromedp.Location(&url),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return schemas.PageSnapshot{}, fmt.Errorf("capturing page snapshot: %w", err)
	}
	return schemas.PageSnapshot{URL: url, HTML: html, CapturedAt: time.Now().UTC()}, nil
}

// QueryCandidates evaluates the read-only discovery script and decodes its
// result. The page is never mutated.
func (d *Driver) QueryCandidates(ctx context.Context) ([]schemas.Candidate, error) {
	var raw []byte
	evaluate := chromedp.Evaluate(candidateQueryScript, &raw,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
		})
	if err := d.runActions(ctx, evaluate); err != nil {
		return nil, fmt.Errorf("querying candidates: %w", err)
	}
	return decodeCandidates(raw, d.logger)
}

// SelectorExists probes whether the selector matches anything on the page.
func (d *Driver) SelectorExists(ctx context.Context, selector string) (bool, error) {
	var exists bool
	script := fmt.Sprintf("document.querySelector(%q) !== null", selector)
	if err := d.runActions(ctx, chromedp.Evaluate(script, &exists)); err != nil {
		return false, fmt.Errorf("probing selector %q: %w", selector, err)
	}
	return exists, nil
}

// DrainEvents returns the backend events harvested since the previous drain.
func (d *Driver) DrainEvents() []schemas.BackendEvent {
	return d.tap.Drain()
}

// Close terminates the tab and the browser process. It is idempotent and
// waits a bounded time for the process to exit.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	if d.tabCancel != nil {
		d.tabCancel()
	}
	if d.allocCancel != nil {
		d.allocCancel()
		select {
		case <-d.allocCtx.Done():
		case <-time.After(closeTimeout):
			d.logger.Warn("Timed out waiting for the browser process to exit.")
		}
	}
	d.logger.Info("Browser closed.")
	return nil
}

// combineContext derives a context canceled when either the tab lifetime or
// the caller's deadline ends. chromedp requires its own context chain, so the
// caller's context cannot be passed to Run directly.
func combineContext(parent, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(parent)

	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}
