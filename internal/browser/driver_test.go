package browser

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/webgym/api/schemas"
	"github.com/xkilldash9x/webgym/internal/config"
)

// fakeRun records every invocation of the driver's run function so tests can
// exercise the dispatch logic without a browser process.
type fakeRun struct {
	mu    sync.Mutex
	calls [][]chromedp.Action
	err   error
	block bool
}

func (f *fakeRun) run(ctx context.Context, actions ...chromedp.Action) error {
	f.mu.Lock()
	f.calls = append(f.calls, actions)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func (f *fakeRun) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRun) lastActionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return 0
	}
	return len(f.calls[len(f.calls)-1])
}

func newTestDriver(t *testing.T, fake *fakeRun) *Driver {
	t.Helper()

	tabCtx, tabCancel := context.WithCancel(context.Background())
	d := &Driver{
		cfg:       config.BrowserConfig{NavigationTimeout: time.Second},
		logger:    zaptest.NewLogger(t),
		tap:       newEventTap(zaptest.NewLogger(t)),
		tabCtx:    tabCtx,
		tabCancel: tabCancel,
		run:       fake.run,
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDriverRejectsOperationsAfterClose(t *testing.T) {
	t.Parallel()

	fake := &fakeRun{}
	d := newTestDriver(t, fake)
	require.NoError(t, d.Close())

	assert.ErrorIs(t, d.Navigate(context.Background(), "http://shop.local/"), ErrDriverClosed)
	assert.ErrorIs(t, d.Apply(context.Background(), schemas.Op{Kind: schemas.OpClick, X: 1, Y: 2}), ErrDriverClosed)

	_, err := d.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrDriverClosed)

	_, err = d.QueryCandidates(context.Background())
	assert.ErrorIs(t, err, ErrDriverClosed)

	_, err = d.SelectorExists(context.Background(), "#done")
	assert.ErrorIs(t, err, ErrDriverClosed)

	// A noop never reaches the browser, closed or not.
	assert.NoError(t, d.Apply(context.Background(), schemas.Noop()))

	assert.Zero(t, fake.callCount())
}

func TestDriverCloseIdempotent(t *testing.T) {
	t.Parallel()

	d := newTestDriver(t, &fakeRun{})
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
}

func TestApplyDispatch(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		op          schemas.Op
		wantCalls   int
		wantActions int
	}{
		{"click", schemas.Op{Kind: schemas.OpClick, X: 40, Y: 80}, 1, 2},
		{"type", schemas.Op{Kind: schemas.OpType, Text: "red shoes"}, 1, 1},
		{"key_enter", schemas.Op{Kind: schemas.OpKeyEnter}, 1, 2},
		{"scroll", schemas.Op{Kind: schemas.OpScroll, DeltaY: 600}, 1, 1},
		{"back", schemas.Op{Kind: schemas.OpBack}, 1, 2},
		{"navigate", schemas.Op{Kind: schemas.OpNavigate, URL: "http://shop.local/cart"}, 1, 2},
		{"noop", schemas.Noop(), 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fake := &fakeRun{}
			d := newTestDriver(t, fake)

			require.NoError(t, d.Apply(context.Background(), tc.op))
			assert.Equal(t, tc.wantCalls, fake.callCount())
			assert.Equal(t, tc.wantActions, fake.lastActionCount())
		})
	}
}

func TestApplyUnknownKind(t *testing.T) {
	t.Parallel()

	fake := &fakeRun{}
	d := newTestDriver(t, fake)

	err := d.Apply(context.Background(), schemas.Op{Kind: "hover"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported operation kind")
	assert.Zero(t, fake.callCount())
}

func TestApplyPropagatesRunError(t *testing.T) {
	t.Parallel()

	boom := errors.New("target crashed")
	d := newTestDriver(t, &fakeRun{err: boom})

	err := d.Apply(context.Background(), schemas.Op{Kind: schemas.OpClick, X: 1, Y: 1})
	assert.ErrorIs(t, err, boom)
}

func TestNavigateAppliesBudget(t *testing.T) {
	t.Parallel()

	d := newTestDriver(t, &fakeRun{block: true})
	d.cfg.NavigationTimeout = 40 * time.Millisecond

	start := time.Now()
	err := d.Navigate(context.Background(), "http://shop.local/")
	require.Error(t, err)
	// The budget cancels the combined run context, so the surfaced error is
	// the cancellation, not the inner deadline.
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSnapshotTimestamp(t *testing.T) {
	t.Parallel()

	d := newTestDriver(t, &fakeRun{})

	snap, err := d.Snapshot(context.Background())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), snap.CapturedAt, 5*time.Second)
}

func TestQueryCandidatesPropagatesError(t *testing.T) {
	t.Parallel()

	boom := errors.New("evaluate failed")
	d := newTestDriver(t, &fakeRun{err: boom})

	_, err := d.QueryCandidates(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestCombineContextSecondaryCancel(t *testing.T) {
	t.Parallel()

	secondary, cancelSecondary := context.WithCancel(context.Background())
	combined, cancel := combineContext(context.Background(), secondary)
	defer cancel()

	cancelSecondary()

	select {
	case <-combined.Done():
	case <-time.After(time.Second):
		t.Fatal("combined context not canceled by secondary")
	}
}

func TestCombineContextParentCancel(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	combined, cancel := combineContext(parent, context.Background())
	defer cancel()

	cancelParent()

	select {
	case <-combined.Done():
	case <-time.After(time.Second):
		t.Fatal("combined context not canceled by parent")
	}
}
