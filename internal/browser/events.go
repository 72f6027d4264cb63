package browser

import (
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webgym/api/schemas"
)

// maxBufferedEvents bounds the tap between drains. Beyond it the oldest
// events are dropped.
const maxBufferedEvents = 512

// Backend event types.
const (
	EventConsole   = "console"
	EventException = "exception"
	EventBinding   = "binding"
)

// eventTap buffers console calls, runtime exceptions, and page binding
// invocations emitted by the tab, so evaluator checks can match against them.
// The driver feeds it from the tab's event stream via observe.
type eventTap struct {
	logger *zap.Logger

	mu      sync.Mutex
	events  []schemas.BackendEvent
	dropped int
}

func newEventTap(logger *zap.Logger) *eventTap {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &eventTap{logger: logger.Named("events")}
}

// observe dispatches one raw CDP event into the buffer. Event types the tap
// does not track are ignored.
func (t *eventTap) observe(ev interface{}) {
	switch e := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		t.append(schemas.BackendEvent{
			Type:    EventConsole,
			Name:    EventConsole + "." + string(e.Type),
			Payload: consolePayload(e.Args),
			At:      time.Now().UTC(),
		})
	case *runtime.EventExceptionThrown:
		t.append(schemas.BackendEvent{
			Type:    EventException,
			Name:    EventException,
			Payload: exceptionPayload(e.ExceptionDetails),
			At:      time.Now().UTC(),
		})
	case *runtime.EventBindingCalled:
		t.append(schemas.BackendEvent{
			Type:    EventBinding,
			Name:    e.Name,
			Payload: e.Payload,
			At:      time.Now().UTC(),
		})
	}
}

func (t *eventTap) append(ev schemas.BackendEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.events) >= maxBufferedEvents {
		t.events = t.events[1:]
		t.dropped++
	}
	t.events = append(t.events, ev)
}

// Drain returns all buffered events in arrival order and clears the buffer.
func (t *eventTap) Drain() []schemas.BackendEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.events
	t.events = nil
	if t.dropped > 0 {
		t.logger.Debug("Event buffer overflowed between drains.", zap.Int("dropped", t.dropped))
		t.dropped = 0
	}
	return out
}

func consolePayload(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if s := remoteObjectText(arg); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func remoteObjectText(o *runtime.RemoteObject) string {
	if o == nil {
		return ""
	}
	if len(o.Value) > 0 {
		return strings.Trim(string(o.Value), `"`)
	}
	return o.Description
}

func exceptionPayload(details *runtime.ExceptionDetails) string {
	if details == nil {
		return ""
	}
	text := details.Text
	if details.Exception != nil && details.Exception.Description != "" {
		if text != "" {
			text += ": "
		}
		text += details.Exception.Description
	}
	return text
}
