// Package callback delivers limit lifecycle events to registered handlers.
// Handlers are registered at configuration time and treated as read-only
// while evaluations run. A misbehaving handler is logged and skipped; it can
// never abort the operation that triggered the event.
package callback

import (
	"context"
	"time"

	"github.com/planfence/planfence/internal/owner"
	"go.uber.org/zap"
)

// EventType identifies a limit lifecycle event.
type EventType string

const (
	EventWarning    EventType = "warning"
	EventGraceStart EventType = "grace_start"
	EventBlock      EventType = "block"
)

// Wildcard registers a handler for every limit key of an event type.
const Wildcard = "*"

// Event is the payload passed to handlers.
type Event struct {
	Type       EventType
	Owner      owner.Ref
	LimitKey   string
	OccurredAt time.Time
	// Payload carries event-specific values: the crossed threshold for
	// warnings, the grace deadline for grace_start, usage and cap for all.
	Payload map[string]any
}

// Handler reacts to a lifecycle event. Returned errors are logged, counted
// and swallowed.
type Handler func(ctx context.Context, ev Event) error

type registration struct {
	eventType EventType
	limitKey  string
}

// ErrorCounter records handler failures, typically backed by prometheus.
type ErrorCounter interface {
	IncCallbackError(eventType string)
}

// Dispatcher routes events to handlers. Register everything before serving
// traffic; Dispatch does not lock the handler table.
type Dispatcher struct {
	handlers map[registration][]Handler
	log      *zap.Logger
	counter  ErrorCounter
}

func NewDispatcher(log *zap.Logger, counter ErrorCounter) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[registration][]Handler),
		log:      log.Named("callback"),
		counter:  counter,
	}
}

// On registers a handler for an event type and limit key. Use Wildcard as
// the limit key to observe every limit.
func (d *Dispatcher) On(eventType EventType, limitKey string, h Handler) {
	if h == nil {
		panic("callback: nil handler for " + string(eventType) + "/" + limitKey)
	}
	key := registration{eventType: eventType, limitKey: limitKey}
	d.handlers[key] = append(d.handlers[key], h)
}

// Dispatch invokes the handlers registered for the event's limit key first,
// then the wildcard handlers. Specific-before-wildcard ordering matches the
// registration contract callers rely on.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	d.invoke(ctx, ev, registration{eventType: ev.Type, limitKey: ev.LimitKey})
	if ev.LimitKey != Wildcard {
		d.invoke(ctx, ev, registration{eventType: ev.Type, limitKey: Wildcard})
	}
}

func (d *Dispatcher) invoke(ctx context.Context, ev Event, key registration) {
	for _, h := range d.handlers[key] {
		d.safeCall(ctx, ev, h)
	}
}

func (d *Dispatcher) safeCall(ctx context.Context, ev Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("callback handler panicked",
				zap.String("event", string(ev.Type)),
				zap.String("limit_key", ev.LimitKey),
				zap.String("owner", ev.Owner.String()),
				zap.Any("panic", r),
			)
			if d.counter != nil {
				d.counter.IncCallbackError(string(ev.Type))
			}
		}
	}()

	if err := h(ctx, ev); err != nil {
		d.log.Error("callback handler failed",
			zap.String("event", string(ev.Type)),
			zap.String("limit_key", ev.LimitKey),
			zap.String("owner", ev.Owner.String()),
			zap.Error(err),
		)
		if d.counter != nil {
			d.counter.IncCallbackError(string(ev.Type))
		}
	}
}
