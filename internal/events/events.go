// Package events implements the Event Emitter: a stable envelope handed to
// a pluggable Sink after every successful mutation. Delivery failures are
// logged, never rolled back.
package events

import (
	"sync"

	"github.com/google/uuid"

	"github.com/go-imi/imi/internal/logger"
	"github.com/go-imi/imi/internal/models"
)

// Sink receives every emitted event. Implementations must not block
// indefinitely; a slow sink risks stalling the emitting operation.
type Sink interface {
	Emit(event models.Event)
}

// LogSink writes each envelope as a structured zerolog event. This is the
// default sink when no external bus is configured.
type LogSink struct{}

func (LogSink) Emit(event models.Event) {
	logger.Logger.Info().
		Str("event_id", event.ID).
		Str("kind", string(event.Kind)).
		Str("source", event.Source).
		Str("correlation_id", event.CorrelationID).
		Interface("payload", event.Payload).
		Msg("event")
}

// ChannelSink fans events out to subscribed channels, used by tests and by
// long-running prune/sync commands that report progress incrementally.
// An event is dropped for any subscriber whose buffer is full rather than
// blocking Emit; the subscriber itself stays subscribed.
type ChannelSink struct {
	mu   sync.Mutex
	subs map[chan models.Event]struct{}
}

func NewChannelSink() *ChannelSink {
	return &ChannelSink{subs: make(map[chan models.Event]struct{})}
}

// Subscribe registers a buffered channel that receives every future event.
// Call the returned func to unsubscribe.
func (c *ChannelSink) Subscribe(buffer int) (ch chan models.Event, unsubscribe func()) {
	ch = make(chan models.Event, buffer)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()
	return ch, func() {
		c.mu.Lock()
		delete(c.subs, ch)
		c.mu.Unlock()
		close(ch)
	}
}

func (c *ChannelSink) Emit(event models.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- event:
		default:
			logger.Logger.Warn().Str("kind", string(event.Kind)).Msg("event subscriber channel full, dropping event")
		}
	}
}

// MultiSink fans a single emission out to several sinks, used to run the
// default LogSink alongside an optional ChannelSink for progress reporting.
type MultiSink struct {
	Sinks []Sink
}

func (m MultiSink) Emit(event models.Event) {
	for _, s := range m.Sinks {
		s.Emit(event)
	}
}

// Emitter is the component the Lifecycle Manager calls after each
// successful mutation.
type Emitter struct {
	sink   Sink
	source string
}

func NewEmitter(sink Sink, source string) *Emitter {
	if sink == nil {
		sink = LogSink{}
	}
	return &Emitter{sink: sink, source: source}
}

// Emit builds the envelope and hands it to the sink. correlationID may be
// empty.
func (e *Emitter) Emit(kind models.EventKind, correlationID string, payload map[string]any) {
	event := models.Event{
		ID:            uuid.NewString(),
		Kind:          kind,
		Source:        e.source,
		CorrelationID: correlationID,
		Payload:       payload,
	}
	event.OccurredAt = nowFunc()
	e.sink.Emit(event)
}

// nowFunc is indirected so tests can freeze time without monkey-patching
// the time package.
var nowFunc = defaultNow
