package client

import (
	"encoding/json"
	"sync"

	"github.com/pathlearn/fedclient/pkg/logger"
)

// EventType names a local event dispatched by the realtime channel. Every
// server-pushed event maps 1:1 onto one of these.
type EventType string

const (
	EventConnectionStatus       EventType = "connection_status"
	EventConnectionError        EventType = "connection_error"
	EventConnectionSuccess      EventType = "connection_success"
	EventTrainingRoundStarted   EventType = "training_round_started"
	EventTrainingRoundCompleted EventType = "training_round_completed"
	EventTrainingJoined         EventType = "training_joined"
	EventTrainingLeft           EventType = "training_left"
	EventParticipantJoined      EventType = "participant_joined"
	EventParticipantLeft        EventType = "participant_left"
	EventUpdateAccepted         EventType = "update_accepted"
	EventUpdateRejected         EventType = "update_rejected"
	EventNewModelVersion        EventType = "new_model_version"
	EventModelReady             EventType = "model_ready"
	EventNotification           EventType = "notification"
	EventSystemMessage          EventType = "system_message"
	EventSocketError            EventType = "socket_error"
)

// serverEvents maps wire event names to local event types.
var serverEvents = map[string]EventType{
	"connection:success":          EventConnectionSuccess,
	"training:round_started":      EventTrainingRoundStarted,
	"training:round_completed":    EventTrainingRoundCompleted,
	"training:joined":             EventTrainingJoined,
	"training:left":               EventTrainingLeft,
	"training:participant_joined": EventParticipantJoined,
	"training:participant_left":   EventParticipantLeft,
	"update:accepted":             EventUpdateAccepted,
	"update:rejected":             EventUpdateRejected,
	"model:new_version":           EventNewModelVersion,
	"model:ready":                 EventModelReady,
	"notification":                EventNotification,
	"system:message":              EventSystemMessage,
	"error":                       EventSocketError,
}

// Event is one dispatched event with its raw payload. Typed payloads in
// internal/core/models are decoded by interested handlers.
type Event struct {
	Type    EventType
	Payload json.RawMessage
}

// Handler is a subscriber callback. Handlers must be fast and
// non-blocking; they run on the channel's read loop.
type Handler func(Event)

// Subscription identifies one registered handler for later removal.
type Subscription struct {
	event EventType
	id    int
}

type handlerEntry struct {
	id int
	fn Handler
}

// eventRegistry fans events out to registered handlers in registration
// order, isolating each invocation so one panicking handler cannot
// suppress its siblings.
type eventRegistry struct {
	mu       sync.Mutex
	nextID   int
	handlers map[EventType][]handlerEntry
}

func newEventRegistry() *eventRegistry {
	return &eventRegistry{handlers: make(map[EventType][]handlerEntry)}
}

func (r *eventRegistry) on(event EventType, fn Handler) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.handlers[event] = append(r.handlers[event], handlerEntry{id: r.nextID, fn: fn})
	return Subscription{event: event, id: r.nextID}
}

func (r *eventRegistry) off(sub Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.handlers[sub.event]
	for i, entry := range entries {
		if entry.id == sub.id {
			r.handlers[sub.event] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

func (r *eventRegistry) emit(event Event) {
	r.mu.Lock()
	entries := append([]handlerEntry(nil), r.handlers[event.Type]...)
	r.mu.Unlock()

	for _, entry := range entries {
		invoke(event, entry.fn)
	}
}

func invoke(event Event, fn Handler) {
	defer func() {
		if rec := recover(); rec != nil {
			log := logger.WithComponent("events")
			log.Error().
				Interface("panic", rec).
				Str("event", string(event.Type)).
				Msg("Event handler panicked")
		}
	}()
	fn(event)
}
