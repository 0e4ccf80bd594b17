// Package events is an in-process pub/sub bus for appointment lifecycle events.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	AppointmentConfirmed     = "appointment.confirmed"
	AppointmentStatusChanged = "appointment.status_changed"
	AvailabilityUpdated      = "availability.updated"
)

// Event represents a lightweight domain event.
type Event struct {
	ID        string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// AppointmentPayload is published for appointment events.
type AppointmentPayload struct {
	AppointmentID string `json:"appointment_id"`
	DoctorID      string `json:"doctor_id"`
	Date          string `json:"date"`
	TimeSlot      string `json:"time_slot"`
	Status        string `json:"status"`
	PreviousState string `json:"previous_status,omitempty"`
}

// AvailabilityPayload is published when a doctor's schedule changes.
type AvailabilityPayload struct {
	DoctorID string `json:"doctor_id"`
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// Publisher is what services depend on to emit events.
type Publisher interface {
	PublishJSON(eventType string, payload any) error
}

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

// NewEventBus constructs an empty bus. logger may be nil.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; a failing handler does not stop the rest.
		if err := handler(event); err != nil && b.logger != nil {
			b.logger.Warn().Err(err).Str("event", event.Type).Str("event_id", event.ID).Msg("event handler failed")
		}
	}
}

// PublishJSON marshals payload and publishes it under eventType.
func (b *EventBus) PublishJSON(eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	b.Publish(Event{Type: eventType, Payload: data})
	return nil
}
