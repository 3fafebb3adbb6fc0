package outbox

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/shopcart-backend/pkg/db/models"
	"github.com/angelmondragon/shopcart-backend/pkg/enums"
	"github.com/angelmondragon/shopcart-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate, topic and payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the publisher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func NewNonRetryableError(err error) error {
	return NonRetryableError{Err: err}
}

// NewEventRegistry routes every order event to the orders topic.
func NewEventRegistry(ordersTopic string) (*EventRegistry, error) {
	if ordersTopic == "" {
		return nil, fmt.Errorf("orders topic is required")
	}
	entries := map[enums.OutboxEventType]EventDescriptor{
		enums.EventOrderPlaced: {
			EventType:      enums.EventOrderPlaced,
			AggregateType:  enums.AggregateOrder,
			Topic:          ordersTopic,
			PayloadFactory: func() interface{} { return &payloads.OrderPlacedEvent{} },
		},
		enums.EventOrderCancelled: {
			EventType:      enums.EventOrderCancelled,
			AggregateType:  enums.AggregateOrder,
			Topic:          ordersTopic,
			PayloadFactory: func() interface{} { return &payloads.OrderCancelledEvent{} },
		},
	}
	return &EventRegistry{entries: entries}, nil
}

// Resolve decodes the envelope and payload of a stored row. Failures are
// non-retryable since the stored bytes will not change.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	descriptor, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("no descriptor for event type %s", event.EventType))
	}
	if descriptor.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("event %s has aggregate %s, want %s", event.EventType, event.AggregateType, descriptor.AggregateType))
	}

	var envelope PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	if envelope.EventID == "" {
		return nil, NewNonRetryableError(fmt.Errorf("envelope missing event id"))
	}

	payload := descriptor.PayloadFactory()
	decoder := json.NewDecoder(bytes.NewReader(envelope.Data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: descriptor,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}
