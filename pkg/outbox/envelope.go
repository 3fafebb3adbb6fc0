package outbox

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/shopcart-backend/pkg/enums"
)

// EnvelopeSource names this service as the producer on every envelope.
const EnvelopeSource = "shopcart"

// ActorRef is the owner whose request caused the event; guests appear as "guest:<id>".
type ActorRef struct {
	OwnerID string `json:"owner_id"`
}

// PayloadEnvelope is what consumers receive as the message value. Data holds
// one of the payloads package structs selected by EventType.
type PayloadEnvelope struct {
	Version    int                   `json:"version"`
	EventID    string                `json:"event_id"`
	EventType  enums.OutboxEventType `json:"event_type"`
	Source     string                `json:"source"`
	OccurredAt time.Time             `json:"occurred_at"`
	Actor      *ActorRef             `json:"actor,omitempty"`
	Data       json.RawMessage       `json:"data"`
}
