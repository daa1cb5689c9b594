// Package notify delivers copy-trade and classification events to an external
// notification service. Delivery is fire-and-forget: a slow or failing sink
// never blocks the caller.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType names a notification.
type EventType string

const (
	EventClassificationComplete EventType = "classification-complete"
	EventFeedGap                EventType = "feed-gap"
	EventOrderFilled            EventType = "order-filled"
	EventOrderSkipped           EventType = "order-skipped"
	EventOrderRejected          EventType = "order-rejected"
	EventRiskThrottled          EventType = "risk-throttled"
	EventRiskHalted             EventType = "risk-halted"
	EventEmergencyStop          EventType = "emergency-stop"
	EventPositionExit           EventType = "position-exit"
)

// Event is one notification. Reason carries machine-readable skip/halt reasons.
type Event struct {
	ID            string            `json:"id"`
	Type          EventType         `json:"type"`
	SessionID     string            `json:"session_id,omitempty"`
	CohortID      string            `json:"cohort_id,omitempty"`
	SourceTradeID string            `json:"source_trade_id,omitempty"`
	TokenAddress  string            `json:"token_address,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	OccurredAt    int64             `json:"occurred_at"` // ms
}

// NewEvent stamps an event with a random id and the given time.
func NewEvent(t EventType, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: at.UnixMilli(),
	}
}

// Sink delivers a single event.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// Notifier accepts events without blocking.
type Notifier interface {
	Notify(ev Event)
}

// Discard drops every event.
type Discard struct{}

// Notify implements Notifier.
func (Discard) Notify(Event) {}
