package services

import (
	"context"

	"soul-card-backend/internal/models"
)

// EventType names a live application event
type EventType string

const (
	EventApplicationReceived EventType = "application_received"
	EventFollowUpRequested   EventType = "follow_up_requested"
	EventFollowUpAnswered    EventType = "follow_up_answered"
	EventApplicationDecided  EventType = "application_decided"
)

// Event tells a user that one of their applications changed
type Event struct {
	Type          EventType                `json:"type"`
	ApplicationID string                   `json:"application_id"`
	Status        models.ApplicationStatus `json:"status"`
	Timestamp     int64                    `json:"timestamp"`
}

// Notifier delivers events to a user. Delivery is best effort and never
// fails the operation that produced the event.
type Notifier interface {
	Notify(ctx context.Context, userID string, ev Event)
}

// MultiNotifier fans an event out to several notifiers
type MultiNotifier []Notifier

// Notify delivers ev through every notifier
func (m MultiNotifier) Notify(ctx context.Context, userID string, ev Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, userID, ev)
		}
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, Event) {}
