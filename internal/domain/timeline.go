package domain

import (
	"strings"
	"time"
)

// Типы событий таймлайна заказа.
const (
	TimelineOrderPlaced      = "order_placed"
	TimelineStatusChanged    = "status_changed"
	TimelinePaymentInitiated = "payment_initiated"
	TimelinePaymentVerified  = "payment_verified"
)

// TimelineActorSystem — автор событий, пришедших не от пользователя (ответ шлюза).
const TimelineActorSystem = "system"

// TimelineEvent описывает запись в истории заказа. ActorID указывает, кто её вызвал:
// покупатель, владелец магазина или TimelineActorSystem.
type TimelineEvent struct {
	OrderID  string
	Type     string
	ActorID  string
	Reason   string
	Occurred time.Time
}

// NewTimelineEvent собирает событие; пустой автор заменяется на TimelineActorSystem.
func NewTimelineEvent(orderID, eventType, actorID, reason string, at time.Time) (TimelineEvent, error) {
	e := TimelineEvent{
		OrderID:  strings.TrimSpace(orderID),
		Type:     eventType,
		ActorID:  strings.TrimSpace(actorID),
		Reason:   reason,
		Occurred: at.UTC(),
	}
	if e.OrderID == "" {
		return TimelineEvent{}, ErrOrderIDRequired
	}
	switch e.Type {
	case TimelineOrderPlaced, TimelineStatusChanged, TimelinePaymentInitiated, TimelinePaymentVerified:
	default:
		return TimelineEvent{}, Validation("unknown timeline event type %q", eventType)
	}
	if e.ActorID == "" {
		e.ActorID = TimelineActorSystem
	}
	if e.Occurred.IsZero() {
		e.Occurred = time.Now().UTC()
	}
	return e, nil
}
