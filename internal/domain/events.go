package domain

import (
	"encoding/json"
	"time"
)

// Типы событий, которые сервисы кладут в transactional outbox.
const (
	AggregateOrder = "order"

	EventOrderPlaced        = "order.placed"
	EventOrderStatusChanged = "order.status_changed"
	EventPaymentVerified    = "payment.verified"
)

// OrderPlacedEvent публикуется как order.placed.
type OrderPlacedEvent struct {
	OrderID     string    `json:"order_id"`
	Reference   string    `json:"reference"`
	OwnerID     string    `json:"owner_id"`
	StoreID     string    `json:"store_id"`
	TotalPrice  string    `json:"total_price"`
	ItemCount   int       `json:"item_count"`
	ContactInfo string    `json:"contact_info"`
	PlacedAt    time.Time `json:"placed_at"`
}

// OrderStatusChangedEvent публикуется как order.status_changed.
type OrderStatusChangedEvent struct {
	OrderID        string    `json:"order_id"`
	Reference      string    `json:"reference"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	TrackingNumber string    `json:"tracking_number,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	ContactInfo    string    `json:"contact_info"`
	ChangedAt      time.Time `json:"changed_at"`
}

// PaymentVerifiedEvent публикуется как payment.verified.
type PaymentVerifiedEvent struct {
	PaymentID      string    `json:"payment_id"`
	Reference      string    `json:"reference"`
	OrderID        string    `json:"order_id"`
	OrderReference string    `json:"order_reference"`
	Amount         string    `json:"amount"`
	ContactInfo    string    `json:"contact_info"`
	PaidAt         time.Time `json:"paid_at"`
}

// OutboxDeadLetter описывает событие, которое не удалось опубликовать за отведённые
// попытки. Кладётся в DLQ-топик и читается dlq-reprocess.
type OutboxDeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error,omitempty"`
	FailedAt      time.Time       `json:"dlq_published_at"`
}

// NewOutboxDeadLetter фиксирует сообщение и причину отказа.
func NewOutboxDeadLetter(msg OutboxMessage, cause error, at time.Time) OutboxDeadLetter {
	dl := OutboxDeadLetter{
		OutboxID:      msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		FailedAt:      at.UTC(),
	}
	if cause != nil {
		dl.PublishError = cause.Error()
	}
	return dl
}
