package notify

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
)

var notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "marketplace_notifications_total",
	Help: "Order notifications by event type and result",
}, []string{"event_type", "result"})

// Notifier превращает события заказов из Kafka в письма покупателю.
type Notifier struct {
	mailer Mailer
	logger *log.Entry
}

// NewNotifier создаёт Notifier.
func NewNotifier(mailer Mailer, logger *log.Entry) *Notifier {
	if logger == nil {
		logger = log.WithField("component", "notifier")
	}
	return &Notifier{mailer: mailer, logger: logger}
}

// HandleMessage реализует kafka.MessageHandler. Событие без e-mail получателя пропускается.
func (n *Notifier) HandleMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	envelope, err := kafka.ParseEnvelope(message)
	if err != nil {
		notificationsTotal.WithLabelValues("unknown", "invalid").Inc()
		return err
	}

	email, ok, err := composeEmail(envelope)
	if err != nil {
		notificationsTotal.WithLabelValues(envelope.EventType, "invalid").Inc()
		return err
	}
	if !ok {
		notificationsTotal.WithLabelValues(envelope.EventType, "skipped").Inc()
		n.logger.WithFields(log.Fields{
			"event_type":   envelope.EventType,
			"aggregate_id": envelope.AggregateID,
		}).Debug("notification skipped")
		return nil
	}

	if err := n.mailer.Send(ctx, email); err != nil {
		notificationsTotal.WithLabelValues(envelope.EventType, "failed").Inc()
		return fmt.Errorf("send %s notification: %w", envelope.EventType, err)
	}

	notificationsTotal.WithLabelValues(envelope.EventType, "sent").Inc()
	n.logger.WithFields(log.Fields{
		"event_type":   envelope.EventType,
		"aggregate_id": envelope.AggregateID,
	}).Info("notification sent")
	return nil
}

// composeEmail строит письмо по событию. ok=false: событие не требует письма
// или contact_info не является e-mail.
func composeEmail(envelope kafka.Envelope) (Email, bool, error) {
	switch envelope.EventType {
	case domain.EventOrderPlaced:
		var event domain.OrderPlacedEvent
		if err := envelope.Decode(&event); err != nil {
			return Email{}, false, err
		}
		to, ok := emailAddress(event.ContactInfo)
		if !ok {
			return Email{}, false, nil
		}
		return Email{
			To:      to,
			Subject: fmt.Sprintf("Order %s received", event.Reference),
			Body: fmt.Sprintf("Thank you for your order %s.\nItems: %d\nTotal: %s\n",
				event.Reference, event.ItemCount, event.TotalPrice),
		}, true, nil

	case domain.EventOrderStatusChanged:
		var event domain.OrderStatusChangedEvent
		if err := envelope.Decode(&event); err != nil {
			return Email{}, false, err
		}
		to, ok := emailAddress(event.ContactInfo)
		if !ok {
			return Email{}, false, nil
		}
		var body strings.Builder
		fmt.Fprintf(&body, "Your order %s is now %s.\n", event.Reference, event.To)
		if event.TrackingNumber != "" {
			fmt.Fprintf(&body, "Tracking number: %s\n", event.TrackingNumber)
		}
		if event.Reason != "" {
			fmt.Fprintf(&body, "Reason: %s\n", event.Reason)
		}
		return Email{
			To:      to,
			Subject: fmt.Sprintf("Order %s: %s", event.Reference, event.To),
			Body:    body.String(),
		}, true, nil

	case domain.EventPaymentVerified:
		var event domain.PaymentVerifiedEvent
		if err := envelope.Decode(&event); err != nil {
			return Email{}, false, err
		}
		to, ok := emailAddress(event.ContactInfo)
		if !ok {
			return Email{}, false, nil
		}
		return Email{
			To:      to,
			Subject: fmt.Sprintf("Payment for order %s confirmed", event.OrderReference),
			Body: fmt.Sprintf("We received your payment of %s (reference %s).\n",
				event.Amount, event.Reference),
		}, true, nil
	}
	return Email{}, false, nil
}

func emailAddress(contact string) (string, bool) {
	addr, err := mail.ParseAddress(strings.TrimSpace(contact))
	if err != nil {
		return "", false
	}
	return addr.Address, true
}
