package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Enqueue сериализует payload в JSON и кладёт событие агрегата в outbox.
// Вызывается внутри транзакции вместе с изменением агрегата.
func Enqueue(ctx context.Context, repo domain.OutboxRepository, aggregateType, aggregateID, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	if _, err := repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
	}); err != nil {
		return fmt.Errorf("enqueue %s: %w", eventType, err)
	}
	return nil
}
