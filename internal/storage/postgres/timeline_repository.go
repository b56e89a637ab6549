package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const timelineColumns = `order_id, type, actor_id, reason, occurred`

type timelineRepository struct {
	q queryer
}

// NewTimelineRepository возвращает историю заказов поверх Store.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return timelineRepository{q: store.DB()}
}

// Append пишет событие; заказ должен существовать.
func (r timelineRepository) Append(ctx context.Context, e domain.TimelineEvent) error {
	if e.Occurred.IsZero() {
		e.Occurred = time.Now().UTC()
	}
	if e.ActorID == "" {
		e.ActorID = domain.TimelineActorSystem
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO timeline_events (`+timelineColumns+`) VALUES ($1,$2,$3,$4,$5)`,
		e.OrderID, e.Type, e.ActorID, e.Reason, e.Occurred)
	if _, fk := violatedConstraint(err, pgForeignKeyViolation); fk {
		return domain.ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("append %s to order %s timeline: %w", e.Type, e.OrderID, err)
	}
	return nil
}

// List отдаёт историю заказа от старых событий к новым; при равном времени
// сохраняется порядок вставки.
func (r timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx,
		`SELECT `+timelineColumns+` FROM timeline_events WHERE order_id = $1 ORDER BY occurred, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order %s timeline: %w", orderID, err)
	}
	defer rows.Close()

	var history []domain.TimelineEvent
	for rows.Next() {
		var e domain.TimelineEvent
		if err := rows.Scan(&e.OrderID, &e.Type, &e.ActorID, &e.Reason, &e.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		history = append(history, e)
	}
	return history, rows.Err()
}

var _ domain.TimelineRepository = timelineRepository{}
