package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// orderRepository реализует OrderRepository в памяти.
type orderRepository struct {
	v view
}

// Create сохраняет новый заказ, если ID и reference ещё не заняты.
func (r orderRepository) Create(_ context.Context, order domain.Order) error {
	return r.v.write(func(st *state) error {
		if _, exists := st.orders[order.ID]; exists {
			return domain.ErrOrderExists
		}
		for _, o := range st.orders {
			if o.Reference == order.Reference {
				return domain.ErrOrderReferenceTaken
			}
		}
		order.Items = append([]domain.OrderItem(nil), order.Items...)
		st.orders[order.ID] = order
		return nil
	})
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r orderRepository) Get(_ context.Context, id string) (domain.Order, error) {
	var order domain.Order
	err := r.v.read(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		order = o
		return nil
	})
	return order, err
}

// ListByOwner возвращает заказы покупателя, ограничивая выборку limit (если >0).
func (r orderRepository) ListByOwner(_ context.Context, ownerID string, limit int) ([]domain.Order, error) {
	return r.list(func(o domain.Order) bool { return o.OwnerID == ownerID }, limit)
}

// ListByStore возвращает заказы магазина.
func (r orderRepository) ListByStore(_ context.Context, storeID string, limit int) ([]domain.Order, error) {
	return r.list(func(o domain.Order) bool { return o.StoreID == storeID }, limit)
}

func (r orderRepository) list(match func(domain.Order) bool, limit int) ([]domain.Order, error) {
	var result []domain.Order
	err := r.v.read(func(st *state) error {
		for _, order := range st.orders {
			if match(order) {
				result = append(result, order)
			}
		}
		return nil
	})

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, err
}

// Save перезаписывает изменяемые поля заказа, проверяя версию (optimistic locking).
func (r orderRepository) Save(_ context.Context, order domain.Order) error {
	return r.v.write(func(st *state) error {
		current, ok := st.orders[order.ID]
		if !ok {
			return domain.ErrOrderNotFound
		}
		if current.Version != order.Version {
			return domain.ErrOrderVersionConflict
		}
		current.Status = order.Status
		current.TrackingNumber = order.TrackingNumber
		current.UpdatedAt = order.UpdatedAt
		current.Version++
		st.orders[order.ID] = current
		return nil
	})
}

var _ domain.OrderRepository = orderRepository{}
