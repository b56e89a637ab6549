package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// paymentRepository хранит платежи по reference.
type paymentRepository struct {
	v view
}

func (r paymentRepository) Create(_ context.Context, payment domain.Payment) error {
	return r.v.write(func(st *state) error {
		if _, exists := st.payments[payment.Reference]; exists {
			return domain.ErrPaymentReferenceTaken
		}
		if _, ok := st.orders[payment.OrderID]; !ok {
			return domain.ErrOrderNotFound
		}
		st.payments[payment.Reference] = payment
		return nil
	})
}

func (r paymentRepository) GetByReference(_ context.Context, reference string, _ bool) (domain.Payment, error) {
	var payment domain.Payment
	err := r.v.read(func(st *state) error {
		p, ok := st.payments[reference]
		if !ok {
			return domain.ErrPaymentNotFound
		}
		payment = p
		return nil
	})
	return payment, err
}

func (r paymentRepository) ListByOrder(_ context.Context, orderID string) ([]domain.Payment, error) {
	var result []domain.Payment
	err := r.v.read(func(st *state) error {
		for _, p := range st.payments {
			if p.OrderID == orderID {
				result = append(result, p)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, err
}

func (r paymentRepository) Save(_ context.Context, payment domain.Payment) error {
	return r.v.write(func(st *state) error {
		current, ok := st.payments[payment.Reference]
		if !ok {
			return domain.ErrPaymentNotFound
		}
		current.Status = payment.Status
		current.Verified = payment.Verified
		current.PaidAt = payment.PaidAt
		st.payments[payment.Reference] = current
		return nil
	})
}

var _ domain.PaymentRepository = paymentRepository{}
