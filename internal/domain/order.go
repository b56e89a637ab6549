package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа на маркетплейсе.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан и ожидает оплаты.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing — оплата подтверждена, магазин собирает заказ.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ получен покупателем.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// orderStatusRank задаёт порядок прямых переходов.
var orderStatusRank = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusProcessing: 1,
	OrderStatusShipped:    2,
	OrderStatusDelivered:  3,
}

// Valid проверяет, что статус известен.
func (s OrderStatus) Valid() bool {
	if s == OrderStatusCancelled {
		return true
	}
	_, ok := orderStatusRank[s]
	return ok
}

// Terminal сообщает, что из статуса больше нет переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo разрешает только движение вперёд по цепочке
// pending → processing → shipped → delivered и отмену из любого нетерминального статуса.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s.Terminal() || !next.Valid() || s == next {
		return false
	}
	if next == OrderStatusCancelled {
		return true
	}
	return orderStatusRank[next] == orderStatusRank[s]+1
}

// OrderItem хранит снимок позиции корзины на момент оформления.
type OrderItem struct {
	ID      string
	OrderID string
	// ProductID пустой, если товар позже удалён.
	ProductID       string
	ProductName     string
	Quantity        int32
	PriceAtPurchase decimal.Decimal
}

// LineTotal возвращает стоимость позиции по зафиксированной цене.
func (i OrderItem) LineTotal() decimal.Decimal {
	return LineTotal(i.Quantity, i.PriceAtPurchase)
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID              string
	CartID          string
	OwnerID         string
	StoreID         string
	TotalPrice      decimal.Decimal
	Status          OrderStatus
	ShippingAddress string
	ContactInfo     string
	Reference       string
	TrackingNumber  string
	Items           []OrderItem
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.OwnerID == "" {
		errs = append(errs, ErrOwnerRequired)
	}
	if strings.TrimSpace(o.ShippingAddress) == "" || strings.TrimSpace(o.ContactInfo) == "" {
		errs = append(errs, ErrShippingRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}

	// Сверяем сумму заказа с суммой позиций: qty * price.
	calc := decimal.Zero
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceAtPurchase.IsNegative() {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc = calc.Add(item.LineTotal())
	}
	if !RoundMoney(calc).Equal(o.TotalPrice) {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// TransitionTo переводит заказ в новый статус, если переход допустим.
func (o *Order) TransitionTo(next OrderStatus, now time.Time) error {
	if !next.Valid() {
		return ErrOrderStatusUnknown
	}
	if !o.Status.CanTransitionTo(next) {
		return &Error{
			Kind:    KindInvalidState,
			Message: "cannot move order from " + string(o.Status) + " to " + string(next),
			Err:     ErrOrderTransition,
		}
	}
	o.Status = next
	o.UpdatedAt = now
	return nil
}

// NewOrderReference генерирует публичный номер заказа вида ORD-1a2b3c4d.
func NewOrderReference() string {
	return "ORD-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
