package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus описывает состояние платежа в системе.
type PaymentStatus string

const (
	// PaymentStatusPending — платёж инициирован, но не подтверждён.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusSuccessful — шлюз подтвердил списание.
	PaymentStatusSuccessful PaymentStatus = "successful"
	// PaymentStatusFailed — провайдер отклонил платёж или произошла ошибка.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded — деньги возвращены клиенту.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Payment описывает платёж, связанный с заказом.
type Payment struct {
	ID        string
	OrderID   string
	Reference string // Уникальный reference транзакции у шлюза.
	Amount    decimal.Decimal
	Status    PaymentStatus
	Verified  bool
	Method    string
	PaidAt    time.Time // Нулевое значение, пока платёж не подтверждён.
	CreatedAt time.Time
}

// Validate проверяет корректность полей платежа и возвращает ошибки, если они есть.
func (p *Payment) Validate() []error {
	var errs []error

	switch {
	case p.OrderID == "":
		errs = append(errs, ErrOrderIDRequired)
	case p.Reference == "":
		errs = append(errs, ErrPaymentReferenceRequired)
	case p.Amount.IsNegative():
		errs = append(errs, ErrPaymentAmountNegative)
	}

	return errs
}

// MarkVerified фиксирует успешную сверку со шлюзом.
func (p *Payment) MarkVerified(now time.Time) {
	p.Status = PaymentStatusSuccessful
	p.Verified = true
	p.PaidAt = now
}
