package domain

import (
	"errors"
	"fmt"
)

// ErrorKind классифицирует доменные ошибки для транспортного слоя.
type ErrorKind string

const (
	// KindValidation — некорректный ввод клиента.
	KindValidation ErrorKind = "validation"
	// KindInvalidState — операция недопустима в текущем состоянии агрегата.
	KindInvalidState ErrorKind = "invalid_state"
	// KindNotFound — сущность не найдена или не принадлежит вызывающему.
	KindNotFound ErrorKind = "not_found"
	// KindConflict — проигранная гонка за изменение (версия, уникальность).
	KindConflict ErrorKind = "conflict"
	// KindUpstream — внешний сервис недоступен или ответил ошибкой.
	KindUpstream ErrorKind = "upstream"
	// KindForbidden — действие разрешено только владельцу.
	KindForbidden ErrorKind = "forbidden"
	// KindUnauthenticated — не передана идентичность вызывающего.
	KindUnauthenticated ErrorKind = "unauthenticated"
	// KindInternal — всё, что не классифицировано.
	KindInternal ErrorKind = "internal"
)

// Error описывает доменную ошибку с классом и человекочитаемым сообщением.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error

	base *Error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is сопоставляет ошибку, созданную через With, с исходным sentinel.
func (e *Error) Is(target error) bool {
	return e.base != nil && target == e.base
}

// With возвращает ошибку того же класса со своим сообщением и причиной.
// errors.Is(result, e) остаётся истинным, а текст e в сообщение не попадает.
func (e *Error) With(msg string, cause error) error {
	return &Error{Kind: e.Kind, Message: msg, Err: cause, base: e}
}

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Validation создаёт ошибку валидации.
func Validation(format string, args ...any) error {
	return newError(KindValidation, fmt.Sprintf(format, args...))
}

// InvalidState создаёт ошибку недопустимого состояния.
func InvalidState(format string, args ...any) error {
	return newError(KindInvalidState, fmt.Sprintf(format, args...))
}

// Upstream оборачивает ошибку внешнего сервиса.
func Upstream(msg string, err error) error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

// KindOf возвращает класс ошибки; неклассифицированные ошибки считаются внутренними.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// MessageOf возвращает безопасное для клиента сообщение.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal server error"
}

var (
	// Ошибка отсутствующей идентичности вызывающего.
	ErrIdentityRequired = newError(KindUnauthenticated, "authentication credentials were not provided")
	// Ошибка доступа к чужому ресурсу.
	ErrForbidden = newError(KindForbidden, "you do not have permission to perform this action")

	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = newError(KindValidation, "quantity must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = newError(KindValidation, "price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = newError(KindValidation, "order total does not match items sum")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = newError(KindValidation, "order must contain at least one item")
	// Ошибка отсутствующего владельца.
	ErrOwnerRequired = newError(KindValidation, "owner_id is required")
	// Ошибка, если магазин не передан и магазин по умолчанию не настроен.
	ErrStoreRequired = newError(KindValidation, "store_id is required: pass it explicitly or configure a default store")
	// Ошибка отсутствующего идентификатора заказа в платежах.
	ErrOrderIDRequired = newError(KindValidation, "order_id is required")
	// Ошибка пустых адреса доставки или контактов.
	ErrShippingRequired = newError(KindValidation, "Shipping address and contact info are required.")
	// Ошибка отсутствующего reference при проверке платежа.
	ErrPaymentReferenceRequired = newError(KindValidation, "Payment reference not provided.")
	// Ошибка отрицательной суммы платежа.
	ErrPaymentAmountNegative = newError(KindValidation, "payment amount must be non-negative")
	// Ошибка оценки вне диапазона 1..5.
	ErrRatingOutOfRange = newError(KindValidation, "rating must be between 1 and 5")
	// Ошибка пустого имени сущности каталога.
	ErrNameRequired = newError(KindValidation, "name is required")
	// Ошибка сообщения без получателя или с двумя получателями.
	ErrMessageReceiverInvalid = newError(KindValidation, "exactly one of receiver_user_id or receiver_store_id is required")
	// Ошибка пустого текста отзыва/сообщения.
	ErrContentRequired = newError(KindValidation, "content is required")
	// Ошибка неизвестного статуса заказа.
	ErrOrderStatusUnknown = newError(KindValidation, "unknown order status")

	// Ошибка отсутствия активной корзины при оформлении.
	ErrNoActiveCart = newError(KindInvalidState, "No active cart found")
	// Ошибка пустой корзины при оформлении.
	ErrCartEmpty = newError(KindInvalidState, "Cart is empty. Cannot create order.")
	// Ошибка неактивного товара.
	ErrProductUnavailable = newError(KindInvalidState, "product is not available")
	// Ошибка недопустимого перехода статуса заказа.
	ErrOrderTransition = newError(KindInvalidState, "order status transition is not allowed")
	// Ошибка оплаты заказа не в статусе pending.
	ErrOrderNotPayable = newError(KindInvalidState, "order is not awaiting payment")
	// ErrPaymentNotSuccessful — шлюз вернул статус, отличный от success.
	ErrPaymentNotSuccessful = newError(KindInvalidState, "Payment was not successful.")

	// ErrStoreNotFound возвращается, если магазин не найден.
	ErrStoreNotFound = newError(KindNotFound, "store not found")
	// ErrCategoryNotFound возвращается, если категория не найдена.
	ErrCategoryNotFound = newError(KindNotFound, "category not found")
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = newError(KindNotFound, "product not found")
	// ErrCartNotFound возвращается, если корзина не найдена.
	ErrCartNotFound = newError(KindNotFound, "cart not found")
	// ErrCartItemNotFound возвращается, если позиции нет в активных корзинах владельца.
	ErrCartItemNotFound = newError(KindNotFound, "cart item not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = newError(KindNotFound, "order not found")
	// ErrPaymentNotFound возвращается, если платёж с таким reference не найден.
	ErrPaymentNotFound = newError(KindNotFound, "Payment not found.")
	// ErrReviewNotFound возвращается, если отзыв не найден.
	ErrReviewNotFound = newError(KindNotFound, "review not found")
	// ErrMessageNotFound возвращается, если сообщение не найдено.
	ErrMessageNotFound = newError(KindNotFound, "message not found")

	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = newError(KindConflict, "order version conflict")
	// ErrCartNotActive — корзину уже деактивировал конкурентный запрос.
	ErrCartNotActive = newError(KindConflict, "cart is no longer active")
	// ErrSlugTaken — slug категории уже занят.
	ErrSlugTaken = newError(KindConflict, "category slug already exists")
	// ErrOrderExists — заказ с таким id уже сохранён.
	ErrOrderExists = newError(KindConflict, "order already exists")
	// ErrOrderReferenceTaken — reference заказа совпал с уже выданным.
	ErrOrderReferenceTaken = newError(KindConflict, "order reference already exists")
	// ErrPaymentReferenceTaken — reference платежа уже существует.
	ErrPaymentReferenceTaken = newError(KindConflict, "payment reference already exists")

	// ErrGatewayUnavailable — платёжный шлюз недоступен (в том числе открыт breaker).
	ErrGatewayUnavailable = newError(KindUpstream, "Failed to verify payment")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой хеш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже использован с тем же запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ уже использован с другим запросом.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyNotFound — ключ не найден или истёк.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsKind проверяет класс ошибки.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// IsIdempotencyConflict проверяет, что ключ уже занят (тем же или другим запросом).
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
