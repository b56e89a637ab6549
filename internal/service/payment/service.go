package payment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/checkout"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
)

const (
	tracerName = "github.com/vladislavdragonenkov/marketplace/internal/service/payment"

	// DefaultMethod — способ оплаты, если клиент его не указал.
	DefaultMethod = "paystack"

	msgGatewayUnreachable = "Error contacting Paystack."
	msgGatewayRejected    = "Verification failed with Paystack."
)

// Результаты сверки для метрик.
const (
	resultVerified        = "verified"
	resultAlreadyVerified = "already_verified"
	resultNotSuccessful   = "not_successful"
	resultUpstreamError   = "upstream_error"
	resultError           = "error"
)

// Service инициирует платежи и сверяет их с платёжным шлюзом.
type Service struct {
	store   domain.Storage
	gateway domain.PaymentGateway
	breaker *CircuitBreaker
	retry   RetryConfig
	logger  *log.Entry
	metrics *metrics.CheckoutMetrics
	tracer  trace.Tracer
	now     func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithBreaker задаёт circuit breaker для вызовов шлюза.
func WithBreaker(cb *CircuitBreaker) Option {
	return func(s *Service) {
		if cb != nil {
			s.breaker = cb
		}
	}
}

// WithRetry задаёт политику повторов запроса к шлюзу.
func WithRetry(cfg RetryConfig) Option {
	return func(s *Service) { s.retry = cfg }
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService создаёт платёжный сервис.
func NewService(store domain.Storage, gateway domain.PaymentGateway, logger *log.Entry, opts ...Option) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "payment")
	}
	s := &Service{
		store:   store,
		gateway: gateway,
		retry:   DefaultRetryConfig(),
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.breaker == nil {
		s.breaker = NewCircuitBreaker(5, 30*time.Second, logger.WithField("layer", "breaker"))
	}
	s.breaker.OnStateChange(func(state CircuitState) {
		s.metrics.SetGatewayBreakerOpen(state == CircuitOpen)
	})
	return s
}

// InitiateRequest описывает запрос на создание платежа по заказу.
type InitiateRequest struct {
	OwnerID string
	OrderID string
	Method  string
}

// InitiatePayment создаёт ожидающий платёж на сумму заказа. Заказ должен принадлежать
// вызывающему и находиться в статусе pending.
func (s *Service) InitiatePayment(ctx context.Context, req InitiateRequest) (domain.Payment, error) {
	if req.OwnerID == "" {
		return domain.Payment{}, domain.ErrIdentityRequired
	}
	if req.OrderID == "" {
		return domain.Payment{}, domain.ErrOrderIDRequired
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		method = DefaultMethod
	}

	var payment domain.Payment
	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		order, err := tx.Orders().Get(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if order.OwnerID != req.OwnerID {
			return domain.ErrOrderNotFound
		}
		if order.Status != domain.OrderStatusPending {
			return domain.ErrOrderNotPayable
		}

		now := s.now()
		payment = domain.Payment{
			ID:        uuid.NewString(),
			OrderID:   order.ID,
			Reference: uuid.NewString(),
			Amount:    order.TotalPrice,
			Status:    domain.PaymentStatusPending,
			Method:    method,
			CreatedAt: now,
		}
		if errs := payment.Validate(); len(errs) > 0 {
			return errors.Join(errs...)
		}
		if err := tx.Payments().Create(ctx, payment); err != nil {
			return err
		}
		initiated, err := domain.NewTimelineEvent(order.ID, domain.TimelinePaymentInitiated, req.OwnerID,
			"payment "+payment.Reference+" via "+method, now)
		if err != nil {
			return err
		}
		return tx.Timeline().Append(ctx, initiated)
	})
	if err != nil {
		return domain.Payment{}, err
	}

	s.logger.WithFields(log.Fields{
		"order_id":  payment.OrderID,
		"reference": payment.Reference,
		"amount":    payment.Amount.StringFixed(domain.MoneyScale),
	}).Info("payment initiated")
	return payment, nil
}

// VerifyResult содержит итог сверки платежа.
type VerifyResult struct {
	Payment         domain.Payment
	AlreadyVerified bool
	// OrderAdvanced сообщает, что заказ переведён из pending в processing.
	OrderAdvanced bool
}

// VerifyPayment сверяет транзакцию со шлюзом и, если она успешна, помечает платёж
// проверенным и переводит заказ в processing. Повторная сверка ничего не меняет.
func (s *Service) VerifyPayment(ctx context.Context, reference string) (VerifyResult, error) {
	ctx, span := s.tracer.Start(ctx, "payment.VerifyPayment", trace.WithAttributes(attribute.String("reference", reference)))
	defer span.End()

	result, err := s.verify(ctx, strings.TrimSpace(reference))
	entry := s.logger.WithField("reference", reference)
	switch {
	case err == nil && result.AlreadyVerified:
		s.metrics.RecordPaymentVerification(resultAlreadyVerified)
		entry.Info("payment already verified")
	case err == nil:
		s.metrics.RecordPaymentVerification(resultVerified)
		s.metrics.RecordTimelineEvent()
		s.metrics.RecordOutboxEvent()
		entry.WithFields(log.Fields{
			"order_id":       result.Payment.OrderID,
			"order_advanced": result.OrderAdvanced,
		}).Info("payment verified")
	case errors.Is(err, domain.ErrPaymentNotSuccessful):
		s.metrics.RecordPaymentVerification(resultNotSuccessful)
		entry.Info("payment not successful")
	case domain.KindOf(err) == domain.KindUpstream:
		s.metrics.RecordPaymentVerification(resultUpstreamError)
		entry.WithError(err).Error("payment gateway unavailable")
	case domain.KindOf(err) == domain.KindInternal:
		s.metrics.RecordPaymentVerification(resultError)
		entry.WithError(err).Error("verify payment failed")
	default:
		s.metrics.RecordPaymentVerification(resultError)
		entry.WithError(err).Info("verify payment rejected")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, domain.MessageOf(err))
		return VerifyResult{}, err
	}
	return result, nil
}

func (s *Service) verify(ctx context.Context, reference string) (VerifyResult, error) {
	if reference == "" {
		return VerifyResult{}, domain.ErrPaymentReferenceRequired
	}

	verification, err := s.callGateway(ctx, reference)
	if err != nil {
		return VerifyResult{}, err
	}
	if !verification.Succeeded() {
		return VerifyResult{}, domain.ErrPaymentNotSuccessful
	}

	var result VerifyResult
	err = s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		result = VerifyResult{}
		payment, err := tx.Payments().GetByReference(ctx, reference, true)
		if err != nil {
			return err
		}
		if payment.Verified {
			result = VerifyResult{Payment: payment, AlreadyVerified: true}
			return nil
		}

		now := s.now()
		paidAt := verification.PaidAt
		if paidAt.IsZero() {
			paidAt = now
		}
		payment.MarkVerified(paidAt)
		if err := tx.Payments().Save(ctx, payment); err != nil {
			return err
		}
		result.Payment = payment

		order, err := tx.Orders().Get(ctx, payment.OrderID)
		if err != nil {
			return err
		}
		if order.Status == domain.OrderStatusPending {
			if err := checkout.TransitionInTx(ctx, tx, &order, checkout.Transition{
				Next:   domain.OrderStatusProcessing,
				Reason: "payment " + reference + " verified",
				At:     now,
			}); err != nil {
				return err
			}
			result.OrderAdvanced = true
		} else {
			s.logger.WithFields(log.Fields{
				"order_id":  order.ID,
				"status":    order.Status,
				"reference": reference,
			}).Warn("payment verified for order that is no longer pending; status left unchanged")
		}

		verified, err := domain.NewTimelineEvent(order.ID, domain.TimelinePaymentVerified, domain.TimelineActorSystem,
			"payment "+reference+" verified", now)
		if err != nil {
			return err
		}
		if err := tx.Timeline().Append(ctx, verified); err != nil {
			return err
		}
		return outbox.Enqueue(ctx, tx.Outbox(), domain.AggregateOrder, order.ID, domain.EventPaymentVerified, domain.PaymentVerifiedEvent{
			PaymentID:      payment.ID,
			Reference:      payment.Reference,
			OrderID:        order.ID,
			OrderReference: order.Reference,
			Amount:         payment.Amount.StringFixed(domain.MoneyScale),
			ContactInfo:    order.ContactInfo,
			PaidAt:         payment.PaidAt,
		})
	})
	if err != nil {
		return VerifyResult{}, err
	}
	return result, nil
}

// callGateway обращается к шлюзу через breaker с повторами и переводит сбои в UpstreamError.
func (s *Service) callGateway(ctx context.Context, reference string) (domain.GatewayVerification, error) {
	var verification domain.GatewayVerification
	start := time.Now()
	err := s.breaker.Execute(ctx, "verify", func() error {
		return retry(ctx, s.retry, s.logger, func() error {
			var err error
			verification, err = s.gateway.Verify(ctx, reference)
			return err
		})
	})
	s.metrics.RecordGatewayDuration(time.Since(start))
	if err == nil {
		return verification, nil
	}

	msg := msgGatewayUnreachable
	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		msg = msgGatewayRejected
	case errors.Is(err, ErrBreakerOpen):
		msg = domain.ErrGatewayUnavailable.Message
	}
	return domain.GatewayVerification{}, domain.ErrGatewayUnavailable.With(msg, err)
}

// ListPayments возвращает платежи заказа его владельцу.
func (s *Service) ListPayments(ctx context.Context, ownerID, orderID string) ([]domain.Payment, error) {
	if ownerID == "" {
		return nil, domain.ErrIdentityRequired
	}
	order, err := s.store.Orders().Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.OwnerID != ownerID {
		return nil, domain.ErrOrderNotFound
	}
	return s.store.Payments().ListByOrder(ctx, orderID)
}
