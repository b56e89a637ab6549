package checkout

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
	"github.com/vladislavdragonenkov/marketplace/internal/service/cart"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
)

const tracerName = "github.com/vladislavdragonenkov/marketplace/internal/service/checkout"

// Service оформляет заказы из корзин и ведёт их жизненный цикл.
type Service struct {
	store   domain.Storage
	logger  *log.Entry
	metrics *metrics.CheckoutMetrics
	tracer  trace.Tracer
	now     func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

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

// NewService создаёт сервис оформления заказов.
func NewService(store domain.Storage, logger *log.Entry, opts ...Option) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}
	s := &Service{
		store:  store,
		logger: logger,
		tracer: otel.Tracer(tracerName),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceOrderRequest содержит данные оформления заказа.
type PlaceOrderRequest struct {
	OwnerID         string
	ShippingAddress string
	ContactInfo     string
}

// PlaceOrder превращает самую свежую активную корзину владельца в заказ.
// Всё выполняется в одной транзакции: блокировка корзины, чтение текущих цен,
// создание заказа и снимков позиций, условная деактивация корзины, таймлайн и outbox.
// Любая ошибка откатывает все изменения.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.PlaceOrder", trace.WithAttributes(attribute.String("owner_id", req.OwnerID)))
	defer span.End()

	start := time.Now()
	order, err := s.placeOrder(ctx, req)
	s.metrics.RecordCheckoutDuration(time.Since(start))
	if err != nil {
		s.metrics.RecordCheckoutFailed(string(domain.KindOf(err)))
		span.RecordError(err)
		span.SetStatus(codes.Error, domain.MessageOf(err))
		entry := s.logger.WithError(err).WithField("owner_id", req.OwnerID)
		if domain.KindOf(err) == domain.KindInternal {
			entry.Error("place order failed")
		} else {
			entry.Info("place order rejected")
		}
		return domain.Order{}, err
	}

	total, _ := order.TotalPrice.Float64()
	s.metrics.RecordOrderPlaced(total)
	s.metrics.RecordTimelineEvent()
	s.metrics.RecordOutboxEvent()
	span.SetAttributes(attribute.String("order_id", order.ID), attribute.String("order_reference", order.Reference))
	s.logger.WithFields(log.Fields{
		"order_id":  order.ID,
		"reference": order.Reference,
		"owner_id":  order.OwnerID,
		"store_id":  order.StoreID,
		"total":     order.TotalPrice.StringFixed(domain.MoneyScale),
		"items":     len(order.Items),
	}).Info("order placed")
	return order, nil
}

func (s *Service) placeOrder(ctx context.Context, req PlaceOrderRequest) (domain.Order, error) {
	if req.OwnerID == "" {
		return domain.Order{}, domain.ErrIdentityRequired
	}

	var order domain.Order
	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		active, err := tx.Carts().LatestActive(ctx, req.OwnerID, true)
		if errors.Is(err, domain.ErrCartNotFound) {
			return domain.ErrNoActiveCart
		}
		if err != nil {
			return err
		}

		shipping := strings.TrimSpace(req.ShippingAddress)
		contact := strings.TrimSpace(req.ContactInfo)
		if shipping == "" || contact == "" {
			return domain.ErrShippingRequired
		}

		lines, err := cart.PricedLines(ctx, tx, active.ID)
		if err != nil {
			return err
		}
		total := domain.LinesTotal(lines)
		if total.IsZero() {
			return domain.ErrCartEmpty
		}

		now := s.now()
		order = domain.Order{
			ID:              uuid.NewString(),
			CartID:          active.ID,
			OwnerID:         req.OwnerID,
			StoreID:         active.StoreID,
			TotalPrice:      total,
			Status:          domain.OrderStatusPending,
			ShippingAddress: shipping,
			ContactInfo:     contact,
			Reference:       domain.NewOrderReference(),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		for _, line := range lines {
			// Товар удалён после добавления в корзину: строка стоит 0 и в заказ не попадает.
			if !line.Available {
				continue
			}
			order.Items = append(order.Items, domain.OrderItem{
				ID:              uuid.NewString(),
				OrderID:         order.ID,
				ProductID:       line.Item.ProductID,
				ProductName:     line.ProductName,
				Quantity:        line.Item.Quantity,
				PriceAtPurchase: line.UnitPrice,
			})
		}
		if errs := order.ValidateInvariants(); len(errs) > 0 {
			return errors.Join(errs...)
		}

		if err := tx.Orders().Create(ctx, order); err != nil {
			return err
		}
		if err := tx.Carts().Deactivate(ctx, active.ID); err != nil {
			return err
		}
		placed, err := domain.NewTimelineEvent(order.ID, domain.TimelineOrderPlaced, req.OwnerID, "order placed from cart "+active.ID, now)
		if err != nil {
			return err
		}
		if err := tx.Timeline().Append(ctx, placed); err != nil {
			return err
		}
		return outbox.Enqueue(ctx, tx.Outbox(), domain.AggregateOrder, order.ID, domain.EventOrderPlaced, domain.OrderPlacedEvent{
			OrderID:     order.ID,
			Reference:   order.Reference,
			OwnerID:     order.OwnerID,
			StoreID:     order.StoreID,
			TotalPrice:  order.TotalPrice.StringFixed(domain.MoneyScale),
			ItemCount:   len(order.Items),
			ContactInfo: order.ContactInfo,
			PlacedAt:    now,
		})
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// GetOrder возвращает заказ владельца; чужой заказ неотличим от отсутствующего.
func (s *Service) GetOrder(ctx context.Context, ownerID, orderID string) (domain.Order, error) {
	if ownerID == "" {
		return domain.Order{}, domain.ErrIdentityRequired
	}
	order, err := s.store.Orders().Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.OwnerID != ownerID {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

// ListOrders возвращает заказы владельца, новые первыми.
func (s *Service) ListOrders(ctx context.Context, ownerID string, limit int) ([]domain.Order, error) {
	if ownerID == "" {
		return nil, domain.ErrIdentityRequired
	}
	return s.store.Orders().ListByOwner(ctx, ownerID, limit)
}

// ListStoreOrders возвращает заказы магазина; доступно только владельцу магазина.
func (s *Service) ListStoreOrders(ctx context.Context, actorID, storeID string, limit int) ([]domain.Order, error) {
	if actorID == "" {
		return nil, domain.ErrIdentityRequired
	}
	store, err := s.store.Catalog().GetStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if store.OwnerID != actorID {
		return nil, domain.ErrForbidden
	}
	return s.store.Orders().ListByStore(ctx, storeID, limit)
}

// Timeline возвращает события заказа владельца.
func (s *Service) Timeline(ctx context.Context, ownerID, orderID string) ([]domain.TimelineEvent, error) {
	if _, err := s.GetOrder(ctx, ownerID, orderID); err != nil {
		return nil, err
	}
	return s.store.Timeline().List(ctx, orderID)
}

// AdvanceStatusRequest описывает смену статуса заказа продавцом.
type AdvanceStatusRequest struct {
	ActorID        string
	OrderID        string
	Status         domain.OrderStatus
	TrackingNumber string
	Reason         string
}

// AdvanceStatus двигает заказ по жизненному циклу. Доступно владельцу магазина заказа.
func (s *Service) AdvanceStatus(ctx context.Context, req AdvanceStatusRequest) (domain.Order, error) {
	if req.ActorID == "" {
		return domain.Order{}, domain.ErrIdentityRequired
	}
	if !req.Status.Valid() {
		return domain.Order{}, domain.ErrOrderStatusUnknown
	}

	var order domain.Order
	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		var err error
		order, err = tx.Orders().Get(ctx, req.OrderID)
		if err != nil {
			return err
		}
		store, err := tx.Catalog().GetStore(ctx, order.StoreID)
		if err != nil {
			return err
		}
		if store.OwnerID != req.ActorID {
			return domain.ErrForbidden
		}
		if req.TrackingNumber != "" {
			order.TrackingNumber = strings.TrimSpace(req.TrackingNumber)
		}
		return TransitionInTx(ctx, tx, &order, Transition{Next: req.Status, ActorID: req.ActorID, Reason: req.Reason, At: s.now()})
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.recordTransition(order)
	return order, nil
}

// CancelOrder отменяет заказ по инициативе покупателя.
func (s *Service) CancelOrder(ctx context.Context, ownerID, orderID, reason string) (domain.Order, error) {
	if ownerID == "" {
		return domain.Order{}, domain.ErrIdentityRequired
	}
	if strings.TrimSpace(reason) == "" {
		reason = "cancelled by customer"
	}

	var order domain.Order
	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		var err error
		order, err = tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if order.OwnerID != ownerID {
			return domain.ErrOrderNotFound
		}
		return TransitionInTx(ctx, tx, &order, Transition{Next: domain.OrderStatusCancelled, ActorID: ownerID, Reason: reason, At: s.now()})
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.recordTransition(order)
	return order, nil
}

func (s *Service) recordTransition(order domain.Order) {
	s.metrics.RecordOrderTransition(string(order.Status))
	s.metrics.RecordTimelineEvent()
	s.metrics.RecordOutboxEvent()
	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"status":   order.Status,
		"version":  order.Version,
	}).Info("order status changed")
}

// Transition описывает запрошенный переход статуса заказа.
type Transition struct {
	Next    domain.OrderStatus
	ActorID string // пусто для системных переходов
	Reason  string
	At      time.Time
}

// TransitionInTx применяет переход статуса внутри транзакции tx: сохраняет заказ с проверкой
// версии, пишет событие таймлайна и кладёт order.status_changed в outbox.
// При успехе order.Version соответствует сохранённой версии.
func TransitionInTx(ctx context.Context, tx domain.Repositories, order *domain.Order, t Transition) error {
	from, next, now := order.Status, t.Next, t.At
	if err := order.TransitionTo(next, now); err != nil {
		return err
	}
	if err := tx.Orders().Save(ctx, *order); err != nil {
		return err
	}
	order.Version++

	reason := t.Reason
	if reason == "" {
		reason = string(from) + " -> " + string(next)
	}
	changed, err := domain.NewTimelineEvent(order.ID, domain.TimelineStatusChanged, t.ActorID, reason, now)
	if err != nil {
		return err
	}
	if err := tx.Timeline().Append(ctx, changed); err != nil {
		return err
	}
	return outbox.Enqueue(ctx, tx.Outbox(), domain.AggregateOrder, order.ID, domain.EventOrderStatusChanged, domain.OrderStatusChangedEvent{
		OrderID:        order.ID,
		Reference:      order.Reference,
		From:           string(from),
		To:             string(next),
		TrackingNumber: order.TrackingNumber,
		Reason:         reason,
		ContactInfo:    order.ContactInfo,
		ChangedAt:      now,
	})
}
