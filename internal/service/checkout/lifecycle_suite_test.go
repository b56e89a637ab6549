package checkout_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/cart"
	"github.com/vladislavdragonenkov/marketplace/internal/service/checkout"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
	"github.com/vladislavdragonenkov/marketplace/internal/service/payment"
)

type scriptedGateway struct {
	mu     sync.Mutex
	status string
	calls  int
}

func (g *scriptedGateway) Verify(context.Context, string) (domain.GatewayVerification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return domain.GatewayVerification{Status: g.status, PaidAt: time.Now().UTC()}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OutboxMessage
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

// OrderLifecycleSuite проводит заказ от корзины до доставки через сервисы,
// memory-хранилище и outbox worker.
type OrderLifecycleSuite struct {
	suite.Suite
	ctx       context.Context
	fx        fixture
	payments  *payment.Service
	gateway   *scriptedGateway
	published *recordingPublisher
	worker    *outbox.Worker
}

func TestOrderLifecycleSuite(t *testing.T) {
	suite.Run(t, new(OrderLifecycleSuite))
}

func (s *OrderLifecycleSuite) SetupTest() {
	s.ctx = context.Background()
	s.fx = newFixture(s.T())
	s.gateway = &scriptedGateway{status: "success"}
	s.payments = payment.NewService(s.fx.store, s.gateway, loggerForTests(),
		payment.WithRetry(payment.RetryConfig{MaxAttempts: 1}))
	s.published = &recordingPublisher{}
	s.worker = outbox.NewWorker(s.fx.store.Outbox(), s.published,
		outbox.WithLogger(loggerForTests()),
		outbox.WithRetryBaseDelay(0),
	)
}

func (s *OrderLifecycleSuite) placeOrder() domain.Order {
	_, err := s.fx.carts.AddLine(s.ctx, cart.AddLineRequest{OwnerID: buyer, ProductID: "product-a", Quantity: 2})
	s.Require().NoError(err)

	order, err := s.fx.checkout.PlaceOrder(s.ctx, checkout.PlaceOrderRequest{
		OwnerID:         buyer,
		ShippingAddress: "1 Main St",
		ContactInfo:     "buyer@example.com",
	})
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusPending, order.Status)
	return order
}

func (s *OrderLifecycleSuite) advance(orderID string, status domain.OrderStatus, tracking string) domain.Order {
	order, err := s.fx.checkout.AdvanceStatus(s.ctx, checkout.AdvanceStatusRequest{
		ActorID:        "seller-1",
		OrderID:        orderID,
		Status:         status,
		TrackingNumber: tracking,
	})
	s.Require().NoError(err)
	return order
}

func (s *OrderLifecycleSuite) TestSuccessfulLifecycle() {
	order := s.placeOrder()
	s.Require().Equal("20.00", order.TotalPrice.StringFixed(domain.MoneyScale))

	p, err := s.payments.InitiatePayment(s.ctx, payment.InitiateRequest{OwnerID: buyer, OrderID: order.ID})
	s.Require().NoError(err)
	s.Require().True(p.Amount.Equal(order.TotalPrice))

	res, err := s.payments.VerifyPayment(s.ctx, p.Reference)
	s.Require().NoError(err)
	s.Require().True(res.OrderAdvanced)
	s.Require().True(res.Payment.Verified)

	s.advance(order.ID, domain.OrderStatusShipped, "TRACK-1")
	delivered := s.advance(order.ID, domain.OrderStatusDelivered, "")
	s.Require().Equal(domain.OrderStatusDelivered, delivered.Status)
	s.Require().Equal("TRACK-1", delivered.TrackingNumber)

	timeline, err := s.fx.checkout.Timeline(s.ctx, buyer, order.ID)
	s.Require().NoError(err)
	s.Require().NotEmpty(timeline)
	s.Require().Equal(domain.TimelineOrderPlaced, timeline[0].Type)
	s.Require().Equal(buyer, timeline[0].ActorID)

	actors := make(map[string]bool)
	for _, e := range timeline {
		actors[e.ActorID] = true
	}
	s.Require().Equal(map[string]bool{buyer: true, "seller-1": true, domain.TimelineActorSystem: true}, actors)

	s.worker.ProcessOnce(s.ctx)
	s.Require().Equal([]string{
		domain.EventOrderPlaced,
		domain.EventOrderStatusChanged,
		domain.EventPaymentVerified,
		domain.EventOrderStatusChanged,
		domain.EventOrderStatusChanged,
	}, s.published.types())

	var verified domain.PaymentVerifiedEvent
	s.Require().NoError(json.Unmarshal(s.published.events[2].Payload, &verified))
	s.Require().Equal(order.Reference, verified.OrderReference)
	s.Require().Equal("buyer@example.com", verified.ContactInfo)

	stats, err := s.fx.store.Outbox().Stats(s.ctx)
	s.Require().NoError(err)
	s.Require().Zero(stats.PendingCount)
}

func (s *OrderLifecycleSuite) TestRepeatedVerificationIsIdempotent() {
	order := s.placeOrder()
	p, err := s.payments.InitiatePayment(s.ctx, payment.InitiateRequest{OwnerID: buyer, OrderID: order.ID})
	s.Require().NoError(err)

	_, err = s.payments.VerifyPayment(s.ctx, p.Reference)
	s.Require().NoError(err)
	s.worker.ProcessOnce(s.ctx)
	before := len(s.published.types())

	again, err := s.payments.VerifyPayment(s.ctx, p.Reference)
	s.Require().NoError(err)
	s.Require().True(again.AlreadyVerified)
	s.Require().False(again.OrderAdvanced)

	s.worker.ProcessOnce(s.ctx)
	s.Require().Len(s.published.types(), before)
}

func (s *OrderLifecycleSuite) TestCancelledOrderIsNotPayable() {
	order := s.placeOrder()

	cancelled, err := s.fx.checkout.CancelOrder(s.ctx, buyer, order.ID, "")
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusCancelled, cancelled.Status)

	_, err = s.payments.InitiatePayment(s.ctx, payment.InitiateRequest{OwnerID: buyer, OrderID: order.ID})
	s.Require().ErrorIs(err, domain.ErrOrderNotPayable)
}

func (s *OrderLifecycleSuite) TestLatePaymentLeavesCancelledOrder() {
	order := s.placeOrder()
	p, err := s.payments.InitiatePayment(s.ctx, payment.InitiateRequest{OwnerID: buyer, OrderID: order.ID})
	s.Require().NoError(err)

	_, err = s.fx.checkout.CancelOrder(s.ctx, buyer, order.ID, "changed my mind")
	s.Require().NoError(err)

	res, err := s.payments.VerifyPayment(s.ctx, p.Reference)
	s.Require().NoError(err)
	s.Require().False(res.OrderAdvanced)

	current, err := s.fx.checkout.GetOrder(s.ctx, buyer, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusCancelled, current.Status)
}

func (s *OrderLifecycleSuite) TestFailedGatewayKeepsOrderPending() {
	order := s.placeOrder()
	p, err := s.payments.InitiatePayment(s.ctx, payment.InitiateRequest{OwnerID: buyer, OrderID: order.ID})
	s.Require().NoError(err)

	s.gateway.status = "failed"
	_, err = s.payments.VerifyPayment(s.ctx, p.Reference)
	s.Require().ErrorIs(err, domain.ErrPaymentNotSuccessful)

	current, err := s.fx.checkout.GetOrder(s.ctx, buyer, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusPending, current.Status)

	s.worker.ProcessOnce(s.ctx)
	s.Require().Equal([]string{domain.EventOrderPlaced}, s.published.types())
}
