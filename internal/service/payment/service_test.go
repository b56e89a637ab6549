package payment_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/cart"
	"github.com/vladislavdragonenkov/marketplace/internal/service/checkout"
	"github.com/vladislavdragonenkov/marketplace/internal/service/payment"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

const buyer = "buyer-1"

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "test")
}

// stubGateway отдаёт заранее настроенный ответ и считает вызовы.
type stubGateway struct {
	status   string
	err      error
	rejected map[string]error // ответы для отдельных reference
	calls    atomic.Int32
}

func (g *stubGateway) Verify(_ context.Context, reference string) (domain.GatewayVerification, error) {
	g.calls.Add(1)
	if err, ok := g.rejected[reference]; ok {
		return domain.GatewayVerification{}, err
	}
	if g.err != nil {
		return domain.GatewayVerification{}, g.err
	}
	return domain.GatewayVerification{Status: g.status, Amount: 2500}, nil
}

type fixture struct {
	store    *memory.Store
	checkout *checkout.Service
	gateway  *stubGateway
	payments *payment.Service
	order    domain.Order
}

func newFixture(t *testing.T, opts ...payment.Option) fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Now().UTC()

	require.NoError(t, store.Catalog().CreateStore(ctx, domain.Store{ID: "store-1", OwnerID: "seller-1", Name: "Shop", CreatedAt: now}))
	require.NoError(t, store.Catalog().CreateProduct(ctx, domain.Product{
		ID:        "product-a",
		StoreID:   "store-1",
		Name:      "A",
		UnitPrice: decimal.RequireFromString("12.50"),
		IsActive:  true,
		CreatedAt: now,
	}))

	carts := cart.NewService(store, loggerForTests())
	_, err := carts.AddLine(ctx, cart.AddLineRequest{OwnerID: buyer, StoreID: "store-1", ProductID: "product-a", Quantity: 2})
	require.NoError(t, err)

	orders := checkout.NewService(store, loggerForTests())
	order, err := orders.PlaceOrder(ctx, checkout.PlaceOrderRequest{OwnerID: buyer, ShippingAddress: "1 Main St", ContactInfo: "+1"})
	require.NoError(t, err)

	gateway := &stubGateway{status: "success"}
	opts = append([]payment.Option{payment.WithRetry(payment.RetryConfig{MaxAttempts: 1})}, opts...)
	return fixture{
		store:    store,
		checkout: orders,
		gateway:  gateway,
		payments: payment.NewService(store, gateway, loggerForTests(), opts...),
		order:    order,
	}
}

func (f fixture) initiate(t *testing.T) domain.Payment {
	t.Helper()
	p, err := f.payments.InitiatePayment(context.Background(), payment.InitiateRequest{OwnerID: buyer, OrderID: f.order.ID})
	require.NoError(t, err)
	return p
}

func (f fixture) outboxTypes(t *testing.T) []string {
	t.Helper()
	pending, err := f.store.Outbox().PullPending(context.Background(), 100)
	require.NoError(t, err)
	types := make([]string, 0, len(pending))
	for _, msg := range pending {
		types = append(types, msg.EventType)
	}
	return types
}

func TestInitiatePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.payments.InitiatePayment(ctx, payment.InitiateRequest{OrderID: f.order.ID})
	require.ErrorIs(t, err, domain.ErrIdentityRequired)

	_, err = f.payments.InitiatePayment(ctx, payment.InitiateRequest{OwnerID: "intruder", OrderID: f.order.ID})
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	p := f.initiate(t)
	require.Equal(t, f.order.ID, p.OrderID)
	require.NotEmpty(t, p.Reference)
	require.True(t, p.Amount.Equal(decimal.RequireFromString("25.00")))
	require.Equal(t, domain.PaymentStatusPending, p.Status)
	require.False(t, p.Verified)
	require.Equal(t, payment.DefaultMethod, p.Method)

	list, err := f.payments.ListPayments(ctx, buyer, f.order.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	_, err = f.payments.ListPayments(ctx, "intruder", f.order.ID)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	_, err = f.checkout.CancelOrder(ctx, buyer, f.order.ID, "")
	require.NoError(t, err)
	_, err = f.payments.InitiatePayment(ctx, payment.InitiateRequest{OwnerID: buyer, OrderID: f.order.ID})
	require.ErrorIs(t, err, domain.ErrOrderNotPayable)
	require.Equal(t, domain.KindInvalidState, domain.KindOf(err))
}

func TestVerifyPayment_SuccessAdvancesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.initiate(t)

	result, err := f.payments.VerifyPayment(ctx, p.Reference)
	require.NoError(t, err)
	require.False(t, result.AlreadyVerified)
	require.True(t, result.OrderAdvanced)
	require.True(t, result.Payment.Verified)
	require.Equal(t, domain.PaymentStatusSuccessful, result.Payment.Status)
	require.False(t, result.Payment.PaidAt.IsZero())

	order, err := f.store.Orders().Get(ctx, f.order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusProcessing, order.Status)

	require.Equal(t, []string{
		domain.EventOrderPlaced,
		domain.EventOrderStatusChanged,
		domain.EventPaymentVerified,
	}, f.outboxTypes(t))
}

func TestVerifyPayment_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.initiate(t)

	_, err := f.payments.VerifyPayment(ctx, p.Reference)
	require.NoError(t, err)
	before := f.outboxTypes(t)
	stored, err := f.store.Payments().GetByReference(ctx, p.Reference, false)
	require.NoError(t, err)

	again, err := f.payments.VerifyPayment(ctx, p.Reference)
	require.NoError(t, err)
	require.True(t, again.AlreadyVerified)
	require.False(t, again.OrderAdvanced)
	require.Equal(t, before, f.outboxTypes(t))

	after, err := f.store.Payments().GetByReference(ctx, p.Reference, false)
	require.NoError(t, err)
	require.Equal(t, stored, after)
}

func TestVerifyPayment_ConcurrentCallsVerifyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.initiate(t)

	var (
		wg    sync.WaitGroup
		fresh atomic.Int32
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.payments.VerifyPayment(ctx, p.Reference)
			if err != nil {
				t.Errorf("verify: %v", err)
				return
			}
			if !result.AlreadyVerified {
				fresh.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), fresh.Load())
	order, err := f.store.Orders().Get(ctx, f.order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusProcessing, order.Status)
	require.Equal(t, int64(1), order.Version)
}

func TestVerifyPayment_OrderNoLongerPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.initiate(t)

	_, err := f.checkout.CancelOrder(ctx, buyer, f.order.ID, "")
	require.NoError(t, err)

	result, err := f.payments.VerifyPayment(ctx, p.Reference)
	require.NoError(t, err)
	require.True(t, result.Payment.Verified)
	require.False(t, result.OrderAdvanced)

	order, err := f.store.Orders().Get(ctx, f.order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, order.Status)
}

func TestVerifyPayment_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("empty reference", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.payments.VerifyPayment(ctx, "  ")
		require.ErrorIs(t, err, domain.ErrPaymentReferenceRequired)
		require.Zero(t, f.gateway.calls.Load())
	})

	t.Run("gateway reports failure", func(t *testing.T) {
		f := newFixture(t)
		p := f.initiate(t)
		f.gateway.status = "failed"

		_, err := f.payments.VerifyPayment(ctx, p.Reference)
		require.ErrorIs(t, err, domain.ErrPaymentNotSuccessful)
		require.Equal(t, domain.KindInvalidState, domain.KindOf(err))

		stored, err := f.store.Payments().GetByReference(ctx, p.Reference, false)
		require.NoError(t, err)
		require.False(t, stored.Verified)
		require.Equal(t, domain.PaymentStatusPending, stored.Status)
	})

	t.Run("unknown reference", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.payments.VerifyPayment(ctx, "no-such-ref")
		require.ErrorIs(t, err, domain.ErrPaymentNotFound)
		require.Equal(t, []string{domain.EventOrderPlaced}, f.outboxTypes(t))
	})

	t.Run("gateway unreachable", func(t *testing.T) {
		f := newFixture(t)
		p := f.initiate(t)
		f.gateway.err = errors.New("dial tcp: connection refused")

		_, err := f.payments.VerifyPayment(ctx, p.Reference)
		require.Equal(t, domain.KindUpstream, domain.KindOf(err))
		require.ErrorIs(t, err, domain.ErrGatewayUnavailable)
		require.Equal(t, "Error contacting Paystack.", domain.MessageOf(err))

		order, err := f.store.Orders().Get(ctx, f.order.ID)
		require.NoError(t, err)
		require.Equal(t, domain.OrderStatusPending, order.Status)
	})

	t.Run("gateway rejects request", func(t *testing.T) {
		f := newFixture(t)
		p := f.initiate(t)
		f.gateway.err = &payment.StatusError{Code: 401}

		_, err := f.payments.VerifyPayment(ctx, p.Reference)
		require.Equal(t, domain.KindUpstream, domain.KindOf(err))
		require.Equal(t, "Verification failed with Paystack.", domain.MessageOf(err))
	})
}

func TestVerifyPayment_BreakerStopsCallingGateway(t *testing.T) {
	breaker := payment.NewCircuitBreaker(2, time.Hour, loggerForTests())
	f := newFixture(t, payment.WithBreaker(breaker))
	ctx := context.Background()
	p := f.initiate(t)
	f.gateway.err = errors.New("timeout")

	for i := 0; i < 2; i++ {
		_, err := f.payments.VerifyPayment(ctx, p.Reference)
		require.Equal(t, domain.KindUpstream, domain.KindOf(err))
	}
	require.Equal(t, payment.CircuitOpen, breaker.State())

	_, err := f.payments.VerifyPayment(ctx, p.Reference)
	require.ErrorIs(t, err, payment.ErrBreakerOpen)
	require.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	require.Equal(t, domain.KindUpstream, domain.KindOf(err))
	require.EqualError(t, err, "Failed to verify payment: circuit breaker is open")
	require.Equal(t, int32(2), f.gateway.calls.Load())
}

func TestVerifyPayment_UnknownReferencesDoNotOpenBreaker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.initiate(t)
	f.gateway.rejected = map[string]error{"bogus-ref": &payment.StatusError{Code: 404}}

	for i := 0; i < 10; i++ {
		_, err := f.payments.VerifyPayment(ctx, "bogus-ref")
		require.Equal(t, domain.KindUpstream, domain.KindOf(err))
		require.Equal(t, "Verification failed with Paystack.", domain.MessageOf(err))
	}

	res, err := f.payments.VerifyPayment(ctx, p.Reference)
	require.NoError(t, err)
	require.False(t, res.AlreadyVerified)
}

func TestVerifyPayment_CancelledCallerDoesNotOpenBreaker(t *testing.T) {
	breaker := payment.NewCircuitBreaker(1, time.Hour, loggerForTests())
	f := newFixture(t, payment.WithBreaker(breaker))
	p := f.initiate(t)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	f.gateway.err = context.Canceled
	_, err := f.payments.VerifyPayment(cancelled, p.Reference)
	require.Error(t, err)
	require.Equal(t, payment.CircuitClosed, breaker.State())

	f.gateway.err = nil
	_, err = f.payments.VerifyPayment(context.Background(), p.Reference)
	require.NoError(t, err)
}
