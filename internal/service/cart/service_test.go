package cart_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/cart"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "test")
}

type fixture struct {
	store   *memory.Store
	service *cart.Service
}

func newFixture(t *testing.T, opts ...cart.Option) fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Now().UTC()

	if err := store.Catalog().CreateStore(ctx, domain.Store{ID: "store-1", OwnerID: "seller", Name: "Shop", CreatedAt: now}); err != nil {
		t.Fatalf("create store: %v", err)
	}
	products := []domain.Product{
		{ID: "p-10", StoreID: "store-1", Name: "Ten", UnitPrice: decimal.RequireFromString("10.00"), IsActive: true, CreatedAt: now},
		{ID: "p-5", StoreID: "store-1", Name: "Five", UnitPrice: decimal.RequireFromString("5.00"), IsActive: true, CreatedAt: now},
		{ID: "p-off", StoreID: "store-1", Name: "Off", UnitPrice: decimal.RequireFromString("1.00"), IsActive: false, CreatedAt: now},
	}
	for _, p := range products {
		if err := store.Catalog().CreateProduct(ctx, p); err != nil {
			t.Fatalf("create product: %v", err)
		}
	}

	return fixture{store: store, service: cart.NewService(store, loggerForTests(), opts...)}
}

func TestAddLine_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  cart.AddLineRequest
		want error
	}{
		{name: "no owner", req: cart.AddLineRequest{StoreID: "store-1", ProductID: "p-10", Quantity: 1}, want: domain.ErrIdentityRequired},
		{name: "zero quantity", req: cart.AddLineRequest{OwnerID: "u", StoreID: "store-1", ProductID: "p-10", Quantity: 0}, want: domain.ErrItemQtyInvalid},
		{name: "negative quantity", req: cart.AddLineRequest{OwnerID: "u", StoreID: "store-1", ProductID: "p-10", Quantity: -2}, want: domain.ErrItemQtyInvalid},
		{name: "no store and no default", req: cart.AddLineRequest{OwnerID: "u", ProductID: "p-10", Quantity: 1}, want: domain.ErrStoreRequired},
		{name: "unknown product", req: cart.AddLineRequest{OwnerID: "u", StoreID: "store-1", ProductID: "nope", Quantity: 1}, want: domain.ErrProductNotFound},
		{name: "inactive product", req: cart.AddLineRequest{OwnerID: "u", StoreID: "store-1", ProductID: "p-off", Quantity: 1}, want: domain.ErrProductUnavailable},
		{name: "unknown store", req: cart.AddLineRequest{OwnerID: "u", StoreID: "store-x", ProductID: "p-10", Quantity: 1}, want: domain.ErrStoreNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.service.AddLine(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := f.store.Carts().LatestActive(ctx, "u", false); !errors.Is(err, domain.ErrCartNotFound) {
		t.Fatalf("failed adds must not create a cart, got %v", err)
	}
}

func TestAddLine_MergesAndUsesDefaultStore(t *testing.T) {
	f := newFixture(t, cart.WithDefaultStore("store-1"))
	ctx := context.Background()

	first, err := f.service.AddLine(ctx, cart.AddLineRequest{OwnerID: "u", ProductID: "p-10", Quantity: 2})
	if err != nil {
		t.Fatalf("add line: %v", err)
	}
	second, err := f.service.AddLine(ctx, cart.AddLineRequest{OwnerID: "u", ProductID: "p-10", Quantity: 3})
	if err != nil {
		t.Fatalf("add line: %v", err)
	}
	if first.ID != second.ID || second.Quantity != 5 {
		t.Fatalf("expected merged line with qty 5, got %+v", second)
	}

	lines, err := f.service.ListLines(ctx, "u")
	if err != nil {
		t.Fatalf("list lines: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d", len(lines))
	}
}

func TestAddLine_ConcurrentAddsMerge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.service.AddLine(ctx, cart.AddLineRequest{OwnerID: "u", StoreID: "store-1", ProductID: "p-5", Quantity: 1}); err != nil {
				t.Errorf("add line: %v", err)
			}
		}()
	}
	wg.Wait()

	carts, err := f.store.Carts().ListActive(ctx, "u")
	if err != nil {
		t.Fatalf("list carts: %v", err)
	}
	if len(carts) != 1 {
		t.Fatalf("expected exactly one active cart, got %d", len(carts))
	}
	lines, err := f.service.ListLines(ctx, "u")
	if err != nil {
		t.Fatalf("list lines: %v", err)
	}
	if len(lines) != 1 || lines[0].Item.Quantity != 10 {
		t.Fatalf("expected a single line with qty 10, got %+v", lines)
	}
}

func TestGetActiveCart_Total(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, req := range []cart.AddLineRequest{
		{OwnerID: "u", StoreID: "store-1", ProductID: "p-10", Quantity: 2},
		{OwnerID: "u", StoreID: "store-1", ProductID: "p-5", Quantity: 1},
	} {
		if _, err := f.service.AddLine(ctx, req); err != nil {
			t.Fatalf("add line: %v", err)
		}
	}

	view, err := f.service.GetActiveCart(ctx, "u")
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if view.Total != "25.00" {
		t.Fatalf("expected total 25.00, got %s", view.Total)
	}

	if _, err := f.service.GetActiveCart(ctx, "someone-else"); !errors.Is(err, domain.ErrNoActiveCart) {
		t.Fatalf("expected ErrNoActiveCart, got %v", err)
	}
}

func TestSetLineQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	line, err := f.service.AddLine(ctx, cart.AddLineRequest{OwnerID: "u", StoreID: "store-1", ProductID: "p-10", Quantity: 1})
	if err != nil {
		t.Fatalf("add line: %v", err)
	}

	updated, removed, err := f.service.SetLineQuantity(ctx, "u", line.ID, 7)
	if err != nil || removed || updated.Quantity != 7 {
		t.Fatalf("unexpected update result: %+v removed=%v err=%v", updated, removed, err)
	}

	if _, _, err := f.service.SetLineQuantity(ctx, "intruder", line.ID, 3); !errors.Is(err, domain.ErrCartItemNotFound) {
		t.Fatalf("expected ErrCartItemNotFound for foreign owner, got %v", err)
	}

	if _, removed, err := f.service.SetLineQuantity(ctx, "u", line.ID, 0); err != nil || !removed {
		t.Fatalf("expected line removal, removed=%v err=%v", removed, err)
	}
	if err := f.service.RemoveLine(ctx, "u", line.ID); !errors.Is(err, domain.ErrCartItemNotFound) {
		t.Fatalf("expected ErrCartItemNotFound after removal, got %v", err)
	}
}
