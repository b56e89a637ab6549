package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

func seedCatalog(t *testing.T, store *memory.Store) (domain.Store, domain.Product) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	shop := domain.Store{ID: "store-1", OwnerID: "seller-1", Name: "Shop", CreatedAt: now}
	require.NoError(t, store.Catalog().CreateStore(ctx, shop))

	product := domain.Product{
		ID:        "product-1",
		StoreID:   shop.ID,
		Name:      "Lamp",
		UnitPrice: decimal.RequireFromString("10.00"),
		IsActive:  true,
		CreatedAt: now,
	}
	require.NoError(t, store.Catalog().CreateProduct(ctx, product))
	return shop, product
}

func TestStore_WithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	shop, product := seedCatalog(t, store)
	now := time.Now().UTC()

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(tx domain.Repositories) error {
		cart, err := tx.Carts().GetOrCreateActive(ctx, "buyer-1", shop.ID, now)
		require.NoError(t, err)
		_, err = tx.Carts().UpsertItem(ctx, cart.ID, product.ID, 2, now)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.Carts().LatestActive(ctx, "buyer-1", false)
	require.ErrorIs(t, err, domain.ErrCartNotFound)
}

func TestStore_WithinTxCommits(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	shop, _ := seedCatalog(t, store)

	err := store.WithinTx(ctx, func(tx domain.Repositories) error {
		_, err := tx.Carts().GetOrCreateActive(ctx, "buyer-1", shop.ID, time.Now().UTC())
		return err
	})
	require.NoError(t, err)

	cart, err := store.Carts().LatestActive(ctx, "buyer-1", true)
	require.NoError(t, err)
	require.Equal(t, shop.ID, cart.StoreID)
}

func TestStore_WithinTxHonoursCancelledContext(t *testing.T) {
	store := memory.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.WithinTx(ctx, func(domain.Repositories) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}

func TestCartRepository_UpsertMergesQuantities(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	shop, product := seedCatalog(t, store)
	now := time.Now().UTC()

	cart, err := store.Carts().GetOrCreateActive(ctx, "buyer-1", shop.ID, now)
	require.NoError(t, err)
	again, err := store.Carts().GetOrCreateActive(ctx, "buyer-1", shop.ID, now)
	require.NoError(t, err)
	require.Equal(t, cart.ID, again.ID)

	first, err := store.Carts().UpsertItem(ctx, cart.ID, product.ID, 2, now)
	require.NoError(t, err)
	second, err := store.Carts().UpsertItem(ctx, cart.ID, product.ID, 3, now)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, int32(5), second.Quantity)

	items, err := store.Carts().ListItems(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestCartRepository_ConcurrentUpsertIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	shop, product := seedCatalog(t, store)
	now := time.Now().UTC()

	cart, err := store.Carts().GetOrCreateActive(ctx, "buyer-1", shop.ID, now)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Carts().UpsertItem(ctx, cart.ID, product.ID, 1, now)
		}()
	}
	wg.Wait()

	items, err := store.Carts().ListItems(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, int32(20), items[0].Quantity)
}

func TestCartRepository_DeactivateIsConditional(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	shop, _ := seedCatalog(t, store)

	cart, err := store.Carts().GetOrCreateActive(ctx, "buyer-1", shop.ID, time.Now().UTC())
	require.NoError(t, err)

	require.NoError(t, store.Carts().Deactivate(ctx, cart.ID))
	require.ErrorIs(t, store.Carts().Deactivate(ctx, cart.ID), domain.ErrCartNotActive)

	next, err := store.Carts().GetOrCreateActive(ctx, "buyer-1", shop.ID, time.Now().UTC())
	require.NoError(t, err)
	require.NotEqual(t, cart.ID, next.ID)
}

func TestCartRepository_LatestActivePrefersNewest(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	base := time.Now().UTC()
	require.NoError(t, store.Catalog().CreateStore(ctx, domain.Store{ID: "s1", OwnerID: "o", Name: "A"}))
	require.NoError(t, store.Catalog().CreateStore(ctx, domain.Store{ID: "s2", OwnerID: "o", Name: "B"}))

	_, err := store.Carts().GetOrCreateActive(ctx, "buyer-1", "s1", base)
	require.NoError(t, err)
	newer, err := store.Carts().GetOrCreateActive(ctx, "buyer-1", "s2", base.Add(time.Second))
	require.NoError(t, err)

	latest, err := store.Carts().LatestActive(ctx, "buyer-1", false)
	require.NoError(t, err)
	require.Equal(t, newer.ID, latest.ID)
}

func TestOrderRepository_SaveChecksVersion(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Now().UTC()
	order := domain.Order{
		ID:         "order-1",
		OwnerID:    "buyer-1",
		StoreID:    "store-1",
		Reference:  "ORD-00000001",
		Status:     domain.OrderStatusPending,
		TotalPrice: decimal.RequireFromString("10.00"),
		Items:      []domain.OrderItem{{ID: "i1", Quantity: 1, PriceAtPurchase: decimal.RequireFromString("10.00")}},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, store.Orders().Create(ctx, order))

	stale := order
	order.Status = domain.OrderStatusProcessing
	require.NoError(t, store.Orders().Save(ctx, order))

	stale.Status = domain.OrderStatusCancelled
	require.True(t, domain.IsVersionConflict(store.Orders().Save(ctx, stale)))

	stored, err := store.Orders().Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusProcessing, stored.Status)
	require.Equal(t, int64(1), stored.Version)

	orders, err := store.Orders().ListByOwner(ctx, "buyer-1", 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
}

func TestOrderRepository_CreateRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	order := domain.Order{ID: "order-1", OwnerID: "buyer-1", Reference: "ORD-0000000A", Status: domain.OrderStatusPending}
	require.NoError(t, store.Orders().Create(ctx, order))

	require.ErrorIs(t, store.Orders().Create(ctx, order), domain.ErrOrderExists)

	sameRef := order
	sameRef.ID = "order-2"
	err := store.Orders().Create(ctx, sameRef)
	require.ErrorIs(t, err, domain.ErrOrderReferenceTaken)
	require.Equal(t, domain.KindConflict, domain.KindOf(err))
	require.False(t, domain.IsVersionConflict(err))
}

func TestOutboxRepository_PullPendingOldestFirst(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	first, err := store.Outbox().Enqueue(ctx, domain.OutboxMessage{AggregateType: "order", EventType: "a"})
	require.NoError(t, err)
	second, err := store.Outbox().Enqueue(ctx, domain.OutboxMessage{AggregateType: "order", EventType: "b"})
	require.NoError(t, err)

	stats, err := store.Outbox().Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.PendingCount)

	pending, err := store.Outbox().PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, first.ID, pending[0].ID)
	require.Equal(t, second.ID, pending[1].ID)

	require.NoError(t, store.Outbox().MarkSent(ctx, first.ID))
	require.NoError(t, store.Outbox().MarkFailed(ctx, second.ID))
	require.ErrorIs(t, store.Outbox().MarkSent(ctx, "missing"), domain.ErrOutboxPublish)

	pending, err = store.Outbox().PullPending(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestCatalogRepository_ListProductsFilters(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Now().UTC()
	catalog := store.Catalog()

	require.NoError(t, catalog.CreateStore(ctx, domain.Store{ID: "s1", OwnerID: "o", Name: "Shop"}))
	require.NoError(t, catalog.CreateCategory(ctx, domain.Category{ID: "c1", Name: "Lighting", Slug: "lighting", IsActive: true}))
	require.ErrorIs(t, catalog.CreateCategory(ctx, domain.Category{ID: "c2", Name: "Lighting", Slug: "lighting"}), domain.ErrSlugTaken)

	products := []domain.Product{
		{ID: "p1", StoreID: "s1", CategoryID: "c1", Name: "Desk lamp", UnitPrice: decimal.RequireFromString("15"), IsActive: true, CreatedAt: now},
		{ID: "p2", StoreID: "s1", Name: "Chair", UnitPrice: decimal.RequireFromString("40"), IsActive: true, CreatedAt: now.Add(time.Second)},
		{ID: "p3", StoreID: "s1", CategoryID: "c1", Name: "Old lamp", UnitPrice: decimal.RequireFromString("5"), IsActive: false, CreatedAt: now},
	}
	for _, p := range products {
		require.NoError(t, catalog.CreateProduct(ctx, p))
	}

	got, err := catalog.ListProducts(ctx, domain.ProductFilter{CategorySlug: "lighting"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "p1", got[0].ID)

	gt := decimal.RequireFromString("10")
	got, err = catalog.ListProducts(ctx, domain.ProductFilter{PriceGT: &gt, Ordering: domain.OrderByPriceDesc})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "p2", got[0].ID)

	got, err = catalog.ListProducts(ctx, domain.ProductFilter{Search: "light"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "p1", got[0].ID)

	got, err = catalog.ListProducts(ctx, domain.ProductFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "p1", got[0].ID)
}
