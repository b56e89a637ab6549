package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/cart"
	"github.com/vladislavdragonenkov/marketplace/internal/service/checkout"
)

func TestCartRepository_PostgresActiveCartAndItems(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewCartRepository(store)
	ctx := context.Background()

	shop, product := seedCatalog(t, store, "c", "4.50")
	now := time.Now().UTC().Round(time.Microsecond)

	first, err := repo.GetOrCreateActive(ctx, "buyer", shop.ID, now)
	require.NoError(t, err)
	again, err := repo.GetOrCreateActive(ctx, "buyer", shop.ID, now)
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)

	_, err = repo.GetOrCreateActive(ctx, "buyer", "missing", now)
	require.ErrorIs(t, err, domain.ErrStoreNotFound)

	item, err := repo.UpsertItem(ctx, first.ID, product.ID, 2, now)
	require.NoError(t, err)
	item, err = repo.UpsertItem(ctx, first.ID, product.ID, 3, now)
	require.NoError(t, err)
	require.Equal(t, int32(5), item.Quantity)

	_, err = repo.UpsertItem(ctx, first.ID, "missing", 1, now)
	require.ErrorIs(t, err, domain.ErrProductNotFound)

	updated, err := repo.SetItemQuantity(ctx, item.ID, 1, now)
	require.NoError(t, err)
	require.Equal(t, int32(1), updated.Quantity)
	_, err = repo.SetItemQuantity(ctx, item.ID, 0, now)
	require.ErrorIs(t, err, domain.ErrItemQtyInvalid)

	items, err := repo.ListItems(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)

	latest, err := repo.LatestActive(ctx, "buyer", false)
	require.NoError(t, err)
	require.Equal(t, first.ID, latest.ID)

	require.NoError(t, repo.Deactivate(ctx, first.ID))
	require.ErrorIs(t, repo.Deactivate(ctx, first.ID), domain.ErrCartNotActive)
	require.ErrorIs(t, repo.Deactivate(ctx, "missing"), domain.ErrCartNotFound)

	_, err = repo.UpsertItem(ctx, first.ID, product.ID, 1, now)
	require.ErrorIs(t, err, domain.ErrCartNotActive)

	_, err = repo.LatestActive(ctx, "buyer", false)
	require.ErrorIs(t, err, domain.ErrCartNotFound)

	next, err := repo.GetOrCreateActive(ctx, "buyer", shop.ID, now)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, next.ID)

	require.NoError(t, repo.DeleteItem(ctx, item.ID))
	require.ErrorIs(t, repo.DeleteItem(ctx, item.ID), domain.ErrCartItemNotFound)
}

func TestCheckout_PostgresConcurrentPlaceOrderConsumesCartOnce(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()

	shop, product := seedCatalog(t, store, "race", "10.00")
	carts := cart.NewService(store, nil)
	_, err := carts.AddLine(ctx, cart.AddLineRequest{OwnerID: "buyer", StoreID: shop.ID, ProductID: product.ID, Quantity: 2})
	require.NoError(t, err)

	svc := checkout.NewService(store, nil)

	const attempts = 4
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		placed  []domain.Order
		rejects []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order, err := svc.PlaceOrder(ctx, checkout.PlaceOrderRequest{
				OwnerID:         "buyer",
				ShippingAddress: "1 Main St",
				ContactInfo:     "buyer@example.com",
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rejects = append(rejects, err)
				return
			}
			placed = append(placed, order)
		}()
	}
	wg.Wait()

	require.Len(t, placed, 1)
	require.Equal(t, "20.00", placed[0].TotalPrice.StringFixed(domain.MoneyScale))
	for _, err := range rejects {
		require.ErrorIs(t, err, domain.ErrNoActiveCart)
	}

	orders, err := store.Orders().ListByOwner(ctx, "buyer", 0)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	pending, err := store.Outbox().PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, domain.EventOrderPlaced, pending[0].EventType)
}

func TestStore_PostgresWithinTxRollsBack(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()

	shop, _ := seedCatalog(t, store, "tx", "1.00")
	now := time.Now().UTC()

	err := store.WithinTx(ctx, func(tx domain.Repositories) error {
		if _, err := tx.Carts().GetOrCreateActive(ctx, "buyer", shop.ID, now); err != nil {
			return err
		}
		return domain.ErrCartEmpty
	})
	require.ErrorIs(t, err, domain.ErrCartEmpty)

	_, err = store.Carts().LatestActive(ctx, "buyer", false)
	require.ErrorIs(t, err, domain.ErrCartNotFound)
}
