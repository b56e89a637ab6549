package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

func TestOrderRepository_PostgresCreateGetListAndSave(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	order1 := seedOrder(t, store, "order-1", "buyer-1", "store-a", now.Add(-2*time.Minute))
	order2 := seedOrder(t, store, "order-2", "buyer-1", "store-b", now.Add(-time.Minute))

	got, err := repo.Get(ctx, order1.ID)
	require.NoError(t, err)
	require.Equal(t, order1.OwnerID, got.OwnerID)
	require.Equal(t, domain.OrderStatusPending, got.Status)
	require.True(t, got.TotalPrice.Equal(decimal.RequireFromString("20.00")))
	require.Len(t, got.Items, 1)
	require.Empty(t, got.Items[0].ProductID)
	require.True(t, got.Items[0].PriceAtPurchase.Equal(decimal.RequireFromString("10.00")))

	listed, err := repo.ListByOwner(ctx, "buyer-1", 1)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, order2.ID, listed[0].ID)
	require.Len(t, listed[0].Items, 1)

	all, err := repo.ListByOwner(ctx, "buyer-1", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)

	byStore, err := repo.ListByStore(ctx, "store-a", 0)
	require.NoError(t, err)
	require.Len(t, byStore, 1)
	require.Equal(t, order1.ID, byStore[0].ID)

	got.Status = domain.OrderStatusShipped
	got.TrackingNumber = "TRK-1"
	got.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, repo.Save(ctx, got))

	updated, err := repo.Get(ctx, order1.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusShipped, updated.Status)
	require.Equal(t, "TRK-1", updated.TrackingNumber)
	require.Equal(t, got.Version+1, updated.Version)
}

func TestOrderRepository_PostgresErrors(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	_, err := repo.Get(ctx, "missing-order")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	require.ErrorIs(t, repo.Save(ctx, domain.Order{ID: "missing-order", Status: domain.OrderStatusCancelled}), domain.ErrOrderNotFound)

	base := seedOrder(t, store, "order-errors", "buyer-2", "store-a", time.Now().UTC())
	require.ErrorIs(t, repo.Create(ctx, base), domain.ErrOrderExists)

	sameRef := base
	sameRef.ID = "order-errors-2"
	sameRef.Items = nil
	err = repo.Create(ctx, sameRef)
	require.ErrorIs(t, err, domain.ErrOrderReferenceTaken)
	require.Equal(t, domain.KindConflict, domain.KindOf(err))

	stale := base
	stale.Status = domain.OrderStatusCancelled
	stale.Version = 42
	require.ErrorIs(t, repo.Save(ctx, stale), domain.ErrOrderVersionConflict)
}

func TestPostgresErrorClassification(t *testing.T) {
	require.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	require.False(t, isUniqueViolation(&pgconn.PgError{Code: "22001"}))
	require.False(t, isUniqueViolation(errors.New("plain error")))
	require.True(t, isCheckViolation(&pgconn.PgError{Code: "23514"}))

	name, ok := violatedConstraint(&pgconn.PgError{Code: "23503", ConstraintName: "products_store_id_fkey"}, pgForeignKeyViolation)
	require.True(t, ok)
	require.Equal(t, "products_store_id_fkey", name)

	_, ok = violatedConstraint(&pgconn.PgError{Code: "23505"}, pgForeignKeyViolation)
	require.False(t, ok)
}
