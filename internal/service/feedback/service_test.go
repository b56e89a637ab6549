package feedback_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/feedback"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

func newService(t *testing.T) *feedback.Service {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Now().UTC()
	require.NoError(t, store.Catalog().CreateStore(ctx, domain.Store{ID: "store-1", OwnerID: "seller", Name: "Shop", CreatedAt: now}))
	require.NoError(t, store.Catalog().CreateProduct(ctx, domain.Product{
		ID:        "product-1",
		StoreID:   "store-1",
		Name:      "Lamp",
		UnitPrice: decimal.NewFromInt(10),
		IsActive:  true,
		CreatedAt: now,
	}))

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return feedback.NewService(store, logger.WithField("component", "test"))
}

func TestRate(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	for _, score := range []int{0, 6, -1} {
		_, err := svc.Rate(ctx, "u1", domain.FeedbackTargetProduct, "product-1", score)
		require.ErrorIs(t, err, domain.ErrRatingOutOfRange)
	}
	_, err := svc.Rate(ctx, "", domain.FeedbackTargetProduct, "product-1", 3)
	require.ErrorIs(t, err, domain.ErrIdentityRequired)
	_, err = svc.Rate(ctx, "u1", domain.FeedbackTargetStore, "missing", 3)
	require.ErrorIs(t, err, domain.ErrStoreNotFound)

	first, err := svc.Rate(ctx, "u1", domain.FeedbackTargetProduct, "product-1", 2)
	require.NoError(t, err)
	second, err := svc.Rate(ctx, "u1", domain.FeedbackTargetProduct, "product-1", 5)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	ratings, err := svc.Ratings(ctx, domain.FeedbackTargetProduct, "product-1")
	require.NoError(t, err)
	require.Len(t, ratings, 1)
	require.Equal(t, 5, ratings[0].Score)
}

func TestReviewsAuthorOnly(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.CreateReview(ctx, "u1", domain.FeedbackTargetProduct, "product-1", "   ")
	require.ErrorIs(t, err, domain.ErrContentRequired)

	review, err := svc.CreateReview(ctx, "u1", domain.FeedbackTargetProduct, "product-1", " Great lamp ")
	require.NoError(t, err)
	require.Equal(t, "Great lamp", review.Body)

	_, err = svc.UpdateReview(ctx, "u2", review.ID, "Terrible")
	require.ErrorIs(t, err, domain.ErrForbidden)
	require.ErrorIs(t, svc.DeleteReview(ctx, "u2", review.ID), domain.ErrForbidden)

	updated, err := svc.UpdateReview(ctx, "u1", review.ID, "Still great")
	require.NoError(t, err)
	require.Equal(t, "Still great", updated.Body)

	reviews, err := svc.Reviews(ctx, domain.FeedbackTargetProduct, "product-1")
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	require.Equal(t, "Still great", reviews[0].Body)

	require.NoError(t, svc.DeleteReview(ctx, "u1", review.ID))
	require.ErrorIs(t, svc.DeleteReview(ctx, "u1", review.ID), domain.ErrReviewNotFound)
}

func TestStoreReview(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.CreateReview(ctx, "u1", domain.FeedbackTargetStore, "store-1", "Fast shipping")
	require.NoError(t, err)
	_, err = svc.CreateReview(ctx, "u1", domain.FeedbackTarget("order"), "x", "?")
	require.Equal(t, domain.KindValidation, domain.KindOf(err))

	reviews, err := svc.Reviews(ctx, domain.FeedbackTargetStore, "store-1")
	require.NoError(t, err)
	require.Len(t, reviews, 1)
}
