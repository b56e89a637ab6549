package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

func TestFeedbackRepository_PostgresRatingsAndReviews(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewFeedbackRepository(store)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	first, err := repo.UpsertRating(ctx, domain.Rating{
		TargetType: domain.FeedbackTargetProduct, TargetID: "p-1", UserID: "u-1", Score: 2, CreatedAt: now,
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	replaced, err := repo.UpsertRating(ctx, domain.Rating{
		TargetType: domain.FeedbackTargetProduct, TargetID: "p-1", UserID: "u-1", Score: 4, CreatedAt: now.Add(time.Minute),
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, replaced.ID)
	require.True(t, replaced.CreatedAt.Equal(first.CreatedAt))

	_, err = repo.UpsertRating(ctx, domain.Rating{
		TargetType: domain.FeedbackTargetProduct, TargetID: "p-1", UserID: "u-2", Score: 5, CreatedAt: now,
	})
	require.NoError(t, err)

	_, err = repo.UpsertRating(ctx, domain.Rating{
		TargetType: domain.FeedbackTargetProduct, TargetID: "p-1", UserID: "u-3", Score: 9, CreatedAt: now,
	})
	require.ErrorIs(t, err, domain.ErrRatingOutOfRange)

	summary, err := repo.RatingSummary(ctx, domain.FeedbackTargetProduct, "p-1")
	require.NoError(t, err)
	require.Equal(t, 2, summary.Count)
	require.InDelta(t, 4.5, summary.Average, 0.0001)

	empty, err := repo.RatingSummary(ctx, domain.FeedbackTargetStore, "p-1")
	require.NoError(t, err)
	require.Zero(t, empty.Count)
	require.Zero(t, empty.Average)

	ratings, err := repo.ListRatings(ctx, domain.FeedbackTargetProduct, "p-1")
	require.NoError(t, err)
	require.Len(t, ratings, 2)

	review := domain.Review{
		ID: "r-1", TargetType: domain.FeedbackTargetStore, TargetID: "s-1", AuthorID: "u-1",
		Body: "fast delivery", CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, repo.CreateReview(ctx, review))

	review.Body = "fast delivery, good packaging"
	review.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, repo.UpdateReview(ctx, review))

	got, err := repo.GetReview(ctx, review.ID)
	require.NoError(t, err)
	require.Equal(t, review.Body, got.Body)
	require.Equal(t, domain.FeedbackTargetStore, got.TargetType)

	reviews, err := repo.ListReviews(ctx, domain.FeedbackTargetStore, "s-1")
	require.NoError(t, err)
	require.Len(t, reviews, 1)

	require.NoError(t, repo.DeleteReview(ctx, review.ID))
	require.ErrorIs(t, repo.DeleteReview(ctx, review.ID), domain.ErrReviewNotFound)
	_, err = repo.GetReview(ctx, review.ID)
	require.ErrorIs(t, err, domain.ErrReviewNotFound)
	require.ErrorIs(t, repo.UpdateReview(ctx, review), domain.ErrReviewNotFound)
}

func TestMessageAndWishlistRepositories_Postgres(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	messages := NewMessageRepository(store)
	wishlist := NewWishlistRepository(store)
	ctx := context.Background()

	shop, product := seedCatalog(t, store, "m", "3.00")
	now := time.Now().UTC().Round(time.Microsecond)

	require.NoError(t, messages.Create(ctx, domain.Message{
		ID: "m-1", SenderID: "buyer", ReceiverStoreID: shop.ID, Content: "in stock?", CreatedAt: now,
	}))
	require.NoError(t, messages.Create(ctx, domain.Message{
		ID: "m-2", SenderID: shop.OwnerID, ReceiverUserID: "buyer", Content: "yes", CreatedAt: now.Add(time.Second),
	}))
	require.ErrorIs(t, messages.Create(ctx, domain.Message{
		ID: "m-3", SenderID: "buyer", ReceiverStoreID: "missing", Content: "hello", CreatedAt: now,
	}), domain.ErrStoreNotFound)

	inbox, err := messages.ListForUser(ctx, shop.OwnerID, []string{shop.ID})
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	require.Equal(t, "m-2", inbox[0].ID)

	stranger, err := messages.ListForUser(ctx, "stranger", nil)
	require.NoError(t, err)
	require.Empty(t, stranger)

	require.NoError(t, messages.MarkRead(ctx, "m-1"))
	read, err := messages.Get(ctx, "m-1")
	require.NoError(t, err)
	require.True(t, read.IsRead)
	require.Equal(t, shop.ID, read.ReceiverStoreID)
	require.Empty(t, read.ReceiverUserID)
	require.ErrorIs(t, messages.MarkRead(ctx, "missing"), domain.ErrMessageNotFound)

	entry, err := wishlist.Add(ctx, domain.WishlistEntry{ID: "w-1", UserID: "buyer", ProductID: product.ID, CreatedAt: now})
	require.NoError(t, err)
	again, err := wishlist.Add(ctx, domain.WishlistEntry{ID: "w-2", UserID: "buyer", ProductID: product.ID, CreatedAt: now})
	require.NoError(t, err)
	require.Equal(t, entry.ID, again.ID)

	_, err = wishlist.Add(ctx, domain.WishlistEntry{ID: "w-3", UserID: "buyer", ProductID: "missing", CreatedAt: now})
	require.ErrorIs(t, err, domain.ErrProductNotFound)

	entries, err := wishlist.List(ctx, "buyer")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, wishlist.Remove(ctx, "buyer", product.ID))
	require.NoError(t, wishlist.Remove(ctx, "buyer", product.ID))
	entries, err = wishlist.List(ctx, "buyer")
	require.NoError(t, err)
	require.Empty(t, entries)
}
