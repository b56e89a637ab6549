package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// feedbackRepository хранит оценки и отзывы товаров и магазинов.
type feedbackRepository struct {
	v view
}

func ratingKey(target domain.FeedbackTarget, targetID, userID string) string {
	return string(target) + "/" + targetID + "/" + userID
}

func (r feedbackRepository) UpsertRating(_ context.Context, rating domain.Rating) (domain.Rating, error) {
	err := r.v.write(func(st *state) error {
		key := ratingKey(rating.TargetType, rating.TargetID, rating.UserID)
		if existing, ok := st.ratings[key]; ok {
			rating.ID = existing.ID
			rating.CreatedAt = existing.CreatedAt
		} else if rating.ID == "" {
			rating.ID = uuid.NewString()
		}
		st.ratings[key] = rating
		return nil
	})
	return rating, err
}

func (r feedbackRepository) ListRatings(_ context.Context, target domain.FeedbackTarget, targetID string) ([]domain.Rating, error) {
	var result []domain.Rating
	err := r.v.read(func(st *state) error {
		for _, rt := range st.ratings {
			if rt.TargetType == target && rt.TargetID == targetID {
				result = append(result, rt)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, err
}

func (r feedbackRepository) RatingSummary(ctx context.Context, target domain.FeedbackTarget, targetID string) (domain.RatingSummary, error) {
	ratings, err := r.ListRatings(ctx, target, targetID)
	if err != nil || len(ratings) == 0 {
		return domain.RatingSummary{}, err
	}
	sum := 0
	for _, rt := range ratings {
		sum += rt.Score
	}
	return domain.RatingSummary{Average: float64(sum) / float64(len(ratings)), Count: len(ratings)}, nil
}

func (r feedbackRepository) CreateReview(_ context.Context, review domain.Review) error {
	return r.v.write(func(st *state) error {
		st.reviews[review.ID] = review
		return nil
	})
}

func (r feedbackRepository) GetReview(_ context.Context, id string) (domain.Review, error) {
	var review domain.Review
	err := r.v.read(func(st *state) error {
		rv, ok := st.reviews[id]
		if !ok {
			return domain.ErrReviewNotFound
		}
		review = rv
		return nil
	})
	return review, err
}

func (r feedbackRepository) UpdateReview(_ context.Context, review domain.Review) error {
	return r.v.write(func(st *state) error {
		current, ok := st.reviews[review.ID]
		if !ok {
			return domain.ErrReviewNotFound
		}
		current.Body = review.Body
		current.UpdatedAt = review.UpdatedAt
		st.reviews[review.ID] = current
		return nil
	})
}

func (r feedbackRepository) DeleteReview(_ context.Context, id string) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.reviews[id]; !ok {
			return domain.ErrReviewNotFound
		}
		delete(st.reviews, id)
		return nil
	})
}

func (r feedbackRepository) ListReviews(_ context.Context, target domain.FeedbackTarget, targetID string) ([]domain.Review, error) {
	var result []domain.Review
	err := r.v.read(func(st *state) error {
		for _, rv := range st.reviews {
			if rv.TargetType == target && rv.TargetID == targetID {
				result = append(result, rv)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, err
}

var _ domain.FeedbackRepository = feedbackRepository{}
