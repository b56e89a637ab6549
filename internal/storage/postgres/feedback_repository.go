package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// feedbackRepository хранит оценки и отзывы. Цель не связана внешним ключом:
// её существование проверяет сервис.
type feedbackRepository struct {
	q queryer
}

// NewFeedbackRepository создаёт PostgreSQL-реализацию FeedbackRepository.
func NewFeedbackRepository(store *Store) domain.FeedbackRepository {
	return feedbackRepository{q: store.DB()}
}

// UpsertRating заменяет оценку пользователя, сохраняя исходные id и created_at.
func (r feedbackRepository) UpsertRating(ctx context.Context, rating domain.Rating) (domain.Rating, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if rating.ID == "" {
		rating.ID = uuid.NewString()
	}
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO ratings (id, target_type, target_id, user_id, score, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (target_type, target_id, user_id) DO UPDATE
		SET score = EXCLUDED.score
		RETURNING id, created_at
	`,
		rating.ID, string(rating.TargetType), rating.TargetID, rating.UserID, rating.Score, rating.CreatedAt,
	).Scan(&rating.ID, &rating.CreatedAt)
	if err != nil {
		if isCheckViolation(err) {
			return domain.Rating{}, domain.ErrRatingOutOfRange
		}
		return domain.Rating{}, fmt.Errorf("upsert rating: %w", err)
	}
	return rating, nil
}

func (r feedbackRepository) ListRatings(ctx context.Context, target domain.FeedbackTarget, targetID string) ([]domain.Rating, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, target_type, target_id, user_id, score, created_at
		FROM ratings
		WHERE target_type = $1 AND target_id = $2
		ORDER BY created_at DESC, id DESC
	`, string(target), targetID)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	defer rows.Close()

	ratings := make([]domain.Rating, 0)
	for rows.Next() {
		var (
			rt         domain.Rating
			targetType string
		)
		if err := rows.Scan(&rt.ID, &targetType, &rt.TargetID, &rt.UserID, &rt.Score, &rt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		rt.TargetType = domain.FeedbackTarget(targetType)
		ratings = append(ratings, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ratings: %w", err)
	}
	return ratings, nil
}

func (r feedbackRepository) RatingSummary(ctx context.Context, target domain.FeedbackTarget, targetID string) (domain.RatingSummary, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var summary domain.RatingSummary
	if err := r.q.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(score), 0)::float8, COUNT(*)
		FROM ratings
		WHERE target_type = $1 AND target_id = $2
	`, string(target), targetID).Scan(&summary.Average, &summary.Count); err != nil {
		return domain.RatingSummary{}, fmt.Errorf("rating summary: %w", err)
	}
	return summary, nil
}

func (r feedbackRepository) CreateReview(ctx context.Context, review domain.Review) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO reviews (id, target_type, target_id, author_id, body, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		review.ID, string(review.TargetType), review.TargetID, review.AuthorID,
		review.Body, review.CreatedAt, review.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

const reviewColumns = `id, target_type, target_id, author_id, body, created_at, updated_at`

func scanReview(row interface{ Scan(...any) error }) (domain.Review, error) {
	var (
		rv         domain.Review
		targetType string
	)
	if err := row.Scan(&rv.ID, &targetType, &rv.TargetID, &rv.AuthorID, &rv.Body, &rv.CreatedAt, &rv.UpdatedAt); err != nil {
		return domain.Review{}, err
	}
	rv.TargetType = domain.FeedbackTarget(targetType)
	return rv, nil
}

func (r feedbackRepository) GetReview(ctx context.Context, id string) (domain.Review, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	review, err := scanReview(r.q.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Review{}, domain.ErrReviewNotFound
		}
		return domain.Review{}, fmt.Errorf("select review: %w", err)
	}
	return review, nil
}

func (r feedbackRepository) UpdateReview(ctx context.Context, review domain.Review) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE reviews SET body = $2, updated_at = $3 WHERE id = $1
	`, review.ID, review.Body, review.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	return expectAffected(res, domain.ErrReviewNotFound)
}

func (r feedbackRepository) DeleteReview(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	return expectAffected(res, domain.ErrReviewNotFound)
}

func (r feedbackRepository) ListReviews(ctx context.Context, target domain.FeedbackTarget, targetID string) ([]domain.Review, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+reviewColumns+`
		FROM reviews
		WHERE target_type = $1 AND target_id = $2
		ORDER BY created_at DESC, id DESC
	`, string(target), targetID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	reviews := make([]domain.Review, 0)
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, review)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}
	return reviews, nil
}

// expectAffected возвращает notFound, если запрос не затронул ни одной строки.
func expectAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

var _ domain.FeedbackRepository = feedbackRepository{}
