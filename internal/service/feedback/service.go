package feedback

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Service принимает оценки и отзывы о товарах и магазинах.
type Service struct {
	store  domain.Storage
	logger *log.Entry
	now    func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService создаёт сервис отзывов.
func NewService(store domain.Storage, logger *log.Entry, opts ...Option) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "feedback")
	}
	s := &Service{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// requireTarget проверяет, что оцениваемая сущность существует.
func (s *Service) requireTarget(ctx context.Context, target domain.FeedbackTarget, targetID string) error {
	switch target {
	case domain.FeedbackTargetProduct:
		_, err := s.store.Catalog().GetProduct(ctx, targetID)
		return err
	case domain.FeedbackTargetStore:
		_, err := s.store.Catalog().GetStore(ctx, targetID)
		return err
	default:
		return domain.Validation("unknown feedback target %q", target)
	}
}

// Rate ставит оценку 1..5; повторная оценка того же пользователя заменяет прежнюю.
func (s *Service) Rate(ctx context.Context, userID string, target domain.FeedbackTarget, targetID string, score int) (domain.Rating, error) {
	if userID == "" {
		return domain.Rating{}, domain.ErrIdentityRequired
	}
	rating := domain.Rating{
		TargetType: target,
		TargetID:   targetID,
		UserID:     userID,
		Score:      score,
		CreatedAt:  s.now(),
	}
	if err := rating.Validate(); err != nil {
		return domain.Rating{}, err
	}
	if err := s.requireTarget(ctx, target, targetID); err != nil {
		return domain.Rating{}, err
	}
	return s.store.Feedback().UpsertRating(ctx, rating)
}

// Ratings возвращает оценки цели.
func (s *Service) Ratings(ctx context.Context, target domain.FeedbackTarget, targetID string) ([]domain.Rating, error) {
	if err := s.requireTarget(ctx, target, targetID); err != nil {
		return nil, err
	}
	return s.store.Feedback().ListRatings(ctx, target, targetID)
}

// CreateReview публикует отзыв от имени вызывающего.
func (s *Service) CreateReview(ctx context.Context, authorID string, target domain.FeedbackTarget, targetID, body string) (domain.Review, error) {
	if authorID == "" {
		return domain.Review{}, domain.ErrIdentityRequired
	}
	now := s.now()
	review := domain.Review{
		ID:         uuid.NewString(),
		TargetType: target,
		TargetID:   targetID,
		AuthorID:   authorID,
		Body:       body,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := review.Validate(); err != nil {
		return domain.Review{}, err
	}
	if err := s.requireTarget(ctx, target, targetID); err != nil {
		return domain.Review{}, err
	}
	if err := s.store.Feedback().CreateReview(ctx, review); err != nil {
		return domain.Review{}, err
	}
	return review, nil
}

// Reviews возвращает отзывы цели, новые первыми.
func (s *Service) Reviews(ctx context.Context, target domain.FeedbackTarget, targetID string) ([]domain.Review, error) {
	if err := s.requireTarget(ctx, target, targetID); err != nil {
		return nil, err
	}
	return s.store.Feedback().ListReviews(ctx, target, targetID)
}

// UpdateReview меняет текст отзыва; редактировать может только автор.
func (s *Service) UpdateReview(ctx context.Context, actorID, reviewID, body string) (domain.Review, error) {
	if actorID == "" {
		return domain.Review{}, domain.ErrIdentityRequired
	}

	var review domain.Review
	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		var err error
		review, err = authored(ctx, tx.Feedback(), actorID, reviewID)
		if err != nil {
			return err
		}
		review.Body = body
		review.UpdatedAt = s.now()
		if err := review.Validate(); err != nil {
			return err
		}
		return tx.Feedback().UpdateReview(ctx, review)
	})
	if err != nil {
		return domain.Review{}, err
	}
	return review, nil
}

// DeleteReview удаляет отзыв; удалить может только автор.
func (s *Service) DeleteReview(ctx context.Context, actorID, reviewID string) error {
	if actorID == "" {
		return domain.ErrIdentityRequired
	}
	return s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		if _, err := authored(ctx, tx.Feedback(), actorID, reviewID); err != nil {
			return err
		}
		return tx.Feedback().DeleteReview(ctx, reviewID)
	})
}

func authored(ctx context.Context, repo domain.FeedbackRepository, actorID, reviewID string) (domain.Review, error) {
	review, err := repo.GetReview(ctx, reviewID)
	if err != nil {
		return domain.Review{}, err
	}
	if review.AuthorID != actorID {
		return domain.Review{}, domain.ErrForbidden
	}
	return review, nil
}
