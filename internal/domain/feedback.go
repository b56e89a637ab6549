package domain

import (
	"strings"
	"time"
)

// FeedbackTarget — тип сущности, к которой относятся отзыв или оценка.
type FeedbackTarget string

const (
	FeedbackTargetProduct FeedbackTarget = "product"
	FeedbackTargetStore   FeedbackTarget = "store"
)

// Valid проверяет тип цели.
func (t FeedbackTarget) Valid() bool {
	return t == FeedbackTargetProduct || t == FeedbackTargetStore
}

// Rating хранит оценку пользователя 1..5. Пара (цель, пользователь) уникальна.
type Rating struct {
	ID         string
	TargetType FeedbackTarget
	TargetID   string
	UserID     string
	Score      int
	CreatedAt  time.Time
}

// Validate проверяет диапазон оценки.
func (r *Rating) Validate() error {
	if r.Score < 1 || r.Score > 5 {
		return ErrRatingOutOfRange
	}
	return nil
}

// RatingSummary агрегирует оценки цели.
type RatingSummary struct {
	Average float64
	Count   int
}

// Review описывает текстовый отзыв.
type Review struct {
	ID         string
	TargetType FeedbackTarget
	TargetID   string
	AuthorID   string
	Body       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate проверяет, что отзыв не пустой.
func (r *Review) Validate() error {
	r.Body = strings.TrimSpace(r.Body)
	if r.Body == "" {
		return ErrContentRequired
	}
	return nil
}

// Message описывает сообщение пользователю или магазину.
type Message struct {
	ID              string
	SenderID        string
	ReceiverUserID  string
	ReceiverStoreID string
	Content         string
	IsRead          bool
	CreatedAt       time.Time
}

// Validate проверяет, что задан ровно один получатель.
func (m *Message) Validate() error {
	if (m.ReceiverUserID == "") == (m.ReceiverStoreID == "") {
		return ErrMessageReceiverInvalid
	}
	if strings.TrimSpace(m.Content) == "" {
		return ErrContentRequired
	}
	return nil
}

// WishlistEntry связывает пользователя с товаром из списка желаний.
type WishlistEntry struct {
	ID        string
	UserID    string
	ProductID string
	CreatedAt time.Time
}
