package inbox

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Service ведёт переписку покупателей и магазинов.
type Service struct {
	store  domain.Storage
	logger *log.Entry
	now    func() time.Time
}

// NewService создаёт сервис сообщений.
func NewService(store domain.Storage, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "inbox")
	}
	return &Service{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SendRequest описывает новое сообщение. Задаётся ровно один получатель.
type SendRequest struct {
	SenderID        string
	ReceiverUserID  string
	ReceiverStoreID string
	Content         string
}

// Send сохраняет сообщение пользователю или магазину.
func (s *Service) Send(ctx context.Context, req SendRequest) (domain.Message, error) {
	if req.SenderID == "" {
		return domain.Message{}, domain.ErrIdentityRequired
	}
	msg := domain.Message{
		ID:              uuid.NewString(),
		SenderID:        req.SenderID,
		ReceiverUserID:  strings.TrimSpace(req.ReceiverUserID),
		ReceiverStoreID: strings.TrimSpace(req.ReceiverStoreID),
		Content:         strings.TrimSpace(req.Content),
		CreatedAt:       s.now(),
	}
	if err := msg.Validate(); err != nil {
		return domain.Message{}, err
	}
	if msg.ReceiverStoreID != "" {
		if _, err := s.store.Catalog().GetStore(ctx, msg.ReceiverStoreID); err != nil {
			return domain.Message{}, err
		}
	}
	if err := s.store.Messages().Create(ctx, msg); err != nil {
		return domain.Message{}, err
	}
	s.logger.WithFields(log.Fields{
		"message_id": msg.ID,
		"sender_id":  msg.SenderID,
	}).Debug("message sent")
	return msg, nil
}

// List возвращает отправленные и полученные сообщения пользователя, включая
// адресованные его магазинам. Новые первыми.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Message, error) {
	if userID == "" {
		return nil, domain.ErrIdentityRequired
	}
	storeIDs, err := s.store.Catalog().ListStoreIDsByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.store.Messages().ListForUser(ctx, userID, storeIDs)
}

// MarkRead отмечает сообщение прочитанным. Доступно только получателю:
// адресату-пользователю или владельцу магазина-адресата.
func (s *Service) MarkRead(ctx context.Context, userID, messageID string) (domain.Message, error) {
	if userID == "" {
		return domain.Message{}, domain.ErrIdentityRequired
	}

	var msg domain.Message
	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		var err error
		msg, err = tx.Messages().Get(ctx, messageID)
		if err != nil {
			return err
		}
		allowed := msg.ReceiverUserID == userID
		if !allowed && msg.ReceiverStoreID != "" {
			owned, err := tx.Catalog().ListStoreIDsByOwner(ctx, userID)
			if err != nil {
				return err
			}
			allowed = slices.Contains(owned, msg.ReceiverStoreID)
		}
		if !allowed {
			return domain.ErrForbidden
		}
		if msg.IsRead {
			return nil
		}
		msg.IsRead = true
		return tx.Messages().MarkRead(ctx, messageID)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}
