package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type messageRepository struct {
	q queryer
}

// NewMessageRepository создаёт PostgreSQL-реализацию MessageRepository.
func NewMessageRepository(store *Store) domain.MessageRepository {
	return messageRepository{q: store.DB()}
}

func (r messageRepository) Create(ctx context.Context, msg domain.Message) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO messages (id, sender_id, receiver_user_id, receiver_store_id, content, is_read, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		msg.ID, msg.SenderID, nullable(msg.ReceiverUserID), nullable(msg.ReceiverStoreID),
		msg.Content, msg.IsRead, msg.CreatedAt,
	)
	if err != nil {
		if _, ok := violatedConstraint(err, pgForeignKeyViolation); ok {
			return domain.ErrStoreNotFound
		}
		if isCheckViolation(err) {
			return domain.ErrMessageReceiverInvalid
		}
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

const messageColumns = `id, sender_id, COALESCE(receiver_user_id, ''), COALESCE(receiver_store_id, ''), content, is_read, created_at`

func scanMessage(row interface{ Scan(...any) error }) (domain.Message, error) {
	var m domain.Message
	err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverUserID, &m.ReceiverStoreID, &m.Content, &m.IsRead, &m.CreatedAt)
	return m, err
}

func (r messageRepository) Get(ctx context.Context, id string) (domain.Message, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	msg, err := scanMessage(r.q.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Message{}, domain.ErrMessageNotFound
		}
		return domain.Message{}, fmt.Errorf("select message: %w", err)
	}
	return msg, nil
}

func (r messageRepository) ListForUser(ctx context.Context, userID string, storeIDs []string) ([]domain.Message, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if storeIDs == nil {
		storeIDs = []string{}
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE sender_id = $1
		   OR receiver_user_id = $1
		   OR receiver_store_id = ANY($2)
		ORDER BY created_at DESC, id DESC
	`, userID, storeIDs)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]domain.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

func (r messageRepository) MarkRead(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `UPDATE messages SET is_read = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark message read: %w", err)
	}
	return expectAffected(res, domain.ErrMessageNotFound)
}

var _ domain.MessageRepository = messageRepository{}
