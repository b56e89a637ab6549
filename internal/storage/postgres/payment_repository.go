package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type paymentRepository struct {
	q queryer
}

// NewPaymentRepository создаёт PostgreSQL-реализацию PaymentRepository.
func NewPaymentRepository(store *Store) domain.PaymentRepository {
	return paymentRepository{q: store.DB()}
}

func (r paymentRepository) Create(ctx context.Context, p domain.Payment) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, reference, amount, status, verified, method, paid_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		p.ID, p.OrderID, p.Reference, p.Amount, string(p.Status),
		p.Verified, p.Method, nullTime(p.PaidAt), p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPaymentReferenceTaken
		}
		if _, ok := violatedConstraint(err, pgForeignKeyViolation); ok {
			return domain.ErrOrderNotFound
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

const paymentColumns = `id, order_id, reference, amount, status, verified, method, paid_at, created_at`

func scanPayment(row interface{ Scan(...any) error }) (domain.Payment, error) {
	var (
		p      domain.Payment
		status string
		paidAt sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.OrderID, &p.Reference, &p.Amount, &status, &p.Verified, &p.Method, &paidAt, &p.CreatedAt); err != nil {
		return domain.Payment{}, err
	}
	p.Status = domain.PaymentStatus(status)
	if paidAt.Valid {
		p.PaidAt = paidAt.Time.UTC()
	}
	return p, nil
}

// GetByReference при forUpdate блокирует строку платежа: повторная сверка
// ждёт завершения первой и видит уже проверенный платёж.
func (r paymentRepository) GetByReference(ctx context.Context, reference string, forUpdate bool) (domain.Payment, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE reference = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	p, err := scanPayment(r.q.QueryRowContext(ctx, query, reference))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, fmt.Errorf("select payment: %w", err)
	}
	return p, nil
}

func (r paymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

func (r paymentRepository) Save(ctx context.Context, p domain.Payment) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE payments
		SET status = $2,
		    verified = $3,
		    paid_at = $4
		WHERE reference = $1
	`, p.Reference, string(p.Status), p.Verified, nullTime(p.PaidAt))
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

var _ domain.PaymentRepository = paymentRepository{}
