package postgres

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type wishlistRepository struct {
	q queryer
}

// NewWishlistRepository создаёт PostgreSQL-реализацию WishlistRepository.
func NewWishlistRepository(store *Store) domain.WishlistRepository {
	return wishlistRepository{q: store.DB()}
}

// Add не дублирует запись: при повторе возвращается существующая.
func (r wishlistRepository) Add(ctx context.Context, entry domain.WishlistEntry) (domain.WishlistEntry, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO wishlist_entries (id, user_id, product_id, created_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (user_id, product_id) DO NOTHING
	`, entry.ID, entry.UserID, entry.ProductID, entry.CreatedAt); err != nil {
		if _, ok := violatedConstraint(err, pgForeignKeyViolation); ok {
			return domain.WishlistEntry{}, domain.ErrProductNotFound
		}
		return domain.WishlistEntry{}, fmt.Errorf("insert wishlist entry: %w", err)
	}

	var stored domain.WishlistEntry
	if err := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, product_id, created_at
		FROM wishlist_entries
		WHERE user_id = $1 AND product_id = $2
	`, entry.UserID, entry.ProductID).Scan(&stored.ID, &stored.UserID, &stored.ProductID, &stored.CreatedAt); err != nil {
		return domain.WishlistEntry{}, fmt.Errorf("select wishlist entry: %w", err)
	}
	return stored, nil
}

func (r wishlistRepository) List(ctx context.Context, userID string) ([]domain.WishlistEntry, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, user_id, product_id, created_at
		FROM wishlist_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list wishlist: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.WishlistEntry, 0)
	for rows.Next() {
		var e domain.WishlistEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.ProductID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan wishlist entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wishlist: %w", err)
	}
	return entries, nil
}

func (r wishlistRepository) Remove(ctx context.Context, userID, productID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := r.q.ExecContext(ctx, `
		DELETE FROM wishlist_entries WHERE user_id = $1 AND product_id = $2
	`, userID, productID); err != nil {
		return fmt.Errorf("remove wishlist entry: %w", err)
	}
	return nil
}

var _ domain.WishlistRepository = wishlistRepository{}
