package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// cartRepository опирается на частичный уникальный индекс
// uq_carts_active_owner_store: активная корзина (owner, store) одна.
type cartRepository struct {
	q queryer
}

// NewCartRepository создаёт PostgreSQL-реализацию CartRepository.
func NewCartRepository(store *Store) domain.CartRepository {
	return cartRepository{q: store.DB()}
}

const cartColumns = `id, owner_id, store_id, status, created_at`

func scanCart(row interface{ Scan(...any) error }) (domain.Cart, error) {
	var (
		c      domain.Cart
		status string
	)
	if err := row.Scan(&c.ID, &c.OwnerID, &c.StoreID, &status, &c.CreatedAt); err != nil {
		return domain.Cart{}, err
	}
	c.Status = domain.CartStatus(status)
	return c, nil
}

func (r cartRepository) GetOrCreateActive(ctx context.Context, ownerID, storeID string, now time.Time) (domain.Cart, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO carts (id, owner_id, store_id, status, created_at)
		VALUES ($1,$2,$3,'active',$4)
		ON CONFLICT (owner_id, store_id) WHERE status = 'active' DO NOTHING
	`, uuid.NewString(), ownerID, storeID, now); err != nil {
		if _, ok := violatedConstraint(err, pgForeignKeyViolation); ok {
			return domain.Cart{}, domain.ErrStoreNotFound
		}
		return domain.Cart{}, fmt.Errorf("insert cart: %w", err)
	}

	cart, err := scanCart(r.q.QueryRowContext(ctx, `
		SELECT `+cartColumns+`
		FROM carts
		WHERE owner_id = $1 AND store_id = $2 AND status = 'active'
	`, ownerID, storeID))
	if err != nil {
		return domain.Cart{}, fmt.Errorf("select active cart: %w", err)
	}
	return cart, nil
}

func (r cartRepository) LatestActive(ctx context.Context, ownerID string, forUpdate bool) (domain.Cart, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT ` + cartColumns + `
		FROM carts
		WHERE owner_id = $1 AND status = 'active'
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	cart, err := scanCart(r.q.QueryRowContext(ctx, query, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("select latest cart: %w", err)
	}
	return cart, nil
}

func (r cartRepository) ListActive(ctx context.Context, ownerID string) ([]domain.Cart, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+cartColumns+`
		FROM carts
		WHERE owner_id = $1 AND status = 'active'
		ORDER BY created_at DESC, id DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list active carts: %w", err)
	}
	defer rows.Close()

	carts := make([]domain.Cart, 0)
	for rows.Next() {
		cart, err := scanCart(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart: %w", err)
		}
		carts = append(carts, cart)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate carts: %w", err)
	}
	return carts, nil
}

func (r cartRepository) Get(ctx context.Context, id string) (domain.Cart, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	cart, err := scanCart(r.q.QueryRowContext(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("select cart: %w", err)
	}
	return cart, nil
}

// Deactivate выполняет условный UPDATE: из двух конкурентных оформлений одной корзины
// успешно только одно.
func (r cartRepository) Deactivate(ctx context.Context, cartID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE carts SET status = 'inactive'
		WHERE id = $1 AND status = 'active'
	`, cartID)
	if err != nil {
		return fmt.Errorf("deactivate cart: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	if _, err := r.Get(ctx, cartID); err != nil {
		return err
	}
	return domain.ErrCartNotActive
}

func (r cartRepository) activeCheck(ctx context.Context, cartID string) error {
	var status string
	err := r.q.QueryRowContext(ctx, `SELECT status FROM carts WHERE id = $1`, cartID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrCartNotFound
		}
		return fmt.Errorf("select cart status: %w", err)
	}
	if domain.CartStatus(status) != domain.CartStatusActive {
		return domain.ErrCartNotActive
	}
	return nil
}

// UpsertItem вставляет строку или прибавляет delta к количеству одним запросом.
func (r cartRepository) UpsertItem(ctx context.Context, cartID, productID string, delta int32, now time.Time) (domain.CartItem, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := r.activeCheck(ctx, cartID); err != nil {
		return domain.CartItem{}, err
	}

	var item domain.CartItem
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO cart_items (id, cart_id, product_id, quantity, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (cart_id, product_id) DO UPDATE
		SET quantity = cart_items.quantity + EXCLUDED.quantity,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, cart_id, product_id, quantity, updated_at
	`, uuid.NewString(), cartID, productID, delta, now).Scan(
		&item.ID, &item.CartID, &item.ProductID, &item.Quantity, &item.UpdatedAt,
	)
	if err != nil {
		if isCheckViolation(err) {
			return domain.CartItem{}, domain.ErrItemQtyInvalid
		}
		if _, ok := violatedConstraint(err, pgForeignKeyViolation); ok {
			return domain.CartItem{}, domain.ErrProductNotFound
		}
		return domain.CartItem{}, fmt.Errorf("upsert cart item: %w", err)
	}
	return item, nil
}

const cartItemColumns = `id, cart_id, product_id, quantity, updated_at`

func scanCartItem(row interface{ Scan(...any) error }) (domain.CartItem, error) {
	var item domain.CartItem
	err := row.Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity, &item.UpdatedAt)
	return item, err
}

func (r cartRepository) GetItem(ctx context.Context, itemID string) (domain.CartItem, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	item, err := scanCartItem(r.q.QueryRowContext(ctx, `SELECT `+cartItemColumns+` FROM cart_items WHERE id = $1`, itemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CartItem{}, domain.ErrCartItemNotFound
		}
		return domain.CartItem{}, fmt.Errorf("select cart item: %w", err)
	}
	return item, nil
}

func (r cartRepository) SetItemQuantity(ctx context.Context, itemID string, qty int32, now time.Time) (domain.CartItem, error) {
	if qty <= 0 {
		return domain.CartItem{}, domain.ErrItemQtyInvalid
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	item, err := scanCartItem(r.q.QueryRowContext(ctx, `
		UPDATE cart_items SET quantity = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+cartItemColumns, itemID, qty, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CartItem{}, domain.ErrCartItemNotFound
		}
		return domain.CartItem{}, fmt.Errorf("update cart item: %w", err)
	}
	return item, nil
}

func (r cartRepository) DeleteItem(ctx context.Context, itemID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrCartItemNotFound
	}
	return nil
}

// ListItems возвращает строки указанных корзин в порядке добавления.
func (r cartRepository) ListItems(ctx context.Context, cartIDs ...string) ([]domain.CartItem, error) {
	items := make([]domain.CartItem, 0)
	if len(cartIDs) == 0 {
		return items, nil
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+cartItemColumns+`
		FROM cart_items
		WHERE cart_id = ANY($1)
		ORDER BY seq ASC
	`, cartIDs)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}
	return items, nil
}

var _ domain.CartRepository = cartRepository{}
