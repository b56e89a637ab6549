package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// cartRepository реализует CartRepository в памяти.
// Уникальность активной корзины (owner, store) держится картой activeCart.
type cartRepository struct {
	v view
}

func (r cartRepository) GetOrCreateActive(_ context.Context, ownerID, storeID string, now time.Time) (domain.Cart, error) {
	var cart domain.Cart
	err := r.v.write(func(st *state) error {
		key := cartKey{ownerID: ownerID, storeID: storeID}
		if id, ok := st.activeCart[key]; ok {
			cart = st.carts[id]
			return nil
		}
		cart = domain.Cart{
			ID:        uuid.NewString(),
			OwnerID:   ownerID,
			StoreID:   storeID,
			Status:    domain.CartStatusActive,
			CreatedAt: now,
		}
		st.carts[cart.ID] = cart
		st.activeCart[key] = cart.ID
		return nil
	})
	return cart, err
}

// LatestActive игнорирует forUpdate: транзакции in-memory хранилища и так сериализованы.
func (r cartRepository) LatestActive(ctx context.Context, ownerID string, _ bool) (domain.Cart, error) {
	carts, err := r.ListActive(ctx, ownerID)
	if err != nil {
		return domain.Cart{}, err
	}
	if len(carts) == 0 {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return carts[0], nil
}

// ListActive возвращает активные корзины владельца, самые свежие первыми.
func (r cartRepository) ListActive(_ context.Context, ownerID string) ([]domain.Cart, error) {
	var carts []domain.Cart
	err := r.v.read(func(st *state) error {
		for _, c := range st.carts {
			if c.OwnerID == ownerID && c.IsActive() {
				carts = append(carts, c)
			}
		}
		return nil
	})
	domain.SortCartsNewestFirst(carts)
	return carts, err
}

func (r cartRepository) Get(_ context.Context, id string) (domain.Cart, error) {
	var cart domain.Cart
	err := r.v.read(func(st *state) error {
		c, ok := st.carts[id]
		if !ok {
			return domain.ErrCartNotFound
		}
		cart = c
		return nil
	})
	return cart, err
}

func (r cartRepository) Deactivate(_ context.Context, cartID string) error {
	return r.v.write(func(st *state) error {
		cart, ok := st.carts[cartID]
		if !ok {
			return domain.ErrCartNotFound
		}
		if !cart.IsActive() {
			return domain.ErrCartNotActive
		}
		cart.Status = domain.CartStatusInactive
		st.carts[cartID] = cart
		delete(st.activeCart, cartKey{ownerID: cart.OwnerID, storeID: cart.StoreID})
		return nil
	})
}

func (r cartRepository) UpsertItem(_ context.Context, cartID, productID string, delta int32, now time.Time) (domain.CartItem, error) {
	var item domain.CartItem
	err := r.v.write(func(st *state) error {
		cart, ok := st.carts[cartID]
		if !ok {
			return domain.ErrCartNotFound
		}
		if !cart.IsActive() {
			return domain.ErrCartNotActive
		}
		for id, rec := range st.cartItems {
			if rec.item.CartID != cartID || rec.item.ProductID != productID {
				continue
			}
			rec.item.Quantity += delta
			if rec.item.Quantity <= 0 {
				return domain.ErrItemQtyInvalid
			}
			rec.item.UpdatedAt = now
			st.cartItems[id] = rec
			item = rec.item
			return nil
		}
		if delta <= 0 {
			return domain.ErrItemQtyInvalid
		}
		item = domain.CartItem{
			ID:        uuid.NewString(),
			CartID:    cartID,
			ProductID: productID,
			Quantity:  delta,
			UpdatedAt: now,
		}
		st.cartItems[item.ID] = cartItemRecord{item: item, seq: st.next()}
		return nil
	})
	return item, err
}

func (r cartRepository) GetItem(_ context.Context, itemID string) (domain.CartItem, error) {
	var item domain.CartItem
	err := r.v.read(func(st *state) error {
		rec, ok := st.cartItems[itemID]
		if !ok {
			return domain.ErrCartItemNotFound
		}
		item = rec.item
		return nil
	})
	return item, err
}

func (r cartRepository) SetItemQuantity(_ context.Context, itemID string, qty int32, now time.Time) (domain.CartItem, error) {
	var item domain.CartItem
	err := r.v.write(func(st *state) error {
		if qty <= 0 {
			return domain.ErrItemQtyInvalid
		}
		rec, ok := st.cartItems[itemID]
		if !ok {
			return domain.ErrCartItemNotFound
		}
		rec.item.Quantity = qty
		rec.item.UpdatedAt = now
		st.cartItems[itemID] = rec
		item = rec.item
		return nil
	})
	return item, err
}

func (r cartRepository) DeleteItem(_ context.Context, itemID string) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.cartItems[itemID]; !ok {
			return domain.ErrCartItemNotFound
		}
		delete(st.cartItems, itemID)
		return nil
	})
}

// ListItems возвращает строки указанных корзин в порядке добавления.
func (r cartRepository) ListItems(_ context.Context, cartIDs ...string) ([]domain.CartItem, error) {
	wanted := make(map[string]struct{}, len(cartIDs))
	for _, id := range cartIDs {
		wanted[id] = struct{}{}
	}

	var records []cartItemRecord
	err := r.v.read(func(st *state) error {
		for _, rec := range st.cartItems {
			if _, ok := wanted[rec.item.CartID]; ok {
				records = append(records, rec)
			}
		}
		return nil
	})
	sort.Slice(records, func(i, j int) bool { return records[i].seq < records[j].seq })

	items := make([]domain.CartItem, 0, len(records))
	for _, rec := range records {
		items = append(items, rec.item)
	}
	return items, err
}

var _ domain.CartRepository = cartRepository{}
