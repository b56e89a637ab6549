package cart

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
)

// Service реализует операции над корзиной покупателя.
type Service struct {
	store          domain.Storage
	defaultStoreID string
	logger         *log.Entry
	metrics        *metrics.CheckoutMetrics
	now            func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithDefaultStore задаёт магазин, в корзину которого попадают товары без явного store_id.
func WithDefaultStore(storeID string) Option {
	return func(s *Service) { s.defaultStoreID = storeID }
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService создаёт сервис корзины.
func NewService(store domain.Storage, logger *log.Entry, opts ...Option) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "cart")
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

// AddLineRequest описывает добавление товара в корзину.
type AddLineRequest struct {
	OwnerID   string
	StoreID   string // Пустой: магазин по умолчанию.
	ProductID string
	Quantity  int32
}

// AddLine добавляет товар в активную корзину (owner, store), создавая её при необходимости.
// Повторное добавление того же товара увеличивает количество в существующей строке.
func (s *Service) AddLine(ctx context.Context, req AddLineRequest) (domain.CartItem, error) {
	if req.OwnerID == "" {
		return domain.CartItem{}, domain.ErrIdentityRequired
	}
	if req.Quantity <= 0 {
		return domain.CartItem{}, domain.ErrItemQtyInvalid
	}
	storeID := req.StoreID
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	if storeID == "" {
		return domain.CartItem{}, domain.ErrStoreRequired
	}

	var item domain.CartItem
	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		if _, err := tx.Catalog().GetStore(ctx, storeID); err != nil {
			return err
		}
		product, err := tx.Catalog().GetProduct(ctx, req.ProductID)
		if err != nil {
			return err
		}
		if !product.IsActive {
			return domain.ErrProductUnavailable
		}
		if product.StoreID != storeID {
			return domain.Validation("product %s does not belong to store %s", product.ID, storeID)
		}

		now := s.now()
		cart, err := tx.Carts().GetOrCreateActive(ctx, req.OwnerID, storeID, now)
		if err != nil {
			return err
		}
		item, err = tx.Carts().UpsertItem(ctx, cart.ID, product.ID, req.Quantity, now)
		return err
	})
	if err != nil {
		return domain.CartItem{}, err
	}

	s.metrics.RecordCartLineAdded()
	s.logger.WithFields(log.Fields{
		"owner_id":   req.OwnerID,
		"store_id":   storeID,
		"product_id": req.ProductID,
		"quantity":   item.Quantity,
	}).Debug("cart line added")
	return item, nil
}

// SetLineQuantity перезаписывает количество; quantity <= 0 удаляет строку.
// Строка должна принадлежать одной из активных корзин владельца.
func (s *Service) SetLineQuantity(ctx context.Context, ownerID, itemID string, quantity int32) (domain.CartItem, bool, error) {
	if ownerID == "" {
		return domain.CartItem{}, false, domain.ErrIdentityRequired
	}

	var (
		item    domain.CartItem
		removed bool
	)
	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		current, err := ownedItem(ctx, tx, ownerID, itemID)
		if err != nil {
			return err
		}
		if quantity <= 0 {
			removed = true
			item = current
			return tx.Carts().DeleteItem(ctx, itemID)
		}
		item, err = tx.Carts().SetItemQuantity(ctx, itemID, quantity, s.now())
		return err
	})
	if err != nil {
		return domain.CartItem{}, false, err
	}
	return item, removed, nil
}

// RemoveLine удаляет строку корзины.
func (s *Service) RemoveLine(ctx context.Context, ownerID, itemID string) error {
	_, _, err := s.SetLineQuantity(ctx, ownerID, itemID, 0)
	return err
}

// ownedItem возвращает строку, если она лежит в активной корзине владельца.
func ownedItem(ctx context.Context, tx domain.Repositories, ownerID, itemID string) (domain.CartItem, error) {
	item, err := tx.Carts().GetItem(ctx, itemID)
	if err != nil {
		return domain.CartItem{}, err
	}
	cart, err := tx.Carts().Get(ctx, item.CartID)
	if err != nil {
		return domain.CartItem{}, err
	}
	if cart.OwnerID != ownerID || !cart.IsActive() {
		return domain.CartItem{}, domain.ErrCartItemNotFound
	}
	return item, nil
}

// View содержит корзину со строками и суммой по текущим ценам.
type View struct {
	Cart  domain.Cart
	Lines []domain.CartLine
	Total string
}

// GetActiveCart возвращает самую свежую активную корзину владельца.
func (s *Service) GetActiveCart(ctx context.Context, ownerID string) (View, error) {
	if ownerID == "" {
		return View{}, domain.ErrIdentityRequired
	}
	cart, err := s.store.Carts().LatestActive(ctx, ownerID, false)
	if err != nil {
		if errors.Is(err, domain.ErrCartNotFound) {
			return View{}, domain.ErrNoActiveCart
		}
		return View{}, err
	}
	lines, err := PricedLines(ctx, s.store, cart.ID)
	if err != nil {
		return View{}, err
	}
	return View{Cart: cart, Lines: lines, Total: domain.LinesTotal(lines).StringFixed(domain.MoneyScale)}, nil
}

// ListLines возвращает строки всех активных корзин владельца.
func (s *Service) ListLines(ctx context.Context, ownerID string) ([]domain.CartLine, error) {
	if ownerID == "" {
		return nil, domain.ErrIdentityRequired
	}
	carts, err := s.store.Carts().ListActive(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(carts) == 0 {
		return []domain.CartLine{}, nil
	}
	ids := make([]string, 0, len(carts))
	for _, c := range carts {
		ids = append(ids, c.ID)
	}
	return PricedLines(ctx, s.store, ids...)
}

// PricedLines читает строки корзин и сопоставляет их с текущими ценами товаров.
func PricedLines(ctx context.Context, repos domain.Repositories, cartIDs ...string) ([]domain.CartLine, error) {
	items, err := repos.Carts().ListItems(ctx, cartIDs...)
	if err != nil {
		return nil, err
	}
	productIDs := make([]string, 0, len(items))
	for _, item := range items {
		productIDs = append(productIDs, item.ProductID)
	}
	products, err := repos.Catalog().GetProducts(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	return domain.PriceLines(items, products), nil
}
