package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// maxCategoryDepth — категория, подкатегория и под-подкатегория.
const maxCategoryDepth = 3

// Service управляет магазинами, деревом категорий, товарами и списками желаний.
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

// NewService создаёт сервис каталога.
func NewService(store domain.Storage, logger *log.Entry, opts ...Option) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "catalog")
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

// CreateStoreRequest регистрирует магазин; владельцем становится вызывающий.
type CreateStoreRequest struct {
	OwnerID     string
	Name        string
	Description string
	LogoURL     string
	ContactInfo string
	Address     string
}

// CreateStore регистрирует магазин.
func (s *Service) CreateStore(ctx context.Context, req CreateStoreRequest) (domain.Store, error) {
	if req.OwnerID == "" {
		return domain.Store{}, domain.ErrIdentityRequired
	}
	store := domain.Store{
		ID:          uuid.NewString(),
		OwnerID:     req.OwnerID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		LogoURL:     req.LogoURL,
		ContactInfo: req.ContactInfo,
		Address:     req.Address,
		CreatedAt:   s.now(),
	}
	if err := store.Validate(); err != nil {
		return domain.Store{}, err
	}
	if err := s.store.Catalog().CreateStore(ctx, store); err != nil {
		return domain.Store{}, err
	}
	s.logger.WithFields(log.Fields{"store_id": store.ID, "owner_id": store.OwnerID}).Info("store created")
	return store, nil
}

// StoreDetails дополняет магазин сводкой оценок.
type StoreDetails struct {
	Store  domain.Store
	Rating domain.RatingSummary
}

// GetStore возвращает магазин и его средний рейтинг.
func (s *Service) GetStore(ctx context.Context, id string) (StoreDetails, error) {
	store, err := s.store.Catalog().GetStore(ctx, id)
	if err != nil {
		return StoreDetails{}, err
	}
	summary, err := s.store.Feedback().RatingSummary(ctx, domain.FeedbackTargetStore, id)
	if err != nil {
		return StoreDetails{}, err
	}
	return StoreDetails{Store: store, Rating: summary}, nil
}

// ListStores возвращает магазины по фильтру.
func (s *Service) ListStores(ctx context.Context, filter domain.StoreFilter) ([]domain.Store, error) {
	return s.store.Catalog().ListStores(ctx, filter)
}

// CreateCategoryRequest описывает новую категорию. IsActive по умолчанию true.
type CreateCategoryRequest struct {
	Name       string
	Slug       string
	ParentID   string
	ExternalID string
	ImageURLs  []string
	IsActive   *bool
}

// CreateCategory создаёт категорию; вложенность ограничена тремя уровнями.
func (s *Service) CreateCategory(ctx context.Context, req CreateCategoryRequest) (domain.Category, error) {
	category := domain.Category{
		ID:         uuid.NewString(),
		Name:       req.Name,
		Slug:       req.Slug,
		ParentID:   req.ParentID,
		ExternalID: req.ExternalID,
		IsActive:   req.IsActive == nil || *req.IsActive,
		ImageURLs:  req.ImageURLs,
		CreatedAt:  s.now(),
	}
	if err := category.Normalize(); err != nil {
		return domain.Category{}, err
	}

	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		depth, err := categoryDepth(ctx, tx.Catalog(), category.ParentID)
		if err != nil {
			return err
		}
		if depth >= maxCategoryDepth {
			return domain.Validation("categories can be nested at most %d levels deep", maxCategoryDepth)
		}
		return tx.Catalog().CreateCategory(ctx, category)
	})
	if err != nil {
		return domain.Category{}, err
	}
	return category, nil
}

// categoryDepth возвращает число предков нового узла с родителем parentID.
func categoryDepth(ctx context.Context, repo domain.CatalogRepository, parentID string) (int, error) {
	depth := 0
	for id := parentID; id != ""; depth++ {
		if depth > maxCategoryDepth {
			break
		}
		parent, err := repo.GetCategory(ctx, id)
		if err != nil {
			return 0, err
		}
		id = parent.ParentID
	}
	return depth, nil
}

// GetCategory возвращает категорию по ID.
func (s *Service) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	return s.store.Catalog().GetCategory(ctx, id)
}

// CategoryNode хранит категорию с активными потомками.
type CategoryNode struct {
	Category domain.Category
	Children []CategoryNode
}

// CategoryTree возвращает корневые категории с вложенными активными подкатегориями.
func (s *Service) CategoryTree(ctx context.Context) ([]CategoryNode, error) {
	roots, err := s.store.Catalog().ListCategories(ctx, "", false)
	if err != nil {
		return nil, err
	}
	return s.nodes(ctx, roots, 1)
}

func (s *Service) nodes(ctx context.Context, categories []domain.Category, level int) ([]CategoryNode, error) {
	result := make([]CategoryNode, 0, len(categories))
	for _, c := range categories {
		node := CategoryNode{Category: c, Children: []CategoryNode{}}
		if level < maxCategoryDepth {
			children, err := s.store.Catalog().ListCategories(ctx, c.ID, true)
			if err != nil {
				return nil, err
			}
			if node.Children, err = s.nodes(ctx, children, level+1); err != nil {
				return nil, err
			}
		}
		result = append(result, node)
	}
	return result, nil
}

// Subcategories возвращает активных прямых потомков категории.
func (s *Service) Subcategories(ctx context.Context, parentID string) ([]domain.Category, error) {
	if parentID == "" {
		return nil, domain.Validation("parent category id is required")
	}
	return s.store.Catalog().ListCategories(ctx, parentID, true)
}

// ProductInput содержит изменяемые поля товара. Пустой MarkupPercentage означает наценку по умолчанию.
type ProductInput struct {
	CategoryID       string
	SubcategoryID    string
	SubSubcategoryID string
	Name             string
	Description      string
	Specification    string
	IsDropshipping   bool
	ExternalID       string
	ExternalURL      string
	BasePrice        *decimal.Decimal
	MarkupPercentage *decimal.Decimal
	UnitPrice        decimal.Decimal
	Inventory        *int32
	IsActive         *bool
	ImageURLs        []string
}

func (in ProductInput) apply(p *domain.Product) {
	p.CategoryID = in.CategoryID
	p.SubcategoryID = in.SubcategoryID
	p.SubSubcategoryID = in.SubSubcategoryID
	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.Specification = in.Specification
	p.IsDropshipping = in.IsDropshipping
	p.ExternalID = in.ExternalID
	p.ExternalURL = in.ExternalURL
	p.BasePrice = in.BasePrice
	p.MarkupPercentage = domain.DefaultMarkupPercentage
	if in.MarkupPercentage != nil {
		p.MarkupPercentage = *in.MarkupPercentage
	}
	p.UnitPrice = in.UnitPrice
	p.Inventory = in.Inventory
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	p.ImageURLs = in.ImageURLs
}

// CreateProduct добавляет товар в магазин вызывающего и рассчитывает цену продажи.
func (s *Service) CreateProduct(ctx context.Context, actorID, storeID string, in ProductInput) (domain.Product, error) {
	if actorID == "" {
		return domain.Product{}, domain.ErrIdentityRequired
	}
	product := domain.Product{
		ID:        uuid.NewString(),
		StoreID:   storeID,
		IsActive:  true,
		CreatedAt: s.now(),
	}
	in.apply(&product)
	if err := prepareProduct(&product); err != nil {
		return domain.Product{}, err
	}

	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		if err := requireStoreOwner(ctx, tx.Catalog(), storeID, actorID); err != nil {
			return err
		}
		return tx.Catalog().CreateProduct(ctx, product)
	})
	if err != nil {
		return domain.Product{}, err
	}
	s.logger.WithFields(log.Fields{
		"product_id": product.ID,
		"store_id":   product.StoreID,
		"unit_price": product.UnitPrice.StringFixed(domain.MoneyScale),
	}).Info("product created")
	return product, nil
}

// UpdateProduct перезаписывает поля товара и пересчитывает цену. Уже оформленные
// заказы не меняются: в них хранится снимок цены.
func (s *Service) UpdateProduct(ctx context.Context, actorID, productID string, in ProductInput) (domain.Product, error) {
	if actorID == "" {
		return domain.Product{}, domain.ErrIdentityRequired
	}

	var product domain.Product
	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		var err error
		product, err = tx.Catalog().GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if err := requireStoreOwner(ctx, tx.Catalog(), product.StoreID, actorID); err != nil {
			return err
		}
		in.apply(&product)
		if err := prepareProduct(&product); err != nil {
			return err
		}
		return tx.Catalog().UpdateProduct(ctx, product)
	})
	if err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

func prepareProduct(p *domain.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return p.Reprice()
}

func requireStoreOwner(ctx context.Context, repo domain.CatalogRepository, storeID, actorID string) error {
	if storeID == "" {
		return domain.ErrStoreRequired
	}
	store, err := repo.GetStore(ctx, storeID)
	if err != nil {
		return err
	}
	if store.OwnerID != actorID {
		return domain.ErrForbidden
	}
	return nil
}

// ProductDetails дополняет товар сводкой оценок.
type ProductDetails struct {
	Product domain.Product
	Rating  domain.RatingSummary
}

// GetProduct возвращает активный товар с рейтингом; неактивные товары скрыты.
func (s *Service) GetProduct(ctx context.Context, id string) (ProductDetails, error) {
	product, err := s.store.Catalog().GetProduct(ctx, id)
	if err != nil {
		return ProductDetails{}, err
	}
	if !product.IsActive {
		return ProductDetails{}, domain.ErrProductNotFound
	}
	summary, err := s.store.Feedback().RatingSummary(ctx, domain.FeedbackTargetProduct, id)
	if err != nil {
		return ProductDetails{}, err
	}
	return ProductDetails{Product: product, Rating: summary}, nil
}

// ListProducts возвращает активные товары по фильтру.
func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	if filter.Ordering == "" {
		filter.Ordering = domain.OrderByCreatedDesc
	}
	if !filter.Ordering.Valid() {
		return nil, domain.Validation("unsupported ordering %q", filter.Ordering)
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, domain.Validation("limit and offset must be non-negative")
	}
	if filter.PriceGT != nil && filter.PriceLT != nil && !filter.PriceGT.LessThan(*filter.PriceLT) {
		return []domain.Product{}, nil
	}
	filter.IncludeInactive = false
	return s.store.Catalog().ListProducts(ctx, filter)
}

// AddToWishlist добавляет товар в список желаний; повторное добавление возвращает существующую запись.
func (s *Service) AddToWishlist(ctx context.Context, userID, productID string) (domain.WishlistEntry, error) {
	if userID == "" {
		return domain.WishlistEntry{}, domain.ErrIdentityRequired
	}
	if _, err := s.store.Catalog().GetProduct(ctx, productID); err != nil {
		return domain.WishlistEntry{}, err
	}
	return s.store.Wishlist().Add(ctx, domain.WishlistEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		ProductID: productID,
		CreatedAt: s.now(),
	})
}

// Wishlist возвращает список желаний пользователя.
func (s *Service) Wishlist(ctx context.Context, userID string) ([]domain.WishlistEntry, error) {
	if userID == "" {
		return nil, domain.ErrIdentityRequired
	}
	return s.store.Wishlist().List(ctx, userID)
}

// RemoveFromWishlist удаляет товар из списка; отсутствующая запись не считается ошибкой.
func (s *Service) RemoveFromWishlist(ctx context.Context, userID, productID string) error {
	if userID == "" {
		return domain.ErrIdentityRequired
	}
	return s.store.Wishlist().Remove(ctx, userID, productID)
}
