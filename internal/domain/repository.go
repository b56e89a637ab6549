package domain

import (
	"context"
	"time"
)

// CatalogRepository хранит магазины, категории и товары.
type CatalogRepository interface {
	CreateStore(ctx context.Context, store Store) error
	// GetStore возвращает магазин или ErrStoreNotFound.
	GetStore(ctx context.Context, id string) (Store, error)
	ListStores(ctx context.Context, filter StoreFilter) ([]Store, error)
	// ListStoreIDsByOwner возвращает магазины, которыми владеет пользователь.
	ListStoreIDsByOwner(ctx context.Context, ownerID string) ([]string, error)

	// CreateCategory сохраняет категорию; занятый slug даёт ErrSlugTaken.
	CreateCategory(ctx context.Context, category Category) error
	GetCategory(ctx context.Context, id string) (Category, error)
	// ListCategories возвращает потомков parentID (корневые при пустом parentID).
	ListCategories(ctx context.Context, parentID string, onlyActive bool) ([]Category, error)

	CreateProduct(ctx context.Context, product Product) error
	UpdateProduct(ctx context.Context, product Product) error
	// GetProduct возвращает товар или ErrProductNotFound.
	GetProduct(ctx context.Context, id string) (Product, error)
	// GetProducts возвращает найденные товары по ID; отсутствующие просто пропускаются.
	GetProducts(ctx context.Context, ids []string) (map[string]Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
}

// CartRepository хранит корзины и их строки.
type CartRepository interface {
	// GetOrCreateActive атомарно возвращает активную корзину (owner, store) или создаёт её.
	GetOrCreateActive(ctx context.Context, ownerID, storeID string, now time.Time) (Cart, error)
	// LatestActive возвращает самую свежую активную корзину владельца или ErrCartNotFound.
	// При forUpdate корзина блокируется до конца транзакции.
	LatestActive(ctx context.Context, ownerID string, forUpdate bool) (Cart, error)
	ListActive(ctx context.Context, ownerID string) ([]Cart, error)
	Get(ctx context.Context, id string) (Cart, error)
	// Deactivate закрывает корзину, только если она ещё активна; иначе ErrCartNotActive.
	Deactivate(ctx context.Context, cartID string) error

	// UpsertItem атомарно вставляет строку или увеличивает её количество на delta.
	UpsertItem(ctx context.Context, cartID, productID string, delta int32, now time.Time) (CartItem, error)
	GetItem(ctx context.Context, itemID string) (CartItem, error)
	SetItemQuantity(ctx context.Context, itemID string, qty int32, now time.Time) (CartItem, error)
	DeleteItem(ctx context.Context, itemID string) error
	ListItems(ctx context.Context, cartIDs ...string) ([]CartItem, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ вместе с позициями. Повтор id даёт ErrOrderExists,
	// повтор reference даёт ErrOrderReferenceTaken.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// ListByOwner возвращает заказы покупателя с опциональным ограничением на количество.
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]Order, error)
	ListByStore(ctx context.Context, storeID string, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
}

// PaymentRepository хранит платежи.
type PaymentRepository interface {
	// Create сохраняет платёж; повтор reference даёт ErrPaymentReferenceTaken.
	Create(ctx context.Context, payment Payment) error
	// GetByReference возвращает платёж или ErrPaymentNotFound; forUpdate блокирует строку.
	GetByReference(ctx context.Context, reference string, forUpdate bool) (Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]Payment, error)
	// Save обновляет статус, признак сверки и время оплаты.
	Save(ctx context.Context, payment Payment) error
}

// FeedbackRepository хранит оценки и отзывы.
type FeedbackRepository interface {
	// UpsertRating создаёт оценку или заменяет оценку того же пользователя.
	UpsertRating(ctx context.Context, rating Rating) (Rating, error)
	ListRatings(ctx context.Context, target FeedbackTarget, targetID string) ([]Rating, error)
	RatingSummary(ctx context.Context, target FeedbackTarget, targetID string) (RatingSummary, error)

	CreateReview(ctx context.Context, review Review) error
	GetReview(ctx context.Context, id string) (Review, error)
	UpdateReview(ctx context.Context, review Review) error
	DeleteReview(ctx context.Context, id string) error
	ListReviews(ctx context.Context, target FeedbackTarget, targetID string) ([]Review, error)
}

// MessageRepository хранит переписку пользователей и магазинов.
type MessageRepository interface {
	Create(ctx context.Context, msg Message) error
	Get(ctx context.Context, id string) (Message, error)
	// ListForUser возвращает отправленные и полученные сообщения, включая адресованные магазинам пользователя.
	ListForUser(ctx context.Context, userID string, storeIDs []string) ([]Message, error)
	MarkRead(ctx context.Context, id string) error
}

// WishlistRepository хранит списки желаний.
type WishlistRepository interface {
	// Add возвращает существующую запись, если товар уже в списке.
	Add(ctx context.Context, entry WishlistEntry) (WishlistEntry, error)
	List(ctx context.Context, userID string) ([]WishlistEntry, error)
	Remove(ctx context.Context, userID, productID string) error
}

// Repositories объединяет репозитории одной единицы работы.
type Repositories interface {
	Catalog() CatalogRepository
	Carts() CartRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	Feedback() FeedbackRepository
	Messages() MessageRepository
	Wishlist() WishlistRepository
	Timeline() TimelineRepository
	Outbox() OutboxRepository
}

// Storage объединяет репозитории с транзакционной границей.
type Storage interface {
	Repositories
	// WithinTx выполняет fn в одной транзакции: ошибка fn откатывает все изменения.
	WithinTx(ctx context.Context, fn func(tx Repositories) error) error
	Ping(ctx context.Context) error
}
