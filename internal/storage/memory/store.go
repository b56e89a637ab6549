package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Store хранит данные в памяти для локальной разработки и тестов.
// Транзакции реализованы копированием состояния: WithinTx работает с копией
// под эксклюзивной блокировкой и подменяет состояние только при успехе fn.
type Store struct {
	mu sync.RWMutex
	st *state
	repositories
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore() *Store {
	s := &Store{st: newState()}
	s.repositories = repositories{v: view{root: s}}
	return s
}

// WithinTx выполняет fn атомарно: все изменения видны только после успешного завершения.
func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.st.clone()
	if err := fn(repositories{v: view{tx: tx}}); err != nil {
		return err
	}
	s.st = tx
	return nil
}

// Ping всегда успешен для in-memory хранилища.
func (s *Store) Ping(context.Context) error { return nil }

type cartKey struct {
	ownerID string
	storeID string
}

type cartItemRecord struct {
	item domain.CartItem
	seq  int64
}

// state содержит всё состояние хранилища. Значения в картах не мутируются на месте,
// поэтому clone копирует только карты и срезы timeline.
type state struct {
	seq        int64
	stores     map[string]domain.Store
	categories map[string]domain.Category
	products   map[string]domain.Product
	carts      map[string]domain.Cart
	activeCart map[cartKey]string
	cartItems  map[string]cartItemRecord
	orders     map[string]domain.Order
	payments   map[string]domain.Payment // по reference
	ratings    map[string]domain.Rating
	reviews    map[string]domain.Review
	messages   map[string]domain.Message
	wishlist   map[string]domain.WishlistEntry
	timeline   map[string][]domain.TimelineEvent
	outbox     map[string]outboxRecord
}

func newState() *state {
	return &state{
		stores:     make(map[string]domain.Store),
		categories: make(map[string]domain.Category),
		products:   make(map[string]domain.Product),
		carts:      make(map[string]domain.Cart),
		activeCart: make(map[cartKey]string),
		cartItems:  make(map[string]cartItemRecord),
		orders:     make(map[string]domain.Order),
		payments:   make(map[string]domain.Payment),
		ratings:    make(map[string]domain.Rating),
		reviews:    make(map[string]domain.Review),
		messages:   make(map[string]domain.Message),
		wishlist:   make(map[string]domain.WishlistEntry),
		timeline:   make(map[string][]domain.TimelineEvent),
		outbox:     make(map[string]outboxRecord),
	}
}

func (st *state) clone() *state {
	timeline := make(map[string][]domain.TimelineEvent, len(st.timeline))
	for k, v := range st.timeline {
		timeline[k] = slices.Clone(v)
	}
	return &state{
		seq:        st.seq,
		stores:     maps.Clone(st.stores),
		categories: maps.Clone(st.categories),
		products:   maps.Clone(st.products),
		carts:      maps.Clone(st.carts),
		activeCart: maps.Clone(st.activeCart),
		cartItems:  maps.Clone(st.cartItems),
		orders:     maps.Clone(st.orders),
		payments:   maps.Clone(st.payments),
		ratings:    maps.Clone(st.ratings),
		reviews:    maps.Clone(st.reviews),
		messages:   maps.Clone(st.messages),
		wishlist:   maps.Clone(st.wishlist),
		timeline:   timeline,
		outbox:     maps.Clone(st.outbox),
	}
}

func (st *state) next() int64 {
	st.seq++
	return st.seq
}

// view даёт репозиториям доступ к состоянию: либо к корневому под блокировкой,
// либо к копии внутри транзакции (блокировку уже держит WithinTx).
type view struct {
	root *Store
	tx   *state
}

func (v view) read(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.root.mu.RLock()
	defer v.root.mu.RUnlock()
	return fn(v.root.st)
}

func (v view) write(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.root.mu.Lock()
	defer v.root.mu.Unlock()
	return fn(v.root.st)
}

type repositories struct {
	v view
}

func (r repositories) Catalog() domain.CatalogRepository { return catalogRepository{v: r.v} }
func (r repositories) Carts() domain.CartRepository { return cartRepository{v: r.v} }
func (r repositories) Orders() domain.OrderRepository { return orderRepository{v: r.v} }
func (r repositories) Payments() domain.PaymentRepository { return paymentRepository{v: r.v} }
func (r repositories) Feedback() domain.FeedbackRepository { return feedbackRepository{v: r.v} }
func (r repositories) Messages() domain.MessageRepository { return messageRepository{v: r.v} }
func (r repositories) Wishlist() domain.WishlistRepository { return wishlistRepository{v: r.v} }
func (r repositories) Timeline() domain.TimelineRepository { return timelineRepository{v: r.v} }
func (r repositories) Outbox() domain.OutboxRepository { return outboxRepository{v: r.v} }

var _ domain.Storage = (*Store)(nil)
