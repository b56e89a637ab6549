package memory

import (
	"context"
	"slices"
	"sort"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type messageRepository struct {
	v view
}

func (r messageRepository) Create(_ context.Context, msg domain.Message) error {
	return r.v.write(func(st *state) error {
		st.messages[msg.ID] = msg
		return nil
	})
}

func (r messageRepository) Get(_ context.Context, id string) (domain.Message, error) {
	var msg domain.Message
	err := r.v.read(func(st *state) error {
		m, ok := st.messages[id]
		if !ok {
			return domain.ErrMessageNotFound
		}
		msg = m
		return nil
	})
	return msg, err
}

func (r messageRepository) ListForUser(_ context.Context, userID string, storeIDs []string) ([]domain.Message, error) {
	var result []domain.Message
	err := r.v.read(func(st *state) error {
		for _, m := range st.messages {
			if m.SenderID == userID || m.ReceiverUserID == userID ||
				(m.ReceiverStoreID != "" && slices.Contains(storeIDs, m.ReceiverStoreID)) {
				result = append(result, m)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, err
}

func (r messageRepository) MarkRead(_ context.Context, id string) error {
	return r.v.write(func(st *state) error {
		m, ok := st.messages[id]
		if !ok {
			return domain.ErrMessageNotFound
		}
		m.IsRead = true
		st.messages[id] = m
		return nil
	})
}

var _ domain.MessageRepository = messageRepository{}

type wishlistRepository struct {
	v view
}

func (r wishlistRepository) Add(_ context.Context, entry domain.WishlistEntry) (domain.WishlistEntry, error) {
	err := r.v.write(func(st *state) error {
		key := entry.UserID + "/" + entry.ProductID
		if existing, ok := st.wishlist[key]; ok {
			entry = existing
			return nil
		}
		if _, ok := st.products[entry.ProductID]; !ok {
			return domain.ErrProductNotFound
		}
		st.wishlist[key] = entry
		return nil
	})
	return entry, err
}

func (r wishlistRepository) List(_ context.Context, userID string) ([]domain.WishlistEntry, error) {
	var result []domain.WishlistEntry
	err := r.v.read(func(st *state) error {
		for _, e := range st.wishlist {
			if e.UserID == userID {
				result = append(result, e)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, err
}

func (r wishlistRepository) Remove(_ context.Context, userID, productID string) error {
	return r.v.write(func(st *state) error {
		delete(st.wishlist, userID+"/"+productID)
		return nil
	})
}

var _ domain.WishlistRepository = wishlistRepository{}
