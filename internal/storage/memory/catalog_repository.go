package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// catalogRepository реализует CatalogRepository в памяти.
type catalogRepository struct {
	v view
}

func (r catalogRepository) CreateStore(_ context.Context, store domain.Store) error {
	return r.v.write(func(st *state) error {
		if _, exists := st.stores[store.ID]; exists {
			return domain.Validation("store %s already exists", store.ID)
		}
		st.stores[store.ID] = store
		return nil
	})
}

func (r catalogRepository) GetStore(_ context.Context, id string) (domain.Store, error) {
	var store domain.Store
	err := r.v.read(func(st *state) error {
		s, ok := st.stores[id]
		if !ok {
			return domain.ErrStoreNotFound
		}
		store = s
		return nil
	})
	return store, err
}

// ListStores фильтрует по точному имени и подстроке в имени/описании.
func (r catalogRepository) ListStores(_ context.Context, filter domain.StoreFilter) ([]domain.Store, error) {
	var result []domain.Store
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	err := r.v.read(func(st *state) error {
		for _, s := range st.stores {
			if filter.Name != "" && s.Name != filter.Name {
				continue
			}
			if search != "" &&
				!strings.Contains(strings.ToLower(s.Name), search) &&
				!strings.Contains(strings.ToLower(s.Description), search) {
				continue
			}
			result = append(result, s)
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

func (r catalogRepository) ListStoreIDsByOwner(_ context.Context, ownerID string) ([]string, error) {
	var ids []string
	err := r.v.read(func(st *state) error {
		for _, s := range st.stores {
			if s.OwnerID == ownerID {
				ids = append(ids, s.ID)
			}
		}
		return nil
	})
	sort.Strings(ids)
	return ids, err
}

func (r catalogRepository) CreateCategory(_ context.Context, category domain.Category) error {
	return r.v.write(func(st *state) error {
		for _, c := range st.categories {
			if c.Slug == category.Slug {
				return domain.ErrSlugTaken
			}
			if category.ExternalID != "" && c.ExternalID == category.ExternalID {
				return domain.Validation("category with external_id %s already exists", category.ExternalID)
			}
		}
		if category.ParentID != "" {
			if _, ok := st.categories[category.ParentID]; !ok {
				return domain.ErrCategoryNotFound
			}
		}
		st.categories[category.ID] = category
		return nil
	})
}

func (r catalogRepository) GetCategory(_ context.Context, id string) (domain.Category, error) {
	var category domain.Category
	err := r.v.read(func(st *state) error {
		c, ok := st.categories[id]
		if !ok {
			return domain.ErrCategoryNotFound
		}
		category = c
		return nil
	})
	return category, err
}

func (r catalogRepository) ListCategories(_ context.Context, parentID string, onlyActive bool) ([]domain.Category, error) {
	var result []domain.Category
	err := r.v.read(func(st *state) error {
		for _, c := range st.categories {
			if c.ParentID != parentID {
				continue
			}
			if onlyActive && !c.IsActive {
				continue
			}
			result = append(result, c)
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, err
}

func (r catalogRepository) CreateProduct(_ context.Context, product domain.Product) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.stores[product.StoreID]; !ok {
			return domain.ErrStoreNotFound
		}
		for _, id := range product.CategoryIDs() {
			if _, ok := st.categories[id]; !ok {
				return domain.ErrCategoryNotFound
			}
		}
		st.products[product.ID] = product
		return nil
	})
}

func (r catalogRepository) UpdateProduct(_ context.Context, product domain.Product) error {
	return r.v.write(func(st *state) error {
		current, ok := st.products[product.ID]
		if !ok {
			return domain.ErrProductNotFound
		}
		for _, id := range product.CategoryIDs() {
			if _, ok := st.categories[id]; !ok {
				return domain.ErrCategoryNotFound
			}
		}
		product.StoreID = current.StoreID
		product.CreatedAt = current.CreatedAt
		st.products[product.ID] = product
		return nil
	})
}

func (r catalogRepository) GetProduct(_ context.Context, id string) (domain.Product, error) {
	var product domain.Product
	err := r.v.read(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return domain.ErrProductNotFound
		}
		product = p
		return nil
	})
	return product, err
}

func (r catalogRepository) GetProducts(_ context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	err := r.v.read(func(st *state) error {
		for _, id := range ids {
			if p, ok := st.products[id]; ok {
				result[id] = p
			}
		}
		return nil
	})
	return result, err
}

// ListProducts повторяет семантику SQL-фильтра: slug категорий, диапазон цены,
// поиск по имени товара и именам его категорий.
func (r catalogRepository) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	var result []domain.Product
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	err := r.v.read(func(st *state) error {
		slugOf := func(id string) string {
			if id == "" {
				return ""
			}
			return st.categories[id].Slug
		}
		for _, p := range st.products {
			if !filter.IncludeInactive && !p.IsActive {
				continue
			}
			if filter.StoreID != "" && p.StoreID != filter.StoreID {
				continue
			}
			if filter.CategorySlug != "" && slugOf(p.CategoryID) != filter.CategorySlug {
				continue
			}
			if filter.SubcategorySlug != "" && slugOf(p.SubcategoryID) != filter.SubcategorySlug {
				continue
			}
			if filter.SubSubcategorySlug != "" && slugOf(p.SubSubcategoryID) != filter.SubSubcategorySlug {
				continue
			}
			if filter.PriceGT != nil && !p.UnitPrice.GreaterThan(*filter.PriceGT) {
				continue
			}
			if filter.PriceLT != nil && !p.UnitPrice.LessThan(*filter.PriceLT) {
				continue
			}
			if search != "" && !productMatches(st, p, search) {
				continue
			}
			result = append(result, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortProducts(result, filter.Ordering)
	return paginate(result, filter.Offset, filter.Limit), nil
}

func productMatches(st *state, p domain.Product, search string) bool {
	if strings.Contains(strings.ToLower(p.Name), search) {
		return true
	}
	for _, id := range p.CategoryIDs() {
		if strings.Contains(strings.ToLower(st.categories[id].Name), search) {
			return true
		}
	}
	return false
}

func sortProducts(products []domain.Product, ordering domain.ProductOrdering) {
	sort.Slice(products, func(i, j int) bool {
		a, b := products[i], products[j]
		switch ordering {
		case domain.OrderByPriceAsc:
			if !a.UnitPrice.Equal(b.UnitPrice) {
				return a.UnitPrice.LessThan(b.UnitPrice)
			}
		case domain.OrderByPriceDesc:
			if !a.UnitPrice.Equal(b.UnitPrice) {
				return a.UnitPrice.GreaterThan(b.UnitPrice)
			}
		case domain.OrderByCreatedAsc:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

var _ domain.CatalogRepository = catalogRepository{}
