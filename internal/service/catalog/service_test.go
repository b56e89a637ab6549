package catalog_test

import (
	"context"
	"io"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/catalog"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "test")
}

func newService(t *testing.T) (*catalog.Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return catalog.NewService(store, loggerForTests()), store
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestCreateStoreAndRating(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	_, err := svc.CreateStore(ctx, catalog.CreateStoreRequest{Name: "Shop"})
	require.ErrorIs(t, err, domain.ErrIdentityRequired)
	_, err = svc.CreateStore(ctx, catalog.CreateStoreRequest{OwnerID: "seller", Name: "  "})
	require.ErrorIs(t, err, domain.ErrNameRequired)

	shop, err := svc.CreateStore(ctx, catalog.CreateStoreRequest{OwnerID: "seller", Name: " Lamps "})
	require.NoError(t, err)
	require.Equal(t, "Lamps", shop.Name)

	for user, score := range map[string]int{"u1": 4, "u2": 5} {
		_, err := store.Feedback().UpsertRating(ctx, domain.Rating{TargetType: domain.FeedbackTargetStore, TargetID: shop.ID, UserID: user, Score: score})
		require.NoError(t, err)
	}

	details, err := svc.GetStore(ctx, shop.ID)
	require.NoError(t, err)
	require.Equal(t, 2, details.Rating.Count)
	require.InDelta(t, 4.5, details.Rating.Average, 1e-9)

	stores, err := svc.ListStores(ctx, domain.StoreFilter{Search: "lam"})
	require.NoError(t, err)
	require.Len(t, stores, 1)
}

func TestCategoryTree(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	inactive := false

	root, err := svc.CreateCategory(ctx, catalog.CreateCategoryRequest{Name: "Home & Garden"})
	require.NoError(t, err)
	require.Equal(t, "home-garden", root.Slug)
	require.True(t, root.IsActive)

	sub, err := svc.CreateCategory(ctx, catalog.CreateCategoryRequest{Name: "Lighting", ParentID: root.ID})
	require.NoError(t, err)
	_, err = svc.CreateCategory(ctx, catalog.CreateCategoryRequest{Name: "Hidden", ParentID: root.ID, IsActive: &inactive})
	require.NoError(t, err)
	leaf, err := svc.CreateCategory(ctx, catalog.CreateCategoryRequest{Name: "Desk lamps", ParentID: sub.ID})
	require.NoError(t, err)

	_, err = svc.CreateCategory(ctx, catalog.CreateCategoryRequest{Name: "Too deep", ParentID: leaf.ID})
	require.Equal(t, domain.KindValidation, domain.KindOf(err))
	_, err = svc.CreateCategory(ctx, catalog.CreateCategoryRequest{Name: "Lighting 2", Slug: "lighting"})
	require.ErrorIs(t, err, domain.ErrSlugTaken)
	_, err = svc.CreateCategory(ctx, catalog.CreateCategoryRequest{Name: "Orphan", ParentID: "missing"})
	require.ErrorIs(t, err, domain.ErrCategoryNotFound)

	tree, err := svc.CategoryTree(ctx)
	require.NoError(t, err)
	require.Len(t, tree, 1)
	require.Len(t, tree[0].Children, 1)
	require.Equal(t, sub.ID, tree[0].Children[0].Category.ID)
	require.Len(t, tree[0].Children[0].Children, 1)
	require.Equal(t, leaf.ID, tree[0].Children[0].Children[0].Category.ID)

	subs, err := svc.Subcategories(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
}

func TestCreateProductPricing(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	shop, err := svc.CreateStore(ctx, catalog.CreateStoreRequest{OwnerID: "seller", Name: "Shop"})
	require.NoError(t, err)

	cases := []struct {
		name string
		in   catalog.ProductInput
		want string
	}{
		{name: "plain price", in: catalog.ProductInput{Name: "Chair", UnitPrice: decimal.RequireFromString("19.999")}, want: "20.00"},
		{name: "dropship default markup", in: catalog.ProductInput{Name: "Lamp", IsDropshipping: true, BasePrice: dec("10")}, want: "13.00"},
		{name: "dropship custom markup", in: catalog.ProductInput{Name: "Desk", IsDropshipping: true, BasePrice: dec("10"), MarkupPercentage: dec("50")}, want: "15.00"},
		{name: "dropship without base price", in: catalog.ProductInput{Name: "Rug", IsDropshipping: true, UnitPrice: decimal.RequireFromString("7.5")}, want: "7.50"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := svc.CreateProduct(ctx, "seller", shop.ID, tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, p.UnitPrice.StringFixed(2))
			require.True(t, p.IsActive)
		})
	}

	_, err = svc.CreateProduct(ctx, "intruder", shop.ID, catalog.ProductInput{Name: "X", UnitPrice: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.CreateProduct(ctx, "seller", shop.ID, catalog.ProductInput{Name: "X", UnitPrice: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, domain.ErrItemPriceInvalid)
	_, err = svc.CreateProduct(ctx, "seller", shop.ID, catalog.ProductInput{Name: "X", IsDropshipping: true, BasePrice: dec("1"), MarkupPercentage: dec("-5")})
	require.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestUpdateProductAndVisibility(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	shop, err := svc.CreateStore(ctx, catalog.CreateStoreRequest{OwnerID: "seller", Name: "Shop"})
	require.NoError(t, err)
	p, err := svc.CreateProduct(ctx, "seller", shop.ID, catalog.ProductInput{Name: "Lamp", IsDropshipping: true, BasePrice: dec("10")})
	require.NoError(t, err)

	_, err = svc.UpdateProduct(ctx, "intruder", p.ID, catalog.ProductInput{Name: "Lamp"})
	require.ErrorIs(t, err, domain.ErrForbidden)

	off := false
	updated, err := svc.UpdateProduct(ctx, "seller", p.ID, catalog.ProductInput{Name: "Lamp", IsDropshipping: true, BasePrice: dec("20"), IsActive: &off})
	require.NoError(t, err)
	require.Equal(t, "26.00", updated.UnitPrice.StringFixed(2))

	_, err = svc.GetProduct(ctx, p.ID)
	require.ErrorIs(t, err, domain.ErrProductNotFound)

	list, err := svc.ListProducts(ctx, domain.ProductFilter{})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestListProductsValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.ListProducts(ctx, domain.ProductFilter{Ordering: "name"})
	require.Equal(t, domain.KindValidation, domain.KindOf(err))
	_, err = svc.ListProducts(ctx, domain.ProductFilter{Limit: -1})
	require.Equal(t, domain.KindValidation, domain.KindOf(err))

	got, err := svc.ListProducts(ctx, domain.ProductFilter{PriceGT: dec("10"), PriceLT: dec("5")})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestWishlist(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	shop, err := svc.CreateStore(ctx, catalog.CreateStoreRequest{OwnerID: "seller", Name: "Shop"})
	require.NoError(t, err)
	p, err := svc.CreateProduct(ctx, "seller", shop.ID, catalog.ProductInput{Name: "Lamp", UnitPrice: decimal.NewFromInt(3)})
	require.NoError(t, err)

	first, err := svc.AddToWishlist(ctx, "u1", p.ID)
	require.NoError(t, err)
	second, err := svc.AddToWishlist(ctx, "u1", p.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	_, err = svc.AddToWishlist(ctx, "u1", "missing")
	require.ErrorIs(t, err, domain.ErrProductNotFound)

	entries, err := svc.Wishlist(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, svc.RemoveFromWishlist(ctx, "u1", p.ID))
	require.NoError(t, svc.RemoveFromWishlist(ctx, "u1", p.ID))
	entries, err = svc.Wishlist(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, entries)

	_, err = svc.Wishlist(ctx, "")
	require.ErrorIs(t, err, domain.ErrIdentityRequired)
}
