package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestProductReprice(t *testing.T) {
	base := decimal.RequireFromString("10.00")
	tests := []struct {
		name    string
		product Product
		want    string
	}{
		{
			name:    "dropshipping default markup",
			product: Product{IsDropshipping: true, BasePrice: &base, MarkupPercentage: DefaultMarkupPercentage},
			want:    "13",
		},
		{
			name:    "dropshipping custom markup rounds to cents",
			product: Product{IsDropshipping: true, BasePrice: &base, MarkupPercentage: decimal.RequireFromString("12.345")},
			want:    "11.23",
		},
		{
			name:    "dropshipping without base price keeps unit price",
			product: Product{IsDropshipping: true, UnitPrice: decimal.RequireFromString("7.5"), MarkupPercentage: DefaultMarkupPercentage},
			want:    "7.5",
		},
		{
			name:    "regular product ignores base price",
			product: Product{BasePrice: &base, UnitPrice: decimal.RequireFromString("4.999"), MarkupPercentage: DefaultMarkupPercentage},
			want:    "5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.product
			require.NoError(t, p.Reprice())
			require.True(t, p.UnitPrice.Equal(decimal.RequireFromString(tt.want)), "got %s want %s", p.UnitPrice, tt.want)
		})
	}
}

func TestProductRepriceRejectsNegativeValues(t *testing.T) {
	negative := decimal.NewFromInt(-1)

	p := Product{UnitPrice: negative}
	require.True(t, errors.Is(p.Reprice(), ErrItemPriceInvalid))

	p = Product{IsDropshipping: true, BasePrice: &negative}
	require.Equal(t, KindValidation, KindOf(p.Reprice()))

	p = Product{MarkupPercentage: negative}
	require.Equal(t, KindValidation, KindOf(p.Reprice()))
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Home & Garden":    "home-garden",
		"  Phones  ":       "phones",
		"Men's T-Shirts!!": "men-s-t-shirts",
		"snake_case":       "snake_case",
		"***":              "",
	}
	for in, want := range tests {
		require.Equal(t, want, Slugify(in), "input %q", in)
	}
}

func TestCategoryNormalize(t *testing.T) {
	c := Category{Name: " Smart Phones "}
	require.NoError(t, c.Normalize())
	require.Equal(t, "Smart Phones", c.Name)
	require.Equal(t, "smart-phones", c.Slug)

	c = Category{Name: "Phones", Slug: "Mobile Phones"}
	require.NoError(t, c.Normalize())
	require.Equal(t, "mobile-phones", c.Slug)

	c = Category{Name: "  "}
	require.ErrorIs(t, c.Normalize(), ErrNameRequired)
}
