package domain

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// Store описывает магазин продавца на маркетплейсе.
type Store struct {
	ID          string
	OwnerID     string
	Name        string
	Description string
	LogoURL     string
	ContactInfo string
	Address     string
	CreatedAt   time.Time
}

// Validate проверяет обязательные поля магазина.
func (s *Store) Validate() error {
	if s.OwnerID == "" {
		return ErrOwnerRequired
	}
	if strings.TrimSpace(s.Name) == "" {
		return ErrNameRequired
	}
	return nil
}

// Category описывает узел дерева категорий (до трёх уровней).
type Category struct {
	ID         string
	Name       string
	Slug       string
	ParentID   string // Пустой для корневых категорий.
	ExternalID string
	IsActive   bool
	ImageURLs  []string
	CreatedAt  time.Time
}

// Normalize заполняет slug из имени, если он не задан.
func (c *Category) Normalize() error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return ErrNameRequired
	}
	if strings.TrimSpace(c.Slug) == "" {
		c.Slug = Slugify(c.Name)
	} else {
		c.Slug = Slugify(c.Slug)
	}
	if c.Slug == "" {
		return Validation("slug cannot be derived from name %q", c.Name)
	}
	return nil
}

// Slugify переводит строку в нижний регистр и заменяет разделители дефисами.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case r == '_':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Product описывает товар магазина.
type Product struct {
	ID               string
	StoreID          string
	CategoryID       string
	SubcategoryID    string
	SubSubcategoryID string
	Name             string
	Description      string
	Specification    string
	IsDropshipping   bool
	ExternalID       string
	ExternalURL      string
	BasePrice        *decimal.Decimal // Цена поставщика, задаётся только для dropshipping.
	MarkupPercentage decimal.Decimal
	UnitPrice        decimal.Decimal
	Inventory        *int32
	IsActive         bool
	ImageURLs        []string
	CreatedAt        time.Time
}

// Reprice пересчитывает цену продажи.
// Для dropshipping-товара с заданной базовой ценой unit_price = base * (1 + markup/100).
func (p *Product) Reprice() error {
	if p.MarkupPercentage.IsNegative() {
		return Validation("markup_percentage must be non-negative")
	}
	if p.IsDropshipping && p.BasePrice != nil {
		if p.BasePrice.IsNegative() {
			return Validation("base_price must be non-negative")
		}
		p.UnitPrice = ApplyMarkup(*p.BasePrice, p.MarkupPercentage)
		return nil
	}
	if p.UnitPrice.IsNegative() {
		return ErrItemPriceInvalid
	}
	p.UnitPrice = RoundMoney(p.UnitPrice)
	return nil
}

// Validate проверяет обязательные поля товара.
func (p *Product) Validate() error {
	if p.StoreID == "" {
		return ErrStoreRequired
	}
	if strings.TrimSpace(p.Name) == "" {
		return ErrNameRequired
	}
	if p.Inventory != nil && *p.Inventory < 0 {
		return Validation("inventory must be non-negative")
	}
	return nil
}

// CategoryIDs возвращает непустые ссылки товара на категории всех уровней.
func (p *Product) CategoryIDs() []string {
	ids := make([]string, 0, 3)
	for _, id := range []string{p.CategoryID, p.SubcategoryID, p.SubSubcategoryID} {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// ProductOrdering перечисляет допустимые варианты сортировки каталога.
type ProductOrdering string

const (
	OrderByCreatedDesc ProductOrdering = "-created_at"
	OrderByCreatedAsc  ProductOrdering = "created_at"
	OrderByPriceAsc    ProductOrdering = "unit_price"
	OrderByPriceDesc   ProductOrdering = "-unit_price"
)

// Valid проверяет, что сортировка поддерживается.
func (o ProductOrdering) Valid() bool {
	switch o {
	case OrderByCreatedDesc, OrderByCreatedAsc, OrderByPriceAsc, OrderByPriceDesc:
		return true
	default:
		return false
	}
}

// ProductFilter описывает фильтры листинга товаров.
type ProductFilter struct {
	StoreID            string
	CategorySlug       string
	SubcategorySlug    string
	SubSubcategorySlug string
	PriceGT            *decimal.Decimal
	PriceLT            *decimal.Decimal
	Search             string
	Ordering           ProductOrdering
	IncludeInactive    bool
	Limit              int
	Offset             int
}

// StoreFilter описывает фильтры листинга магазинов.
type StoreFilter struct {
	Name   string
	Search string
}
