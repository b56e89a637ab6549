package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// CartStatus описывает состояние корзины.
type CartStatus string

const (
	// CartStatusActive — корзина наполняется покупателем.
	CartStatusActive CartStatus = "active"
	// CartStatusInactive — корзина закрыта оформлением заказа.
	CartStatusInactive CartStatus = "inactive"
)

// Cart описывает корзину покупателя в конкретном магазине.
type Cart struct {
	ID        string
	OwnerID   string
	StoreID   string
	Status    CartStatus
	CreatedAt time.Time
}

// IsActive сообщает, принимает ли корзина изменения.
func (c Cart) IsActive() bool { return c.Status == CartStatusActive }

// CartItem описывает строку корзины. Пара (CartID, ProductID) уникальна, Quantity > 0.
type CartItem struct {
	ID        string
	CartID    string
	ProductID string
	Quantity  int32
	UpdatedAt time.Time
}

// CartLine дополняет строку корзины актуальной ценой товара.
type CartLine struct {
	Item        CartItem
	ProductName string
	UnitPrice   decimal.Decimal
	// Available равен false, если товар удалён; такая строка стоит 0.
	Available bool
}

// Total возвращает стоимость строки по текущей цене.
func (l CartLine) Total() decimal.Decimal {
	if !l.Available {
		return decimal.Zero
	}
	return LineTotal(l.Item.Quantity, l.UnitPrice)
}

// PriceLines сопоставляет строки корзины с товарами.
// Строки, для которых товар не найден, помечаются недоступными.
func PriceLines(items []CartItem, products map[string]Product) []CartLine {
	lines := make([]CartLine, 0, len(items))
	for _, item := range items {
		line := CartLine{Item: item}
		if p, ok := products[item.ProductID]; ok {
			line.ProductName = p.Name
			line.UnitPrice = p.UnitPrice
			line.Available = true
		}
		lines = append(lines, line)
	}
	return lines
}

// LinesTotal суммирует стоимость строк.
func LinesTotal(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Total())
	}
	return RoundMoney(total)
}

// SortCartsNewestFirst упорядочивает корзины по убыванию времени создания, при равенстве по ID.
func SortCartsNewestFirst(carts []Cart) {
	sort.SliceStable(carts, func(i, j int) bool {
		if !carts[i].CreatedAt.Equal(carts[j].CreatedAt) {
			return carts[i].CreatedAt.After(carts[j].CreatedAt)
		}
		return carts[i].ID > carts[j].ID
	})
}
