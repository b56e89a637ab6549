package http

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/cart"
	"github.com/vladislavdragonenkov/marketplace/internal/service/catalog"
)

func money(d decimal.Decimal) string {
	return d.StringFixed(domain.MoneyScale)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

type ratingDTO struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

type storeDTO struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	LogoURL     string     `json:"logo_url,omitempty"`
	ContactInfo string     `json:"contact_info"`
	Address     string     `json:"address"`
	Rating      *ratingDTO `json:"rating,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toStoreDTO(s domain.Store) storeDTO {
	return storeDTO{
		ID:          s.ID,
		OwnerID:     s.OwnerID,
		Name:        s.Name,
		Description: s.Description,
		LogoURL:     s.LogoURL,
		ContactInfo: s.ContactInfo,
		Address:     s.Address,
		CreatedAt:   s.CreatedAt,
	}
}

type categoryDTO struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Slug          string        `json:"slug"`
	ParentID      string        `json:"parent_id,omitempty"`
	ExternalID    string        `json:"external_id,omitempty"`
	IsActive      bool          `json:"is_active"`
	ImageURLs     []string      `json:"image_urls"`
	Subcategories []categoryDTO `json:"subcategories,omitempty"`
}

func toCategoryDTO(c domain.Category) categoryDTO {
	images := c.ImageURLs
	if images == nil {
		images = []string{}
	}
	return categoryDTO{
		ID:         c.ID,
		Name:       c.Name,
		Slug:       c.Slug,
		ParentID:   c.ParentID,
		ExternalID: c.ExternalID,
		IsActive:   c.IsActive,
		ImageURLs:  images,
	}
}

func toCategoryTree(nodes []catalog.CategoryNode) []categoryDTO {
	out := make([]categoryDTO, 0, len(nodes))
	for _, node := range nodes {
		dto := toCategoryDTO(node.Category)
		if len(node.Children) > 0 {
			dto.Subcategories = toCategoryTree(node.Children)
		}
		out = append(out, dto)
	}
	return out
}

type productDTO struct {
	ID               string     `json:"id"`
	StoreID          string     `json:"store_id"`
	CategoryID       string     `json:"category_id,omitempty"`
	SubcategoryID    string     `json:"subcategory_id,omitempty"`
	SubSubcategoryID string     `json:"sub_subcategory_id,omitempty"`
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	Specification    string     `json:"specification"`
	IsDropshipping   bool       `json:"is_dropshipping"`
	ExternalID       string     `json:"external_id,omitempty"`
	ExternalURL      string     `json:"external_url,omitempty"`
	BasePrice        *string    `json:"base_price"`
	MarkupPercentage string     `json:"markup_percentage"`
	UnitPrice        string     `json:"unit_price"`
	Inventory        *int32     `json:"inventory"`
	IsActive         bool       `json:"is_active"`
	ImageURLs        []string   `json:"image_urls"`
	Rating           *ratingDTO `json:"rating,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func toProductDTO(p domain.Product) productDTO {
	var base *string
	if p.BasePrice != nil {
		s := money(*p.BasePrice)
		base = &s
	}
	images := p.ImageURLs
	if images == nil {
		images = []string{}
	}
	return productDTO{
		ID:               p.ID,
		StoreID:          p.StoreID,
		CategoryID:       p.CategoryID,
		SubcategoryID:    p.SubcategoryID,
		SubSubcategoryID: p.SubSubcategoryID,
		Name:             p.Name,
		Description:      p.Description,
		Specification:    p.Specification,
		IsDropshipping:   p.IsDropshipping,
		ExternalID:       p.ExternalID,
		ExternalURL:      p.ExternalURL,
		BasePrice:        base,
		MarkupPercentage: money(p.MarkupPercentage),
		UnitPrice:        money(p.UnitPrice),
		Inventory:        p.Inventory,
		IsActive:         p.IsActive,
		ImageURLs:        images,
		CreatedAt:        p.CreatedAt,
	}
}

type cartLineDTO struct {
	ID          string `json:"id"`
	CartID      string `json:"cart_id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	Quantity    int32  `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Total       string `json:"total"`
	Available   bool   `json:"available"`
}

func toCartLineDTO(l domain.CartLine) cartLineDTO {
	return cartLineDTO{
		ID:          l.Item.ID,
		CartID:      l.Item.CartID,
		ProductID:   l.Item.ProductID,
		ProductName: l.ProductName,
		Quantity:    l.Item.Quantity,
		UnitPrice:   money(l.UnitPrice),
		Total:       money(l.Total()),
		Available:   l.Available,
	}
}

func toCartLineDTOs(lines []domain.CartLine) []cartLineDTO {
	out := make([]cartLineDTO, 0, len(lines))
	for _, l := range lines {
		out = append(out, toCartLineDTO(l))
	}
	return out
}

type cartItemDTO struct {
	ID        string    `json:"id"`
	CartID    string    `json:"cart_id"`
	ProductID string    `json:"product_id"`
	Quantity  int32     `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toCartItemDTO(i domain.CartItem) cartItemDTO {
	return cartItemDTO{ID: i.ID, CartID: i.CartID, ProductID: i.ProductID, Quantity: i.Quantity, UpdatedAt: i.UpdatedAt}
}

type cartDTO struct {
	ID        string        `json:"id"`
	StoreID   string        `json:"store_id"`
	Status    string        `json:"status"`
	Items     []cartLineDTO `json:"items"`
	Total     string        `json:"total"`
	CreatedAt time.Time     `json:"created_at"`
}

func toCartDTO(v cart.View) cartDTO {
	return cartDTO{
		ID:        v.Cart.ID,
		StoreID:   v.Cart.StoreID,
		Status:    string(v.Cart.Status),
		Items:     toCartLineDTOs(v.Lines),
		Total:     v.Total,
		CreatedAt: v.Cart.CreatedAt,
	}
}

type productSummaryDTO struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type orderItemDTO struct {
	ID        string            `json:"id"`
	Product   productSummaryDTO `json:"product"`
	Quantity  int32             `json:"quantity"`
	UnitPrice string            `json:"unit_price"`
	LineTotal string            `json:"line_total"`
}

type orderDTO struct {
	ID              string         `json:"id"`
	Reference       string         `json:"reference"`
	StoreID         string         `json:"store_id"`
	Status          string         `json:"status"`
	ShippingAddress string         `json:"shipping_address"`
	ContactInfo     string         `json:"contact_info"`
	TrackingNumber  string         `json:"tracking_number,omitempty"`
	Amount          string         `json:"amount"`
	Items           []orderItemDTO `json:"items"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func toOrderDTO(o domain.Order) orderDTO {
	items := make([]orderItemDTO, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemDTO{
			ID:        item.ID,
			Product:   productSummaryDTO{ID: item.ProductID, Name: item.ProductName},
			Quantity:  item.Quantity,
			UnitPrice: money(item.PriceAtPurchase),
			LineTotal: money(item.LineTotal()),
		})
	}
	return orderDTO{
		ID:              o.ID,
		Reference:       o.Reference,
		StoreID:         o.StoreID,
		Status:          string(o.Status),
		ShippingAddress: o.ShippingAddress,
		ContactInfo:     o.ContactInfo,
		TrackingNumber:  o.TrackingNumber,
		Amount:          money(o.TotalPrice),
		Items:           items,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func toOrderDTOs(orders []domain.Order) []orderDTO {
	out := make([]orderDTO, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderDTO(o))
	}
	return out
}

type timelineDTO struct {
	Type     string    `json:"type"`
	ActorID  string    `json:"actor_id"`
	Reason   string    `json:"reason"`
	Occurred time.Time `json:"occurred"`
}

type paymentDTO struct {
	ID         string     `json:"id"`
	OrderID    string     `json:"order_id"`
	Reference  string     `json:"reference"`
	Amount     string     `json:"amount"`
	Status     string     `json:"status"`
	IsVerified bool       `json:"is_verified"`
	Method     string     `json:"method"`
	PaidAt     *time.Time `json:"paid_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

func toPaymentDTO(p domain.Payment) paymentDTO {
	return paymentDTO{
		ID:         p.ID,
		OrderID:    p.OrderID,
		Reference:  p.Reference,
		Amount:     money(p.Amount),
		Status:     string(p.Status),
		IsVerified: p.Verified,
		Method:     p.Method,
		PaidAt:     timePtr(p.PaidAt),
		CreatedAt:  p.CreatedAt,
	}
}

type feedbackRatingDTO struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
}

func toRatingDTO(r domain.Rating) feedbackRatingDTO {
	return feedbackRatingDTO{ID: r.ID, UserID: r.UserID, Rating: r.Score, CreatedAt: r.CreatedAt}
}

type reviewDTO struct {
	ID        string    `json:"id"`
	Target    string    `json:"target"`
	TargetID  string    `json:"target_id"`
	AuthorID  string    `json:"author_id"`
	Review    string    `json:"review"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toReviewDTO(r domain.Review) reviewDTO {
	return reviewDTO{
		ID:        r.ID,
		Target:    string(r.TargetType),
		TargetID:  r.TargetID,
		AuthorID:  r.AuthorID,
		Review:    r.Body,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type messageDTO struct {
	ID              string    `json:"id"`
	SenderID        string    `json:"sender_id"`
	ReceiverUserID  string    `json:"receiver_user_id,omitempty"`
	ReceiverStoreID string    `json:"receiver_store_id,omitempty"`
	Content         string    `json:"content"`
	IsRead          bool      `json:"is_read"`
	CreatedAt       time.Time `json:"created_at"`
}

func toMessageDTO(m domain.Message) messageDTO {
	return messageDTO{
		ID:              m.ID,
		SenderID:        m.SenderID,
		ReceiverUserID:  m.ReceiverUserID,
		ReceiverStoreID: m.ReceiverStoreID,
		Content:         m.Content,
		IsRead:          m.IsRead,
		CreatedAt:       m.CreatedAt,
	}
}

type wishlistDTO struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	CreatedAt time.Time `json:"created_at"`
}

func toWishlistDTO(e domain.WishlistEntry) wishlistDTO {
	return wishlistDTO{ID: e.ID, ProductID: e.ProductID, CreatedAt: e.CreatedAt}
}
