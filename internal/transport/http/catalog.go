package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/catalog"
)

type createStoreRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	LogoURL     string `json:"logo_url"`
	ContactInfo string `json:"contact_info"`
	Address     string `json:"address"`
}

// ListStores GET /stores?name=&search=
func (h *Handler) ListStores(c *gin.Context) {
	stores, err := h.svc.Catalog.ListStores(c.Request.Context(), domain.StoreFilter{
		Name:   c.Query("name"),
		Search: c.Query("search"),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]storeDTO, 0, len(stores))
	for _, s := range stores {
		out = append(out, toStoreDTO(s))
	}
	c.JSON(http.StatusOK, out)
}

// CreateStore POST /stores
func (h *Handler) CreateStore(c *gin.Context) {
	var req createStoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	store, err := h.svc.Catalog.CreateStore(c.Request.Context(), catalog.CreateStoreRequest{
		OwnerID:     userID(c),
		Name:        req.Name,
		Description: req.Description,
		LogoURL:     req.LogoURL,
		ContactInfo: req.ContactInfo,
		Address:     req.Address,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toStoreDTO(store))
}

// GetStore GET /stores/:id
func (h *Handler) GetStore(c *gin.Context) {
	details, err := h.svc.Catalog.GetStore(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	dto := toStoreDTO(details.Store)
	dto.Rating = &ratingDTO{Average: details.Rating.Average, Count: details.Rating.Count}
	c.JSON(http.StatusOK, dto)
}

type createCategoryRequest struct {
	Name       string   `json:"name"`
	Slug       string   `json:"slug"`
	ParentID   string   `json:"parent_id"`
	ExternalID string   `json:"external_id"`
	ImageURLs  []string `json:"image_urls"`
	IsActive   *bool    `json:"is_active"`
}

// CategoryTree GET /categories отдаёт корневые категории с вложенными подкатегориями.
func (h *Handler) CategoryTree(c *gin.Context) {
	tree, err := h.svc.Catalog.CategoryTree(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCategoryTree(tree))
}

// CreateCategory POST /categories
func (h *Handler) CreateCategory(c *gin.Context) {
	var req createCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	category, err := h.svc.Catalog.CreateCategory(c.Request.Context(), catalog.CreateCategoryRequest{
		Name:       req.Name,
		Slug:       req.Slug,
		ParentID:   req.ParentID,
		ExternalID: req.ExternalID,
		ImageURLs:  req.ImageURLs,
		IsActive:   req.IsActive,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toCategoryDTO(category))
}

// GetCategory GET /categories/:id
func (h *Handler) GetCategory(c *gin.Context) {
	category, err := h.svc.Catalog.GetCategory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCategoryDTO(category))
}

// Subcategories GET /categories/:id/subcategories
func (h *Handler) Subcategories(c *gin.Context) {
	children, err := h.svc.Catalog.Subcategories(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]categoryDTO, 0, len(children))
	for _, child := range children {
		out = append(out, toCategoryDTO(child))
	}
	c.JSON(http.StatusOK, out)
}

type productRequest struct {
	CategoryID       string           `json:"category_id"`
	SubcategoryID    string           `json:"subcategory_id"`
	SubSubcategoryID string           `json:"sub_subcategory_id"`
	Name             string           `json:"name"`
	Description      string           `json:"description"`
	Specification    string           `json:"specification"`
	IsDropshipping   bool             `json:"is_dropshipping"`
	ExternalID       string           `json:"external_id"`
	ExternalURL      string           `json:"external_url"`
	BasePrice        *decimal.Decimal `json:"base_price"`
	MarkupPercentage *decimal.Decimal `json:"markup_percentage"`
	UnitPrice        decimal.Decimal  `json:"unit_price"`
	Inventory        *int32           `json:"inventory"`
	IsActive         *bool            `json:"is_active"`
	ImageURLs        []string         `json:"image_urls"`
}

func (r productRequest) input() catalog.ProductInput {
	return catalog.ProductInput{
		CategoryID:       r.CategoryID,
		SubcategoryID:    r.SubcategoryID,
		SubSubcategoryID: r.SubSubcategoryID,
		Name:             r.Name,
		Description:      r.Description,
		Specification:    r.Specification,
		IsDropshipping:   r.IsDropshipping,
		ExternalID:       r.ExternalID,
		ExternalURL:      r.ExternalURL,
		BasePrice:        r.BasePrice,
		MarkupPercentage: r.MarkupPercentage,
		UnitPrice:        r.UnitPrice,
		Inventory:        r.Inventory,
		IsActive:         r.IsActive,
		ImageURLs:        r.ImageURLs,
	}
}

// CreateProduct POST /stores/:id/products
func (h *Handler) CreateProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	product, err := h.svc.Catalog.CreateProduct(c.Request.Context(), userID(c), c.Param("id"), req.input())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toProductDTO(product))
}

// UpdateProduct PUT /products/:id
func (h *Handler) UpdateProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	product, err := h.svc.Catalog.UpdateProduct(c.Request.Context(), userID(c), c.Param("id"), req.input())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProductDTO(product))
}

// GetProduct GET /products/:id
func (h *Handler) GetProduct(c *gin.Context) {
	details, err := h.svc.Catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	dto := toProductDTO(details.Product)
	dto.Rating = &ratingDTO{Average: details.Rating.Average, Count: details.Rating.Count}
	c.JSON(http.StatusOK, dto)
}

// ListProducts GET /products
// Фильтры: store, category, subcategory, sub_subcategory (слаги), price_gt, price_lt,
// search, ordering, limit, offset.
func (h *Handler) ListProducts(c *gin.Context) {
	filter := domain.ProductFilter{
		StoreID:            c.Query("store"),
		CategorySlug:       c.Query("category"),
		SubcategorySlug:    c.Query("subcategory"),
		SubSubcategorySlug: c.Query("sub_subcategory"),
		Search:             c.Query("search"),
		Ordering:           domain.ProductOrdering(c.Query("ordering")),
	}
	var err error
	if filter.PriceGT, err = queryDecimal(c, "price_gt"); err != nil {
		h.writeError(c, err)
		return
	}
	if filter.PriceLT, err = queryDecimal(c, "price_lt"); err != nil {
		h.writeError(c, err)
		return
	}
	if filter.Limit, err = queryInt(c, "limit"); err != nil {
		h.writeError(c, err)
		return
	}
	if filter.Offset, err = queryInt(c, "offset"); err != nil {
		h.writeError(c, err)
		return
	}

	products, err := h.svc.Catalog.ListProducts(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]productDTO, 0, len(products))
	for _, p := range products {
		out = append(out, toProductDTO(p))
	}
	c.JSON(http.StatusOK, out)
}

func queryDecimal(c *gin.Context, name string) (*decimal.Decimal, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, domain.Validation("%s must be a decimal number", name)
	}
	return &value, nil
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, domain.Validation("%s must be a non-negative integer", name)
	}
	return value, nil
}
