package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/marketplace/internal/service/cart"
)

type addCartItemRequest struct {
	ProductID string `json:"product_id"`
	StoreID   string `json:"store_id"`
	Quantity  *int32 `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity *int32 `json:"quantity"`
}

// GetCart GET /cart
func (h *Handler) GetCart(c *gin.Context) {
	view, err := h.svc.Carts.GetActiveCart(c.Request.Context(), userID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartDTO(view))
}

// ListCartItems GET /cart/items
func (h *Handler) ListCartItems(c *gin.Context) {
	lines, err := h.svc.Carts.ListLines(c.Request.Context(), userID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartLineDTOs(lines))
}

// AddCartItem POST /cart/items. Количество по умолчанию 1.
func (h *Handler) AddCartItem(c *gin.Context) {
	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	quantity := int32(1)
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	item, err := h.svc.Carts.AddLine(c.Request.Context(), cart.AddLineRequest{
		OwnerID:   userID(c),
		StoreID:   req.StoreID,
		ProductID: req.ProductID,
		Quantity:  quantity,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toCartItemDTO(item))
}

// UpdateCartItem PATCH /cart/items/:id. Количество 0 удаляет строку.
func (h *Handler) UpdateCartItem(c *gin.Context) {
	var req updateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Quantity == nil {
		badRequest(c, "quantity is required")
		return
	}
	item, removed, err := h.svc.Carts.SetLineQuantity(c.Request.Context(), userID(c), c.Param("id"), *req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if removed {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, toCartItemDTO(item))
}

// RemoveCartItem DELETE /cart/items/:id
func (h *Handler) RemoveCartItem(c *gin.Context) {
	if err := h.svc.Carts.RemoveLine(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
