package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/checkout"
	"github.com/vladislavdragonenkov/marketplace/internal/service/payment"
)

type placeOrderRequest struct {
	ShippingAddress string `json:"shipping_address"`
	ContactInfo     string `json:"contact_info"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type advanceStatusRequest struct {
	Status         string `json:"status"`
	TrackingNumber string `json:"tracking_number"`
	Reason         string `json:"reason"`
}

type initiatePaymentRequest struct {
	OrderID string `json:"order_id"`
	Method  string `json:"method"`
}

type verifyPaymentResponse struct {
	Message         string     `json:"message"`
	AlreadyVerified bool       `json:"already_verified"`
	OrderAdvanced   bool       `json:"order_advanced"`
	Payment         paymentDTO `json:"payment"`
}

// PlaceOrder POST /orders оформляет активную корзину вызывающего.
func (h *Handler) PlaceOrder(c *gin.Context) {
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	order, err := h.svc.Checkout.PlaceOrder(c.Request.Context(), checkout.PlaceOrderRequest{
		OwnerID:         userID(c),
		ShippingAddress: req.ShippingAddress,
		ContactInfo:     req.ContactInfo,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toOrderDTO(order))
}

// ListOrders GET /orders?limit=
func (h *Handler) ListOrders(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		h.writeError(c, err)
		return
	}
	orders, err := h.svc.Checkout.ListOrders(c.Request.Context(), userID(c), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderDTOs(orders))
}

// ListStoreOrders GET /stores/:id/orders доступен владельцу магазина.
func (h *Handler) ListStoreOrders(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		h.writeError(c, err)
		return
	}
	orders, err := h.svc.Checkout.ListStoreOrders(c.Request.Context(), userID(c), c.Param("id"), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderDTOs(orders))
}

// GetOrder GET /orders/:id
func (h *Handler) GetOrder(c *gin.Context) {
	order, err := h.svc.Checkout.GetOrder(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderDTO(order))
}

// OrderTimeline GET /orders/:id/timeline
func (h *Handler) OrderTimeline(c *gin.Context) {
	events, err := h.svc.Checkout.Timeline(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]timelineDTO, 0, len(events))
	for _, e := range events {
		out = append(out, timelineDTO{Type: e.Type, ActorID: e.ActorID, Reason: e.Reason, Occurred: e.Occurred})
	}
	c.JSON(http.StatusOK, out)
}

// CancelOrder POST /orders/:id/cancel. Тело необязательно.
func (h *Handler) CancelOrder(c *gin.Context) {
	var req cancelOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}
	order, err := h.svc.Checkout.CancelOrder(c.Request.Context(), userID(c), c.Param("id"), req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderDTO(order))
}

// AdvanceStatus POST /orders/:id/status
func (h *Handler) AdvanceStatus(c *gin.Context) {
	var req advanceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	order, err := h.svc.Checkout.AdvanceStatus(c.Request.Context(), checkout.AdvanceStatusRequest{
		ActorID:        userID(c),
		OrderID:        c.Param("id"),
		Status:         domain.OrderStatus(req.Status),
		TrackingNumber: req.TrackingNumber,
		Reason:         req.Reason,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderDTO(order))
}

// ListPayments GET /orders/:id/payments
func (h *Handler) ListPayments(c *gin.Context) {
	payments, err := h.svc.Payments.ListPayments(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]paymentDTO, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentDTO(p))
	}
	c.JSON(http.StatusOK, out)
}

// InitiatePayment POST /payments
func (h *Handler) InitiatePayment(c *gin.Context) {
	var req initiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	p, err := h.svc.Payments.InitiatePayment(c.Request.Context(), payment.InitiateRequest{
		OwnerID: userID(c),
		OrderID: req.OrderID,
		Method:  req.Method,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toPaymentDTO(p))
}

// VerifyPayment GET /payments/verify/:reference (или ?reference=).
// Не требует идентификатора: сюда возвращает пользователя платёжный шлюз.
func (h *Handler) VerifyPayment(c *gin.Context) {
	reference := c.Param("reference")
	if reference == "" {
		reference = c.Query("reference")
	}
	result, err := h.svc.Payments.VerifyPayment(c.Request.Context(), reference)
	if err != nil {
		h.writeError(c, err)
		return
	}
	message := "Payment verified successfully."
	if result.AlreadyVerified {
		message = "Payment already verified."
	}
	c.JSON(http.StatusOK, verifyPaymentResponse{
		Message:         message,
		AlreadyVerified: result.AlreadyVerified,
		OrderAdvanced:   result.OrderAdvanced,
		Payment:         toPaymentDTO(result.Payment),
	})
}
