package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/inbox"
)

type rateRequest struct {
	Rating int `json:"rating"`
}

type reviewRequest struct {
	Review string `json:"review"`
}

type sendMessageRequest struct {
	ReceiverUserID  string `json:"receiver_user_id"`
	ReceiverStoreID string `json:"receiver_store_id"`
	Content         string `json:"content"`
}

type addWishlistRequest struct {
	ProductID string `json:"product_id"`
}

func (h *Handler) listRatings(target domain.FeedbackTarget) gin.HandlerFunc {
	return func(c *gin.Context) {
		ratings, err := h.svc.Feedback.Ratings(c.Request.Context(), target, c.Param("id"))
		if err != nil {
			h.writeError(c, err)
			return
		}
		out := make([]feedbackRatingDTO, 0, len(ratings))
		for _, r := range ratings {
			out = append(out, toRatingDTO(r))
		}
		c.JSON(http.StatusOK, out)
	}
}

// rate ставит или обновляет оценку вызывающего.
func (h *Handler) rate(target domain.FeedbackTarget) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req rateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		rating, err := h.svc.Feedback.Rate(c.Request.Context(), userID(c), target, c.Param("id"), req.Rating)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, toRatingDTO(rating))
	}
}

func (h *Handler) listReviews(target domain.FeedbackTarget) gin.HandlerFunc {
	return func(c *gin.Context) {
		reviews, err := h.svc.Feedback.Reviews(c.Request.Context(), target, c.Param("id"))
		if err != nil {
			h.writeError(c, err)
			return
		}
		out := make([]reviewDTO, 0, len(reviews))
		for _, r := range reviews {
			out = append(out, toReviewDTO(r))
		}
		c.JSON(http.StatusOK, out)
	}
}

func (h *Handler) createReview(target domain.FeedbackTarget) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reviewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		review, err := h.svc.Feedback.CreateReview(c.Request.Context(), userID(c), target, c.Param("id"), req.Review)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, toReviewDTO(review))
	}
}

// UpdateReview PUT /reviews/:id
func (h *Handler) UpdateReview(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	review, err := h.svc.Feedback.UpdateReview(c.Request.Context(), userID(c), c.Param("id"), req.Review)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReviewDTO(review))
}

// DeleteReview DELETE /reviews/:id
func (h *Handler) DeleteReview(c *gin.Context) {
	if err := h.svc.Feedback.DeleteReview(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListMessages GET /messages возвращает входящие вызывающего и его магазинов.
func (h *Handler) ListMessages(c *gin.Context) {
	messages, err := h.svc.Inbox.List(c.Request.Context(), userID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]messageDTO, 0, len(messages))
	for _, m := range messages {
		out = append(out, toMessageDTO(m))
	}
	c.JSON(http.StatusOK, out)
}

// SendMessage POST /messages
func (h *Handler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	msg, err := h.svc.Inbox.Send(c.Request.Context(), inbox.SendRequest{
		SenderID:        userID(c),
		ReceiverUserID:  req.ReceiverUserID,
		ReceiverStoreID: req.ReceiverStoreID,
		Content:         req.Content,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toMessageDTO(msg))
}

// MarkMessageRead POST /messages/:id/read
func (h *Handler) MarkMessageRead(c *gin.Context) {
	msg, err := h.svc.Inbox.MarkRead(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toMessageDTO(msg))
}

// Wishlist GET /wishlist
func (h *Handler) Wishlist(c *gin.Context) {
	entries, err := h.svc.Catalog.Wishlist(c.Request.Context(), userID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]wishlistDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, toWishlistDTO(e))
	}
	c.JSON(http.StatusOK, out)
}

// AddToWishlist POST /wishlist
func (h *Handler) AddToWishlist(c *gin.Context) {
	var req addWishlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	entry, err := h.svc.Catalog.AddToWishlist(c.Request.Context(), userID(c), req.ProductID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toWishlistDTO(entry))
}

// RemoveFromWishlist DELETE /wishlist/:product_id
func (h *Handler) RemoveFromWishlist(c *gin.Context) {
	if err := h.svc.Catalog.RemoveFromWishlist(c.Request.Context(), userID(c), c.Param("product_id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
