package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/cart"
	"github.com/vladislavdragonenkov/marketplace/internal/service/catalog"
	"github.com/vladislavdragonenkov/marketplace/internal/service/checkout"
	"github.com/vladislavdragonenkov/marketplace/internal/service/feedback"
	"github.com/vladislavdragonenkov/marketplace/internal/service/inbox"
	"github.com/vladislavdragonenkov/marketplace/internal/service/payment"
)

// Services перечисляет прикладные сервисы, которые обслуживает REST API.
type Services struct {
	Catalog  *catalog.Service
	Carts    *cart.Service
	Checkout *checkout.Service
	Payments *payment.Service
	Feedback *feedback.Service
	Inbox    *inbox.Service
}

// Handler обслуживает REST API маркетплейса.
type Handler struct {
	svc      Services
	idemRepo domain.IdempotencyRepository
	logger   *log.Entry
}

// NewHandler создаёт обработчик. При nil idemRepo заголовок Idempotency-Key игнорируется.
func NewHandler(svc Services, idemRepo domain.IdempotencyRepository, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.New().WithField("component", "http")
	}
	return &Handler{svc: svc, idemRepo: idemRepo, logger: logger}
}

// Router собирает gin-движок со всеми маршрутами и оборачивает его трассировкой.
func (h *Handler) Router() http.Handler {
	engine := gin.New()
	engine.Use(gin.Recovery(), h.accessLog())
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	h.RegisterRoutes(engine.Group("/api/v1"))
	return otelhttp.NewHandler(engine, "marketplace.http")
}

// RegisterRoutes регистрирует маршруты API.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	stores := router.Group("/stores")
	{
		stores.GET("", h.ListStores)
		stores.POST("", h.CreateStore)
		stores.GET("/:id", h.GetStore)
		stores.GET("/:id/orders", h.ListStoreOrders)
		stores.POST("/:id/products", h.CreateProduct)
		stores.GET("/:id/ratings", h.listRatings(domain.FeedbackTargetStore))
		stores.POST("/:id/ratings", h.rate(domain.FeedbackTargetStore))
		stores.GET("/:id/reviews", h.listReviews(domain.FeedbackTargetStore))
		stores.POST("/:id/reviews", h.createReview(domain.FeedbackTargetStore))
	}

	categories := router.Group("/categories")
	{
		categories.GET("", h.CategoryTree)
		categories.POST("", h.CreateCategory)
		categories.GET("/:id", h.GetCategory)
		categories.GET("/:id/subcategories", h.Subcategories)
	}

	products := router.Group("/products")
	{
		products.GET("", h.ListProducts)
		products.GET("/:id", h.GetProduct)
		products.PUT("/:id", h.UpdateProduct)
		products.GET("/:id/ratings", h.listRatings(domain.FeedbackTargetProduct))
		products.POST("/:id/ratings", h.rate(domain.FeedbackTargetProduct))
		products.GET("/:id/reviews", h.listReviews(domain.FeedbackTargetProduct))
		products.POST("/:id/reviews", h.createReview(domain.FeedbackTargetProduct))
	}

	reviews := router.Group("/reviews")
	{
		reviews.PUT("/:id", h.UpdateReview)
		reviews.DELETE("/:id", h.DeleteReview)
	}

	messages := router.Group("/messages")
	{
		messages.GET("", h.ListMessages)
		messages.POST("", h.SendMessage)
		messages.POST("/:id/read", h.MarkMessageRead)
	}

	wishlist := router.Group("/wishlist")
	{
		wishlist.GET("", h.Wishlist)
		wishlist.POST("", h.AddToWishlist)
		wishlist.DELETE("/:product_id", h.RemoveFromWishlist)
	}

	carts := router.Group("/cart")
	{
		carts.GET("", h.GetCart)
		carts.GET("/items", h.ListCartItems)
		carts.POST("/items", h.AddCartItem)
		carts.PATCH("/items/:id", h.UpdateCartItem)
		carts.DELETE("/items/:id", h.RemoveCartItem)
	}

	orders := router.Group("/orders")
	{
		orders.GET("", h.ListOrders)
		orders.POST("", h.idempotent(), h.PlaceOrder)
		orders.GET("/:id", h.GetOrder)
		orders.GET("/:id/timeline", h.OrderTimeline)
		orders.GET("/:id/payments", h.ListPayments)
		orders.POST("/:id/cancel", h.idempotent(), h.CancelOrder)
		orders.POST("/:id/status", h.AdvanceStatus)
	}

	payments := router.Group("/payments")
	{
		payments.POST("", h.idempotent(), h.InitiatePayment)
		payments.GET("/verify", h.VerifyPayment)
		payments.GET("/verify/:reference", h.VerifyPayment)
	}
}
