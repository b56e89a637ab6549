package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	grpcsvc "github.com/vladislavdragonenkov/marketplace/internal/service/grpc"
	"github.com/vladislavdragonenkov/marketplace/internal/service/cart"
	"github.com/vladislavdragonenkov/marketplace/internal/service/catalog"
	"github.com/vladislavdragonenkov/marketplace/internal/service/checkout"
	"github.com/vladislavdragonenkov/marketplace/internal/service/feedback"
	"github.com/vladislavdragonenkov/marketplace/internal/service/inbox"
	"github.com/vladislavdragonenkov/marketplace/internal/service/payment"
	httpapi "github.com/vladislavdragonenkov/marketplace/internal/transport/http"
)

// serviceSet собирает прикладные сервисы и их транспортные обёртки.
type serviceSet struct {
	http httpapi.Services
	grpc *grpcsvc.CheckoutService
}

// buildServices связывает прикладные сервисы с хранилищем, шлюзом оплаты и метриками.
func buildServices(cfg Config, deps *runtimeDependencies, m *metrics.CheckoutMetrics, logger *log.Entry) serviceSet {
	store := deps.storage

	gateway := payment.NewPaystackClient(cfg.PaymentGatewayURL, cfg.PaymentGatewaySecret, cfg.PaymentGatewayTimeout)
	breaker := payment.NewCircuitBreaker(cfg.BreakerMaxFailures, cfg.BreakerResetTimeout, logger.WithField("layer", "payment-breaker"))

	checkoutSvc := checkout.NewService(store, logger.WithField("layer", "checkout"), checkout.WithMetrics(m))
	paymentSvc := payment.NewService(store, gateway, logger.WithField("layer", "payment"),
		payment.WithBreaker(breaker),
		payment.WithMetrics(m),
	)

	return serviceSet{
		http: httpapi.Services{
			Catalog:  catalog.NewService(store, logger.WithField("layer", "catalog")),
			Carts:    cart.NewService(store, logger.WithField("layer", "cart"), cart.WithDefaultStore(cfg.DefaultStoreID), cart.WithMetrics(m)),
			Checkout: checkoutSvc,
			Payments: paymentSvc,
			Feedback: feedback.NewService(store, logger.WithField("layer", "feedback")),
			Inbox:    inbox.NewService(store, logger.WithField("layer", "inbox")),
		},
		grpc: grpcsvc.NewCheckoutService(checkoutSvc, paymentSvc, deps.idempotencyRepo, logger.WithField("layer", "grpc")),
	}
}
