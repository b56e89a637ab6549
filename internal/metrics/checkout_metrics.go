package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics содержит метрики корзины, оформления заказов и сверки платежей.
// Все методы безопасно вызывать на nil-получателе: сервисы в тестах работают без метрик.
type CheckoutMetrics struct {
	// Корзина и оформление
	cartLinesAdded   prometheus.Counter
	ordersPlaced     prometheus.Counter
	checkoutFailed   *prometheus.CounterVec
	checkoutDuration prometheus.Histogram
	orderValue       prometheus.Histogram

	// Жизненный цикл заказа
	orderTransitions *prometheus.CounterVec
	timelineEvents   prometheus.Counter
	outboxEvents     prometheus.Counter

	// Платёжный шлюз
	paymentVerifications *prometheus.CounterVec
	gatewayDuration      prometheus.Histogram
	gatewayBreakerOpen   prometheus.Gauge
}

// NewCheckoutMetrics регистрирует метрики в DefaultRegisterer.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer регистрирует метрики в переданном реестре.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		cartLinesAdded: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_cart_lines_added_total",
			Help: "Total number of add-to-cart operations",
		}),
		ordersPlaced: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_orders_placed_total",
			Help: "Total number of orders placed",
		}),
		checkoutFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_checkout_failed_total",
			Help: "Total number of failed order placements by error kind",
		}, []string{"kind"}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "marketplace_checkout_duration_seconds",
			Help:    "Duration of order placement transactions in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		orderValue: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "marketplace_order_value",
			Help:    "Total price of placed orders",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}),
		orderTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_order_transitions_total",
			Help: "Total number of order status transitions by target status",
		}, []string{"to"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		paymentVerifications: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_payment_verifications_total",
			Help: "Total number of payment verifications by result",
		}, []string{"result"}),
		gatewayDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "marketplace_payment_gateway_duration_seconds",
			Help:    "Duration of payment gateway verify calls in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		gatewayBreakerOpen: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "marketplace_payment_gateway_breaker_open",
			Help: "1 when the payment gateway circuit breaker is open",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordCartLineAdded увеличивает счётчик добавлений в корзину.
func (m *CheckoutMetrics) RecordCartLineAdded() {
	if m == nil {
		return
	}
	m.cartLinesAdded.Inc()
}

// RecordOrderPlaced фиксирует успешное оформление и сумму заказа.
func (m *CheckoutMetrics) RecordOrderPlaced(total float64) {
	if m == nil {
		return
	}
	m.ordersPlaced.Inc()
	m.orderValue.Observe(total)
}

// RecordCheckoutFailed увеличивает счётчик неудачных оформлений по классу ошибки.
func (m *CheckoutMetrics) RecordCheckoutFailed(kind string) {
	if m == nil {
		return
	}
	m.checkoutFailed.WithLabelValues(kind).Inc()
}

// RecordCheckoutDuration записывает длительность транзакции оформления.
func (m *CheckoutMetrics) RecordCheckoutDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordOrderTransition увеличивает счётчик переходов в статус.
func (m *CheckoutMetrics) RecordOrderTransition(to string) {
	if m == nil {
		return
	}
	m.orderTransitions.WithLabelValues(to).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *CheckoutMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *CheckoutMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}

// RecordPaymentVerification увеличивает счётчик сверок платежей по результату.
func (m *CheckoutMetrics) RecordPaymentVerification(result string) {
	if m == nil {
		return
	}
	m.paymentVerifications.WithLabelValues(result).Inc()
}

// RecordGatewayDuration записывает длительность запроса к шлюзу.
func (m *CheckoutMetrics) RecordGatewayDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.gatewayDuration.Observe(duration.Seconds())
}

// SetGatewayBreakerOpen отражает состояние circuit breaker шлюза.
func (m *CheckoutMetrics) SetGatewayBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.gatewayBreakerOpen.Set(1)
		return
	}
	m.gatewayBreakerOpen.Set(0)
}
