package grpcsvc

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/checkout"
	"github.com/vladislavdragonenkov/marketplace/internal/service/payment"
)

// UserIDHeader — metadata с идентификатором вызывающего пользователя.
const UserIDHeader = "x-user-id"

const defaultListOrdersLimit = 100

// OrderUseCases перечисляет операции над заказами, которые обслуживает gRPC-слой.
type OrderUseCases interface {
	PlaceOrder(ctx context.Context, req checkout.PlaceOrderRequest) (domain.Order, error)
	GetOrder(ctx context.Context, ownerID, orderID string) (domain.Order, error)
	ListOrders(ctx context.Context, ownerID string, limit int) ([]domain.Order, error)
	CancelOrder(ctx context.Context, ownerID, orderID, reason string) (domain.Order, error)
	AdvanceStatus(ctx context.Context, req checkout.AdvanceStatusRequest) (domain.Order, error)
}

// PaymentUseCases перечисляет операции над платежами.
type PaymentUseCases interface {
	InitiatePayment(ctx context.Context, req payment.InitiateRequest) (domain.Payment, error)
	VerifyPayment(ctx context.Context, reference string) (payment.VerifyResult, error)
	ListPayments(ctx context.Context, ownerID, orderID string) ([]domain.Payment, error)
}

// CheckoutService реализует gRPC API оформления и оплаты заказов.
type CheckoutService struct {
	orders   OrderUseCases
	payments PaymentUseCases
	idemRepo domain.IdempotencyRepository
	logger   *log.Entry
}

var _ CheckoutServer = (*CheckoutService)(nil)

// NewCheckoutService конструирует сервис. При nil idemRepo ключи идемпотентности не проверяются.
func NewCheckoutService(orders OrderUseCases, payments PaymentUseCases, idemRepo domain.IdempotencyRepository, logger *log.Entry) *CheckoutService {
	if logger == nil {
		logger = log.New().WithField("component", "checkout-grpc")
	}
	return &CheckoutService{
		orders:   orders,
		payments: payments,
		idemRepo: idemRepo,
		logger:   logger,
	}
}

// PlaceOrder оформляет самую свежую активную корзину вызывающего.
func (s *CheckoutService) PlaceOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.withIdempotency(ctx, MethodPlaceOrder, req, func(ctx context.Context, userID string) (*structpb.Struct, error) {
		order, err := s.orders.PlaceOrder(ctx, checkout.PlaceOrderRequest{
			OwnerID:         userID,
			ShippingAddress: stringField(req, "shipping_address"),
			ContactInfo:     stringField(req, "contact_info"),
		})
		if err != nil {
			return nil, s.toStatus(err, MethodPlaceOrder)
		}
		return toStruct(orderFields(order))
	})
}

// GetOrder возвращает заказ вызывающего.
func (s *CheckoutService) GetOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := readUserID(ctx)
	if err != nil {
		return nil, err
	}
	orderID := stringField(req, "order_id")
	if orderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	order, err := s.orders.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, s.toStatus(err, MethodGetOrder)
	}
	return toStruct(orderFields(order))
}

// ListOrders возвращает заказы вызывающего, новые первыми.
func (s *CheckoutService) ListOrders(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := readUserID(ctx)
	if err != nil {
		return nil, err
	}
	limit, err := intField(req, "limit")
	if err != nil {
		return nil, err
	}
	if limit == 0 || limit > defaultListOrdersLimit {
		limit = defaultListOrdersLimit
	}
	orders, err := s.orders.ListOrders(ctx, userID, limit)
	if err != nil {
		return nil, s.toStatus(err, MethodListOrders)
	}
	list := make([]any, 0, len(orders))
	for _, order := range orders {
		list = append(list, orderFields(order))
	}
	return toStruct(map[string]any{"orders": list})
}

// CancelOrder отменяет заказ вызывающего.
func (s *CheckoutService) CancelOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.withIdempotency(ctx, MethodCancelOrder, req, func(ctx context.Context, userID string) (*structpb.Struct, error) {
		orderID := stringField(req, "order_id")
		if orderID == "" {
			return nil, status.Error(codes.InvalidArgument, "order_id is required")
		}
		order, err := s.orders.CancelOrder(ctx, userID, orderID, stringField(req, "reason"))
		if err != nil {
			return nil, s.toStatus(err, MethodCancelOrder)
		}
		return toStruct(orderFields(order))
	})
}

// AdvanceStatus двигает заказ по жизненному циклу от имени владельца магазина.
func (s *CheckoutService) AdvanceStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := readUserID(ctx)
	if err != nil {
		return nil, err
	}
	orderID := stringField(req, "order_id")
	if orderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	order, err := s.orders.AdvanceStatus(ctx, checkout.AdvanceStatusRequest{
		ActorID:        userID,
		OrderID:        orderID,
		Status:         domain.OrderStatus(strings.ToLower(stringField(req, "status"))),
		TrackingNumber: stringField(req, "tracking_number"),
		Reason:         stringField(req, "reason"),
	})
	if err != nil {
		return nil, s.toStatus(err, MethodAdvanceStatus)
	}
	return toStruct(orderFields(order))
}

// InitiatePayment создаёт ожидающий платёж по заказу вызывающего.
func (s *CheckoutService) InitiatePayment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.withIdempotency(ctx, MethodInitiatePayment, req, func(ctx context.Context, userID string) (*structpb.Struct, error) {
		p, err := s.payments.InitiatePayment(ctx, payment.InitiateRequest{
			OwnerID: userID,
			OrderID: stringField(req, "order_id"),
			Method:  stringField(req, "method"),
		})
		if err != nil {
			return nil, s.toStatus(err, MethodInitiatePayment)
		}
		return toStruct(paymentFields(p))
	})
}

// VerifyPayment сверяет платёж со шлюзом. Повторная сверка безопасна и ключа идемпотентности не требует.
func (s *CheckoutService) VerifyPayment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.payments.VerifyPayment(ctx, stringField(req, "reference"))
	if err != nil {
		return nil, s.toStatus(err, MethodVerifyPayment)
	}
	return toStruct(verifyFields(res))
}

// ListPayments возвращает платежи по заказу вызывающего.
func (s *CheckoutService) ListPayments(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := readUserID(ctx)
	if err != nil {
		return nil, err
	}
	payments, err := s.payments.ListPayments(ctx, userID, stringField(req, "order_id"))
	if err != nil {
		return nil, s.toStatus(err, MethodListPayments)
	}
	list := make([]any, 0, len(payments))
	for _, p := range payments {
		list = append(list, paymentFields(p))
	}
	return toStruct(map[string]any{"payments": list})
}

func readUserID(ctx context.Context) (string, error) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(UserIDHeader)
		if len(values) > 0 && strings.TrimSpace(values[0]) != "" {
			return strings.TrimSpace(values[0]), nil
		}
	}
	return "", status.Error(codes.Unauthenticated, domain.MessageOf(domain.ErrIdentityRequired))
}

// toStatus переводит доменную ошибку в gRPC-статус. Внутренние ошибки логируются,
// клиенту уходит только обезличенное сообщение.
func (s *CheckoutService) toStatus(err error, method string) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}

	code := CodeOf(err)
	if code == codes.Internal || code == codes.Unavailable {
		s.logger.WithError(err).WithField("method", method).Error("request failed")
	}
	return status.Error(code, domain.MessageOf(err))
}

// CodeOf сопоставляет класс доменной ошибки с кодом gRPC.
func CodeOf(err error) codes.Code {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return codes.InvalidArgument
	case domain.KindInvalidState:
		return codes.FailedPrecondition
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindConflict:
		return codes.Aborted
	case domain.KindUpstream:
		return codes.Unavailable
	case domain.KindForbidden:
		return codes.PermissionDenied
	case domain.KindUnauthenticated:
		return codes.Unauthenticated
	default:
		return codes.Internal
	}
}
