package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName — полное имя gRPC-сервиса оформления заказов.
const ServiceName = "marketplace.v1.CheckoutService"

// Имена методов CheckoutService.
const (
	MethodPlaceOrder      = "PlaceOrder"
	MethodGetOrder        = "GetOrder"
	MethodListOrders      = "ListOrders"
	MethodCancelOrder     = "CancelOrder"
	MethodAdvanceStatus   = "AdvanceStatus"
	MethodInitiatePayment = "InitiatePayment"
	MethodVerifyPayment   = "VerifyPayment"
	MethodListPayments    = "ListPayments"
)

// FullMethod возвращает путь метода вида /marketplace.v1.CheckoutService/PlaceOrder.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// CheckoutServer описывает серверную сторону CheckoutService.
// Запросы и ответы передаются как google.protobuf.Struct.
type CheckoutServer interface {
	PlaceOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListOrders(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AdvanceStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	InitiatePayment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	VerifyPayment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPayments(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(CheckoutServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryMethod) grpc.MethodHandler {
	fullMethod := FullMethod(method)
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CheckoutServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CheckoutServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// CheckoutServiceDesc описывает сервис для grpc.Server.
var CheckoutServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CheckoutServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodPlaceOrder, Handler: unaryHandler(MethodPlaceOrder, CheckoutServer.PlaceOrder)},
		{MethodName: MethodGetOrder, Handler: unaryHandler(MethodGetOrder, CheckoutServer.GetOrder)},
		{MethodName: MethodListOrders, Handler: unaryHandler(MethodListOrders, CheckoutServer.ListOrders)},
		{MethodName: MethodCancelOrder, Handler: unaryHandler(MethodCancelOrder, CheckoutServer.CancelOrder)},
		{MethodName: MethodAdvanceStatus, Handler: unaryHandler(MethodAdvanceStatus, CheckoutServer.AdvanceStatus)},
		{MethodName: MethodInitiatePayment, Handler: unaryHandler(MethodInitiatePayment, CheckoutServer.InitiatePayment)},
		{MethodName: MethodVerifyPayment, Handler: unaryHandler(MethodVerifyPayment, CheckoutServer.VerifyPayment)},
		{MethodName: MethodListPayments, Handler: unaryHandler(MethodListPayments, CheckoutServer.ListPayments)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "marketplace/v1/checkout.proto",
}

// RegisterCheckoutServer регистрирует реализацию на сервере.
func RegisterCheckoutServer(s grpc.ServiceRegistrar, srv CheckoutServer) {
	s.RegisterService(&CheckoutServiceDesc, srv)
}

// CheckoutClient вызывает CheckoutService через structpb.
type CheckoutClient struct {
	cc grpc.ClientConnInterface
}

// NewCheckoutClient создаёт клиент поверх соединения.
func NewCheckoutClient(cc grpc.ClientConnInterface) *CheckoutClient {
	return &CheckoutClient{cc: cc}
}

// Call вызывает метод по короткому имени.
func (c *CheckoutClient) Call(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
