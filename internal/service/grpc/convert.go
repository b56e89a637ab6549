package grpcsvc

import (
	"math"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/payment"
)

func stringField(req *structpb.Struct, name string) string {
	return strings.TrimSpace(req.GetFields()[name].GetStringValue())
}

// intField читает целое неотрицательное число; отсутствующее поле даёт 0.
func intField(req *structpb.Struct, name string) (int, error) {
	value, ok := req.GetFields()[name]
	if !ok {
		return 0, nil
	}
	number, isNumber := value.GetKind().(*structpb.Value_NumberValue)
	if !isNumber || number.NumberValue < 0 || number.NumberValue != math.Trunc(number.NumberValue) {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a non-negative integer", name)
	}
	return int(number.NumberValue), nil
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func orderFields(order domain.Order) map[string]any {
	items := make([]any, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, map[string]any{
			"id":                item.ID,
			"product_id":        item.ProductID,
			"product_name":      item.ProductName,
			"quantity":          item.Quantity,
			"price_at_purchase": item.PriceAtPurchase.StringFixed(domain.MoneyScale),
			"line_total":        item.LineTotal().StringFixed(domain.MoneyScale),
		})
	}
	return map[string]any{
		"id":               order.ID,
		"reference":        order.Reference,
		"owner_id":         order.OwnerID,
		"store_id":         order.StoreID,
		"status":           string(order.Status),
		"total_price":      order.TotalPrice.StringFixed(domain.MoneyScale),
		"shipping_address": order.ShippingAddress,
		"contact_info":     order.ContactInfo,
		"tracking_number":  order.TrackingNumber,
		"version":          order.Version,
		"created_at":       formatTime(order.CreatedAt),
		"updated_at":       formatTime(order.UpdatedAt),
		"items":            items,
	}
}

func paymentFields(p domain.Payment) map[string]any {
	return map[string]any{
		"id":         p.ID,
		"order_id":   p.OrderID,
		"reference":  p.Reference,
		"amount":     p.Amount.StringFixed(domain.MoneyScale),
		"status":     string(p.Status),
		"verified":   p.Verified,
		"method":     p.Method,
		"paid_at":    formatTime(p.PaidAt),
		"created_at": formatTime(p.CreatedAt),
	}
}

func verifyFields(res payment.VerifyResult) map[string]any {
	message := "Payment verified successfully."
	if res.AlreadyVerified {
		message = "Payment already verified."
	}
	return map[string]any{
		"message":          message,
		"already_verified": res.AlreadyVerified,
		"order_advanced":   res.OrderAdvanced,
		"payment":          paymentFields(res.Payment),
	}
}

func toStruct(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}
