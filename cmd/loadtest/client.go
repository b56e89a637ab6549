package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	grpcsvc "github.com/vladislavdragonenkov/marketplace/internal/service/grpc"
)

const (
	idempotencyHeader = "idempotency-key"
	userIDHeader      = "X-User-ID"
)

// cartFiller наполняет корзину покупателя перед оформлением.
type cartFiller interface {
	AddItem(ctx context.Context, ownerID, storeID, productID string, qty int32) error
}

// checkoutCaller покрывает подмножество *grpcsvc.CheckoutClient, нужное сценарию.
type checkoutCaller interface {
	Call(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

var _ checkoutCaller = (*grpcsvc.CheckoutClient)(nil)

type httpStatusError struct {
	code int
}

func (e httpStatusError) Error() string {
	return fmt.Sprintf("unexpected http status %d", e.code)
}

// resultCode сводит ошибки REST и gRPC к строковому коду для отчёта.
func resultCode(err error) string {
	if err == nil {
		return "OK"
	}
	var httpErr httpStatusError
	if errors.As(err, &httpErr) {
		return fmt.Sprintf("HTTP_%d", httpErr.code)
	}
	if st, ok := status.FromError(err); ok {
		return st.Code().String()
	}
	return "Unknown"
}

// restCart добавляет позиции через REST API корзины.
type restCart struct {
	baseURL string
	client  *http.Client
}

func newRESTCart(baseURL string, timeout time.Duration) *restCart {
	return &restCart{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *restCart) AddItem(ctx context.Context, ownerID, storeID, productID string, qty int32) error {
	body, err := json.Marshal(map[string]any{
		"store_id":   storeID,
		"product_id": productID,
		"quantity":   qty,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/cart/items", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(userIDHeader, ownerID)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return httpStatusError{code: resp.StatusCode}
	}
	return nil
}

// callContext добавляет в исходящие metadata пользователя и, если задан, ключ идемпотентности.
func callContext(ctx context.Context, userID, key string) context.Context {
	pairs := []string{grpcsvc.UserIDHeader, userID}
	if key != "" {
		pairs = append(pairs, idempotencyHeader, key)
	}
	return metadata.AppendToOutgoingContext(ctx, pairs...)
}
