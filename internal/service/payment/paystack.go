package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// DefaultPaystackURL — базовый адрес API Paystack.
const DefaultPaystackURL = "https://api.paystack.co"

// StatusError возвращается, когда шлюз ответил кодом, отличным от 200.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway responded with status %d", e.Code)
}

// PaystackClient проверяет транзакции через GET /transaction/verify/{reference}.
type PaystackClient struct {
	baseURL string
	secret  string
	client  *http.Client
}

// PaystackOption настраивает PaystackClient.
type PaystackOption func(*PaystackClient)

// WithHTTPClient подменяет HTTP-клиент (транспорт остаётся на совести вызывающего).
func WithHTTPClient(client *http.Client) PaystackOption {
	return func(c *PaystackClient) {
		if client != nil {
			c.client = client
		}
	}
}

// NewPaystackClient создаёт клиента шлюза. Секрет передаётся как Bearer-токен.
func NewPaystackClient(baseURL, secret string, timeout time.Duration, opts ...PaystackOption) *PaystackClient {
	if baseURL == "" {
		baseURL = DefaultPaystackURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &PaystackClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type verifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status string `json:"status"`
		Amount int64  `json:"amount"`
		PaidAt string `json:"paid_at"`
	} `json:"data"`
}

// Verify запрашивает статус транзакции у шлюза.
func (c *PaystackClient) Verify(ctx context.Context, reference string) (domain.GatewayVerification, error) {
	endpoint := c.baseURL + "/transaction/verify/" + url.PathEscape(reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.GatewayVerification{}, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.GatewayVerification{}, fmt.Errorf("call verify endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return domain.GatewayVerification{}, &StatusError{Code: resp.StatusCode}
	}

	var body verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.GatewayVerification{}, fmt.Errorf("decode verify response: %w", err)
	}
	result := domain.GatewayVerification{
		Status: body.Data.Status,
		Amount: body.Data.Amount,
	}
	// paid_at бывает пустым или null для неуспешных транзакций.
	if paidAt, err := time.Parse(time.RFC3339, body.Data.PaidAt); err == nil {
		result.PaidAt = paidAt.UTC()
	}
	return result, nil
}

var _ domain.PaymentGateway = (*PaystackClient)(nil)
