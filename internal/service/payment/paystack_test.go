package payment_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/service/payment"
)

func TestPaystackClient_VerifySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/transaction/verify/ref-123", r.URL.Path)
		require.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":true,"message":"Verification successful","data":{"status":"success","amount":2500,"paid_at":"2024-05-01T10:00:00.000Z"}}`))
	}))
	defer srv.Close()

	client := payment.NewPaystackClient(srv.URL+"/", "sk_test", time.Second)
	got, err := client.Verify(context.Background(), "ref-123")
	require.NoError(t, err)
	require.True(t, got.Succeeded())
	require.Equal(t, int64(2500), got.Amount)
	require.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), got.PaidAt)
}

func TestPaystackClient_VerifyFailedTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":true,"data":{"status":"abandoned","amount":0,"paid_at":null}}`))
	}))
	defer srv.Close()

	got, err := payment.NewPaystackClient(srv.URL, "sk", time.Second).Verify(context.Background(), "ref")
	require.NoError(t, err)
	require.False(t, got.Succeeded())
	require.Equal(t, "abandoned", got.Status)
	require.True(t, got.PaidAt.IsZero())
}

func TestPaystackClient_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"status":false,"message":"Transaction reference not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := payment.NewPaystackClient(srv.URL, "sk", time.Second).Verify(context.Background(), "missing")
	var statusErr *payment.StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusNotFound, statusErr.Code)
}

func TestPaystackClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := payment.NewPaystackClient(url, "sk", time.Second).Verify(context.Background(), "ref")
	require.Error(t, err)
	var statusErr *payment.StatusError
	require.False(t, errors.As(err, &statusErr))
}
