package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-tracking/internal/domain"
)

const orderBody = `{
	"id": 42,
	"status": "CONFIRMED",
	"total_amount": 130000,
	"address": {"line1": "12 Hang Bac", "ward": "Hang Bac", "district": "Hoan Kiem", "city": "Hanoi"},
	"payment_method": "card",
	"payment_status": "paid",
	"items": [{"id": 7, "name": "Pho Bo", "quantity": 2, "unit_price": 65000}]
}`

func TestFetchOrder(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/orders/42", r.URL.Path)
		w.Write([]byte(orderBody))
	}))
	defer srv.Close()

	c := NewOrderClient(srv.URL, time.Second)
	snap, err := c.FetchOrder(context.Background(), "42", domain.UserContext{UserID: "u1", Token: "tok"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "42", snap.OrderID)
	assert.Equal(t, "CONFIRMED", snap.RawStatus)
	assert.Equal(t, 130000.0, snap.TotalAmount)
	assert.Equal(t, "12 Hang Bac, Hang Bac, Hoan Kiem, Hanoi", snap.DeliveryAddress)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "7", snap.Items[0].ID)
	assert.False(t, snap.FetchedAt.IsZero())
}

func TestFetchOrderRetriesOnce(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(orderBody))
	}))
	defer srv.Close()

	c := NewOrderClient(srv.URL, time.Second)
	snap, err := c.FetchOrder(context.Background(), "42", domain.UserContext{})
	require.NoError(t, err)
	assert.Equal(t, "42", snap.OrderID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchOrderGivesUpAfterOneRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewOrderClient(srv.URL, time.Second)
	_, err := c.FetchOrder(context.Background(), "42", domain.UserContext{})
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchOrderNotFoundIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOrderClient(srv.URL, time.Second)
	_, err := c.FetchOrder(context.Background(), "42", domain.UserContext{})
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "404 must not be retried")
}

func TestFlattenAddress(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"flat string", `"12 Hang Bac, Hanoi"`, "12 Hang Bac, Hanoi"},
		{"structured", `{"line1":"12 Hang Bac","city":"Hanoi"}`, "12 Hang Bac, Hanoi"},
		{"empty", ``, ""},
		{"garbage", `[1,2]`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, flattenAddress([]byte(tt.raw)))
		})
	}
}

func TestFetchDelivery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/deliveries/d1", r.URL.Path)
		w.Write([]byte(`{"delivery_id":"d1","drone_id":"drone-1","status":"IN_TRANSIT","position":{"lat":21.02,"lng":105.83}}`))
	}))
	defer srv.Close()

	c := NewTelemetryClient(srv.URL, time.Second)
	upd, err := c.FetchDelivery(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", upd.DeliveryID)
	assert.Equal(t, "IN_TRANSIT", upd.RawStatus)
	assert.False(t, upd.ObservedAt.IsZero(), "missing timestamps are filled in")
}

func TestFetchByOrderNoActiveDelivery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewTelemetryClient(srv.URL, time.Second)
	_, err := c.FetchByOrder(context.Background(), "42")
	assert.ErrorIs(t, err, ErrNoActiveDelivery)
}
