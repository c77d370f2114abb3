package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-tracking/internal/client"
	"delivery-tracking/internal/common/logger"
	"delivery-tracking/internal/domain"
	"delivery-tracking/internal/store"
	"delivery-tracking/internal/tracking"
)

type stubOrders struct {
	snaps map[string]domain.OrderSnapshot
}

func (s *stubOrders) FetchOrder(_ context.Context, orderID string, _ domain.UserContext) (domain.OrderSnapshot, error) {
	snap, ok := s.snaps[orderID]
	if !ok {
		return domain.OrderSnapshot{}, client.ErrOrderNotFound
	}
	return snap, nil
}

type stubTelemetry struct {
	byOrder map[string]domain.TelemetryUpdate
}

func (s *stubTelemetry) FetchDelivery(_ context.Context, deliveryID string) (domain.TelemetryUpdate, error) {
	for _, u := range s.byOrder {
		if u.DeliveryID == deliveryID {
			return u, nil
		}
	}
	return domain.TelemetryUpdate{}, client.ErrNoActiveDelivery
}

func (s *stubTelemetry) FetchByOrder(_ context.Context, orderID string) (domain.TelemetryUpdate, error) {
	u, ok := s.byOrder[orderID]
	if !ok {
		return domain.TelemetryUpdate{}, client.ErrNoActiveDelivery
	}
	return u, nil
}

func testServer(t *testing.T, orders *stubOrders, tele *stubTelemetry) (*httptest.Server, *Manager) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mgr := NewManager(ctx, ManagerConfig{
		Deps: tracking.Deps{
			Fetcher: orders,
			Cache:   store.NewMemory(),
			Log:     logger.Nop(),
		},
		Telemetry:    tele,
		Log:          logger.Nop(),
		PollInterval: time.Hour,
	})
	t.Cleanup(mgr.Shutdown)

	srv := httptest.NewServer(NewHandler(mgr, logger.Nop()).Routes())
	t.Cleanup(srv.Close)
	return srv, mgr
}

func TestGetOrderView(t *testing.T) {
	orders := &stubOrders{snaps: map[string]domain.OrderSnapshot{
		"42": {OrderID: "42", RawStatus: "PREPARING", TotalAmount: 130000, FetchedAt: time.Now().UTC()},
	}}
	srv, _ := testServer(t, orders, &stubTelemetry{})

	resp, err := http.Get(srv.URL + "/orders/42/view")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view struct {
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
		Step    int    `json:"step"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, "42", view.OrderID)
	assert.Equal(t, "PREPARING", view.Status)
	assert.Equal(t, 2, view.Step)
}

func TestGetOrderViewNotFound(t *testing.T) {
	srv, _ := testServer(t, &stubOrders{}, &stubTelemetry{})

	resp, err := http.Get(srv.URL + "/orders/404/view")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var problem struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.Equal(t, "not_found", problem.Type)
}

func TestDeliveryTracking(t *testing.T) {
	orders := &stubOrders{snaps: map[string]domain.OrderSnapshot{
		"42": {OrderID: "42", RawStatus: "OUT_FOR_DELIVERY", FetchedAt: time.Now().UTC()},
	}}
	tele := &stubTelemetry{byOrder: map[string]domain.TelemetryUpdate{
		"42": {
			DeliveryID: "d1", DroneID: "drone-1", RawStatus: "IN_TRANSIT",
			Position: domain.Coordinate{Lat: 21.02, Lng: 105.83},
		},
	}}
	srv, _ := testServer(t, orders, tele)

	resp, err := http.Get(srv.URL + "/orders/42/delivery-tracking")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Delivery domain.DeliveryView `json:"delivery"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "d1", body.Delivery.DeliveryID)
	assert.Equal(t, domain.DeliveryInTransit, body.Delivery.Status)
}

func TestDeliveryTrackingNoActiveDelivery(t *testing.T) {
	srv, _ := testServer(t, &stubOrders{}, &stubTelemetry{})

	resp, err := http.Get(srv.URL + "/orders/42/delivery-tracking")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// slowTelemetry blocks the first delivery poll until released, signalling
// when the poll has started.
type slowTelemetry struct {
	stubTelemetry
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *slowTelemetry) FetchDelivery(ctx context.Context, deliveryID string) (domain.TelemetryUpdate, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return s.stubTelemetry.FetchDelivery(ctx, deliveryID)
}

func TestSlowTelemetryPollDoesNotBlockSessions(t *testing.T) {
	tele := &slowTelemetry{
		stubTelemetry: stubTelemetry{byOrder: map[string]domain.TelemetryUpdate{
			"42": {DeliveryID: "d1", DroneID: "drone-1", RawStatus: "IN_TRANSIT"},
		}},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	orders := &stubOrders{snaps: map[string]domain.OrderSnapshot{
		"42": {OrderID: "42", RawStatus: "OUT_FOR_DELIVERY", FetchedAt: time.Now().UTC()},
		"43": {OrderID: "43", RawStatus: "CONFIRMED", FetchedAt: time.Now().UTC()},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	mgr := NewManager(ctx, ManagerConfig{
		Deps: tracking.Deps{
			Fetcher: orders,
			Cache:   store.NewMemory(),
			Log:     logger.Nop(),
		},
		Telemetry:    tele,
		Log:          logger.Nop(),
		PollInterval: time.Hour,
	})
	t.Cleanup(mgr.Shutdown)

	trackerDone := make(chan struct{})
	go func() {
		defer close(trackerDone)
		_, _, _ = mgr.DeliveryView(context.Background(), "42")
	}()
	<-tele.entered

	// Another order's session must stay reachable while that poll hangs.
	got := make(chan error, 1)
	go func() {
		_, err := mgr.OrderView(context.Background(), "43", domain.UserContext{})
		got <- err
	}()
	select {
	case err := <-got:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("manager blocked behind a slow telemetry poll")
	}

	close(tele.release)
	<-trackerDone
}

func TestTrackLifecycle(t *testing.T) {
	orders := &stubOrders{snaps: map[string]domain.OrderSnapshot{
		"42": {OrderID: "42", RawStatus: "CONFIRMED", FetchedAt: time.Now().UTC()},
	}}
	srv, mgr := testServer(t, orders, &stubTelemetry{})

	resp, err := http.Post(srv.URL+"/orders/42/track", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/orders/42/track", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Close is idempotent through the manager as well.
	mgr.Close("42")
}
